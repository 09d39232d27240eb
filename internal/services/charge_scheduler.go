package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"rentdesk/internal/log"
)

// ChargeScheduler runs a ChargeProcessor on a fixed interval.
type ChargeScheduler struct {
	processor *ChargeProcessor
	clock     Clock
	interval  time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewChargeScheduler creates a scheduler. A non-positive interval means hourly.
func NewChargeScheduler(processor *ChargeProcessor, clock Clock, interval time.Duration, logger *log.Logger) *ChargeScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if clock == nil {
		clock = SystemClock(time.UTC)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ChargeScheduler{
		processor: processor,
		clock:     clock,
		interval:  interval,
		logger:    logger.WithComponent(log.ComponentLedger),
	}
}

// Start runs one pass immediately and then one per interval. Returns an error
// if already running.
func (s *ChargeScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("charge scheduler is already running")
	}
	s.running = true
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	s.stopCh, s.doneCh = stopCh, doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.logger.InfoContext(ctx, "Charge scheduler started", "interval", s.interval.String())
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (s *ChargeScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Charge scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Charge scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *ChargeScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runLoop owns stopCh and doneCh of one Start call; a loop left behind by a
// timed-out Stop never touches the channels of a later run.
func (s *ChargeScheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ChargeScheduler) runOnce(ctx context.Context) {
	now := s.clock.Now()
	res, err := s.processor.ProcessDueCharges(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Rent charge pass failed", log.FieldError, err)
		return
	}
	s.logger.InfoContext(ctx, "Rent charge pass complete",
		"charged", res.Charged,
		"failed", res.Failed,
		"next_check", now.Add(s.interval).Format(time.TimeOnly))
}
