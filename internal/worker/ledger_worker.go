// Package worker consumes payment events: it keeps the dashboard cache fresh
// and mirrors completed payments to the landlord rent roll.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rentdesk/internal/amqp"
	"rentdesk/internal/core"
	"rentdesk/internal/log"
	"rentdesk/internal/rentroll"
	"rentdesk/internal/services"
	"rentdesk/internal/storage"
)

// Store is the storage the worker reads from.
type Store interface {
	GetLease(ctx context.Context, id uuid.UUID) (core.Lease, error)
	GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error)
	ListRecentPaymentsByStatus(ctx context.Context, status core.PaymentStatus, limit int) ([]core.Payment, error)
}

// LedgerWorker handles payment events published by the API.
type LedgerWorker struct {
	store     Store
	rentRoll  rentroll.Writer
	cache     services.SummaryCache
	clock     services.Clock
	batchSize int
	logger    *log.Logger
}

// NewLedgerWorker creates a worker. rentRoll and cache may be nil.
func NewLedgerWorker(store Store, rentRoll rentroll.Writer, cache services.SummaryCache, clock services.Clock, batchSize int, logger *log.Logger) *LedgerWorker {
	if clock == nil {
		clock = services.SystemClock(nil)
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerWorker{
		store:     store,
		rentRoll:  rentRoll,
		cache:     cache,
		clock:     clock,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandlePaymentEvent processes one event from AMQP. A returned error requeues
// the message.
func (w *LedgerWorker) HandlePaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error {
	w.logger.InfoContext(ctx, "Processing payment event",
		log.FieldPaymentID, ev.PaymentID,
		log.FieldLeaseID, ev.LeaseID,
		log.FieldStatus, ev.Status)

	w.invalidate(ctx, ev.LeaseID)

	if ev.Status != core.PaymentCompleted {
		return nil
	}

	p, err := w.store.GetPayment(ctx, ev.PaymentID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.WarnContext(ctx, "Payment from event no longer exists", log.FieldPaymentID, ev.PaymentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get payment from storage: %w", err)
	}
	// The event may be stale: the payment could have been cancelled since.
	if p.Status != core.PaymentCompleted {
		w.logger.InfoContext(ctx, "Payment no longer completed, not exporting",
			log.FieldPaymentID, p.ID,
			log.FieldStatus, p.Status)
		return nil
	}

	now := w.clock.Now()
	on := core.DateOf(now)
	if !ev.Timestamp.IsZero() {
		on = core.DateOf(ev.Timestamp.In(now.Location()))
	}
	return w.export(ctx, p, on)
}

// StartupSyncCheck re-exports the most recently completed payments. The rent
// roll ignores payments it already holds, so this recovers events lost while
// the worker was down.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	if w.rentRoll == nil {
		return nil
	}
	payments, err := w.store.ListRecentPaymentsByStatus(ctx, core.PaymentCompleted, w.batchSize)
	if err != nil {
		return fmt.Errorf("list completed payments for startup check: %w", err)
	}
	if len(payments) == 0 {
		w.logger.InfoContext(ctx, "No completed payments found on startup")
		return nil
	}

	today := core.DateOf(w.clock.Now())
	exported, failed := 0, 0
	for _, p := range payments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.export(ctx, p, today); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export payment during startup",
				log.FieldPaymentID, p.ID,
				log.FieldError, err)
			failed++
			continue
		}
		exported++
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", len(payments),
		"exported", exported,
		"errors", failed)
	return nil
}

func (w *LedgerWorker) export(ctx context.Context, p core.Payment, on core.Date) error {
	if w.rentRoll == nil {
		w.logger.DebugContext(ctx, "No rent roll configured, skipping export", log.FieldPaymentID, p.ID)
		return nil
	}

	lease, err := w.store.GetLease(ctx, p.LeaseID)
	if err != nil {
		return fmt.Errorf("get lease from storage: %w", err)
	}

	ref, err := w.rentRoll.AppendPayment(ctx, rentroll.NewRow(lease, p, on))
	if err != nil {
		return fmt.Errorf("append to rent roll: %w", err)
	}

	w.logger.InfoContext(ctx, "Payment exported to rent roll",
		log.FieldPaymentID, p.ID,
		log.FieldLeaseID, p.LeaseID,
		log.FieldAmountCents, p.Amount.Cents,
		"ref", ref)
	return nil
}

func (w *LedgerWorker) invalidate(ctx context.Context, leaseID uuid.UUID) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Delete(ctx, services.SummaryKey(leaseID)); err != nil {
		w.logger.WarnContext(ctx, "Failed to invalidate dashboard cache",
			log.FieldLeaseID, leaseID,
			log.FieldError, err)
	}
}
