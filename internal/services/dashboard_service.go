package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
	"rentdesk/internal/storage"
)

const defaultRentRollConcurrency = 4

// TenantDashboard is what a tenant sees. Lease is nil when the tenant has no
// active lease; the summary then carries only zero values.
type TenantDashboard struct {
	Lease   *core.Lease
	Summary core.DashboardSummary
}

// DashboardService loads ledger data and reconciles it into dashboard figures.
type DashboardService struct {
	leases      LeaseStore
	payments    PaymentStore
	reconciler  *Reconciler
	clock       Clock
	cache       SummaryCache
	concurrency int
	logger      *log.Logger
}

// DashboardOption configures a DashboardService.
type DashboardOption func(*DashboardService)

// WithSummaryCache caches tenant summaries by lease ID.
func WithSummaryCache(c SummaryCache) DashboardOption {
	return func(s *DashboardService) { s.cache = c }
}

// WithRentRollConcurrency bounds parallel payment loads for rent rolls.
func WithRentRollConcurrency(n int) DashboardOption {
	return func(s *DashboardService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDashboardLogger sets the service logger.
func WithDashboardLogger(l *log.Logger) DashboardOption {
	return func(s *DashboardService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentDashboard)
		}
	}
}

// NewDashboardService creates the service. clock must be the same clock the
// reconciler uses so cached entries are keyed by the same "today".
func NewDashboardService(leases LeaseStore, payments PaymentStore, reconciler *Reconciler, clock Clock, opts ...DashboardOption) *DashboardService {
	if clock == nil {
		clock = SystemClock(nil)
	}
	if reconciler == nil {
		reconciler = NewReconciler(WithClock(clock))
	}
	s := &DashboardService{
		leases:      leases,
		payments:    payments,
		reconciler:  reconciler,
		clock:       clock,
		concurrency: defaultRentRollConcurrency,
		logger:      log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TenantDashboard summarizes the tenant's active lease.
func (s *DashboardService) TenantDashboard(ctx context.Context, tenantID uuid.UUID) (TenantDashboard, error) {
	lease, err := s.leases.GetActiveLeaseForTenant(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.DebugContext(ctx, "Tenant has no active lease", log.FieldTenantID, tenantID)
		return TenantDashboard{Summary: s.reconciler.Summarize(nil, nil)}, nil
	}
	if err != nil {
		return TenantDashboard{}, fmt.Errorf("load active lease: %w", err)
	}

	today := core.DateOf(s.clock.Now()).Key()
	key := SummaryKey(lease.ID)
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "Dashboard cache read failed", log.FieldLeaseID, lease.ID, log.FieldError, err)
		} else if ok && cached.FreshFor(lease, today) {
			return TenantDashboard{Lease: &lease, Summary: cached.Summary}, nil
		}
	}

	payments, err := s.payments.ListPaymentsByLease(ctx, lease.ID)
	if err != nil {
		return TenantDashboard{}, fmt.Errorf("load payments: %w", err)
	}
	summary := s.reconciler.Summarize(&lease, payments)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, newCachedSummary(lease, today, summary)); err != nil {
			s.logger.WarnContext(ctx, "Dashboard cache write failed", log.FieldLeaseID, lease.ID, log.FieldError, err)
		}
	}
	return TenantDashboard{Lease: &lease, Summary: summary}, nil
}

// LandlordRentRoll summarizes every lease a landlord owns, in lease order.
// Payments are loaded concurrently with bounded parallelism.
func (s *DashboardService) LandlordRentRoll(ctx context.Context, landlordID uuid.UUID) ([]core.RentRollEntry, error) {
	leases, err := s.leases.ListLeasesByLandlord(ctx, landlordID)
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}

	entries := make([]core.RentRollEntry, len(leases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, lease := range leases {
		g.Go(func() error {
			payments, err := s.payments.ListPaymentsByLease(gctx, lease.ID)
			if err != nil {
				return fmt.Errorf("load payments for lease %s: %w", lease.ID, err)
			}
			entries[i] = core.RentRollEntry{
				Lease:   lease,
				Summary: s.reconciler.Summarize(&lease, payments),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Rent roll built", log.FieldLandlordID, landlordID, "leases", len(entries))
	return entries, nil
}
