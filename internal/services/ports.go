package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"rentdesk/internal/amqp"
	"rentdesk/internal/cache"
	"rentdesk/internal/core"
)

// ErrLeaseNotActive is returned when a payment targets a lease that is not ACTIVE.
var ErrLeaseNotActive = errors.New("lease is not active")

// Ports implemented by storage.SQLiteRepository and the outbound adapters.
type (
	LeaseStore interface {
		GetLease(ctx context.Context, id uuid.UUID) (core.Lease, error)
		GetActiveLeaseForTenant(ctx context.Context, tenantID uuid.UUID) (core.Lease, error)
		ListLeasesByLandlord(ctx context.Context, landlordID uuid.UUID) ([]core.Lease, error)
	}

	PaymentStore interface {
		ListPaymentsByLease(ctx context.Context, leaseID uuid.UUID) ([]core.Payment, error)
		CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error)
		GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error)
		UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to core.PaymentStatus) (core.Payment, error)
	}

	ChargeStore interface {
		ListChargeableLeases(ctx context.Context, day core.Date) ([]core.Lease, error)
		PostRentCharge(ctx context.Context, c core.RentCharge) error
	}

	EventPublisher interface {
		PublishPaymentEvent(ctx context.Context, ev *amqp.PaymentEvent) error
	}
)

// CachedSummary is a dashboard summary together with the day and the ledger
// state it was derived from. Summaries depend on "today" and on the lease
// balance, so an entry whose day or ledger state differs is stale.
type CachedSummary struct {
	Day          string                `json:"day"`
	BalanceCents int64                 `json:"balance_cents"`
	LastCharged  string                `json:"last_charged,omitempty"`
	Summary      core.DashboardSummary `json:"summary"`
}

func newCachedSummary(lease core.Lease, day string, summary core.DashboardSummary) CachedSummary {
	return CachedSummary{
		Day:          day,
		BalanceCents: lease.OutstandingBalance.Cents,
		LastCharged:  lease.LastChargedAt.Key(),
		Summary:      summary,
	}
}

// FreshFor reports whether the entry was derived on day from lease's current
// ledger state. Other processes may move the balance without reaching this
// process's cache.
func (c CachedSummary) FreshFor(lease core.Lease, day string) bool {
	return c.Day == day &&
		c.BalanceCents == lease.OutstandingBalance.Cents &&
		c.LastCharged == lease.LastChargedAt.Key()
}

// SummaryCache is the cache shared by the API and the workers.
type SummaryCache = cache.Cache[CachedSummary]

// SummaryKey is the cache key of a lease's dashboard summary.
func SummaryKey(leaseID uuid.UUID) string {
	return "summary:" + leaseID.String()
}
