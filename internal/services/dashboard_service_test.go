package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk/internal/core"
	"rentdesk/internal/storage"
)

// movableClock lets a test advance "today".
type movableClock struct{ t time.Time }

func (c *movableClock) Now() time.Time { return c.t }

func newDashboardService(repo *storage.SQLiteRepository, clock Clock, opts ...DashboardOption) *DashboardService {
	return NewDashboardService(repo, repo, NewReconciler(WithClock(clock)), clock, opts...)
}

func TestTenantDashboard_NoLease(t *testing.T) {
	repo := newStore(t)
	svc := newDashboardService(repo, FixedClock(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)))

	d, err := svc.TenantDashboard(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, d.Lease)
	assert.Nil(t, d.Summary.NextDueDate)
	assert.True(t, d.Summary.TotalPaid.IsZero())
	assert.Equal(t, 0, d.Summary.PendingPayments)
	assert.Nil(t, d.Summary.PaidPeriodRange)
}

func TestTenantDashboard(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	lease := createLease(t, repo, func(l *core.Lease) { l.OutstandingBalance = core.Cents(500000) })

	_, err := repo.CreatePayment(ctx, core.Payment{
		LeaseID: lease.ID,
		Amount:  core.Cents(300000),
		Status:  core.PaymentCompleted,
		Period:  core.Period{Start: jan1, End: jan31},
	})
	require.NoError(t, err)
	_, err = repo.CreatePayment(ctx, core.Payment{
		LeaseID: lease.ID,
		Amount:  core.Cents(200000),
		Status:  core.PaymentCompleted,
		Period:  core.Period{Start: jan1, End: jan31},
	})
	require.NoError(t, err)
	_, err = repo.CreatePayment(ctx, core.Payment{LeaseID: lease.ID, Amount: core.Cents(100)})
	require.NoError(t, err)

	svc := newDashboardService(repo, FixedClock(time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)))
	d, err := svc.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)

	require.NotNil(t, d.Lease)
	assert.Equal(t, lease.ID, d.Lease.ID)
	require.NotNil(t, d.Summary.NextDueDate)
	assert.Equal(t, "2024-02-05", d.Summary.NextDueDate.Key())
	assert.Equal(t, int64(500000), d.Summary.TotalPaid.Cents)
	assert.Equal(t, 1, d.Summary.PendingPayments)
	assert.True(t, d.Summary.OutstandingBalance.IsZero())
	require.NotNil(t, d.Summary.PaidPeriodRange)
	assert.Equal(t, "Paid period: Jan 1, 2024 - Jan 31, 2024", *d.Summary.PaidPeriodRange)
}

func TestTenantDashboard_Cache(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	summaries := newSummaryCache()
	lease := createLease(t, repo)

	clock := &movableClock{t: time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)}
	svc := newDashboardService(repo, clock, WithSummaryCache(summaries))

	first, err := svc.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)

	cached, ok, err := summaries.Get(ctx, SummaryKey(lease.ID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-01-20", cached.Day)

	// Written behind the service's back: a cache hit hides it.
	_, err = repo.CreatePayment(ctx, core.Payment{LeaseID: lease.ID, Amount: core.Cents(100)})
	require.NoError(t, err)

	second, err := svc.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)
	assert.Equal(t, first.Summary, second.Summary)

	// A new day makes the entry stale.
	clock.t = clock.t.Add(24 * time.Hour)
	third, err := svc.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, third.Summary.PendingPayments)

	cached, _, _ = summaries.Get(ctx, SummaryKey(lease.ID))
	assert.Equal(t, "2024-01-21", cached.Day)
}

func TestTenantDashboard_InvalidatedByPaymentService(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	summaries := newSummaryCache()
	lease := createLease(t, repo)

	clock := FixedClock(time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC))
	dash := newDashboardService(repo, clock, WithSummaryCache(summaries))
	payments := NewPaymentService(repo, repo, nil, summaries, nil)

	before, err := dash.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Summary.PendingPayments)

	_, err = payments.SubmitPayment(ctx, lease.ID, NewPayment{Amount: core.Cents(100)})
	require.NoError(t, err)

	after, err := dash.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Summary.PendingPayments)
}

func TestTenantDashboard_ChargePostedByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	lease := createLease(t, repo)

	// The API and the charge worker each hold a private in-memory cache.
	apiCache := newSummaryCache()
	workerCache := newSummaryCache()

	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	dash := newDashboardService(repo, FixedClock(now), WithSummaryCache(apiCache))

	before, err := dash.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)
	assert.True(t, before.Summary.OutstandingBalance.IsZero())

	res, err := NewChargeProcessor(repo, workerCache, nil).ProcessDueCharges(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Charged)

	after, err := dash.TenantDashboard(ctx, lease.TenantID)
	require.NoError(t, err)
	require.NotNil(t, after.Lease)
	assert.Equal(t, int64(500000), after.Lease.OutstandingBalance.Cents)
	assert.Equal(t, after.Lease.OutstandingBalance, after.Summary.OutstandingBalance)

	cached, ok, err := apiCache.Get(ctx, SummaryKey(lease.ID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(500000), cached.BalanceCents)
	assert.Equal(t, "2024-03-05", cached.LastCharged)
}

func TestCachedSummary_FreshFor(t *testing.T) {
	lease := core.Lease{OutstandingBalance: core.Cents(500000), LastChargedAt: core.NewDate(2024, 3, 5)}
	entry := newCachedSummary(lease, "2024-03-10", core.DashboardSummary{})

	tests := []struct {
		name   string
		mutate func(*core.Lease)
		day    string
		want   bool
	}{
		{"same day and ledger", nil, "2024-03-10", true},
		{"other day", nil, "2024-03-11", false},
		{"balance moved", func(l *core.Lease) { l.OutstandingBalance = core.Cents(0) }, "2024-03-10", false},
		{"new charge posted", func(l *core.Lease) { l.LastChargedAt = core.NewDate(2024, 4, 5) }, "2024-03-10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := lease
			if tt.mutate != nil {
				tt.mutate(&l)
			}
			assert.Equal(t, tt.want, entry.FreshFor(l, tt.day))
		})
	}
}

func TestLandlordRentRoll(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	landlord := uuid.New()

	var leases []core.Lease
	for i := 0; i < 6; i++ {
		l := createLease(t, repo, func(l *core.Lease) {
			l.LandlordID = landlord
			l.StartDate = core.NewDate(2024, time.Month(i+1), 1)
		})
		_, err := repo.CreatePayment(ctx, core.Payment{
			LeaseID: l.ID,
			Amount:  core.Cents(int64(i+1) * 1000),
			Status:  core.PaymentCompleted,
		})
		require.NoError(t, err)
		leases = append(leases, l)
	}
	createLease(t, repo) // another landlord

	svc := newDashboardService(repo, FixedClock(time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)), WithRentRollConcurrency(2))
	entries, err := svc.LandlordRentRoll(ctx, landlord)
	require.NoError(t, err)
	require.Len(t, entries, len(leases))

	for i, e := range entries {
		assert.Equal(t, leases[i].ID, e.Lease.ID)
		assert.Equal(t, int64(i+1)*1000, e.Summary.TotalPaid.Cents)
		require.NotNil(t, e.Summary.NextDueDate)
	}
}

func TestLandlordRentRoll_Empty(t *testing.T) {
	repo := newStore(t)
	svc := newDashboardService(repo, FixedClock(time.Now()))

	entries, err := svc.LandlordRentRoll(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
