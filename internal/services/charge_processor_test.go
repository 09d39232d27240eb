package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk/internal/core"
)

func TestChargeDue(t *testing.T) {
	base := core.Lease{
		MonthlyDueDate: 5,
		StartDate:      core.NewDate(2024, 1, 1),
		Status:         core.LeaseActive,
	}

	tests := []struct {
		name   string
		mutate func(*core.Lease)
		today  core.Date
		want   bool
		day    core.Date
	}{
		{name: "before due day", today: core.NewDate(2024, 3, 4), want: false, day: core.NewDate(2024, 3, 5)},
		{name: "on due day", today: core.NewDate(2024, 3, 5), want: true, day: core.NewDate(2024, 3, 5)},
		{name: "after due day", today: core.NewDate(2024, 3, 20), want: true, day: core.NewDate(2024, 3, 5)},
		{
			name:   "already charged this month",
			mutate: func(l *core.Lease) { l.LastChargedAt = core.NewDate(2024, 3, 5) },
			today:  core.NewDate(2024, 3, 20),
			want:   false,
			day:    core.NewDate(2024, 3, 5),
		},
		{
			name:   "charged last month",
			mutate: func(l *core.Lease) { l.LastChargedAt = core.NewDate(2024, 2, 5) },
			today:  core.NewDate(2024, 3, 5),
			want:   true,
			day:    core.NewDate(2024, 3, 5),
		},
		{
			name:   "due day clamped in february",
			mutate: func(l *core.Lease) { l.MonthlyDueDate = 31 },
			today:  core.NewDate(2024, 2, 29),
			want:   true,
			day:    core.NewDate(2024, 2, 29),
		},
		{
			name:   "inactive lease",
			mutate: func(l *core.Lease) { l.Status = core.LeaseArchived },
			today:  core.NewDate(2024, 3, 20),
			want:   false,
		},
		{
			name:   "lease ended",
			mutate: func(l *core.Lease) { l.EndDate = core.NewDate(2024, 2, 29) },
			today:  core.NewDate(2024, 3, 20),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base
			if tt.mutate != nil {
				tt.mutate(&l)
			}
			day, due := chargeDue(l, tt.today)
			assert.Equal(t, tt.want, due)
			if !tt.day.IsZero() {
				assert.Equal(t, tt.day, day)
			}
		})
	}
}

func TestProcessDueCharges(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	summaries := newSummaryCache()

	due := createLease(t, repo)
	notYet := createLease(t, repo, func(l *core.Lease) { l.MonthlyDueDate = 25 })
	pending := createLease(t, repo, func(l *core.Lease) { l.Status = core.LeasePending })

	require.NoError(t, summaries.Set(ctx, SummaryKey(due.ID), CachedSummary{Day: "2024-03-10"}))
	require.NoError(t, summaries.Set(ctx, SummaryKey(notYet.ID), CachedSummary{Day: "2024-03-10"}))

	p := NewChargeProcessor(repo, summaries, nil)
	now := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)

	res, err := p.ProcessDueCharges(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, ChargeResult{Checked: 2, Charged: 1, Skipped: 1}, res)

	got, err := repo.GetLease(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), got.OutstandingBalance.Cents)
	assert.Equal(t, "2024-03-05", got.LastChargedAt.Key())

	_, ok, _ := summaries.Get(ctx, SummaryKey(due.ID))
	assert.False(t, ok, "charged lease summary should be invalidated")
	_, ok, _ = summaries.Get(ctx, SummaryKey(notYet.ID))
	assert.True(t, ok, "uncharged lease summary should be kept")

	got, err = repo.GetLease(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, got.OutstandingBalance.IsZero())

	// A second pass in the same month charges nothing.
	res, err = p.ProcessDueCharges(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Charged)

	got, err = repo.GetLease(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), got.OutstandingBalance.Cents)

	// Next month charges again.
	res, err = p.ProcessDueCharges(ctx, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Charged)

	charges, err := repo.ListRentCharges(ctx, due.ID)
	require.NoError(t, err)
	require.Len(t, charges, 2)
	assert.Equal(t, "2024-03", charges[0].BillingMonth)
	assert.Equal(t, "2024-04", charges[1].BillingMonth)
}

func TestProcessDueCharges_CancelledContext(t *testing.T) {
	repo := newStore(t)
	createLease(t, repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChargeProcessor(repo, nil, nil).ProcessDueCharges(ctx, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestChargeScheduler_StartStop(t *testing.T) {
	repo := newStore(t)
	lease := createLease(t, repo)

	clock := FixedClock(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	s := NewChargeScheduler(NewChargeProcessor(repo, nil, nil), clock, time.Hour, nil)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(ctx))

	require.Eventually(t, func() bool {
		l, err := repo.GetLease(ctx, lease.ID)
		return err == nil && l.LastChargedAt.Key() == "2024-03-05"
	}, 5*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
	assert.NoError(t, s.Stop(stopCtx))
}

// gatedChargeStore blocks every listing until release is closed.
type gatedChargeStore struct {
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedChargeStore) ListChargeableLeases(ctx context.Context, _ core.Date) ([]core.Lease, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedChargeStore) PostRentCharge(context.Context, core.RentCharge) error { return nil }

func TestChargeScheduler_RestartAfterStopTimeout(t *testing.T) {
	store := &gatedChargeStore{release: make(chan struct{})}
	clock := FixedClock(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	s := NewChargeScheduler(NewChargeProcessor(store, nil, nil), clock, time.Hour, nil)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return store.calls.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	// The first pass is stuck, so the stop gives up.
	short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, s.Stop(short), context.DeadlineExceeded)

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return store.calls.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	// Both loops finish their pass; only the second is still running.
	close(store.release)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())
}
