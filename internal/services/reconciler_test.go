package services

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk/internal/core"
)

func testLease(rentCents int64, dueDay int, balanceCents int64) *core.Lease {
	return &core.Lease{
		ID:                 uuid.New(),
		TenantID:           uuid.New(),
		LandlordID:         uuid.New(),
		RentAmount:         core.Cents(rentCents),
		MonthlyDueDate:     dueDay,
		OutstandingBalance: core.Cents(balanceCents),
		StartDate:          core.NewDate(2023, 6, 1),
		Status:             core.LeaseActive,
	}
}

func paid(cents int64, start, end core.Date) core.Payment {
	return core.Payment{
		ID:     uuid.New(),
		Amount: core.Cents(cents),
		Status: core.PaymentCompleted,
		Period: core.Period{Start: start, End: end},
	}
}

func withStatus(p core.Payment, s core.PaymentStatus) core.Payment {
	p.Status = s
	return p
}

func reconcilerAt(t time.Time) *Reconciler {
	return NewReconciler(WithClock(FixedClock(t)))
}

var (
	jan1  = core.NewDate(2024, time.January, 1)
	jan31 = core.NewDate(2024, time.January, 31)
	feb1  = core.NewDate(2024, time.February, 1)
	feb29 = core.NewDate(2024, time.February, 29)
	mar1  = core.NewDate(2024, time.March, 1)
	mar31 = core.NewDate(2024, time.March, 31)
)

func TestNextDueDate_NilLease(t *testing.T) {
	r := reconcilerAt(time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC))
	assert.Nil(t, r.NextDueDate(nil, nil))
	assert.Nil(t, r.NextDueDate(nil, []core.Payment{paid(500000, jan1, jan31)}))
}

func TestNextDueDate(t *testing.T) {
	now := time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lease    *core.Lease
		payments []core.Payment
		want     string
	}{
		{
			name:  "split payments fully pay the period - rolls to following month",
			lease: testLease(500000, 5, 0),
			payments: []core.Payment{
				paid(300000, jan1, jan31),
				paid(200000, jan1, jan31),
			},
			want: "2024-02-05",
		},
		{
			name:     "under-paid period - due in the period end month",
			lease:    testLease(500000, 5, 200000),
			payments: []core.Payment{paid(300000, jan1, jan31)},
			want:     "2024-01-05",
		},
		{
			name:     "over-paid period counts as fully paid",
			lease:    testLease(500000, 10, -100000),
			payments: []core.Payment{paid(600000, jan1, jan31)},
			want:     "2024-02-10",
		},
		{
			name:  "latest period decides even when an older one is under-paid",
			lease: testLease(500000, 1, 0),
			payments: []core.Payment{
				paid(100000, jan1, jan31),
				paid(500000, feb1, feb29),
			},
			want: "2024-03-01",
		},
		{
			name:  "latest period under-paid while older is fully paid",
			lease: testLease(500000, 1, 0),
			payments: []core.Payment{
				paid(500000, jan1, jan31),
				paid(100000, feb1, feb29),
			},
			want: "2024-02-01",
		},
		{
			name:  "pending, failed and cancelled payments do not count",
			lease: testLease(500000, 5, 0),
			payments: []core.Payment{
				paid(300000, jan1, jan31),
				withStatus(paid(200000, jan1, jan31), core.PaymentPending),
				withStatus(paid(200000, jan1, jan31), core.PaymentFailed),
				withStatus(paid(900000, feb1, feb29), core.PaymentCancelled),
			},
			want: "2024-01-05",
		},
		{
			name:  "untagged completed payments are ignored for periods",
			lease: testLease(500000, 15, 0),
			payments: []core.Payment{
				{Amount: core.Cents(500000), Status: core.PaymentCompleted},
				{Amount: core.Cents(500000), Status: core.PaymentCompleted, Period: core.Period{Start: jan1}},
			},
			want: "2024-04-15",
		},
		{
			name:     "due day 31 after a fully paid January rolls past February",
			lease:    testLease(500000, 31, 0),
			payments: []core.Payment{paid(500000, jan1, jan31)},
			want:     "2024-03-02",
		},
		{
			name:     "December period rolls into the next year",
			lease:    testLease(500000, 5, 0),
			payments: []core.Payment{paid(500000, core.NewDate(2023, 12, 1), core.NewDate(2023, 12, 31))},
			want:     "2024-01-05",
		},
		{
			name:     "period ending in a later month uses the end month",
			lease:    testLease(500000, 5, 0),
			payments: []core.Payment{paid(500000, core.NewDate(2024, 1, 15), core.NewDate(2024, 2, 14))},
			want:     "2024-03-05",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcilerAt(now).NextDueDate(tt.lease, tt.payments)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Key())
		})
	}
}

func TestNextDueDate_NoPayments(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		dueDay int
		want   string
	}{
		{"before due day - this month", time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC), 15, "2024-05-15"},
		{"on due day - still this month", time.Date(2024, 5, 15, 23, 0, 0, 0, time.UTC), 15, "2024-05-15"},
		{"past due day - next month", time.Date(2024, 5, 20, 8, 0, 0, 0, time.UTC), 15, "2024-06-15"},
		{"past due day in December - next January", time.Date(2024, 12, 20, 8, 0, 0, 0, time.UTC), 15, "2025-01-15"},
		{"day 31 in April rolls to May 1", time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC), 31, "2024-05-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reconcilerAt(tt.now).NextDueDate(testLease(500000, tt.dueDay, 0), nil)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Key())
		})
	}
}

func TestNextDueDate_TodayUsesClockLocation(t *testing.T) {
	// 2024-05-15 20:00 UTC is already the 16th in Manila.
	manila := time.FixedZone("PHT", 8*3600)
	now := time.Date(2024, 5, 15, 20, 0, 0, 0, time.UTC).In(manila)

	got := reconcilerAt(now).NextDueDate(testLease(500000, 15, 0), []core.Payment{})
	require.NotNil(t, got)
	assert.Equal(t, "2024-06-15", got.Key())
}

func TestNextDueDate_GroupsByCalendarDay(t *testing.T) {
	// Two payments for the same period whose starts carry different times of
	// day must merge into one fully paid period.
	morning := core.Date{Time: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	evening := core.Date{Time: time.Date(2024, 1, 1, 21, 30, 0, 0, time.UTC)}

	payments := []core.Payment{
		paid(300000, morning, jan31),
		paid(200000, evening, jan31),
	}
	got := reconcilerAt(time.Now()).NextDueDate(testLease(500000, 5, 0), payments)
	require.NotNil(t, got)
	assert.Equal(t, "2024-02-05", got.Key())
}

func TestNextDueDate_OrderIndependent(t *testing.T) {
	lease := testLease(500000, 7, 0)
	payments := []core.Payment{
		paid(500000, jan1, jan31),
		paid(250000, feb1, feb29),
		paid(250000, feb1, feb29),
		paid(100000, mar1, mar31),
		withStatus(paid(400000, mar1, mar31), core.PaymentPending),
	}
	r := reconcilerAt(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	want := r.NextDueDate(lease, payments)
	require.NotNil(t, want)
	assert.Equal(t, "2024-03-07", want.Key())

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]core.Payment(nil), payments...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := r.NextDueDate(lease, shuffled)
		require.NotNil(t, got)
		assert.Equal(t, want.Key(), got.Key())
	}
}

func TestTotalPaidAndPendingCount(t *testing.T) {
	assert.Equal(t, core.Money{}, TotalPaid(nil))
	assert.Equal(t, core.Money{}, TotalPaid([]core.Payment{}))
	assert.Equal(t, 0, PendingCount(nil))
	assert.Equal(t, 0, PendingCount([]core.Payment{}))

	payments := []core.Payment{
		paid(300000, jan1, jan31),
		{Amount: core.Cents(150), Status: core.PaymentCompleted},
		withStatus(paid(200000, jan1, jan31), core.PaymentPending),
		withStatus(paid(200000, feb1, feb29), core.PaymentPending),
		withStatus(paid(700000, feb1, feb29), core.PaymentFailed),
		withStatus(paid(900000, feb1, feb29), core.PaymentCancelled),
	}
	assert.Equal(t, core.Cents(300150), TotalPaid(payments))
	assert.Equal(t, 2, PendingCount(payments))

	// Non-completed amounts never affect the total.
	for i := range payments {
		if payments[i].Status != core.PaymentCompleted {
			payments[i].Amount = core.Cents(payments[i].Amount.Cents * 7)
		}
	}
	assert.Equal(t, core.Cents(300150), TotalPaid(payments))
}

func TestTotalPaid_NoCentDrift(t *testing.T) {
	payments := make([]core.Payment, 0, 1000)
	for i := 0; i < 1000; i++ {
		payments = append(payments, core.Payment{Amount: core.Cents(10), Status: core.PaymentCompleted})
	}
	assert.Equal(t, "100.00", TotalPaid(payments).String())
}

func TestOutstandingBalance(t *testing.T) {
	r := reconcilerAt(time.Now())

	t.Run("nil lease", func(t *testing.T) {
		b := r.OutstandingBalance(nil, nil)
		assert.True(t, b.Amount.IsZero())
		assert.Nil(t, b.Description)
	})

	t.Run("amount owed", func(t *testing.T) {
		b := r.OutstandingBalance(testLease(500000, 5, 250000), nil)
		assert.Equal(t, core.Cents(250000), b.Amount)
		assert.Nil(t, b.Description)
	})

	t.Run("settled", func(t *testing.T) {
		b := r.OutstandingBalance(testLease(500000, 5, 0), nil)
		assert.True(t, b.Amount.IsZero())
		assert.Nil(t, b.Description)
	})

	t.Run("credit references latest paid period end", func(t *testing.T) {
		payments := []core.Payment{
			paid(500000, jan1, jan31),
			paid(500000, mar1, mar31),
			paid(500000, feb1, feb29),
			withStatus(paid(500000, core.NewDate(2024, 4, 1), core.NewDate(2024, 4, 30)), core.PaymentPending),
		}
		b := r.OutstandingBalance(testLease(500000, 5, -150000), payments)
		assert.True(t, b.Amount.IsZero())
		require.NotNil(t, b.Description)
		assert.Equal(t, "You are advance paid until Mar 31, 2024", *b.Description)
	})

	t.Run("credit without tagged payments uses generic text", func(t *testing.T) {
		payments := []core.Payment{{Amount: core.Cents(650000), Status: core.PaymentCompleted}}
		b := r.OutstandingBalance(testLease(500000, 5, -150000), payments)
		assert.True(t, b.Amount.IsZero())
		require.NotNil(t, b.Description)
		assert.Equal(t, genericCreditDescription, *b.Description)
	})

	t.Run("never negative", func(t *testing.T) {
		for _, c := range []int64{-1, -150000, -1 << 40} {
			b := r.OutstandingBalance(testLease(500000, 5, c), nil)
			assert.False(t, b.Amount.IsNegative())
			assert.Equal(t, b.Amount, b.Amount.ClampZero())
		}
	})
}

func TestPaidPeriodRange(t *testing.T) {
	assert.Nil(t, PaidPeriodRange(nil))
	assert.Nil(t, PaidPeriodRange([]core.Payment{
		{Amount: core.Cents(100), Status: core.PaymentCompleted},
		withStatus(paid(100, jan1, jan31), core.PaymentPending),
	}))

	got := PaidPeriodRange([]core.Payment{
		paid(500000, feb1, feb29),
		paid(500000, mar1, mar31),
		paid(500000, jan1, jan31),
		withStatus(paid(500000, core.NewDate(2024, 4, 1), core.NewDate(2024, 4, 30)), core.PaymentFailed),
	})
	require.NotNil(t, got)
	assert.Equal(t, "Paid period: Jan 1, 2024 - Mar 31, 2024", *got)
}

func TestSummarize(t *testing.T) {
	r := reconcilerAt(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))
	lease := testLease(500000, 5, -150000)
	payments := []core.Payment{
		paid(300000, jan1, jan31),
		paid(200000, jan1, jan31),
		paid(650000, feb1, feb29),
		withStatus(paid(500000, mar1, mar31), core.PaymentPending),
	}

	s := r.Summarize(lease, payments)
	require.NotNil(t, s.NextDueDate)
	assert.Equal(t, "2024-03-05", s.NextDueDate.Key())
	assert.Equal(t, core.Cents(1150000), s.TotalPaid)
	assert.Equal(t, 1, s.PendingPayments)
	assert.True(t, s.OutstandingBalance.IsZero())
	require.NotNil(t, s.BalanceDescription)
	assert.Equal(t, "You are advance paid until Feb 29, 2024", *s.BalanceDescription)
	require.NotNil(t, s.PaidPeriodRange)
	assert.Equal(t, "Paid period: Jan 1, 2024 - Feb 29, 2024", *s.PaidPeriodRange)

	// Same inputs, same outputs; inputs untouched.
	before := append([]core.Payment(nil), payments...)
	again := r.Summarize(lease, payments)
	assert.Equal(t, s, again)
	assert.Equal(t, before, payments)
	assert.Equal(t, core.Cents(-150000), lease.OutstandingBalance)
}

func TestSummarize_NoLease(t *testing.T) {
	s := reconcilerAt(time.Now()).Summarize(nil, []core.Payment{})
	assert.Nil(t, s.NextDueDate)
	assert.True(t, s.TotalPaid.IsZero())
	assert.Equal(t, 0, s.PendingPayments)
	assert.True(t, s.OutstandingBalance.IsZero())
	assert.Nil(t, s.BalanceDescription)
	assert.Nil(t, s.PaidPeriodRange)
}
