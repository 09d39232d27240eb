// Package services provides business logic and orchestration services.
//
// This file holds the rent reconciler: a pure derivation of dashboard figures
// (next due date, totals, display balance) from a lease snapshot and its
// payment history. It never mutates its inputs and performs no I/O.
package services

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"rentdesk/internal/core"
)

const genericCreditDescription = "You have an advance payment credit on your account"

// Clock supplies "today" to the reconciler.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns wall-clock time in loc. A nil loc means UTC.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return ClockFunc(func() time.Time { return time.Now().In(loc) })
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// Reconciler derives dashboard figures from a lease and its payments.
// It is safe for concurrent use.
type Reconciler struct {
	clock  Clock
	logger *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock sets the source of "today".
func WithClock(c Clock) ReconcilerOption {
	return func(r *Reconciler) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger used for debug tracing of derivations.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewReconciler creates a reconciler using the UTC system clock and a
// discarding logger unless overridden.
func NewReconciler(opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		clock:  SystemClock(time.UTC),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// paidPeriod is the sum of completed payments attributed to one billing period.
type paidPeriod struct {
	start core.Date
	end   core.Date
	paid  core.Money
}

// groupPaidPeriods folds completed, period-tagged payments into one entry per
// period start day, newest first. Starts are compared by calendar day so two
// timestamps on the same day merge. When merged payments disagree on the
// period end, the latest end wins.
func groupPaidPeriods(payments []core.Payment) []paidPeriod {
	byStart := make(map[string]*paidPeriod)
	for _, p := range payments {
		if p.Status != core.PaymentCompleted {
			continue
		}
		period, ok := p.TaggedPeriod()
		if !ok {
			continue
		}
		key := period.Start.Key()
		g, exists := byStart[key]
		if !exists {
			g = &paidPeriod{start: core.DateOf(period.Start.Time), end: core.DateOf(period.End.Time)}
			byStart[key] = g
		} else if end := core.DateOf(period.End.Time); end.After(g.end.Time) {
			g.end = end
		}
		g.paid = g.paid.Add(p.Amount)
	}

	groups := make([]paidPeriod, 0, len(byStart))
	for _, g := range byStart {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].start.After(groups[j].start.Time)
	})
	return groups
}

// dueDateIn returns day-of-month day in the given month. Days past the end of
// a short month roll over into the next month.
func dueDateIn(year int, month time.Month, day int) core.Date {
	return core.NewDate(year, month, day)
}

// NextDueDate infers when rent is next due. A nil lease yields nil.
//
// When completed, period-tagged payments exist, the most recent period
// decides: an under-paid period is due on the lease's due day in the month
// the period ends, a fully paid one on the due day of the following month.
// Without any, the due day of the current month is used, moving to the next
// month once today is past it.
func (r *Reconciler) NextDueDate(lease *core.Lease, payments []core.Payment) *core.Date {
	if lease == nil {
		return nil
	}

	if groups := groupPaidPeriods(payments); len(groups) > 0 {
		latest := groups[0]
		year, month, _ := latest.end.Date()
		var due core.Date
		if latest.paid.LessThan(lease.RentAmount) {
			due = dueDateIn(year, month, lease.MonthlyDueDate)
		} else {
			due = dueDateIn(year, month+1, lease.MonthlyDueDate)
		}
		r.logger.Debug("next due date from latest paid period",
			"lease_id", lease.ID,
			"period_start", latest.start.Key(),
			"period_end", latest.end.Key(),
			"paid_cents", latest.paid.Cents,
			"rent_cents", lease.RentAmount.Cents,
			"due", due.Key())
		return &due
	}

	today := core.DateOf(r.clock.Now())
	due := dueDateIn(today.Year(), today.Month(), lease.MonthlyDueDate)
	if today.After(due.Time) {
		due = dueDateIn(today.Year(), today.Month()+1, lease.MonthlyDueDate)
	}
	r.logger.Debug("next due date from calendar",
		"lease_id", lease.ID,
		"today", today.Key(),
		"due", due.Key())
	return &due
}

// TotalPaid sums completed payments.
func TotalPaid(payments []core.Payment) core.Money {
	var total core.Money
	for _, p := range payments {
		if p.Status == core.PaymentCompleted {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// PendingCount counts payments awaiting approval.
func PendingCount(payments []core.Payment) int {
	n := 0
	for _, p := range payments {
		if p.Status == core.PaymentPending {
			n++
		}
	}
	return n
}

// OutstandingBalance clamps the lease's ledger balance at zero for display and
// describes any credit the tenant holds. The ledger value itself is never
// recomputed from payments.
func (r *Reconciler) OutstandingBalance(lease *core.Lease, payments []core.Payment) core.Balance {
	if lease == nil {
		return core.Balance{}
	}
	b := core.Balance{Amount: lease.OutstandingBalance.ClampZero()}
	if !lease.OutstandingBalance.IsNegative() {
		return b
	}

	desc := genericCreditDescription
	if groups := groupPaidPeriods(payments); len(groups) > 0 {
		desc = fmt.Sprintf("You are advance paid until %s", groups[0].end.Display())
	}
	r.logger.Debug("lease holds a credit",
		"lease_id", lease.ID,
		"balance_cents", lease.OutstandingBalance.Cents)
	b.Description = &desc
	return b
}

// PaidPeriodRange summarizes the span covered by completed, period-tagged
// payments, from the earliest start to the latest end. It returns nil when
// there are none.
func PaidPeriodRange(payments []core.Payment) *string {
	var first, last core.Date
	for _, p := range payments {
		if p.Status != core.PaymentCompleted {
			continue
		}
		period, ok := p.TaggedPeriod()
		if !ok {
			continue
		}
		if first.IsZero() || period.Start.Before(first.Time) {
			first = core.DateOf(period.Start.Time)
		}
		if last.IsZero() || period.End.After(last.Time) {
			last = core.DateOf(period.End.Time)
		}
	}
	if first.IsZero() {
		return nil
	}
	s := fmt.Sprintf("Paid period: %s - %s", first.Display(), last.Display())
	return &s
}

// Summarize derives every dashboard figure. Lease-dependent figures degrade to nil/zero when lease is nil.
func (r *Reconciler) Summarize(lease *core.Lease, payments []core.Payment) core.DashboardSummary {
	balance := r.OutstandingBalance(lease, payments)
	return core.DashboardSummary{
		NextDueDate:        r.NextDueDate(lease, payments),
		TotalPaid:          TotalPaid(payments),
		PendingPayments:    PendingCount(payments),
		OutstandingBalance: balance.Amount,
		BalanceDescription: balance.Description,
		PaidPeriodRange:    PaidPeriodRange(payments),
	}
}
