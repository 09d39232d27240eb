package http

import (
	"time"

	"rentdesk/internal/core"
	"rentdesk/internal/services"
)

// Wire shapes. Money is a decimal string ("5000.00") with a formatted twin
// for display; dates are YYYY-MM-DD.

type dashboardView struct {
	HasLease                  bool    `json:"hasLease"`
	LeaseID                   *string `json:"leaseId"`
	NextDueDate               *string `json:"nextDueDate"`
	TotalPaid                 string  `json:"totalPaid"`
	TotalPaidDisplay          string  `json:"totalPaidDisplay"`
	PendingPayments           int     `json:"pendingPayments"`
	OutstandingBalance        string  `json:"outstandingBalance"`
	OutstandingBalanceDisplay string  `json:"outstandingBalanceDisplay"`
	BalanceDescription        *string `json:"balanceDescription"`
	PaidPeriodRange           *string `json:"paidPeriodRange"`
}

type rentRollView struct {
	LeaseID    string        `json:"leaseId"`
	TenantID   string        `json:"tenantId"`
	Status     string        `json:"status"`
	RentAmount string        `json:"rentAmount"`
	DueDay     int           `json:"monthlyDueDate"`
	Summary    dashboardView `json:"summary"`
}

type paymentView struct {
	ID          string    `json:"id"`
	LeaseID     string    `json:"leaseId"`
	Amount      string    `json:"amount"`
	Status      string    `json:"status"`
	PeriodStart *string   `json:"periodStart"`
	PeriodEnd   *string   `json:"periodEnd"`
	Reference   string    `json:"reference"`
	CreatedAt   time.Time `json:"createdAt"`
}

func dateKey(d *core.Date) *string {
	if d == nil || d.IsZero() {
		return nil
	}
	k := d.Key()
	return &k
}

func (s *Server) summaryView(lease *core.Lease, sum core.DashboardSummary) dashboardView {
	v := dashboardView{
		HasLease:                  lease != nil,
		NextDueDate:               dateKey(sum.NextDueDate),
		TotalPaid:                 sum.TotalPaid.String(),
		TotalPaidDisplay:          s.money.Format(sum.TotalPaid),
		PendingPayments:           sum.PendingPayments,
		OutstandingBalance:        sum.OutstandingBalance.String(),
		OutstandingBalanceDisplay: s.money.Format(sum.OutstandingBalance),
		BalanceDescription:        sum.BalanceDescription,
		PaidPeriodRange:           sum.PaidPeriodRange,
	}
	if lease != nil {
		id := lease.ID.String()
		v.LeaseID = &id
	}
	return v
}

func (s *Server) dashboardView(d services.TenantDashboard) dashboardView {
	return s.summaryView(d.Lease, d.Summary)
}

func (s *Server) rentRollView(entries []core.RentRollEntry) []rentRollView {
	out := make([]rentRollView, 0, len(entries))
	for _, e := range entries {
		lease := e.Lease
		out = append(out, rentRollView{
			LeaseID:    lease.ID.String(),
			TenantID:   lease.TenantID.String(),
			Status:     string(lease.Status),
			RentAmount: lease.RentAmount.String(),
			DueDay:     lease.MonthlyDueDate,
			Summary:    s.summaryView(&lease, e.Summary),
		})
	}
	return out
}

func newPaymentView(p core.Payment) paymentView {
	v := paymentView{
		ID:        p.ID.String(),
		LeaseID:   p.LeaseID.String(),
		Amount:    p.Amount.String(),
		Status:    string(p.Status),
		Reference: p.Reference,
		CreatedAt: p.CreatedAt,
	}
	if period, ok := p.TaggedPeriod(); ok {
		v.PeriodStart = dateKey(&period.Start)
		v.PeriodEnd = dateKey(&period.End)
	}
	return v
}

func paymentViews(payments []core.Payment) []paymentView {
	out := make([]paymentView, 0, len(payments))
	for _, p := range payments {
		out = append(out, newPaymentView(p))
	}
	return out
}
