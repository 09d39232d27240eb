package http

import (
	"bytes"
	"net/http"
	"time"

	"rentdesk/internal/log"
)

func (s *Server) handleTenantDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathUUID(r, "tenantID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	d, err := s.dashboards.TenantDashboard(r.Context(), tenantID)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewResponse().JSON(s.dashboardView(d)).Write(w)
}

func (s *Server) handleLandlordRentRoll(w http.ResponseWriter, r *http.Request) {
	landlordID, err := pathUUID(r, "landlordID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	entries, err := s.dashboards.LandlordRentRoll(r.Context(), landlordID)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewResponse().JSON(struct {
		LandlordID string         `json:"landlordId"`
		Leases     []rentRollView `json:"leases"`
	}{LandlordID: landlordID.String(), Leases: s.rentRollView(entries)}).Write(w)
}

// dashboardPage is the template data for the tenant dashboard page.
type dashboardPage struct {
	HasLease           bool
	NextDueDate        string
	OutstandingBalance string
	BalanceDescription string
	TotalPaid          string
	PaidPeriodRange    string
	PendingPayments    int
	Payments           []paymentRow
}

type paymentRow struct {
	Submitted string
	Amount    string
	Period    string
	Status    string
	Reference string
}

// handleTenantDashboardPage renders the stat cards. Failures render the empty
// state rather than an error page.
func (s *Server) handleTenantDashboardPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)
	var page dashboardPage

	tenantID, err := pathUUID(r, "tenantID")
	if err != nil {
		s.renderDashboard(w, r, http.StatusBadRequest, page)
		return
	}

	d, err := s.dashboards.TenantDashboard(ctx, tenantID)
	if err != nil {
		logger.ErrorContext(ctx, "Dashboard load failed", log.FieldTenantID, tenantID, log.FieldError, err)
		s.renderDashboard(w, r, http.StatusOK, page)
		return
	}
	if d.Lease == nil {
		s.renderDashboard(w, r, http.StatusOK, page)
		return
	}

	sum := d.Summary
	page.HasLease = true
	page.OutstandingBalance = s.money.Format(sum.OutstandingBalance)
	page.TotalPaid = s.money.Format(sum.TotalPaid)
	page.PendingPayments = sum.PendingPayments
	if sum.NextDueDate != nil {
		page.NextDueDate = sum.NextDueDate.Display()
	}
	if sum.BalanceDescription != nil {
		page.BalanceDescription = *sum.BalanceDescription
	}
	if sum.PaidPeriodRange != nil {
		page.PaidPeriodRange = *sum.PaidPeriodRange
	}

	payments, err := s.payments.ListPayments(ctx, d.Lease.ID)
	if err != nil {
		logger.WarnContext(ctx, "Payment history unavailable", log.FieldLeaseID, d.Lease.ID, log.FieldError, err)
	}
	for i := len(payments) - 1; i >= 0; i-- {
		p := payments[i]
		row := paymentRow{
			Submitted: p.CreatedAt.Format(time.DateOnly),
			Amount:    s.money.Format(p.Amount),
			Status:    s.money.Label(string(p.Status)),
			Reference: p.Reference,
		}
		if period, ok := p.TaggedPeriod(); ok {
			row.Period = period.Start.Display() + " - " + period.End.Display()
		}
		page.Payments = append(page.Payments, row)
	}

	s.renderDashboard(w, r, http.StatusOK, page)
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, page dashboardPage) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "dashboard.html", page); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution failed", "template", "dashboard.html", log.FieldError, err)
		InternalServerError().Write(w)
		return
	}
	NewResponse().Status(status).HTML(buf.Bytes()).Write(w)
}
