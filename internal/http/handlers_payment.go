package http

import (
	"net/http"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
	"rentdesk/internal/services"
)

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	leaseID, err := pathUUID(r, "leaseID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	payments, err := s.payments.ListPayments(r.Context(), leaseID)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewResponse().JSON(struct {
		Payments []paymentView `json:"payments"`
	}{Payments: paymentViews(payments)}).Write(w)
}

// handleSubmitPayment accepts amount, periodStart, periodEnd and reference as
// JSON or form fields.
func (s *Server) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	leaseID, err := pathUUID(r, "leaseID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	in, err := parseNewPayment(body)
	if err != nil {
		ValidationError(err.Error()).Write(w)
		return
	}

	p, err := s.payments.SubmitPayment(r.Context(), leaseID, in)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Payment submitted",
		log.NewFields().WithPayment(p.ID.String(), p.LeaseID.String(), p.Amount.Cents, string(p.Status)).ToSlice()...)
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/leases/"+leaseID.String()+"/payments").
		JSON(newPaymentView(p)).
		Write(w)
}

func parseNewPayment(body *RequestBodyParser) (services.NewPayment, error) {
	amount, err := core.ParseMoney(body.Get("amount"))
	if err != nil {
		return services.NewPayment{}, err
	}
	start, err := core.ParseDate(body.Get("periodStart"))
	if err != nil {
		return services.NewPayment{}, err
	}
	end, err := core.ParseDate(body.Get("periodEnd"))
	if err != nil {
		return services.NewPayment{}, err
	}
	period := core.Period{Start: start, End: end}
	if err := period.Validate(); err != nil {
		return services.NewPayment{}, err
	}
	return services.NewPayment{
		Amount:    amount,
		Period:    period,
		Reference: body.Get("reference"),
	}, nil
}

func (s *Server) handleSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID, err := pathUUID(r, "paymentID")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	status, err := core.ParsePaymentStatus(body.Get("status"))
	if err != nil {
		ValidationError(err.Error()).Write(w)
		return
	}

	p, err := s.payments.SetPaymentStatus(r.Context(), paymentID, status)
	if err != nil {
		errorFor(r, err).Write(w)
		return
	}
	NewResponse().JSON(newPaymentView(p)).Write(w)
}
