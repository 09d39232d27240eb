package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"rentdesk/internal/amqp"
	"rentdesk/internal/core"
	"rentdesk/internal/log"
)

// NewPayment is a tenant's payment submission.
type NewPayment struct {
	Amount    core.Money
	Period    core.Period
	Reference string
}

// PaymentService orchestrates payment writes across SQLite, the dashboard
// cache and AMQP. Storage is the source of truth; cache and bus failures are
// logged and never fail the request.
type PaymentService struct {
	leases    LeaseStore
	payments  PaymentStore
	publisher EventPublisher
	cache     SummaryCache
	logger    *log.Logger
}

// NewPaymentService creates a payment service. publisher and cache may be nil.
func NewPaymentService(leases LeaseStore, payments PaymentStore, publisher EventPublisher, cache SummaryCache, logger *log.Logger) *PaymentService {
	if logger == nil {
		logger = log.Discard()
	}
	return &PaymentService{
		leases:    leases,
		payments:  payments,
		publisher: publisher,
		cache:     cache,
		logger:    logger.WithComponent(log.ComponentPayments),
	}
}

// SubmitPayment records a PENDING payment against an ACTIVE lease.
func (s *PaymentService) SubmitPayment(ctx context.Context, leaseID uuid.UUID, in NewPayment) (core.Payment, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return core.Payment{}, fmt.Errorf("load lease: %w", err)
	}
	if lease.Status != core.LeaseActive {
		return core.Payment{}, fmt.Errorf("lease %s is %s: %w", leaseID, lease.Status, ErrLeaseNotActive)
	}

	p, err := s.payments.CreatePayment(ctx, core.Payment{
		LeaseID:   leaseID,
		Amount:    in.Amount,
		Status:    core.PaymentPending,
		Period:    in.Period,
		Reference: in.Reference,
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("save payment: %w", err)
	}

	s.afterChange(ctx, p)
	return p, nil
}

// SetPaymentStatus moves a payment to a new status. The ledger effect is
// applied by storage in the same transaction.
func (s *PaymentService) SetPaymentStatus(ctx context.Context, paymentID uuid.UUID, to core.PaymentStatus) (core.Payment, error) {
	p, err := s.payments.UpdatePaymentStatus(ctx, paymentID, to)
	if err != nil {
		return core.Payment{}, fmt.Errorf("update payment status: %w", err)
	}
	s.afterChange(ctx, p)
	return p, nil
}

// ListPayments returns a lease's payment history.
func (s *PaymentService) ListPayments(ctx context.Context, leaseID uuid.UUID) ([]core.Payment, error) {
	if _, err := s.leases.GetLease(ctx, leaseID); err != nil {
		return nil, fmt.Errorf("load lease: %w", err)
	}
	payments, err := s.payments.ListPaymentsByLease(ctx, leaseID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (s *PaymentService) afterChange(ctx context.Context, p core.Payment) {
	invalidateSummary(ctx, s.cache, s.logger, p.LeaseID)

	if s.publisher == nil {
		s.logger.WarnContext(ctx, "AMQP publisher not available, skipping payment event",
			log.FieldPaymentID, p.ID)
		return
	}
	if err := s.publisher.PublishPaymentEvent(ctx, amqp.NewPaymentEvent(p)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish payment event",
			log.NewFields().
				WithPayment(p.ID.String(), p.LeaseID.String(), p.Amount.Cents, string(p.Status)).
				WithError(err).
				ToSlice()...)
		return
	}
	s.logger.InfoContext(ctx, "Payment event published",
		log.FieldPaymentID, p.ID,
		log.FieldStatus, p.Status)
}
