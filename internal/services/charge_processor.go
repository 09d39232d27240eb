package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
	"rentdesk/internal/storage"
)

// ChargeResult counts what one charging pass did.
type ChargeResult struct {
	Checked int
	Charged int
	Skipped int
	Failed  int
}

// ChargeProcessor posts monthly rent charges to lease ledgers.
type ChargeProcessor struct {
	store  ChargeStore
	cache  SummaryCache
	logger *log.Logger
}

// NewChargeProcessor creates a charge processor. cache may be nil.
func NewChargeProcessor(store ChargeStore, cache SummaryCache, logger *log.Logger) *ChargeProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &ChargeProcessor{
		store:  store,
		cache:  cache,
		logger: logger.WithComponent(log.ComponentLedger),
	}
}

// chargeDue reports whether lease owes this month's rent on today, and the
// day the charge belongs to. The due day is clamped to the month's last day
// so a lease due on the 31st is still charged in February.
func chargeDue(lease core.Lease, today core.Date) (core.Date, bool) {
	if lease.Status != core.LeaseActive || !lease.CoversDay(today) {
		return core.Date{}, false
	}
	chargeDay := core.ChargeDay(today.Year(), today.Month(), lease.MonthlyDueDate)
	if today.Before(chargeDay.Time) {
		return chargeDay, false
	}
	if !lease.LastChargedAt.IsZero() && core.BillingMonth(lease.LastChargedAt) == core.BillingMonth(today) {
		return chargeDay, false
	}
	return chargeDay, true
}

// ProcessDueCharges charges every chargeable lease whose due day has arrived
// this month. now is read as a calendar day in its own location. A lease that
// fails to charge is logged and skipped; the pass continues.
func (p *ChargeProcessor) ProcessDueCharges(ctx context.Context, now time.Time) (ChargeResult, error) {
	var res ChargeResult
	if p.store == nil {
		return res, errors.New("charge processor not properly initialized")
	}

	today := core.DateOf(now)
	leases, err := p.store.ListChargeableLeases(ctx, today)
	if err != nil {
		return res, fmt.Errorf("list chargeable leases: %w", err)
	}

	p.logger.InfoContext(ctx, "Processing rent charges",
		"total_active", len(leases),
		"processing_date", today.Key())

	for _, lease := range leases {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		chargeDay, due := chargeDue(lease, today)
		if !due {
			res.Skipped++
			continue
		}

		err := p.store.PostRentCharge(ctx, core.RentCharge{
			LeaseID:      lease.ID,
			BillingMonth: core.BillingMonth(chargeDay),
			Amount:       lease.RentAmount,
			ChargedOn:    chargeDay,
		})
		switch {
		case errors.Is(err, storage.ErrAlreadyCharged):
			res.Skipped++
			continue
		case err != nil:
			res.Failed++
			p.logger.ErrorContext(ctx, "Failed to post rent charge",
				log.FieldLeaseID, lease.ID,
				log.FieldMonth, core.BillingMonth(chargeDay),
				log.FieldError, err)
			continue
		}

		res.Charged++
		invalidateSummary(ctx, p.cache, p.logger, lease.ID)
	}

	p.logger.InfoContext(ctx, "Rent charge processing complete",
		"charged", res.Charged,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"total_checked", res.Checked)
	return res, nil
}

// invalidateSummary drops a cached summary. Cache failures are logged only.
func invalidateSummary(ctx context.Context, c SummaryCache, logger *log.Logger, leaseID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.Delete(ctx, SummaryKey(leaseID)); err != nil {
		logger.WarnContext(ctx, "Failed to invalidate dashboard cache",
			log.FieldLeaseID, leaseID,
			log.FieldError, err)
	}
}
