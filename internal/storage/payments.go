package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
)

const paymentColumns = `id, lease_id, amount_cents, status, period_start, period_end, reference, created_at`

// scanPayment reads one payment row. A stored period that cannot be parsed is
// logged and dropped so the payment falls back to the untagged branch.
func (r *SQLiteRepository) scanPayment(ctx context.Context, row rowScanner) (core.Payment, error) {
	var (
		p                        core.Payment
		id, leaseID, status, ref string
		created                  string
		amount                   int64
		periodStart, periodEnd   sql.NullString
	)
	if err := row.Scan(&id, &leaseID, &amount, &status, &periodStart, &periodEnd, &ref, &created); err != nil {
		return core.Payment{}, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return core.Payment{}, fmt.Errorf("payment id %q: %w", id, err)
	}
	if p.LeaseID, err = uuid.Parse(leaseID); err != nil {
		return core.Payment{}, fmt.Errorf("payment %s lease id: %w", id, err)
	}
	if p.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return core.Payment{}, fmt.Errorf("payment %s created at: %w", id, err)
	}
	p.Amount = core.Cents(amount)
	p.Status = core.PaymentStatus(status)
	p.Reference = ref

	start, startErr := core.ParseDate(periodStart.String)
	end, endErr := core.ParseDate(periodEnd.String)
	if startErr != nil || endErr != nil {
		r.logger.WarnContext(ctx, "Ignoring malformed payment period",
			log.FieldPaymentID, id,
			"period_start", periodStart.String,
			"period_end", periodEnd.String,
			log.FieldError, errors.Join(startErr, endErr))
		return p, nil
	}
	p.Period = core.Period{Start: start, End: end}
	return p, nil
}

// CreatePayment records a payment against an existing lease. A payment stored
// directly as COMPLETED settles the ledger in the same transaction.
func (r *SQLiteRepository) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = core.PaymentPending
	}
	if err := p.Validate(); err != nil {
		return core.Payment{}, fmt.Errorf("validate payment: %w", err)
	}
	p.CreatedAt = r.now().UTC().Round(0)
	ts := p.CreatedAt.Format(timestampLayout)

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM leases WHERE id = ?`, p.LeaseID.String()).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lease %s: %w", p.LeaseID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check lease: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO payments (`+paymentColumns+`, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID.String(), p.LeaseID.String(), p.Amount.Cents, string(p.Status),
			nullDate(p.Period.Start), nullDate(p.Period.End), p.Reference, ts, ts); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if p.Status == core.PaymentCompleted {
			return adjustBalance(ctx, tx, p.LeaseID.String(), -p.Amount.Cents)
		}
		return nil
	})
	if err != nil {
		return core.Payment{}, err
	}

	r.logger.InfoContext(ctx, "Payment saved",
		log.NewFields().WithPayment(p.ID.String(), p.LeaseID.String(), p.Amount.Cents, string(p.Status)).ToSlice()...)
	return p, nil
}

// GetPayment returns the payment with the given ID or ErrNotFound.
func (r *SQLiteRepository) GetPayment(ctx context.Context, id uuid.UUID) (core.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
	p, err := r.scanPayment(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Payment{}, fmt.Errorf("payment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ListPaymentsByLease returns a lease's payments in submission order.
func (r *SQLiteRepository) ListPaymentsByLease(ctx context.Context, leaseID uuid.UUID) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE lease_id = ?
		ORDER BY created_at, id`, leaseID.String())
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	payments := []core.Payment{}
	for rows.Next() {
		p, err := r.scanPayment(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// UpdatePaymentStatus moves a payment to a new status and applies the ledger
// effect atomically: completing a payment decrements the lease balance by its
// amount, cancelling a completed one restores it.
func (r *SQLiteRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to core.PaymentStatus) (core.Payment, error) {
	if !to.IsValid() {
		return core.Payment{}, fmt.Errorf("payment status %q: %w", to, core.ErrInvalidStatus)
	}

	var (
		updated core.Payment
		from    core.PaymentStatus
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id.String())
		p, err := r.scanPayment(ctx, row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}

		from = p.Status
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("payment %s %s -> %s: %w", id, from, to, core.ErrInvalidTransition)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`,
			string(to), r.timestamp(), id.String()); err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		var delta int64
		switch {
		case to == core.PaymentCompleted:
			delta = -p.Amount.Cents
		case from == core.PaymentCompleted && to == core.PaymentCancelled:
			delta = p.Amount.Cents
		}
		if delta != 0 {
			if err := adjustBalance(ctx, tx, p.LeaseID.String(), delta); err != nil {
				return err
			}
		}

		p.Status = to
		updated = p
		return nil
	})
	if err != nil {
		return core.Payment{}, err
	}

	r.logger.InfoContext(ctx, "Payment status updated",
		log.FieldPaymentID, updated.ID,
		log.FieldLeaseID, updated.LeaseID,
		"from", from,
		log.FieldStatus, to)
	return updated, nil
}

// ListRecentPaymentsByStatus returns up to limit payments in status, most
// recently updated first.
func (r *SQLiteRepository) ListRecentPaymentsByStatus(ctx context.Context, status core.PaymentStatus, limit int) ([]core.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status = ?
		ORDER BY updated_at DESC, id
		LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []core.Payment
	for rows.Next() {
		p, err := r.scanPayment(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}
