package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rentdesk/internal/core"
	"rentdesk/internal/log"
)

// PostRentCharge records one month's rent against a lease, increments its
// balance and stamps LastChargedAt. A second charge for the same lease and
// billing month fails with ErrAlreadyCharged and changes nothing.
func (r *SQLiteRepository) PostRentCharge(ctx context.Context, c core.RentCharge) error {
	if c.LeaseID == uuid.Nil {
		return fmt.Errorf("rent charge: %w", core.ErrMissingID)
	}
	if err := c.Amount.Validate(); err != nil {
		return fmt.Errorf("rent charge: %w", err)
	}
	if c.BillingMonth == "" {
		c.BillingMonth = core.BillingMonth(c.ChargedOn)
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM rent_charges WHERE lease_id = ? AND billing_month = ?`,
			c.LeaseID.String(), c.BillingMonth).Scan(&exists)
		if err == nil {
			return fmt.Errorf("lease %s month %s: %w", c.LeaseID, c.BillingMonth, ErrAlreadyCharged)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check rent charge: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO rent_charges
			(lease_id, billing_month, amount_cents, charged_on, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			c.LeaseID.String(), c.BillingMonth, c.Amount.Cents, c.ChargedOn.Key(), r.timestamp()); err != nil {
			return fmt.Errorf("insert rent charge: %w", err)
		}

		if err := adjustBalance(ctx, tx, c.LeaseID.String(), c.Amount.Cents); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE leases SET last_charged_at = ? WHERE id = ?`,
			c.ChargedOn.Key(), c.LeaseID.String()); err != nil {
			return fmt.Errorf("stamp last charge: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Rent charge posted",
		log.FieldLeaseID, c.LeaseID,
		log.FieldMonth, c.BillingMonth,
		log.FieldAmountCents, c.Amount.Cents)
	return nil
}

// ListRentCharges returns the charges posted to a lease, oldest first.
func (r *SQLiteRepository) ListRentCharges(ctx context.Context, leaseID uuid.UUID) ([]core.RentCharge, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT billing_month, amount_cents, charged_on
		FROM rent_charges WHERE lease_id = ? ORDER BY billing_month`, leaseID.String())
	if err != nil {
		return nil, fmt.Errorf("query rent charges: %w", err)
	}
	defer rows.Close()

	var charges []core.RentCharge
	for rows.Next() {
		var (
			month, chargedOn string
			amount           int64
		)
		if err := rows.Scan(&month, &amount, &chargedOn); err != nil {
			return nil, fmt.Errorf("scan rent charge: %w", err)
		}
		day, err := core.ParseDate(chargedOn)
		if err != nil {
			return nil, fmt.Errorf("rent charge %s/%s: %w", leaseID, month, err)
		}
		charges = append(charges, core.RentCharge{
			LeaseID:      leaseID,
			BillingMonth: month,
			Amount:       core.Cents(amount),
			ChargedOn:    day,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rent charges: %w", err)
	}
	return charges, nil
}
