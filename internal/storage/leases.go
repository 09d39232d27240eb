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

const leaseColumns = `id, tenant_id, landlord_id, listing_id, rent_amount_cents, monthly_due_date,
	outstanding_balance_cents, start_date, end_date, status, last_charged_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLease(row rowScanner) (core.Lease, error) {
	var (
		l                                 core.Lease
		id, tenantID, landlordID, listing string
		rent, balance                     int64
		start, status, created            string
		end, lastCharged                  sql.NullString
	)
	if err := row.Scan(&id, &tenantID, &landlordID, &listing, &rent, &l.MonthlyDueDate,
		&balance, &start, &end, &status, &lastCharged, &created); err != nil {
		return core.Lease{}, err
	}

	var err error
	if l.ID, err = uuid.Parse(id); err != nil {
		return core.Lease{}, fmt.Errorf("lease id %q: %w", id, err)
	}
	if l.TenantID, err = uuid.Parse(tenantID); err != nil {
		return core.Lease{}, fmt.Errorf("lease %s tenant id: %w", id, err)
	}
	if l.LandlordID, err = uuid.Parse(landlordID); err != nil {
		return core.Lease{}, fmt.Errorf("lease %s landlord id: %w", id, err)
	}
	if listing != "" {
		if l.ListingID, err = uuid.Parse(listing); err != nil {
			return core.Lease{}, fmt.Errorf("lease %s listing id: %w", id, err)
		}
	}
	if l.StartDate, err = core.ParseDate(start); err != nil {
		return core.Lease{}, fmt.Errorf("lease %s start date: %w", id, err)
	}
	if l.EndDate, err = core.ParseDate(end.String); err != nil {
		return core.Lease{}, fmt.Errorf("lease %s end date: %w", id, err)
	}
	if l.LastChargedAt, err = core.ParseDate(lastCharged.String); err != nil {
		return core.Lease{}, fmt.Errorf("lease %s last charged: %w", id, err)
	}
	if l.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
		return core.Lease{}, fmt.Errorf("lease %s created at: %w", id, err)
	}

	l.RentAmount = core.Cents(rent)
	l.OutstandingBalance = core.Cents(balance)
	l.Status = core.LeaseStatus(status)
	return l, nil
}

// CreateLease stores a new lease. A nil ID is replaced with a fresh UUID and an
// empty status defaults to PENDING.
func (r *SQLiteRepository) CreateLease(ctx context.Context, l core.Lease) (core.Lease, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = core.LeasePending
	}
	if err := l.Validate(); err != nil {
		return core.Lease{}, fmt.Errorf("validate lease: %w", err)
	}
	l.CreatedAt = r.now().UTC().Round(0)

	listing := ""
	if l.ListingID != uuid.Nil {
		listing = l.ListingID.String()
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO leases (`+leaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.TenantID.String(), l.LandlordID.String(), listing,
		l.RentAmount.Cents, l.MonthlyDueDate, l.OutstandingBalance.Cents,
		l.StartDate.Key(), nullDate(l.EndDate), string(l.Status), nullDate(l.LastChargedAt),
		l.CreatedAt.Format(timestampLayout))
	if err != nil {
		return core.Lease{}, fmt.Errorf("insert lease: %w", err)
	}

	r.logger.InfoContext(ctx, "Lease saved",
		log.FieldLeaseID, l.ID,
		log.FieldTenantID, l.TenantID,
		log.FieldLandlordID, l.LandlordID,
		log.FieldStatus, l.Status)
	return l, nil
}

// GetLease returns the lease with the given ID or ErrNotFound.
func (r *SQLiteRepository) GetLease(ctx context.Context, id uuid.UUID) (core.Lease, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+leaseColumns+` FROM leases WHERE id = ?`, id.String())
	l, err := scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Lease{}, fmt.Errorf("lease %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Lease{}, fmt.Errorf("get lease: %w", err)
	}
	return l, nil
}

// GetActiveLeaseForTenant returns the tenant's ACTIVE lease. When several are
// active the most recently started wins. ErrNotFound means the tenant has none.
func (r *SQLiteRepository) GetActiveLeaseForTenant(ctx context.Context, tenantID uuid.UUID) (core.Lease, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+leaseColumns+` FROM leases
		WHERE tenant_id = ? AND status = ?
		ORDER BY start_date DESC, created_at DESC
		LIMIT 1`, tenantID.String(), string(core.LeaseActive))
	l, err := scanLease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Lease{}, fmt.Errorf("active lease for tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return core.Lease{}, fmt.Errorf("get active lease: %w", err)
	}
	return l, nil
}

// ListLeasesByLandlord returns every lease owned by a landlord, oldest first.
func (r *SQLiteRepository) ListLeasesByLandlord(ctx context.Context, landlordID uuid.UUID) ([]core.Lease, error) {
	return r.queryLeases(ctx, `SELECT `+leaseColumns+` FROM leases
		WHERE landlord_id = ?
		ORDER BY start_date, created_at`, landlordID.String())
}

// ListChargeableLeases returns ACTIVE leases whose term covers day.
func (r *SQLiteRepository) ListChargeableLeases(ctx context.Context, day core.Date) ([]core.Lease, error) {
	key := day.Key()
	return r.queryLeases(ctx, `SELECT `+leaseColumns+` FROM leases
		WHERE status = ?
		  AND start_date <= ?
		  AND (end_date IS NULL OR end_date >= ?)
		ORDER BY id`, string(core.LeaseActive), key, key)
}

func (r *SQLiteRepository) queryLeases(ctx context.Context, query string, args ...any) ([]core.Lease, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leases: %w", err)
	}
	defer rows.Close()

	var leases []core.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leases: %w", err)
	}
	return leases, nil
}

// UpdateLeaseStatus moves a lease to a new status.
func (r *SQLiteRepository) UpdateLeaseStatus(ctx context.Context, id uuid.UUID, status core.LeaseStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("lease status %q: %w", status, core.ErrInvalidStatus)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE leases SET status = ? WHERE id = ?`, string(status), id.String())
	if err != nil {
		return fmt.Errorf("update lease status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lease %s: %w", id, ErrNotFound)
	}
	r.logger.InfoContext(ctx, "Lease status updated", log.FieldLeaseID, id, log.FieldStatus, status)
	return nil
}
