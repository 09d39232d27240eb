// Package rentroll exports completed rent payments to a landlord-facing rent
// roll, one row per payment.
package rentroll

import (
	"context"

	"github.com/google/uuid"

	"rentdesk/internal/core"
)

// Header is the column layout of a rent roll sheet.
var Header = []string{"Date", "Lease", "Tenant", "Period start", "Period end", "Amount", "Reference", "Payment"}

// Row is one exported payment.
type Row struct {
	Date      core.Date
	LeaseID   uuid.UUID
	TenantID  uuid.UUID
	Period    core.Period
	Amount    core.Money
	Reference string
	PaymentID uuid.UUID
}

// Writer appends rows to a rent roll. Appending a payment that is already
// present returns the existing reference without writing a duplicate.
type Writer interface {
	AppendPayment(ctx context.Context, row Row) (ref string, err error)
}

// NewRow builds the rent roll row for a completed payment on lease.
func NewRow(lease core.Lease, p core.Payment, on core.Date) Row {
	return Row{
		Date:      on,
		LeaseID:   lease.ID,
		TenantID:  lease.TenantID,
		Period:    p.Period,
		Amount:    p.Amount,
		Reference: p.Reference,
		PaymentID: p.ID,
	}
}

// Values renders the row in Header order. Untagged periods leave their
// cells blank.
func (r Row) Values() []any {
	return []any{
		r.Date.Key(),
		r.LeaseID.String(),
		r.TenantID.String(),
		r.Period.Start.Key(),
		r.Period.End.Key(),
		r.Amount.String(),
		r.Reference,
		r.PaymentID.String(),
	}
}
