package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	LeasePending  LeaseStatus = "PENDING"
	LeaseActive   LeaseStatus = "ACTIVE"
	LeaseRejected LeaseStatus = "REJECTED"
	LeaseArchived LeaseStatus = "ARCHIVED"
)

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// DateKeyLayout is the canonical date-only form used for grouping and storage.
const DateKeyLayout = "2006-01-02"

// DisplayDateLayout is the human-readable form used in dashboard text.
const DisplayDateLayout = "Jan 2, 2006"

type (
	LeaseStatus   string
	PaymentStatus string

	// Date is a calendar day. The wrapped time is always midnight UTC.
	Date struct {
		time.Time
	}

	// Period is the billing cycle a payment is attributed to. A period is
	// tagged only when both boundaries are set.
	Period struct {
		Start Date
		End   Date
	}

	Lease struct {
		ID         uuid.UUID
		TenantID   uuid.UUID
		LandlordID uuid.UUID
		ListingID  uuid.UUID

		RentAmount     Money
		MonthlyDueDate int // day of month, 1-31

		// OutstandingBalance is the authoritative ledger value. Negative means
		// the tenant holds a credit.
		OutstandingBalance Money

		StartDate     Date
		EndDate       Date // zero for open-ended leases
		Status        LeaseStatus
		LastChargedAt Date // zero until the first rent charge is posted
		CreatedAt     time.Time
	}

	Payment struct {
		ID        uuid.UUID
		LeaseID   uuid.UUID
		Amount    Money
		Status    PaymentStatus
		Period    Period
		Reference string
		CreatedAt time.Time
	}
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDueDay     = errors.New("monthly due date must be between 1 and 31")
	ErrInvalidPeriod     = errors.New("invalid billing period")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingID         = errors.New("missing identifier")
)

// NewDate creates a new Date from year, month, day. Out-of-range days roll
// over into the following month the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as seen in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp. Timestamps keep the
// calendar day of their own offset.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if t, err := time.Parse(DateKeyLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// Key returns the canonical YYYY-MM-DD form, or "" for the zero date.
func (d Date) Key() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateKeyLayout)
}

// Display returns the date formatted for dashboard text (e.g. "Jan 31, 2024").
func (d Date) Display() string {
	return d.Format(DisplayDateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// IsTagged reports whether both period boundaries are set.
func (p Period) IsTagged() bool {
	return !p.Start.IsZero() && !p.End.IsZero()
}

// IsEmpty reports whether neither boundary is set.
func (p Period) IsEmpty() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

func (p Period) Validate() error {
	if p.IsEmpty() {
		return nil
	}
	if !p.IsTagged() {
		return fmt.Errorf("%w: both start and end are required", ErrInvalidPeriod)
	}
	if p.End.Before(p.Start.Time) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidPeriod, p.End.Key(), p.Start.Key())
	}
	return nil
}

// ParseLeaseStatus parses a lease status case-insensitively.
func ParseLeaseStatus(s string) (LeaseStatus, error) {
	st := LeaseStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: lease status %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s LeaseStatus) IsValid() bool {
	switch s {
	case LeasePending, LeaseActive, LeaseRejected, LeaseArchived:
		return true
	default:
		return false
	}
}

// ParsePaymentStatus parses a payment status case-insensitively.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: payment status %q", ErrInvalidStatus, s)
	}
	return st, nil
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentCancelled:
		return true
	default:
		return false
	}
}

// paymentTransitions lists the statuses reachable from each status.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed, PaymentCancelled},
	PaymentCompleted: {PaymentCancelled},
}

// CanTransitionTo reports whether a payment may move from s to next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TaggedPeriod returns the payment's billing period and whether it is tagged.
// Untagged payments still count toward totals but never toward period logic.
func (p Payment) TaggedPeriod() (Period, bool) {
	if !p.Period.IsTagged() {
		return Period{}, false
	}
	return p.Period, true
}

func (p Payment) Validate() error {
	if p.LeaseID == uuid.Nil {
		return fmt.Errorf("%w: lease", ErrMissingID)
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("%w: payment status %q", ErrInvalidStatus, p.Status)
	}
	if err := p.Period.Validate(); err != nil {
		return err
	}
	if len(p.Reference) > 120 {
		return errors.New("reference too long (max 120 characters)")
	}
	return nil
}

func (l Lease) Validate() error {
	if l.TenantID == uuid.Nil {
		return fmt.Errorf("%w: tenant", ErrMissingID)
	}
	if l.LandlordID == uuid.Nil {
		return fmt.Errorf("%w: landlord", ErrMissingID)
	}
	if err := l.RentAmount.Validate(); err != nil {
		return fmt.Errorf("rent amount: %w", err)
	}
	if l.MonthlyDueDate < 1 || l.MonthlyDueDate > 31 {
		return ErrInvalidDueDay
	}
	if err := l.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if !l.EndDate.IsZero() && l.EndDate.Before(l.StartDate.Time) {
		return errors.New("end date must not be before start date")
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("%w: lease status %q", ErrInvalidStatus, l.Status)
	}
	return nil
}

// CoversDay reports whether the lease term includes d.
func (l Lease) CoversDay(d Date) bool {
	if d.Before(l.StartDate.Time) {
		return false
	}
	return l.EndDate.IsZero() || !d.After(l.EndDate.Time)
}
