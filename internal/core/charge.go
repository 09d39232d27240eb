package core

import (
	"time"

	"github.com/google/uuid"
)

// BillingMonthLayout is the storage form of a billing month.
const BillingMonthLayout = "2006-01"

// RentCharge is one month's rent posted to a lease's ledger.
type RentCharge struct {
	LeaseID      uuid.UUID
	BillingMonth string
	Amount       Money
	ChargedOn    Date
}

// BillingMonth returns the billing month key for d.
func BillingMonth(d Date) string {
	return d.Format(BillingMonthLayout)
}

// ChargeDay is the day rent is charged in the given month: the lease's due day,
// clamped to the last day of a short month. Unlike the displayed due date it
// never spills into the following month.
func ChargeDay(year int, month time.Month, dueDay int) Date {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay > last {
		dueDay = last
	}
	if dueDay < 1 {
		dueDay = 1
	}
	return NewDate(year, month, dueDay)
}
