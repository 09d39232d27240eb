package core

// Balance is the display form of a lease's outstanding balance.
type Balance struct {
	Amount      Money   // never negative
	Description *string // set only when the tenant holds a credit
}

// DashboardSummary holds the figures derived for a tenant dashboard.
type DashboardSummary struct {
	NextDueDate        *Date
	TotalPaid          Money
	PendingPayments    int
	OutstandingBalance Money
	BalanceDescription *string
	PaidPeriodRange    *string
}

// RentRollEntry pairs a lease with its reconciled summary.
type RentRollEntry struct {
	Lease   Lease
	Summary DashboardSummary
}
