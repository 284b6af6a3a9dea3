/*
schedule.go - Rent/ownership schedule generation

PURPOSE:
  Generates the full payment plan for an account in one batch. For
  diminishing-ownership structures (musharaka, ijara) each period's payment
  is a level installment split into a principal component that buys out the
  bank's share and a rent component computed on the bank's remaining share
  (declining balance). For sale-based structures (murabaha, istisna) the
  profit is straight-line over the amortizing months.

THE LEVEL-PAYMENT FORMULA:
  r = annual rate / 12, n = amortizing months
  installment = P * r / (1 - (1+r)^-n)
  rent_i      = remaining_i * r
  principal_i = installment - rent_i

  Grace months come first and carry rent only (principal = 0, computed on
  the full outstanding principal).

ROUNDING:
  Every row is rounded to kobo. The final row absorbs the accumulated
  remainder so that the sum of principal components equals the financed
  amount EXACTLY and the last remaining balance is EXACTLY zero. This is an
  invariant, not a best effort.

DUE DATES:
  dueDate(i+1) = dueDate(i) + 1 calendar month, pinned to the payment day
  and clamped to the last day of shorter months.

SEE ALSO:
  - finance/dates.go: AddMonthsPinned
  - adjustment.go:    Regenerates schedules during restructuring
*/
package mortgage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/mortgage-engine/finance"
)

// ScheduleSpec is the full input to schedule generation.
type ScheduleSpec struct {
	Principal   finance.Money
	Equity      finance.Money
	TenorMonths int
	Rate        finance.Rate
	Structure   FinancingType
	StartDate   time.Time // date of activation; first due date is one month later
	PaymentDay  int       // day of month payments fall due (clamped)
	GraceMonths int
	Maintenance finance.Money // optional flat per-row maintenance component
}

// GenerateSchedule produces the ordered ScheduleItem sequence for the
// given ScheduleSpec.
// Row count = GraceMonths rent-only rows + (TenorMonths - GraceMonths)
// amortizing rows, in chronological order.
func GenerateSchedule(spec ScheduleSpec) ([]ScheduleItem, error) {
	if !spec.Principal.IsPositive() {
		return nil, &ValidationError{Entity: "schedule", Field: "principal", Reason: "principal must be positive"}
	}
	if spec.TenorMonths <= spec.GraceMonths {
		return nil, &ValidationError{Entity: "schedule", Field: "tenor", Reason: "tenor must exceed grace months: no amortizing rows would exist"}
	}
	if spec.GraceMonths < 0 {
		return nil, &ValidationError{Entity: "schedule", Field: "graceMonths", Reason: "grace months cannot be negative"}
	}
	if spec.Rate.IsNegative() {
		return nil, &ValidationError{Entity: "schedule", Field: "rate", Reason: "rate cannot be negative"}
	}
	if !spec.Structure.Valid() {
		return nil, &ValidationError{Entity: "schedule", Field: "structure", Reason: "unknown financing structure"}
	}
	paymentDay := spec.PaymentDay
	if paymentDay <= 0 {
		paymentDay = spec.StartDate.Day()
	}

	if spec.Structure.IsDiminishingOwnership() {
		return generateDecliningBalance(spec, paymentDay), nil
	}
	return generateStraightLine(spec, paymentDay), nil
}

// generateDecliningBalance builds the level-payment plan where rent is
// computed each month on the bank's unpurchased share.
func generateDecliningBalance(spec ScheduleSpec, paymentDay int) []ScheduleItem {
	monthly := spec.Rate.Monthly()
	amortMonths := spec.TenorMonths - spec.GraceMonths
	installment := levelInstallment(spec.Principal, monthly, amortMonths)

	items := make([]ScheduleItem, 0, spec.TenorMonths)
	remaining := spec.Principal
	cumulative := finance.ZeroMoney()
	due := spec.StartDate

	for i := 0; i < spec.TenorMonths; i++ {
		due = finance.AddMonthsPinned(due, 1, paymentDay)
		grace := i < spec.GraceMonths
		rent := remaining.Mul(monthly).Round2()

		var principal finance.Money
		if grace {
			principal = finance.ZeroMoney()
		} else if i == spec.TenorMonths-1 {
			// Final row absorbs the rounding remainder.
			principal = remaining
		} else {
			principal = installment.Sub(rent).Round2()
			if principal.GreaterThan(remaining) {
				principal = remaining
			}
		}

		remaining = remaining.Sub(principal)
		cumulative = cumulative.Add(principal)

		items = append(items, ScheduleItem{
			Sequence:            i + 1,
			DueDate:             due,
			Grace:               grace,
			Principal:           principal,
			Rent:                rent,
			Maintenance:         spec.Maintenance,
			Amount:              principal.Add(rent).Add(spec.Maintenance),
			CumulativePrincipal: cumulative,
			RemainingBalance:    remaining,
			Status:              PaymentPending,
			PaidAmount:          finance.ZeroMoney(),
			CarriedForward:      finance.ZeroMoney(),
		})
	}
	return items
}

// generateStraightLine builds the murabaha/istisna plan: equal principal
// portions with flat profit spread evenly over the amortizing months.
func generateStraightLine(spec ScheduleSpec, paymentDay int) []ScheduleItem {
	amortMonths := spec.TenorMonths - spec.GraceMonths
	months := decimal.NewFromInt(int64(amortMonths))
	years := decimal.NewFromInt(int64(spec.TenorMonths)).Div(decimal.NewFromInt(12))

	totalProfit := spec.Principal.Mul(spec.Rate.Annual).Mul(years)
	profitPerRow := totalProfit.Div(months).Round2()
	principalPerRow := spec.Principal.Div(months).Round2()

	// The amortizing-profit pool excludes grace rows: those charge the flat
	// monthly share on top, and the last amortizing row absorbs the
	// rounding remainder of the pool.
	lastProfit := totalProfit.Sub(profitPerRow.Mul(months.Sub(decimal.NewFromInt(1)))).Round2()

	items := make([]ScheduleItem, 0, spec.TenorMonths)
	remaining := spec.Principal
	cumulative := finance.ZeroMoney()
	due := spec.StartDate

	for i := 0; i < spec.TenorMonths; i++ {
		due = finance.AddMonthsPinned(due, 1, paymentDay)
		grace := i < spec.GraceMonths

		var principal, profit finance.Money
		switch {
		case grace:
			principal = finance.ZeroMoney()
			profit = profitPerRow
		case i == spec.TenorMonths-1:
			principal = remaining
			profit = lastProfit
		default:
			principal = principalPerRow
			profit = profitPerRow
		}

		remaining = remaining.Sub(principal)
		cumulative = cumulative.Add(principal)

		items = append(items, ScheduleItem{
			Sequence:            i + 1,
			DueDate:             due,
			Grace:               grace,
			Principal:           principal,
			Rent:                profit,
			Maintenance:         spec.Maintenance,
			Amount:              principal.Add(profit).Add(spec.Maintenance),
			CumulativePrincipal: cumulative,
			RemainingBalance:    remaining,
			Status:              PaymentPending,
			PaidAmount:          finance.ZeroMoney(),
			CarriedForward:      finance.ZeroMoney(),
		})
	}
	return items
}

// levelInstallment computes P * r / (1 - (1+r)^-n). A zero rate degrades
// to straight division.
func levelInstallment(principal finance.Money, monthlyRate decimal.Decimal, months int) finance.Money {
	n := decimal.NewFromInt(int64(months))
	if monthlyRate.IsZero() {
		return principal.Div(n)
	}
	one := decimal.NewFromInt(1)
	growth := one.Add(monthlyRate).Pow(n)      // (1+r)^n
	factor := one.Sub(one.Div(growth))         // 1 - (1+r)^-n
	return principal.Mul(monthlyRate).Div(factor)
}

// VerifyScheduleInvariants checks the generation-time invariants: principal
// components sum to the financed amount and the final balance is zero.
// Used by tests and by the adjustment engine before committing a
// replacement schedule.
func VerifyScheduleInvariants(items []ScheduleItem, principal finance.Money) error {
	if len(items) == 0 {
		return &ValidationError{Entity: "schedule", Reason: "empty schedule"}
	}
	sum := finance.ZeroMoney()
	for i := range items {
		sum = sum.Add(items[i].Principal)
	}
	if !sum.Equal(principal) {
		return &ValidationError{Entity: "schedule", Field: "principal",
			Reason: "principal components do not sum to financed amount"}
	}
	last := items[len(items)-1]
	if !last.RemainingBalance.IsZero() {
		return &ValidationError{Entity: "schedule", Field: "remainingBalance",
			Reason: "final remaining balance is not zero"}
	}
	if !last.CumulativePrincipal.Equal(principal) {
		return &ValidationError{Entity: "schedule", Field: "cumulativePrincipal",
			Reason: "final cumulative principal does not equal financed amount"}
	}
	for i := 1; i < len(items); i++ {
		if !items[i].DueDate.After(items[i-1].DueDate) {
			return &ValidationError{Entity: "schedule", Field: "dueDate",
				Reason: "due dates are not strictly increasing"}
		}
	}
	return nil
}
