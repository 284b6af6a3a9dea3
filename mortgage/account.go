/*
account.go - The post-activation account aggregate and its read projection

PURPOSE:
  MortgageAccount is the durable entity created exactly once, when an
  application reaches lease_activated. It owns the schedule, the payment
  ledger, adjustment history, default records, and disbursements. All
  balances exposed to callers are derived from the schedule and ledger -
  there is no independently editable balance field.

DERIVED STATE:
  OutstandingPrincipal: principal not yet bought out
  OutstandingRent:      rent on unsettled rows
  OwnershipPercentage:  (equity + principal paid) / (equity + principal)
  OverdueDays:          now - earliest unresolved due date
  Penalties:            policy rate x overdue amount x overdue days

SEE ALSO:
  - ledger.go:     Mutates the aggregate through RecordPayment
  - adjustment.go: Replaces the schedule atomically
  - store.go:      Versioned persistence contract
*/
package mortgage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// ACCOUNT STATUS - Delinquency state machine
// =============================================================================

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInArrears AccountStatus = "in_arrears"
	AccountDefault   AccountStatus = "default"
	AccountClosed    AccountStatus = "closed"
)

// =============================================================================
// ACCOUNT AGGREGATE
// =============================================================================

type MortgageAccount struct {
	ID            AccountID     `json:"id"`
	ApplicationID ApplicationID `json:"applicationId"`
	CustomerID    CustomerID    `json:"customerId"`
	FinancingType FinancingType `json:"financingType"`

	PrincipalAmount    finance.Money      `json:"principalAmount"`
	EquityContribution finance.Money      `json:"equityContribution"`
	EquityPercentage   finance.Percentage `json:"equityPercentage"`
	TenorMonths        int                `json:"tenorMonths"`
	RentRate           finance.Rate       `json:"rentRate"`
	PaymentDay         int                `json:"paymentDay"`

	Status      AccountStatus `json:"status"`
	ActivatedAt time.Time     `json:"activatedAt"`

	Schedule      []ScheduleItem        `json:"schedule"`
	Payments      []PaymentRecord       `json:"payments"`
	Adjustments   []TermAdjustment      `json:"adjustments"`
	Defaults      []DefaultRecord       `json:"defaults"`
	Milestones    []ProjectMilestone    `json:"milestones,omitempty"`
	Disbursements []DisbursementRequest `json:"disbursements,omitempty"`

	// Version supports optimistic concurrency in the repository.
	Version int `json:"version"`
}

// Clone deep-copies the aggregate. Services mutate the copy and commit it
// through the repository; a failed commit leaves the original untouched.
func (a *MortgageAccount) Clone() *MortgageAccount {
	cp := *a
	cp.Schedule = append([]ScheduleItem(nil), a.Schedule...)
	cp.Payments = append([]PaymentRecord(nil), a.Payments...)
	cp.Adjustments = append([]TermAdjustment(nil), a.Adjustments...)
	cp.Defaults = append([]DefaultRecord(nil), a.Defaults...)
	cp.Milestones = append([]ProjectMilestone(nil), a.Milestones...)
	cp.Disbursements = append([]DisbursementRequest(nil), a.Disbursements...)
	return &cp
}

// =============================================================================
// DERIVED BALANCES
// =============================================================================

// PrincipalPaid sums principal components of settled rows plus the paid
// share of partially-paid rows attributed to principal last (rent clears
// first within a row).
func (a *MortgageAccount) PrincipalPaid() finance.Money {
	paid := finance.ZeroMoney()
	for i := range a.Schedule {
		item := &a.Schedule[i]
		switch {
		case item.Status == PaymentPaid:
			paid = paid.Add(item.Principal)
		case item.Status == PaymentWaived:
			// Waived rows do not transfer ownership.
		default:
			overRent := item.PaidAmount.Sub(item.Rent).Sub(item.Maintenance)
			if overRent.IsPositive() {
				paid = paid.Add(overRent.Min(item.Principal))
			}
		}
	}
	return paid
}

// OutstandingPrincipal is the bank's remaining (unpurchased) share.
func (a *MortgageAccount) OutstandingPrincipal() finance.Money {
	return a.PrincipalAmount.Sub(a.PrincipalPaid()).Max(finance.ZeroMoney())
}

// OutstandingRent is the rent due on rows that are not yet settled.
func (a *MortgageAccount) OutstandingRent() finance.Money {
	due := finance.ZeroMoney()
	for i := range a.Schedule {
		item := &a.Schedule[i]
		if item.Settled() {
			continue
		}
		remaining := item.Rent.Sub(item.PaidAmount.Min(item.Rent))
		due = due.Add(remaining.Max(finance.ZeroMoney()))
	}
	return due
}

// OwnershipPercentage is the customer's share of the property. For
// diminishing-ownership structures this is non-decreasing across processed
// payments: (equity + principal paid) / (equity + principal).
func (a *MortgageAccount) OwnershipPercentage() finance.Percentage {
	total := a.EquityContribution.Add(a.PrincipalAmount)
	owned := a.EquityContribution.Add(a.PrincipalPaid())
	return finance.NewPercentage(owned, total)
}

// OverdueItems returns unsettled rows whose due date has passed, in
// schedule order.
func (a *MortgageAccount) OverdueItems(now time.Time) []*ScheduleItem {
	var overdue []*ScheduleItem
	day := finance.Truncate(now)
	for i := range a.Schedule {
		item := &a.Schedule[i]
		if item.Settled() {
			continue
		}
		if finance.Truncate(item.DueDate).Before(day) {
			overdue = append(overdue, item)
		}
	}
	return overdue
}

// OverdueDays is derived on every read: days since the earliest unresolved
// due date, zero when current.
func (a *MortgageAccount) OverdueDays(now time.Time) int {
	overdue := a.OverdueItems(now)
	if len(overdue) == 0 {
		return 0
	}
	return finance.DaysBetween(overdue[0].DueDate, now)
}

// Penalties applies the policy's daily rate to each overdue row's unpaid
// amount for the days it has been late. Derived, never stored.
func (a *MortgageAccount) Penalties(now time.Time, policy DelinquencyPolicy) finance.Money {
	if policy.DailyPenaltyRate.IsZero() {
		return finance.ZeroMoney()
	}
	total := finance.ZeroMoney()
	for _, item := range a.OverdueItems(now) {
		days := finance.DaysBetween(item.DueDate, now)
		if days <= 0 {
			continue
		}
		unpaid := item.EffectiveDue().Max(finance.ZeroMoney())
		total = total.Add(unpaid.Mul(policy.DailyPenaltyRate.Annual).Mul(decimal.NewFromInt(int64(days))))
	}
	return total.Round2()
}

// NextDueItem returns the earliest unsettled row, or nil once the schedule
// is fully settled.
func (a *MortgageAccount) NextDueItem() *ScheduleItem {
	for i := range a.Schedule {
		if !a.Schedule[i].Settled() {
			return &a.Schedule[i]
		}
	}
	return nil
}

// OpenDefault returns the unresolved default record, if any.
func (a *MortgageAccount) OpenDefault() *DefaultRecord {
	for i := range a.Defaults {
		if a.Defaults[i].ResolvedAt == nil {
			return &a.Defaults[i]
		}
	}
	return nil
}

// MilestoneByID returns the milestone, or nil.
func (a *MortgageAccount) MilestoneByID(id string) *ProjectMilestone {
	for i := range a.Milestones {
		if a.Milestones[i].ID == id {
			return &a.Milestones[i]
		}
	}
	return nil
}

// DisbursedAgainst sums approved disbursements tied to a milestone.
func (a *MortgageAccount) DisbursedAgainst(milestoneID string) finance.Money {
	total := finance.ZeroMoney()
	for i := range a.Disbursements {
		d := &a.Disbursements[i]
		if d.MilestoneID == milestoneID && d.Status == DisbursementApproved {
			total = total.Add(d.Amount)
		}
	}
	return total
}

// =============================================================================
// SNAPSHOT - Read-only projection for dashboards
// =============================================================================

// AccountSnapshot is what display layers consume. It never exposes the
// mutable aggregate.
type AccountSnapshot struct {
	AccountID            AccountID          `json:"accountId"`
	Status               AccountStatus      `json:"status"`
	FinancingType        FinancingType      `json:"financingType"`
	PrincipalAmount      finance.Money      `json:"principalAmount"`
	OutstandingPrincipal finance.Money      `json:"outstandingPrincipal"`
	OutstandingRent      finance.Money      `json:"outstandingRent"`
	OwnershipPercentage  finance.Percentage `json:"ownershipPercentage"`
	OverdueDays          int                `json:"overdueDays"`
	Penalties            finance.Money      `json:"penalties"`
	NextDue              *ScheduleItem      `json:"nextDue,omitempty"`
	OpenDefault          *DefaultRecord     `json:"openDefault,omitempty"`
}

// Snapshot computes the projection against an explicit "now".
func (a *MortgageAccount) Snapshot(now time.Time, policy DelinquencyPolicy) AccountSnapshot {
	snap := AccountSnapshot{
		AccountID:            a.ID,
		Status:               a.Status,
		FinancingType:        a.FinancingType,
		PrincipalAmount:      a.PrincipalAmount,
		OutstandingPrincipal: a.OutstandingPrincipal(),
		OutstandingRent:      a.OutstandingRent(),
		OwnershipPercentage:  a.OwnershipPercentage(),
		OverdueDays:          a.OverdueDays(now),
		Penalties:            a.Penalties(now, policy),
	}
	if next := a.NextDueItem(); next != nil {
		item := *next
		snap.NextDue = &item
	}
	if open := a.OpenDefault(); open != nil {
		rec := *open
		snap.OpenDefault = &rec
	}
	return snap
}

// =============================================================================
// SETTLEMENT QUOTE - Early payoff, no mutation
// =============================================================================

// SettlementQuote is the payoff amount as of a date: the bank's remaining
// share plus rent accrued on it for the current (started) period.
type SettlementQuote struct {
	AccountID            AccountID     `json:"accountId"`
	AsOf                 time.Time     `json:"asOf"`
	OutstandingPrincipal finance.Money `json:"outstandingPrincipal"`
	AccruedRent          finance.Money `json:"accruedRent"`
	Penalties            finance.Money `json:"penalties"`
	Total                finance.Money `json:"total"`
}

// QuoteSettlement computes an early-payoff quote without touching state.
func (a *MortgageAccount) QuoteSettlement(now time.Time, policy DelinquencyPolicy) SettlementQuote {
	outstanding := a.OutstandingPrincipal()

	// Rent accrues for the in-progress month on the bank's residual share.
	accrued := finance.ZeroMoney()
	if next := a.NextDueItem(); next != nil {
		monthlyRent := outstanding.Mul(a.RentRate.Monthly())
		periodStart := finance.AddMonthsPinned(next.DueDate, -1, a.PaymentDay)
		elapsed := finance.DaysBetween(periodStart, now)
		if elapsed > 0 {
			span := finance.DaysBetween(periodStart, next.DueDate)
			if elapsed > span {
				elapsed = span
			}
			accrued = monthlyRent.
				Mul(decimal.NewFromInt(int64(elapsed))).
				Div(decimal.NewFromInt(int64(span))).
				Round2()
		}
	}

	penalties := a.Penalties(now, policy)
	return SettlementQuote{
		AccountID:            a.ID,
		AsOf:                 now,
		OutstandingPrincipal: outstanding,
		AccruedRent:          accrued,
		Penalties:            penalties,
		Total:                outstanding.Add(accrued).Add(penalties).Round2(),
	}
}
