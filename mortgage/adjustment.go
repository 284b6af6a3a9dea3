/*
adjustment.go - Term restructuring

PURPOSE:
  Request/approve flow for mid-life changes to the payment plan. Every
  adjustment is a pending record until a second officer approves it; the
  approval rebuilds the unpaid tail of the schedule on a clone and commits
  atomically. A failed rebuild leaves the account byte-for-byte unchanged.

ADJUSTMENT TYPES:
  extension  - new (longer) total tenor, remaining principal re-amortized
  reduction  - higher fixed installment, tenor shortened to match
  prepayment - lump sum buys ownership immediately, tail re-amortized
  deferral   - a window of installments pushed out, maturity extended
  waiver     - one installment forgiven outright

TAIL REBUILD RULE:
  Settled rows are history and never change. Rebuild requires that no
  unsettled row carries a partial posting - partial arrears must first be
  cleared or waived, otherwise the re-amortization could not reconcile paid
  principal exactly.

MAKER-CHECKER:
  The approving officer must differ from the requesting officer.

SEE ALSO:
  - schedule.go: The generator reused for tail rebuilds
  - ledger.go:   Delinquency refresh applied after every rebuild
*/
package mortgage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// ADJUSTMENT SERVICE
// =============================================================================

type AdjustmentService struct {
	Accounts AccountRepository
	Clock    finance.Clock
	Policy   DelinquencyPolicy
}

func NewAdjustmentService(accounts AccountRepository, clock finance.Clock) *AdjustmentService {
	return &AdjustmentService{Accounts: accounts, Clock: clock, Policy: DefaultDelinquencyPolicy()}
}

// RequestAdjustment records a pending restructuring request. Nothing about
// the schedule changes until approval.
func (s *AdjustmentService) RequestAdjustment(ctx context.Context, accountID AccountID, typ AdjustmentType, params AdjustmentParams, reason, requestedBy string) (*TermAdjustment, error) {
	if !typ.Valid() {
		return nil, &ValidationError{Entity: "adjustment", Field: "type", Reason: "unknown adjustment type"}
	}
	if requestedBy == "" {
		return nil, &ValidationError{Entity: "adjustment", Field: "requestedBy", Reason: "requesting officer is required"}
	}
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Status == AccountClosed {
		return nil, &InvalidTransitionError{Entity: "account", From: string(acct.Status), To: string(AccountActive),
			Reason: "account is closed"}
	}
	if err := validateParams(typ, params); err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	adj := TermAdjustment{
		ID:            "adj-" + uuid.NewString(),
		AccountID:     accountID,
		Type:          typ,
		Status:        AdjustmentPending,
		EffectiveDate: now,
		Params:        params,
		Reason:        reason,
		RequestedBy:   requestedBy,
		RequestedAt:   now,
	}
	working := acct.Clone()
	working.Adjustments = append(working.Adjustments, adj)
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return &adj, nil
}

// Approve applies a pending adjustment to the schedule. The approving
// officer must not be the requester.
func (s *AdjustmentService) Approve(ctx context.Context, accountID AccountID, adjustmentID, approver string) (*MortgageAccount, error) {
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	working := acct.Clone()
	adj := adjustmentByID(working, adjustmentID)
	if adj == nil {
		return nil, &NotFoundError{Kind: "adjustment", ID: adjustmentID}
	}
	if adj.Status != AdjustmentPending {
		return nil, &InvalidTransitionError{Entity: "adjustment", From: string(adj.Status), To: string(AdjustmentApproved),
			Reason: "only pending adjustments can be approved"}
	}
	if approver == "" || approver == adj.RequestedBy {
		return nil, &ValidationError{Entity: "adjustment", Field: "decidedBy",
			Reason: "approving officer must differ from the requesting officer"}
	}

	now := s.Clock.Now()
	if err := s.apply(working, adj, now); err != nil {
		return nil, err
	}

	adj.Status = AdjustmentApproved
	adj.DecidedBy = approver
	adj.DecidedAt = &now

	recomputeCarry(working, now)
	refreshDelinquency(working, now, s.Policy)

	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// Reject closes a pending adjustment without touching the schedule.
func (s *AdjustmentService) Reject(ctx context.Context, accountID AccountID, adjustmentID, approver, reason string) (*TermAdjustment, error) {
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	working := acct.Clone()
	adj := adjustmentByID(working, adjustmentID)
	if adj == nil {
		return nil, &NotFoundError{Kind: "adjustment", ID: adjustmentID}
	}
	if adj.Status != AdjustmentPending {
		return nil, &InvalidTransitionError{Entity: "adjustment", From: string(adj.Status), To: string(AdjustmentRejected),
			Reason: "only pending adjustments can be rejected"}
	}
	now := s.Clock.Now()
	adj.Status = AdjustmentRejected
	adj.DecidedBy = approver
	adj.DecidedAt = &now
	if reason != "" {
		adj.Reason = reason
	}
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return adj, nil
}

func adjustmentByID(acct *MortgageAccount, id string) *TermAdjustment {
	for i := range acct.Adjustments {
		if acct.Adjustments[i].ID == id {
			return &acct.Adjustments[i]
		}
	}
	return nil
}

func validateParams(typ AdjustmentType, p AdjustmentParams) error {
	switch typ {
	case AdjustmentExtension:
		if p.NewTenorMonths <= 0 {
			return &ValidationError{Entity: "adjustment", Field: "newTenorMonths", Reason: "new tenor is required"}
		}
	case AdjustmentReduction:
		if !p.NewInstallment.IsPositive() {
			return &ValidationError{Entity: "adjustment", Field: "newInstallment", Reason: "new installment must be positive"}
		}
	case AdjustmentPrepayment:
		if !p.LumpSum.IsPositive() {
			return &ValidationError{Entity: "adjustment", Field: "lumpSum", Reason: "lump sum must be positive"}
		}
	case AdjustmentDeferral:
		if p.DeferFromSeq <= 0 || p.DeferToSeq < p.DeferFromSeq {
			return &ValidationError{Entity: "adjustment", Field: "deferFromSeq", Reason: "deferral window is invalid"}
		}
	case AdjustmentWaiver:
		if p.WaiveSeq <= 0 {
			return &ValidationError{Entity: "adjustment", Field: "waiveSeq", Reason: "installment to waive is required"}
		}
	}
	return nil
}

// =============================================================================
// APPLICATION OF EACH TYPE
// =============================================================================

func (s *AdjustmentService) apply(acct *MortgageAccount, adj *TermAdjustment, now time.Time) error {
	switch adj.Type {
	case AdjustmentExtension:
		return applyExtension(acct, adj.Params.NewTenorMonths)
	case AdjustmentReduction:
		return applyReduction(acct, adj.Params.NewInstallment)
	case AdjustmentPrepayment:
		return applyPrepayment(acct, adj.Params.LumpSum, now)
	case AdjustmentDeferral:
		return applyDeferral(acct, adj.Params.DeferFromSeq, adj.Params.DeferToSeq)
	case AdjustmentWaiver:
		return applyWaiver(acct, adj.Params.WaiveSeq)
	}
	return &ValidationError{Entity: "adjustment", Field: "type", Reason: "unknown adjustment type"}
}

// tailBoundary returns the index of the first rebuildable row. Settled rows
// form the immutable prefix; an unsettled row with a partial posting blocks
// the rebuild.
func tailBoundary(acct *MortgageAccount) (int, error) {
	boundary := 0
	for i := range acct.Schedule {
		row := &acct.Schedule[i]
		if row.Settled() {
			boundary = i + 1
			continue
		}
		if row.PaidAmount.IsPositive() {
			return 0, &ValidationError{Entity: "adjustment", Field: "schedule",
				Reason: "partially paid installments must be cleared or waived before restructuring"}
		}
	}
	if boundary >= len(acct.Schedule) {
		return 0, &ValidationError{Entity: "adjustment", Field: "schedule", Reason: "no unpaid installments remain"}
	}
	return boundary, nil
}

// rebuildTail replaces everything from boundary onward with a freshly
// generated plan over the remaining scheduled principal.
func rebuildTail(acct *MortgageAccount, boundary, tailMonths int, principal finance.Money) error {
	startDate := acct.ActivatedAt
	if boundary > 0 {
		startDate = acct.Schedule[boundary-1].DueDate
	}
	tail, err := GenerateSchedule(ScheduleSpec{
		Principal:   principal,
		Equity:      acct.EquityContribution,
		TenorMonths: tailMonths,
		Rate:        acct.RentRate,
		Structure:   acct.FinancingType,
		StartDate:   startDate,
		PaymentDay:  acct.PaymentDay,
		GraceMonths: 0,
	})
	if err != nil {
		return err
	}
	graftTail(acct, boundary, tail)
	return nil
}

// graftTail splices the regenerated rows after the kept prefix, fixing up
// sequence numbers and the cumulative/remaining columns so whole-schedule
// invariants still hold.
func graftTail(acct *MortgageAccount, boundary int, tail []ScheduleItem) {
	prefix := acct.Schedule[:boundary]
	cumulative := finance.ZeroMoney()
	if boundary > 0 {
		cumulative = prefix[boundary-1].CumulativePrincipal
	}
	seq := 1
	if boundary > 0 {
		seq = prefix[boundary-1].Sequence + 1
	}
	for i := range tail {
		tail[i].Sequence = seq + i
		tail[i].CumulativePrincipal = cumulative.Add(tail[i].CumulativePrincipal)
	}
	acct.Schedule = append(append([]ScheduleItem(nil), prefix...), tail...)
	acct.TenorMonths = len(acct.Schedule)
}

// scheduledRemaining is the principal the kept prefix has not yet
// amortized. Distinct from cash outstanding: a waived row's principal stays
// owed but is not rescheduled.
func scheduledRemaining(acct *MortgageAccount, boundary int) finance.Money {
	if boundary == 0 {
		return acct.PrincipalAmount
	}
	return acct.Schedule[boundary-1].RemainingBalance
}

func applyExtension(acct *MortgageAccount, newTenor int) error {
	if newTenor <= acct.TenorMonths {
		return &ValidationError{Entity: "adjustment", Field: "newTenorMonths", Reason: "extension must lengthen the tenor"}
	}
	boundary, err := tailBoundary(acct)
	if err != nil {
		return err
	}
	tailMonths := newTenor - boundary
	return rebuildTail(acct, boundary, tailMonths, scheduledRemaining(acct, boundary))
}

// applyReduction fixes the installment and lets the tenor fall out of it:
// rows are simulated month by month until the balance is exhausted.
func applyReduction(acct *MortgageAccount, installment finance.Money) error {
	boundary, err := tailBoundary(acct)
	if err != nil {
		return err
	}
	remaining := scheduledRemaining(acct, boundary)
	monthly := acct.RentRate.Monthly()

	firstRent := remaining.Mul(monthly).Round2()
	if !installment.GreaterThan(firstRent) {
		return &ValidationError{Entity: "adjustment", Field: "newInstallment",
			Reason: "installment does not exceed the rent on the outstanding share"}
	}

	startDate := acct.ActivatedAt
	if boundary > 0 {
		startDate = acct.Schedule[boundary-1].DueDate
	}

	var tail []ScheduleItem
	cumulative := finance.ZeroMoney()
	due := startDate
	for !remaining.IsZero() {
		if len(tail) >= 1200 {
			return &ValidationError{Entity: "adjustment", Field: "newInstallment",
				Reason: "installment amortizes too slowly"}
		}
		due = finance.AddMonthsPinned(due, 1, acct.PaymentDay)
		rent := remaining.Mul(monthly).Round2()
		principal := installment.Sub(rent).Round2().Min(remaining)
		remaining = remaining.Sub(principal)
		cumulative = cumulative.Add(principal)
		tail = append(tail, ScheduleItem{
			DueDate:             due,
			Principal:           principal,
			Rent:                rent,
			Amount:              principal.Add(rent),
			CumulativePrincipal: cumulative,
			RemainingBalance:    remaining,
			Status:              PaymentPending,
			PaidAmount:          finance.ZeroMoney(),
			CarriedForward:      finance.ZeroMoney(),
		})
	}
	graftTail(acct, boundary, tail)
	return nil
}

// applyPrepayment records an immediate ownership purchase as a settled
// schedule row, then re-amortizes the reduced balance over the original
// remaining term.
func applyPrepayment(acct *MortgageAccount, lumpSum finance.Money, now time.Time) error {
	boundary, err := tailBoundary(acct)
	if err != nil {
		return err
	}
	remaining := scheduledRemaining(acct, boundary)
	if lumpSum.GreaterOrEqual(remaining) {
		return &ValidationError{Entity: "adjustment", Field: "lumpSum",
			Reason: "lump sum clears the balance: use an early-settlement quote instead"}
	}
	if boundary > 0 && !finance.Truncate(now).After(acct.Schedule[boundary-1].DueDate) {
		return &ValidationError{Entity: "adjustment", Field: "effectiveDate",
			Reason: "prepayment must fall after the last settled installment"}
	}

	tailMonths := len(acct.Schedule) - boundary
	prepayRow := ScheduleItem{
		DueDate:             finance.Truncate(now),
		Principal:           lumpSum,
		Rent:                finance.ZeroMoney(),
		Amount:              lumpSum,
		CumulativePrincipal: lumpSum,
		RemainingBalance:    remaining.Sub(lumpSum),
		Status:              PaymentPaid,
		PaidAmount:          lumpSum,
	}

	// Graft the settled prepayment row first, then the re-amortized tail
	// behind it.
	graftTail(acct, boundary, []ScheduleItem{prepayRow})
	return rebuildTail(acct, boundary+1, tailMonths, remaining.Sub(lumpSum))
}

// applyDeferral pushes every installment from the window start onward out
// by the window length. Amounts are untouched; maturity extends.
func applyDeferral(acct *MortgageAccount, fromSeq, toSeq int) error {
	months := toSeq - fromSeq + 1
	found := false
	for i := range acct.Schedule {
		row := &acct.Schedule[i]
		if row.Sequence < fromSeq {
			continue
		}
		if row.Sequence <= toSeq {
			if row.Settled() || row.PaidAmount.IsPositive() {
				return &ValidationError{Entity: "adjustment", Field: "deferFromSeq",
					Reason: "deferral window contains installments with postings"}
			}
			found = true
		}
		row.DueDate = finance.AddMonthsPinned(row.DueDate, months, acct.PaymentDay)
		if row.Status == PaymentOverdue {
			row.Status = PaymentPending
		}
	}
	if !found {
		return &NotFoundError{Kind: "schedule item", ID: seqID(acct.ID, fromSeq)}
	}
	return nil
}

// applyWaiver forgives a single unsettled installment. The row keeps its
// amounts for the record but needs no further payment; its principal stays
// owed in cash terms and surfaces in the settlement quote.
func applyWaiver(acct *MortgageAccount, seq int) error {
	row := scheduleRow(acct, seq)
	if row == nil {
		return &NotFoundError{Kind: "schedule item", ID: seqID(acct.ID, seq)}
	}
	if row.Settled() {
		return &ValidationError{Entity: "adjustment", Field: "waiveSeq", Reason: "installment is already settled"}
	}
	row.Status = PaymentWaived
	row.CarriedForward = finance.ZeroMoney()
	return nil
}
