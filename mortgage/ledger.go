/*
ledger.go - Payment recording and delinquency detection

PURPOSE:
  Applies customer payments to the schedule and keeps the account's
  delinquency state honest. Recording is the only way schedule rows change
  status; the aggregate is mutated on a clone and committed atomically.

APPLICATION ORDER:
  A payment is matched against the row it targets. An exact amount settles
  that row; a short amount leaves it partially paid with the shortfall
  carried forward; an overpayment cascades into the next unpaid rows, in
  order. Earlier arrears are never raided - clearing them takes a payment
  targeted at them.

CARRY-FORWARD:
  After every application the carried-forward column is recomputed from
  scratch by walking the schedule in order. Unpaid past-due amounts roll
  into the next row's effective due; the stored Amount of a row never
  changes once generated.

DELINQUENCY:
  A row past its due date with nothing paid is overdue. A run of
  consecutive fully-missed rows at or beyond the policy limit opens a
  DefaultRecord and moves the account to default. The open record resolves
  only when every overdue item is cleared and the account returns to
  active (or closes). At most one DefaultRecord is ever open.

SEE ALSO:
  - account.go:  Derived balances, penalties, settlement quote
  - schedule.go: Where the rows come from
*/
package mortgage

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// LEDGER SERVICE
// =============================================================================

type LedgerService struct {
	Accounts AccountRepository
	Clock    finance.Clock
	Policy   DelinquencyPolicy
}

func NewLedgerService(accounts AccountRepository, clock finance.Clock) *LedgerService {
	return &LedgerService{Accounts: accounts, Clock: clock, Policy: DefaultDelinquencyPolicy()}
}

// PaymentInput is one inbound payment against one schedule row.
type PaymentInput struct {
	ScheduleSeq int
	Amount      finance.Money
	Method      PaymentMethod
	Reference   string
	PostedBy    string
}

// RecordPayment applies a payment, producing exactly one PaymentRecord.
// The external reference is the idempotency key: a repeated reference is a
// DuplicateReferenceError, never a double-post.
func (s *LedgerService) RecordPayment(ctx context.Context, accountID AccountID, in PaymentInput) (*MortgageAccount, *PaymentRecord, error) {
	if !in.Amount.IsPositive() {
		return nil, nil, &ValidationError{Entity: "payment", Field: "amount", Reason: "amount must be positive"}
	}
	if in.Reference == "" {
		return nil, nil, &ValidationError{Entity: "payment", Field: "reference", Reason: "external reference is required"}
	}
	if !in.Method.Valid() {
		return nil, nil, &ValidationError{Entity: "payment", Field: "method", Reason: "unknown payment method"}
	}

	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if acct.Status == AccountClosed {
		return nil, nil, &InvalidTransitionError{Entity: "account", From: string(acct.Status), To: string(AccountActive),
			Reason: "account is closed"}
	}
	exists, err := s.Accounts.ReferenceExists(ctx, accountID, in.Reference)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, &DuplicateReferenceError{AccountID: accountID, Reference: in.Reference}
	}

	working := acct.Clone()
	target := scheduleRow(working, in.ScheduleSeq)
	if target == nil {
		return nil, nil, &NotFoundError{Kind: "schedule item", ID: seqID(accountID, in.ScheduleSeq)}
	}
	if target.Settled() {
		return nil, nil, &ValidationError{Entity: "payment", Field: "scheduleSeq", Reason: "targeted installment is already settled"}
	}

	now := s.Clock.Now()
	allocations := applyPayment(working, in.ScheduleSeq, in.Amount)
	recomputeCarry(working, now)
	refreshDelinquency(working, now, s.Policy)

	record := PaymentRecord{
		ID:          "pay-" + uuid.NewString(),
		AccountID:   accountID,
		ScheduleSeq: in.ScheduleSeq,
		Amount:      in.Amount,
		Method:      in.Method,
		Reference:   in.Reference,
		Status:      RecordProcessed,
		ProcessedAt: now,
		PostedBy:    in.PostedBy,
		Allocations: allocations,
	}
	working.Payments = append(working.Payments, record)

	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, nil, err
	}
	return working, &record, nil
}

// ReversePayment unwinds a processed posting with a compensating record.
// The original record is never edited; the reversal carries its own bank
// reference and un-credits exactly the rows the original credited.
func (s *LedgerService) ReversePayment(ctx context.Context, accountID AccountID, paymentID, reference, postedBy string) (*MortgageAccount, *PaymentRecord, error) {
	if reference == "" {
		return nil, nil, &ValidationError{Entity: "payment", Field: "reference", Reason: "external reference is required"}
	}
	exists, err := s.Accounts.ReferenceExists(ctx, accountID, reference)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, &DuplicateReferenceError{AccountID: accountID, Reference: reference}
	}

	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	working := acct.Clone()

	var original *PaymentRecord
	for i := range working.Payments {
		p := &working.Payments[i]
		if p.ID == paymentID {
			original = p
		}
		if p.ReversesID == paymentID {
			return nil, nil, &ValidationError{Entity: "payment", Field: "paymentId", Reason: "payment is already reversed"}
		}
	}
	if original == nil {
		return nil, nil, &NotFoundError{Kind: "payment", ID: paymentID}
	}
	if original.Status != RecordProcessed {
		return nil, nil, &ValidationError{Entity: "payment", Field: "paymentId", Reason: "only processed payments can be reversed"}
	}

	for _, alloc := range original.Allocations {
		row := scheduleRow(working, alloc.ScheduleSeq)
		if row == nil || row.PaidAmount.LessThan(alloc.Amount) {
			return nil, nil, &ValidationError{Entity: "payment", Field: "paymentId",
				Reason: "schedule has been restructured since this payment"}
		}
	}
	for _, alloc := range original.Allocations {
		row := scheduleRow(working, alloc.ScheduleSeq)
		row.PaidAmount = row.PaidAmount.Sub(alloc.Amount)
		if row.Status == PaymentWaived {
			continue
		}
		switch {
		case row.PaidAmount.GreaterOrEqual(row.Amount):
			row.Status = PaymentPaid
		case row.PaidAmount.IsPositive():
			row.Status = PaymentPartiallyPaid
		default:
			row.Status = PaymentPending
		}
	}

	now := s.Clock.Now()
	recomputeCarry(working, now)
	refreshDelinquency(working, now, s.Policy)

	record := PaymentRecord{
		ID:          "pay-" + uuid.NewString(),
		AccountID:   accountID,
		ScheduleSeq: original.ScheduleSeq,
		Amount:      original.Amount,
		Method:      original.Method,
		Reference:   reference,
		Status:      RecordReversed,
		ProcessedAt: now,
		PostedBy:    postedBy,
		ReversesID:  original.ID,
	}
	working.Payments = append(working.Payments, record)

	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, nil, err
	}
	return working, &record, nil
}

// Refresh re-derives overdue marks, default state, and carried-forward
// amounts without recording a payment. The nightly sweep calls this.
func (s *LedgerService) Refresh(ctx context.Context, accountID AccountID) (*MortgageAccount, error) {
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.Status == AccountClosed {
		return acct, nil
	}
	now := s.Clock.Now()
	working := acct.Clone()
	recomputeCarry(working, now)
	refreshDelinquency(working, now, s.Policy)
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// Quote returns the early-settlement figure as of now.
func (s *LedgerService) Quote(ctx context.Context, accountID AccountID) (*SettlementQuote, error) {
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	quote := acct.QuoteSettlement(s.Clock.Now(), s.Policy)
	return &quote, nil
}

// =============================================================================
// PAYMENT APPLICATION - pure helpers over the cloned aggregate
// =============================================================================

// applyPayment credits the targeted row first; any overpayment cascades
// forward into later unpaid rows. Rows before the target are untouched.
// The returned allocations record the per-row split for later reversal.
func applyPayment(acct *MortgageAccount, targetSeq int, amount finance.Money) []PaymentAllocation {
	remaining := amount
	var allocations []PaymentAllocation
	for i := range acct.Schedule {
		row := &acct.Schedule[i]
		if remaining.IsZero() {
			return allocations
		}
		if row.Sequence < targetSeq || row.Settled() {
			continue
		}
		before := remaining
		remaining = creditRow(row, remaining)
		if applied := before.Sub(remaining); applied.IsPositive() {
			allocations = append(allocations, PaymentAllocation{ScheduleSeq: row.Sequence, Amount: applied})
		}
	}
	// Anything still left after the final row is an overpayment beyond the
	// schedule; it stays visible on the last row's PaidAmount.
	if !remaining.IsZero() && len(acct.Schedule) > 0 {
		last := &acct.Schedule[len(acct.Schedule)-1]
		last.PaidAmount = last.PaidAmount.Add(remaining)
		if n := len(allocations); n > 0 && allocations[n-1].ScheduleSeq == last.Sequence {
			allocations[n-1].Amount = allocations[n-1].Amount.Add(remaining)
		} else {
			allocations = append(allocations, PaymentAllocation{ScheduleSeq: last.Sequence, Amount: remaining})
		}
	}
	return allocations
}

// creditRow pays down one row and returns the unconsumed remainder.
func creditRow(row *ScheduleItem, available finance.Money) finance.Money {
	owed := row.Amount.Sub(row.PaidAmount)
	if !owed.IsPositive() {
		return available
	}
	applied := available.Min(owed)
	row.PaidAmount = row.PaidAmount.Add(applied)

	if row.PaidAmount.GreaterOrEqual(row.Amount) {
		row.Status = PaymentPaid
	} else {
		row.Status = PaymentPartiallyPaid
	}
	return available.Sub(applied)
}

// recomputeCarry rebuilds the carried-forward column. Only rows already
// past due (fully or partially unpaid) roll forward; future rows carry the
// accumulated shortfall but contribute nothing themselves.
func recomputeCarry(acct *MortgageAccount, now time.Time) {
	today := finance.Truncate(now)
	acc := finance.ZeroMoney()
	for i := range acct.Schedule {
		row := &acct.Schedule[i]
		if row.Settled() {
			row.CarriedForward = finance.ZeroMoney()
			continue
		}
		row.CarriedForward = acc
		if row.DueDate.Before(today) {
			acc = acc.Add(row.Amount.Sub(row.PaidAmount))
		}
	}
}

// =============================================================================
// DELINQUENCY
// =============================================================================

// refreshDelinquency derives row statuses and the account-level default
// state from the schedule. Idempotent: calling it twice changes nothing.
func refreshDelinquency(acct *MortgageAccount, now time.Time, policy DelinquencyPolicy) {
	today := finance.Truncate(now)

	allSettled := len(acct.Schedule) > 0
	missedRun := 0
	for i := range acct.Schedule {
		row := &acct.Schedule[i]
		if row.Settled() {
			if row.Status != PaymentWaived {
				missedRun = 0
			}
			continue
		}
		allSettled = false
		if !row.DueDate.Before(today) {
			// Future or due today: not yet missed.
			continue
		}
		if row.PaidAmount.IsZero() {
			row.Status = PaymentOverdue
			missedRun++
		} else {
			// A partial payment breaks the consecutive-miss run.
			row.Status = PaymentPartiallyPaid
			missedRun = 0
		}
	}

	switch {
	case allSettled:
		if open := acct.OpenDefault(); open != nil {
			resolved := now
			open.ResolvedAt = &resolved
		}
		acct.Status = AccountClosed

	case missedRun >= policy.ConsecutiveMissLimit:
		acct.Status = AccountDefault
		if open := acct.OpenDefault(); open != nil {
			open.MissedCount = missedRun
		} else {
			acct.Defaults = append(acct.Defaults, DefaultRecord{
				ID:          "def-" + uuid.NewString(),
				AccountID:   acct.ID,
				OpenedAt:    now,
				MissedCount: missedRun,
			})
		}

	// A broken miss run demotes default to arrears, but the DefaultRecord
	// resolves only once every overdue item is cleared.
	case len(acct.OverdueItems(now)) > 0:
		acct.Status = AccountInArrears

	default:
		acct.Status = AccountActive
		closeOpenDefault(acct, now)
	}
}

func closeOpenDefault(acct *MortgageAccount, now time.Time) {
	if open := acct.OpenDefault(); open != nil {
		resolved := now
		open.ResolvedAt = &resolved
	}
}

func scheduleRow(acct *MortgageAccount, seq int) *ScheduleItem {
	for i := range acct.Schedule {
		if acct.Schedule[i].Sequence == seq {
			return &acct.Schedule[i]
		}
	}
	return nil
}

func seqID(accountID AccountID, seq int) string {
	return string(accountID) + "/" + strconv.Itoa(seq)
}
