/*
disbursement.go - Milestone-gated fund releases

PURPOSE:
  For construction financing (istisna) the principal is not released up
  front: it is paid out in tranches against project milestones. A milestone
  is planned, then verified by an inspector, and only then can funds be
  disbursed against it. Total approved disbursements per milestone never
  exceed the milestone's payment amount.

MAKER-CHECKER:
  The officer approving a disbursement must differ from the requester.

SEE ALSO:
  - account.go: DisbursedAgainst, the cap the approval enforces
*/
package mortgage

import (
	"context"

	"github.com/google/uuid"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// DISBURSEMENT SERVICE
// =============================================================================

type DisbursementService struct {
	Accounts AccountRepository
	Clock    finance.Clock
}

func NewDisbursementService(accounts AccountRepository, clock finance.Clock) *DisbursementService {
	return &DisbursementService{Accounts: accounts, Clock: clock}
}

// AddMilestone registers a planned construction stage. Only construction
// structures carry milestones.
func (s *DisbursementService) AddMilestone(ctx context.Context, accountID AccountID, name string, amount finance.Money) (*ProjectMilestone, error) {
	if name == "" {
		return nil, &ValidationError{Entity: "milestone", Field: "name", Reason: "name is required"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Entity: "milestone", Field: "paymentAmount", Reason: "payment amount must be positive"}
	}
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.FinancingType != FinancingIstisna {
		return nil, &ValidationError{Entity: "milestone", Field: "financingType",
			Reason: "milestones apply only to construction financing"}
	}

	working := acct.Clone()
	planned := finance.ZeroMoney()
	for i := range working.Milestones {
		planned = planned.Add(working.Milestones[i].PaymentAmount)
	}
	if planned.Add(amount).GreaterThan(working.PrincipalAmount) {
		return nil, &ValidationError{Entity: "milestone", Field: "paymentAmount",
			Reason: "milestone amounts exceed the financed principal"}
	}

	ms := ProjectMilestone{
		ID:            "ms-" + uuid.NewString(),
		Name:          name,
		PaymentAmount: amount,
		Status:        MilestonePlanned,
	}
	working.Milestones = append(working.Milestones, ms)
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return &ms, nil
}

// UpdateProgress records inspected completion. Reaching 100% marks the
// milestone verified and unlocks disbursement.
func (s *DisbursementService) UpdateProgress(ctx context.Context, accountID AccountID, milestoneID string, completion int) (*ProjectMilestone, error) {
	if completion < 0 || completion > 100 {
		return nil, &ValidationError{Entity: "milestone", Field: "completionPercentage", Reason: "completion must be within 0-100"}
	}
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	working := acct.Clone()
	ms := working.MilestoneByID(milestoneID)
	if ms == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: milestoneID}
	}
	if ms.Status == MilestonePaid {
		return nil, &InvalidTransitionError{Entity: "milestone", From: string(ms.Status), To: string(MilestoneVerified),
			Reason: "milestone is already fully paid"}
	}
	if completion < ms.CompletionPercentage {
		return nil, &ValidationError{Entity: "milestone", Field: "completionPercentage", Reason: "completion cannot decrease"}
	}
	ms.CompletionPercentage = completion
	if completion == 100 && ms.Status == MilestonePlanned {
		ms.Status = MilestoneVerified
	}
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return ms, nil
}

// RequestDisbursement opens a tranche request against a milestone.
func (s *DisbursementService) RequestDisbursement(ctx context.Context, accountID AccountID, milestoneID string, amount finance.Money, requestedBy string) (*DisbursementRequest, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Entity: "disbursement", Field: "amount", Reason: "amount must be positive"}
	}
	if requestedBy == "" {
		return nil, &ValidationError{Entity: "disbursement", Field: "requestedBy", Reason: "requesting officer is required"}
	}
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	working := acct.Clone()
	ms := working.MilestoneByID(milestoneID)
	if ms == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: milestoneID}
	}

	req := DisbursementRequest{
		ID:          "dsb-" + uuid.NewString(),
		MilestoneID: milestoneID,
		Amount:      amount,
		Status:      DisbursementRequested,
		RequestedBy: requestedBy,
		RequestedAt: s.Clock.Now(),
	}
	working.Disbursements = append(working.Disbursements, req)
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return &req, nil
}

// ApproveDisbursement releases a tranche. The milestone must be verified
// and the running total must stay within its payment amount.
func (s *DisbursementService) ApproveDisbursement(ctx context.Context, accountID AccountID, requestID, approver string) (*DisbursementRequest, error) {
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	working := acct.Clone()
	req := disbursementByID(working, requestID)
	if req == nil {
		return nil, &NotFoundError{Kind: "disbursement", ID: requestID}
	}
	if req.Status != DisbursementRequested {
		return nil, &InvalidTransitionError{Entity: "disbursement", From: string(req.Status), To: string(DisbursementApproved),
			Reason: "only requested disbursements can be approved"}
	}
	if approver == "" || approver == req.RequestedBy {
		return nil, &ValidationError{Entity: "disbursement", Field: "decidedBy",
			Reason: "approving officer must differ from the requesting officer"}
	}
	ms := working.MilestoneByID(req.MilestoneID)
	if ms == nil {
		return nil, &NotFoundError{Kind: "milestone", ID: req.MilestoneID}
	}
	if ms.Status == MilestonePlanned {
		return nil, &InvalidTransitionError{Entity: "milestone", From: string(ms.Status), To: string(MilestoneVerified),
			Reason: "milestone has not been verified"}
	}
	released := working.DisbursedAgainst(req.MilestoneID)
	if released.Add(req.Amount).GreaterThan(ms.PaymentAmount) {
		return nil, &ValidationError{Entity: "disbursement", Field: "amount",
			Reason: "approval would exceed the milestone payment amount"}
	}

	now := s.Clock.Now()
	req.Status = DisbursementApproved
	req.DecidedBy = approver
	req.DecidedAt = &now
	if released.Add(req.Amount).Equal(ms.PaymentAmount) {
		ms.Status = MilestonePaid
	}
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return req, nil
}

// RejectDisbursement closes a request without releasing funds.
func (s *DisbursementService) RejectDisbursement(ctx context.Context, accountID AccountID, requestID, approver string) (*DisbursementRequest, error) {
	acct, err := s.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	working := acct.Clone()
	req := disbursementByID(working, requestID)
	if req == nil {
		return nil, &NotFoundError{Kind: "disbursement", ID: requestID}
	}
	if req.Status != DisbursementRequested {
		return nil, &InvalidTransitionError{Entity: "disbursement", From: string(req.Status), To: string(DisbursementRejected),
			Reason: "only requested disbursements can be rejected"}
	}
	now := s.Clock.Now()
	req.Status = DisbursementRejected
	req.DecidedBy = approver
	req.DecidedAt = &now
	if err := s.Accounts.SaveAccount(ctx, working); err != nil {
		return nil, err
	}
	return req, nil
}

func disbursementByID(acct *MortgageAccount, id string) *DisbursementRequest {
	for i := range acct.Disbursements {
		if acct.Disbursements[i].ID == id {
			return &acct.Disbursements[i]
		}
	}
	return nil
}
