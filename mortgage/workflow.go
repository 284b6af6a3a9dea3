/*
workflow.go - Application status machine and stage advancement

PURPOSE:
  Owns every transition of a MortgageApplication from draft to
  lease_activated. The workflow engine is the single source of truth: the
  UI only reflects committed state, never predicts it.

STATUS MACHINE:
  draft -> submitted -> in_review -> credit_assessment -> legal_review
  -> shariah_review -> management_approval -> board_approval -> approved
  -> offer_sent -> {offer_accepted|offer_rejected|offer_expired}
  -> contract_generated -> contract_signed -> lease_activated

  rejected/cancelled are reachable from any non-terminal state.

STAGE GATING:
  Stages complete strictly in StageSequence order. The targeted stage must
  be the unique active one (in_progress or info_requested, or pending
  immediately after the last approved stage). Anything else is an
  InvalidTransitionError - stages cannot be skipped or run out of order.

MAKER-CHECKER:
  The reviewer completing a stage must differ from the reviewer it is
  assigned to. Self-approval is a ValidationError.

ELIGIBILITY GATE:
  RunEligibility unlocks the first stage: an eligible or conditional check
  moves the application to in_review and opens the credit stage; an
  ineligible check halts the workflow.

SEE ALSO:
  - eligibility.go: The pure evaluator
  - schedule.go:    Called at lease activation
  - account.go:     The aggregate created exactly once at activation
*/
package mortgage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// WORKFLOW SERVICE
// =============================================================================

type WorkflowService struct {
	Repo     ApplicationRepository
	Accounts AccountRepository
	Clock    finance.Clock
	Criteria EligibilityCriteria
}

func NewWorkflowService(repo ApplicationRepository, accounts AccountRepository, clock finance.Clock) *WorkflowService {
	return &WorkflowService{
		Repo:     repo,
		Accounts: accounts,
		Clock:    clock,
		Criteria: DefaultEligibilityCriteria(),
	}
}

// =============================================================================
// INTAKE
// =============================================================================

// CreateApplication opens a draft with the required-document checklist
// initialized to pending.
func (s *WorkflowService) CreateApplication(ctx context.Context, customerID CustomerID, financing FinancingType) (*MortgageApplication, error) {
	if customerID == "" {
		return nil, &ValidationError{Entity: "application", Field: "customerId", Reason: "customer is required"}
	}
	if !financing.Valid() {
		return nil, &ValidationError{Entity: "application", Field: "financingType", Reason: "unknown financing structure"}
	}

	now := s.Clock.Now()
	app := &MortgageApplication{
		ID:            ApplicationID("app-" + uuid.NewString()),
		CustomerID:    customerID,
		FinancingType: financing,
		Status:        StatusDraft,
		Documents:     make(map[DocumentType]DocumentStatus, len(RequiredDocuments)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, doc := range RequiredDocuments {
		app.Documents[doc] = DocumentPending
	}
	if err := s.Repo.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// AttachProperty records the selected property and computes the financial
// details once property and equity are chosen.
func (s *WorkflowService) AttachProperty(ctx context.Context, id ApplicationID, property Property, equity finance.Money, tenorMonths int, rate finance.Rate, paymentDay, graceMonths int) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusDraft {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusDraft),
			Reason: "property can only be attached to a draft application"}
	}
	if !property.Value.IsPositive() {
		return nil, &ValidationError{Entity: "application", Field: "property.value", Reason: "property value must be positive"}
	}
	if equity.IsNegative() || equity.GreaterOrEqual(property.Value) {
		return nil, &ValidationError{Entity: "application", Field: "equityContribution", Reason: "equity must be non-negative and below the property value"}
	}
	if tenorMonths <= 0 {
		return nil, &ValidationError{Entity: "application", Field: "tenorMonths", Reason: "tenor must be positive"}
	}

	working := app.Clone()
	working.Property = &property
	working.Financials = &FinancialDetails{
		PropertyValue:      property.Value,
		EquityContribution: equity,
		FinancingAmount:    property.Value.Sub(equity),
		EquityPercentage:   finance.NewPercentage(equity, property.Value),
		TenorMonths:        tenorMonths,
		RentRate:           rate,
		PaymentDay:         paymentDay,
		GraceMonths:        graceMonths,
	}
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// SetDocumentStatus records a verification outcome from the (external)
// document-verification collaborator.
func (s *WorkflowService) SetDocumentStatus(ctx context.Context, id ApplicationID, doc DocumentType, status DocumentStatus) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status.IsTerminal() {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(app.Status),
			Reason: "application is terminal"}
	}
	working := app.Clone()
	working.Documents[doc] = status
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// Submit moves draft -> submitted. Requires property, financial details,
// and every required document verified.
func (s *WorkflowService) Submit(ctx context.Context, id ApplicationID) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusDraft {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusSubmitted),
			Reason: "only drafts can be submitted"}
	}
	if app.Property == nil || app.Financials == nil {
		return nil, &ValidationError{Entity: "application", Field: "property", Reason: "property and financial details are required before submission"}
	}
	for _, doc := range RequiredDocuments {
		if app.Documents[doc] != DocumentVerified {
			return nil, &ValidationError{Entity: "application", Field: string(doc), Reason: "required document is not verified"}
		}
	}

	working := app.Clone()
	working.Status = StatusSubmitted
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// =============================================================================
// ELIGIBILITY GATE
// =============================================================================

// RunEligibility evaluates (or re-evaluates) the applicant and stores the
// check wholesale - never patched in place. An eligible or conditional
// result unlocks the review workflow; an ineligible result halts it.
func (s *WorkflowService) RunEligibility(ctx context.Context, id ApplicationID, fin CustomerFinancials) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reviewOpen(app.Status) {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusInReview),
			Reason: "eligibility runs on submitted or in-review applications"}
	}

	now := s.Clock.Now()
	check := EvaluateEligibility(fin, s.Criteria, now)

	working := app.Clone()
	working.Eligibility = &check
	working.UpdatedAt = now

	switch check.Status {
	case EligibilityIneligible:
		working.Status = StatusRejected
	default:
		if len(working.Stages) == 0 {
			working.Stages = newStageSequence()
		}
		// Unlock the first stage on the initial run; a re-check mid-review
		// leaves completed and in-flight stages alone.
		if working.Stages[0].Status == StagePending {
			working.Stages[0].Status = StageInProgress
		}
		working.Status = StatusInReview
		for i := range working.Stages {
			if working.Stages[i].Status != StageApproved {
				working.Status = statusForStage[working.Stages[i].Stage]
				break
			}
		}
	}

	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// reviewOpen reports whether the application is still in the phase where
// eligibility may be run or re-run.
func reviewOpen(status ApplicationStatus) bool {
	switch status {
	case StatusSubmitted, StatusInReview, StatusCreditAssessment, StatusLegalReview,
		StatusShariahReview, StatusManagementApproval, StatusBoardApproval:
		return true
	}
	return false
}

func newStageSequence() []ApprovalStage {
	stages := make([]ApprovalStage, 0, len(StageSequence))
	for _, name := range StageSequence {
		stages = append(stages, ApprovalStage{Stage: name, Status: StagePending})
	}
	return stages
}

// =============================================================================
// STAGE ADVANCEMENT
// =============================================================================

// AdvanceCommand is one reviewer action against one stage.
type AdvanceCommand struct {
	Stage      StageName
	Action     StageAction
	Actor      string
	Notes      string
	EscalateTo string // only read for ActionEscalate
}

// AssignStage hands the active stage to a named reviewer. Assignment is
// what arms the maker-checker rule.
func (s *WorkflowService) AssignStage(ctx context.Context, id ApplicationID, stage StageName, reviewer string) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	working := app.Clone()
	row, err := activeStage(working, stage)
	if err != nil {
		return nil, err
	}
	row.AssignedTo = reviewer
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// Advance applies a reviewer action to the targeted stage and returns the
// updated stage rows.
func (s *WorkflowService) Advance(ctx context.Context, id ApplicationID, cmd AdvanceCommand) ([]ApprovalStage, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if cmd.Actor == "" {
		return nil, &ValidationError{Entity: "stage", Field: "actor", Reason: "actor is required"}
	}

	working := app.Clone()
	row, err := activeStage(working, cmd.Stage)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()

	switch cmd.Action {
	case ActionApprove:
		// Maker-checker: the completing reviewer must differ from the
		// assigned reviewer.
		if row.AssignedTo != "" && row.AssignedTo == cmd.Actor {
			return nil, &ValidationError{Entity: "stage", Field: "completedBy",
				Reason: fmt.Sprintf("reviewer %s cannot approve a stage assigned to themselves", cmd.Actor)}
		}
		row.Status = StageApproved
		row.CompletedBy = cmd.Actor
		row.CompletedAt = &now
		row.Notes = cmd.Notes

		if next := nextPendingStage(working, row.Stage); next != nil {
			next.Status = StageInProgress
			working.Status = statusForStage[next.Stage]
		} else {
			// Board was the last gate.
			working.Status = StatusApproved
		}

	case ActionReject:
		row.Status = StageRejected
		row.CompletedBy = cmd.Actor
		row.CompletedAt = &now
		row.Notes = cmd.Notes
		working.Status = StatusRejected

	case ActionRequestInfo:
		row.Status = StageInfoRequested
		row.Notes = cmd.Notes

	case ActionEscalate:
		// Informational reassignment upward; stage status unchanged.
		row.EscalatedTo = cmd.EscalateTo
		row.Notes = cmd.Notes

	default:
		return nil, &ValidationError{Entity: "stage", Field: "action", Reason: "unknown action"}
	}

	working.UpdatedAt = now
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working.Stages, nil
}

// ResubmitInfo returns an info_requested stage to in_progress after the
// applicant responds.
func (s *WorkflowService) ResubmitInfo(ctx context.Context, id ApplicationID, stage StageName) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	working := app.Clone()
	row := working.StageByName(stage)
	if row == nil {
		return nil, &NotFoundError{Kind: "stage", ID: string(stage)}
	}
	if row.Status != StageInfoRequested {
		return nil, &InvalidTransitionError{Entity: "stage", From: string(row.Status), To: string(StageInProgress),
			Reason: "stage is not awaiting information"}
	}
	row.Status = StageInProgress
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// Cancel moves any non-terminal application to cancelled.
func (s *WorkflowService) Cancel(ctx context.Context, id ApplicationID, reason string) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status.IsTerminal() {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusCancelled),
			Reason: "application is terminal"}
	}
	working := app.Clone()
	working.Status = StatusCancelled
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// activeStage validates the sequential-gating precondition and returns the
// mutable row for the targeted stage.
func activeStage(app *MortgageApplication, target StageName) (*ApprovalStage, error) {
	if app.Status.IsTerminal() || app.Status == StatusRejected {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(app.Status),
			Reason: "workflow is halted"}
	}
	if len(app.Stages) == 0 {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(app.Status),
			Reason: "review has not started: run eligibility first"}
	}
	if app.StageByName(target) == nil {
		return nil, &NotFoundError{Kind: "stage", ID: string(target)}
	}

	// The active stage is the first one not yet approved. A rejected row
	// halts everything behind it.
	for i := range app.Stages {
		row := &app.Stages[i]
		switch row.Status {
		case StageApproved:
			continue
		case StageRejected:
			return nil, &InvalidTransitionError{Entity: "stage", From: string(row.Stage), To: string(target),
				Reason: "workflow halted by a rejected stage"}
		default:
			if row.Stage != target {
				return nil, &InvalidTransitionError{Entity: "stage", From: string(row.Stage), To: string(target),
					Reason: "stages complete in sequence; targeted stage is not the active one"}
			}
			return row, nil
		}
	}
	return nil, &InvalidTransitionError{Entity: "stage", From: "board", To: string(target),
		Reason: "all stages already approved"}
}

// nextPendingStage returns the stage immediately after the given one, if
// it is still pending.
func nextPendingStage(app *MortgageApplication, after StageName) *ApprovalStage {
	for i := range app.Stages {
		if app.Stages[i].Stage == after && i+1 < len(app.Stages) {
			next := &app.Stages[i+1]
			if next.Status == StagePending {
				return next
			}
			return nil
		}
	}
	return nil
}

// =============================================================================
// OFFER AND CONTRACT FLOW
// =============================================================================

// SendOffer issues the offer letter after board approval.
func (s *WorkflowService) SendOffer(ctx context.Context, id ApplicationID, validFor time.Duration) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusApproved {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusOfferSent),
			Reason: "offer can only follow board approval"}
	}
	if validFor <= 0 {
		validFor = 14 * 24 * time.Hour
	}
	now := s.Clock.Now()
	working := app.Clone()
	working.Status = StatusOfferSent
	working.Offer = &Offer{SentAt: now, ExpiresAt: now.Add(validFor)}
	working.UpdatedAt = now
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// RespondOffer records the customer's decision. A response after the
// expiry date expires the offer instead.
func (s *WorkflowService) RespondOffer(ctx context.Context, id ApplicationID, accept bool) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusOfferSent || app.Offer == nil {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusOfferAccepted),
			Reason: "no open offer to respond to"}
	}
	now := s.Clock.Now()
	working := app.Clone()
	working.Offer.RespondedAt = &now
	working.UpdatedAt = now

	switch {
	case now.After(app.Offer.ExpiresAt):
		working.Status = StatusOfferExpired
	case accept:
		working.Status = StatusOfferAccepted
	default:
		working.Status = StatusOfferRejected
	}
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// GenerateContract moves offer_accepted -> contract_generated.
func (s *WorkflowService) GenerateContract(ctx context.Context, id ApplicationID) (*MortgageApplication, error) {
	return s.simpleTransition(ctx, id, StatusOfferAccepted, StatusContractGenerated)
}

// SignContract moves contract_generated -> contract_signed.
func (s *WorkflowService) SignContract(ctx context.Context, id ApplicationID) (*MortgageApplication, error) {
	return s.simpleTransition(ctx, id, StatusContractGenerated, StatusContractSigned)
}

func (s *WorkflowService) simpleTransition(ctx context.Context, id ApplicationID, from, to ApplicationStatus) (*MortgageApplication, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != from {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(to),
			Reason: fmt.Sprintf("transition requires status %s", from)}
	}
	working := app.Clone()
	working.Status = to
	working.UpdatedAt = s.Clock.Now()
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return working, nil
}

// =============================================================================
// LEASE ACTIVATION - Creates the account exactly once
// =============================================================================

// ActivateLease moves contract_signed -> lease_activated, generates the
// full schedule, and creates the durable MortgageAccount. The account is
// created exactly once; re-activation is an InvalidTransitionError.
func (s *WorkflowService) ActivateLease(ctx context.Context, id ApplicationID) (*MortgageAccount, error) {
	app, err := s.Repo.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusContractSigned {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusLeaseActivated),
			Reason: "activation requires a signed contract"}
	}
	if app.AccountID != "" {
		return nil, &InvalidTransitionError{Entity: "application", From: string(app.Status), To: string(StatusLeaseActivated),
			Reason: "account already created for this application"}
	}
	fin := app.Financials
	if fin == nil {
		return nil, &ValidationError{Entity: "application", Field: "financials", Reason: "financial details missing"}
	}

	now := s.Clock.Now()
	schedule, err := GenerateSchedule(ScheduleSpec{
		Principal:   fin.FinancingAmount,
		Equity:      fin.EquityContribution,
		TenorMonths: fin.TenorMonths,
		Rate:        fin.RentRate,
		Structure:   app.FinancingType,
		StartDate:   now,
		PaymentDay:  fin.PaymentDay,
		GraceMonths: fin.GraceMonths,
	})
	if err != nil {
		return nil, err
	}

	paymentDay := fin.PaymentDay
	if paymentDay <= 0 {
		paymentDay = now.Day()
	}
	acct := &MortgageAccount{
		ID:                 AccountID("acct-" + uuid.NewString()),
		ApplicationID:      app.ID,
		CustomerID:         app.CustomerID,
		FinancingType:      app.FinancingType,
		PrincipalAmount:    fin.FinancingAmount,
		EquityContribution: fin.EquityContribution,
		EquityPercentage:   fin.EquityPercentage,
		TenorMonths:        fin.TenorMonths,
		RentRate:           fin.RentRate,
		PaymentDay:         paymentDay,
		Status:             AccountActive,
		ActivatedAt:        now,
		Schedule:           schedule,
	}
	if err := s.Accounts.SaveAccount(ctx, acct); err != nil {
		return nil, err
	}

	working := app.Clone()
	working.Status = StatusLeaseActivated
	working.AccountID = acct.ID
	working.UpdatedAt = now
	if err := s.Repo.SaveApplication(ctx, working); err != nil {
		return nil, err
	}
	return acct, nil
}
