package mortgage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mortgage-engine/finance"
	"github.com/warp/mortgage-engine/mortgage"
	"github.com/warp/mortgage-engine/mortgage/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newWorkflow(t *testing.T) (*mortgage.WorkflowService, *store.Memory, *finance.FixedClock) {
	t.Helper()
	repo := store.NewMemory()
	clock := finance.NewFixedClock(time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC))
	return mortgage.NewWorkflowService(repo, repo, clock), repo, clock
}

// draftApp creates a draft with property attached and all documents verified.
func draftApp(t *testing.T, svc *mortgage.WorkflowService) mortgage.ApplicationID {
	t.Helper()
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, "cust-1", mortgage.FinancingMusharaka)
	require.NoError(t, err)

	_, err = svc.AttachProperty(ctx, app.ID,
		mortgage.Property{Address: "12 Bourdillon Rd", City: "Lagos", State: "Lagos",
			Value: finance.NewMoneyFromInt(10_000_000)},
		finance.NewMoneyFromInt(1_000_000), 120, finance.NewRate("0.06"), 15, 0)
	require.NoError(t, err)

	for _, doc := range mortgage.RequiredDocuments {
		_, err = svc.SetDocumentStatus(ctx, app.ID, doc, mortgage.DocumentVerified)
		require.NoError(t, err)
	}
	return app.ID
}

// reviewApp submits the draft and runs a passing eligibility check, leaving
// the credit stage in progress.
func reviewApp(t *testing.T, svc *mortgage.WorkflowService) mortgage.ApplicationID {
	t.Helper()
	ctx := context.Background()

	id := draftApp(t, svc)
	_, err := svc.Submit(ctx, id)
	require.NoError(t, err)

	app, err := svc.RunEligibility(ctx, id, goodFinancials())
	require.NoError(t, err)
	require.Equal(t, mortgage.StatusCreditAssessment, app.Status)
	return id
}

// approveAllStages walks every review stage to approval.
func approveAllStages(t *testing.T, svc *mortgage.WorkflowService, id mortgage.ApplicationID) {
	t.Helper()
	ctx := context.Background()
	for _, stage := range mortgage.StageSequence {
		_, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
			Stage: stage, Action: mortgage.ActionApprove, Actor: "reviewer-" + string(stage),
		})
		require.NoError(t, err, "stage %s should approve", stage)
	}
}

// signedApp drives an application all the way to contract_signed.
func signedApp(t *testing.T, svc *mortgage.WorkflowService) mortgage.ApplicationID {
	t.Helper()
	ctx := context.Background()

	id := reviewApp(t, svc)
	approveAllStages(t, svc, id)

	_, err := svc.SendOffer(ctx, id, 0)
	require.NoError(t, err)
	_, err = svc.RespondOffer(ctx, id, true)
	require.NoError(t, err)
	_, err = svc.GenerateContract(ctx, id)
	require.NoError(t, err)
	_, err = svc.SignContract(ctx, id)
	require.NoError(t, err)
	return id
}

// =============================================================================
// INTAKE TESTS
// =============================================================================

func TestCreateApplication_InitializesDocumentChecklist(t *testing.T) {
	// GIVEN: A new customer
	// WHEN: Opening a draft
	// THEN: Every required document starts pending

	svc, _, _ := newWorkflow(t)
	app, err := svc.CreateApplication(context.Background(), "cust-1", mortgage.FinancingIjara)
	require.NoError(t, err)

	assert.Equal(t, mortgage.StatusDraft, app.Status)
	require.Len(t, app.Documents, len(mortgage.RequiredDocuments))
	for _, doc := range mortgage.RequiredDocuments {
		assert.Equal(t, mortgage.DocumentPending, app.Documents[doc])
	}
}

func TestAttachProperty_ComputesFinancingAmount(t *testing.T) {
	// GIVEN: A 10M property with 1M equity
	// WHEN: Attaching it to the draft
	// THEN: Financing amount is 9M and equity share 10%

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	app, err := svc.CreateApplication(ctx, "cust-1", mortgage.FinancingMusharaka)
	require.NoError(t, err)

	updated, err := svc.AttachProperty(ctx, app.ID,
		mortgage.Property{Address: "1 Main St", City: "Abuja", State: "FCT",
			Value: finance.NewMoneyFromInt(10_000_000)},
		finance.NewMoneyFromInt(1_000_000), 120, finance.NewRate("0.06"), 15, 0)
	require.NoError(t, err)

	require.NotNil(t, updated.Financials)
	assert.True(t, updated.Financials.FinancingAmount.Equal(finance.NewMoneyFromInt(9_000_000)))
	assert.InDelta(t, 0.10, updated.Financials.EquityPercentage.Float64(), 1e-9)
}

func TestAttachProperty_EquityMustBeBelowValue(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	app, err := svc.CreateApplication(ctx, "cust-1", mortgage.FinancingMusharaka)
	require.NoError(t, err)

	_, err = svc.AttachProperty(ctx, app.ID,
		mortgage.Property{Address: "1 Main St", City: "Abuja", State: "FCT",
			Value: finance.NewMoneyFromInt(5_000_000)},
		finance.NewMoneyFromInt(5_000_000), 120, finance.NewRate("0.06"), 15, 0)
	assert.ErrorIs(t, err, mortgage.ErrValidation)
}

func TestSubmit_RequiresVerifiedDocuments(t *testing.T) {
	// GIVEN: A draft with property but one document still pending
	// WHEN: Submitting
	// THEN: Validation error

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()

	app, err := svc.CreateApplication(ctx, "cust-1", mortgage.FinancingMusharaka)
	require.NoError(t, err)
	_, err = svc.AttachProperty(ctx, app.ID,
		mortgage.Property{Address: "1 Main St", City: "Abuja", State: "FCT",
			Value: finance.NewMoneyFromInt(10_000_000)},
		finance.NewMoneyFromInt(1_000_000), 120, finance.NewRate("0.06"), 15, 0)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, app.ID)
	assert.ErrorIs(t, err, mortgage.ErrValidation)
}

// =============================================================================
// ELIGIBILITY GATE TESTS
// =============================================================================

func TestRunEligibility_IneligibleHaltsWorkflow(t *testing.T) {
	// GIVEN: A submitted application from a customer below the income floor
	// WHEN: Running eligibility
	// THEN: The application is rejected and no review stages open

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := draftApp(t, svc)
	_, err := svc.Submit(ctx, id)
	require.NoError(t, err)

	fin := goodFinancials()
	fin.MonthlyIncome = finance.NewMoneyFromInt(50_000)
	fin.MonthlyDebtObligations = finance.ZeroMoney()

	app, err := svc.RunEligibility(ctx, id, fin)
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusRejected, app.Status)
	assert.Empty(t, app.Stages)

	// Stage actions are now impossible.
	_, err = svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "bob"})
	assert.ErrorIs(t, err, mortgage.ErrInvalidTransition)
}

func TestRunEligibility_ConditionalStillOpensReview(t *testing.T) {
	// GIVEN: A soft eligibility failure (short NHF history)
	// WHEN: Running eligibility
	// THEN: The review opens anyway for manual override

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := draftApp(t, svc)
	_, err := svc.Submit(ctx, id)
	require.NoError(t, err)

	fin := goodFinancials()
	fin.NHFContributionMonths = 1

	app, err := svc.RunEligibility(ctx, id, fin)
	require.NoError(t, err)
	assert.Equal(t, mortgage.EligibilityConditional, app.Eligibility.Status)
	assert.Equal(t, mortgage.StatusCreditAssessment, app.Status)
}

func TestRunEligibility_RecheckReplacesWholesale(t *testing.T) {
	// GIVEN: An in-review application with a conditional check
	// WHEN: Re-running with corrected figures
	// THEN: The stored check is the new one, not a patch of the old

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := draftApp(t, svc)
	_, err := svc.Submit(ctx, id)
	require.NoError(t, err)

	fin := goodFinancials()
	fin.NHFContributionMonths = 1
	_, err = svc.RunEligibility(ctx, id, fin)
	require.NoError(t, err)

	app, err := svc.RunEligibility(ctx, id, goodFinancials())
	require.NoError(t, err)
	assert.Equal(t, mortgage.EligibilityEligible, app.Eligibility.Status)
	assert.True(t, app.Eligibility.NHFOK)
}

func TestRunEligibility_RecheckMidReviewKeepsCompletedStages(t *testing.T) {
	// GIVEN: Credit approved, legal review in progress
	// WHEN: Re-running eligibility with fresh figures
	// THEN: The check is replaced but the approved stage and the current
	//       status are untouched

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)

	_, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "reviewer-credit"})
	require.NoError(t, err)

	fin := goodFinancials()
	fin.EmploymentMonths = 48

	app, err := svc.RunEligibility(ctx, id, fin)
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusLegalReview, app.Status)
	assert.Equal(t, mortgage.EligibilityEligible, app.Eligibility.Status)
	assert.Equal(t, mortgage.StageApproved, app.StageByName(mortgage.StageCredit).Status)
	assert.Equal(t, mortgage.StageInProgress, app.StageByName(mortgage.StageLegal).Status)
}

// =============================================================================
// STAGE GATING TESTS
// =============================================================================

func TestAdvance_StagesCompleteInSequence(t *testing.T) {
	// GIVEN: Credit stage active
	// WHEN: Trying to approve the legal stage first
	// THEN: InvalidTransitionError; approving credit then unlocks legal

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)

	_, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageLegal, Action: mortgage.ActionApprove, Actor: "bob"})
	assert.ErrorIs(t, err, mortgage.ErrInvalidTransition)

	stages, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "bob"})
	require.NoError(t, err)
	assert.Equal(t, mortgage.StageApproved, stages[0].Status)
	assert.Equal(t, mortgage.StageInProgress, stages[1].Status)
}

func TestAdvance_MakerCheckerBlocksSelfApproval(t *testing.T) {
	// GIVEN: The credit stage assigned to alice
	// WHEN: alice tries to approve it herself
	// THEN: ValidationError; a different reviewer succeeds

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)

	_, err := svc.AssignStage(ctx, id, mortgage.StageCredit, "alice")
	require.NoError(t, err)

	_, err = svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "alice"})
	assert.ErrorIs(t, err, mortgage.ErrValidation)

	stages, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "bob", stages[0].CompletedBy)
}

func TestAdvance_RejectionHaltsTheWorkflow(t *testing.T) {
	// GIVEN: Credit approved, legal active
	// WHEN: Legal rejects
	// THEN: The application is rejected and later stages stay untouchable

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)

	_, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "bob"})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageLegal, Action: mortgage.ActionReject, Actor: "carol", Notes: "title defect"})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageShariah, Action: mortgage.ActionApprove, Actor: "dan"})
	assert.ErrorIs(t, err, mortgage.ErrInvalidTransition)
}

func TestAdvance_InfoRequestRoundTrip(t *testing.T) {
	// GIVEN: Credit stage active
	// WHEN: The reviewer requests info and the applicant resubmits
	// THEN: The stage returns to in_progress and can then be approved

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)

	stages, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionRequestInfo, Actor: "bob", Notes: "missing payslip"})
	require.NoError(t, err)
	assert.Equal(t, mortgage.StageInfoRequested, stages[0].Status)

	app, err := svc.ResubmitInfo(ctx, id, mortgage.StageCredit)
	require.NoError(t, err)
	assert.Equal(t, mortgage.StageInProgress, app.Stages[0].Status)

	_, err = svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionApprove, Actor: "bob"})
	assert.NoError(t, err)
}

func TestAdvance_EscalationLeavesStageActive(t *testing.T) {
	// GIVEN: Credit stage active
	// WHEN: Escalating to a head of credit
	// THEN: The stage stays in progress with the escalation recorded

	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)

	stages, err := svc.Advance(ctx, id, mortgage.AdvanceCommand{
		Stage: mortgage.StageCredit, Action: mortgage.ActionEscalate, Actor: "bob", EscalateTo: "head-of-credit"})
	require.NoError(t, err)
	assert.Equal(t, mortgage.StageInProgress, stages[0].Status)
	assert.Equal(t, "head-of-credit", stages[0].EscalatedTo)
}

func TestAdvance_BoardApprovalApprovesApplication(t *testing.T) {
	// GIVEN: All stages up to board approved
	// WHEN: The board approves
	// THEN: The application status becomes approved

	svc, repo, _ := newWorkflow(t)
	id := reviewApp(t, svc)
	approveAllStages(t, svc, id)

	app, err := repo.GetApplication(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusApproved, app.Status)
}

// =============================================================================
// OFFER AND CONTRACT TESTS
// =============================================================================

func TestRespondOffer_AfterExpiryExpiresInsteadOfAccepting(t *testing.T) {
	// GIVEN: An offer valid for 14 days
	// WHEN: The customer accepts on day 15
	// THEN: The offer expires; acceptance is not recorded

	svc, _, clock := newWorkflow(t)
	ctx := context.Background()
	id := reviewApp(t, svc)
	approveAllStages(t, svc, id)

	_, err := svc.SendOffer(ctx, id, 0)
	require.NoError(t, err)

	clock.AdvanceDays(15)

	app, err := svc.RespondOffer(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusOfferExpired, app.Status)
}

func TestSendOffer_RequiresBoardApproval(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	id := reviewApp(t, svc)

	_, err := svc.SendOffer(context.Background(), id, 0)
	assert.ErrorIs(t, err, mortgage.ErrInvalidTransition)
}

// =============================================================================
// ACTIVATION TESTS
// =============================================================================

func TestActivateLease_CreatesAccountWithFullSchedule(t *testing.T) {
	// GIVEN: A signed contract over 9M at 6% for 120 months
	// WHEN: Activating the lease
	// THEN: An active account exists with a 120-row schedule honoring the
	//       generation invariants, and the application links to it

	svc, repo, _ := newWorkflow(t)
	ctx := context.Background()
	id := signedApp(t, svc)

	acct, err := svc.ActivateLease(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, mortgage.AccountActive, acct.Status)
	assert.Len(t, acct.Schedule, 120)
	assert.NoError(t, mortgage.VerifyScheduleInvariants(acct.Schedule, acct.PrincipalAmount))

	app, err := repo.GetApplication(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusLeaseActivated, app.Status)
	assert.Equal(t, acct.ID, app.AccountID)
}

func TestActivateLease_AccountCreatedExactlyOnce(t *testing.T) {
	// GIVEN: An already-activated application
	// WHEN: Activating again
	// THEN: InvalidTransitionError and only one account in the store

	svc, repo, _ := newWorkflow(t)
	ctx := context.Background()
	id := signedApp(t, svc)

	_, err := svc.ActivateLease(ctx, id)
	require.NoError(t, err)

	_, err = svc.ActivateLease(ctx, id)
	assert.ErrorIs(t, err, mortgage.ErrInvalidTransition)

	accounts, err := repo.ListAccounts(ctx, "")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestCancel_TerminalApplicationCannotBeCancelled(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	ctx := context.Background()
	id := signedApp(t, svc)

	_, err := svc.ActivateLease(ctx, id)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, id, "changed mind")
	assert.ErrorIs(t, err, mortgage.ErrInvalidTransition)
}

func TestCancel_OpenApplicationCancels(t *testing.T) {
	svc, _, _ := newWorkflow(t)
	id := reviewApp(t, svc)

	app, err := svc.Cancel(context.Background(), id, "customer withdrew")
	require.NoError(t, err)
	assert.Equal(t, mortgage.StatusCancelled, app.Status)
}
