/*
handlers.go - HTTP API handlers for the mortgage engine

PURPOSE:
  Exposes the mortgage lifecycle engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Applications:
    POST   /api/applications                       Create draft
    GET    /api/applications                       List (filter by status)
    GET    /api/applications/{id}                  Detail
    PUT    /api/applications/{id}/property         Attach property + terms
    PUT    /api/applications/{id}/documents/{type} Record verification
    POST   /api/applications/{id}/submit           Submit for review
    POST   /api/applications/{id}/eligibility      Run/re-run eligibility
    POST   /api/applications/{id}/stages/{stage}/assign    Assign reviewer
    POST   /api/applications/{id}/stages/{stage}/resubmit  Answer info request
    POST   /api/applications/{id}/advance          Stage action
    POST   /api/applications/{id}/offer            Send offer
    POST   /api/applications/{id}/offer/respond    Accept / reject
    POST   /api/applications/{id}/contract         Generate contract
    POST   /api/applications/{id}/contract/sign    Sign contract
    POST   /api/applications/{id}/activate         Activate lease -> account
    POST   /api/applications/{id}/cancel           Withdraw

  Accounts:
    GET    /api/accounts                           Portfolio list
    GET    /api/accounts/{id}                      Snapshot projection
    GET    /api/accounts/{id}/schedule             Schedule rows
    GET    /api/accounts/{id}/payments             Payment records
    POST   /api/accounts/{id}/payments             Record payment
    GET    /api/accounts/{id}/settlement-quote     Early payoff quote
    POST   /api/accounts/{id}/adjustments          Request restructuring
    POST   /api/accounts/{id}/adjustments/{adjID}/approve
    POST   /api/accounts/{id}/adjustments/{adjID}/reject
    POST   /api/accounts/{id}/milestones           Add project milestone
    PUT    /api/accounts/{id}/milestones/{msID}    Record completion
    POST   /api/accounts/{id}/disbursements        Request tranche
    POST   /api/accounts/{id}/disbursements/{dsbID}/approve
    POST   /api/accounts/{id}/disbursements/{dsbID}/reject

  Admin:
    POST   /api/admin/sweep                        Delinquency sweep now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (stale version, duplicate reference)
  - 422: Invalid lifecycle transition
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. Actor identities arrive in
  request bodies; an auth middleware should supply them in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/mortgage-engine/finance"
	"github.com/warp/mortgage-engine/mortgage"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Repo          mortgage.Repository
	Workflow      *mortgage.WorkflowService
	Ledger        *mortgage.LedgerService
	Adjustments   *mortgage.AdjustmentService
	Disbursements *mortgage.DisbursementService
	Clock         finance.Clock
	Logger        *zap.Logger
	Metrics       *Metrics
	Policy        mortgage.DelinquencyPolicy
}

// NewHandler wires the services over a shared repository.
func NewHandler(repo mortgage.Repository, clock finance.Clock, logger *zap.Logger, metrics *Metrics) *Handler {
	return &Handler{
		Repo:          repo,
		Workflow:      mortgage.NewWorkflowService(repo, repo, clock),
		Ledger:        mortgage.NewLedgerService(repo, clock),
		Adjustments:   mortgage.NewAdjustmentService(repo, clock),
		Disbursements: mortgage.NewDisbursementService(repo, clock),
		Clock:         clock,
		Logger:        logger,
		Metrics:       metrics,
		Policy:        mortgage.DefaultDelinquencyPolicy(),
	}
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req CreateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	app, err := h.Workflow.CreateApplication(r.Context(),
		mortgage.CustomerID(req.CustomerID), mortgage.FinancingType(req.FinancingType))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) ListApplications(w http.ResponseWriter, r *http.Request) {
	status := mortgage.ApplicationStatus(r.URL.Query().Get("status"))
	apps, err := h.Repo.ListApplications(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, apps)
}

func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Repo.GetApplication(r.Context(), appID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) AttachProperty(w http.ResponseWriter, r *http.Request) {
	var req AttachPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	value, err := finance.NewMoneyFromString(req.Property.Value)
	if err != nil {
		h.writeError(w, badRequest("invalid property value"))
		return
	}
	equity, err := finance.NewMoneyFromString(req.EquityContribution)
	if err != nil {
		h.writeError(w, badRequest("invalid equity contribution"))
		return
	}
	app, err := h.Workflow.AttachProperty(r.Context(), appID(r),
		mortgage.Property{
			Address: req.Property.Address,
			City:    req.Property.City,
			State:   req.Property.State,
			Value:   value,
		},
		equity, req.TenorMonths, finance.NewRate(req.AnnualRentRate),
		req.PaymentDay, req.GraceMonths)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) SetDocument(w http.ResponseWriter, r *http.Request) {
	var req SetDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	app, err := h.Workflow.SetDocumentStatus(r.Context(), appID(r),
		mortgage.DocumentType(chi.URLParam(r, "type")), mortgage.DocumentStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Workflow.Submit(r.Context(), appID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) RunEligibility(w http.ResponseWriter, r *http.Request) {
	var req EligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	income, err := finance.NewMoneyFromString(req.MonthlyIncome)
	if err != nil {
		h.writeError(w, badRequest("invalid monthly income"))
		return
	}
	debt := finance.ZeroMoney()
	if req.MonthlyDebtObligations != "" {
		debt, err = finance.NewMoneyFromString(req.MonthlyDebtObligations)
		if err != nil {
			h.writeError(w, badRequest("invalid monthly debt obligations"))
			return
		}
	}
	app, err := h.Workflow.RunEligibility(r.Context(), appID(r), mortgage.CustomerFinancials{
		MonthlyIncome:          income,
		MonthlyDebtObligations: debt,
		NHFContributionMonths:  req.NHFContributionMonths,
		NHFActive:              req.NHFActive,
		EmploymentMonths:       req.EmploymentMonths,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) AssignStage(w http.ResponseWriter, r *http.Request) {
	var req AssignStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	app, err := h.Workflow.AssignStage(r.Context(), appID(r),
		mortgage.StageName(chi.URLParam(r, "stage")), req.Reviewer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) ResubmitStage(w http.ResponseWriter, r *http.Request) {
	app, err := h.Workflow.ResubmitInfo(r.Context(), appID(r), mortgage.StageName(chi.URLParam(r, "stage")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	stages, err := h.Workflow.Advance(r.Context(), appID(r), mortgage.AdvanceCommand{
		Stage:      mortgage.StageName(req.Stage),
		Action:     mortgage.StageAction(req.Action),
		Actor:      req.Actor,
		Notes:      req.Notes,
		EscalateTo: req.EscalateTo,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stages)
}

func (h *Handler) SendOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	app, err := h.Workflow.SendOffer(r.Context(), appID(r), time.Duration(req.ValidDays)*24*time.Hour)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) RespondOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	app, err := h.Workflow.RespondOffer(r.Context(), appID(r), req.Accept)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) GenerateContract(w http.ResponseWriter, r *http.Request) {
	app, err := h.Workflow.GenerateContract(r.Context(), appID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) SignContract(w http.ResponseWriter, r *http.Request) {
	app, err := h.Workflow.SignContract(r.Context(), appID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

func (h *Handler) ActivateLease(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Workflow.ActivateLease(r.Context(), appID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Metrics.LeasesActivated.Inc()
	h.Logger.Info("lease activated",
		zap.String("applicationId", string(appID(r))),
		zap.String("accountId", string(acct.ID)))
	h.writeJSON(w, http.StatusCreated, ActivationResponse{Account: acct})
}

func (h *Handler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	app, err := h.Workflow.Cancel(r.Context(), appID(r), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, app)
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	status := mortgage.AccountStatus(r.URL.Query().Get("status"))
	accounts, err := h.Repo.ListAccounts(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	now := h.Clock.Now()
	snapshots := make([]mortgage.AccountSnapshot, 0, len(accounts))
	for _, acct := range accounts {
		snapshots = append(snapshots, acct.Snapshot(now, h.Policy))
	}
	h.writeJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Repo.GetAccount(r.Context(), acctID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acct.Snapshot(h.Clock.Now(), h.Policy))
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Repo.GetAccount(r.Context(), acctID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acct.Schedule)
}

func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Repo.GetAccount(r.Context(), acctID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, acct.Payments)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	amount, err := finance.NewMoneyFromString(req.Amount)
	if err != nil {
		h.writeError(w, badRequest("invalid amount"))
		return
	}
	acct, record, err := h.Ledger.RecordPayment(r.Context(), acctID(r), mortgage.PaymentInput{
		ScheduleSeq: req.ScheduleSeq,
		Amount:      amount,
		Method:      mortgage.PaymentMethod(req.Method),
		Reference:   req.Reference,
		PostedBy:    req.PostedBy,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Metrics.PaymentsRecorded.Inc()
	h.Logger.Info("payment recorded",
		zap.String("accountId", string(acct.ID)),
		zap.String("paymentId", record.ID),
		zap.String("amount", amount.String()))
	h.writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	var req ReversePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	acct, record, err := h.Ledger.ReversePayment(r.Context(), acctID(r),
		chi.URLParam(r, "payID"), req.Reference, req.PostedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Logger.Info("payment reversed",
		zap.String("accountId", string(acct.ID)),
		zap.String("paymentId", record.ReversesID),
		zap.String("reversalId", record.ID))
	h.writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) SettlementQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.Ledger.Quote(r.Context(), acctID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// =============================================================================
// ADJUSTMENT HANDLERS
// =============================================================================

func (h *Handler) RequestAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	params := mortgage.AdjustmentParams{
		NewTenorMonths: req.NewTenorMonths,
		DeferFromSeq:   req.DeferFromSeq,
		DeferToSeq:     req.DeferToSeq,
		WaiveSeq:       req.WaiveSeq,
	}
	var err error
	if req.NewInstallment != "" {
		if params.NewInstallment, err = finance.NewMoneyFromString(req.NewInstallment); err != nil {
			h.writeError(w, badRequest("invalid new installment"))
			return
		}
	}
	if req.LumpSum != "" {
		if params.LumpSum, err = finance.NewMoneyFromString(req.LumpSum); err != nil {
			h.writeError(w, badRequest("invalid lump sum"))
			return
		}
	}
	adj, err := h.Adjustments.RequestAdjustment(r.Context(), acctID(r),
		mortgage.AdjustmentType(req.Type), params, req.Reason, req.RequestedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, adj)
}

func (h *Handler) ApproveAdjustment(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	acct, err := h.Adjustments.Approve(r.Context(), acctID(r), chi.URLParam(r, "adjID"), req.DecidedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Metrics.AdjustmentsApproved.Inc()
	h.Logger.Info("adjustment approved",
		zap.String("accountId", string(acct.ID)),
		zap.String("adjustmentId", chi.URLParam(r, "adjID")))
	h.writeJSON(w, http.StatusOK, acct)
}

func (h *Handler) RejectAdjustment(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	adj, err := h.Adjustments.Reject(r.Context(), acctID(r), chi.URLParam(r, "adjID"), req.DecidedBy, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, adj)
}

// =============================================================================
// MILESTONE AND DISBURSEMENT HANDLERS
// =============================================================================

func (h *Handler) AddMilestone(w http.ResponseWriter, r *http.Request) {
	var req MilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	amount, err := finance.NewMoneyFromString(req.PaymentAmount)
	if err != nil {
		h.writeError(w, badRequest("invalid payment amount"))
		return
	}
	ms, err := h.Disbursements.AddMilestone(r.Context(), acctID(r), req.Name, amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, ms)
}

func (h *Handler) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	var req MilestoneProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	ms, err := h.Disbursements.UpdateProgress(r.Context(), acctID(r), chi.URLParam(r, "msID"), req.CompletionPercentage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ms)
}

func (h *Handler) RequestDisbursement(w http.ResponseWriter, r *http.Request) {
	var req DisbursementRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	amount, err := finance.NewMoneyFromString(req.Amount)
	if err != nil {
		h.writeError(w, badRequest("invalid amount"))
		return
	}
	dsb, err := h.Disbursements.RequestDisbursement(r.Context(), acctID(r), req.MilestoneID, amount, req.RequestedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, dsb)
}

func (h *Handler) ApproveDisbursement(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	dsb, err := h.Disbursements.ApproveDisbursement(r.Context(), acctID(r), chi.URLParam(r, "dsbID"), req.DecidedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Metrics.DisbursementsApproved.Inc()
	h.writeJSON(w, http.StatusOK, dsb)
}

func (h *Handler) RejectDisbursement(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body"))
		return
	}
	dsb, err := h.Disbursements.RejectDisbursement(r.Context(), acctID(r), chi.URLParam(r, "dsbID"), req.DecidedBy)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dsb)
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerSweep runs the delinquency sweep immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	refreshed, failed := RunSweep(r.Context(), h.Repo, h.Ledger, h.Logger, h.Metrics, 8)
	h.writeJSON(w, http.StatusOK, SweepResponse{Refreshed: refreshed, Failed: failed})
}

// =============================================================================
// HELPERS
// =============================================================================

func appID(r *http.Request) mortgage.ApplicationID {
	return mortgage.ApplicationID(chi.URLParam(r, "id"))
}

func acctID(r *http.Request) mortgage.AccountID {
	return mortgage.AccountID(chi.URLParam(r, "id"))
}

func badRequest(reason string) error {
	return &mortgage.ValidationError{Entity: "request", Reason: reason}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, mortgage.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, mortgage.ErrInvalidTransition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, mortgage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, mortgage.ErrConcurrencyConflict), errors.Is(err, mortgage.ErrDuplicateReference):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
