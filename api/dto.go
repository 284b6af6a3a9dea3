/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *Request: Request body types from clients
  - Domain aggregates and snapshots serialize directly where their JSON
    shape already is the contract (schedule rows, snapshots, records).

VALIDATION:
  Validation is done in the domain services, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/mortgage-engine/mortgage"
)

// =============================================================================
// APPLICATION REQUESTS
// =============================================================================

// CreateApplicationRequest opens a draft.
type CreateApplicationRequest struct {
	CustomerID    string `json:"customerId"`
	FinancingType string `json:"financingType"`
}

// AttachPropertyRequest sets the property and financing terms on a draft.
type AttachPropertyRequest struct {
	Property struct {
		Address string `json:"address"`
		City    string `json:"city"`
		State   string `json:"state"`
		Value   string `json:"value"`
	} `json:"property"`
	EquityContribution string `json:"equityContribution"`
	TenorMonths        int    `json:"tenorMonths"`
	AnnualRentRate     string `json:"annualRentRate"`
	PaymentDay         int    `json:"paymentDay"`
	GraceMonths        int    `json:"graceMonths"`
}

// SetDocumentRequest records a document verification outcome.
type SetDocumentRequest struct {
	Status string `json:"status"`
}

// EligibilityRequest carries the applicant's financial profile.
type EligibilityRequest struct {
	MonthlyIncome          string `json:"monthlyIncome"`
	MonthlyDebtObligations string `json:"monthlyDebtObligations"`
	NHFContributionMonths  int    `json:"nhfContributionMonths"`
	NHFActive              bool   `json:"nhfActive"`
	EmploymentMonths       int    `json:"employmentMonths"`
}

// AdvanceRequest is one reviewer action on one approval stage.
type AdvanceRequest struct {
	Stage      string `json:"stage"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	Notes      string `json:"notes,omitempty"`
	EscalateTo string `json:"escalateTo,omitempty"`
}

// AssignStageRequest hands a stage to a reviewer.
type AssignStageRequest struct {
	Reviewer string `json:"reviewer"`
}

// OfferRequest issues the offer letter.
type OfferRequest struct {
	ValidDays int `json:"validDays"`
}

// OfferResponseRequest records the customer's decision.
type OfferResponseRequest struct {
	Accept bool `json:"accept"`
}

// CancelRequest withdraws an application.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// ACCOUNT REQUESTS
// =============================================================================

// RecordPaymentRequest posts a payment against a schedule row.
type RecordPaymentRequest struct {
	ScheduleSeq int    `json:"scheduleSeq"`
	Amount      string `json:"amount"`
	Method      string `json:"method"`
	Reference   string `json:"reference"`
	PostedBy    string `json:"postedBy"`
}

// ReversePaymentRequest unwinds a posted payment with a compensating
// record carrying its own bank reference.
type ReversePaymentRequest struct {
	Reference string `json:"reference"`
	PostedBy  string `json:"postedBy"`
}

// AdjustmentRequest opens a restructuring request.
type AdjustmentRequest struct {
	Type           string `json:"type"`
	NewTenorMonths int    `json:"newTenorMonths,omitempty"`
	NewInstallment string `json:"newInstallment,omitempty"`
	LumpSum        string `json:"lumpSum,omitempty"`
	DeferFromSeq   int    `json:"deferFromSeq,omitempty"`
	DeferToSeq     int    `json:"deferToSeq,omitempty"`
	WaiveSeq       int    `json:"waiveSeq,omitempty"`
	Reason         string `json:"reason,omitempty"`
	RequestedBy    string `json:"requestedBy"`
}

// DecisionRequest approves or rejects a pending item (adjustment or
// disbursement).
type DecisionRequest struct {
	DecidedBy string `json:"decidedBy"`
	Reason    string `json:"reason,omitempty"`
}

// MilestoneRequest registers a planned construction stage.
type MilestoneRequest struct {
	Name          string `json:"name"`
	PaymentAmount string `json:"paymentAmount"`
}

// MilestoneProgressRequest records inspected completion.
type MilestoneProgressRequest struct {
	CompletionPercentage int `json:"completionPercentage"`
}

// DisbursementRequestBody opens a tranche request against a milestone.
type DisbursementRequestBody struct {
	MilestoneID string `json:"milestoneId"`
	Amount      string `json:"amount"`
	RequestedBy string `json:"requestedBy"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ActivationResponse returns the newly created account.
type ActivationResponse struct {
	Account *mortgage.MortgageAccount `json:"account"`
}

// SweepResponse summarizes a delinquency sweep.
type SweepResponse struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}
