/*
Package mortgage implements the lifecycle core for non-interest home
financing: approval workflow, eligibility evaluation, payment/ownership
schedules, the payment ledger with delinquency detection, term adjustments,
and milestone-gated disbursements.

PURPOSE:
  The engine owns every mutation of an application or account. Outer layers
  (HTTP API, schedulers, dashboards) only submit commands and render
  committed state - they never predict or patch it.

KEY CONCEPTS IN THIS FILE (types.go):
  - MortgageApplication: A financing request moving through the workflow
  - ApprovalStage: One row per workflow stage (credit..board), sequential
  - MortgageAccount: The durable post-activation aggregate owning the
    schedule, ledger, adjustments, defaults, and disbursements
  - ScheduleItem: One due-date row with principal/rent split and balances
  - PaymentRecord: Append-only ledger entry, immutable once processed

DESIGN PRINCIPLES:
  1. Immutability: PaymentRecords are never edited; corrections are new
     compensating records
  2. Single writer: all account mutation goes through the services in this
     package against a versioned aggregate
  3. Derived state: overdue days, penalties, and ownership percentage are
     recomputed from the schedule and ledger, never stored independently
  4. Exhaustive enums: every status union is a typed constant set so switch
     sites are reviewable

SEE ALSO:
  - workflow.go:     Application status machine and stage advancement
  - eligibility.go:  Pure eligibility evaluation
  - schedule.go:     Rent/ownership schedule generation
  - ledger.go:       Payment recording and delinquency state machine
  - adjustment.go:   Restructuring engine (atomic schedule replacement)
  - disbursement.go: Milestone-gated fund releases
*/
package mortgage

import (
	"time"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ApplicationID string
type AccountID string
type CustomerID string

// =============================================================================
// FINANCING STRUCTURE
// =============================================================================

// FinancingType identifies the Islamic financing structure of a contract.
type FinancingType string

const (
	FinancingMurabaha  FinancingType = "murabaha"  // cost-plus sale, fixed markup
	FinancingIjara     FinancingType = "ijara"     // lease-to-own
	FinancingMusharaka FinancingType = "musharaka" // diminishing partnership
	FinancingIstisna   FinancingType = "istisna"   // construction financing
)

// IsDiminishingOwnership reports whether the structure amortizes by the
// customer buying out the bank's share month by month. Rent for these is
// computed on the bank's residual share (declining balance).
func (f FinancingType) IsDiminishingOwnership() bool {
	return f == FinancingMusharaka || f == FinancingIjara
}

func (f FinancingType) Valid() bool {
	switch f {
	case FinancingMurabaha, FinancingIjara, FinancingMusharaka, FinancingIstisna:
		return true
	}
	return false
}

// =============================================================================
// APPLICATION LIFECYCLE
// =============================================================================

type ApplicationStatus string

const (
	StatusDraft              ApplicationStatus = "draft"
	StatusSubmitted          ApplicationStatus = "submitted"
	StatusInReview           ApplicationStatus = "in_review"
	StatusCreditAssessment   ApplicationStatus = "credit_assessment"
	StatusLegalReview        ApplicationStatus = "legal_review"
	StatusShariahReview      ApplicationStatus = "shariah_review"
	StatusManagementApproval ApplicationStatus = "management_approval"
	StatusBoardApproval      ApplicationStatus = "board_approval"
	StatusApproved           ApplicationStatus = "approved"
	StatusOfferSent          ApplicationStatus = "offer_sent"
	StatusOfferAccepted      ApplicationStatus = "offer_accepted"
	StatusOfferRejected      ApplicationStatus = "offer_rejected"
	StatusOfferExpired       ApplicationStatus = "offer_expired"
	StatusContractGenerated  ApplicationStatus = "contract_generated"
	StatusContractSigned     ApplicationStatus = "contract_signed"
	StatusLeaseActivated     ApplicationStatus = "lease_activated"
	StatusRejected           ApplicationStatus = "rejected"
	StatusCancelled          ApplicationStatus = "cancelled"
)

// IsTerminal reports whether no further workflow action is possible.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case StatusLeaseActivated, StatusRejected, StatusCancelled, StatusOfferRejected, StatusOfferExpired:
		return true
	}
	return false
}

// =============================================================================
// APPROVAL STAGES - Fixed ordered sequence, maker-checker
// =============================================================================

type StageName string

const (
	StageCredit     StageName = "credit"
	StageLegal      StageName = "legal"
	StageShariah    StageName = "shariah"
	StageManagement StageName = "management"
	StageBoard      StageName = "board"
)

// StageSequence is the fixed review order. An application holds at most one
// ApprovalStage per name, and stages complete strictly in this order.
var StageSequence = []StageName{StageCredit, StageLegal, StageShariah, StageManagement, StageBoard}

// statusForStage maps the active review stage to the application status.
var statusForStage = map[StageName]ApplicationStatus{
	StageCredit:     StatusCreditAssessment,
	StageLegal:      StatusLegalReview,
	StageShariah:    StatusShariahReview,
	StageManagement: StatusManagementApproval,
	StageBoard:      StatusBoardApproval,
}

type StageStatus string

const (
	StagePending       StageStatus = "pending"
	StageInProgress    StageStatus = "in_progress"
	StageApproved      StageStatus = "approved"
	StageRejected      StageStatus = "rejected"
	StageInfoRequested StageStatus = "info_requested"
)

type StageAction string

const (
	ActionApprove     StageAction = "approve"
	ActionReject      StageAction = "reject"
	ActionRequestInfo StageAction = "request_info"
	ActionEscalate    StageAction = "escalate"
)

// ApprovalStage is one row of the workflow per stage per application.
// CompletedBy/CompletedAt are set iff status is approved or rejected.
type ApprovalStage struct {
	Stage       StageName   `json:"stage"`
	Status      StageStatus `json:"status"`
	AssignedTo  string      `json:"assignedTo,omitempty"`
	EscalatedTo string      `json:"escalatedTo,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	CompletedBy string      `json:"completedBy,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// =============================================================================
// APPLICATION - One per financing request
// =============================================================================

type DocumentType string

const (
	DocIdentity        DocumentType = "identity"
	DocIncomeProof     DocumentType = "income_proof"
	DocEmploymentProof DocumentType = "employment_proof"
	DocNHFStatement    DocumentType = "nhf_statement"
	DocPropertyTitle   DocumentType = "property_title"
	DocValuationReport DocumentType = "valuation_report"
)

// RequiredDocuments must all be verified before submission.
var RequiredDocuments = []DocumentType{DocIdentity, DocIncomeProof, DocEmploymentProof, DocNHFStatement}

type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentRejected DocumentStatus = "rejected"
)

// Property is attached once the customer selects a unit.
type Property struct {
	Address     string        `json:"address"`
	City        string        `json:"city"`
	State       string        `json:"state"`
	Value       finance.Money `json:"value"`
	DeveloperID string        `json:"developerId,omitempty"`
}

// FinancialDetails are computed once property and equity are chosen.
type FinancialDetails struct {
	PropertyValue      finance.Money      `json:"propertyValue"`
	EquityContribution finance.Money      `json:"equityContribution"`
	FinancingAmount    finance.Money      `json:"financingAmount"`
	EquityPercentage   finance.Percentage `json:"equityPercentage"`
	TenorMonths        int                `json:"tenorMonths"`
	RentRate           finance.Rate       `json:"rentRate"`
	PaymentDay         int                `json:"paymentDay"`
	GraceMonths        int                `json:"graceMonths"`
}

// Offer tracks the post-approval offer letter.
type Offer struct {
	SentAt      time.Time  `json:"sentAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
}

// MortgageApplication is one financing request moving through the approval
// workflow. Invariant: Stages never contains two entries with the same
// StageName, and their order follows StageSequence.
type MortgageApplication struct {
	ID            ApplicationID                   `json:"id"`
	CustomerID    CustomerID                      `json:"customerId"`
	FinancingType FinancingType                   `json:"financingType"`
	Status        ApplicationStatus               `json:"status"`
	Property      *Property                       `json:"property,omitempty"`
	Financials    *FinancialDetails               `json:"financials,omitempty"`
	Documents     map[DocumentType]DocumentStatus `json:"documents"`
	Eligibility   *EligibilityCheck               `json:"eligibility,omitempty"`
	Stages        []ApprovalStage                 `json:"stages"`
	Offer         *Offer                          `json:"offer,omitempty"`
	AccountID     AccountID                       `json:"accountId,omitempty"`
	CreatedAt     time.Time                       `json:"createdAt"`
	UpdatedAt     time.Time                       `json:"updatedAt"`

	// Version supports optimistic concurrency in the repository.
	Version int `json:"version"`
}

// StageByName returns the stage row, or nil if the workflow has not been
// initialized with it.
func (a *MortgageApplication) StageByName(name StageName) *ApprovalStage {
	for i := range a.Stages {
		if a.Stages[i].Stage == name {
			return &a.Stages[i]
		}
	}
	return nil
}

// Clone deep-copies the application so services can mutate a working copy
// and commit it atomically.
func (a *MortgageApplication) Clone() *MortgageApplication {
	cp := *a
	cp.Stages = append([]ApprovalStage(nil), a.Stages...)
	if a.Documents != nil {
		cp.Documents = make(map[DocumentType]DocumentStatus, len(a.Documents))
		for k, v := range a.Documents {
			cp.Documents[k] = v
		}
	}
	if a.Property != nil {
		p := *a.Property
		cp.Property = &p
	}
	if a.Financials != nil {
		f := *a.Financials
		cp.Financials = &f
	}
	if a.Eligibility != nil {
		e := *a.Eligibility
		e.IneligibilityReasons = append([]string(nil), a.Eligibility.IneligibilityReasons...)
		cp.Eligibility = &e
	}
	if a.Offer != nil {
		o := *a.Offer
		cp.Offer = &o
	}
	return &cp
}

// =============================================================================
// SCHEDULE - One row per due date
// =============================================================================

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentOverdue       PaymentStatus = "overdue"
	PaymentWaived        PaymentStatus = "waived"
)

// ScheduleItem is one due-date row. Rows are generated in a single batch,
// ordered by DueDate ascending, and are only ever replaced wholesale during
// restructuring - never partially edited.
type ScheduleItem struct {
	Sequence int           `json:"sequence"`
	DueDate  time.Time     `json:"dueDate"`
	Grace    bool          `json:"grace"`

	Principal   finance.Money `json:"principal"`
	Rent        finance.Money `json:"rent"`
	Maintenance finance.Money `json:"maintenance"`
	Amount      finance.Money `json:"amount"` // principal + rent + maintenance

	CumulativePrincipal finance.Money `json:"cumulativePrincipal"`
	RemainingBalance    finance.Money `json:"remainingBalance"`

	Status PaymentStatus `json:"status"`

	// PaidAmount accumulates postings against this row; CarriedForward is
	// the shortfall inherited from earlier partially-paid rows.
	PaidAmount     finance.Money `json:"paidAmount"`
	CarriedForward finance.Money `json:"carriedForward"`
}

// EffectiveDue is what clears the row: the scheduled amount plus inherited
// shortfall minus what has already been posted.
func (s *ScheduleItem) EffectiveDue() finance.Money {
	return s.Amount.Add(s.CarriedForward).Sub(s.PaidAmount)
}

// Settled reports whether the row needs no further payment.
func (s *ScheduleItem) Settled() bool {
	return s.Status == PaymentPaid || s.Status == PaymentWaived
}

// =============================================================================
// PAYMENT LEDGER - Append-only
// =============================================================================

type PaymentRecordStatus string

const (
	RecordProcessed PaymentRecordStatus = "processed"
	RecordReversed  PaymentRecordStatus = "reversed"
)

type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodNHFDeduction PaymentMethod = "nhf_deduction"
	MethodCard         PaymentMethod = "card"
	MethodCash         PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodNHFDeduction, MethodCard, MethodCash:
		return true
	}
	return false
}

// PaymentRecord is an append-only ledger entry. Once processed it is
// immutable; corrections require a new compensating record (see
// LedgerService.ReversePayment).
type PaymentRecord struct {
	ID          string              `json:"id"`
	AccountID   AccountID           `json:"accountId"`
	ScheduleSeq int                 `json:"scheduleSeq"`
	Amount      finance.Money       `json:"amount"`
	Method      PaymentMethod       `json:"method"`
	Reference   string              `json:"reference"`
	Status      PaymentRecordStatus `json:"status"`
	ProcessedAt time.Time           `json:"processedAt"`
	PostedBy    string              `json:"postedBy,omitempty"`

	// Allocations records how the amount spread across schedule rows, so a
	// reversal can un-credit exactly what was credited.
	Allocations []PaymentAllocation `json:"allocations,omitempty"`

	// ReversesID links a compensating record to the posting it unwinds.
	ReversesID string `json:"reversesId,omitempty"`
}

// PaymentAllocation is the slice of one payment credited to one row.
type PaymentAllocation struct {
	ScheduleSeq int           `json:"scheduleSeq"`
	Amount      finance.Money `json:"amount"`
}

// =============================================================================
// TERM ADJUSTMENTS
// =============================================================================

type AdjustmentType string

const (
	AdjustmentExtension  AdjustmentType = "extension"
	AdjustmentReduction  AdjustmentType = "reduction"
	AdjustmentPrepayment AdjustmentType = "prepayment"
	AdjustmentDeferral   AdjustmentType = "deferral"
	AdjustmentWaiver     AdjustmentType = "waiver"
)

func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentExtension, AdjustmentReduction, AdjustmentPrepayment, AdjustmentDeferral, AdjustmentWaiver:
		return true
	}
	return false
}

type AdjustmentStatus string

const (
	AdjustmentPending  AdjustmentStatus = "pending"
	AdjustmentApproved AdjustmentStatus = "approved"
	AdjustmentRejected AdjustmentStatus = "rejected"
)

// AdjustmentParams carries the type-specific inputs. Only the fields for
// the requested type are read.
type AdjustmentParams struct {
	NewTenorMonths int           `json:"newTenorMonths,omitempty"` // extension
	NewInstallment finance.Money `json:"newInstallment,omitempty"` // reduction
	LumpSum        finance.Money `json:"lumpSum,omitempty"`        // prepayment
	DeferFromSeq   int           `json:"deferFromSeq,omitempty"`   // deferral
	DeferToSeq     int           `json:"deferToSeq,omitempty"`     // deferral
	WaiveSeq       int           `json:"waiveSeq,omitempty"`       // waiver
}

// TermAdjustment is one restructuring request. Approval atomically replaces
// the account's schedule; rejection leaves everything untouched.
type TermAdjustment struct {
	ID            string           `json:"id"`
	AccountID     AccountID        `json:"accountId"`
	Type          AdjustmentType   `json:"type"`
	Status        AdjustmentStatus `json:"status"`
	EffectiveDate time.Time        `json:"effectiveDate"`
	Params        AdjustmentParams `json:"params"`
	Reason        string           `json:"reason,omitempty"`
	RequestedBy   string           `json:"requestedBy"`
	RequestedAt   time.Time        `json:"requestedAt"`
	DecidedBy     string           `json:"decidedBy,omitempty"`
	DecidedAt     *time.Time       `json:"decidedAt,omitempty"`
}

// =============================================================================
// DELINQUENCY
// =============================================================================

// DefaultRecord is opened when consecutive missed payments reach the
// configured threshold. At most one open record per account.
type DefaultRecord struct {
	ID          string     `json:"id"`
	AccountID   AccountID  `json:"accountId"`
	OpenedAt    time.Time  `json:"openedAt"`
	MissedCount int        `json:"missedCount"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// DelinquencyPolicy is configuration, not code: the consecutive-miss
// threshold and the daily penalty rate applied to overdue amounts.
type DelinquencyPolicy struct {
	ConsecutiveMissLimit int
	DailyPenaltyRate     finance.Rate
}

// DefaultDelinquencyPolicy mirrors the domain default of three consecutive
// missed payments before default, with no penalty accrual.
func DefaultDelinquencyPolicy() DelinquencyPolicy {
	return DelinquencyPolicy{ConsecutiveMissLimit: 3}
}

// =============================================================================
// DISBURSEMENTS & MILESTONES
// =============================================================================

type MilestoneStatus string

const (
	MilestonePlanned  MilestoneStatus = "planned"
	MilestoneVerified MilestoneStatus = "verified"
	MilestonePaid     MilestoneStatus = "paid"
)

// ProjectMilestone gates construction-stage fund releases (istisna).
type ProjectMilestone struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	CompletionPercentage int             `json:"completionPercentage"`
	PaymentAmount        finance.Money   `json:"paymentAmount"`
	Status               MilestoneStatus `json:"status"`
}

type DisbursementStatus string

const (
	DisbursementRequested DisbursementStatus = "requested"
	DisbursementApproved  DisbursementStatus = "approved"
	DisbursementRejected  DisbursementStatus = "rejected"
)

// DisbursementRequest releases part of the principal against a verified
// milestone. Invariant: total approved disbursements per milestone never
// exceed the milestone's PaymentAmount.
type DisbursementRequest struct {
	ID          string             `json:"id"`
	MilestoneID string             `json:"milestoneId"`
	Amount      finance.Money      `json:"amount"`
	Status      DisbursementStatus `json:"status"`
	RequestedBy string             `json:"requestedBy"`
	RequestedAt time.Time          `json:"requestedAt"`
	DecidedBy   string             `json:"decidedBy,omitempty"`
	DecidedAt   *time.Time         `json:"decidedAt,omitempty"`
}
