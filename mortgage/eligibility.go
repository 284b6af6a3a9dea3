/*
eligibility.go - Pure eligibility evaluation

PURPOSE:
  Answers "can this customer be financed?" from financial inputs and
  configurable criteria. No side effects beyond the returned check; re-runs
  with identical inputs produce identical results (only CheckedAt tracks
  the clock).

DECISION RULE:
  - All four sub-checks pass              -> eligible
  - Income check fails                    -> ineligible (income is a hard gate)
  - Income passes, any soft check fails   -> conditional (manual override path)

  IneligibilityReasons carries one human-readable string per failing check,
  in the fixed order {income, NHF, DTI, employment}.

SEE ALSO:
  - workflow.go: RunEligibility stores the result on the application;
    re-checks replace the check wholesale, never patch it
*/
package mortgage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/mortgage-engine/finance"
)

// =============================================================================
// INPUTS
// =============================================================================

// CustomerFinancials are the applicant's verified monthly figures.
type CustomerFinancials struct {
	MonthlyIncome          finance.Money `json:"monthlyIncome"`
	MonthlyDebtObligations finance.Money `json:"monthlyDebtObligations"`
	NHFContributionMonths  int           `json:"nhfContributionMonths"`
	NHFActive              bool          `json:"nhfActive"`
	EmploymentMonths       int           `json:"employmentMonths"`
}

// EligibilityCriteria are policy thresholds, configurable per product.
type EligibilityCriteria struct {
	MinIncome                finance.Money   `json:"minIncome"`
	MaxDebtToIncomeRatio     decimal.Decimal `json:"maxDebtToIncomeRatio"`
	RequiresNHFContribution  bool            `json:"requiresNhfContribution"`
	MinNHFContributionMonths int             `json:"minNhfContributionMonths"`
	MinEmploymentMonths      int             `json:"minEmploymentMonths"`
}

// DefaultEligibilityCriteria mirrors the NHF product defaults.
func DefaultEligibilityCriteria() EligibilityCriteria {
	return EligibilityCriteria{
		MinIncome:                finance.NewMoneyFromInt(200_000),
		MaxDebtToIncomeRatio:     decimal.NewFromFloat(0.4),
		RequiresNHFContribution:  true,
		MinNHFContributionMonths: 6,
		MinEmploymentMonths:      12,
	}
}

// =============================================================================
// RESULT
// =============================================================================

type EligibilityStatus string

const (
	EligibilityEligible    EligibilityStatus = "eligible"
	EligibilityIneligible  EligibilityStatus = "ineligible"
	EligibilityConditional EligibilityStatus = "conditional"
	EligibilityPending     EligibilityStatus = "pending"
)

// EligibilityCheck is owned by exactly one application and immutable once
// computed; a re-check replaces it wholesale.
type EligibilityCheck struct {
	Status               EligibilityStatus `json:"status"`
	IncomeOK             bool              `json:"incomeOk"`
	NHFOK                bool              `json:"nhfOk"`
	DebtToIncomeOK       bool              `json:"debtToIncomeOk"`
	EmploymentOK         bool              `json:"employmentOk"`
	IneligibilityReasons []string          `json:"ineligibilityReasons,omitempty"`
	CheckedAt            time.Time         `json:"checkedAt"`
}

// =============================================================================
// EVALUATOR
// =============================================================================

// EvaluateEligibility runs the four sub-checks independently and derives
// the overall status. Pure: the only clock dependence is CheckedAt.
func EvaluateEligibility(fin CustomerFinancials, criteria EligibilityCriteria, now time.Time) EligibilityCheck {
	check := EligibilityCheck{CheckedAt: now}

	check.IncomeOK = fin.MonthlyIncome.GreaterOrEqual(criteria.MinIncome)

	check.NHFOK = true
	if criteria.RequiresNHFContribution {
		check.NHFOK = fin.NHFActive && fin.NHFContributionMonths >= criteria.MinNHFContributionMonths
	}

	check.DebtToIncomeOK = true
	if fin.MonthlyIncome.IsPositive() {
		ratio := fin.MonthlyDebtObligations.Value.Div(fin.MonthlyIncome.Value)
		check.DebtToIncomeOK = ratio.LessThanOrEqual(criteria.MaxDebtToIncomeRatio)
	} else {
		check.DebtToIncomeOK = fin.MonthlyDebtObligations.IsZero()
	}

	check.EmploymentOK = fin.EmploymentMonths >= criteria.MinEmploymentMonths

	switch {
	case check.IncomeOK && check.NHFOK && check.DebtToIncomeOK && check.EmploymentOK:
		check.Status = EligibilityEligible
	case !check.IncomeOK:
		// Income is the hard gate: no manual override path.
		check.Status = EligibilityIneligible
	default:
		// Soft checks failed; the case proceeds to manual override, and the
		// boolean sub-checks show the reviewer what to look at.
		check.Status = EligibilityConditional
	}

	// IneligibilityReasons is non-empty iff the check is ineligible, one
	// entry per failing check in fixed order: income, NHF, DTI, employment.
	if check.Status == EligibilityIneligible {
		if !check.IncomeOK {
			check.IneligibilityReasons = append(check.IneligibilityReasons,
				fmt.Sprintf("monthly income %s is below the minimum of %s",
					fin.MonthlyIncome, criteria.MinIncome))
		}
		if !check.NHFOK {
			check.IneligibilityReasons = append(check.IneligibilityReasons,
				fmt.Sprintf("NHF contribution history of %d months does not meet the required %d months",
					fin.NHFContributionMonths, criteria.MinNHFContributionMonths))
		}
		if !check.DebtToIncomeOK {
			check.IneligibilityReasons = append(check.IneligibilityReasons,
				fmt.Sprintf("debt-to-income ratio exceeds the maximum of %s", criteria.MaxDebtToIncomeRatio))
		}
		if !check.EmploymentOK {
			check.IneligibilityReasons = append(check.IneligibilityReasons,
				fmt.Sprintf("employment tenure of %d months does not meet the required %d months",
					fin.EmploymentMonths, criteria.MinEmploymentMonths))
		}
	}
	return check
}
