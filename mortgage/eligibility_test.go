package mortgage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mortgage-engine/finance"
	"github.com/warp/mortgage-engine/mortgage"
)

var checkedAt = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

func goodFinancials() mortgage.CustomerFinancials {
	return mortgage.CustomerFinancials{
		MonthlyIncome:          finance.NewMoneyFromInt(650_000),
		MonthlyDebtObligations: finance.NewMoneyFromInt(100_000),
		NHFContributionMonths:  24,
		NHFActive:              true,
		EmploymentMonths:       36,
	}
}

func TestEvaluateEligibility_AllChecksPass(t *testing.T) {
	// GIVEN: A customer clearing every threshold
	// WHEN: Evaluating
	// THEN: Eligible, no reasons recorded

	check := mortgage.EvaluateEligibility(goodFinancials(), mortgage.DefaultEligibilityCriteria(), checkedAt)

	assert.Equal(t, mortgage.EligibilityEligible, check.Status)
	assert.True(t, check.IncomeOK)
	assert.True(t, check.NHFOK)
	assert.True(t, check.DebtToIncomeOK)
	assert.True(t, check.EmploymentOK)
	assert.Empty(t, check.IneligibilityReasons)
}

func TestEvaluateEligibility_LowIncomeIsHardGate(t *testing.T) {
	// GIVEN: Income below the minimum but every other check passing
	// WHEN: Evaluating
	// THEN: Ineligible with exactly one reason, naming income

	fin := goodFinancials()
	fin.MonthlyIncome = finance.NewMoneyFromInt(150_000)
	fin.MonthlyDebtObligations = finance.ZeroMoney()

	check := mortgage.EvaluateEligibility(fin, mortgage.DefaultEligibilityCriteria(), checkedAt)

	assert.Equal(t, mortgage.EligibilityIneligible, check.Status)
	require.Len(t, check.IneligibilityReasons, 1)
	assert.Contains(t, check.IneligibilityReasons[0], "income")
}

func TestEvaluateEligibility_SoftFailureIsConditional(t *testing.T) {
	// GIVEN: Income passing but NHF history too short
	// WHEN: Evaluating
	// THEN: Conditional, and reasons stay empty (reasons only accompany
	//       an ineligible verdict)

	fin := goodFinancials()
	fin.NHFContributionMonths = 2

	check := mortgage.EvaluateEligibility(fin, mortgage.DefaultEligibilityCriteria(), checkedAt)

	assert.Equal(t, mortgage.EligibilityConditional, check.Status)
	assert.False(t, check.NHFOK)
	assert.Empty(t, check.IneligibilityReasons)
}

func TestEvaluateEligibility_MultipleFailuresListEveryReason(t *testing.T) {
	// GIVEN: Low income, no NHF history, heavy debt, short employment
	// WHEN: Evaluating
	// THEN: Ineligible with all four reasons in fixed order

	fin := mortgage.CustomerFinancials{
		MonthlyIncome:          finance.NewMoneyFromInt(100_000),
		MonthlyDebtObligations: finance.NewMoneyFromInt(90_000),
		NHFContributionMonths:  0,
		NHFActive:              false,
		EmploymentMonths:       3,
	}

	check := mortgage.EvaluateEligibility(fin, mortgage.DefaultEligibilityCriteria(), checkedAt)

	assert.Equal(t, mortgage.EligibilityIneligible, check.Status)
	require.Len(t, check.IneligibilityReasons, 4)
	assert.Contains(t, check.IneligibilityReasons[0], "income")
	assert.Contains(t, check.IneligibilityReasons[1], "NHF")
	assert.Contains(t, check.IneligibilityReasons[2], "debt-to-income")
	assert.Contains(t, check.IneligibilityReasons[3], "employment")
}

func TestEvaluateEligibility_DTIBoundaryIsInclusive(t *testing.T) {
	// GIVEN: Debt exactly at 40% of income
	// WHEN: Evaluating
	// THEN: The DTI check passes

	fin := goodFinancials()
	fin.MonthlyIncome = finance.NewMoneyFromInt(500_000)
	fin.MonthlyDebtObligations = finance.NewMoneyFromInt(200_000)

	check := mortgage.EvaluateEligibility(fin, mortgage.DefaultEligibilityCriteria(), checkedAt)
	assert.True(t, check.DebtToIncomeOK)
	assert.Equal(t, mortgage.EligibilityEligible, check.Status)
}

func TestEvaluateEligibility_NHFNotRequired(t *testing.T) {
	// GIVEN: A product that waives the NHF requirement
	// WHEN: Evaluating a customer with no NHF history
	// THEN: The NHF check passes

	criteria := mortgage.DefaultEligibilityCriteria()
	criteria.RequiresNHFContribution = false

	fin := goodFinancials()
	fin.NHFActive = false
	fin.NHFContributionMonths = 0

	check := mortgage.EvaluateEligibility(fin, criteria, checkedAt)
	assert.True(t, check.NHFOK)
	assert.Equal(t, mortgage.EligibilityEligible, check.Status)
}
