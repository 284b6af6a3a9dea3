package finance_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mortgage-engine/finance"
)

func TestMoney_ArithmeticKeepsPrecision(t *testing.T) {
	// GIVEN: Amounts that lose precision under float64
	// WHEN: Adding and subtracting
	// THEN: Results are exact

	a := finance.MustMoney("0.10")
	b := finance.MustMoney("0.20")
	assert.True(t, a.Add(b).Equal(finance.MustMoney("0.30")))
	assert.True(t, b.Sub(a).Equal(a))
}

func TestMoney_Round2(t *testing.T) {
	m := finance.MustMoney("45000.005")
	assert.Equal(t, "45000.01", m.Round2().String())

	m = finance.MustMoney("45000.0049")
	assert.Equal(t, "45000.00", m.Round2().String())
}

func TestMoney_MinMax(t *testing.T) {
	small := finance.NewMoneyFromInt(100)
	large := finance.NewMoneyFromInt(200)
	assert.True(t, small.Min(large).Equal(small))
	assert.True(t, small.Max(large).Equal(large))
}

func TestNewMoneyFromString_RejectsGarbage(t *testing.T) {
	_, err := finance.NewMoneyFromString("12,000")
	require.Error(t, err)
}

func TestRate_Monthly(t *testing.T) {
	// GIVEN: A 6% annual rate
	// WHEN: Deriving the monthly rate
	// THEN: It is exactly 0.005

	rate := finance.NewRate("0.06")
	assert.True(t, rate.Monthly().Equal(decimal.NewFromFloat(0.005)))
}

func TestNewRate_FallsBackToZeroOnParseFailure(t *testing.T) {
	assert.True(t, finance.NewRate("six percent").IsZero())
}

func TestPercentage_ZeroDenominator(t *testing.T) {
	p := finance.NewPercentage(finance.NewMoneyFromInt(5), finance.ZeroMoney())
	assert.Equal(t, 0.0, p.Float64())
}

func TestPercentage_OwnershipShare(t *testing.T) {
	// GIVEN: 3M paid of a 9M principal
	// WHEN: Computing the share
	// THEN: One third

	p := finance.NewPercentage(finance.NewMoneyFromInt(3_000_000), finance.NewMoneyFromInt(9_000_000))
	assert.InDelta(t, 1.0/3.0, p.Float64(), 1e-9)
}
