/*
Package finance provides the monetary and calendar primitives shared by the
mortgage engine.

PURPOSE:
  Every balance, installment, and rate in the system flows through these
  types. Whether computing a rent split, an outstanding balance, or a
  settlement quote, the same decimal-backed arithmetic applies.

KEY CONCEPTS IN THIS FILE (money.go):
  - Money: A naira amount backed by decimal.Decimal (never float64)
  - Rate: An annual rate (e.g., 0.06 for 6%/yr) with monthly derivation

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal end to end; rounding happens only at
     schedule-row boundaries, and the final row absorbs any remainder
  2. Immutability: Money values are never mutated, only derived
  3. No unit mixing: rates are not Money and cannot be added to balances

USAGE:
  principal := finance.NewMoney(9_000_000)
  rate := finance.NewRate("0.06")
  monthlyRent := principal.MulDecimal(rate.Monthly())

SEE ALSO:
  - dates.go: Due-date arithmetic (payment-day pinning, month clamping)
  - clock.go: Injectable time source for deterministic tests
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Naira amount backed by decimal
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

func NewMoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

func MustMoney(s string) Money {
	m, err := NewMoneyFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return m
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money              { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money              { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money    { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money    { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                     { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) IsPositive() bool               { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool       { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterOrEqual(o Money) bool    { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool          { return m.Value.LessThan(o.Value) }
func (m Money) LessOrEqual(o Money) bool       { return m.Value.LessThanOrEqual(o.Value) }
func (m Money) Equal(o Money) bool             { return m.Value.Equal(o.Value) }
func (m Money) Min(o Money) Money              { if m.LessThan(o) { return m }; return o }
func (m Money) Max(o Money) Money              { if m.GreaterThan(o) { return m }; return o }

// Round2 rounds to kobo (2 decimal places). Schedule rows carry rounded
// amounts; the final row absorbs the accumulated remainder.
func (m Money) Round2() Money { return Money{Value: m.Value.Round(2)} }

func (m Money) String() string { return m.Value.StringFixed(2) }

// =============================================================================
// RATE - Annual rate with monthly derivation
// =============================================================================

// Rate is an annual rate expressed as a decimal fraction (0.06 = 6%/yr).
// For ijara/musharaka products this is the rent rate applied to the bank's
// unpurchased share; for murabaha/istisna it is the profit rate.
type Rate struct {
	Annual decimal.Decimal
}

func NewRate(s string) Rate {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{Annual: decimal.Zero}
	}
	return Rate{Annual: d}
}

func NewRateFromFloat(f float64) Rate {
	return Rate{Annual: decimal.NewFromFloat(f)}
}

// Monthly returns the periodic rate for monthly schedules.
func (r Rate) Monthly() decimal.Decimal {
	return r.Annual.Div(decimal.NewFromInt(12))
}

func (r Rate) IsZero() bool     { return r.Annual.IsZero() }
func (r Rate) IsNegative() bool { return r.Annual.IsNegative() }

// Percentage is a share expressed as a decimal fraction in [0, 1].
// Used for ownership and equity splits.
type Percentage struct {
	Value decimal.Decimal
}

func NewPercentage(numerator, denominator Money) Percentage {
	if denominator.IsZero() {
		return Percentage{Value: decimal.Zero}
	}
	return Percentage{Value: numerator.Value.Div(denominator.Value)}
}

func (p Percentage) GreaterOrEqual(o Percentage) bool {
	return p.Value.GreaterThanOrEqual(o.Value)
}

func (p Percentage) Float64() float64 {
	f, _ := p.Value.Float64()
	return f
}
