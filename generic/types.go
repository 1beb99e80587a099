/*
Package generic provides the domain-agnostic primitives of the schedule engine.

PURPOSE:
  This package contains the value types every other package computes with:
  money in a currency, the precision-and-rounding policy applied to every
  division, calendar dates, date ranges and the errors the engine reports.
  Nothing in here knows what a loan is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Currency: ISO code plus the number of decimal places money is kept at
  - Money: An exact decimal amount in a currency
  - MathContext: Scale and rounding mode used for division and percentages
  - RoundingMode: HALF_UP, HALF_DOWN, HALF_EVEN, UP, DOWN, CEILING, FLOOR

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal, never float64, for every amount
  2. Explicit rounding: Division always names its scale and rounding mode
  3. Immutability: Money operations return new values

USAGE:
  usd := generic.Currency{Code: "USD", DecimalPlaces: 2}
  mc := generic.DefaultMathContext()
  installment := mc.RoundMoney(generic.NewMoney(1000, usd).Mul(rate))

SEE ALSO:
  - time.go: TimePoint and the holiday calendar
  - period.go: DateRange and repayment frequencies
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CURRENCY & MONEY
// =============================================================================

type Currency struct {
	Code          string
	DecimalPlaces int32
}

func (c Currency) String() string { return c.Code }

type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

func NewMoney(value int64, currency Currency) Money {
	return Money{Amount: decimal.NewFromInt(value), Currency: currency}
}

func NewMoneyFromString(value string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

func Zero(currency Currency) Money { return Money{Amount: decimal.Zero, Currency: currency} }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (m Money) Zero() Money                      { return Money{Amount: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(o Money) Money                { return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency} }
func (m Money) Sub(o Money) Money                { return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency} }
func (m Money) Mul(s decimal.Decimal) Money      { return Money{Amount: m.Amount.Mul(s), Currency: m.Currency} }
func (m Money) Neg() Money                       { return Money{Amount: m.Amount.Neg(), Currency: m.Currency} }
func (m Money) IsZero() bool                     { return m.Amount.IsZero() }
func (m Money) IsNegative() bool                 { return m.Amount.IsNegative() }
func (m Money) IsPositive() bool                 { return m.Amount.IsPositive() }
func (m Money) Equal(o Money) bool               { return m.Amount.Equal(o.Amount) }
func (m Money) GreaterThan(o Money) bool         { return m.Amount.GreaterThan(o.Amount) }
func (m Money) GreaterThanOrEqual(o Money) bool  { return m.Amount.GreaterThanOrEqual(o.Amount) }
func (m Money) LessThan(o Money) bool            { return m.Amount.LessThan(o.Amount) }
func (m Money) LessThanOrEqual(o Money) bool     { return m.Amount.LessThanOrEqual(o.Amount) }
func (m Money) String() string                   { return m.Amount.StringFixed(m.Currency.DecimalPlaces) }

func (m Money) Min(o Money) Money {
	if o.LessThan(m) {
		return o
	}
	return m
}

func (m Money) Max(o Money) Money {
	if o.GreaterThan(m) {
		return o
	}
	return m
}

// Sum adds amounts in the currency of the first one.
func Sum(currency Currency, amounts ...Money) Money {
	total := Zero(currency)
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// MATH CONTEXT - Precision and rounding policy
// =============================================================================

type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "HALF_UP"
	RoundHalfDown RoundingMode = "HALF_DOWN"
	RoundHalfEven RoundingMode = "HALF_EVEN"
	RoundUp       RoundingMode = "UP"
	RoundDown     RoundingMode = "DOWN"
	RoundCeiling  RoundingMode = "CEILING"
	RoundFloor    RoundingMode = "FLOOR"
)

func (r RoundingMode) Valid() bool {
	switch r {
	case RoundHalfUp, RoundHalfDown, RoundHalfEven, RoundUp, RoundDown, RoundCeiling, RoundFloor:
		return true
	}
	return false
}

// MathContext is the caller-supplied policy for every division, percentage
// and money rounding the engine performs. Scale is the number of fractional
// digits kept by intermediate divisions.
type MathContext struct {
	Scale    int32
	Rounding RoundingMode
}

func DefaultMathContext() MathContext {
	return MathContext{Scale: 19, Rounding: RoundHalfEven}
}

// Div divides a by b at the context scale. Division by zero yields zero.
func (mc MathContext) Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return divRound(a, b, mc.Scale, mc.Rounding)
}

// Percent returns base * pct / 100.
func (mc MathContext) Percent(base, pct decimal.Decimal) decimal.Decimal {
	return mc.Div(base.Mul(pct), decimal.NewFromInt(100))
}

// RoundTo rounds d to the given number of fractional digits.
func (mc MathContext) RoundTo(d decimal.Decimal, places int32) decimal.Decimal {
	return divRound(d, decimal.NewFromInt(1), places, mc.Rounding)
}

// RoundMoney rounds m to the decimal places of its currency.
func (mc MathContext) RoundMoney(m Money) Money {
	return Money{Amount: mc.RoundTo(m.Amount, m.Currency.DecimalPlaces), Currency: m.Currency}
}

// RoundToMultiple rounds m to the nearest multiple (HALF_UP). A zero or
// negative multiple leaves m unchanged.
func RoundToMultiple(m Money, multiple decimal.Decimal) Money {
	if !multiple.IsPositive() {
		return m
	}
	units := divRound(m.Amount, multiple, 0, RoundHalfUp)
	return Money{Amount: units.Mul(multiple), Currency: m.Currency}
}

// divRound computes a/b rounded to places fractional digits. The remainder
// from QuoRem decides the rounding so the result is exact for every mode.
func divRound(a, b decimal.Decimal, places int32, mode RoundingMode) decimal.Decimal {
	q, r := a.QuoRem(b, places)
	if r.IsZero() {
		return q
	}

	unit := decimal.New(1, -places)
	negative := a.Sign()*b.Sign() < 0
	away := func() decimal.Decimal {
		if negative {
			return q.Sub(unit)
		}
		return q.Add(unit)
	}

	// twice the discarded fraction compared with one unit of the last place
	cmp := r.Abs().Mul(decimal.NewFromInt(2)).Cmp(b.Abs().Mul(unit))

	switch mode {
	case RoundDown:
		return q
	case RoundUp:
		return away()
	case RoundCeiling:
		if negative {
			return q
		}
		return away()
	case RoundFloor:
		if negative {
			return away()
		}
		return q
	case RoundHalfDown:
		if cmp > 0 {
			return away()
		}
		return q
	case RoundHalfEven:
		if cmp > 0 {
			return away()
		}
		if cmp == 0 {
			lastDigit := q.Shift(places).Abs().Mod(decimal.NewFromInt(2))
			if !lastDigit.IsZero() {
				return away()
			}
		}
		return q
	default:
		if cmp >= 0 {
			return away()
		}
		return q
	}
}
