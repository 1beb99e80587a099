package loan

import (
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// CHARGE RULES
// =============================================================================

// ChargeTime is when a charge becomes due.
type ChargeTime string

const (
	ChargeAtDisbursement     ChargeTime = "disbursement"
	ChargeSpecifiedDueDate   ChargeTime = "specified_due_date"
	ChargeOverdueInstallment ChargeTime = "overdue_installment"
	ChargeInstallmentFee     ChargeTime = "installment_fee"
)

// ChargeCalculation is what a percentage charge is a percentage of.
type ChargeCalculation string

const (
	ChargeFlat                       ChargeCalculation = "flat"
	ChargePercentOfAmount            ChargeCalculation = "percent_of_amount"
	ChargePercentOfInterest          ChargeCalculation = "percent_of_interest"
	ChargePercentOfAmountAndInterest ChargeCalculation = "percent_of_amount_and_interest"
)

// ChargeRule is a fee or penalty attached to the loan.
//
// Amount is the flat amount for flat charges and the percentage for
// percentage charges. ChargeAmount is the precomputed money amount of an
// overdue-installment percentage charge, which is applied as is.
type ChargeRule struct {
	ID           string
	Name         string
	Penalty      bool
	Time         ChargeTime
	Calculation  ChargeCalculation
	Amount       decimal.Decimal
	DueDate      generic.TimePoint
	ChargeAmount *generic.Money

	// Window restricts installment fees to installments due inside it.
	Window *generic.DateRange
}

func (c ChargeRule) IsFee() bool                { return !c.Penalty }
func (c ChargeRule) IsPenalty() bool            { return c.Penalty }
func (c ChargeRule) IsDueAtDisbursement() bool  { return c.Time == ChargeAtDisbursement }
func (c ChargeRule) IsInstallmentFee() bool     { return c.Time == ChargeInstallmentFee }
func (c ChargeRule) IsOverdueInstallment() bool { return c.Time == ChargeOverdueInstallment }
func (c ChargeRule) IsSpecifiedDueDate() bool   { return c.Time == ChargeSpecifiedDueDate }
func (c ChargeRule) IsPercentage() bool         { return c.Calculation != ChargeFlat && c.Calculation != "" }
func (c ChargeRule) IsPercentOfAmount() bool    { return c.Calculation == ChargePercentOfAmount }
func (c ChargeRule) IsPercentOfInterest() bool  { return c.Calculation == ChargePercentOfInterest }
func (c ChargeRule) IsPercentOfAmountAndInterest() bool {
	return c.Calculation == ChargePercentOfAmountAndInterest
}

// IsDueWithin applies the boundary rule: the first period includes its
// start date, later periods exclude it (the previous period owns it).
func (c ChargeRule) IsDueWithin(from, to generic.TimePoint, firstPeriod bool) bool {
	if c.DueDate.IsZero() {
		return false
	}
	r := generic.DateRange{Start: from, End: to}
	if firstPeriod {
		return r.Contains(c.DueDate)
	}
	return r.ContainsAfterStart(c.DueDate)
}

// AppliesToInstallment reports whether an installment fee covers an
// installment due on dueDate.
func (c ChargeRule) AppliesToInstallment(dueDate generic.TimePoint) bool {
	if c.Window == nil {
		return true
	}
	return c.Window.Contains(dueDate)
}

// NeedsFinalTotals is true for charges whose amount depends on the total
// interest of the whole schedule, which is only known after the loop.
func (c ChargeRule) NeedsFinalTotals() bool {
	return c.IsSpecifiedDueDate() && (c.IsPercentOfInterest() || c.IsPercentOfAmountAndInterest())
}

func (c ChargeRule) Validate() error {
	switch c.Time {
	case ChargeAtDisbursement, ChargeSpecifiedDueDate, ChargeOverdueInstallment, ChargeInstallmentFee:
	default:
		return &generic.ValidationErrorDetail{Field: "charge.time", Message: "unknown charge time " + string(c.Time)}
	}
	switch c.Calculation {
	case ChargeFlat, ChargePercentOfAmount, ChargePercentOfInterest, ChargePercentOfAmountAndInterest:
	default:
		return &generic.ValidationErrorDetail{Field: "charge.calculation", Message: "unknown calculation " + string(c.Calculation)}
	}
	if c.Amount.IsNegative() {
		return &generic.ValidationErrorDetail{Field: "charge.amount", Message: "must not be negative"}
	}
	if (c.IsSpecifiedDueDate() || c.IsOverdueInstallment()) && c.DueDate.IsZero() {
		return &generic.ValidationErrorDetail{Field: "charge.due_date", Message: "required for " + string(c.Time)}
	}
	return nil
}
