/*
Package loan defines the input model of a schedule: the loan terms.

PURPOSE:
  Terms carries everything the engine needs to derive a repayment schedule:
  principal and currency, the disbursement plan, interest settings, the
  repayment cadence, charges, down-payment rules and mid-term variations.
  Terms are data; the schedule package reads them and performs a small,
  documented set of mutations while generating.

KEY CONCEPTS:
  - Terms: The loan product and account parameters
  - Tranche: One planned disbursement (date, amount)
  - ChargeRule: A fee or penalty with a time basis and a calculation basis
  - TermVariation: A due-date shift, rate change or installment amount
    override, consumed exactly once

ENGINE MUTATIONS (the only fields the engine writes):
  - Principal: increased by each later tranche, reduced by each down payment
  - CurrentFixedInstallment: reset to FixedInstallment on every disbursement
    and down payment, overwritten by installment-amount variations
  - Variations: consumed flags
  - VariationDays: days added or removed by due-date shifts
  - LoanEndDate: the last due date computed at the start of generation

  Callers that need repeatable generation pass a Clone().

SEE ALSO:
  - charge.go: Charge time and calculation bases
  - variation.go: TermVariations set
  - schedule/engine.go: Consumes Terms
*/
package loan

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// ENUMS
// =============================================================================

type InterestMethod string

const (
	InterestDecliningBalance InterestMethod = "declining_balance"
	InterestFlat             InterestMethod = "flat"
)

type AmortizationMethod string

const (
	AmortizationEqualInstallments AmortizationMethod = "equal_installments"
	AmortizationEqualPrincipal    AmortizationMethod = "equal_principal"
)

// InterestPeriodType decides how the annual rate is turned into a
// per-period rate: once per repayment period, or day by day.
type InterestPeriodType string

const (
	InterestPeriodSameAsRepayment InterestPeriodType = "same_as_repayment"
	InterestPeriodDaily           InterestPeriodType = "daily"
)

// RateFrequency is the period the nominal rate is quoted for.
type RateFrequency string

const (
	RatePerYear  RateFrequency = "per_year"
	RatePerMonth RateFrequency = "per_month"
)

// RepaymentStartMode decides which date opens the first period.
type RepaymentStartMode string

const (
	StartFromDisbursementDate RepaymentStartMode = "disbursement_date"
	StartFromSubmittedOnDate  RepaymentStartMode = "submitted_on_date"
)

// DaysInYear of 0 means actual days of the calendar year.
const DaysInYearActual = 0

// =============================================================================
// TERMS
// =============================================================================

// Tranche is one planned disbursement.
type Tranche struct {
	Date   generic.TimePoint
	Amount generic.Money
}

// Recalculation configures the lagged balance used for interest. When
// disabled, principal reductions take effect on the installment due date.
type Recalculation struct {
	Enabled       bool
	RestFrequency generic.Frequency
}

type Terms struct {
	Principal   generic.Money
	Currency    generic.Currency
	MathContext generic.MathContext

	// Interest
	AnnualRate         decimal.Decimal // nominal rate in percent, e.g. 12 = 12%
	RateFrequency      RateFrequency
	InterestPeriodType InterestPeriodType
	DaysInYear         int
	InterestMethod     InterestMethod
	Amortization       AmortizationMethod
	Recalculation      Recalculation

	// Cadence
	RepaymentEvery       generic.Frequency
	NumberOfRepayments   int
	ExpectedDisbursement generic.TimePoint
	SubmittedOn          generic.TimePoint
	FirstRepaymentDate   *generic.TimePoint
	StartMode            RepaymentStartMode
	OfficeID             string

	// Disbursements
	Tranches             []Tranche
	MultiDisburse        bool
	MaxOutstandingAmount *generic.Money

	// Down payment
	DownPaymentEnabled    bool
	DownPaymentPercentage decimal.Decimal

	// Installments
	InstallmentMultiple     decimal.Decimal
	FixedInstallment        *generic.Money
	CurrentFixedInstallment *generic.Money

	Charges    []ChargeRule
	Variations *TermVariations

	// Written by the engine.
	VariationDays int
	LoanEndDate   generic.TimePoint
}

// RepaymentStart returns the date that opens the first period.
func (t *Terms) RepaymentStart() generic.TimePoint {
	if t.StartMode == StartFromSubmittedOnDate && !t.SubmittedOn.IsZero() {
		return t.SubmittedOn
	}
	return t.ExpectedDisbursement
}

// DisbursementPlan returns the tranches, or a single tranche of the
// principal on the expected disbursement date when no plan is given.
func (t *Terms) DisbursementPlan() []Tranche {
	if len(t.Tranches) > 0 {
		return t.Tranches
	}
	return []Tranche{{Date: t.ExpectedDisbursement, Amount: t.Principal}}
}

// TotalPlanned sums the disbursement plan.
func (t *Terms) TotalPlanned() generic.Money {
	total := generic.Zero(t.Currency)
	for _, tr := range t.DisbursementPlan() {
		total = total.Add(tr.Amount)
	}
	return total
}

// AnnualNominalRate normalizes the quoted rate to a yearly percentage.
func (t *Terms) AnnualNominalRate() decimal.Decimal {
	if t.RateFrequency == RatePerMonth {
		return t.AnnualRate.Mul(decimal.NewFromInt(12))
	}
	return t.AnnualRate
}

// ResetFixedInstallment restores the configured fixed installment after a
// disbursement or down payment invalidated any per-period override.
func (t *Terms) ResetFixedInstallment() {
	if t.FixedInstallment == nil {
		t.CurrentFixedInstallment = nil
		return
	}
	fixed := *t.FixedInstallment
	t.CurrentFixedInstallment = &fixed
}

// Validate checks the terms before generation.
func (t *Terms) Validate() error {
	if t.Currency.Code == "" {
		return &generic.ValidationErrorDetail{Field: "currency", Message: "required"}
	}
	if t.Currency.DecimalPlaces < 0 {
		return &generic.ValidationErrorDetail{Field: "currency.decimal_places", Message: "must not be negative"}
	}
	if t.MathContext.Rounding != "" && !t.MathContext.Rounding.Valid() {
		return &generic.ValidationErrorDetail{Field: "rounding", Message: fmt.Sprintf("unknown rounding mode %q", t.MathContext.Rounding)}
	}
	if t.NumberOfRepayments < 1 {
		return &generic.ValidationErrorDetail{Field: "number_of_repayments", Message: "must be at least 1"}
	}
	if t.RepaymentEvery.Every < 1 || !t.RepaymentEvery.Unit.Valid() {
		return &generic.ValidationErrorDetail{Field: "repayment_every", Message: "must be a positive frequency"}
	}
	if t.AnnualRate.IsNegative() {
		return &generic.ValidationErrorDetail{Field: "interest_rate", Message: "must not be negative"}
	}
	if t.ExpectedDisbursement.IsZero() {
		return &generic.ValidationErrorDetail{Field: "expected_disbursement_date", Message: "required"}
	}
	if t.DownPaymentEnabled {
		if t.DownPaymentPercentage.IsNegative() || t.DownPaymentPercentage.GreaterThan(decimal.NewFromInt(100)) {
			return &generic.ValidationErrorDetail{Field: "down_payment_percentage", Message: "must be between 0 and 100"}
		}
	}
	if t.InstallmentMultiple.IsNegative() {
		return &generic.ValidationErrorDetail{Field: "installment_multiple", Message: "must not be negative"}
	}
	if t.FirstRepaymentDate != nil && !t.FirstRepaymentDate.After(t.RepaymentStart()) {
		return &generic.ValidationErrorDetail{Field: "first_repayment_date", Message: "must be after the repayment start date"}
	}

	plan := t.DisbursementPlan()
	if len(plan) > 1 && !t.MultiDisburse {
		return &generic.ValidationErrorDetail{Field: "tranches", Message: "multiple tranches require a multi-disbursement loan"}
	}
	start := t.RepaymentStart()
	for i, tr := range plan {
		if !tr.Amount.IsPositive() {
			return &generic.ValidationErrorDetail{Field: fmt.Sprintf("tranches[%d].amount", i), Message: "must be positive"}
		}
		if tr.Date.Before(start) {
			return &generic.ValidationErrorDetail{Field: fmt.Sprintf("tranches[%d].date", i), Message: "must not precede the repayment start date"}
		}
	}
	if t.MaxOutstandingAmount != nil && t.MaxOutstandingAmount.IsNegative() {
		return &generic.ValidationErrorDetail{Field: "max_outstanding_amount", Message: "must not be negative"}
	}

	for i, c := range t.Charges {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("charges[%d]: %w", i, err)
		}
	}
	return nil
}

// Clone deep-copies the terms including variations, so a generation run
// can mutate the copy.
func (t *Terms) Clone() *Terms {
	c := *t
	c.Tranches = append([]Tranche(nil), t.Tranches...)
	c.Charges = append([]ChargeRule(nil), t.Charges...)
	if t.FirstRepaymentDate != nil {
		d := *t.FirstRepaymentDate
		c.FirstRepaymentDate = &d
	}
	if t.MaxOutstandingAmount != nil {
		m := *t.MaxOutstandingAmount
		c.MaxOutstandingAmount = &m
	}
	if t.FixedInstallment != nil {
		m := *t.FixedInstallment
		c.FixedInstallment = &m
	}
	if t.CurrentFixedInstallment != nil {
		m := *t.CurrentFixedInstallment
		c.CurrentFixedInstallment = &m
	}
	c.Variations = t.Variations.Clone()
	return &c
}

// EffectiveMathContext fills in defaults for an unset policy.
func (t *Terms) EffectiveMathContext() generic.MathContext {
	mc := t.MathContext
	def := generic.DefaultMathContext()
	if mc.Scale <= 0 {
		mc.Scale = def.Scale
	}
	if mc.Rounding == "" {
		mc.Rounding = def.Rounding
	}
	return mc
}

// YearDays returns the day-count basis for a year starting at date.
func (t *Terms) YearDays(date generic.TimePoint) int {
	if t.DaysInYear > 0 {
		return t.DaysInYear
	}
	if generic.IsLeapYear(date.Year()) {
		return 366
	}
	return 365
}
