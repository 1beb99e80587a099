/*
Package factory provides JSON to Go loan terms conversion.

PURPOSE:
  Converts JSON loan configurations into loan.Terms. Schedules are stored
  with the JSON they were derived from, so the same configuration can be
  parsed again whenever a schedule must be re-derived (holiday changes).

WHY JSON?
  - Loan products are configured outside the code
  - The API accepts the same document it stores
  - Re-derivation needs only the stored document

JSON SCHEMA:
  {
    "principal": "1000",
    "currency": "USD",
    "interest_rate": "12",
    "repayment_every": 1,
    "repayment_unit": "months",
    "number_of_repayments": 4,
    "expected_disbursement_date": "2025-01-15",
    "down_payment": {"percentage": "10"},
    "charges": [
      {"id": "late", "penalty": true, "time": "overdue_installment",
       "calculation": "flat", "amount": "10", "due_date": "2025-04-10"}
    ],
    "variations": [
      {"kind": "rate_change", "effective_from": "2025-03-15", "decimal_value": "24"}
    ]
  }

  Money and rates are decimals, quoted or not. Dates are YYYY-MM-DD.

KEY FEATURES:
  - Sets defaults (2 decimal places, per-year rate, declining balance,
    equal installments, same-as-repayment interest period)
  - Rejects unknown enum values with a ValidationErrorDetail naming the field
  - ToJSON is the inverse of FromJSON for every field it reads

USAGE:
  f := factory.NewLoanFactory()
  terms, err := f.ParseTerms(jsonString)

SEE ALSO:
  - loan/terms.go: Terms type definition
  - presets.go: Ready-made loan configurations
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// LoanJSON is the JSON representation of loan terms.
type LoanJSON struct {
	Principal     decimal.Decimal `json:"principal"`
	Currency      string          `json:"currency"`
	DecimalPlaces *int32          `json:"decimal_places,omitempty"` // default 2
	Rounding      string          `json:"rounding,omitempty"`       // HALF_EVEN, HALF_UP, ...
	Scale         int32           `json:"scale,omitempty"`

	InterestRate   decimal.Decimal    `json:"interest_rate"`
	RateFrequency  string             `json:"rate_frequency,omitempty"`  // per_year, per_month
	InterestPeriod string             `json:"interest_period,omitempty"` // same_as_repayment, daily
	DaysInYear     int                `json:"days_in_year,omitempty"`    // 0 = actual
	InterestMethod string             `json:"interest_method,omitempty"` // declining_balance, flat
	Amortization   string             `json:"amortization,omitempty"`    // equal_installments, equal_principal
	Recalculation  *RecalculationJSON `json:"recalculation,omitempty"`

	RepaymentEvery           int    `json:"repayment_every"`
	RepaymentUnit            string `json:"repayment_unit"` // days, weeks, months, years
	NumberOfRepayments       int    `json:"number_of_repayments"`
	ExpectedDisbursementDate string `json:"expected_disbursement_date"`
	SubmittedOnDate          string `json:"submitted_on_date,omitempty"`
	FirstRepaymentDate       string `json:"first_repayment_date,omitempty"`
	RepaymentStart           string `json:"repayment_start,omitempty"` // disbursement_date, submitted_on_date
	OfficeID                 string `json:"office_id,omitempty"`

	MultiDisburse        bool             `json:"multi_disburse,omitempty"`
	Tranches             []TrancheJSON    `json:"tranches,omitempty"`
	MaxOutstandingAmount *decimal.Decimal `json:"max_outstanding_amount,omitempty"`

	DownPayment         *DownPaymentJSON `json:"down_payment,omitempty"`
	InstallmentMultiple *decimal.Decimal `json:"installment_multiple,omitempty"`
	FixedInstallment    *decimal.Decimal `json:"fixed_installment,omitempty"`

	Charges    []ChargeJSON    `json:"charges,omitempty"`
	Variations []VariationJSON `json:"variations,omitempty"`
}

// RecalculationJSON configures the rest cadence.
type RecalculationJSON struct {
	Enabled   bool   `json:"enabled"`
	RestEvery int    `json:"rest_every,omitempty"`
	RestUnit  string `json:"rest_unit,omitempty"`
}

// TrancheJSON is one planned disbursement.
type TrancheJSON struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type DownPaymentJSON struct {
	Percentage decimal.Decimal `json:"percentage"`
}

// ChargeJSON is one fee or penalty.
type ChargeJSON struct {
	ID           string           `json:"id"`
	Name         string           `json:"name,omitempty"`
	Penalty      bool             `json:"penalty,omitempty"`
	Time         string           `json:"time"`        // disbursement, specified_due_date, overdue_installment, installment_fee
	Calculation  string           `json:"calculation"` // flat, percent_of_amount, percent_of_interest, percent_of_amount_and_interest
	Amount       decimal.Decimal  `json:"amount"`
	DueDate      string           `json:"due_date,omitempty"`
	ChargeAmount *decimal.Decimal `json:"charge_amount,omitempty"`
	WindowStart  string           `json:"window_start,omitempty"`
	WindowEnd    string           `json:"window_end,omitempty"`
}

// VariationJSON is one mid-term change.
type VariationJSON struct {
	Kind                  string           `json:"kind"` // due_date_shift, rate_change, installment_amount
	EffectiveFrom         string           `json:"effective_from"`
	DateValue             string           `json:"date_value,omitempty"`
	DecimalValue          *decimal.Decimal `json:"decimal_value,omitempty"`
	SpecificToInstallment bool             `json:"specific_to_installment,omitempty"`
}

// =============================================================================
// LOAN FACTORY
// =============================================================================

// LoanFactory converts JSON loan configurations to loan.Terms.
type LoanFactory struct{}

func NewLoanFactory() *LoanFactory {
	return &LoanFactory{}
}

// ParseTerms parses a JSON document into loan terms.
func (f *LoanFactory) ParseTerms(jsonStr string) (*loan.Terms, error) {
	var lj LoanJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return nil, &generic.ValidationErrorDetail{Field: "terms", Message: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return f.FromJSON(lj)
}

// FromJSON converts LoanJSON to loan.Terms. Validation of the resulting
// terms is left to the engine.
func (f *LoanFactory) FromJSON(lj LoanJSON) (*loan.Terms, error) {
	places := int32(2)
	if lj.DecimalPlaces != nil {
		places = *lj.DecimalPlaces
	}
	currency := generic.Currency{Code: lj.Currency, DecimalPlaces: places}
	p := parser{currency: currency}

	t := &loan.Terms{
		Principal:           generic.Money{Amount: lj.Principal, Currency: currency},
		Currency:            currency,
		MathContext:         generic.MathContext{Scale: lj.Scale},
		AnnualRate:          lj.InterestRate,
		DaysInYear:          lj.DaysInYear,
		RepaymentEvery:      generic.Frequency{Every: lj.RepaymentEvery},
		NumberOfRepayments:  lj.NumberOfRepayments,
		OfficeID:            lj.OfficeID,
		MultiDisburse:       lj.MultiDisburse,
		InstallmentMultiple: decimalOrZero(lj.InstallmentMultiple),
	}

	t.RateFrequency = parseEnum(&p, "rate_frequency", lj.RateFrequency,
		loan.RatePerYear, loan.RatePerMonth)
	t.InterestPeriodType = parseEnum(&p, "interest_period", lj.InterestPeriod,
		loan.InterestPeriodSameAsRepayment, loan.InterestPeriodDaily)
	t.InterestMethod = parseEnum(&p, "interest_method", lj.InterestMethod,
		loan.InterestDecliningBalance, loan.InterestFlat)
	t.Amortization = parseEnum(&p, "amortization", lj.Amortization,
		loan.AmortizationEqualInstallments, loan.AmortizationEqualPrincipal)
	t.StartMode = parseEnum(&p, "repayment_start", lj.RepaymentStart,
		loan.StartFromDisbursementDate, loan.StartFromSubmittedOnDate)
	t.RepaymentEvery.Unit = parseEnum(&p, "repayment_unit", lj.RepaymentUnit,
		generic.FrequencyMonths, generic.FrequencyDays, generic.FrequencyWeeks, generic.FrequencyYears)
	t.MathContext.Rounding = parseEnum(&p, "rounding", lj.Rounding,
		generic.RoundHalfEven, generic.RoundHalfUp, generic.RoundHalfDown, generic.RoundUp,
		generic.RoundDown, generic.RoundCeiling, generic.RoundFloor)

	t.ExpectedDisbursement = p.date("expected_disbursement_date", lj.ExpectedDisbursementDate)
	t.SubmittedOn = p.optionalDate("submitted_on_date", lj.SubmittedOnDate)
	if lj.FirstRepaymentDate != "" {
		first := p.date("first_repayment_date", lj.FirstRepaymentDate)
		t.FirstRepaymentDate = &first
	}

	if rc := lj.Recalculation; rc != nil {
		t.Recalculation = loan.Recalculation{
			Enabled:       rc.Enabled,
			RestFrequency: generic.Frequency{Every: rc.RestEvery, Unit: generic.FrequencyUnit(rc.RestUnit)},
		}
	}

	for i, tj := range lj.Tranches {
		t.Tranches = append(t.Tranches, loan.Tranche{
			Date:   p.date(fmt.Sprintf("tranches[%d].date", i), tj.Date),
			Amount: p.money(tj.Amount),
		})
	}
	if lj.MaxOutstandingAmount != nil {
		limit := p.money(*lj.MaxOutstandingAmount)
		t.MaxOutstandingAmount = &limit
	}
	if lj.DownPayment != nil {
		t.DownPaymentEnabled = true
		t.DownPaymentPercentage = lj.DownPayment.Percentage
	}
	if lj.FixedInstallment != nil {
		fixed := p.money(*lj.FixedInstallment)
		t.FixedInstallment = &fixed
	}

	for i, cj := range lj.Charges {
		t.Charges = append(t.Charges, p.charge(i, cj))
	}

	var variations []loan.TermVariation
	for i, vj := range lj.Variations {
		variations = append(variations, p.variation(i, vj))
	}
	if len(variations) > 0 {
		t.Variations = loan.NewTermVariations(variations...)
	}

	if p.err != nil {
		return nil, p.err
	}
	return t, nil
}

// ToJSON converts loan terms back to LoanJSON.
func (f *LoanFactory) ToJSON(t *loan.Terms) LoanJSON {
	places := t.Currency.DecimalPlaces
	lj := LoanJSON{
		Principal:                t.Principal.Amount,
		Currency:                 t.Currency.Code,
		DecimalPlaces:            &places,
		Rounding:                 string(t.MathContext.Rounding),
		Scale:                    t.MathContext.Scale,
		InterestRate:             t.AnnualRate,
		RateFrequency:            string(t.RateFrequency),
		InterestPeriod:           string(t.InterestPeriodType),
		DaysInYear:               t.DaysInYear,
		InterestMethod:           string(t.InterestMethod),
		Amortization:             string(t.Amortization),
		RepaymentEvery:           t.RepaymentEvery.Every,
		RepaymentUnit:            string(t.RepaymentEvery.Unit),
		NumberOfRepayments:       t.NumberOfRepayments,
		ExpectedDisbursementDate: formatDate(t.ExpectedDisbursement),
		SubmittedOnDate:          formatDate(t.SubmittedOn),
		RepaymentStart:           string(t.StartMode),
		OfficeID:                 t.OfficeID,
		MultiDisburse:            t.MultiDisburse,
	}
	if t.FirstRepaymentDate != nil {
		lj.FirstRepaymentDate = formatDate(*t.FirstRepaymentDate)
	}
	if t.Recalculation.Enabled {
		lj.Recalculation = &RecalculationJSON{
			Enabled:   true,
			RestEvery: t.Recalculation.RestFrequency.Every,
			RestUnit:  string(t.Recalculation.RestFrequency.Unit),
		}
	}
	for _, tr := range t.Tranches {
		lj.Tranches = append(lj.Tranches, TrancheJSON{Date: formatDate(tr.Date), Amount: tr.Amount.Amount})
	}
	if t.MaxOutstandingAmount != nil {
		limit := t.MaxOutstandingAmount.Amount
		lj.MaxOutstandingAmount = &limit
	}
	if t.DownPaymentEnabled {
		lj.DownPayment = &DownPaymentJSON{Percentage: t.DownPaymentPercentage}
	}
	if !t.InstallmentMultiple.IsZero() {
		multiple := t.InstallmentMultiple
		lj.InstallmentMultiple = &multiple
	}
	if t.FixedInstallment != nil {
		fixed := t.FixedInstallment.Amount
		lj.FixedInstallment = &fixed
	}

	for _, c := range t.Charges {
		cj := ChargeJSON{
			ID:          c.ID,
			Name:        c.Name,
			Penalty:     c.Penalty,
			Time:        string(c.Time),
			Calculation: string(c.Calculation),
			Amount:      c.Amount,
			DueDate:     formatDate(c.DueDate),
		}
		if c.ChargeAmount != nil {
			amount := c.ChargeAmount.Amount
			cj.ChargeAmount = &amount
		}
		if c.Window != nil {
			cj.WindowStart = formatDate(c.Window.Start)
			cj.WindowEnd = formatDate(c.Window.End)
		}
		lj.Charges = append(lj.Charges, cj)
	}

	for _, v := range t.Variations.All() {
		vj := VariationJSON{
			Kind:                  string(v.Kind),
			EffectiveFrom:         formatDate(v.EffectiveFrom),
			DateValue:             formatDate(v.DateValue),
			SpecificToInstallment: v.SpecificToInstallment,
		}
		if v.Kind != loan.VariationDueDateShift {
			value := v.DecimalValue
			vj.DecimalValue = &value
		}
		lj.Variations = append(lj.Variations, vj)
	}
	return lj
}

// MarshalTerms renders terms as the JSON document ParseTerms reads.
func (f *LoanFactory) MarshalTerms(t *loan.Terms) (json.RawMessage, error) {
	return json.Marshal(f.ToJSON(t))
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// parser keeps the first error so FromJSON reads as a straight line.
type parser struct {
	currency generic.Currency
	err      error
}

func (p *parser) fail(field, message string) {
	if p.err == nil {
		p.err = &generic.ValidationErrorDetail{Field: field, Message: message}
	}
}

func (p *parser) money(d decimal.Decimal) generic.Money {
	return generic.Money{Amount: d, Currency: p.currency}
}

func (p *parser) date(field, s string) generic.TimePoint {
	if s == "" {
		p.fail(field, "required")
		return generic.TimePoint{}
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		p.fail(field, err.Error())
	}
	return d
}

func (p *parser) optionalDate(field, s string) generic.TimePoint {
	if s == "" {
		return generic.TimePoint{}
	}
	return p.date(field, s)
}

// parseEnum maps value onto one of allowed. Empty means the first entry.
func parseEnum[T ~string](p *parser, field, value string, allowed ...T) T {
	if value == "" {
		return allowed[0]
	}
	for _, a := range allowed {
		if string(a) == value {
			return a
		}
	}
	p.fail(field, fmt.Sprintf("unknown value %q", value))
	return allowed[0]
}

func (p *parser) charge(i int, cj ChargeJSON) loan.ChargeRule {
	c := loan.ChargeRule{
		ID:          cj.ID,
		Name:        cj.Name,
		Penalty:     cj.Penalty,
		Time:        loan.ChargeTime(cj.Time),
		Calculation: loan.ChargeCalculation(cj.Calculation),
		Amount:      cj.Amount,
		DueDate:     p.optionalDate(fmt.Sprintf("charges[%d].due_date", i), cj.DueDate),
	}
	if c.Calculation == "" {
		c.Calculation = loan.ChargeFlat
	}
	if cj.ChargeAmount != nil {
		amount := p.money(*cj.ChargeAmount)
		c.ChargeAmount = &amount
	}
	if cj.WindowStart != "" || cj.WindowEnd != "" {
		start := p.date(fmt.Sprintf("charges[%d].window_start", i), cj.WindowStart)
		end := p.date(fmt.Sprintf("charges[%d].window_end", i), cj.WindowEnd)
		window, err := generic.NewDateRange(start, end)
		if err != nil {
			p.fail(fmt.Sprintf("charges[%d].window_end", i), err.Error())
		}
		c.Window = &window
	}
	return c
}

func (p *parser) variation(i int, vj VariationJSON) loan.TermVariation {
	field := fmt.Sprintf("variations[%d]", i)
	v := loan.TermVariation{
		Kind:                  loan.VariationKind(vj.Kind),
		EffectiveFrom:         p.date(field+".effective_from", vj.EffectiveFrom),
		SpecificToInstallment: vj.SpecificToInstallment,
	}
	switch v.Kind {
	case loan.VariationDueDateShift:
		v.DateValue = p.date(field+".date_value", vj.DateValue)
	case loan.VariationRateChange, loan.VariationInstallmentAmount:
		if vj.DecimalValue == nil {
			p.fail(field+".decimal_value", "required for "+vj.Kind)
		} else {
			v.DecimalValue = *vj.DecimalValue
		}
	default:
		p.fail(field+".kind", fmt.Sprintf("unknown value %q", vj.Kind))
	}
	return v
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func formatDate(t generic.TimePoint) string {
	if t.IsZero() {
		return ""
	}
	return t.String()
}
