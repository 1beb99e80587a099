/*
presets.go - Pre-built loan configurations

PURPOSE:
  Provides ready-to-use loan documents covering the behaviors the engine
  is expected to handle. They double as API demo data and as fixtures.

AVAILABLE PRESETS:
  plain-monthly:      $1000 at 12% over four monthly installments
  down-payment:       Same loan with a 10% down payment at disbursement
  two-tranches:       $1000 now, $500 on April 1, zero interest
  over-cap:           Second tranche that breaches the outstanding cap
  overdue-penalty:    Flat $10 penalty due April 10
  progressive-change: Progressive loan with a rate change on March 15

EXAMPLE:
  p, _ := factory.LookupPreset("down-payment")
  terms, err := factory.NewLoanFactory().ParseTerms(p.JSON)

SEE ALSO:
  - loan.go: JSON schema
  - api/handlers.go: ListPresets and PreviewPreset serve these
*/
package factory

import "sort"

// Preset is a named loan document.
type Preset struct {
	ID          string
	Name        string
	Description string
	Strategy    string
	JSON        string
}

// =============================================================================
// PRESET DOCUMENTS
// =============================================================================

const plainMonthlyJSON = `{
  "principal": "1000",
  "currency": "USD",
  "interest_rate": "12",
  "repayment_every": 1,
  "repayment_unit": "months",
  "number_of_repayments": 4,
  "expected_disbursement_date": "2025-01-15"
}`

const downPaymentJSON = `{
  "principal": "1000",
  "currency": "USD",
  "interest_rate": "12",
  "repayment_every": 1,
  "repayment_unit": "months",
  "number_of_repayments": 4,
  "expected_disbursement_date": "2025-01-15",
  "down_payment": {"percentage": "10"}
}`

const twoTranchesJSON = `{
  "principal": "1000",
  "currency": "USD",
  "interest_rate": "0",
  "repayment_every": 1,
  "repayment_unit": "months",
  "number_of_repayments": 4,
  "expected_disbursement_date": "2025-01-15",
  "multi_disburse": true,
  "tranches": [
    {"date": "2025-01-15", "amount": "1000"},
    {"date": "2025-04-01", "amount": "500"}
  ]
}`

const overCapJSON = `{
  "principal": "1000",
  "currency": "USD",
  "interest_rate": "12",
  "repayment_every": 1,
  "repayment_unit": "months",
  "number_of_repayments": 4,
  "expected_disbursement_date": "2025-01-15",
  "multi_disburse": true,
  "max_outstanding_amount": "1200",
  "tranches": [
    {"date": "2025-01-15", "amount": "1000"},
    {"date": "2025-02-01", "amount": "300"}
  ]
}`

const overduePenaltyJSON = `{
  "principal": "1000",
  "currency": "USD",
  "interest_rate": "12",
  "repayment_every": 1,
  "repayment_unit": "months",
  "number_of_repayments": 4,
  "expected_disbursement_date": "2025-01-15",
  "charges": [
    {"id": "late-fee", "name": "Late fee", "penalty": true,
     "time": "overdue_installment", "calculation": "flat",
     "amount": "10", "due_date": "2025-04-10"}
  ]
}`

const progressiveChangeJSON = `{
  "principal": "1000",
  "currency": "USD",
  "interest_rate": "12",
  "repayment_every": 1,
  "repayment_unit": "months",
  "number_of_repayments": 4,
  "expected_disbursement_date": "2025-01-15",
  "variations": [
    {"kind": "rate_change", "effective_from": "2025-03-15", "decimal_value": "24"}
  ]
}`

var presets = map[string]Preset{
	"plain-monthly": {
		ID: "plain-monthly", Name: "Plain monthly loan", Strategy: "cumulative",
		Description: "Single disbursement, equal installments, declining balance", JSON: plainMonthlyJSON,
	},
	"down-payment": {
		ID: "down-payment", Name: "Down payment", Strategy: "cumulative",
		Description: "10% repaid on the disbursement date", JSON: downPaymentJSON,
	},
	"two-tranches": {
		ID: "two-tranches", Name: "Two tranches", Strategy: "cumulative",
		Description: "Second tranche re-amortizes the remaining installments", JSON: twoTranchesJSON,
	},
	"over-cap": {
		ID: "over-cap", Name: "Outstanding cap breach", Strategy: "cumulative",
		Description: "Second tranche exceeds the maximum outstanding amount", JSON: overCapJSON,
	},
	"overdue-penalty": {
		ID: "overdue-penalty", Name: "Overdue penalty", Strategy: "cumulative",
		Description: "Flat penalty lands on the installment covering its due date", JSON: overduePenaltyJSON,
	},
	"progressive-change": {
		ID: "progressive-change", Name: "Progressive rate change", Strategy: "progressive",
		Description: "Precomputed model re-amortized after a rate change", JSON: progressiveChangeJSON,
	},
}

// Presets returns every preset sorted by ID.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LookupPreset finds a preset by ID.
func LookupPreset(id string) (Preset, bool) {
	p, ok := presets[id]
	return p, ok
}
