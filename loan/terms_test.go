package loan_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

var usd = generic.Currency{Code: "USD", DecimalPlaces: 2}

func validTerms() *loan.Terms {
	return &loan.Terms{
		Principal:            generic.NewMoney(1000, usd),
		Currency:             usd,
		AnnualRate:           decimal.NewFromInt(12),
		RepaymentEvery:       generic.Frequency{Every: 1, Unit: generic.FrequencyMonths},
		NumberOfRepayments:   4,
		ExpectedDisbursement: generic.NewTimePoint(2025, time.January, 15),
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestTerms_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*loan.Terms)
		field  string
	}{
		{"missing currency", func(t *loan.Terms) { t.Currency = generic.Currency{} }, "currency"},
		{"no repayments", func(t *loan.Terms) { t.NumberOfRepayments = 0 }, "number_of_repayments"},
		{"bad frequency", func(t *loan.Terms) { t.RepaymentEvery.Unit = "fortnights" }, "repayment_every"},
		{"negative rate", func(t *loan.Terms) { t.AnnualRate = decimal.NewFromInt(-1) }, "interest_rate"},
		{"unknown rounding", func(t *loan.Terms) { t.MathContext.Rounding = "BANKERS" }, "rounding"},
		{"down payment over 100", func(t *loan.Terms) {
			t.DownPaymentEnabled = true
			t.DownPaymentPercentage = decimal.NewFromInt(101)
		}, "down_payment_percentage"},
		{"tranches without multi-disburse", func(t *loan.Terms) {
			t.Tranches = []loan.Tranche{
				{Date: t.ExpectedDisbursement, Amount: generic.NewMoney(500, usd)},
				{Date: t.ExpectedDisbursement.AddDays(10), Amount: generic.NewMoney(500, usd)},
			}
		}, "tranches"},
		{"tranche before start", func(t *loan.Terms) {
			t.MultiDisburse = true
			t.Tranches = []loan.Tranche{{Date: t.ExpectedDisbursement.AddDays(-1), Amount: generic.NewMoney(500, usd)}}
		}, "tranches[0].date"},
		{"first repayment on start", func(t *loan.Terms) {
			first := t.ExpectedDisbursement
			t.FirstRepaymentDate = &first
		}, "first_repayment_date"},
		{"charge without due date", func(t *loan.Terms) {
			t.Charges = []loan.ChargeRule{{Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargeFlat}}
		}, "charge.due_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terms := validTerms()
			tc.mutate(terms)

			err := terms.Validate()

			require.ErrorIs(t, err, generic.ErrInvalidTerms)
			var detail *generic.ValidationErrorDetail
			require.ErrorAs(t, err, &detail)
			assert.Equal(t, tc.field, detail.Field)
		})
	}

	assert.NoError(t, validTerms().Validate())
}

func TestTerms_DisbursementPlan_DefaultsToPrincipal(t *testing.T) {
	terms := validTerms()

	plan := terms.DisbursementPlan()

	require.Len(t, plan, 1)
	assert.Equal(t, terms.ExpectedDisbursement, plan[0].Date)
	assert.Equal(t, "1000.00", terms.TotalPlanned().String())
}

func TestTerms_RepaymentStart(t *testing.T) {
	terms := validTerms()
	terms.SubmittedOn = generic.NewTimePoint(2025, time.January, 10)
	assert.Equal(t, terms.ExpectedDisbursement, terms.RepaymentStart())

	terms.StartMode = loan.StartFromSubmittedOnDate
	assert.Equal(t, terms.SubmittedOn, terms.RepaymentStart())
}

func TestTerms_AnnualNominalRate(t *testing.T) {
	terms := validTerms()
	terms.AnnualRate = decimal.RequireFromString("1.5")
	terms.RateFrequency = loan.RatePerMonth

	assert.True(t, terms.AnnualNominalRate().Equal(decimal.NewFromInt(18)))
}

func TestTerms_Clone_IsDeep(t *testing.T) {
	// GIVEN: Terms with a fixed installment and a variation
	// WHEN: The clone is mutated the way the engine mutates
	// THEN: The original is unchanged

	terms := validTerms()
	fixed := generic.NewMoney(300, usd)
	terms.FixedInstallment = &fixed
	terms.ResetFixedInstallment()
	terms.Variations = loan.NewTermVariations(loan.TermVariation{
		Kind:          loan.VariationRateChange,
		EffectiveFrom: generic.NewTimePoint(2025, time.March, 1),
		DecimalValue:  decimal.NewFromInt(10),
	})

	clone := terms.Clone()
	clone.Principal = clone.Principal.Add(generic.NewMoney(500, usd))
	*clone.CurrentFixedInstallment = generic.NewMoney(1, usd)
	clone.Variations.InterestRateChangesFrom(generic.NewTimePoint(2025, time.December, 31))

	assert.Equal(t, "1000.00", terms.Principal.String())
	assert.Equal(t, "300.00", terms.CurrentFixedInstallment.String())
	assert.False(t, terms.Variations.All()[0].Consumed())
}

func TestTerms_YearDays(t *testing.T) {
	terms := validTerms()
	assert.Equal(t, 366, terms.YearDays(generic.NewTimePoint(2024, time.June, 1)))
	assert.Equal(t, 365, terms.YearDays(generic.NewTimePoint(2025, time.June, 1)))

	terms.DaysInYear = 360
	assert.Equal(t, 360, terms.YearDays(generic.NewTimePoint(2024, time.June, 1)))
}

func TestTerms_EffectiveMathContext(t *testing.T) {
	terms := validTerms()
	assert.Equal(t, generic.DefaultMathContext(), terms.EffectiveMathContext())

	terms.MathContext = generic.MathContext{Scale: 8, Rounding: generic.RoundHalfUp}
	assert.Equal(t, terms.MathContext, terms.EffectiveMathContext())
}
