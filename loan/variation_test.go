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

func day(month time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(2025, month, d)
}

func TestTermVariations_EachConsumedOnce(t *testing.T) {
	// GIVEN: One variation of every kind
	// WHEN: The engine asks for them
	// THEN: Each is returned once, then never again

	set := loan.NewTermVariations(
		loan.TermVariation{Kind: loan.VariationInstallmentAmount, EffectiveFrom: day(time.April, 15), DecimalValue: decimal.NewFromInt(300)},
		loan.TermVariation{Kind: loan.VariationDueDateShift, EffectiveFrom: day(time.March, 15), DateValue: day(time.March, 20)},
		loan.TermVariation{Kind: loan.VariationRateChange, EffectiveFrom: day(time.February, 1), DecimalValue: decimal.NewFromInt(9)},
	)

	assert.True(t, set.HasDueDateVariation(day(time.March, 15)))
	assert.False(t, set.HasDueDateVariation(day(time.March, 20)))

	shift := set.NextDueDateVariation()
	require.NotNil(t, shift)
	assert.Equal(t, day(time.March, 20), shift.DateValue)
	assert.Nil(t, set.NextDueDateVariation())
	assert.False(t, set.HasDueDateVariation(day(time.March, 15)))

	assert.Empty(t, set.InterestRateChangesFrom(day(time.January, 31)))
	rates := set.InterestRateChangesFrom(day(time.February, 15))
	require.Len(t, rates, 1)
	assert.Empty(t, set.InterestRateChangesFrom(day(time.December, 31)))

	assert.Nil(t, set.InstallmentAmountFor(day(time.March, 15)))
	amount := set.InstallmentAmountFor(day(time.April, 15))
	require.NotNil(t, amount)
	assert.True(t, amount.DecimalValue.Equal(decimal.NewFromInt(300)))
	assert.Nil(t, set.InstallmentAmountFor(day(time.April, 15)))

	for _, v := range set.All() {
		assert.True(t, v.Consumed(), string(v.Kind))
	}
}

func TestTermVariations_NilSafe(t *testing.T) {
	var set *loan.TermVariations

	assert.False(t, set.HasDueDateVariation(day(time.March, 15)))
	assert.Nil(t, set.NextDueDateVariation())
	assert.Nil(t, set.InterestRateChangesFrom(day(time.March, 15)))
	assert.Nil(t, set.InstallmentAmountFor(day(time.March, 15)))
	assert.Empty(t, set.All())
	assert.NotNil(t, set.Clone())
}

func TestChargeRule_IsDueWithin_BoundaryRule(t *testing.T) {
	c := loan.ChargeRule{Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargeFlat, DueDate: day(time.January, 15)}

	assert.True(t, c.IsDueWithin(day(time.January, 15), day(time.February, 15), true))
	assert.False(t, c.IsDueWithin(day(time.January, 15), day(time.February, 15), false))

	c.DueDate = day(time.February, 15)
	assert.True(t, c.IsDueWithin(day(time.January, 15), day(time.February, 15), false))
	assert.False(t, c.IsDueWithin(day(time.February, 15), day(time.March, 15), false))
}

func TestChargeRule_Classification(t *testing.T) {
	c := loan.ChargeRule{Time: loan.ChargeSpecifiedDueDate, Calculation: loan.ChargePercentOfAmountAndInterest}
	assert.True(t, c.NeedsFinalTotals())
	assert.True(t, c.IsPercentage())
	assert.True(t, c.IsFee())

	window := generic.DateRange{Start: day(time.March, 1), End: day(time.April, 30)}
	fee := loan.ChargeRule{Time: loan.ChargeInstallmentFee, Calculation: loan.ChargeFlat, Window: &window}
	assert.False(t, fee.NeedsFinalTotals())
	assert.False(t, fee.AppliesToInstallment(day(time.February, 15)))
	assert.True(t, fee.AppliesToInstallment(day(time.April, 15)))
}
