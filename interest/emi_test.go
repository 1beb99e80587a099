package interest_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/interest"
	"github.com/warp/schedule-engine/loan"
)

var usd = generic.Currency{Code: "USD", DecimalPlaces: 2}

func money(s string) generic.Money {
	m, err := generic.NewMoneyFromString(s, usd)
	if err != nil {
		panic(err)
	}
	return m
}

func windows(start string, n int) []calendar.RepaymentPeriod {
	from := generic.MustParseDate(start)
	out := make([]calendar.RepaymentPeriod, n)
	for i := range out {
		due := from.AddMonths(1)
		out[i] = calendar.RepaymentPeriod{Number: i + 1, From: from, Due: due}
		from = due
	}
	return out
}

func settings(rate string) interest.Settings {
	return interest.Settings{
		Currency:     usd,
		MathContext:  generic.DefaultMathContext(),
		AnnualRate:   decimal.RequireFromString(rate),
		PeriodType:   loan.InterestPeriodSameAsRepayment,
		Frequency:    generic.Frequency{Every: 1, Unit: generic.FrequencyMonths},
		Method:       loan.InterestDecliningBalance,
		Amortization: loan.AmortizationEqualInstallments,
	}
}

// =============================================================================
// REST MODE
// =============================================================================

func TestEMICalculator_Annuity(t *testing.T) {
	// GIVEN: $1000 at 1% per period over four periods
	// WHEN: Calculating and splitting the first period
	// THEN: EMI 256.28, interest 10.00, principal 246.28

	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), settings("12"))

	calc.Calculate(m, 0, money("1000"))
	assert.Equal(t, "256.28", m.EMI(0).String())
	assert.Equal(t, "256.28", m.EMI(10).String(), "past the end uses the last row")

	split := calc.Split(m, interest.SplitInput{
		Index: 0, From: m.Period(0).From, Due: m.Period(0).Due,
		BalanceForRest: money("1000"), Outstanding: money("1000"),
	})
	assert.Equal(t, "10.00", split.Interest.String())
	assert.Equal(t, "246.28", split.Principal.String())
}

func TestEMICalculator_ZeroRate(t *testing.T) {
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 3), settings("0"))

	calc.Calculate(m, 0, money("1000"))

	assert.Equal(t, "333.33", m.EMI(0).String())
	last := calc.Split(m, interest.SplitInput{
		Index: 2, From: m.Period(2).From, Due: m.Period(2).Due,
		BalanceForRest: money("333.34"), Outstanding: money("333.34"), Last: true,
	})
	assert.Equal(t, "333.34", last.Principal.String(), "last period takes the remainder")
	assert.True(t, last.Interest.IsZero())
}

func TestEMICalculator_FixedEMI_NeverNegativePrincipal(t *testing.T) {
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), settings("12"))
	calc.Calculate(m, 0, money("1000"))
	fixed := money("5")

	split := calc.Split(m, interest.SplitInput{
		Index: 0, From: m.Period(0).From, Due: m.Period(0).Due,
		BalanceForRest: money("1000"), Outstanding: money("1000"), FixedEMI: &fixed,
	})

	assert.True(t, split.Principal.IsZero())
	assert.Equal(t, "10.00", split.Interest.String())
}

func TestEMICalculator_EqualPrincipal(t *testing.T) {
	s := settings("12")
	s.Amortization = loan.AmortizationEqualPrincipal
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), s)
	calc.Calculate(m, 0, money("1000"))

	split := calc.Split(m, interest.SplitInput{
		Index: 1, From: m.Period(1).From, Due: m.Period(1).Due,
		BalanceForRest: money("750"), Outstanding: money("750"),
	})

	assert.Equal(t, "250.00", split.Principal.String())
	assert.Equal(t, "7.50", split.Interest.String())
}

func TestEMICalculator_InstallmentMultiple(t *testing.T) {
	s := settings("12")
	s.InstallmentMultiple = decimal.NewFromInt(10)
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), s)

	calc.Calculate(m, 0, money("1000"))

	assert.Equal(t, "260.00", m.EMI(0).String())
}

func TestEMICalculator_DailyRateProratesByDays(t *testing.T) {
	// GIVEN: 36.5% a year on a 365-day basis, so 0.1% a day
	// WHEN: Splitting a 31-day period on $1000
	// THEN: Interest is 31.00

	s := settings("36.5")
	s.PeriodType = loan.InterestPeriodDaily
	s.DaysInYear = 365
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 2), s)
	calc.Calculate(m, 0, money("1000"))

	split := calc.Split(m, interest.SplitInput{
		Index: 0, From: m.Period(0).From, Due: m.Period(0).Due,
		BalanceForRest: money("1000"), Outstanding: money("1000"),
	})

	assert.Equal(t, "31.00", split.Interest.String())
}

func TestEMICalculator_RateChangeMidPeriod(t *testing.T) {
	// GIVEN: A daily-rate loan whose rate doubles halfway through period 1
	// WHEN: Splitting period 1
	// THEN: Each half is charged at its own rate

	s := settings("36.5")
	s.PeriodType = loan.InterestPeriodDaily
	s.DaysInYear = 365
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-01", 2), s)
	calc.ChangeInterestRate(m, generic.MustParseDate("2025-01-16"), decimal.RequireFromString("73"))
	calc.Calculate(m, 0, money("1000"))

	split := calc.Split(m, interest.SplitInput{
		Index: 0, From: m.Period(0).From, Due: m.Period(0).Due,
		BalanceForRest: money("1000"), Outstanding: money("1000"),
	})

	// 15 days at 0.1% plus 16 days at 0.2%
	assert.Equal(t, "47.00", split.Interest.String())
	assert.True(t, m.RateOn(generic.MustParseDate("2025-01-20")).Equal(decimal.NewFromInt(73)))
}

// =============================================================================
// TRACKED MODE
// =============================================================================

func TestEMICalculator_TrackedModel_Overlay(t *testing.T) {
	// GIVEN: A zero-rate model receiving $1000, a $100 down payment and a
	//        second $300 tranche in period 3
	// WHEN: Reading the rows
	// THEN: Rows repay $900 evenly, then the tranche re-amortizes the rest

	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), settings("0"))

	calc.AddDisbursement(m, generic.MustParseDate("2025-01-15"), money("1000"))
	calc.AddDisbursement(m, generic.MustParseDate("2025-01-15"), money("-100"))
	require.True(t, m.Tracked())
	assert.Equal(t, "225.00", m.Period(0).Principal.String())

	calc.AddDisbursement(m, generic.MustParseDate("2025-04-01"), money("300"))
	assert.Equal(t, "225.00", m.Period(1).Principal.String())
	assert.Equal(t, "375.00", m.Period(2).Principal.String())
	assert.Equal(t, "375.00", m.Period(3).Principal.String())
	assert.True(t, m.Period(3).Remaining.IsZero())

	split := calc.Split(m, interest.SplitInput{Index: 2})
	assert.Equal(t, "375.00", split.Principal.String())
}

func TestModel_OverrideEMI_OnlyThis(t *testing.T) {
	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), settings("0"))
	calc.AddDisbursement(m, generic.MustParseDate("2025-01-15"), money("1000"))

	m.OverrideEMI(1, money("100"), true)

	assert.Equal(t, "250.00", m.Period(0).Principal.String())
	assert.Equal(t, "100.00", m.Period(1).Principal.String())
	assert.Equal(t, "325.00", m.Period(2).Principal.String())
	assert.Equal(t, "325.00", m.Period(3).Principal.String())

	m.ClearOverrides(0)
	assert.Equal(t, "250.00", m.EMI(1).String())
}

func TestModel_IndexOf(t *testing.T) {
	m := interest.NewModel(windows("2025-01-15", 3), settings("12"))

	assert.Equal(t, 0, m.IndexOf(generic.MustParseDate("2025-01-01")))
	assert.Equal(t, 0, m.IndexOf(generic.MustParseDate("2025-02-14")))
	assert.Equal(t, 1, m.IndexOf(generic.MustParseDate("2025-02-15")))
	assert.Equal(t, 2, m.IndexOf(generic.MustParseDate("2025-12-31")))
}

func TestModel_Extend_CarriesLateTranche(t *testing.T) {
	// GIVEN: A 12% model over four months, fully repaid by May 15
	// WHEN: Appending a row to June 15 and disbursing $500 on May 15
	// THEN: The new row repays the $500 with one month of interest

	calc := interest.NewEMICalculator()
	m := interest.NewModel(windows("2025-01-15", 4), settings("12"))
	calc.AddDisbursement(m, generic.MustParseDate("2025-01-15"), money("1000"))
	require.True(t, m.Period(3).Remaining.IsZero())

	index := m.Extend(generic.MustParseDate("2025-06-15"))
	require.Equal(t, 4, index)
	assert.Equal(t, generic.MustParseDate("2025-05-15"), m.Period(4).From)

	calc.AddDisbursement(m, generic.MustParseDate("2025-05-15"), money("500"))
	assert.Equal(t, 4, m.IndexOf(generic.MustParseDate("2025-05-15")))
	assert.Equal(t, "500.00", m.Period(4).Principal.String())
	assert.Equal(t, "5.00", m.Period(4).Interest.String())
	assert.True(t, m.Period(4).Remaining.IsZero())
	assert.True(t, m.Period(3).Remaining.IsZero())
}
