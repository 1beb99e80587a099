package calendar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

func monthlyTerms(disbursed generic.TimePoint, n int) *loan.Terms {
	return &loan.Terms{
		Currency:             generic.Currency{Code: "USD", DecimalPlaces: 2},
		RepaymentEvery:       generic.Frequency{Every: 1, Unit: generic.FrequencyMonths},
		NumberOfRepayments:   n,
		ExpectedDisbursement: disbursed,
	}
}

func TestGenerator_MonthEndAnchor(t *testing.T) {
	// GIVEN: A loan disbursed on January 31
	// WHEN: Laying out four monthly periods
	// THEN: Due dates clamp to February's end and recover the 31st

	g := calendar.NewGenerator(nil, calendar.SameDay)
	terms := monthlyTerms(generic.MustParseDate("2025-01-31"), 4)

	periods := g.RepaymentPeriods(terms.RepaymentStart(), terms)

	require.Len(t, periods, 4)
	want := []string{"2025-02-28", "2025-03-31", "2025-04-30", "2025-05-31"}
	for i, p := range periods {
		assert.Equal(t, want[i], p.Due.String())
		assert.Equal(t, i+1, p.Number)
	}
	assert.Equal(t, periods[0].Due, periods[1].From)
	assert.Equal(t, "2025-05-31", g.LastRepaymentDate(terms).String())
}

func TestGenerator_FirstRepaymentDate(t *testing.T) {
	g := calendar.NewGenerator(nil, calendar.SameDay)
	terms := monthlyTerms(generic.MustParseDate("2025-01-15"), 3)
	first := generic.MustParseDate("2025-02-10")
	terms.FirstRepaymentDate = &first

	periods := g.RepaymentPeriods(terms.RepaymentStart(), terms)

	assert.Equal(t, "2025-02-10", periods[0].Due.String())
	assert.Equal(t, "2025-03-10", periods[1].Due.String())
	assert.Equal(t, "2025-04-10", periods[2].Due.String())
}

func TestGenerator_AdjustRepaymentDate_Rules(t *testing.T) {
	// GIVEN: Saturday May 31 2025 and a holiday on Monday June 2
	// WHEN: Adjusting under each reschedule rule
	// THEN: The schedule date moves, the cadence date stays

	holidays := &generic.StaticHolidayCalendar{Holidays: []generic.Holiday{
		{ID: "h1", Date: generic.MustParseDate("2025-06-02"), Name: "Bank Holiday"},
	}}
	saturday := generic.MustParseDate("2025-05-31")
	terms := monthlyTerms(generic.MustParseDate("2025-01-31"), 4)

	cases := []struct {
		rule calendar.RescheduleRule
		want string
	}{
		{calendar.SameDay, "2025-05-31"},
		{calendar.NextWorkingDay, "2025-06-03"},
		{calendar.PreviousWorkingDay, "2025-05-30"},
		{calendar.ModifiedFollowing, "2025-05-30"},
	}
	for _, tc := range cases {
		t.Run(string(tc.rule), func(t *testing.T) {
			g := calendar.NewGenerator(holidays, tc.rule)
			adj := g.AdjustRepaymentDate(saturday, terms)
			assert.Equal(t, tc.want, adj.ScheduleDate.String())
			assert.Equal(t, saturday, adj.ActualDate)
		})
	}
}

func TestGenerator_HolidayForOtherOfficeIgnored(t *testing.T) {
	holidays := &generic.StaticHolidayCalendar{Holidays: []generic.Holiday{
		{ID: "h1", OfficeID: "north", Date: generic.MustParseDate("2025-03-17"), Name: "Local"},
	}}
	g := calendar.NewGenerator(holidays, calendar.NextWorkingDay)
	monday := generic.MustParseDate("2025-03-17")

	assert.False(t, g.IsWorkingDay(monday, "north"))
	assert.True(t, g.IsWorkingDay(monday, "south"))
}

func TestGenerator_DueDateShiftPeeked(t *testing.T) {
	// GIVEN: A shift of the March 15 installment to March 20
	// WHEN: Laying out periods
	// THEN: The shift is applied but stays unconsumed for the engine

	g := calendar.NewGenerator(nil, calendar.SameDay)
	terms := monthlyTerms(generic.MustParseDate("2025-01-15"), 3)
	terms.Variations = loan.NewTermVariations(loan.TermVariation{
		Kind:          loan.VariationDueDateShift,
		EffectiveFrom: generic.MustParseDate("2025-03-15"),
		DateValue:     generic.MustParseDate("2025-03-20"),
	})

	periods := g.RepaymentPeriods(terms.RepaymentStart(), terms)

	assert.Equal(t, "2025-03-20", periods[1].Due.String())
	assert.Equal(t, "2025-04-20", periods[2].Due.String())
	assert.True(t, terms.Variations.HasDueDateVariation(generic.MustParseDate("2025-03-15")))
}

func TestGenerator_NextRestDate(t *testing.T) {
	g := calendar.NewGenerator(nil, calendar.SameDay)
	terms := monthlyTerms(generic.MustParseDate("2025-01-15"), 4)
	feb14 := generic.MustParseDate("2025-02-14")

	assert.Equal(t, "2025-02-15", g.NextRestDate(feb14, terms).String(), "no recalculation: next day")

	terms.Recalculation = loan.Recalculation{
		Enabled:       true,
		RestFrequency: generic.Frequency{Every: 3, Unit: generic.FrequencyMonths},
	}
	assert.Equal(t, "2025-04-15", g.NextRestDate(feb14, terms).String())
	assert.Equal(t, "2025-07-15", g.NextRestDate(generic.MustParseDate("2025-04-15"), terms).String())

	terms.Recalculation.RestFrequency = generic.Frequency{Every: 1, Unit: generic.FrequencyWeeks}
	assert.Equal(t, "2025-02-19", g.NextRestDate(feb14, terms).String())
}
