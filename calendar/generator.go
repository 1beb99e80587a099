/*
Package calendar produces the due dates of a repayment schedule.

PURPOSE:
  The schedule engine asks this package for every date it needs: the next
  due date in the cadence, the same date moved off weekends and holidays,
  the last due date of the loan, the full period sequence used by interest
  models and the rest dates on which principal reductions start to lower
  the interest-bearing balance.

KEY CONCEPTS:
  - Cadence date ("actual"): the unadjusted date the cadence steps from
  - Schedule date: the cadence date moved by the reschedule rule
  - Anchor day: month cadences keep the day of month of the first due date,
    so Jan 31 -> Feb 28 -> Mar 31
  - Reschedule rule: what happens to a due date on a non-working day

SEE ALSO:
  - generic/time.go: HolidayCalendar
  - schedule/engine.go: Consumes DateGenerator
*/
package calendar

import (
	"time"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/loan"
)

// RescheduleRule moves a due date that falls on a non-working day.
type RescheduleRule string

const (
	SameDay            RescheduleRule = "same_day"
	NextWorkingDay     RescheduleRule = "next_working_day"
	PreviousWorkingDay RescheduleRule = "previous_working_day"
	ModifiedFollowing  RescheduleRule = "modified_following"
)

func (r RescheduleRule) Valid() bool {
	switch r {
	case SameDay, NextWorkingDay, PreviousWorkingDay, ModifiedFollowing:
		return true
	}
	return false
}

// AdjustedDate pairs the date a repayment is due with the cadence date the
// next due date is computed from.
type AdjustedDate struct {
	ScheduleDate generic.TimePoint
	ActualDate   generic.TimePoint
}

// RepaymentPeriod is one [From, Due) window of the schedule.
type RepaymentPeriod struct {
	Number int
	From   generic.TimePoint
	Due    generic.TimePoint
}

// DateGenerator is the due-date collaborator of the schedule engine.
type DateGenerator interface {
	LastRepaymentDate(terms *loan.Terms) generic.TimePoint
	NextRepaymentDate(last generic.TimePoint, terms *loan.Terms, first bool) generic.TimePoint
	AdjustRepaymentDate(date generic.TimePoint, terms *loan.Terms) AdjustedDate
	RepaymentPeriods(start generic.TimePoint, terms *loan.Terms) []RepaymentPeriod
	NextRestDate(after generic.TimePoint, terms *loan.Terms) generic.TimePoint
}

// =============================================================================
// GENERATOR - Default DateGenerator
// =============================================================================

type Generator struct {
	Holidays generic.HolidayCalendar
	Weekend  []time.Weekday
	Rule     RescheduleRule
}

// NewGenerator returns a generator with a Saturday/Sunday weekend.
func NewGenerator(holidays generic.HolidayCalendar, rule RescheduleRule) *Generator {
	if holidays == nil {
		holidays = &generic.DefaultHolidayCalendar{}
	}
	if rule == "" {
		rule = SameDay
	}
	return &Generator{
		Holidays: holidays,
		Weekend:  []time.Weekday{time.Saturday, time.Sunday},
		Rule:     rule,
	}
}

var _ DateGenerator = (*Generator)(nil)

// IsWorkingDay checks the weekend set and the office holidays.
func (g *Generator) IsWorkingDay(date generic.TimePoint, officeID string) bool {
	for _, wd := range g.Weekend {
		if date.Weekday() == wd {
			return false
		}
	}
	if g.Holidays != nil && g.Holidays.IsHoliday(officeID, date) {
		return false
	}
	return true
}

func (g *Generator) NextRepaymentDate(last generic.TimePoint, terms *loan.Terms, first bool) generic.TimePoint {
	if first && terms.FirstRepaymentDate != nil {
		return *terms.FirstRepaymentDate
	}
	return terms.RepaymentEvery.Advance(last, anchorDay(last, terms))
}

func (g *Generator) AdjustRepaymentDate(date generic.TimePoint, terms *loan.Terms) AdjustedDate {
	adjusted := AdjustedDate{ScheduleDate: date, ActualDate: date}
	if g.IsWorkingDay(date, terms.OfficeID) {
		return adjusted
	}

	switch g.Rule {
	case NextWorkingDay:
		adjusted.ScheduleDate = g.following(date, terms.OfficeID)
	case PreviousWorkingDay:
		adjusted.ScheduleDate = g.preceding(date, terms.OfficeID)
	case ModifiedFollowing:
		next := g.following(date, terms.OfficeID)
		if next.Month() != date.Month() {
			next = g.preceding(date, terms.OfficeID)
		}
		adjusted.ScheduleDate = next
	}
	return adjusted
}

func (g *Generator) LastRepaymentDate(terms *loan.Terms) generic.TimePoint {
	periods := g.RepaymentPeriods(terms.RepaymentStart(), terms)
	if len(periods) == 0 {
		return terms.RepaymentStart()
	}
	return periods[len(periods)-1].Due
}

// RepaymentPeriods lays out NumberOfRepayments windows from start. Pending
// due-date shifts are applied without being consumed.
func (g *Generator) RepaymentPeriods(start generic.TimePoint, terms *loan.Terms) []RepaymentPeriod {
	periods := make([]RepaymentPeriod, 0, terms.NumberOfRepayments)
	from := start
	actual := start
	for i := 1; i <= terms.NumberOfRepayments; i++ {
		actual = g.NextRepaymentDate(actual, terms, i == 1)
		adj := g.AdjustRepaymentDate(actual, terms)
		actual = adj.ActualDate
		due := adj.ScheduleDate

		if v := terms.Variations.DueDateVariationFor(due); v != nil {
			due = v.DateValue
			if !v.SpecificToInstallment {
				actual = v.DateValue
			}
		}

		periods = append(periods, RepaymentPeriod{Number: i, From: from, Due: due})
		from = due
	}
	return periods
}

// NextRestDate returns the first rest date strictly after the given date.
// Without interest recalculation, or with a rest cadence equal to the
// repayment cadence, that is the following day.
func (g *Generator) NextRestDate(after generic.TimePoint, terms *loan.Terms) generic.TimePoint {
	rc := terms.Recalculation
	if !rc.Enabled || rc.RestFrequency.Every < 1 || !rc.RestFrequency.Unit.Valid() {
		return after.AddDays(1)
	}
	if rc.RestFrequency.Unit == generic.FrequencyDays && rc.RestFrequency.Every == 1 {
		return after.AddDays(1)
	}

	anchor := terms.ExpectedDisbursement
	rest := anchor
	for !rest.After(after) {
		rest = rc.RestFrequency.Advance(rest, anchor.Day())
	}
	return rest
}

// =============================================================================
// ROLL CONVENTIONS
// =============================================================================

func (g *Generator) following(date generic.TimePoint, officeID string) generic.TimePoint {
	d := date
	for i := 0; i < maxRollDays && !g.IsWorkingDay(d, officeID); i++ {
		d = d.AddDays(1)
	}
	return d
}

func (g *Generator) preceding(date generic.TimePoint, officeID string) generic.TimePoint {
	d := date
	for i := 0; i < maxRollDays && !g.IsWorkingDay(d, officeID); i++ {
		d = d.AddDays(-1)
	}
	return d
}

// maxRollDays bounds rolling on a calendar with no working days.
const maxRollDays = 366

// anchorDay keeps month cadences on the day of the first due date. A date
// clamped to a short month end recovers the anchor on the next step.
func anchorDay(last generic.TimePoint, terms *loan.Terms) int {
	day := last.Day()
	anchor := day
	if terms.FirstRepaymentDate != nil {
		anchor = terms.FirstRepaymentDate.Day()
	} else if !terms.ExpectedDisbursement.IsZero() {
		anchor = terms.ExpectedDisbursement.Day()
	}
	isMonthEnd := day == generic.EndOfMonth(last.Year(), last.Month()).Day()
	if isMonthEnd && anchor > day {
		return anchor
	}
	return day
}
