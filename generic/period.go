package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE RANGE - Window between two dates
// =============================================================================

// DateRange is a window of calendar days. Schedule windows are half-open
// [Start, End) when splicing disbursements and (Start, End] when attributing
// charges, so the containment test is chosen by the caller.
type DateRange struct {
	Start TimePoint
	End   TimePoint
}

func NewDateRange(start, end TimePoint) (DateRange, error) {
	if end.Before(start) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvalidPeriod, start, end)
	}
	return DateRange{Start: start, End: end}, nil
}

// Contains returns true if t is within [Start, End].
func (r DateRange) Contains(t TimePoint) bool {
	return t.AfterOrEqual(r.Start) && t.BeforeOrEqual(r.End)
}

// ContainsHalfOpen returns true if t is within [Start, End).
func (r DateRange) ContainsHalfOpen(t TimePoint) bool {
	return t.AfterOrEqual(r.Start) && t.Before(r.End)
}

// ContainsAfterStart returns true if t is within (Start, End].
func (r DateRange) ContainsAfterStart(t TimePoint) bool {
	return t.After(r.Start) && t.BeforeOrEqual(r.End)
}

func (r DateRange) Days() int { return DaysBetween(r.Start, r.End) }

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// =============================================================================
// FREQUENCY - Repayment and rest cadence
// =============================================================================

type FrequencyUnit string

const (
	FrequencyDays   FrequencyUnit = "days"
	FrequencyWeeks  FrequencyUnit = "weeks"
	FrequencyMonths FrequencyUnit = "months"
	FrequencyYears  FrequencyUnit = "years"
)

func (u FrequencyUnit) Valid() bool {
	switch u {
	case FrequencyDays, FrequencyWeeks, FrequencyMonths, FrequencyYears:
		return true
	}
	return false
}

// Frequency is "every N units".
type Frequency struct {
	Every int
	Unit  FrequencyUnit
}

func (f Frequency) String() string { return fmt.Sprintf("every %d %s", f.Every, f.Unit) }

// Advance moves t forward by one cadence step. For month and year
// cadences the result lands on anchorDay, clamped to the month end.
func (f Frequency) Advance(t TimePoint, anchorDay int) TimePoint {
	every := f.Every
	if every < 1 {
		every = 1
	}
	switch f.Unit {
	case FrequencyDays:
		return t.AddDays(every)
	case FrequencyWeeks:
		return t.AddWeeks(every)
	case FrequencyYears:
		return t.AddMonthsAnchored(12*every, anchorDay)
	default:
		return t.AddMonthsAnchored(every, anchorDay)
	}
}

// PeriodsPerYear returns how many cadence steps fit in a year of
// daysInYear days.
func (f Frequency) PeriodsPerYear(mc MathContext, daysInYear int) decimal.Decimal {
	every := decimal.NewFromInt(int64(maxInt(f.Every, 1)))
	switch f.Unit {
	case FrequencyDays:
		return mc.Div(decimal.NewFromInt(int64(daysInYear)), every)
	case FrequencyWeeks:
		return mc.Div(decimal.NewFromInt(52), every)
	case FrequencyYears:
		return mc.Div(decimal.NewFromInt(1), every)
	default:
		return mc.Div(decimal.NewFromInt(12), every)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
