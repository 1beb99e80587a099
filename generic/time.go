package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date (schedules are day-granular)
// =============================================================================

type TimePoint struct {
	Time time.Time
}

const DateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func FromTime(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return FromTime(t), nil
}

func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

func Today() TimePoint {
	return FromTime(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddWeeks(n int) TimePoint { return tp.AddDays(7 * n) }
func (tp TimePoint) AddYears(n int) TimePoint { return tp.AddMonths(12 * n) }

// AddMonths moves n months keeping the day of month, clamped to the last
// day of the target month (Jan 31 + 1 month = Feb 28/29).
func (tp TimePoint) AddMonths(n int) TimePoint {
	return tp.AddMonthsAnchored(n, tp.Day())
}

// AddMonthsAnchored moves n months and lands on anchorDay, clamped to the
// month end. Repeated stepping from a clamped date recovers the anchor day.
func (tp TimePoint) AddMonthsAnchored(n int, anchorDay int) TimePoint {
	t := tp.normalize()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := EndOfMonth(first.Year(), first.Month()).Day()
	day := anchorDay
	if day > last {
		day = last
	}
	return NewTimePoint(first.Year(), first.Month(), day)
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWeekend() bool       { wd := tp.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }
func (tp TimePoint) String() string        { return tp.Time.Format(DateLayout) }

func MinTime(a, b TimePoint) TimePoint {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxTime(a, b TimePoint) TimePoint {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// HOLIDAY CALENDAR - Office-specific non-working days
// =============================================================================

// Holiday is a date on which no repayment may fall for an office.
type Holiday struct {
	ID        string
	OfficeID  string    // Empty string = global holiday
	Date      TimePoint // The holiday date
	Name      string    // e.g., "New Year's Day"
	Recurring bool      // true = same month/day every year
}

// HolidayCalendar provides holiday lookup functionality.
type HolidayCalendar interface {
	// IsHoliday checks if a date is a holiday for the given office.
	// Checks office-specific holidays first, then global holidays.
	IsHoliday(officeID string, date TimePoint) bool

	// GetHolidays returns all holidays for an office in a given year.
	GetHolidays(officeID string, year int) []Holiday
}

// DefaultHolidayCalendar is a no-op calendar for when holidays are disabled.
type DefaultHolidayCalendar struct{}

func (d *DefaultHolidayCalendar) IsHoliday(officeID string, date TimePoint) bool { return false }
func (d *DefaultHolidayCalendar) GetHolidays(officeID string, year int) []Holiday { return nil }

// StaticHolidayCalendar holds a fixed holiday list in memory.
type StaticHolidayCalendar struct {
	Holidays []Holiday
}

func (s *StaticHolidayCalendar) IsHoliday(officeID string, date TimePoint) bool {
	for _, h := range s.Holidays {
		if h.OfficeID != "" && h.OfficeID != officeID {
			continue
		}
		if h.Date.Equal(date) {
			return true
		}
		if h.Recurring && h.Date.Month() == date.Month() && h.Date.Day() == date.Day() {
			return true
		}
	}
	return false
}

func (s *StaticHolidayCalendar) GetHolidays(officeID string, year int) []Holiday {
	var out []Holiday
	for _, h := range s.Holidays {
		if h.OfficeID != "" && h.OfficeID != officeID {
			continue
		}
		if h.Recurring || h.Date.Year() == year {
			out = append(out, h)
		}
	}
	return out
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func EndOfMonth(year int, month time.Month) TimePoint {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return TimePoint{Time: t}
}

func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
