package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/calendar"
	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
	"github.com/warp/schedule-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, preset, loanRef, office string, version int, at time.Time) *schedule.Record {
	t.Helper()
	p, ok := factory.LookupPreset(preset)
	require.True(t, ok)
	terms, err := factory.NewLoanFactory().ParseTerms(p.JSON)
	require.NoError(t, err)
	engine, err := schedule.NewEngine(schedule.StrategyCumulative, schedule.DefaultDependencies())
	require.NoError(t, err)
	model, err := engine.Generate(terms)
	require.NoError(t, err)
	return &schedule.Record{
		ID: uuid.New(), LoanRef: loanRef, Version: version, Strategy: schedule.StrategyCumulative,
		OfficeID: office, Config: []byte(p.JSON), Schedule: model, CreatedAt: at,
	}
}

// =============================================================================
// SCHEDULE STORE TESTS
// =============================================================================

func TestStore_SaveAndGet_RoundTripsRows(t *testing.T) {
	// GIVEN: A schedule with a down payment row
	// WHEN: Saving and loading it
	// THEN: Rows, totals and config come back unchanged

	ctx := context.Background()
	s := newStore(t)
	rec := record(t, "down-payment", "L-1", "north", 1, time.Now())

	require.NoError(t, s.Save(ctx, rec))
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.LoanRef, got.LoanRef)
	assert.Equal(t, "north", got.OfficeID)
	assert.JSONEq(t, string(rec.Config), string(got.Config))
	assert.Equal(t, rec.Schedule.Len(), got.Schedule.Len())
	assert.Equal(t, rec.Schedule.LoanTermInDays(), got.Schedule.LoanTermInDays())
	assert.Equal(t, rec.Schedule.Totals().Expected.String(), got.Schedule.Totals().Expected.String())
	assert.Equal(t, "900.00", got.Schedule.Totals().Principal.String())

	want, have := rec.Schedule.Repayments(), got.Schedule.Repayments()
	require.Len(t, have, len(want))
	for i := range want {
		assert.Equal(t, want[i].Due, have[i].Due)
		assert.Equal(t, want[i].Interest.String(), have[i].Interest.String())
		assert.Equal(t, want[i].Outstanding.String(), have[i].Outstanding.String())
	}
}

func TestStore_Save_DuplicateVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now()

	require.NoError(t, s.Save(ctx, record(t, "plain-monthly", "L-1", "", 1, now)))
	err := s.Save(ctx, record(t, "plain-monthly", "L-1", "", 1, now))

	assert.ErrorIs(t, err, generic.ErrScheduleExists)
	history, err := s.History(ctx, "L-1")
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed insert leaves no rows behind")
}

func TestStore_LatestAndHistory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for v := 1; v <= 3; v++ {
		require.NoError(t, s.Save(ctx, record(t, "plain-monthly", "L-1", "", v, base.Add(time.Duration(v)*time.Hour))))
	}

	latest, err := s.Latest(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	history, err := s.History(ctx, "L-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 1, history[0].Version)
	assert.True(t, history[0].CreatedAt.Before(history[2].CreatedAt))

	_, err = s.Latest(ctx, "missing")
	assert.ErrorIs(t, err, generic.ErrScheduleNotFound)
	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, generic.ErrScheduleNotFound)
}

func TestStore_MarkStale_OnlyLatestVersionPerOffice(t *testing.T) {
	// GIVEN: Loan L-1 (north, two versions) and L-2 (south)
	// WHEN: Marking north stale
	// THEN: Only L-1 v2 is flagged, and ListStale returns it

	ctx := context.Background()
	s := newStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, record(t, "plain-monthly", "L-1", "north", 1, base)))
	require.NoError(t, s.Save(ctx, record(t, "plain-monthly", "L-1", "north", 2, base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, record(t, "plain-monthly", "L-2", "south", 1, base)))

	n, err := s.MarkStale(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.MarkStale(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already stale")

	stale, err := s.ListStale(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "L-1", stale[0].LoanRef)
	assert.Equal(t, 2, stale[0].Version)

	n, err = s.MarkStale(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "global holiday reaches the other office")

	stale, err = s.ListStale(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	// A new version supersedes the stale one
	require.NoError(t, s.Save(ctx, record(t, "plain-monthly", "L-1", "north", 3, base.Add(2*time.Hour))))
	stale, err = s.ListStale(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "L-2", stale[0].LoanRef)
}

// =============================================================================
// HOLIDAY TESTS
// =============================================================================

func TestStore_Holidays(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{
		ID: "ny", Date: generic.MustParseDate("2020-01-01"), Name: "New Year", Recurring: true,
	}))
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{
		ID: "local", OfficeID: "north", Date: generic.MustParseDate("2025-03-17"), Name: "Local",
	}))

	assert.True(t, s.IsHoliday("south", generic.MustParseDate("2025-01-01")))
	assert.True(t, s.IsHoliday("north", generic.MustParseDate("2025-03-17")))
	assert.False(t, s.IsHoliday("south", generic.MustParseDate("2025-03-17")))

	north := s.GetHolidays("north", 2025)
	require.Len(t, north, 2)
	assert.Equal(t, "2025-01-01", north[0].Date.String(), "recurring holiday moved to the year")
	assert.Len(t, s.GetHolidays("north", 2026), 1)

	listed, err := s.ListHolidays(ctx, "south")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	deleted, err := s.DeleteHoliday(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, "north", deleted.OfficeID)
	assert.False(t, s.IsHoliday("north", generic.MustParseDate("2025-03-17")))

	_, err = s.DeleteHoliday(ctx, "local")
	assert.ErrorIs(t, err, generic.ErrHolidayNotFound)
}

func TestStore_HolidaysDriveGenerator(t *testing.T) {
	// GIVEN: A holiday on the first due date, February 17 2025 (Monday)
	// WHEN: Generating with the store as calendar and next-working-day rule
	// THEN: The first installment moves to February 18

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{
		ID: "pres", Date: generic.MustParseDate("2025-02-17"), Name: "Presidents Day",
	}))

	terms, err := factory.NewLoanFactory().ParseTerms(`{
		"principal": "1000", "currency": "USD", "interest_rate": "12",
		"repayment_every": 1, "repayment_unit": "months", "number_of_repayments": 3,
		"expected_disbursement_date": "2025-01-17"
	}`)
	require.NoError(t, err)

	deps := schedule.DefaultDependencies()
	deps.Dates = calendarWith(s)
	engine, err := schedule.NewEngine(schedule.StrategyCumulative, deps)
	require.NoError(t, err)
	model, err := engine.Generate(terms)
	require.NoError(t, err)

	assert.Equal(t, "2025-02-18", model.Repayments()[0].Due.String())
	assert.Equal(t, "2025-03-17", model.Repayments()[1].Due.String())
}

func calendarWith(holidays generic.HolidayCalendar) calendar.DateGenerator {
	return calendar.NewGenerator(holidays, calendar.NextWorkingDay)
}
