package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/schedule"
	"github.com/warp/schedule-engine/store/postgres"
)

// newStore connects to SCHEDULE_TEST_DATABASE_URL and truncates the tables.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("SCHEDULE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SCHEDULE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, postgres.Config{URL: url, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := postgres.NewStore(pool)
	require.NoError(t, s.Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE schedule_periods, schedules, holidays")
	require.NoError(t, err)
	return s
}

func record(t *testing.T, loanRef, office string, version int) *schedule.Record {
	t.Helper()
	p, _ := factory.LookupPreset("down-payment")
	terms, err := factory.NewLoanFactory().ParseTerms(p.JSON)
	require.NoError(t, err)
	engine, err := schedule.NewEngine(schedule.StrategyCumulative, schedule.DefaultDependencies())
	require.NoError(t, err)
	model, err := engine.Generate(terms)
	require.NoError(t, err)
	return &schedule.Record{
		ID: uuid.New(), LoanRef: loanRef, Version: version, Strategy: schedule.StrategyCumulative,
		OfficeID: office, Config: []byte(p.JSON), Schedule: model,
		CreatedAt: time.Now().Add(time.Duration(version) * time.Second),
	}
}

func TestNewPool_BadURL(t *testing.T) {
	_, err := postgres.NewPool(context.Background(), postgres.Config{URL: "::not a url::"})
	assert.Error(t, err)
}

func TestStore_RoundTripAndStale(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	v1 := record(t, "L-1", "north", 1)
	require.NoError(t, s.Save(ctx, v1))
	require.NoError(t, s.Save(ctx, record(t, "L-1", "north", 2)))
	assert.ErrorIs(t, s.Save(ctx, record(t, "L-1", "north", 2)), generic.ErrScheduleExists)

	got, err := s.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, v1.Schedule.Len(), got.Schedule.Len())
	assert.Equal(t, v1.Schedule.Totals().Expected.String(), got.Schedule.Totals().Expected.String())

	latest, err := s.Latest(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	n, err := s.MarkStale(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, err := s.ListStale(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, 2, stale[0].Version)
}

func TestStore_Holidays(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.SaveHoliday(ctx, generic.Holiday{
		ID: "ny", Date: generic.MustParseDate("2020-01-01"), Name: "New Year", Recurring: true,
	}))
	assert.True(t, s.IsHoliday("any", generic.MustParseDate("2025-01-01")))
	assert.Len(t, s.GetHolidays("any", 2025), 1)

	h, err := s.DeleteHoliday(ctx, "ny")
	require.NoError(t, err)
	assert.True(t, h.Recurring)
	_, err = s.DeleteHoliday(ctx, "ny")
	assert.ErrorIs(t, err, generic.ErrHolidayNotFound)
}
