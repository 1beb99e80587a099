package observability_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/observability"
	"github.com/warp/schedule-engine/schedule"
)

func TestMetrics_RecordsOutcomes(t *testing.T) {
	m := observability.NewMetrics()

	m.ObserveGeneration(schedule.StrategyCumulative, 5, 3*time.Millisecond)
	m.ObserveGeneration(schedule.StrategyCumulative, 7, time.Millisecond)
	m.ObserveFailure(schedule.StrategyProgressive, "cap_exceeded")
	m.SetStale(4)

	count, err := testutil.GatherAndCount(m.Registry(), "schedule_generated_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one series per strategy")

	count, err = testutil.GatherAndCount(m.Registry(), "schedule_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(m.Registry(), "schedule_generation_seconds", "schedule_periods")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveFailure(schedule.StrategyCumulative, "invalid_terms")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `schedule_failures_total{reason="invalid_terms",strategy="cumulative"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
