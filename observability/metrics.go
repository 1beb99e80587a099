package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/schedule-engine/schedule"
)

// =============================================================================
// METRICS
// =============================================================================

// Metrics records schedule generation outcomes on a private registry, so
// tests can build as many as they like.
type Metrics struct {
	registry    *prometheus.Registry
	generated   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	periods     *prometheus.HistogramVec
	rederivable prometheus.Gauge
}

var _ schedule.Recorder = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedule",
			Name:      "generated_total",
			Help:      "Schedules generated, by strategy.",
		}, []string{"strategy"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedule",
			Name:      "failures_total",
			Help:      "Failed generations, by strategy and reason.",
		}, []string{"strategy", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schedule",
			Name:      "generation_seconds",
			Help:      "Time spent generating one schedule.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"strategy"}),
		periods: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "schedule",
			Name:      "periods",
			Help:      "Rows per generated schedule.",
			Buckets:   []float64{2, 6, 12, 24, 60, 120, 360},
		}, []string{"strategy"}),
		rederivable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "schedule",
			Name:      "stale_records",
			Help:      "Stale schedules found by the last re-derivation sweep.",
		}),
	}
	m.registry.MustRegister(
		m.generated, m.failures, m.duration, m.periods, m.rederivable,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveGeneration(strategy schedule.Strategy, periods int, elapsed time.Duration) {
	m.generated.WithLabelValues(string(strategy)).Inc()
	m.duration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
	m.periods.WithLabelValues(string(strategy)).Observe(float64(periods))
}

func (m *Metrics) ObserveFailure(strategy schedule.Strategy, reason string) {
	m.failures.WithLabelValues(string(strategy), reason).Inc()
}

// SetStale reports the size of the latest re-derivation batch.
func (m *Metrics) SetStale(n int) {
	m.rederivable.Set(float64(n))
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
