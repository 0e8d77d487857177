package recommend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRequestsTotal   = "recommend_requests_total"
	MetricDuration        = "recommend_duration_seconds"
	MetricJobsScored      = "recommend_jobs_scored_total"
	MetricJobsFiltered    = "recommend_jobs_filtered_total"
	MetricSignalFallbacks = "recommend_signal_fallbacks_total"
)

// Request outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeUnavailable  = "unavailable"
	OutcomeInconsistent = "inconsistent"
	OutcomeCanceled     = "canceled"
	OutcomeError        = "error"
)

// Filter reasons.
const (
	FilterInactive = "inactive"
	FilterBlocked  = "blocked"
)

// Metrics contains Prometheus metrics for recommendation requests.
// All operations are thread-safe.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	duration        prometheus.Histogram
	jobsScored      prometheus.Counter
	jobsFiltered    *prometheus.CounterVec
	signalFallbacks *prometheus.CounterVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Total number of recommendation requests by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricDuration,
			Help:    "Histogram of recommendation request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		jobsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricJobsScored,
			Help: "Total number of jobs scored",
		}),
		jobsFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJobsFiltered,
				Help: "Total number of jobs dropped before scoring by reason",
			},
			[]string{"reason"},
		),
		signalFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSignalFallbacks,
				Help: "Total number of optional signals replaced by a default value",
			},
			[]string{"signal"},
		),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.requestsTotal,
		m.duration,
		m.jobsScored,
		m.jobsFiltered,
		m.signalFallbacks,
	}
}

// ObserveRequest records a finished recommendation request.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

// IncJobsScored increments the scored jobs counter.
func (m *Metrics) IncJobsScored() {
	m.jobsScored.Inc()
}

// IncJobsFiltered increments the filtered jobs counter for reason.
func (m *Metrics) IncJobsFiltered(reason string) {
	m.jobsFiltered.WithLabelValues(reason).Inc()
}

// IncSignalFallback increments the fallback counter for signal.
func (m *Metrics) IncSignalFallback(signal string) {
	m.signalFallbacks.WithLabelValues(signal).Inc()
}
