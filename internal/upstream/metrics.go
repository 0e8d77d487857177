package upstream

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Metrics names as constants for consistency.
const (
	MetricRequestsTotal   = "upstream_requests_total"
	MetricRequestDuration = "upstream_request_duration_seconds"
	MetricCircuitState    = "upstream_circuit_state"
)

// Call results.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Metrics contains Prometheus metrics shared by all upstream clients.
// All operations are thread-safe.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	circuitState    *prometheus.GaugeVec
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRequestsTotal,
				Help: "Total number of upstream calls by service and result",
			},
			[]string{"service", "result"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRequestDuration,
				Help:    "Histogram of upstream call duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"service"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricCircuitState,
				Help: "Circuit breaker state per service (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
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
		m.requestDuration,
		m.circuitState,
	}
}

// ObserveCall records one finished upstream call.
func (m *Metrics) ObserveCall(service, result string, d time.Duration) {
	m.requestsTotal.WithLabelValues(service, result).Inc()
	m.requestDuration.WithLabelValues(service).Observe(d.Seconds())
}

// SetCircuitState records the breaker state of service.
func (m *Metrics) SetCircuitState(service string, state gobreaker.State) {
	m.circuitState.WithLabelValues(service).Set(stateToFloat(state))
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
