package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()

	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	m.ObserveHTTPRequest("GET", "/v1/recommendations/jobs", "200", 0.1, 512)
	m.IncRateLimitBlocked("/v1/recommendations/jobs")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	want := map[string]bool{
		MetricHTTPRequestsTotal:     false,
		MetricHTTPRequestDuration:   false,
		MetricHTTPResponseSizeBytes: false,
		MetricRateLimitBlocked:      false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := NewMetrics().Register(reg); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}
	if err := NewMetrics().Register(reg); err == nil {
		t.Error("expected error registering duplicate collectors")
	}
}

func TestMetrics_RateLimitBlocked(t *testing.T) {
	m := NewMetrics()
	m.IncRateLimitBlocked("/health")
	m.IncRateLimitBlocked("/health")

	if got := getCounterValue(t, m.rateLimitBlocked, "/health"); got != 2 {
		t.Errorf("expected 2 blocked requests, got %v", got)
	}
}

func getCounterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var metric dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func getHistogramCount(t *testing.T, vec *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	var metric dto.Metric
	observer, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("failed to get histogram: %v", err)
	}
	if err := observer.(prometheus.Histogram).Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetHistogram().GetSampleCount()
}
