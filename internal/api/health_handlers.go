package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/jobrec/internal/health"
)

// HealthHandlers provides health and readiness check endpoints for Kubernetes probes.
type HealthHandlers struct {
	checks  []health.Check
	timeout time.Duration
	logger  *slog.Logger
}

// HealthHandlersConfig configures the health check handlers.
type HealthHandlersConfig struct {
	// Checks run on every readiness probe.
	Checks []health.Check
	// Timeout bounds a readiness probe. Defaults to health.DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(cfg HealthHandlersConfig) *HealthHandlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HealthHandlers{
		checks:  cfg.Checks,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// HealthResponse represents the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health (liveness probe).
// Returns 200 if the process can serve requests. Dependencies are not checked.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": health.StatusOK},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready (readiness probe).
// Returns 503 when a critical dependency fails. Non-critical failures such as
// an open upstream circuit are reported as degraded with status 200.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), h.checks, h.timeout, h.logger)

	status := "ready"
	statusCode := http.StatusOK
	if !report.Ready {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, r.Context(), statusCode, HealthResponse{
		Status:    status,
		Checks:    report.Checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
