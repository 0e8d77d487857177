package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/jobrec/internal/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	ServiceName string
	Logger      *slog.Logger
	// Metrics records per-route HTTP metrics. Nil disables them.
	Metrics *middleware.Metrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer  prometheus.Gatherer
	RateLimit middleware.RateLimitConfig
}

// NewRouter builds the HTTP handler of the service.
//
// Middleware order: RequestID, Tracing, Logging, panic recovery, HTTP
// metrics, then the per-client rate limit.
func NewRouter(cfg RouterConfig, recommendations *RecommendationHandlers, healthHandlers *HealthHandlers) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "jobrec"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(middleware.HTTPMetrics(cfg.Metrics))
	}
	r.Use(middleware.RateLimiter(cfg.RateLimit, cfg.Metrics, func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusTooManyRequests, ErrCodeRateLimited, "Too many requests")
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", healthHandlers.Health)
	r.Get("/ready", healthHandlers.Ready)
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/v1/recommendations/jobs", recommendations.Recommendations)
	r.Get("/v1/recommendations/jobs/most-reserved", recommendations.MostReserved)
	r.Get("/v1/recommendations/jobs/top-rated", recommendations.TopRated)

	return r
}
