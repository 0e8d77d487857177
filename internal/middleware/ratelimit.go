package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig defines the rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per window.
	// Zero disables limiting.
	RequestsPerWindow int
	// WindowDuration is the time window for the rate limit.
	WindowDuration time.Duration
}

// Validate checks that the RateLimitConfig has valid values.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow < 0 {
		return fmt.Errorf("RequestsPerWindow must be >= 0 (got %d)", c.RequestsPerWindow)
	}
	if c.RequestsPerWindow > 0 && c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// PerMinute returns a config allowing n requests per minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: n, WindowDuration: time.Minute}
}

// RateLimiter limits requests per client IP using a sliding window counter.
// Rejected requests are counted and handed to onLimit, which writes the
// response. A nil onLimit replies with a plain 429.
func RateLimiter(cfg RateLimitConfig, metrics *Metrics, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	if cfg.RequestsPerWindow <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}

	return httprate.Limit(
		cfg.RequestsPerWindow,
		cfg.WindowDuration,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			if metrics != nil {
				metrics.IncRateLimitBlocked(routeLabel(r))
			}
			ctx := SetErrorCode(r.Context(), "rate_limited")
			UpdateResponseContext(w, ctx)
			onLimit(w, r.WithContext(ctx))
		}),
	)
}
