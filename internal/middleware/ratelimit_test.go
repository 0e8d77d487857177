package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{"per minute", PerMinute(60), false},
		{"disabled", RateLimitConfig{}, false},
		{"negative requests", RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	m := NewMetrics()
	var limitedCode string
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		limitedCode = GetErrorCode(r.Context())
		w.WriteHeader(http.StatusTooManyRequests)
	}

	handler := RateLimiter(PerMinute(2), m, onLimit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/jobs", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: expected %d, got %d", i+1, want[i], codes[i])
		}
	}
	if limitedCode != "rate_limited" {
		t.Errorf("expected error code rate_limited, got %q", limitedCode)
	}
	if got := getCounterValue(t, m.rateLimitBlocked, "/v1/recommendations/jobs"); got != 1 {
		t.Errorf("expected 1 blocked request, got %v", got)
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	handler := RateLimiter(PerMinute(1), nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("client %s: expected 200, got %d", addr, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:2"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected default 429 handler, got %d", rr.Code)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := RateLimiter(RateLimitConfig{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := range 50 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}
