package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testLogEntry represents a parsed JSON log entry for testing.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	TraceID   string `json:"trace_id"`
	UserID    *int64 `json:"user_id"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)

	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/recommendations/jobs", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	entry := parseEntry(t, buf)
	if entry.Method != "GET" {
		t.Errorf("expected method GET, got %s", entry.Method)
	}
	if entry.Path != "/v1/recommendations/jobs" {
		t.Errorf("expected path /v1/recommendations/jobs, got %s", entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("expected status 200, got %d", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("expected size 5, got %d", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.UserID != nil {
		t.Errorf("expected no user_id, got %d", *entry.UserID)
	}
}

func TestLogging_WithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)

	handler := RequestID(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseEntry(t, buf)
	if entry.RequestID != "req-42" {
		t.Errorf("expected request_id req-42, got %q", entry.RequestID)
	}
}

func TestLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			entry := parseEntry(t, buf)
			if entry.Level != tt.wantLevel {
				t.Errorf("status %d: expected level %s, got %s", tt.status, tt.wantLevel, entry.Level)
			}
			if entry.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, entry.Status)
			}
		})
	}
}

func TestLogging_UpdateResponseContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	metrics := NewMetrics()

	// The metrics writer sits between the logging writer and the handler.
	handler := Logging(logger)(HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetUserID(r.Context(), 7)
		ctx = SetErrorCode(ctx, "service_unavailable")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusServiceUnavailable)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/recommendations/jobs", nil))

	entry := parseEntry(t, buf)
	if entry.UserID == nil || *entry.UserID != 7 {
		t.Errorf("expected user_id 7, got %v", entry.UserID)
	}
	if entry.ErrorCode != "service_unavailable" {
		t.Errorf("expected error_code service_unavailable, got %q", entry.ErrorCode)
	}
}

func TestLogging_ErrorCodeOnlyForErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		UpdateResponseContext(w, SetErrorCode(r.Context(), "validation_error"))
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if entry := parseEntry(t, buf); entry.ErrorCode != "" {
		t.Errorf("expected no error_code on 200, got %q", entry.ErrorCode)
	}
}

func TestLogging_TraceID(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	buf := &bytes.Buffer{}
	handler := Tracing("jobrec-test")(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	spans := spanRecorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	entry := parseEntry(t, buf)
	if entry.TraceID != spans[0].SpanContext().TraceID().String() {
		t.Errorf("trace_id = %q, want %q", entry.TraceID, spans[0].SpanContext().TraceID())
	}
}

func TestUpdateResponseContext_NoLoggingWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	UpdateResponseContext(rr, context.Background())
	UpdateResponseContext(newMetricsResponseWriter(rr), context.Background())
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := newResponseWriter(context.Background(), rr)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rw.statusCode)
	}
	if rr.Code != http.StatusAccepted {
		t.Errorf("expected recorder status 202, got %d", rr.Code)
	}
}

func TestGetUserID(t *testing.T) {
	if _, ok := GetUserID(context.Background()); ok {
		t.Error("expected no user id in empty context")
	}
	id, ok := GetUserID(SetUserID(context.Background(), 99))
	if !ok || id != 99 {
		t.Errorf("GetUserID() = %d, %v; want 99, true", id, ok)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env       string
		wantDebug bool
	}{
		{"production", false},
		{"development", true},
		{"", true},
	}
	for _, tt := range tests {
		logger := NewLogger(tt.env)
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
			t.Errorf("NewLogger(%q) debug enabled = %v, want %v", tt.env, got, tt.wantDebug)
		}
	}
}
