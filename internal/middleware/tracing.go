package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing wraps each request in an OpenTelemetry server span. Incoming W3C
// traceparent headers are honoured, so a request joins the caller's trace and
// every upstream call made while serving it becomes a child span.
//
// The span starts as "METHOD /path". When the request was routed by chi the
// span is renamed to the route pattern once the handler returns, because chi
// only resolves the pattern while routing.
//
// Place it after RequestID and before Logging so the request log carries the
// trace ID.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			rctx := chi.RouteContext(r.Context())
			if rctx == nil {
				return
			}
			if pattern := rctx.RoutePattern(); pattern != "" {
				span := trace.SpanFromContext(r.Context())
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		})

		return otelhttp.NewHandler(routed, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// GetTraceID returns the active trace ID, or "" outside a sampled span.
func GetTraceID(r *http.Request) string {
	spanCtx := trace.SpanContextFromContext(r.Context())
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}
