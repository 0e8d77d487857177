// Package upstream implements HTTP clients for the services that hold the
// recommendation signals: jobs, users, geocoding, reviews, reports and
// reservations.
//
// Every client shares the same call path. A token bucket limits outbound
// request rate, a circuit breaker stops calling a service that keeps failing,
// resty retries transient failures and otelhttp propagates the trace. Each
// call is recorded in the upstream_requests_total counter.
//
// The clients satisfy the consumer interfaces declared in
// internal/recommend and internal/featured.
package upstream
