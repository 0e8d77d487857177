package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/onnwee/jobrec/internal/tracing"
)

// Service names used in metrics, spans and breaker names.
const (
	ServiceJobs         = "jobs"
	ServiceUsers        = "users"
	ServiceGeocoder     = "geocoder"
	ServiceReviews      = "reviews"
	ServiceReports      = "reports"
	ServiceReservations = "reservations"
)

// APIKeyHeader carries the per-service key on every request.
const APIKeyHeader = "X-API-KEY"

const userAgent = "jobrec/1.0"

// Default client settings.
const (
	DefaultTimeout         = 3 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// Options configures one upstream client.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
	// RatePerSecond limits outbound requests. Zero means unlimited.
	RatePerSecond float64
	Burst         int
	// BreakerFailures is the number of consecutive failures that opens the circuit.
	BreakerFailures uint32
	// BreakerTimeout is how long the circuit stays open before probing again.
	BreakerTimeout time.Duration
	// Transport replaces http.DefaultTransport under the tracing wrapper.
	Transport http.RoundTripper
}

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Service   string
	Operation string
	Code      int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Service, e.Operation, e.Code)
}

// IsNotFound reports whether err is a 404 from an upstream.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// client is the shared call path of every service client.
type client struct {
	service string
	http    *resty.Client
	// stream has no whole-exchange timeout; getStream bounds only the wait for headers.
	stream  *resty.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
}

func newClient(service string, opts Options, metrics *Metrics, logger *slog.Logger) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("upstream", service)

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &client{
		service: service,
		http:    newResty(opts, opts.Timeout),
		stream:  newResty(opts, 0),
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		metrics: metrics,
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*resty.Response](gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			metrics.SetCircuitState(name, to)
		},
	})
	metrics.SetCircuitState(service, gobreaker.StateClosed)
	return c
}

func newResty(opts Options, timeout time.Duration) *resty.Client {
	hc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetTransport(otelhttp.NewTransport(opts.Transport)).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500)
		}).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if opts.APIKey != "" {
		hc.SetHeader(APIKeyHeader, opts.APIKey)
	}
	return hc
}

// countsAsSuccess keeps caller cancellations and client errors from opening the circuit.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

// execute runs one request through the limiter and the breaker.
func (c *client) execute(ctx context.Context, operation string, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	return c.executeWith(ctx, c.http, operation, send)
}

func (c *client) executeWith(ctx context.Context, hc *resty.Client, operation string, send func(*resty.Request) (*resty.Response, error)) (resp *resty.Response, err error) {
	ctx, endSpan := tracing.StartUpstreamSpan(ctx, c.service, operation)
	start := time.Now()
	defer func() {
		endSpan(err)
		c.metrics.ObserveCall(c.service, resultOf(err), time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: rate limit: %w", c.service, operation, err)
	}

	resp, err = c.breaker.Execute(func() (*resty.Response, error) {
		r, err := send(hc.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if r.IsError() {
			if body := r.RawBody(); body != nil {
				_ = body.Close()
			}
			return nil, &StatusError{Service: c.service, Operation: operation, Code: r.StatusCode()}
		}
		return r, nil
	})
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			err = fmt.Errorf("%s %s: %w", c.service, operation, err)
		}
		c.logger.DebugContext(ctx, "upstream call failed", "operation", operation, "error", err)
		return nil, err
	}
	return resp, nil
}

// getJSON decodes the body of a GET request into out.
func (c *client) getJSON(ctx context.Context, operation, path string, query map[string]string, out any) error {
	resp, err := c.execute(ctx, operation, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(query).Get(path)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", c.service, operation, err)
	}
	return nil
}

// errHeaderTimeout is returned when a streamed response does not start in time.
var errHeaderTimeout = errors.New("timed out awaiting response headers")

// getStream returns the unread body of a GET request. The caller closes it.
// The client timeout bounds only the wait for the response headers, so a
// slow reader can take as long as it needs to consume the body.
func (c *client) getStream(ctx context.Context, operation, path string, query map[string]string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	headers := time.AfterFunc(c.timeout, func() { cancel(errHeaderTimeout) })
	resp, err := c.executeWith(ctx, c.stream, operation, func(r *resty.Request) (*resty.Response, error) {
		resp, err := r.SetDoNotParseResponse(true).SetQueryParams(query).Get(path)
		if err != nil && errors.Is(context.Cause(ctx), errHeaderTimeout) {
			return nil, errHeaderTimeout
		}
		return resp, err
	})
	if !headers.Stop() && err == nil {
		_ = resp.RawBody().Close()
		err = fmt.Errorf("%s %s: %w", c.service, operation, errHeaderTimeout)
	}
	if err != nil {
		cancel(nil)
		return nil, err
	}
	return &streamBody{ReadCloser: resp.RawBody(), cancel: func() { cancel(nil) }}, nil
}

// streamBody releases the request context once the body is closed.
type streamBody struct {
	io.ReadCloser
	cancel func()
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ResultRejected
	default:
		return ResultError
	}
}
