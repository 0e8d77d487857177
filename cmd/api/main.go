// Package main is the entry point for the job recommendation API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/jobrec/internal/api"
	"github.com/onnwee/jobrec/internal/cache"
	"github.com/onnwee/jobrec/internal/config"
	"github.com/onnwee/jobrec/internal/featured"
	"github.com/onnwee/jobrec/internal/health"
	"github.com/onnwee/jobrec/internal/jobs"
	"github.com/onnwee/jobrec/internal/middleware"
	"github.com/onnwee/jobrec/internal/model"
	"github.com/onnwee/jobrec/internal/ranking"
	"github.com/onnwee/jobrec/internal/recommend"
	"github.com/onnwee/jobrec/internal/tracing"
	"github.com/onnwee/jobrec/internal/upstream"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	serviceName     = "jobrec"
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run loads configuration, serves HTTP until ctx is done and then shuts down
// gracefully.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	envFile := fs.String("env-file", ".env", "path to a .env file (ignored if missing)")
	fs.Usage = func() {
		fmt.Fprintln(stdout, "Job Recommendation API Server")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Usage: api [options]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	envErr := godotenv.Load(*envFile)

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	logger := middleware.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn("failed to load env file", "path", *envFile, "error", envErr)
	}
	logger.Info("configuration loaded", "version", version, "config", cfg.LogSummary())

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if a.refresher != nil {
		a.refresher.Start(ctx)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		_ = a.close(context.Background())
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		logger.Error("server forced to shutdown", "error", shutdownErr)
	}
	if err := a.close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", "error", err)
	}

	logger.Info("server stopped")
	return shutdownErr
}

// app holds the wired service and the resources that need closing.
type app struct {
	handler   http.Handler
	registry  *prometheus.Registry
	refresher *jobs.Refresher
	redis     *redis.Client
	tracer    *tracing.Provider
}

type metricSet interface {
	Register(prometheus.Registerer) error
}

// newApp wires every component from cfg.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	tracer, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.Tracing.Enabled,
		Environment:    cfg.Server.Env,
		ExporterType:   cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		InsecureMode:   cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	upstreamMetrics := upstream.NewMetrics()
	recommendMetrics := recommend.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, m := range []metricSet{upstreamMetrics, recommendMetrics, httpMetrics, jobMetrics} {
		if err := m.Register(registry); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	u := cfg.Upstream
	catalog := upstream.NewJobsClient(upstreamOptions(u, u.JobsURL, u.JobsAPIKey), upstreamMetrics, logger)
	users := upstream.NewUsersClient(upstreamOptions(u, u.UsersURL, u.UsersAPIKey), upstreamMetrics, logger)
	geocoder := upstream.NewGeocoderClient(upstreamOptions(u, u.GeocoderURL, ""), upstreamMetrics, logger)
	reviews := upstream.NewReviewsClient(upstreamOptions(u, u.ReviewsURL, u.ReviewsAPIKey), upstreamMetrics, logger)
	reports := upstream.NewReportsClient(upstreamOptions(u, u.ReportsURL, u.ReportsAPIKey), upstreamMetrics, logger)
	reservations := upstream.NewReservationsClient(upstreamOptions(u, u.ReservationsURL, u.ReservationsAPIKey), upstreamMetrics, logger)

	weights, err := ranking.LoadCalibration(cfg.Ranking.CalibrationFile)
	if err != nil {
		logger.Warn("using default ranking weights", "error", err)
	}
	defaults := ranking.Defaults{
		MaxDistanceKm: cfg.Ranking.MaxDistanceKm,
		MinExperience: cfg.Ranking.MinExperience,
	}
	engine := ranking.NewEngine(weights, defaults, ranking.WithLogger(logger))

	recommender := recommend.NewService(recommend.Sources{
		Catalog:     catalog,
		Users:       users,
		Geocoder:    geocoder,
		Preferences: users,
		Favorites:   users,
		Blocklist:   users,
		Ratings:     reviews,
		Reports:     reports,
	}, engine, recommend.Config{
		MaxConcurrentJobs: cfg.Recommend.MaxConcurrentJobs,
		ScoringWorkers:    cfg.Recommend.ScoringWorkers,
		SignalTimeout:     cfg.Recommend.SignalTimeout,
		Defaults:          defaults,
	}, recommendMetrics, logger)

	featuredJobs := featured.NewService(
		reservations, catalog, reviews,
		cache.New(rdb, cache.DefaultPrefix, logger),
		featured.Config{CacheTTL: cfg.Featured.CacheTTL},
		logger,
	)

	var refresher *jobs.Refresher
	if cfg.Featured.RefreshInterval > 0 {
		refresher = jobs.NewRefresher(jobs.RefresherConfig{
			Interval:   cfg.Featured.RefreshInterval,
			Categories: model.Categories,
			Logger:     logger,
			Metrics:    jobMetrics,
		}, featuredJobs)
	}

	checks := []health.Check{{Name: "redis", Checker: health.NewRedisChecker(rdb), Critical: true}}
	for name, c := range map[string]health.Checker{
		upstream.ServiceJobs:         catalog,
		upstream.ServiceUsers:        users,
		upstream.ServiceGeocoder:     geocoder,
		upstream.ServiceReviews:      reviews,
		upstream.ServiceReports:      reports,
		upstream.ServiceReservations: reservations,
	} {
		checks = append(checks, health.Check{Name: "upstream." + name, Checker: c})
	}

	handler := api.NewRouter(api.RouterConfig{
		ServiceName: serviceName,
		Logger:      logger,
		Metrics:     httpMetrics,
		Gatherer:    registry,
		RateLimit:   middleware.PerMinute(cfg.Server.RateLimitPerMinute),
	},
		api.NewRecommendationHandlers(recommender, featuredJobs, api.RecommendationHandlersConfig{
			DefaultLimit: cfg.Recommend.DefaultLimit,
			MaxLimit:     cfg.Recommend.MaxLimit,
			Logger:       logger,
		}),
		api.NewHealthHandlers(api.HealthHandlersConfig{Checks: checks, Logger: logger}),
	)

	return &app{
		handler:   handler,
		registry:  registry,
		refresher: refresher,
		redis:     rdb,
		tracer:    tracer,
	}, nil
}

// close stops background work, flushes traces and closes the Redis pool.
func (a *app) close(ctx context.Context) error {
	if a.refresher != nil {
		a.refresher.Stop()
	}
	return errors.Join(a.tracer.Shutdown(ctx), a.redis.Close())
}

// upstreamOptions builds the client options of one upstream service.
func upstreamOptions(u config.UpstreamConfig, baseURL, apiKey string) upstream.Options {
	failures := u.BreakerFailures
	if failures < 0 {
		failures = 0
	}
	return upstream.Options{
		BaseURL:         baseURL,
		APIKey:          apiKey,
		Timeout:         u.Timeout,
		RetryCount:      u.RetryCount,
		RatePerSecond:   u.RatePerSecond,
		Burst:           u.Burst,
		BreakerFailures: uint32(failures),
		BreakerTimeout:  u.BreakerTimeout,
	}
}
