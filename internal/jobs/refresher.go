package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Default refresh settings.
const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultRefreshTimeout  = 30 * time.Second
)

// Warmer recomputes cached featured jobs.
type Warmer interface {
	Warm(ctx context.Context, categories []string) error
}

// RefresherConfig configures the Refresher.
type RefresherConfig struct {
	// Interval is the duration between refresh cycles.
	Interval time.Duration
	// Timeout bounds a single cycle.
	Timeout time.Duration
	// Categories are the job categories whose top rated job is kept warm.
	Categories []string
	Logger     *slog.Logger
	// Metrics may be nil.
	Metrics *Metrics
}

// Refresher periodically rebuilds the featured job cache so that requests
// rarely pay for a cold load.
type Refresher struct {
	config RefresherConfig
	warmer Warmer

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRefresher creates a Refresher. Call Start to begin refreshing.
func NewRefresher(config RefresherConfig, warmer Warmer) *Refresher {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Refresher{config: config, warmer: warmer}
}

// Start runs one refresh immediately and then one per interval until ctx is
// done or Stop is called. It returns immediately and is safe to call twice.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.run(ctx, r.stopCh, r.doneCh)
}

// Stop signals the refresher to stop and waits for the current cycle.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// IsRunning returns whether the refresher is running.
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.RefreshNow(ctx)
	for {
		select {
		case <-ctx.Done():
			r.config.Logger.Info("featured refresh stopping due to context cancellation")
			return
		case <-stopCh:
			r.config.Logger.Info("featured refresh stopping due to stop signal")
			return
		case <-ticker.C:
			r.RefreshNow(ctx)
		}
	}
}

// RefreshNow runs a single cycle and returns its error.
func (r *Refresher) RefreshNow(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, r.config.Timeout)
	defer cancel()

	start := time.Now()
	err := r.warmer.Warm(ctx, r.config.Categories)
	duration := time.Since(start)

	status := StatusSuccess
	if err != nil {
		status = StatusFailure
		errorType := ErrorTypeRefresh
		if errors.Is(err, context.DeadlineExceeded) {
			errorType = ErrorTypeTimeout
		}
		if r.config.Metrics != nil {
			r.config.Metrics.IncJobErrors(JobTypeFeaturedRefresh, errorType)
		}
		r.config.Logger.Warn("featured refresh failed",
			"error", err,
			"error_type", errorType,
			"duration_ms", duration.Milliseconds())
	} else {
		r.config.Logger.Debug("featured refresh completed",
			"categories", len(r.config.Categories),
			"duration_ms", duration.Milliseconds())
	}
	if r.config.Metrics != nil {
		r.config.Metrics.ObserveRun(JobTypeFeaturedRefresh, status, duration)
	}
	return err
}
