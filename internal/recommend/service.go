// Package recommend ranks job postings for a user by fanning out to the
// upstream services that hold each signal and scoring every eligible job.
package recommend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
	"github.com/onnwee/jobrec/internal/ranking"
	"github.com/onnwee/jobrec/internal/tracing"
)

// Default concurrency settings.
const (
	DefaultMaxConcurrentJobs = 32
	DefaultSignalTimeout     = 2 * time.Second
)

// Config tunes the coordinator.
type Config struct {
	// MaxConcurrentJobs bounds how many jobs gather signals at the same time.
	MaxConcurrentJobs int
	// ScoringWorkers bounds concurrent calls into the scorer. Defaults to GOMAXPROCS.
	ScoringWorkers int
	// SignalTimeout bounds every single upstream call. Zero disables it.
	SignalTimeout time.Duration
	// Defaults replace preferences when the preference store fails. The zero
	// value means ranking.DefaultDefaults.
	Defaults ranking.Defaults
}

// Sources groups the upstream collaborators.
type Sources struct {
	Catalog     JobCatalog
	Users       UserDirectory
	Geocoder    Geocoder
	Preferences PreferenceStore
	Favorites   FavoritesStore
	Blocklist   BlocklistStore
	Ratings     RatingStore
	Reports     ReportStore
}

// Service produces ranked job recommendations.
type Service struct {
	catalog     JobCatalog
	users       UserDirectory
	geocoder    Geocoder
	preferences PreferenceStore
	favorites   FavoritesStore
	blocklist   BlocklistStore
	ratings     RatingStore
	reports     ReportStore

	scorer  Scorer
	scoring *semaphore.Weighted
	cfg     Config
	metrics *Metrics
	logger  *slog.Logger
}

// NewService creates a Service. A nil metrics value creates unregistered
// metrics and a nil logger uses slog.Default.
func NewService(src Sources, scorer Scorer, cfg Config, metrics *Metrics, logger *slog.Logger) *Service {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if cfg.Defaults == (ranking.Defaults{}) {
		cfg.Defaults = ranking.DefaultDefaults()
	}
	if cfg.ScoringWorkers <= 0 {
		cfg.ScoringWorkers = runtime.GOMAXPROCS(0)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog:     src.Catalog,
		users:       src.Users,
		geocoder:    src.Geocoder,
		preferences: src.Preferences,
		favorites:   src.Favorites,
		blocklist:   src.Blocklist,
		ratings:     src.Ratings,
		reports:     src.Reports,
		scorer:      scorer,
		scoring:     semaphore.NewWeighted(int64(cfg.ScoringWorkers)),
		cfg:         cfg,
		metrics:     metrics,
		logger:      logger,
	}
}

// Recommend returns at most limit jobs for userID ordered by descending score.
//
// Inactive jobs and jobs posted by workers the user blocked are skipped. A
// failing job catalog or user profile lookup fails the whole call with
// ErrUnavailable, and a statistic tagged for the wrong kind of entity fails it
// with ErrInconsistent. Every other signal falls back to a default. No partial
// result is returned on error.
func (s *Service) Recommend(ctx context.Context, userID int64, limit int) (scores []model.JobScore, err error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "recommend.jobs")
	tracing.SetAttributes(ctx,
		attribute.Int64("user.id", userID),
		attribute.Int("limit", limit),
	)
	defer func() {
		endSpan(err)
		s.metrics.ObserveRequest(outcomeOf(err), time.Since(start))
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentJobs)

	user := s.newUserSignals(gctx, userID)

	results := make(chan model.JobScore)
	collected := make(chan []model.JobScore, 1)
	go func() {
		var all []model.JobScore
		for r := range results {
			all = append(all, r)
		}
		collected <- all
	}()

	dispatchErr := s.dispatch(gctx, g, user, results)
	if dispatchErr != nil {
		cancel()
	}
	waitErr := g.Wait()
	close(results)
	all := <-collected

	if err := firstError(waitErr, dispatchErr); err != nil {
		s.logger.ErrorContext(ctx, "recommendation failed", "user_id", userID, "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(all, func(a, b model.JobScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	if all == nil {
		all = []model.JobScore{}
	}

	s.logger.InfoContext(ctx, "recommendations generated",
		"user_id", userID,
		"returned", len(all),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return all, nil
}

// dispatch walks the catalog and starts one evaluation per eligible job.
func (s *Service) dispatch(ctx context.Context, g *errgroup.Group, user *userSignals, out chan<- model.JobScore) error {
	for job, err := range s.catalog.Jobs(ctx) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("%w: job catalog: %w", ErrUnavailable, err)
		}

		if !job.Active() {
			s.metrics.IncJobsFiltered(FilterInactive)
			continue
		}

		blocked, err := user.blocked.get(ctx)
		if err != nil {
			return err
		}
		if blocked.Contains(job.WorkerID) {
			s.metrics.IncJobsFiltered(FilterBlocked)
			continue
		}

		g.Go(func() error {
			return s.evaluate(ctx, job, user, out)
		})
	}
	return nil
}

// evaluate gathers the seven inputs for one job, validates them and scores it.
func (s *Service) evaluate(ctx context.Context, job model.Job, user *userSignals, out chan<- model.JobScore) (err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "recommend.evaluate_job")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx,
		attribute.Int64("job.id", job.ID),
		attribute.Int64("worker.id", job.WorkerID),
	)

	var (
		workerRating, jobRating   model.RatingStats
		workerReports, jobReports model.ReportStats
		coords                    geo.Coordinates
		prefs                     model.Preferences
		favorites                 model.IDSet
	)

	jg, jctx := errgroup.WithContext(ctx)
	jg.Go(func() error {
		workerRating = s.fetchRating(jctx, model.SubjectWorker, job.WorkerID)
		return nil
	})
	jg.Go(func() error {
		jobRating = s.fetchRating(jctx, model.SubjectJob, job.ID)
		return nil
	})
	jg.Go(func() error {
		workerReports = s.fetchReports(jctx, model.SubjectWorker, job.WorkerID)
		return nil
	})
	jg.Go(func() error {
		jobReports = s.fetchReports(jctx, model.SubjectJob, job.ID)
		return nil
	})
	jg.Go(func() (err error) {
		coords, err = user.coordinates.get(jctx)
		return err
	})
	jg.Go(func() (err error) {
		prefs, err = user.preferences.get(jctx)
		return err
	})
	jg.Go(func() (err error) {
		favorites, err = user.favorites.get(jctx)
		return err
	})
	if err := jg.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := validateTags(job, workerRating, jobRating, workerReports, jobReports); err != nil {
		s.logger.ErrorContext(ctx, "inconsistent upstream data", "job_id", job.ID, "error", err)
		return err
	}

	if err := s.scoring.Acquire(ctx, 1); err != nil {
		return err
	}
	score := s.scorer.Calculate(ranking.Input{
		WorkerID:        job.WorkerID,
		UserCoordinates: &coords,
		Preferences:     &prefs,
		WorkerRating:    &workerRating,
		JobRating:       &jobRating,
		WorkerReports:   &workerReports,
		JobReports:      &jobReports,
		Job:             job,
		Favorites:       favorites,
	})
	s.scoring.Release(1)
	s.metrics.IncJobsScored()

	select {
	case out <- score:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// firstError prefers a real failure over the cancellation it caused.
func firstError(errs ...error) error {
	var canceled error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if isContextErr(err) {
			if canceled == nil {
				canceled = err
			}
			continue
		}
		return err
	}
	return canceled
}

// isContextErr reports cancellation that is not already classified as an
// upstream failure. A profile lookup that timed out is ErrUnavailable.
func isContextErr(err error) bool {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInconsistent) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrInconsistent):
		return OutcomeInconsistent
	case isContextErr(err):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
