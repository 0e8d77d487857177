// Package featured picks a single job to highlight: the job with the most
// approved reservations, or the best reviewed active job in a category.
// Results are cached in Redis.
package featured

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/jobrec/internal/cache"
	"github.com/onnwee/jobrec/internal/model"
	"github.com/onnwee/jobrec/internal/recommend"
	"github.com/onnwee/jobrec/internal/tracing"
)

// Errors returned when there is nothing to feature. All match recommend.ErrNotFound.
var (
	ErrNoReservations = fmt.Errorf("%w: no reservations", recommend.ErrNotFound)
	ErrJobNotFound    = fmt.Errorf("%w: no matching job", recommend.ErrNotFound)
	ErrNoReviews      = fmt.Errorf("%w: no reviewed job", recommend.ErrNotFound)
)

// Cache keys.
const (
	KeyMostReserved   = "featured:most-reserved"
	keyTopRatedPrefix = "featured:top-rated:"
)

// DefaultCacheTTL is used when Config.CacheTTL is zero.
const DefaultCacheTTL = 10 * time.Minute

const reviewConcurrency = 8

// ReservationSource lists reservations.
type ReservationSource interface {
	Reservations(ctx context.Context) ([]model.Reservation, error)
}

// JobSource reads jobs.
type JobSource interface {
	Jobs(ctx context.Context) iter.Seq2[model.Job, error]
	Job(ctx context.Context, id int64) (model.Job, error)
}

// ReviewSource lists the reviews of a job.
type ReviewSource interface {
	JobReviews(ctx context.Context, jobID int64) ([]model.Review, error)
}

// Config tunes the Service.
type Config struct {
	CacheTTL time.Duration
}

// Service selects featured jobs.
type Service struct {
	reservations ReservationSource
	jobs         JobSource
	reviews      ReviewSource
	cache        *cache.Cache
	ttl          time.Duration
	logger       *slog.Logger
}

// NewService creates a Service. A nil cache disables caching.
func NewService(reservations ReservationSource, jobs JobSource, reviews ReviewSource, c *cache.Cache, cfg Config, logger *slog.Logger) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		reservations: reservations,
		jobs:         jobs,
		reviews:      reviews,
		cache:        c,
		ttl:          cfg.CacheTTL,
		logger:       logger,
	}
}

// MostReserved returns the job with the most approved reservations. Ties go
// to the lowest job id.
func (s *Service) MostReserved(ctx context.Context) (job model.Job, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "featured.most_reserved")
	defer func() { endSpan(err) }()

	return cache.GetOrLoad(ctx, s.cache, KeyMostReserved, s.ttl, s.loadMostReserved)
}

func (s *Service) loadMostReserved(ctx context.Context) (model.Job, error) {
	reservations, err := s.reservations.Reservations(ctx)
	if err != nil {
		return model.Job{}, fmt.Errorf("%w: reservations: %w", recommend.ErrUnavailable, err)
	}
	if len(reservations) == 0 {
		return model.Job{}, ErrNoReservations
	}

	jobID, count, ok := mostApproved(reservations)
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	s.logger.InfoContext(ctx, "most reserved job selected", "job_id", jobID, "approved", count)

	job, err := s.jobs.Job(ctx, jobID)
	if err != nil {
		return model.Job{}, fmt.Errorf("%w: job %d: %w", recommend.ErrUnavailable, jobID, err)
	}
	return job, nil
}

// mostApproved counts approved reservations per job and returns the winner.
func mostApproved(reservations []model.Reservation) (jobID int64, count int, ok bool) {
	counts := make(map[int64]int)
	for _, r := range reservations {
		if r.Status == model.ReservationApproved {
			counts[r.JobID]++
		}
	}
	for id, n := range counts {
		if !ok || n > count || (n == count && id < jobID) {
			jobID, count, ok = id, n, true
		}
	}
	return jobID, count, ok
}

// TopRated returns the active job in category with the highest average
// review rating. Jobs without reviews are skipped. Ties go to the job listed
// first in the catalog.
func (s *Service) TopRated(ctx context.Context, category string) (job model.Job, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "featured.top_rated")
	defer func() { endSpan(err) }()

	return cache.GetOrLoad(ctx, s.cache, keyTopRatedPrefix+category, s.ttl, func(ctx context.Context) (model.Job, error) {
		return s.loadTopRated(ctx, category)
	})
}

func (s *Service) loadTopRated(ctx context.Context, category string) (model.Job, error) {
	var (
		candidates []model.Job
		total      int
	)
	for job, err := range s.jobs.Jobs(ctx) {
		if err != nil {
			return model.Job{}, fmt.Errorf("%w: job catalog: %w", recommend.ErrUnavailable, err)
		}
		total++
		if job.Active() && job.Category == category {
			candidates = append(candidates, job)
		}
	}
	if total == 0 {
		return model.Job{}, ErrJobNotFound
	}

	averages := make([]float64, len(candidates))
	reviewed := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reviewConcurrency)
	for i, job := range candidates {
		g.Go(func() error {
			reviews, err := s.reviews.JobReviews(gctx, job.ID)
			if err != nil {
				return fmt.Errorf("%w: reviews for job %d: %w", recommend.ErrUnavailable, job.ID, err)
			}
			averages[i], reviewed[i] = averageRating(reviews)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Job{}, err
	}

	best := -1
	for i := range candidates {
		if reviewed[i] && (best < 0 || averages[i] > averages[best]) {
			best = i
		}
	}
	if best < 0 {
		return model.Job{}, ErrNoReviews
	}
	s.logger.InfoContext(ctx, "top rated job selected",
		"job_id", candidates[best].ID,
		"category", category,
		"average_rating", averages[best],
	)
	return candidates[best], nil
}

func averageRating(reviews []model.Review) (float64, bool) {
	if len(reviews) == 0 {
		return 0, false
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews)), true
}
