package ranking

import (
	"log/slog"
	"math"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
)

// DistanceFunc computes the distance in kilometres between two valid points.
type DistanceFunc func(a, b geo.Coordinates) float64

// Input carries every signal needed to score one job for one user.
// Nil pointers and a nil Favorites set mean the signal is missing.
type Input struct {
	WorkerID        int64
	UserCoordinates *geo.Coordinates
	Preferences     *model.Preferences
	WorkerRating    *model.RatingStats
	JobRating       *model.RatingStats
	WorkerReports   *model.ReportStats
	JobReports      *model.ReportStats
	Job             model.Job
	Favorites       model.IDSet
}

// Engine turns signals into a job score. It holds no per-request state and is
// safe for concurrent use.
type Engine struct {
	weights  WeightSource
	defaults Defaults
	distance DistanceFunc
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithDistanceFunc replaces the haversine distance.
func WithDistanceFunc(fn DistanceFunc) Option {
	return func(e *Engine) { e.distance = fn }
}

// WithLogger sets the logger used for per-job score breakdowns.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an Engine. A nil weights source uses DefaultWeights.
func NewEngine(weights WeightSource, defaults Defaults, opts ...Option) *Engine {
	if weights == nil {
		weights = DefaultWeights()
	}
	e := &Engine{
		weights:  weights,
		defaults: defaults,
		distance: geo.Distance,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate scores a job.
//
// The base phase sums distance, experience, category, favorite and both
// rating components. Only when that sum is positive are the hourly rate and
// report penalties added. The result is rounded half-up to two decimals and
// may be negative.
func (e *Engine) Calculate(in Input) model.JobScore {
	w := e.weights.Bases()

	distance := e.distanceScore(w, in)
	experience := e.experienceScore(w, in)
	category := categoryScore(w, in)
	favorite := favoriteScore(w, in)
	workerRating := ratingScore(in.WorkerRating, w.WorkerRating)
	jobRating := ratingScore(in.JobRating, w.JobRating)

	total := distance + experience + category + favorite + workerRating + jobRating
	base := total

	var hourly, workerReports, jobReports float64
	if total > 0 {
		p := e.weights.Penalties()
		hourly = hourlyPenalty(p, in.Job)
		// Worker reports are weighed with the job report tiers and job
		// reports with the user report tiers.
		workerReports = reportPenalty(in.WorkerReports, model.SubjectWorker,
			p.JobReportsLow, p.JobReportsMedium, p.JobReportsHigh)
		jobReports = reportPenalty(in.JobReports, model.SubjectJob,
			p.UserReportsLow, p.UserReportsMedium, p.UserReportsHigh)
		total += hourly + workerReports + jobReports
	}

	score := Round2(total)

	e.logger.Debug("job scored",
		"job_id", in.Job.ID,
		"worker_id", in.WorkerID,
		"distance", distance,
		"experience", experience,
		"category", category,
		"favorite", favorite,
		"worker_rating", workerRating,
		"job_rating", jobRating,
		"base", base,
		"hourly_penalty", hourly,
		"worker_report_penalty", workerReports,
		"job_report_penalty", jobReports,
		"score", score,
	)

	return model.JobScore{
		JobID:    in.Job.ID,
		WorkerID: in.WorkerID,
		Score:    score,
	}
}

// Round2 rounds x half-up (towards positive infinity on ties) to two decimals.
func Round2(x float64) float64 {
	// The explicit conversion stops the compiler from fusing the multiply-add.
	return math.Floor(float64(x*100)+0.5) / 100
}

func (e *Engine) distanceScore(w BaseWeights, in Input) float64 {
	if in.UserCoordinates == nil || in.Preferences == nil || in.Job.Lat == nil || in.Job.Lon == nil {
		return 0
	}
	if !in.UserCoordinates.Valid() {
		return 0
	}

	radius := e.defaults.MaxDistanceKm
	if r := in.Preferences.PreferredRadiusKm; r != nil && *r > 0 {
		radius = *r
	}
	if radius <= 0 {
		return 0
	}

	d := e.distance(*in.UserCoordinates, geo.Coordinates{Lat: *in.Job.Lat, Lng: *in.Job.Lon})
	if d > radius {
		return 0
	}
	return math.Max(w.Distance*(1-d/radius), 0)
}

func (e *Engine) experienceScore(w BaseWeights, in Input) float64 {
	if in.Preferences == nil || in.Job.Experience == nil {
		return 0
	}

	minimum := e.defaults.MinExperience
	if p := in.Preferences.PreferredExperience; p != nil && *p > 0 {
		minimum = *p
	}
	if *in.Job.Experience < minimum {
		return 0
	}
	return w.ExperienceMatch
}

func categoryScore(w BaseWeights, in Input) float64 {
	if in.Preferences == nil || in.Preferences.WantedCategories == nil {
		return 0
	}
	if !in.Preferences.Wants(in.Job.Category) {
		return 0
	}
	return w.CategoryMatch
}

func favoriteScore(w BaseWeights, in Input) float64 {
	if !in.Favorites.Contains(in.WorkerID) {
		return 0
	}
	return w.Favorite
}

func ratingScore(stats *model.RatingStats, weight float64) float64 {
	if stats == nil || stats.Average == nil {
		return 0
	}
	return *stats.Average * (weight / 5)
}

func hourlyPenalty(p PenaltyWeights, job model.Job) float64 {
	if job.HourlyRate == nil {
		return 0
	}
	return p.HourlyRate * *job.HourlyRate
}

func reportPenalty(stats *model.ReportStats, want model.SubjectType, low, medium, high float64) float64 {
	if stats == nil || stats.Subject != want {
		return 0
	}
	return low*float64(stats.Low) + medium*float64(stats.Medium) + high*float64(stats.High)
}
