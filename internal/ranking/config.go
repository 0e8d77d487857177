package ranking

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-json"
)

// BaseWeights are the positive contributions summed in the first scoring phase.
type BaseWeights struct {
	Distance        float64 `json:"distance"`         // Full points at 0 km, falling linearly to 0 at the radius
	ExperienceMatch float64 `json:"experience_match"` // Job experience meets the preferred minimum
	CategoryMatch   float64 `json:"category_match"`   // Job category is a wanted category
	Favorite        float64 `json:"favorite"`         // Worker is one of the user's favorites
	WorkerRating    float64 `json:"worker_rating"`    // Scaled by average worker rating / 5
	JobRating       float64 `json:"job_rating"`       // Scaled by average job rating / 5
}

// PenaltyWeights are applied only when the base score is positive.
// They are expected to be negative.
type PenaltyWeights struct {
	HourlyRate        float64 `json:"hourly_rate"`
	UserReportsLow    float64 `json:"user_reports_low"`
	UserReportsMedium float64 `json:"user_reports_medium"`
	UserReportsHigh   float64 `json:"user_reports_high"`
	JobReportsLow     float64 `json:"job_reports_low"`
	JobReportsMedium  float64 `json:"job_reports_medium"`
	JobReportsHigh    float64 `json:"job_reports_high"`
}

// Weights holds all scoring weight configurations.
type Weights struct {
	Base    BaseWeights    `json:"base"`
	Penalty PenaltyWeights `json:"penalty"`
}

// WeightSource supplies weights to the engine. Penalties is only consulted
// when a job earns a positive base score.
type WeightSource interface {
	Bases() BaseWeights
	Penalties() PenaltyWeights
}

// Bases implements WeightSource.
func (w *Weights) Bases() BaseWeights { return w.Base }

// Penalties implements WeightSource.
func (w *Weights) Penalties() PenaltyWeights { return w.Penalty }

// Defaults fill in preferences the user has not set.
type Defaults struct {
	MaxDistanceKm float64
	MinExperience int
}

// DefaultDefaults returns the fallback preference values.
func DefaultDefaults() Defaults {
	return Defaults{MaxDistanceKm: 50, MinExperience: 1}
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"`
	Weights Weights `json:"weights"`
}

// DefaultWeights returns the default scoring weights.
//
// A favorite worker in a wanted category with matching experience close to
// the user scores roughly 38 before ratings. Ratings add up to 35 more.
// Each high severity report costs several points, so a heavily reported
// worker drops below well rated neighbours.
func DefaultWeights() *Weights {
	return &Weights{
		Base: BaseWeights{
			Distance:        5,
			ExperienceMatch: 8,
			CategoryMatch:   15,
			Favorite:        10,
			WorkerRating:    15,
			JobRating:       20,
		},
		Penalty: PenaltyWeights{
			HourlyRate:        -0.1,
			UserReportsLow:    -1,
			UserReportsMedium: -2,
			UserReportsHigh:   -5.5,
			JobReportsLow:     -2,
			JobReportsMedium:  -5,
			JobReportsHigh:    -7.5,
		},
	}
}

// LoadCalibration loads scoring weights from a JSON calibration file.
// On any error the default weights are returned together with the error.
// Partial files are merged over the defaults.
func LoadCalibration(filePath string) (*Weights, error) {
	if filePath == "" {
		return DefaultWeights(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultWeights(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultWeights()
	merged := MergeCalibration(defaults, &config.Weights)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override weights with base weights.
// Only non-zero values from the override are applied.
func MergeCalibration(base *Weights, override *Weights) *Weights {
	if base == nil {
		return DefaultWeights()
	}

	result := *base
	if override == nil {
		return &result
	}

	for _, f := range weightFields(&result) {
		if v := *f.pick(override); v != 0 {
			*f.ptr = v
		}
	}

	return &result
}

// weightField names one weight so that merge and override logging walk the
// same list.
type weightField struct {
	name string
	ptr  *float64
	pick func(*Weights) *float64
}

func weightFields(w *Weights) []weightField {
	return []weightField{
		{"base.distance", &w.Base.Distance, func(o *Weights) *float64 { return &o.Base.Distance }},
		{"base.experience_match", &w.Base.ExperienceMatch, func(o *Weights) *float64 { return &o.Base.ExperienceMatch }},
		{"base.category_match", &w.Base.CategoryMatch, func(o *Weights) *float64 { return &o.Base.CategoryMatch }},
		{"base.favorite", &w.Base.Favorite, func(o *Weights) *float64 { return &o.Base.Favorite }},
		{"base.worker_rating", &w.Base.WorkerRating, func(o *Weights) *float64 { return &o.Base.WorkerRating }},
		{"base.job_rating", &w.Base.JobRating, func(o *Weights) *float64 { return &o.Base.JobRating }},
		{"penalty.hourly_rate", &w.Penalty.HourlyRate, func(o *Weights) *float64 { return &o.Penalty.HourlyRate }},
		{"penalty.user_reports_low", &w.Penalty.UserReportsLow, func(o *Weights) *float64 { return &o.Penalty.UserReportsLow }},
		{"penalty.user_reports_medium", &w.Penalty.UserReportsMedium, func(o *Weights) *float64 { return &o.Penalty.UserReportsMedium }},
		{"penalty.user_reports_high", &w.Penalty.UserReportsHigh, func(o *Weights) *float64 { return &o.Penalty.UserReportsHigh }},
		{"penalty.job_reports_low", &w.Penalty.JobReportsLow, func(o *Weights) *float64 { return &o.Penalty.JobReportsLow }},
		{"penalty.job_reports_medium", &w.Penalty.JobReportsMedium, func(o *Weights) *float64 { return &o.Penalty.JobReportsMedium }},
		{"penalty.job_reports_high", &w.Penalty.JobReportsHigh, func(o *Weights) *float64 { return &o.Penalty.JobReportsHigh }},
	}
}

// logCalibrationOverrides logs which weights were overridden from defaults.
func logCalibrationOverrides(defaults *Weights, loaded *Weights) {
	var overrides []string

	for _, f := range weightFields(loaded) {
		if def := *f.pick(defaults); *f.ptr != def {
			overrides = append(overrides, fmt.Sprintf("%s: %.2f -> %.2f", f.name, def, *f.ptr))
		}
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
