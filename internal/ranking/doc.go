// Package ranking scores job postings for a user from a fixed set of signals.
//
// Basic Usage:
//
//	// Load calibration (typically at startup)
//	weights, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		slog.Warn("using default weights", "error", err)
//	}
//
//	engine := ranking.NewEngine(weights, ranking.Defaults{MaxDistanceKm: 50, MinExperience: 1})
//	score := engine.Calculate(ranking.Input{
//		WorkerID:        job.WorkerID,
//		UserCoordinates: &coords,
//		Preferences:     &prefs,
//		WorkerRating:    &workerRating,
//		JobRating:       &jobRating,
//		WorkerReports:   &workerReports,
//		JobReports:      &jobReports,
//		Job:             job,
//		Favorites:       favorites,
//	})
//
// Scoring:
//
// The base score adds six components: distance (linear decay to the preferred
// radius), experience match, category match, favorite worker, worker rating
// and job rating. Penalties for hourly rate and abuse reports apply only to a
// positive base score. Scores are rounded half-up to two decimals.
//
// Calibration:
//
// Weights can be tuned at deploy time with a JSON calibration file loaded at
// startup. Values that are zero or absent in the file keep their defaults.
package ranking
