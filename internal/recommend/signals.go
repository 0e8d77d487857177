package recommend

import (
	"context"
	"fmt"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
)

// Signal names used in logs and the fallback metric.
const (
	SignalPreferences   = "preferences"
	SignalFavorites     = "favorites"
	SignalBlocklist     = "blocklist"
	SignalGeocoder      = "geocoder"
	SignalWorkerRating  = "worker_rating"
	SignalJobRating     = "job_rating"
	SignalWorkerReports = "worker_reports"
	SignalJobReports    = "job_reports"
)

// userSignals are fetched at most once per request and shared by every job.
type userSignals struct {
	profile     *lazy[model.UserProfile]
	coordinates *lazy[geo.Coordinates]
	preferences *lazy[model.Preferences]
	favorites   *lazy[model.IDSet]
	blocked     *lazy[model.IDSet]
}

func (s *Service) newUserSignals(ctx context.Context, userID int64) *userSignals {
	u := &userSignals{}
	u.profile = newLazy(ctx, func(ctx context.Context) (model.UserProfile, error) {
		return s.fetchProfile(ctx, userID)
	})
	u.coordinates = newLazy(ctx, func(ctx context.Context) (geo.Coordinates, error) {
		p, err := u.profile.get(ctx)
		if err != nil {
			return geo.Unknown, err
		}
		return s.fetchCoordinates(ctx, p), nil
	})
	u.preferences = newLazy(ctx, func(ctx context.Context) (model.Preferences, error) {
		return s.fetchPreferences(ctx, userID), nil
	})
	u.favorites = newLazy(ctx, func(ctx context.Context) (model.IDSet, error) {
		return s.fetchFavorites(ctx, userID), nil
	})
	u.blocked = newLazy(ctx, func(ctx context.Context) (model.IDSet, error) {
		return s.fetchBlocked(ctx, userID), nil
	})
	return u
}

// callContext bounds a single upstream call.
func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.SignalTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.SignalTimeout)
}

// degraded records that signal was replaced by its default. Failures caused
// by the request itself being cancelled are not counted.
func (s *Service) degraded(ctx context.Context, signal string, err error, attrs ...any) {
	if ctx.Err() != nil {
		return
	}
	s.metrics.IncSignalFallback(signal)
	s.logger.WarnContext(ctx, "signal unavailable, using default",
		append([]any{"signal", signal, "error", err}, attrs...)...)
}

func (s *Service) fetchProfile(ctx context.Context, userID int64) (model.UserProfile, error) {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	p, err := s.users.Profile(cctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return model.UserProfile{}, ctx.Err()
		}
		return model.UserProfile{}, fmt.Errorf("%w: user profile %d: %w", ErrUnavailable, userID, err)
	}
	return p, nil
}

func (s *Service) fetchCoordinates(ctx context.Context, p model.UserProfile) geo.Coordinates {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	c, err := s.geocoder.Coordinates(cctx, p)
	if err != nil {
		s.degraded(ctx, SignalGeocoder, err, "user_id", p.ID)
		return geo.Unknown
	}
	s.logger.DebugContext(ctx, "user located", "user_id", p.ID, "geohash", c.Geohash(geo.LogPrecision))
	return c
}

func (s *Service) fetchPreferences(ctx context.Context, userID int64) model.Preferences {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	p, err := s.preferences.Preferences(cctx, userID)
	if err != nil {
		s.degraded(ctx, SignalPreferences, err, "user_id", userID)
		return model.DefaultPreferences(userID, s.cfg.Defaults.MaxDistanceKm, s.cfg.Defaults.MinExperience)
	}
	return p
}

func (s *Service) fetchFavorites(ctx context.Context, userID int64) model.IDSet {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	ids, err := s.favorites.FavoriteWorkerIDs(cctx, userID)
	if err != nil {
		s.degraded(ctx, SignalFavorites, err, "user_id", userID)
		return model.NewIDSet()
	}
	return ids
}

// fetchBlocked fails open: when the blocklist cannot be loaded no worker is hidden.
func (s *Service) fetchBlocked(ctx context.Context, userID int64) model.IDSet {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	ids, err := s.blocklist.BlockedWorkerIDs(cctx, userID)
	if err != nil {
		s.degraded(ctx, SignalBlocklist, err, "user_id", userID)
		return model.NewIDSet()
	}
	return ids
}

func (s *Service) fetchRating(ctx context.Context, subject model.SubjectType, id int64) model.RatingStats {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	r, err := s.ratings.RatingStats(cctx, subject, id)
	if err != nil {
		s.degraded(ctx, ratingSignal(subject), err, "subject_id", id)
		return model.DefaultRatingStats(subject, id)
	}
	return r
}

func (s *Service) fetchReports(ctx context.Context, subject model.SubjectType, id int64) model.ReportStats {
	cctx, cancel := s.callContext(ctx)
	defer cancel()

	r, err := s.reports.ReportStats(cctx, subject, id)
	if err != nil {
		s.degraded(ctx, reportSignal(subject), err, "subject_id", id)
		return model.DefaultReportStats(subject, id)
	}
	return r
}

func ratingSignal(subject model.SubjectType) string {
	if subject == model.SubjectJob {
		return SignalJobRating
	}
	return SignalWorkerRating
}

func reportSignal(subject model.SubjectType) string {
	if subject == model.SubjectJob {
		return SignalJobReports
	}
	return SignalWorkerReports
}

// validateTags checks that every per-job statistic is tagged for the kind of
// entity it was requested for and carries the requested id.
func validateTags(job model.Job, workerRating, jobRating model.RatingStats, workerReports, jobReports model.ReportStats) error {
	checks := []struct {
		signal string
		id     int64
		want   model.SubjectType
		got    model.SubjectType
		gotID  int64
	}{
		{SignalWorkerRating, job.WorkerID, model.SubjectWorker, workerRating.Subject, workerRating.SubjectID},
		{SignalJobRating, job.ID, model.SubjectJob, jobRating.Subject, jobRating.SubjectID},
		{SignalWorkerReports, job.WorkerID, model.SubjectWorker, workerReports.Subject, workerReports.SubjectID},
		{SignalJobReports, job.ID, model.SubjectJob, jobReports.Subject, jobReports.SubjectID},
	}

	for _, c := range checks {
		if c.got != c.want || c.gotID != c.id {
			return &TagMismatchError{Signal: c.signal, SubjectID: c.id, Want: c.want, Got: c.got, GotID: c.gotID}
		}
	}
	return nil
}
