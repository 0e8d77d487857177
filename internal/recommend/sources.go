package recommend

import (
	"context"
	"iter"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
	"github.com/onnwee/jobrec/internal/ranking"
)

// JobCatalog streams every job once. Iteration stops at the first error.
type JobCatalog interface {
	Jobs(ctx context.Context) iter.Seq2[model.Job, error]
}

// UserDirectory resolves a user's address.
type UserDirectory interface {
	Profile(ctx context.Context, userID int64) (model.UserProfile, error)
}

// Geocoder turns an address into coordinates. An address that cannot be
// resolved yields geo.Unknown and no error.
type Geocoder interface {
	Coordinates(ctx context.Context, profile model.UserProfile) (geo.Coordinates, error)
}

// PreferenceStore loads a user's search preferences.
type PreferenceStore interface {
	Preferences(ctx context.Context, userID int64) (model.Preferences, error)
}

// FavoritesStore loads the workers a user has marked as favorite.
type FavoritesStore interface {
	FavoriteWorkerIDs(ctx context.Context, userID int64) (model.IDSet, error)
}

// BlocklistStore loads the workers a user has blocked.
type BlocklistStore interface {
	BlockedWorkerIDs(ctx context.Context, userID int64) (model.IDSet, error)
}

// RatingStore loads aggregate review ratings.
type RatingStore interface {
	RatingStats(ctx context.Context, subject model.SubjectType, id int64) (model.RatingStats, error)
}

// ReportStore loads abuse report counts.
type ReportStore interface {
	ReportStats(ctx context.Context, subject model.SubjectType, id int64) (model.ReportStats, error)
}

// Scorer computes the score of one job.
type Scorer interface {
	Calculate(in ranking.Input) model.JobScore
}
