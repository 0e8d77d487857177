package recommend

import (
	"errors"
	"fmt"

	"github.com/onnwee/jobrec/internal/model"
)

// Sentinel errors returned by Recommend. Callers should match them with errors.Is.
var (
	// ErrUnavailable means a required upstream (job catalog or user profile) failed.
	ErrUnavailable = errors.New("required upstream unavailable")

	// ErrInconsistent means an upstream returned a statistic tagged for the wrong kind of entity.
	ErrInconsistent = errors.New("upstream returned inconsistent data")

	// ErrInvalidLimit means the requested result size was not positive.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrNotFound means there was nothing to recommend. Only the single-job
	// variants return it; Recommend returns an empty list instead.
	ErrNotFound = errors.New("no recommendation found")
)

// TagMismatchError reports a rating or report statistic that does not
// describe the entity it was requested for, either by subject tag or by id.
type TagMismatchError struct {
	Signal    string
	SubjectID int64
	Want      model.SubjectType
	Got       model.SubjectType
	// GotID is the id the statistic carried.
	GotID int64
}

func (e *TagMismatchError) Error() string {
	if e.GotID != e.SubjectID {
		return fmt.Sprintf("%s for %d carries id %d", e.Signal, e.SubjectID, e.GotID)
	}
	return fmt.Sprintf("%s for %d tagged %q, want %q", e.Signal, e.SubjectID, e.Got, e.Want)
}

// Unwrap lets errors.Is(err, ErrInconsistent) match.
func (e *TagMismatchError) Unwrap() error {
	return ErrInconsistent
}
