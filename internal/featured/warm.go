package featured

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/jobrec/internal/recommend"
)

// Warm recomputes the most reserved job and the top rated job of every
// category and overwrites their cache entries. Categories with nothing to
// feature are skipped. Failures are joined so one bad category does not stop
// the others.
func (s *Service) Warm(ctx context.Context, categories []string) error {
	var errs []error

	if job, err := s.loadMostReserved(ctx); err == nil {
		errs = append(errs, s.cache.Set(ctx, KeyMostReserved, job, s.ttl))
	} else if !errors.Is(err, recommend.ErrNotFound) {
		errs = append(errs, fmt.Errorf("most reserved: %w", err))
	}

	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		job, err := s.loadTopRated(ctx, category)
		if errors.Is(err, recommend.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("top rated %s: %w", category, err))
			continue
		}
		errs = append(errs, s.cache.Set(ctx, keyTopRatedPrefix+category, job, s.ttl))
	}

	return errors.Join(errs...)
}
