package upstream

import (
	"context"
	"log/slog"

	"github.com/onnwee/jobrec/internal/model"
)

// ReviewsClient reads aggregate ratings and single reviews.
type ReviewsClient struct {
	c *client
}

// NewReviewsClient creates a ReviewsClient.
func NewReviewsClient(opts Options, metrics *Metrics, logger *slog.Logger) *ReviewsClient {
	return &ReviewsClient{c: newClient(ServiceReviews, opts, metrics, logger)}
}

// RatingStats returns the aggregate rating of a worker or a job. The tag in
// the response is passed through unchanged.
func (r *ReviewsClient) RatingStats(ctx context.Context, subject model.SubjectType, subjectID int64) (model.RatingStats, error) {
	op, path := "user_rating", "/api/v1/reviews/user-rating/"
	if subject == model.SubjectJob {
		op, path = "job_rating", "/api/v1/reviews/job-rating/"
	}

	var stats model.RatingStats
	if err := r.c.getJSON(ctx, op, path+id(subjectID), nil, &stats); err != nil {
		return model.RatingStats{}, err
	}
	return stats, nil
}

// JobReviews lists every review of a job.
func (r *ReviewsClient) JobReviews(ctx context.Context, jobID int64) ([]model.Review, error) {
	var reviews []model.Review
	if err := r.c.getJSON(ctx, "job_reviews", "/api/v1/reviews/job/"+id(jobID), nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}
