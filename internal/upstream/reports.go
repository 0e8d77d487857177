package upstream

import (
	"context"
	"log/slog"

	"github.com/onnwee/jobrec/internal/model"
)

// ReportsClient reads abuse report counts.
type ReportsClient struct {
	c *client
}

// NewReportsClient creates a ReportsClient.
func NewReportsClient(opts Options, metrics *Metrics, logger *slog.Logger) *ReportsClient {
	return &ReportsClient{c: newClient(ServiceReports, opts, metrics, logger)}
}

func (r *ReportsClient) ReportStats(ctx context.Context, subject model.SubjectType, subjectID int64) (model.ReportStats, error) {
	op, path := "user_info", "/api/v1/reports/user-info/"
	if subject == model.SubjectJob {
		op, path = "job_info", "/api/v1/reports/job-info/"
	}

	var stats model.ReportStats
	if err := r.c.getJSON(ctx, op, path+id(subjectID), nil, &stats); err != nil {
		return model.ReportStats{}, err
	}
	return stats, nil
}
