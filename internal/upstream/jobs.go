package upstream

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/onnwee/jobrec/internal/model"
)

// JobsClient reads the job catalog.
type JobsClient struct {
	c *client
}

// NewJobsClient creates a JobsClient.
func NewJobsClient(opts Options, metrics *Metrics, logger *slog.Logger) *JobsClient {
	return &JobsClient{c: newClient(ServiceJobs, opts, metrics, logger)}
}

// Jobs streams the whole catalog. The response array is decoded one element
// at a time so the first jobs are yielded before the body is fully read.
func (j *JobsClient) Jobs(ctx context.Context) iter.Seq2[model.Job, error] {
	return func(yield func(model.Job, error) bool) {
		body, err := j.c.getStream(ctx, "list", "/api/v1/jobs", map[string]string{
			"page": "0",
			"size": strconv.Itoa(math.MaxInt32),
		})
		if err != nil {
			yield(model.Job{}, err)
			return
		}
		defer body.Close()

		dec := json.NewDecoder(body)
		tok, err := dec.Token()
		if err != nil {
			yield(model.Job{}, fmt.Errorf("jobs list: read array: %w", err))
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			yield(model.Job{}, fmt.Errorf("jobs list: expected array, got %v", tok))
			return
		}

		for dec.More() {
			var job model.Job
			if err := dec.Decode(&job); err != nil {
				yield(model.Job{}, fmt.Errorf("jobs list: decode job: %w", err))
				return
			}
			if !yield(job, nil) {
				return
			}
		}
	}
}

// Job fetches a single job by id.
func (j *JobsClient) Job(ctx context.Context, id int64) (model.Job, error) {
	var job model.Job
	if err := j.c.getJSON(ctx, "get", "/api/v1/jobs/"+strconv.FormatInt(id, 10), nil, &job); err != nil {
		return model.Job{}, err
	}
	return job, nil
}
