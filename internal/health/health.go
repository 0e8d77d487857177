package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Check results.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDegraded = "degraded"
)

// DefaultTimeout bounds a whole readiness run.
const DefaultTimeout = 5 * time.Second

// Checker is implemented by anything that can report its own health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named dependency. A failing critical check makes the service
// unready; a failing non-critical one is reported as degraded.
type Check struct {
	Name     string
	Checker  Checker
	Critical bool
}

// Report is the outcome of a readiness run.
type Report struct {
	Ready  bool
	Checks map[string]string
}

// Run executes every check concurrently under timeout and collects the results.
func Run(ctx context.Context, checks []Check, timeout time.Duration, logger *slog.Logger) Report {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := Report{Ready: true, Checks: make(map[string]string, len(checks))}
	var mu sync.Mutex

	var g errgroup.Group
	for _, c := range checks {
		g.Go(func() error {
			err := c.Checker.HealthCheck(ctx)
			status := StatusOK
			if err != nil {
				status = StatusDegraded
				if c.Critical {
					status = StatusError
				}
				logger.WarnContext(ctx, "health check failed", "check", c.Name, "critical", c.Critical, "error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[c.Name] = status
			if status == StatusError {
				report.Ready = false
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}
