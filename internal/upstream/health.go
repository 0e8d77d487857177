package upstream

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is reported by HealthCheck while a service's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// healthCheck reports whether the breaker currently admits calls. It never
// contacts the service.
func (c *client) healthCheck() error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%s: %w", c.service, ErrCircuitOpen)
	}
	return nil
}

// HealthCheck reports ErrCircuitOpen while the jobs circuit is open.
func (j *JobsClient) HealthCheck(context.Context) error { return j.c.healthCheck() }

// HealthCheck reports ErrCircuitOpen while the users circuit is open.
func (u *UsersClient) HealthCheck(context.Context) error { return u.c.healthCheck() }

// HealthCheck reports ErrCircuitOpen while the geocoder circuit is open.
func (g *GeocoderClient) HealthCheck(context.Context) error { return g.c.healthCheck() }

// HealthCheck reports ErrCircuitOpen while the reviews circuit is open.
func (r *ReviewsClient) HealthCheck(context.Context) error { return r.c.healthCheck() }

// HealthCheck reports ErrCircuitOpen while the reports circuit is open.
func (r *ReportsClient) HealthCheck(context.Context) error { return r.c.healthCheck() }

// HealthCheck reports ErrCircuitOpen while the reservations circuit is open.
func (r *ReservationsClient) HealthCheck(context.Context) error { return r.c.healthCheck() }
