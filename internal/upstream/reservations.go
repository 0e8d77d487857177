package upstream

import (
	"context"
	"log/slog"

	"github.com/onnwee/jobrec/internal/model"
)

// ReservationsClient lists job reservations.
type ReservationsClient struct {
	c *client
}

// NewReservationsClient creates a ReservationsClient.
func NewReservationsClient(opts Options, metrics *Metrics, logger *slog.Logger) *ReservationsClient {
	return &ReservationsClient{c: newClient(ServiceReservations, opts, metrics, logger)}
}

func (r *ReservationsClient) Reservations(ctx context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	if err := r.c.getJSON(ctx, "list", "/api/v1/reservations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
