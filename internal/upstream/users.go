package upstream

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/onnwee/jobrec/internal/model"
)

// UsersClient reads profiles, preferences, favorites and blocks from the user service.
type UsersClient struct {
	c *client
}

// NewUsersClient creates a UsersClient.
func NewUsersClient(opts Options, metrics *Metrics, logger *slog.Logger) *UsersClient {
	return &UsersClient{c: newClient(ServiceUsers, opts, metrics, logger)}
}

func (u *UsersClient) Profile(ctx context.Context, userID int64) (model.UserProfile, error) {
	var p model.UserProfile
	if err := u.c.getJSON(ctx, "profile", "/api/v1/users/"+id(userID), nil, &p); err != nil {
		return model.UserProfile{}, err
	}
	return p, nil
}

func (u *UsersClient) Preferences(ctx context.Context, userID int64) (model.Preferences, error) {
	var p model.Preferences
	if err := u.c.getJSON(ctx, "preferences", "/api/v1/preferences/"+id(userID), nil, &p); err != nil {
		return model.Preferences{}, err
	}
	if p.UserID == 0 {
		p.UserID = userID
	}
	return p, nil
}

func (u *UsersClient) FavoriteWorkerIDs(ctx context.Context, userID int64) (model.IDSet, error) {
	var ids []int64
	err := u.c.getJSON(ctx, "favorites", "/api/v1/favorites", map[string]string{"userId": id(userID)}, &ids)
	if err != nil {
		return nil, err
	}
	return model.NewIDSet(ids...), nil
}

func (u *UsersClient) BlockedWorkerIDs(ctx context.Context, userID int64) (model.IDSet, error) {
	var ids []int64
	if err := u.c.getJSON(ctx, "blocks", "/api/v1/blocks/"+id(userID), nil, &ids); err != nil {
		return nil, err
	}
	return model.NewIDSet(ids...), nil
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}
