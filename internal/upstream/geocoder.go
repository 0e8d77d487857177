package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/onnwee/jobrec/internal/geo"
	"github.com/onnwee/jobrec/internal/model"
)

var errNoCoordinates = errors.New("result has no coordinates")

// GeocoderClient resolves addresses with a Nominatim compatible search API.
type GeocoderClient struct {
	c *client
}

// NewGeocoderClient creates a GeocoderClient.
func NewGeocoderClient(opts Options, metrics *Metrics, logger *slog.Logger) *GeocoderClient {
	return &GeocoderClient{c: newClient(ServiceGeocoder, opts, metrics, logger)}
}

// Coordinates returns the first search hit for the profile's address. An
// address with no hit yields geo.Unknown and no error.
func (g *GeocoderClient) Coordinates(ctx context.Context, p model.UserProfile) (geo.Coordinates, error) {
	query := SearchQuery(p)
	resp, err := g.c.execute(ctx, "search", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParams(map[string]string{
			"q":      query,
			"format": "jsonv2",
			"limit":  "1",
		}).Get("/search")
	})
	if err != nil {
		return geo.Unknown, err
	}

	body := resp.String()
	if !gjson.Valid(body) {
		return geo.Unknown, errors.New("geocoder search: invalid JSON response")
	}
	first := gjson.Get(body, "0")
	if !first.Exists() {
		g.c.logger.InfoContext(ctx, "no coordinates found", "user_id", p.ID)
		return geo.Unknown, nil
	}

	// Nominatim encodes lat and lon as strings.
	lat, lon := first.Get("lat"), first.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return geo.Unknown, fmt.Errorf("geocoder search: %w", errNoCoordinates)
	}
	return geo.Coordinates{Lat: lat.Float(), Lng: lon.Float()}, nil
}

// SearchQuery joins the address fields into one free-form query, collapsing
// runs of whitespace.
func SearchQuery(p model.UserProfile) string {
	return strings.Join(strings.Fields(strings.Join([]string{p.Address, p.City, p.ZipCode, p.Country}, " ")), " ")
}
