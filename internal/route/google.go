package route

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"ridehail/internal/geo"
)

// GoogleProvider performs route lookups against the Google Directions API.
type GoogleProvider struct {
	client *maps.Client
}

// NewGoogleProvider creates a Directions-backed provider with the given API key.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Route requests driving directions and decodes the overview polyline.
func (g *GoogleProvider) Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Lat, from.Lng),
		Destination: fmt.Sprintf("%f,%f", to.Lat, to.Lng),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no route found", ErrRoutingUnavailable)
	}

	path, err := geo.DecodePolyline(routes[0].OverviewPolyline.Points)
	if err != nil {
		return nil, fmt.Errorf("%w: bad overview polyline: %v", ErrRoutingUnavailable, err)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: degenerate overview polyline", ErrRoutingUnavailable)
	}
	return path, nil
}
