package route

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ridehail/internal/geo"
)

// OSRMProvider performs route lookups against an OSRM HTTP server.
type OSRMProvider struct {
	endpoint string
	client   *http.Client
}

// NewOSRMProvider creates an OSRM provider. A zero timeout defaults to 2s.
func NewOSRMProvider(endpoint string, timeout time.Duration) *OSRMProvider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OSRMProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Route queries /route/v1/driving and decodes the overview geometry.
func (o *OSRMProvider) Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error) {
	// OSRM takes lon,lat pairs.
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full",
		o.endpoint, from.Lng, from.Lat, to.Lng, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRoutingUnavailable, resp.StatusCode)
	}

	var out struct {
		Code   string `json:"code"`
		Routes []struct {
			Geometry string `json:"geometry"`
		} `json:"routes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingUnavailable, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return nil, fmt.Errorf("%w: no route (code=%s)", ErrRoutingUnavailable, out.Code)
	}

	path, err := geo.DecodePolyline(out.Routes[0].Geometry)
	if err != nil {
		return nil, fmt.Errorf("%w: bad geometry: %v", ErrRoutingUnavailable, err)
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: degenerate geometry", ErrRoutingUnavailable)
	}
	return path, nil
}
