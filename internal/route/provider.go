package route

import (
	"context"
	"errors"

	"ridehail/internal/geo"
)

// ErrRoutingUnavailable is returned by providers on any failure: non-2xx,
// timeout, malformed payload, empty result. The planner recovers from it
// locally; it never reaches callers.
var ErrRoutingUnavailable = errors.New("routing provider unavailable")

// Provider produces a routed point sequence between two positions.
type Provider interface {
	Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, from, to geo.Point) ([]geo.Point, error)

func (f ProviderFunc) Route(ctx context.Context, from, to geo.Point) ([]geo.Point, error) {
	return f(ctx, from, to)
}
