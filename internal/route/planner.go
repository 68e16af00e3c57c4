package route

import (
	"context"
	"log/slog"
	"sync"

	"ridehail/internal/geo"
	"ridehail/internal/observability"
)

// fallbackSegments is the number of segments in a straight-line fallback
// route, producing fallbackSegments+1 evenly spaced points.
const fallbackSegments = 20

// StraightLine returns an evenly spaced interpolation between from and to.
// It is deterministic and never fails.
func StraightLine(from, to geo.Point) []geo.Point {
	path := make([]geo.Point, 0, fallbackSegments+1)
	for i := 0; i <= fallbackSegments; i++ {
		path = append(path, geo.Interpolate(from, to, float64(i)/fallbackSegments))
	}
	return path
}

// Planner wraps a Provider with the fallback guarantee: Plan always
// returns a usable path, never an error, so downstream consumers always
// have something to render. It also owns the re-fetch policy for the
// route's owning side.
type Planner struct {
	provider Provider
	refetchM float64
	log      *slog.Logger

	mu          sync.Mutex
	fetchOrigin geo.Point
	hasOrigin   bool
}

// NewPlanner creates a planner. provider may be nil, in which case every
// plan resolves to the straight-line fallback. refetchM is the movement
// threshold in meters beyond which ShouldRefetch triggers.
func NewPlanner(provider Provider, refetchM float64, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	if refetchM <= 0 {
		refetchM = 55
	}
	return &Planner{provider: provider, refetchM: refetchM, log: log}
}

// Plan fetches a route between from and to, falling back to a straight line on any
// provider failure. The position the route was fetched for becomes the new
// re-fetch origin.
func (p *Planner) Plan(ctx context.Context, from, to geo.Point) []geo.Point {
	path := p.fetch(ctx, from, to)
	p.mu.Lock()
	p.fetchOrigin = from
	p.hasOrigin = true
	p.mu.Unlock()
	return path
}

func (p *Planner) fetch(ctx context.Context, from, to geo.Point) []geo.Point {
	if p.provider == nil {
		return StraightLine(from, to)
	}
	path, err := p.provider.Route(ctx, from, to)
	if err != nil {
		observability.RouteFallbacksTotal.Inc()
		p.log.Warn("route provider failed, using straight-line fallback", "err", err)
		return StraightLine(from, to)
	}
	return path
}

// ShouldRefetch reports whether the owner has drifted far enough from the
// position the current route was fetched for to justify a re-fetch. It is
// false until the first Plan.
func (p *Planner) ShouldRefetch(current geo.Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasOrigin {
		return false
	}
	return geo.HaversineMeters(p.fetchOrigin, current) > p.refetchM
}

// Reset clears the re-fetch origin. Called on phase transitions so the
// next leg always plans fresh.
func (p *Planner) Reset() {
	p.mu.Lock()
	p.hasOrigin = false
	p.mu.Unlock()
}
