package track

import (
	"sync"

	"ridehail/internal/geo"
)

const (
	// defaultWindow bounds the forward scan for the nearest route point.
	defaultWindow = 50
	// defaultMoveThresholdM gates truncation so GPS jitter while
	// stationary never shrinks the visible route.
	defaultMoveThresholdM = 5.0
	// snapToleranceM is how close a forward-window point must be for the
	// match to count; beyond it we rescan the whole route once.
	snapToleranceM = 120.0
)

// Tracker maintains the remaining portion of a canonical route as the mover
// advances along it. The truncation index is monotonic for a fixed route:
// it never moves backward, so the remaining route never grows.
type Tracker struct {
	mu sync.Mutex

	route    []geo.Point
	floor    int // search never starts before this index
	window   int
	moveM    float64
	lastPos  geo.Point
	hasPos   bool
	complete bool
}

// NewTracker creates a tracker for the given canonical route. window and
// moveThresholdM fall back to defaults when non-positive.
func NewTracker(route []geo.Point, window int, moveThresholdM float64) *Tracker {
	if window <= 0 {
		window = defaultWindow
	}
	if moveThresholdM <= 0 {
		moveThresholdM = defaultMoveThresholdM
	}
	t := &Tracker{window: window, moveM: moveThresholdM}
	t.setRoute(route)
	return t
}

// SetRoute replaces the canonical route, resetting the search floor. Called
// on phase transitions and owner re-fetches.
func (t *Tracker) SetRoute(route []geo.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setRoute(route)
}

func (t *Tracker) setRoute(route []geo.Point) {
	t.route = make([]geo.Point, len(route))
	copy(t.route, route)
	t.floor = 0
	t.hasPos = false
	t.complete = len(route) == 0
}

// Advance feeds the mover's current position and returns the remaining
// route. Below the movement threshold the previous view is returned
// unchanged.
func (t *Tracker) Advance(pos geo.Point) []geo.Point {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.route) == 0 {
		return nil
	}

	if t.hasPos && geo.HaversineMeters(t.lastPos, pos) < t.moveM {
		return t.remainingLocked()
	}
	t.lastPos = pos
	t.hasPos = true

	idx, dist := geo.NearestIndex(t.route, pos, t.floor, t.floor+t.window)
	if idx < 0 || dist > snapToleranceM {
		// Off the forward window; one full rescan, but never behind the
		// floor; the mover cannot travel backward along the route.
		if ridx, rdist := geo.NearestIndex(t.route, pos, 0, len(t.route)); ridx >= t.floor && rdist <= dist {
			idx = ridx
		}
	}
	if idx > t.floor {
		t.floor = idx
	}
	if t.floor >= len(t.route)-1 {
		t.complete = true
	}
	return t.remainingLocked()
}

// remainingLocked returns the suffix of the route from the floor index.
func (t *Tracker) remainingLocked() []geo.Point {
	if t.complete {
		return nil
	}
	rem := make([]geo.Point, len(t.route)-t.floor)
	copy(rem, t.route[t.floor:])
	return rem
}

// Remaining returns the current remaining route without advancing.
func (t *Tracker) Remaining() []geo.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.route) == 0 {
		return nil
	}
	return t.remainingLocked()
}

// Index returns the current truncation index.
func (t *Tracker) Index() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.floor
}

// Complete reports whether the mover has reached the end of the route.
func (t *Tracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}

// Heading returns the bearing in degrees from the current position to the
// next route point, and false when there is no segment left to follow.
func (t *Tracker) Heading() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasPos || t.complete || t.floor+1 >= len(t.route) {
		return 0, false
	}
	return geo.BearingDegrees(t.lastPos, t.route[t.floor+1]), true
}
