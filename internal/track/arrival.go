package track

import (
	"sync"

	"ridehail/internal/geo"
)

// defaultArrivalRadiusM is the geofence radius for arrival detection.
const defaultArrivalRadiusM = 30.0

// ArrivalDetector fires exactly once when the mover enters the geofence
// around the phase's target, then latches until Reset.
type ArrivalDetector struct {
	mu      sync.Mutex
	target  geo.Point
	radiusM float64
	fired   bool
}

// NewArrivalDetector creates a detector for target with the given radius in
// meters; non-positive radius uses the default.
func NewArrivalDetector(target geo.Point, radiusM float64) *ArrivalDetector {
	if radiusM <= 0 {
		radiusM = defaultArrivalRadiusM
	}
	return &ArrivalDetector{target: target, radiusM: radiusM}
}

// Check returns true exactly once: on the first sample within the radius.
func (d *ArrivalDetector) Check(pos geo.Point) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fired {
		return false
	}
	if geo.HaversineMeters(pos, d.target) > d.radiusM {
		return false
	}
	d.fired = true
	return true
}

// Fired reports whether the detector has latched.
func (d *ArrivalDetector) Fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fired
}

// Reset re-arms the detector for a new target. Called on phase change.
func (d *ArrivalDetector) Reset(target geo.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = target
	d.fired = false
}
