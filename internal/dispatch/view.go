package dispatch

import (
	"sort"
	"sync"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// View is the live candidate set for one pickup point: drivers that are
// ONLINE and within the radius, nearest first. Every location
// insert/update/delete re-evaluates membership, so the view is always
// current with respect to the samples it has seen.
type View struct {
	pickup   geo.Point
	radiusKm float64
	speedMps float64

	mu   sync.RWMutex
	pool map[string]domain.LocationSample
}

// NewView creates a live candidate view around pickup.
func NewView(pickup geo.Point, radiusKm, speedMps float64) *View {
	if speedMps <= 0 {
		speedMps = 8.0
	}
	return &View{
		pickup:   pickup,
		radiusKm: radiusKm,
		speedMps: speedMps,
		pool:     make(map[string]domain.LocationSample),
	}
}

// Apply feeds a location upsert into the view. OFFLINE drivers and drivers
// outside the radius are removed; stale samples never displace newer ones.
func (v *View) Apply(sample domain.LocationSample) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if prev, ok := v.pool[sample.DriverID]; ok && !sample.NewerThan(prev) {
		return
	}
	if sample.Status != domain.DriverStatusOnline {
		delete(v.pool, sample.DriverID)
		return
	}
	if geo.HaversineKm(v.pickup, sample.Position) > v.radiusKm {
		delete(v.pool, sample.DriverID)
		return
	}
	v.pool[sample.DriverID] = sample
}

// Remove handles a row DELETE.
func (v *View) Remove(driverID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.pool, driverID)
}

// Candidates returns the current membership sorted ascending by distance.
func (v *View) Candidates() []domain.MatchCandidate {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]domain.MatchCandidate, 0, len(v.pool))
	for id, sample := range v.pool {
		distKm := geo.HaversineKm(v.pickup, sample.Position)
		out = append(out, domain.MatchCandidate{
			DriverID:   id,
			DistanceKm: distKm,
			ETASeconds: distKm * 1000 / v.speedMps,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Nearest returns the closest candidate, if any.
func (v *View) Nearest() (domain.MatchCandidate, bool) {
	cands := v.Candidates()
	if len(cands) == 0 {
		return domain.MatchCandidate{}, false
	}
	return cands[0], true
}
