package track

import (
	"testing"

	"ridehail/internal/geo"
)

// northwardRoute builds a straight route heading north with roughly
// stepM meters between consecutive points.
func northwardRoute(n int, stepM float64) []geo.Point {
	const degPerMeter = 1.0 / 111000.0
	route := make([]geo.Point, n)
	for i := 0; i < n; i++ {
		route[i] = geo.Point{Lat: 10.0 + float64(i)*stepM*degPerMeter, Lng: 106.0}
	}
	return route
}

func TestTracker_TruncatesAsMoverAdvances(t *testing.T) {
	route := northwardRoute(20, 50)
	tr := NewTracker(route, 0, 0)

	rem := tr.Advance(route[0])
	if len(rem) != 20 {
		t.Fatalf("expected full route at start, got %d points", len(rem))
	}

	rem = tr.Advance(route[5])
	if len(rem) != 15 {
		t.Fatalf("expected 15 remaining points, got %d", len(rem))
	}
	if tr.Index() != 5 {
		t.Fatalf("expected index 5, got %d", tr.Index())
	}
}

func TestTracker_IndexNeverMovesBackward(t *testing.T) {
	route := northwardRoute(30, 50)
	tr := NewTracker(route, 0, 0)

	// Walk forward, then feed samples that sit nearest to earlier points.
	indices := []int{0, 4, 9, 15, 7, 3, 20, 12, 25}
	prev := 0
	for _, i := range indices {
		tr.Advance(route[i])
		if tr.Index() < prev {
			t.Fatalf("index moved backward: %d after %d", tr.Index(), prev)
		}
		prev = tr.Index()
	}
	if tr.Index() != 25 {
		t.Fatalf("expected final index 25, got %d", tr.Index())
	}
}

func TestTracker_RemainingNeverGrows(t *testing.T) {
	route := northwardRoute(40, 30)
	tr := NewTracker(route, 0, 0)

	prevLen := len(route) + 1
	for i := 0; i < len(route); i += 3 {
		rem := tr.Advance(route[i])
		if len(rem) > prevLen {
			t.Fatalf("remaining grew from %d to %d at step %d", prevLen, len(rem), i)
		}
		prevLen = len(rem)
	}
}

func TestTracker_JitterBelowThresholdIgnored(t *testing.T) {
	route := northwardRoute(10, 50)
	tr := NewTracker(route, 0, 5.0)

	tr.Advance(route[2])
	idx := tr.Index()

	// A wiggle of ~2m must not re-evaluate the index.
	jitter := geo.Point{Lat: route[2].Lat + 0.000018, Lng: route[2].Lng}
	tr.Advance(jitter)
	if tr.Index() != idx {
		t.Fatalf("jitter moved index from %d to %d", idx, tr.Index())
	}
}

func TestTracker_ForwardWindowBoundsScan(t *testing.T) {
	route := northwardRoute(100, 50)
	tr := NewTracker(route, 10, 0)

	// The mover jumps far beyond the window; a full rescan picks it up.
	rem := tr.Advance(route[60])
	if tr.Index() != 60 {
		t.Fatalf("expected rescan to land on 60, got %d", tr.Index())
	}
	if len(rem) != 40 {
		t.Fatalf("expected 40 remaining, got %d", len(rem))
	}
}

func TestTracker_CompletesAtRouteEnd(t *testing.T) {
	route := northwardRoute(5, 50)
	tr := NewTracker(route, 0, 0)

	if tr.Complete() {
		t.Fatal("tracker should not start complete")
	}
	tr.Advance(route[4])
	if !tr.Complete() {
		t.Fatal("expected complete at last point")
	}
	if rem := tr.Remaining(); rem != nil {
		t.Fatalf("expected nil remaining when complete, got %d points", len(rem))
	}
}

func TestTracker_SetRouteResetsFloor(t *testing.T) {
	first := northwardRoute(10, 50)
	tr := NewTracker(first, 0, 0)
	tr.Advance(first[7])
	if tr.Index() != 7 {
		t.Fatalf("expected index 7, got %d", tr.Index())
	}

	second := northwardRoute(15, 40)
	tr.SetRoute(second)
	if tr.Index() != 0 {
		t.Fatalf("expected index reset to 0, got %d", tr.Index())
	}
	if tr.Complete() {
		t.Fatal("new route should not be complete")
	}
}

func TestTracker_EmptyRoute(t *testing.T) {
	tr := NewTracker(nil, 0, 0)
	if !tr.Complete() {
		t.Fatal("empty route is trivially complete")
	}
	if rem := tr.Advance(geo.Point{Lat: 10, Lng: 106}); rem != nil {
		t.Fatalf("expected nil remaining, got %v", rem)
	}
}

func TestTracker_Heading(t *testing.T) {
	route := northwardRoute(5, 50)
	tr := NewTracker(route, 0, 0)

	if _, ok := tr.Heading(); ok {
		t.Fatal("heading should be unavailable before the first sample")
	}
	tr.Advance(route[1])
	deg, ok := tr.Heading()
	if !ok {
		t.Fatal("expected heading after advancing")
	}
	// Northbound route: bearing near 0 (or wrapped just below 360).
	if deg > 1 && deg < 359 {
		t.Fatalf("expected northbound heading, got %.2f", deg)
	}
}

func TestArrivalDetector_LatchesAfterFirstFire(t *testing.T) {
	target := geo.Point{Lat: 10.7730, Lng: 106.6583}
	d := NewArrivalDetector(target, 30)

	far := geo.Point{Lat: 10.7800, Lng: 106.6583}
	if d.Check(far) {
		t.Fatal("should not fire outside the radius")
	}
	if !d.Check(target) {
		t.Fatal("expected fire on first sample inside the radius")
	}
	if d.Check(target) {
		t.Fatal("detector must latch after firing")
	}
	if !d.Fired() {
		t.Fatal("Fired should report the latch")
	}
}

func TestArrivalDetector_ResetReArms(t *testing.T) {
	pickup := geo.Point{Lat: 10.7730, Lng: 106.6583}
	dest := geo.Point{Lat: 10.7823, Lng: 106.7012}
	d := NewArrivalDetector(pickup, 30)

	if !d.Check(pickup) {
		t.Fatal("expected fire at pickup")
	}
	d.Reset(dest)
	if d.Fired() {
		t.Fatal("reset should clear the latch")
	}
	if d.Check(pickup) {
		t.Fatal("old target should no longer fire")
	}
	if !d.Check(dest) {
		t.Fatal("expected fire at the new target")
	}
}

func TestArrivalDetector_DefaultRadius(t *testing.T) {
	target := geo.Point{Lat: 10.7730, Lng: 106.6583}
	d := NewArrivalDetector(target, 0)

	// ~20m north of the target, inside the 30m default.
	near := geo.Point{Lat: target.Lat + 0.00018, Lng: target.Lng}
	if !d.Check(near) {
		t.Fatal("expected fire within the default radius")
	}
}
