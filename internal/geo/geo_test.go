package geo

import (
	"math"
	"testing"
)

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// Ben Thanh Market to the Opera House in Ho Chi Minh City, roughly 600m.
	a := Point{Lat: 10.7725, Lng: 106.6980}
	b := Point{Lat: 10.7769, Lng: 106.7032}

	d := HaversineMeters(a, b)
	if d < 500 || d > 900 {
		t.Fatalf("expected distance in [500, 900]m, got %.1f", d)
	}
}

func TestHaversineMeters_ZeroForSamePoint(t *testing.T) {
	p := Point{Lat: 10.77, Lng: 106.70}
	if d := HaversineMeters(p, p); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKm_MatchesMeters(t *testing.T) {
	a := Point{Lat: 10.0, Lng: 106.0}
	b := Point{Lat: 11.0, Lng: 107.0}
	if got, want := HaversineKm(a, b), HaversineMeters(a, b)/1000; math.Abs(got-want) > 1e-9 {
		t.Fatalf("km=%f, meters/1000=%f", got, want)
	}
}

func TestBearingDegrees_Cardinal(t *testing.T) {
	origin := Point{Lat: 10.0, Lng: 106.0}

	cases := []struct {
		name string
		to   Point
		want float64
	}{
		{"north", Point{Lat: 11.0, Lng: 106.0}, 0},
		{"east", Point{Lat: 10.0, Lng: 107.0}, 90},
		{"south", Point{Lat: 9.0, Lng: 106.0}, 180},
		{"west", Point{Lat: 10.0, Lng: 105.0}, 270},
	}
	for _, tc := range cases {
		got := BearingDegrees(origin, tc.to)
		if math.Abs(got-tc.want) > 1.0 {
			t.Errorf("%s: expected bearing ~%.0f, got %.2f", tc.name, tc.want, got)
		}
	}
}

func TestInterpolate_Clamps(t *testing.T) {
	a := Point{Lat: 10.0, Lng: 106.0}
	b := Point{Lat: 11.0, Lng: 107.0}

	if got := Interpolate(a, b, -0.5); got != a {
		t.Fatalf("t<0 should clamp to a, got %+v", got)
	}
	if got := Interpolate(a, b, 1.5); got != b {
		t.Fatalf("t>1 should clamp to b, got %+v", got)
	}
	mid := Interpolate(a, b, 0.5)
	if math.Abs(mid.Lat-10.5) > 1e-9 || math.Abs(mid.Lng-106.5) > 1e-9 {
		t.Fatalf("midpoint wrong: %+v", mid)
	}
}

func TestPathLengthMeters(t *testing.T) {
	a := Point{Lat: 10.0, Lng: 106.0}
	b := Point{Lat: 10.01, Lng: 106.0}
	c := Point{Lat: 10.02, Lng: 106.0}

	total := PathLengthMeters([]Point{a, b, c})
	direct := HaversineMeters(a, c)
	if math.Abs(total-direct) > 1.0 {
		t.Fatalf("collinear path length %.2f should match direct %.2f", total, direct)
	}

	if got := PathLengthMeters([]Point{a}); got != 0 {
		t.Fatalf("single-point path should have zero length, got %f", got)
	}
	if got := PathLengthMeters(nil); got != 0 {
		t.Fatalf("nil path should have zero length, got %f", got)
	}
}

func TestNearestIndex_WithinBounds(t *testing.T) {
	path := []Point{
		{Lat: 10.00, Lng: 106.0},
		{Lat: 10.01, Lng: 106.0},
		{Lat: 10.02, Lng: 106.0},
		{Lat: 10.03, Lng: 106.0},
	}
	probe := Point{Lat: 10.021, Lng: 106.0}

	idx, dist := NearestIndex(path, probe, 0, len(path))
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}
	if dist > 200 {
		t.Fatalf("unexpected distance %f", dist)
	}

	// Restricting the scan below the true nearest picks the best in range.
	idx, _ = NearestIndex(path, probe, 0, 2)
	if idx != 1 {
		t.Fatalf("expected index 1 within [0,2), got %d", idx)
	}
}

func TestNearestIndex_EmptyRange(t *testing.T) {
	path := []Point{{Lat: 10, Lng: 106}}

	idx, dist := NearestIndex(path, Point{Lat: 10, Lng: 106}, 1, 1)
	if idx != -1 || !math.IsInf(dist, 1) {
		t.Fatalf("expected (-1, +Inf), got (%d, %f)", idx, dist)
	}
	idx, _ = NearestIndex(nil, Point{}, 0, 5)
	if idx != -1 {
		t.Fatalf("expected -1 for nil path, got %d", idx)
	}
}

func TestPolylineRoundTrip(t *testing.T) {
	path := []Point{
		{Lat: 10.7730, Lng: 106.6583},
		{Lat: 10.7769, Lng: 106.7009},
		{Lat: 10.7823, Lng: 106.7012},
	}

	encoded := EncodePolyline(path)
	if encoded == "" {
		t.Fatal("expected non-empty encoding")
	}
	decoded, err := DecodePolyline(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded) != len(path) {
		t.Fatalf("expected %d points, got %d", len(path), len(decoded))
	}
	for i := range path {
		// Standard polylines carry 5 decimal places.
		if math.Abs(decoded[i].Lat-path[i].Lat) > 1e-5 || math.Abs(decoded[i].Lng-path[i].Lng) > 1e-5 {
			t.Errorf("point %d drifted: want %+v, got %+v", i, path[i], decoded[i])
		}
	}
}

func TestPolyline_Empty(t *testing.T) {
	if got := EncodePolyline(nil); got != "" {
		t.Fatalf("expected empty string for nil path, got %q", got)
	}
	decoded, err := DecodePolyline("")
	if err != nil || decoded != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", decoded, err)
	}
}

func TestDecodePolyline_Malformed(t *testing.T) {
	if _, err := DecodePolyline("\x00"); err == nil {
		t.Fatal("expected error for malformed polyline")
	}
}
