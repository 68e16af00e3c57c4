package geo

import "math"

const (
	earthRadiusM  = 6371000.0
	earthRadiusKm = 6371.0
)

// Point is a position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineMeters returns the great-circle distance in meters between two points.
func HaversineMeters(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// HaversineKm returns the great-circle distance in kilometers between two points.
func HaversineKm(a, b Point) float64 {
	return HaversineMeters(a, b) / 1000
}

// BearingDegrees returns the initial bearing from a to b in degrees,
// normalized to [0, 360).
func BearingDegrees(a, b Point) float64 {
	la1 := toRad(a.Lat)
	la2 := toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(la2)
	x := math.Cos(la1)*math.Sin(la2) - math.Sin(la1)*math.Cos(la2)*math.Cos(dLng)
	deg := toDeg(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// Interpolate returns the point at fraction t along the segment from a to b.
// t is clamped to [0, 1]. Linear interpolation in degree space is fine at
// city scale; the routes this system handles never cross the antimeridian.
func Interpolate(a, b Point, t float64) Point {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// PathLengthMeters sums the segment distances along a point sequence.
func PathLengthMeters(path []Point) float64 {
	var total float64
	for i := 0; i < len(path)-1; i++ {
		total += HaversineMeters(path[i], path[i+1])
	}
	return total
}

// NearestIndex scans path[from:to] and returns the index of the point
// closest to p along with its distance in meters. The bounds are clamped
// to the path; from >= to yields (-1, +Inf).
func NearestIndex(path []Point, p Point, from, to int) (int, float64) {
	if from < 0 {
		from = 0
	}
	if to > len(path) {
		to = len(path)
	}
	best := -1
	bestDist := math.Inf(1)
	for i := from; i < to; i++ {
		if d := HaversineMeters(path[i], p); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
