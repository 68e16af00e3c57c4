package geo

import "github.com/twpayne/go-polyline"

// EncodePolyline encodes a point sequence as a standard 5-decimal
// polyline string.
func EncodePolyline(path []Point) string {
	if len(path) == 0 {
		return ""
	}
	coords := make([][]float64, len(path))
	for i, p := range path {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline decodes a polyline string into a point sequence.
// An empty string decodes to nil.
func DecodePolyline(s string) ([]Point, error) {
	if s == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	path := make([]Point, len(coords))
	for i, c := range coords {
		path[i] = Point{Lat: c[0], Lng: c[1]}
	}
	return path, nil
}
