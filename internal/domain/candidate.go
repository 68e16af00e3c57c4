package domain

// MatchCandidate is a driver eligible to accept a WAITING session, with the
// driver's distance from pickup at dispatch time. Candidates are transient:
// the set is discarded once the session leaves WAITING or the wait expires.
type MatchCandidate struct {
	DriverID   string  `json:"driver_id"`
	DistanceKm float64 `json:"distance_km"`
	ETASeconds float64 `json:"eta_seconds"`
}
