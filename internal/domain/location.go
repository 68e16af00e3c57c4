package domain

import (
	"time"

	"ridehail/internal/geo"
)

// DriverStatus represents a driver's availability.
type DriverStatus string

const (
	DriverStatusOnline  DriverStatus = "ONLINE"
	DriverStatusOffline DriverStatus = "OFFLINE"
)

// LocationSample is one reported driver position. Only the sample with the
// latest CapturedAt for a driver is authoritative; older samples must never
// overwrite a newer in-memory value.
type LocationSample struct {
	DriverID   string
	Position   geo.Point
	Status     DriverStatus
	CapturedAt time.Time
}

// NewerThan reports whether this sample supersedes other. A zero other
// always loses.
func (s LocationSample) NewerThan(other LocationSample) bool {
	return s.CapturedAt.After(other.CapturedAt)
}
