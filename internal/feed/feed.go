// Package feed carries row-level change notifications between the two
// sides of a ride. Delivery is at-least-once and possibly out of order;
// consumers must be idempotent and rely on the status-priority and
// timestamp rules to reject stale events.
package feed

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// Op is a row-level change kind.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Table identifies the logical table an event belongs to.
type Table string

const (
	TableMatches         Table = "matches"
	TableDriverLocations Table = "driver_locations"
)

// SessionRecord is the matches-row payload.
type SessionRecord struct {
	SessionID     string               `json:"session_id"`
	Status        domain.SessionStatus `json:"status"`
	Phase         domain.Phase         `json:"phase"`
	DriverID      string               `json:"driver_id,omitempty"`
	DriverArrived bool                 `json:"driver_arrived"`
	DestArrived   bool                 `json:"dest_arrived"`
	RoutePolyline string               `json:"route_polyline,omitempty"`
}

// LocationRecord is the driver_locations-row payload.
type LocationRecord struct {
	DriverID    string              `json:"driver_id"`
	Latitude    float64             `json:"latitude"`
	Longitude   float64             `json:"longitude"`
	Status      domain.DriverStatus `json:"driver_status"`
	LastUpdated time.Time           `json:"last_updated"`
}

// Event is one change notification.
type Event struct {
	Table    Table           `json:"table"`
	Op       Op              `json:"op"`
	Session  *SessionRecord  `json:"session,omitempty"`
	Location *LocationRecord `json:"location,omitempty"`
}

// Bus publishes and delivers change events.
type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe returns a channel of events and a cancel function that
	// tears the subscription down. The channel closes after cancel.
	Subscribe(ctx context.Context) (<-chan Event, func())
}
