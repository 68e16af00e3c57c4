package domain

import (
	"time"

	"ridehail/internal/geo"
)

// SessionStatus represents the current status of a ride session.
type SessionStatus string

const (
	StatusPending    SessionStatus = "PENDING"
	StatusWaiting    SessionStatus = "WAITING"
	StatusAccepted   SessionStatus = "ACCEPTED"
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusCompleted  SessionStatus = "COMPLETED"
	StatusCancelled  SessionStatus = "CANCELLED"
)

// statusPriority orders statuses so that out-of-order or duplicated feed
// events can never roll a session backward. COMPLETED and CANCELLED share
// the top priority; both are terminal.
var statusPriority = map[SessionStatus]int{
	StatusPending:    0,
	StatusWaiting:    1,
	StatusAccepted:   2,
	StatusInProgress: 3,
	StatusCompleted:  4,
	StatusCancelled:  4,
}

// Priority returns the merge priority of a status. Unknown statuses get -1
// so they always lose.
func (s SessionStatus) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return -1
}

// Terminal reports whether the status ends the session.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known session status.
func (s SessionStatus) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// Phase identifies the active leg of a session.
type Phase string

const (
	PhaseToPickup      Phase = "TO_PICKUP"
	PhaseToDestination Phase = "TO_DESTINATION"
)

// RideSession is one ride from booking to completion or cancellation.
type RideSession struct {
	ID            string
	PassengerID   string
	DriverID      string      // empty until ACCEPTED
	Status        SessionStatus
	Phase         Phase
	Pickup        geo.Point
	PickupAddress string
	Destination   geo.Point
	DestAddress   string
	Route         []geo.Point // canonical route for the current phase
	DriverArrived bool
	DestArrived   bool
	CancelReason  string
	CreatedAt     time.Time
	CancelledAt   time.Time
	CompletedAt   time.Time
}

// Target returns the geofence target for the session's current phase.
func (s *RideSession) Target() geo.Point {
	if s.Phase == PhaseToDestination {
		return s.Destination
	}
	return s.Pickup
}

// Clone returns a deep copy safe to hand across goroutines.
func (s *RideSession) Clone() *RideSession {
	c := *s
	if s.Route != nil {
		c.Route = make([]geo.Point, len(s.Route))
		copy(c.Route, s.Route)
	}
	return &c
}
