package session

import (
	"context"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// op is a command directed at the machine. Commands are user-initiated,
// one-shot actions; their results are reported synchronously.
type opKind int

const (
	opAccept opKind = iota
	opStart
	opComplete
	opCancel
)

// event is anything the machine's serialized handler consumes. Exactly one
// field group is set.
type event struct {
	// command
	op       *opKind
	driverID string
	reason   string
	reply    chan error

	// cross-party status sync (REST response echo or change-feed event)
	status *domain.SessionStatus

	// driver position sample
	location *domain.LocationSample

	// route published by the owning side
	route []geo.Point

	// state inspection
	snapshot chan *domain.RideSession

	ctx context.Context
}

// NoteKind identifies a machine notification.
type NoteKind string

const (
	NoteDriverArrived NoteKind = "DRIVER_ARRIVED"
	NoteDestArrived   NoteKind = "DESTINATION_ARRIVED"
	NoteStatusChanged NoteKind = "STATUS_CHANGED"
)

// Note is an outbound notification from a session machine.
type Note struct {
	Kind      NoteKind
	SessionID string
	Status    domain.SessionStatus
	Phase     domain.Phase
}
