package session

import "errors"

var (
	// ErrInvalidTransition is returned when an operation is attempted from
	// the wrong status, including the losing side of an accept race.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrSessionClosed is returned for any operation on a session that has
	// reached a terminal state.
	ErrSessionClosed = errors.New("session closed")
)
