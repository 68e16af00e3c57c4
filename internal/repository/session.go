package repository

import (
	"context"

	"ridehail/internal/domain"
)

// SessionRepository defines the persistence operations for ride sessions.
type SessionRepository interface {
	// Create persists a new session.
	Create(ctx context.Context, session *domain.RideSession) error

	// GetByID retrieves a session by ID.
	GetByID(ctx context.Context, id string) (*domain.RideSession, error)

	// Update updates an existing session.
	Update(ctx context.Context, session *domain.RideSession) error

	// ListActive retrieves all sessions in a non-terminal state.
	ListActive(ctx context.Context) ([]*domain.RideSession, error)
}
