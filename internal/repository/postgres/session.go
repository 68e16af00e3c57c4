package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/repository"
)

// SessionRepository is a PostgreSQL implementation of repository.SessionRepository.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{q: db}
}

// NewSessionRepositoryWithTx creates a session repository using a transaction.
func NewSessionRepositoryWithTx(tx *sql.Tx) *SessionRepository {
	return &SessionRepository{q: tx}
}

// Create persists a new session. The route is stored as an encoded
// polyline; everything needed to reconstruct session state lives in this
// row.
func (r *SessionRepository) Create(ctx context.Context, session *domain.RideSession) error {
	query := `
		INSERT INTO sessions (id, passenger_id, driver_id, status, phase, pickup_lat, pickup_lng, pickup_address, dest_lat, dest_lng, dest_address, route_polyline, driver_arrived, dest_arrived, cancel_reason, created_at, cancelled_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	var driverID sql.NullString
	if session.DriverID != "" {
		driverID = sql.NullString{String: session.DriverID, Valid: true}
	}

	var cancelReason sql.NullString
	if session.CancelReason != "" {
		cancelReason = sql.NullString{String: session.CancelReason, Valid: true}
	}

	var cancelledAt, completedAt sql.NullTime
	if !session.CancelledAt.IsZero() {
		cancelledAt = sql.NullTime{Time: session.CancelledAt, Valid: true}
	}
	if !session.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: session.CompletedAt, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, query,
		session.ID,
		session.PassengerID,
		driverID,
		session.Status,
		session.Phase,
		session.Pickup.Lat,
		session.Pickup.Lng,
		session.PickupAddress,
		session.Destination.Lat,
		session.Destination.Lng,
		session.DestAddress,
		geo.EncodePolyline(session.Route),
		session.DriverArrived,
		session.DestArrived,
		cancelReason,
		session.CreatedAt,
		cancelledAt,
		completedAt,
	)

	return err
}

// GetByID retrieves a session by ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.RideSession, error) {
	query := `
		SELECT id, passenger_id, driver_id, status, phase, pickup_lat, pickup_lng, pickup_address, dest_lat, dest_lng, dest_address, route_polyline, driver_arrived, dest_arrived, cancel_reason, created_at, cancelled_at, completed_at
		FROM sessions WHERE id = $1
	`

	row := r.q.QueryRowContext(ctx, query, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// Update updates an existing session.
func (r *SessionRepository) Update(ctx context.Context, session *domain.RideSession) error {
	query := `
		UPDATE sessions
		SET driver_id = $2, status = $3, phase = $4, route_polyline = $5, driver_arrived = $6, dest_arrived = $7, cancel_reason = $8, cancelled_at = $9, completed_at = $10
		WHERE id = $1
	`

	var driverID sql.NullString
	if session.DriverID != "" {
		driverID = sql.NullString{String: session.DriverID, Valid: true}
	}

	var cancelReason sql.NullString
	if session.CancelReason != "" {
		cancelReason = sql.NullString{String: session.CancelReason, Valid: true}
	}

	var cancelledAt, completedAt sql.NullTime
	if !session.CancelledAt.IsZero() {
		cancelledAt = sql.NullTime{Time: session.CancelledAt, Valid: true}
	}
	if !session.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: session.CompletedAt, Valid: true}
	}

	result, err := r.q.ExecContext(ctx, query,
		session.ID,
		driverID,
		session.Status,
		session.Phase,
		geo.EncodePolyline(session.Route),
		session.DriverArrived,
		session.DestArrived,
		cancelReason,
		cancelledAt,
		completedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListActive retrieves all sessions in a non-terminal state.
func (r *SessionRepository) ListActive(ctx context.Context) ([]*domain.RideSession, error) {
	query := `
		SELECT id, passenger_id, driver_id, status, phase, pickup_lat, pickup_lng, pickup_address, dest_lat, dest_lng, dest_address, route_polyline, driver_arrived, dest_arrived, cancel_reason, created_at, cancelled_at, completed_at
		FROM sessions WHERE status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.RideSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.RideSession, error) {
	var session domain.RideSession
	var driverID, cancelReason, routePolyline sql.NullString
	var cancelledAt, completedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.PassengerID,
		&driverID,
		&session.Status,
		&session.Phase,
		&session.Pickup.Lat,
		&session.Pickup.Lng,
		&session.PickupAddress,
		&session.Destination.Lat,
		&session.Destination.Lng,
		&session.DestAddress,
		&routePolyline,
		&session.DriverArrived,
		&session.DestArrived,
		&cancelReason,
		&session.CreatedAt,
		&cancelledAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	session.DriverID = driverID.String
	session.CancelReason = cancelReason.String
	if cancelledAt.Valid {
		session.CancelledAt = cancelledAt.Time
	}
	if completedAt.Valid {
		session.CompletedAt = completedAt.Time
	}
	if routePolyline.String != "" {
		route, err := geo.DecodePolyline(routePolyline.String)
		if err != nil {
			return nil, err
		}
		session.Route = route
	}
	return &session, nil
}
