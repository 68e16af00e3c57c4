package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// LocationRepository is a PostgreSQL implementation of repository.LocationRepository.
type LocationRepository struct {
	q Querier
}

// NewLocationRepository creates a new PostgreSQL location repository.
func NewLocationRepository(db *sql.DB) *LocationRepository {
	return &LocationRepository{q: db}
}

// Upsert stores the sample unless a newer one is already recorded for the
// driver. The timestamp guard lives in the query so concurrent writers
// cannot interleave a stale overwrite.
func (r *LocationRepository) Upsert(ctx context.Context, sample domain.LocationSample) (bool, error) {
	query := `
		INSERT INTO driver_locations (driver_id, latitude, longitude, driver_status, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (driver_id) DO UPDATE
		SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, driver_status = EXCLUDED.driver_status, last_updated = EXCLUDED.last_updated
		WHERE driver_locations.last_updated < EXCLUDED.last_updated
	`

	result, err := r.q.ExecContext(ctx, query,
		sample.DriverID,
		sample.Position.Lat,
		sample.Position.Lng,
		sample.Status,
		sample.CapturedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetByDriverID retrieves the latest sample for a driver.
func (r *LocationRepository) GetByDriverID(ctx context.Context, driverID string) (domain.LocationSample, error) {
	query := `
		SELECT driver_id, latitude, longitude, driver_status, last_updated
		FROM driver_locations WHERE driver_id = $1
	`

	var sample domain.LocationSample
	err := r.q.QueryRowContext(ctx, query, driverID).Scan(
		&sample.DriverID,
		&sample.Position.Lat,
		&sample.Position.Lng,
		&sample.Status,
		&sample.CapturedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LocationSample{}, repository.ErrNotFound
		}
		return domain.LocationSample{}, err
	}
	return sample, nil
}

// SetStatus updates a driver's availability without touching position.
func (r *LocationRepository) SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) error {
	query := `UPDATE driver_locations SET driver_status = $2 WHERE driver_id = $1`

	result, err := r.q.ExecContext(ctx, query, driverID, status)
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
