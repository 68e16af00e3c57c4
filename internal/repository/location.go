package repository

import (
	"context"

	"ridehail/internal/domain"
)

// LocationRepository defines the persistence operations for driver
// location samples. Only the newest sample per driver is stored.
type LocationRepository interface {
	// Upsert stores the sample unless a newer one is already recorded.
	// It reports whether the sample was applied.
	Upsert(ctx context.Context, sample domain.LocationSample) (bool, error)

	// GetByDriverID retrieves the latest sample for a driver.
	GetByDriverID(ctx context.Context, driverID string) (domain.LocationSample, error)

	// SetStatus updates a driver's availability without touching position.
	SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) error
}
