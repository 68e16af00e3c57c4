package redis

import (
	"context"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// LocationStoreInterface defines the interface for the driver geo index.
type LocationStoreInterface interface {
	Upsert(ctx context.Context, sample domain.LocationSample) (bool, error)
	FindNearby(ctx context.Context, center geo.Point, radiusKm float64) ([]NearbyDriver, error)
	SetOffline(ctx context.Context, driverID string) error
	Status(ctx context.Context, driverID string) (domain.DriverStatus, bool, error)
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	ReleaseSessionLock(ctx context.Context, sessionID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface = (*LocationStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
)
