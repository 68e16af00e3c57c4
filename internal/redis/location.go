package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

const (
	driverLocationKey = "drivers:locations"
	driverMetaPrefix  = "drivers:meta:"
	driverMetaTTL     = 10 * time.Minute
)

// NearbyDriver is a driver position returned by a radius query, sorted
// ascending by distance.
type NearbyDriver struct {
	DriverID   string
	Position   geo.Point
	DistanceKm float64
}

// LocationStore handles the driver geo index in Redis.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// Upsert stores a driver's position with GEOADD and records the sample
// timestamp. A sample not newer than the recorded one is dropped; the
// return value reports whether the sample was applied.
func (s *LocationStore) Upsert(ctx context.Context, sample domain.LocationSample) (bool, error) {
	metaKey := driverMetaPrefix + sample.DriverID

	prev, err := s.client.HGet(ctx, metaKey, "captured_at").Result()
	if err == nil {
		if prevNanos, perr := strconv.ParseInt(prev, 10, 64); perr == nil {
			if !sample.CapturedAt.After(time.Unix(0, prevNanos)) {
				return false, nil
			}
		}
	} else if err != redis.Nil {
		return false, err
	}

	if err := s.client.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      sample.DriverID,
		Longitude: sample.Position.Lng,
		Latitude:  sample.Position.Lat,
	}).Err(); err != nil {
		return false, err
	}

	if err := s.client.HSet(ctx, metaKey,
		"captured_at", strconv.FormatInt(sample.CapturedAt.UnixNano(), 10),
		"status", string(domain.DriverStatusOnline),
	).Err(); err != nil {
		return false, err
	}
	s.client.Expire(ctx, metaKey, driverMetaTTL)

	return true, nil
}

// FindNearby returns drivers within radiusKm of the given point, nearest
// first.
func (s *LocationStore) FindNearby(ctx context.Context, center geo.Point, radiusKm float64) ([]NearbyDriver, error) {
	results, err := s.client.GeoRadius(ctx, driverLocationKey, center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	drivers := make([]NearbyDriver, 0, len(results))
	for _, r := range results {
		drivers = append(drivers, NearbyDriver{
			DriverID:   r.Name,
			Position:   geo.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		})
	}
	return drivers, nil
}

// SetOffline removes a driver from the geo index and marks the meta record
// OFFLINE. The record is kept rather than deleted so consumers can tell
// "gone offline" from "never seen".
func (s *LocationStore) SetOffline(ctx context.Context, driverID string) error {
	if err := s.client.ZRem(ctx, driverLocationKey, driverID).Err(); err != nil {
		return err
	}
	metaKey := driverMetaPrefix + driverID
	if err := s.client.HSet(ctx, metaKey, "status", string(domain.DriverStatusOffline)).Err(); err != nil {
		return err
	}
	s.client.Expire(ctx, metaKey, driverMetaTTL)
	return nil
}

// Status returns a driver's recorded availability. Unknown drivers report
// OFFLINE with ok=false.
func (s *LocationStore) Status(ctx context.Context, driverID string) (domain.DriverStatus, bool, error) {
	val, err := s.client.HGet(ctx, driverMetaPrefix+driverID, "status").Result()
	if err == redis.Nil {
		return domain.DriverStatusOffline, false, nil
	}
	if err != nil {
		return domain.DriverStatusOffline, false, err
	}
	return domain.DriverStatus(val), true, nil
}
