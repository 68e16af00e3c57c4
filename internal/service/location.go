package service

import (
	"context"
	"log/slog"

	"ridehail/internal/domain"
	"ridehail/internal/feed"
	"ridehail/internal/observability"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// LocationService ingests driver location samples: geo index, durable
// store, change-feed. A stale sample (older timestamp than the recorded
// one) is dropped at every layer and never surfaces as an error.
type LocationService struct {
	locationStore redis.LocationStoreInterface
	locationRepo  repository.LocationRepository
	bus           feed.Bus
	log           *slog.Logger
}

// NewLocationService creates a new LocationService.
func NewLocationService(
	locationStore redis.LocationStoreInterface,
	locationRepo repository.LocationRepository,
	bus feed.Bus,
	log *slog.Logger,
) *LocationService {
	if log == nil {
		log = slog.Default()
	}
	return &LocationService{
		locationStore: locationStore,
		locationRepo:  locationRepo,
		bus:           bus,
		log:           log,
	}
}

// Ingest applies one driver location sample.
func (s *LocationService) Ingest(ctx context.Context, sample domain.LocationSample) error {
	if sample.DriverID == "" {
		return ErrInvalidDriverID
	}
	if !isValidLatitude(sample.Position.Lat) || !isValidLongitude(sample.Position.Lng) {
		return ErrInvalidLocation
	}
	if sample.Status == "" {
		sample.Status = domain.DriverStatusOnline
	}

	if sample.Status == domain.DriverStatusOffline {
		return s.SetStatus(ctx, sample.DriverID, domain.DriverStatusOffline)
	}

	applied, err := s.locationStore.Upsert(ctx, sample)
	if err != nil {
		return err
	}
	if !applied {
		observability.StaleUpdatesDropped.WithLabelValues("location").Inc()
		s.log.Debug("dropping stale location sample", "driver_id", sample.DriverID)
		return nil
	}

	if _, err := s.locationRepo.Upsert(ctx, sample); err != nil {
		// Geo index already holds the sample; the durable row catches up
		// on the next cycle.
		s.log.Warn("location row upsert failed", "driver_id", sample.DriverID, "err", err)
	}

	s.publish(ctx, sample, feed.OpUpdate)
	return nil
}

// SetStatus flips a driver's availability. OFFLINE removes the driver from
// the geo index but keeps the record so consumers can tell "gone offline"
// from "no data yet".
func (s *LocationService) SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if status != domain.DriverStatusOnline && status != domain.DriverStatusOffline {
		return ErrInvalidStatus
	}

	sample, err := s.locationRepo.GetByDriverID(ctx, driverID)
	if err != nil && err != repository.ErrNotFound {
		return err
	}
	sample.DriverID = driverID
	sample.Status = status

	if status == domain.DriverStatusOffline {
		if err := s.locationStore.SetOffline(ctx, driverID); err != nil {
			return err
		}
	}
	if err := s.locationRepo.SetStatus(ctx, driverID, status); err != nil && err != repository.ErrNotFound {
		return err
	}

	s.publish(ctx, sample, feed.OpUpdate)
	return nil
}

// Latest returns the newest recorded sample for a driver.
func (s *LocationService) Latest(ctx context.Context, driverID string) (domain.LocationSample, error) {
	if driverID == "" {
		return domain.LocationSample{}, ErrInvalidDriverID
	}
	return s.locationRepo.GetByDriverID(ctx, driverID)
}

func (s *LocationService) publish(ctx context.Context, sample domain.LocationSample, op feed.Op) {
	ev := feed.Event{
		Table: feed.TableDriverLocations,
		Op:    op,
		Location: &feed.LocationRecord{
			DriverID:    sample.DriverID,
			Latitude:    sample.Position.Lat,
			Longitude:   sample.Position.Lng,
			Status:      sample.Status,
			LastUpdated: sample.CapturedAt,
		},
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("feed publish failed", "driver_id", sample.DriverID, "err", err)
	}
}
