// Package broadcast samples a driver's position source on a fixed cadence
// and pushes accepted samples to the backend and the change-feed. The
// sampling loop never blocks on the network: pushes are best-effort and
// the next cycle is the retry.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/feed"
	"ridehail/internal/geo"
	"ridehail/internal/observability"
)

// ErrPermissionDenied is returned when the position source is unavailable;
// the broadcaster simply does not start. Non-fatal to the caller.
var ErrPermissionDenied = errors.New("position source unavailable")

// PositionSource supplies the current position.
type PositionSource interface {
	Position(ctx context.Context) (geo.Point, error)
}

// Pusher delivers an accepted sample to the backend.
type Pusher interface {
	PushLocation(ctx context.Context, sample domain.LocationSample) error
}

// Config carries broadcaster tunables.
type Config struct {
	SampleInterval time.Duration
	MinDistanceM   float64
}

// Broadcaster periodically samples a position source for one driver.
type Broadcaster struct {
	driverID string
	source   PositionSource
	pusher   Pusher
	bus      feed.Bus
	cfg      Config
	log      *slog.Logger

	lastSent geo.Point
	hasSent  bool
}

// NewBroadcaster creates a broadcaster for driverID.
func NewBroadcaster(driverID string, source PositionSource, pusher Pusher, bus feed.Bus, cfg Config, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}
	if cfg.MinDistanceM <= 0 {
		cfg.MinDistanceM = 10
	}
	return &Broadcaster{
		driverID: driverID,
		source:   source,
		pusher:   pusher,
		bus:      bus,
		cfg:      cfg,
		log:      log.With("driver_id", driverID),
	}
}

// Run samples on the configured cadence until ctx is cancelled, then
// publishes an OFFLINE status so consumers can tell "gone offline" from
// "no data yet". A source failure on the first sample aborts with
// ErrPermissionDenied.
func (b *Broadcaster) Run(ctx context.Context) error {
	// Probe the source before starting the loop.
	pos, err := b.source.Position(ctx)
	if err != nil {
		return ErrPermissionDenied
	}
	b.emit(ctx, pos)
	observability.DriversOnline.Inc()
	defer observability.DriversOnline.Dec()
	defer b.goOffline()

	ticker := time.NewTicker(b.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pos, err := b.source.Position(ctx)
			if err != nil {
				// Transient sensor failure; next tick retries.
				b.log.Debug("position sample failed", "err", err)
				continue
			}
			if b.hasSent && geo.HaversineMeters(b.lastSent, pos) < b.cfg.MinDistanceM {
				continue
			}
			b.emit(ctx, pos)
		}
	}
}

// emit pushes a sample to the backend and publishes the feed upsert. Both
// are best-effort; the periodic cadence retries naturally.
func (b *Broadcaster) emit(ctx context.Context, pos geo.Point) {
	sample := domain.LocationSample{
		DriverID:   b.driverID,
		Position:   pos,
		Status:     domain.DriverStatusOnline,
		CapturedAt: time.Now(),
	}
	if err := b.pusher.PushLocation(ctx, sample); err != nil {
		b.log.Debug("location push failed, next cycle retries", "err", err)
	}
	if b.bus != nil {
		_ = b.bus.Publish(ctx, feed.Event{
			Table: feed.TableDriverLocations,
			Op:    feed.OpUpdate,
			Location: &feed.LocationRecord{
				DriverID:    sample.DriverID,
				Latitude:    pos.Lat,
				Longitude:   pos.Lng,
				Status:      domain.DriverStatusOnline,
				LastUpdated: sample.CapturedAt,
			},
		})
	}
	b.lastSent = pos
	b.hasSent = true
}

// goOffline publishes an OFFLINE status update, not a delete.
func (b *Broadcaster) goOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sample := domain.LocationSample{
		DriverID:   b.driverID,
		Position:   b.lastSent,
		Status:     domain.DriverStatusOffline,
		CapturedAt: time.Now(),
	}
	if err := b.pusher.PushLocation(ctx, sample); err != nil {
		b.log.Debug("offline push failed", "err", err)
	}
	if b.bus != nil {
		_ = b.bus.Publish(ctx, feed.Event{
			Table: feed.TableDriverLocations,
			Op:    feed.OpUpdate,
			Location: &feed.LocationRecord{
				DriverID:    sample.DriverID,
				Latitude:    sample.Position.Lat,
				Longitude:   sample.Position.Lng,
				Status:      domain.DriverStatusOffline,
				LastUpdated: sample.CapturedAt,
			},
		})
	}
}

// SimulateAlongPath steps through the point sequence over total duration,
// broadcasting every point and terminating at the last one. The distance
// and time gates do not apply in this mode.
func (b *Broadcaster) SimulateAlongPath(ctx context.Context, path []geo.Point, total time.Duration) error {
	if len(path) == 0 {
		return nil
	}
	observability.DriversOnline.Inc()
	defer observability.DriversOnline.Dec()
	defer b.goOffline()

	step := total / time.Duration(len(path))
	if step <= 0 {
		step = time.Millisecond
	}
	for _, p := range path {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.emit(ctx, p)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step):
		}
	}
	return nil
}
