// Package dispatch builds and maintains candidate driver sets for WAITING
// sessions. Dispatch never picks a winner: it publishes the set, and the
// first successful accept wins under the session machine's transition
// guard.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/feed"
	"ridehail/internal/geo"
	"ridehail/internal/observability"
	"ridehail/internal/redis"
	"ridehail/internal/session"
)

// ErrNoDriverFound is returned when the candidate wait expires with no
// acceptance.
var ErrNoDriverFound = errors.New("no driver found")

// Config carries dispatch tunables.
type Config struct {
	RadiusKm        float64
	CandidateWait   time.Duration
	DefaultSpeedMps float64
}

// Dispatcher builds candidate lists from the geo index and watches WAITING
// sessions through their candidate-wait window.
type Dispatcher struct {
	locations redis.LocationStoreInterface
	bus       feed.Bus
	cfg       Config
	log       *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(locations redis.LocationStoreInterface, bus feed.Bus, cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 5.0
	}
	if cfg.CandidateWait <= 0 {
		cfg.CandidateWait = 45 * time.Second
	}
	if cfg.DefaultSpeedMps <= 0 {
		cfg.DefaultSpeedMps = 8.0
	}
	return &Dispatcher{locations: locations, bus: bus, cfg: cfg, log: log}
}

// CandidatesFor queries the geo index for ONLINE drivers within the
// configured radius of pickup, nearest first.
func (d *Dispatcher) CandidatesFor(ctx context.Context, pickup geo.Point) ([]domain.MatchCandidate, error) {
	started := time.Now()

	nearby, err := d.locations.FindNearby(ctx, pickup, d.cfg.RadiusKm)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.MatchCandidate, 0, len(nearby))
	for _, n := range nearby {
		status, known, err := d.locations.Status(ctx, n.DriverID)
		if err != nil {
			return nil, err
		}
		if !known || status != domain.DriverStatusOnline {
			continue
		}
		candidates = append(candidates, domain.MatchCandidate{
			DriverID:   n.DriverID,
			DistanceKm: n.DistanceKm,
			ETASeconds: n.DistanceKm * 1000 / d.cfg.DefaultSpeedMps,
		})
	}

	observability.DispatchLatency.Observe(time.Since(started).Seconds())
	return candidates, nil
}

// LiveView builds a feed-driven candidate view for pickup and keeps it
// current until ctx ends.
func (d *Dispatcher) LiveView(ctx context.Context, pickup geo.Point) *View {
	view := NewView(pickup, d.cfg.RadiusKm, d.cfg.DefaultSpeedMps)

	events, cancel := d.bus.Subscribe(ctx)
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Table != feed.TableDriverLocations || ev.Location == nil {
					continue
				}
				if ev.Op == feed.OpDelete {
					view.Remove(ev.Location.DriverID)
					continue
				}
				view.Apply(domain.LocationSample{
					DriverID:   ev.Location.DriverID,
					Position:   geo.Point{Lat: ev.Location.Latitude, Lng: ev.Location.Longitude},
					Status:     ev.Location.Status,
					CapturedAt: ev.Location.LastUpdated,
				})
			}
		}
	}()
	return view
}

// WaitForAcceptance blocks until the session leaves WAITING or the
// candidate window expires. On expiry the session is cancelled and
// ErrNoDriverFound returned. The machine's notes channel belongs to the
// notification forwarder, so state is observed through snapshots.
func (d *Dispatcher) WaitForAcceptance(ctx context.Context, m *session.Machine) error {
	timer := time.NewTimer(d.cfg.CandidateWait)
	defer timer.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-m.Done():
			// Terminal before acceptance means cancelled elsewhere.
			return ErrNoDriverFound

		case <-ticker.C:
			status := m.Snapshot().Status
			switch {
			case status == domain.StatusCancelled:
				return ErrNoDriverFound
			case status.Priority() >= domain.StatusAccepted.Priority():
				return nil
			}

		case <-timer.C:
			observability.NoDriverTotal.Inc()
			d.log.Info("candidate wait expired", "session_id", m.Snapshot().ID)
			if err := m.Cancel(ctx, "no driver found"); err != nil && !errors.Is(err, session.ErrSessionClosed) {
				return err
			}
			return ErrNoDriverFound
		}
	}
}
