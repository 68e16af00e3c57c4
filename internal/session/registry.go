package session

import (
	"context"
	"log/slog"
	"sync"

	"ridehail/internal/domain"
	"ridehail/internal/feed"
	"ridehail/internal/geo"
	"ridehail/internal/observability"
	"ridehail/internal/route"
)

// PlannerFactory builds a fresh planner per session so re-fetch origins
// never leak across sessions.
type PlannerFactory func() *route.Planner

// Registry tracks live session machines by id and routes feed events to
// them. Machines are torn down with their session's lifetime: once a
// machine reaches a terminal state it is dropped from the registry.
type Registry struct {
	newPlanner PlannerFactory
	sink       Sink
	cfg        Config
	log        *slog.Logger

	mu       sync.RWMutex
	machines map[string]*Machine
}

// NewRegistry creates an empty registry.
func NewRegistry(newPlanner PlannerFactory, sink Sink, cfg Config, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		newPlanner: newPlanner,
		sink:       sink,
		cfg:        cfg,
		log:        log,
		machines:   make(map[string]*Machine),
	}
}

// Add creates and registers a machine for the session, taking ownership of
// state. If a live machine already exists for the id it is returned
// instead. The machine is unregistered automatically when it closes.
func (r *Registry) Add(state *domain.RideSession) *Machine {
	r.mu.Lock()
	if existing, ok := r.machines[state.ID]; ok {
		r.mu.Unlock()
		return existing
	}
	m := NewMachine(state, r.newPlanner(), r.sink, r.cfg, r.log)
	r.machines[state.ID] = m
	r.mu.Unlock()
	observability.SessionsActive.Inc()

	go func() {
		<-m.Done()
		r.mu.Lock()
		delete(r.machines, state.ID)
		r.mu.Unlock()
		observability.SessionsActive.Dec()
	}()
	return m
}

// Get returns the machine for a session id, if live.
func (r *Registry) Get(sessionID string) (*Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[sessionID]
	return m, ok
}

// Each calls fn for every live machine.
func (r *Registry) Each(fn func(*Machine)) {
	r.mu.RLock()
	ms := make([]*Machine, 0, len(r.machines))
	for _, m := range r.machines {
		ms = append(ms, m)
	}
	r.mu.RUnlock()
	for _, m := range ms {
		fn(m)
	}
}

// Consume applies change-feed events to live machines until the context
// ends. Events for unknown sessions are ignored; location events fan out
// to every machine since each one filters by its assigned driver.
func (r *Registry) Consume(ctx context.Context, bus feed.Bus) {
	events, cancel := bus.Subscribe(ctx)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.apply(ev)
		}
	}
}

func (r *Registry) apply(ev feed.Event) {
	switch ev.Table {
	case feed.TableMatches:
		if ev.Session == nil {
			return
		}
		m, ok := r.Get(ev.Session.SessionID)
		if !ok {
			return
		}
		var path []geo.Point
		if ev.Session.RoutePolyline != "" {
			decoded, err := geo.DecodePolyline(ev.Session.RoutePolyline)
			if err != nil {
				r.log.Warn("ignoring feed route with bad polyline",
					"session_id", ev.Session.SessionID, "err", err)
			} else {
				path = decoded
			}
		}
		m.ApplyRecord(ev.Session.Status, ev.Session.DriverID, path)

	case feed.TableDriverLocations:
		if ev.Location == nil {
			return
		}
		sample := domain.LocationSample{
			DriverID:   ev.Location.DriverID,
			Position:   geo.Point{Lat: ev.Location.Latitude, Lng: ev.Location.Longitude},
			Status:     ev.Location.Status,
			CapturedAt: ev.Location.LastUpdated,
		}
		r.Each(func(m *Machine) {
			m.ApplyLocation(sample)
		})
	}
}
