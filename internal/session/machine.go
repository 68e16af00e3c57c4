// Package session owns ride-session state. Each session is driven by a
// single goroutine consuming a mailbox of events (REST results,
// change-feed events, location samples, commands) so there is never a
// question of who overwrites whom: updates apply one at a time, guarded by
// the status-priority rule.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/observability"
	"ridehail/internal/route"
	"ridehail/internal/track"
)

// Sink receives the machine's durable side effects. Persist failures are
// logged and retried by the next state-changing event; the in-memory state
// is authoritative between flushes.
type Sink interface {
	Persist(ctx context.Context, s *domain.RideSession) error
	PublishUpdate(ctx context.Context, s *domain.RideSession)
}

// Config carries the tunables a machine needs.
type Config struct {
	ArrivalRadiusM   float64
	MoveThresholdM   float64
	TruncationWindow int
}

// Machine is the state machine for one ride session.
type Machine struct {
	state   *domain.RideSession
	planner *route.Planner
	tracker *track.Tracker
	arrival *track.ArrivalDetector
	sink    Sink
	cfg     Config
	log     *slog.Logger

	lastSampleAt time.Time

	mu      sync.Mutex
	sealed  bool
	mailbox chan event
	notes   chan Note
	done    chan struct{}
}

// NewMachine creates and starts a machine for the given session state.
// The caller hands over ownership of state.
func NewMachine(state *domain.RideSession, planner *route.Planner, sink Sink, cfg Config, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	if state.Phase == "" {
		state.Phase = domain.PhaseToPickup
	}
	m := &Machine{
		state:   state,
		planner: planner,
		tracker: track.NewTracker(state.Route, cfg.TruncationWindow, cfg.MoveThresholdM),
		arrival: track.NewArrivalDetector(state.Target(), cfg.ArrivalRadiusM),
		sink:    sink,
		cfg:     cfg,
		log:     log.With("session_id", state.ID),
		mailbox: make(chan event, 64),
		notes:   make(chan Note, 16),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Notes delivers machine notifications (arrival, status changes). The
// channel is never closed while the machine runs; slow consumers miss
// notes rather than block the handler.
func (m *Machine) Notes() <-chan Note { return m.notes }

// Done closes when the machine has reached a terminal state and unwound.
func (m *Machine) Done() <-chan struct{} { return m.done }

// Accept is the driver-only transition WAITING to ACCEPTED. The first
// caller wins; every later caller gets ErrInvalidTransition.
func (m *Machine) Accept(ctx context.Context, driverID string) error {
	return m.command(ctx, opAccept, driverID, "")
}

// Start is the driver-only transition ACCEPTED to IN_PROGRESS. It flips the
// phase to TO_DESTINATION, clears the route and re-arms arrival detection.
func (m *Machine) Start(ctx context.Context) error {
	return m.command(ctx, opStart, "", "")
}

// Complete is the driver-only transition IN_PROGRESS to COMPLETED.
func (m *Machine) Complete(ctx context.Context) error {
	return m.command(ctx, opComplete, "", "")
}

// Cancel moves any non-terminal session to CANCELLED. Either party may
// call it.
func (m *Machine) Cancel(ctx context.Context, reason string) error {
	return m.command(ctx, opCancel, "", reason)
}

func (m *Machine) command(ctx context.Context, kind opKind, driverID, reason string) error {
	ev := event{op: &kind, driverID: driverID, reason: reason, reply: make(chan error, 1), ctx: ctx}
	if !m.enqueue(ev) {
		return ErrSessionClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyStatus enqueues a cross-party status update. Stale statuses are
// dropped inside the handler; duplicates are no-ops.
func (m *Machine) ApplyStatus(status domain.SessionStatus) {
	m.enqueue(event{status: &status, ctx: context.Background()})
}

// ApplyRecord enqueues a full matches-row sync: status, assigned driver
// and the owner's published route arrive as one serialized event.
func (m *Machine) ApplyRecord(status domain.SessionStatus, driverID string, path []geo.Point) {
	m.enqueue(event{status: &status, driverID: driverID, route: path, ctx: context.Background()})
}

// ApplyLocation enqueues a driver position sample.
func (m *Machine) ApplyLocation(sample domain.LocationSample) {
	s := sample
	m.enqueue(event{location: &s, ctx: context.Background()})
}

// AdoptRoute enqueues a route published by the owning side. The receiving
// side never mutates it; it only derives its remaining view.
func (m *Machine) AdoptRoute(path []geo.Point) {
	m.enqueue(event{route: path, ctx: context.Background()})
}

// enqueue delivers an event to the run loop. The send happens under the
// seal mutex: an event enqueued here is guaranteed a consumer, either the
// run loop or the shutdown flush. After the seal it reports false and the
// event is never sent.
func (m *Machine) enqueue(ev event) bool {
	m.mu.Lock()
	if m.sealed {
		m.mu.Unlock()
		return false
	}
	m.mailbox <- ev
	m.mu.Unlock()
	return true
}

// Snapshot returns a copy of the current session state.
func (m *Machine) Snapshot() *domain.RideSession {
	reply := make(chan *domain.RideSession, 1)
	if !m.enqueue(event{ctx: context.Background(), snapshot: reply}) {
		// Machine unwound; the last flushed state is what callers get.
		return m.state.Clone()
	}
	return <-reply
}

// Remaining returns the remaining route for the current phase.
func (m *Machine) Remaining() []geo.Point { return m.tracker.Remaining() }

func (m *Machine) run() {
	for ev := range m.mailbox {
		if ev.snapshot != nil {
			ev.snapshot <- m.state.Clone()
			continue
		}
		m.handle(ev)
		if m.state.Status.Terminal() {
			m.shutdown()
			return
		}
	}
}

// shutdown seals the mailbox and answers everything still queued. The seal
// must be taken on a separate goroutine: a producer may hold the mutex
// blocked on a full mailbox, so this loop keeps consuming until the seal
// lands. Once sealed, no producer can enqueue and the leftover buffer is
// flushed synchronously.
func (m *Machine) shutdown() {
	sealed := make(chan struct{})
	go func() {
		m.mu.Lock()
		m.sealed = true
		m.mu.Unlock()
		close(m.done)
		close(sealed)
	}()
	for {
		select {
		case ev := <-m.mailbox:
			m.reject(ev)
		case <-sealed:
			for {
				select {
				case ev := <-m.mailbox:
					m.reject(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Machine) reject(ev event) {
	if ev.reply != nil {
		ev.reply <- ErrSessionClosed
	}
	if ev.snapshot != nil {
		ev.snapshot <- m.state.Clone()
	}
}

func (m *Machine) handle(ev event) {
	if ev.op != nil {
		ev.reply <- m.handleCommand(ev)
		return
	}
	if ev.status != nil {
		if ev.driverID != "" && m.state.DriverID == "" {
			m.state.DriverID = ev.driverID
		}
		m.mergeStatus(ev.ctx, *ev.status)
	}
	if ev.location != nil {
		m.handleLocation(ev.ctx, *ev.location)
	}
	if ev.route != nil {
		m.handleRoute(ev.ctx, ev.route)
	}
}

func (m *Machine) handleCommand(ev event) error {
	if m.state.Status.Terminal() {
		return ErrSessionClosed
	}

	switch *ev.op {
	case opAccept:
		if m.state.Status != domain.StatusWaiting {
			return ErrInvalidTransition
		}
		m.state.DriverID = ev.driverID
		m.transition(ev.ctx, domain.StatusAccepted)
		observability.MatchesTotal.Inc()

	case opStart:
		if m.state.Status != domain.StatusAccepted {
			return ErrInvalidTransition
		}
		m.state.Phase = domain.PhaseToDestination
		m.state.Route = nil
		m.state.DestArrived = false
		m.arrival.Reset(m.state.Destination)
		m.planner.Reset()
		m.tracker.SetRoute(nil)
		m.transition(ev.ctx, domain.StatusInProgress)

	case opComplete:
		if m.state.Status != domain.StatusInProgress {
			return ErrInvalidTransition
		}
		m.state.CompletedAt = time.Now()
		m.transition(ev.ctx, domain.StatusCompleted)

	case opCancel:
		m.state.CancelReason = ev.reason
		m.state.CancelledAt = time.Now()
		m.transition(ev.ctx, domain.StatusCancelled)
	}
	return nil
}

// mergeStatus applies a cross-party status under the priority rule: a
// status only applies if its priority is at least the current one. This is
// what makes out-of-order feed delivery harmless.
func (m *Machine) mergeStatus(ctx context.Context, status domain.SessionStatus) {
	if m.state.Status.Terminal() {
		return
	}
	if status == m.state.Status {
		return // duplicate, idempotent
	}
	if status.Priority() < m.state.Status.Priority() {
		observability.StaleUpdatesDropped.WithLabelValues("status").Inc()
		m.log.Debug("dropping stale status update",
			"current", m.state.Status, "incoming", status)
		return
	}
	if status == domain.StatusInProgress && m.state.Phase == domain.PhaseToPickup {
		// Counterpart already started: mirror the phase flip locally.
		m.state.Phase = domain.PhaseToDestination
		m.state.Route = nil
		m.state.DestArrived = false
		m.arrival.Reset(m.state.Destination)
		m.planner.Reset()
		m.tracker.SetRoute(nil)
	}
	m.transition(ctx, status)
}

func (m *Machine) handleLocation(ctx context.Context, sample domain.LocationSample) {
	if m.state.DriverID == "" || sample.DriverID != m.state.DriverID {
		return
	}
	if m.state.Status != domain.StatusAccepted && m.state.Status != domain.StatusInProgress {
		return
	}
	if !sample.CapturedAt.IsZero() && !sample.CapturedAt.After(m.lastSampleAt) {
		observability.StaleUpdatesDropped.WithLabelValues("location").Inc()
		m.log.Debug("dropping stale location sample",
			"driver_id", sample.DriverID, "captured_at", sample.CapturedAt)
		return
	}
	m.lastSampleAt = sample.CapturedAt

	// Keep the canonical route fresh while this side owns it.
	if len(m.state.Route) == 0 || m.planner.ShouldRefetch(sample.Position) {
		path := m.planner.Plan(ctx, sample.Position, m.state.Target())
		m.state.Route = path
		m.tracker.SetRoute(path)
		m.flush(ctx)
	}

	m.tracker.Advance(sample.Position)

	if m.arrival.Check(sample.Position) {
		switch m.state.Phase {
		case domain.PhaseToPickup:
			m.state.DriverArrived = true
			m.notify(Note{Kind: NoteDriverArrived, SessionID: m.state.ID, Status: m.state.Status, Phase: m.state.Phase})
		case domain.PhaseToDestination:
			m.state.DestArrived = true
			m.notify(Note{Kind: NoteDestArrived, SessionID: m.state.ID, Status: m.state.Status, Phase: m.state.Phase})
		}
		m.flush(ctx)
	}
}

// handleRoute adopts a route published by the owning side. Adoption is
// unconditional whenever the local route is empty; otherwise a same-length
// replay is a no-op and a differing route replaces the local copy, since
// the owner is authoritative.
func (m *Machine) handleRoute(ctx context.Context, path []geo.Point) {
	if len(path) == 0 {
		return
	}
	if len(m.state.Route) != 0 && geo.EncodePolyline(m.state.Route) == geo.EncodePolyline(path) {
		return // duplicate publish, idempotent
	}
	m.state.Route = make([]geo.Point, len(path))
	copy(m.state.Route, path)
	m.tracker.SetRoute(m.state.Route)
	m.flush(ctx)
}

func (m *Machine) transition(ctx context.Context, status domain.SessionStatus) {
	m.state.Status = status
	m.flush(ctx)
	m.notify(Note{Kind: NoteStatusChanged, SessionID: m.state.ID, Status: status, Phase: m.state.Phase})
	m.log.Info("session status changed", "status", status, "phase", m.state.Phase)
}

// flush persists and publishes the current state. Both paths are
// best-effort: the periodic nature of location updates and the
// at-least-once feed retry the sync naturally.
func (m *Machine) flush(ctx context.Context) {
	if err := m.sink.Persist(ctx, m.state.Clone()); err != nil {
		m.log.Warn("session persist failed, will retry on next change", "err", err)
	}
	m.sink.PublishUpdate(ctx, m.state.Clone())
}

func (m *Machine) notify(n Note) {
	select {
	case m.notes <- n:
	default:
	}
}
