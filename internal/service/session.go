package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/dispatch"
	"ridehail/internal/domain"
	"ridehail/internal/feed"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
	"ridehail/internal/session"
)

const acceptLockTTL = 10 * time.Second

// SessionService handles ride-session operations. It is the Sink for every
// session machine: successful transitions are persisted and published to
// the change-feed so the counterpart learns about them even if a REST
// round-trip response is lost.
type SessionService struct {
	sessionRepo repository.SessionRepository
	lockStore   redis.LockStoreInterface
	dispatcher  *dispatch.Dispatcher
	registry    *session.Registry
	bus         feed.Bus
	notifier    *NotificationService
	log         *slog.Logger
}

// NewSessionService creates a new SessionService. Call BindRegistry before
// serving requests.
func NewSessionService(
	sessionRepo repository.SessionRepository,
	lockStore redis.LockStoreInterface,
	dispatcher *dispatch.Dispatcher,
	bus feed.Bus,
	notifier *NotificationService,
	log *slog.Logger,
) *SessionService {
	if log == nil {
		log = slog.Default()
	}
	return &SessionService{
		sessionRepo: sessionRepo,
		lockStore:   lockStore,
		dispatcher:  dispatcher,
		bus:         bus,
		notifier:    notifier,
		log:         log,
	}
}

// BindRegistry attaches the machine registry. The registry needs the
// service as its Sink, so the two are wired in two steps.
func (s *SessionService) BindRegistry(r *session.Registry) {
	s.registry = r
}

// Persist implements session.Sink.
func (s *SessionService) Persist(ctx context.Context, state *domain.RideSession) error {
	return s.sessionRepo.Update(ctx, state)
}

// PublishUpdate implements session.Sink: every state change becomes a
// matches-row UPDATE on the change-feed.
func (s *SessionService) PublishUpdate(ctx context.Context, state *domain.RideSession) {
	ev := feed.Event{
		Table: feed.TableMatches,
		Op:    feed.OpUpdate,
		Session: &feed.SessionRecord{
			SessionID:     state.ID,
			Status:        state.Status,
			Phase:         state.Phase,
			DriverID:      state.DriverID,
			DriverArrived: state.DriverArrived,
			DestArrived:   state.DestArrived,
			RoutePolyline: geo.EncodePolyline(state.Route),
		},
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.log.Warn("feed publish failed", "session_id", state.ID, "err", err)
	}
}

// BookRequest contains the parameters for booking a ride.
type BookRequest struct {
	PassengerID   string
	Pickup        geo.Point
	PickupAddress string
	Destination   geo.Point
	DestAddress   string
}

// BookResponse contains the created session and its candidate set.
type BookResponse struct {
	Session    *domain.RideSession
	Candidates []domain.MatchCandidate
}

// Book creates a WAITING session, publishes its candidate set and starts
// the candidate-wait watchdog. Dispatch does not pick a winner; any driver
// in the set may accept, and the first successful accept wins.
func (s *SessionService) Book(ctx context.Context, req BookRequest) (*BookResponse, error) {
	if err := s.validateBook(req); err != nil {
		return nil, err
	}

	state := &domain.RideSession{
		ID:            uuid.New().String(),
		PassengerID:   req.PassengerID,
		Status:        domain.StatusPending,
		Phase:         domain.PhaseToPickup,
		Pickup:        req.Pickup,
		PickupAddress: req.PickupAddress,
		Destination:   req.Destination,
		DestAddress:   req.DestAddress,
		CreatedAt:     time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, state); err != nil {
		return nil, err
	}

	m := s.registry.Add(state.Clone())
	if s.notifier != nil {
		go s.notifier.Forward(m)
	}

	candidates, err := s.dispatcher.CandidatesFor(ctx, req.Pickup)
	if err != nil {
		// The session still goes to WAITING with an empty candidate set:
		// drivers learn about it over the feed, and the watchdog cancels
		// it with NoDriverFound if nobody accepts in time.
		s.log.Warn("candidate query failed", "session_id", state.ID, "err", err)
		candidates = nil
	}

	m.ApplyStatus(domain.StatusWaiting)

	// Watchdog: cancel and report NoDriverFound when the wait expires.
	go func() {
		if werr := s.dispatcher.WaitForAcceptance(context.Background(), m); werr != nil {
			s.log.Info("session ended without acceptance", "session_id", state.ID, "reason", werr)
		}
	}()

	return &BookResponse{Session: m.Snapshot(), Candidates: candidates}, nil
}

// Accept is the driver's one-shot claim on a WAITING session. The redis
// lock serializes concurrent accepts across instances; the machine's
// transition guard makes the loser fail with ErrInvalidTransition.
func (s *SessionService) Accept(ctx context.Context, sessionID, driverID string) (*domain.RideSession, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	m, err := s.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	locked, err := s.lockStore.AcquireSessionLock(ctx, sessionID, acceptLockTTL)
	if err != nil {
		return nil, err
	}
	if !locked {
		// Another accept is in flight; it will win.
		return nil, session.ErrInvalidTransition
	}
	defer func() { _ = s.lockStore.ReleaseSessionLock(ctx, sessionID) }()

	if err := m.Accept(ctx, driverID); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// Start is the driver-only ACCEPTED to IN_PROGRESS transition.
func (s *SessionService) Start(ctx context.Context, sessionID string) (*domain.RideSession, error) {
	return s.transition(ctx, sessionID, func(m *session.Machine) error {
		return m.Start(ctx)
	})
}

// Complete is the driver-only IN_PROGRESS to COMPLETED transition.
func (s *SessionService) Complete(ctx context.Context, sessionID string) (*domain.RideSession, error) {
	return s.transition(ctx, sessionID, func(m *session.Machine) error {
		return m.Complete(ctx)
	})
}

// Cancel ends any non-terminal session. Either party may call it.
func (s *SessionService) Cancel(ctx context.Context, sessionID, reason string) (*domain.RideSession, error) {
	return s.transition(ctx, sessionID, func(m *session.Machine) error {
		return m.Cancel(ctx, reason)
	})
}

// UpdateStatus applies a raw status update under the priority rule. Stale
// updates are dropped silently; the response reflects the materialized
// state either way.
func (s *SessionService) UpdateStatus(ctx context.Context, sessionID string, status domain.SessionStatus) (*domain.RideSession, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	m, err := s.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.ApplyStatus(status)
	return m.Snapshot(), nil
}

// Get retrieves the current session state, preferring the live machine.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*domain.RideSession, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if m, ok := s.registry.Get(sessionID); ok {
		return m.Snapshot(), nil
	}
	return s.sessionRepo.GetByID(ctx, sessionID)
}

// RouteView is the canonical and remaining route for a session.
type RouteView struct {
	Canonical []geo.Point
	Remaining []geo.Point
}

// Route returns the session's current route view.
func (s *SessionService) Route(ctx context.Context, sessionID string) (*RouteView, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if m, ok := s.registry.Get(sessionID); ok {
		return &RouteView{Canonical: m.Snapshot().Route, Remaining: m.Remaining()}, nil
	}
	state, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &RouteView{Canonical: state.Route, Remaining: state.Route}, nil
}

func (s *SessionService) transition(ctx context.Context, sessionID string, op func(*session.Machine) error) (*domain.RideSession, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	m, err := s.machine(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := op(m); err != nil {
		return m.Snapshot(), err
	}
	return m.Snapshot(), nil
}

// machine returns the live machine for a session, rehydrating it from the
// repository after a restart.
func (s *SessionService) machine(ctx context.Context, sessionID string) (*session.Machine, error) {
	if m, ok := s.registry.Get(sessionID); ok {
		return m, nil
	}

	state, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.Status.Terminal() {
		return nil, session.ErrSessionClosed
	}

	m := s.registry.Add(state)
	if s.notifier != nil {
		go s.notifier.Forward(m)
	}
	return m, nil
}

func (s *SessionService) validateBook(req BookRequest) error {
	if req.PassengerID == "" {
		return ErrInvalidPassengerID
	}
	if !isValidLatitude(req.Pickup.Lat) || !isValidLongitude(req.Pickup.Lng) {
		return ErrInvalidPickupLocation
	}
	if !isValidLatitude(req.Destination.Lat) || !isValidLongitude(req.Destination.Lng) {
		return ErrInvalidDestinationLocation
	}
	return nil
}
