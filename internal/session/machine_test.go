package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/route"
)

// recordingSink captures persisted states and published updates.
type recordingSink struct {
	mu        sync.Mutex
	persisted []*domain.RideSession
	published []*domain.RideSession

	PersistError error
	PersistCalls int32
}

func (s *recordingSink) Persist(ctx context.Context, state *domain.RideSession) error {
	atomic.AddInt32(&s.PersistCalls, 1)
	if s.PersistError != nil {
		return s.PersistError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted = append(s.persisted, state)
	return nil
}

func (s *recordingSink) PublishUpdate(ctx context.Context, state *domain.RideSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, state)
}

func (s *recordingSink) lastPersisted() *domain.RideSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.persisted) == 0 {
		return nil
	}
	return s.persisted[len(s.persisted)-1]
}

var testPickup = geo.Point{Lat: 10.7730, Lng: 106.6583}
var testDest = geo.Point{Lat: 10.7823, Lng: 106.7012}

func newTestSession(status domain.SessionStatus) *domain.RideSession {
	return &domain.RideSession{
		ID:          "sess-1",
		PassengerID: "passenger-1",
		Status:      status,
		Phase:       domain.PhaseToPickup,
		Pickup:      testPickup,
		Destination: testDest,
		CreatedAt:   time.Now(),
	}
}

func newTestMachine(status domain.SessionStatus, sink Sink) *Machine {
	planner := route.NewPlanner(nil, 55, nil)
	return NewMachine(newTestSession(status), planner, sink, Config{
		ArrivalRadiusM:   30,
		MoveThresholdM:   5,
		TruncationWindow: 50,
	}, nil)
}

// waitForStatus polls the snapshot until the machine reports status or the
// deadline passes.
func waitForStatus(t *testing.T, m *Machine, want domain.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Snapshot().Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("machine never reached %s, stuck at %s", want, m.Snapshot().Status)
}

func TestMachine_AcceptFromWaiting(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	if err := m.Accept(context.Background(), "driver-1"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	snap := m.Snapshot()
	if snap.Status != domain.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", snap.Status)
	}
	if snap.DriverID != "driver-1" {
		t.Fatalf("expected driver-1 assigned, got %q", snap.DriverID)
	}
	if sink.lastPersisted() == nil {
		t.Fatal("accept must persist")
	}
}

func TestMachine_AcceptRace_ExactlyOneWinner(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	const drivers = 16
	var winners int32
	var losers int32
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := m.Accept(context.Background(), fmt.Sprintf("driver-%d", n))
			switch {
			case err == nil:
				atomic.AddInt32(&winners, 1)
			case errors.Is(err, ErrInvalidTransition):
				atomic.AddInt32(&losers, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}
	if losers != drivers-1 {
		t.Fatalf("expected %d losers, got %d", drivers-1, losers)
	}

	snap := m.Snapshot()
	if snap.Status != domain.StatusAccepted || snap.DriverID == "" {
		t.Fatalf("inconsistent final state: %s driver=%q", snap.Status, snap.DriverID)
	}
}

func TestMachine_FullLifecycle(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	ctx := context.Background()

	if err := m.Accept(ctx, "driver-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := m.Snapshot()
	if snap.Status != domain.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", snap.Status)
	}
	if snap.Phase != domain.PhaseToDestination {
		t.Fatalf("start must flip the phase, got %s", snap.Phase)
	}
	if len(snap.Route) != 0 {
		t.Fatal("start must clear the pickup-leg route")
	}

	if err := m.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("machine did not unwind after completion")
	}
	if got := m.Snapshot().Status; got != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got)
	}
}

func TestMachine_InvalidTransitions(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")
	ctx := context.Background()

	if err := m.Start(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start from WAITING should fail, got %v", err)
	}
	if err := m.Complete(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete from WAITING should fail, got %v", err)
	}
}

func TestMachine_CommandsAfterTerminal(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	ctx := context.Background()

	if err := m.Cancel(ctx, "changed my mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	<-m.Done()

	if err := m.Accept(ctx, "driver-1"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	snap := m.Snapshot()
	if snap.Status != domain.StatusCancelled || snap.CancelReason != "changed my mind" {
		t.Fatalf("unexpected final state: %s %q", snap.Status, snap.CancelReason)
	}
}

func TestMachine_LateCallersNeverHang(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	ctx := context.Background()

	if err := m.Cancel(ctx, "rider left"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	<-m.Done()
	// Give the run goroutine time to fully unwind before the late calls.
	time.Sleep(300 * time.Millisecond)

	const callers = 32
	results := make(chan error, callers*2)
	for i := 0; i < callers; i++ {
		go func() { results <- m.Accept(context.Background(), "driver-late") }()
		go func() {
			snap := m.Snapshot()
			if snap.Status != domain.StatusCancelled {
				results <- fmt.Errorf("snapshot after unwind: %s", snap.Status)
				return
			}
			results <- ErrSessionClosed
		}()
	}

	watchdog := time.After(3 * time.Second)
	for i := 0; i < callers*2; i++ {
		select {
		case err := <-results:
			if !errors.Is(err, ErrSessionClosed) {
				t.Fatalf("late caller got %v, want ErrSessionClosed", err)
			}
		case <-watchdog:
			t.Fatal("call on an unwound machine never returned")
		}
	}
}

func TestMachine_StartKeepsPickupArrivalFact(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	ctx := context.Background()

	if err := m.Accept(ctx, "driver-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	m.ApplyLocation(domain.LocationSample{
		DriverID: "driver-1", Position: testPickup,
		Status: domain.DriverStatusOnline, CapturedAt: time.Now(),
	})
	deadline := time.Now().Add(2 * time.Second)
	for !m.Snapshot().DriverArrived {
		if time.Now().After(deadline) {
			t.Fatal("DriverArrived never set")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap := m.Snapshot()
	if !snap.DriverArrived {
		t.Fatal("start must keep the pickup-arrival fact")
	}
	if snap.DestArrived {
		t.Fatal("start must re-arm destination arrival")
	}

	if err := m.Complete(ctx); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestMachine_StatusMerge_MonotonicUnderShuffle(t *testing.T) {
	// Whatever order the feed delivers in, the highest-priority status
	// observed so far must win.
	statuses := []domain.SessionStatus{
		domain.StatusPending,
		domain.StatusWaiting,
		domain.StatusAccepted,
		domain.StatusInProgress,
	}
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		shuffled := make([]domain.SessionStatus, len(statuses))
		copy(shuffled, statuses)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		sink := &recordingSink{}
		m := newTestMachine(domain.StatusPending, sink)

		maxSeen := domain.StatusPending
		for _, st := range shuffled {
			m.ApplyStatus(st)
			if st.Priority() > maxSeen.Priority() {
				maxSeen = st
			}
		}
		waitForStatus(t, m, maxSeen)
		m.Cancel(context.Background(), "trial done")
	}
}

func TestMachine_StatusMerge_DropsStale(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	if err := m.Accept(context.Background(), "driver-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// A late WAITING replay must not roll the session back.
	m.ApplyStatus(domain.StatusWaiting)
	time.Sleep(50 * time.Millisecond)
	if got := m.Snapshot().Status; got != domain.StatusAccepted {
		t.Fatalf("stale status rolled session back to %s", got)
	}
}

func TestMachine_StatusMerge_DuplicateIsNoop(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	before := atomic.LoadInt32(&sink.PersistCalls)
	m.ApplyStatus(domain.StatusWaiting)
	m.ApplyStatus(domain.StatusWaiting)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&sink.PersistCalls); got != before {
		t.Fatalf("duplicate status caused %d persists", got-before)
	}
}

func TestMachine_TerminalStatusesDoNotOverwriteEachOther(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)

	if err := m.Cancel(context.Background(), "rider cancelled"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	<-m.Done()

	m.ApplyStatus(domain.StatusCompleted)
	time.Sleep(150 * time.Millisecond)
	if got := m.Snapshot().Status; got != domain.StatusCancelled {
		t.Fatalf("terminal status overwritten: %s", got)
	}
}

func TestMachine_InProgressEchoFlipsPhase(t *testing.T) {
	// The passenger side learns about trip start through the feed, not a
	// local command; the phase must flip all the same.
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	m.ApplyRecord(domain.StatusAccepted, "driver-1", nil)
	m.ApplyStatus(domain.StatusInProgress)
	waitForStatus(t, m, domain.StatusInProgress)

	snap := m.Snapshot()
	if snap.Phase != domain.PhaseToDestination {
		t.Fatalf("expected TO_DESTINATION after feed echo, got %s", snap.Phase)
	}
	if snap.DriverID != "driver-1" {
		t.Fatalf("expected driver from record, got %q", snap.DriverID)
	}
}

func TestMachine_AdoptsPublishedRoute(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	path := route.StraightLine(testPickup, testDest)
	m.AdoptRoute(path)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.Snapshot().Route) == len(path) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(m.Snapshot().Route); got != len(path) {
		t.Fatalf("route not adopted: %d points", got)
	}

	// Re-publishing the identical route must not trigger another flush.
	before := atomic.LoadInt32(&sink.PersistCalls)
	m.AdoptRoute(path)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&sink.PersistCalls); got != before {
		t.Fatal("duplicate route publish caused a flush")
	}
}

func TestMachine_LocationDrivesArrival(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")
	ctx := context.Background()

	if err := m.Accept(ctx, "driver-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	var note *Note
	notes := make(chan Note, 16)
	go func() {
		for n := range m.Notes() {
			notes <- n
		}
	}()

	// Approach the pickup, then land inside the geofence.
	approach := geo.Point{Lat: testPickup.Lat + 0.01, Lng: testPickup.Lng}
	m.ApplyLocation(domain.LocationSample{
		DriverID: "driver-1", Position: approach,
		Status: domain.DriverStatusOnline, CapturedAt: time.Now(),
	})
	m.ApplyLocation(domain.LocationSample{
		DriverID: "driver-1", Position: testPickup,
		Status: domain.DriverStatusOnline, CapturedAt: time.Now().Add(time.Second),
	})

	deadline := time.After(2 * time.Second)
	for note == nil {
		select {
		case n := <-notes:
			if n.Kind == NoteDriverArrived {
				note = &n
			}
		case <-deadline:
			t.Fatal("driver-arrived note never delivered")
		}
	}

	snap := m.Snapshot()
	if !snap.DriverArrived {
		t.Fatal("DriverArrived flag not set")
	}
	if len(snap.Route) == 0 {
		t.Fatal("location handling should have planned a route")
	}
}

func TestMachine_IgnoresForeignAndStaleLocations(t *testing.T) {
	sink := &recordingSink{}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")
	ctx := context.Background()

	if err := m.Accept(ctx, "driver-1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// A different driver's sample must not touch this session.
	m.ApplyLocation(domain.LocationSample{
		DriverID: "driver-9", Position: testPickup,
		Status: domain.DriverStatusOnline, CapturedAt: time.Now(),
	})
	time.Sleep(50 * time.Millisecond)
	if m.Snapshot().DriverArrived {
		t.Fatal("foreign driver sample triggered arrival")
	}

	// An out-of-order older sample is dropped.
	now := time.Now()
	far := geo.Point{Lat: testPickup.Lat + 0.01, Lng: testPickup.Lng}
	m.ApplyLocation(domain.LocationSample{
		DriverID: "driver-1", Position: far,
		Status: domain.DriverStatusOnline, CapturedAt: now,
	})
	m.ApplyLocation(domain.LocationSample{
		DriverID: "driver-1", Position: testPickup,
		Status: domain.DriverStatusOnline, CapturedAt: now.Add(-time.Minute),
	})
	time.Sleep(50 * time.Millisecond)
	if m.Snapshot().DriverArrived {
		t.Fatal("stale sample triggered arrival")
	}
}

func TestMachine_PersistFailureDoesNotBlockTransitions(t *testing.T) {
	sink := &recordingSink{PersistError: errors.New("db down")}
	m := newTestMachine(domain.StatusWaiting, sink)
	defer m.Cancel(context.Background(), "test done")

	if err := m.Accept(context.Background(), "driver-1"); err != nil {
		t.Fatalf("accept should succeed despite persist failure: %v", err)
	}
	if got := m.Snapshot().Status; got != domain.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %s", got)
	}
}
