package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/feed"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/route"
	"ridehail/internal/session"
)

// mockLocationStore is an in-memory LocationStoreInterface.
type mockLocationStore struct {
	mu       sync.Mutex
	nearby   []redis.NearbyDriver
	statuses map[string]domain.DriverStatus

	FindNearbyError error
}

func newMockLocationStore() *mockLocationStore {
	return &mockLocationStore{statuses: make(map[string]domain.DriverStatus)}
}

func (m *mockLocationStore) Upsert(ctx context.Context, sample domain.LocationSample) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[sample.DriverID] = sample.Status
	return true, nil
}

func (m *mockLocationStore) FindNearby(ctx context.Context, center geo.Point, radiusKm float64) ([]redis.NearbyDriver, error) {
	if m.FindNearbyError != nil {
		return nil, m.FindNearbyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]redis.NearbyDriver, len(m.nearby))
	copy(out, m.nearby)
	return out, nil
}

func (m *mockLocationStore) SetOffline(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[driverID] = domain.DriverStatusOffline
	return nil
}

func (m *mockLocationStore) Status(ctx context.Context, driverID string) (domain.DriverStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[driverID]
	return status, ok, nil
}

type nullSink struct{}

func (nullSink) Persist(ctx context.Context, s *domain.RideSession) error { return nil }
func (nullSink) PublishUpdate(ctx context.Context, s *domain.RideSession) {}

var pickup = geo.Point{Lat: 10.7730, Lng: 106.6583}

func TestCandidatesFor_FiltersOfflineDrivers(t *testing.T) {
	store := newMockLocationStore()
	store.nearby = []redis.NearbyDriver{
		{DriverID: "driver-online", DistanceKm: 1.2, Position: geo.Point{Lat: 10.78, Lng: 106.66}},
		{DriverID: "driver-offline", DistanceKm: 0.4, Position: geo.Point{Lat: 10.77, Lng: 106.66}},
	}
	store.statuses["driver-online"] = domain.DriverStatusOnline
	store.statuses["driver-offline"] = domain.DriverStatusOffline

	d := NewDispatcher(store, feed.NewMemoryBus(), Config{RadiusKm: 5}, nil)
	candidates, err := d.CandidatesFor(context.Background(), pickup)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].DriverID != "driver-online" {
		t.Fatalf("expected only the online driver, got %+v", candidates)
	}
	if candidates[0].ETASeconds <= 0 {
		t.Fatalf("expected positive ETA, got %f", candidates[0].ETASeconds)
	}
}

func TestCandidatesFor_SkipsUnknownDrivers(t *testing.T) {
	store := newMockLocationStore()
	store.nearby = []redis.NearbyDriver{
		{DriverID: "driver-ghost", DistanceKm: 0.5},
	}

	d := NewDispatcher(store, feed.NewMemoryBus(), Config{RadiusKm: 5}, nil)
	candidates, err := d.CandidatesFor(context.Background(), pickup)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates for drivers without status, got %+v", candidates)
	}
}

func TestCandidatesFor_PropagatesStoreError(t *testing.T) {
	store := newMockLocationStore()
	store.FindNearbyError = errors.New("redis down")

	d := NewDispatcher(store, feed.NewMemoryBus(), Config{RadiusKm: 5}, nil)
	if _, err := d.CandidatesFor(context.Background(), pickup); err == nil {
		t.Fatal("expected error when the geo index is unavailable")
	}
}

func TestView_OrdersByDistance(t *testing.T) {
	v := NewView(pickup, 5, 8)
	now := time.Now()

	v.Apply(domain.LocationSample{
		DriverID: "far", Position: geo.Point{Lat: pickup.Lat + 0.02, Lng: pickup.Lng},
		Status: domain.DriverStatusOnline, CapturedAt: now,
	})
	v.Apply(domain.LocationSample{
		DriverID: "near", Position: geo.Point{Lat: pickup.Lat + 0.005, Lng: pickup.Lng},
		Status: domain.DriverStatusOnline, CapturedAt: now,
	})

	cands := v.Candidates()
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].DriverID != "near" || cands[1].DriverID != "far" {
		t.Fatalf("wrong ordering: %+v", cands)
	}

	nearest, ok := v.Nearest()
	if !ok || nearest.DriverID != "near" {
		t.Fatalf("nearest wrong: %+v ok=%v", nearest, ok)
	}
}

func TestView_RemovesOfflineAndOutOfRadius(t *testing.T) {
	v := NewView(pickup, 2, 8)
	now := time.Now()

	v.Apply(domain.LocationSample{
		DriverID: "d1", Position: geo.Point{Lat: pickup.Lat + 0.005, Lng: pickup.Lng},
		Status: domain.DriverStatusOnline, CapturedAt: now,
	})
	if len(v.Candidates()) != 1 {
		t.Fatal("driver should be in the view")
	}

	// Going offline removes membership.
	v.Apply(domain.LocationSample{
		DriverID: "d1", Position: geo.Point{Lat: pickup.Lat + 0.005, Lng: pickup.Lng},
		Status: domain.DriverStatusOffline, CapturedAt: now.Add(time.Second),
	})
	if len(v.Candidates()) != 0 {
		t.Fatal("offline driver should leave the view")
	}

	// Far beyond a 2km radius never enters.
	v.Apply(domain.LocationSample{
		DriverID: "d2", Position: geo.Point{Lat: pickup.Lat + 0.5, Lng: pickup.Lng},
		Status: domain.DriverStatusOnline, CapturedAt: now,
	})
	if len(v.Candidates()) != 0 {
		t.Fatal("out-of-radius driver should not enter the view")
	}
}

func TestView_RejectsStaleSamples(t *testing.T) {
	v := NewView(pickup, 5, 8)
	now := time.Now()

	inside := geo.Point{Lat: pickup.Lat + 0.005, Lng: pickup.Lng}
	v.Apply(domain.LocationSample{
		DriverID: "d1", Position: inside,
		Status: domain.DriverStatusOnline, CapturedAt: now,
	})
	// An older OFFLINE sample must not evict the newer ONLINE one.
	v.Apply(domain.LocationSample{
		DriverID: "d1", Position: inside,
		Status: domain.DriverStatusOffline, CapturedAt: now.Add(-time.Minute),
	})
	if len(v.Candidates()) != 1 {
		t.Fatal("stale sample displaced a newer one")
	}
}

func TestLiveView_TracksFeedEvents(t *testing.T) {
	bus := feed.NewMemoryBus()
	d := NewDispatcher(newMockLocationStore(), bus, Config{RadiusKm: 5}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	view := d.LiveView(ctx, pickup)

	publish := func(driverID string, status domain.DriverStatus, at time.Time) {
		_ = bus.Publish(ctx, feed.Event{
			Table: feed.TableDriverLocations,
			Op:    feed.OpUpdate,
			Location: &feed.LocationRecord{
				DriverID: driverID,
				Latitude: pickup.Lat + 0.005, Longitude: pickup.Lng,
				Status: status, LastUpdated: at,
			},
		})
	}

	now := time.Now()
	publish("d1", domain.DriverStatusOnline, now)

	waitFor(t, func() bool { return len(view.Candidates()) == 1 })

	publish("d1", domain.DriverStatusOffline, now.Add(time.Second))
	waitFor(t, func() bool { return len(view.Candidates()) == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestWaitForAcceptance_ReturnsOnAccept(t *testing.T) {
	d := NewDispatcher(newMockLocationStore(), feed.NewMemoryBus(), Config{CandidateWait: 5 * time.Second}, nil)
	m := newWaitingMachine()
	defer m.Cancel(context.Background(), "test done")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = m.Accept(context.Background(), "driver-1")
	}()

	if err := d.WaitForAcceptance(context.Background(), m); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestWaitForAcceptance_TimesOutAndCancels(t *testing.T) {
	d := NewDispatcher(newMockLocationStore(), feed.NewMemoryBus(), Config{CandidateWait: 100 * time.Millisecond}, nil)
	m := newWaitingMachine()

	err := d.WaitForAcceptance(context.Background(), m)
	if !errors.Is(err, ErrNoDriverFound) {
		t.Fatalf("expected ErrNoDriverFound, got %v", err)
	}

	waitFor(t, func() bool { return m.Snapshot().Status == domain.StatusCancelled })
	if reason := m.Snapshot().CancelReason; reason != "no driver found" {
		t.Fatalf("unexpected cancel reason %q", reason)
	}
}

func newWaitingMachine() *session.Machine {
	state := &domain.RideSession{
		ID:          "sess-1",
		PassengerID: "passenger-1",
		Status:      domain.StatusWaiting,
		Phase:       domain.PhaseToPickup,
		Pickup:      pickup,
		Destination: geo.Point{Lat: 10.7823, Lng: 106.7012},
		CreatedAt:   time.Now(),
	}
	return session.NewMachine(state, route.NewPlanner(nil, 55, nil), nullSink{}, session.Config{}, nil)
}
