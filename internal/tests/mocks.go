package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK SESSION REPOSITORY
// ──────────────────────────────────────────────

// MockSessionRepository is a mock implementation of SessionRepository.
type MockSessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.RideSession

	// Counters for verification
	CreateCallCount int32
	UpdateCallCount int32

	// Error injection
	CreateError error
	UpdateError error
}

// NewMockSessionRepository creates a new mock session repository.
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[string]*domain.RideSession),
	}
}

// AddSession seeds a session into the mock repository.
func (m *MockSessionRepository) AddSession(s *domain.RideSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
}

func (m *MockSessionRepository) Create(ctx context.Context, s *domain.RideSession) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*domain.RideSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MockSessionRepository) Update(ctx context.Context, s *domain.RideSession) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return repository.ErrNotFound
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MockSessionRepository) ListActive(ctx context.Context) ([]*domain.RideSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.RideSession
	for _, s := range m.sessions {
		if !s.Status.Terminal() {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION REPOSITORY
// ──────────────────────────────────────────────

// MockLocationRepository is a mock implementation of LocationRepository.
type MockLocationRepository struct {
	mu      sync.RWMutex
	samples map[string]domain.LocationSample

	// Counters for verification
	UpsertCallCount int32

	// Error injection
	UpsertError error
}

// NewMockLocationRepository creates a new mock location repository.
func NewMockLocationRepository() *MockLocationRepository {
	return &MockLocationRepository{
		samples: make(map[string]domain.LocationSample),
	}
}

func (m *MockLocationRepository) Upsert(ctx context.Context, sample domain.LocationSample) (bool, error) {
	atomic.AddInt32(&m.UpsertCallCount, 1)
	if m.UpsertError != nil {
		return false, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.samples[sample.DriverID]; ok && !sample.NewerThan(prev) {
		return false, nil
	}
	m.samples[sample.DriverID] = sample
	return true, nil
}

func (m *MockLocationRepository) GetByDriverID(ctx context.Context, driverID string) (domain.LocationSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sample, ok := m.samples[driverID]
	if !ok {
		return domain.LocationSample{}, repository.ErrNotFound
	}
	return sample, nil
}

func (m *MockLocationRepository) SetStatus(ctx context.Context, driverID string, status domain.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample, ok := m.samples[driverID]
	if !ok {
		return repository.ErrNotFound
	}
	sample.Status = status
	m.samples[driverID] = sample
	return nil
}

// ──────────────────────────────────────────────
// MOCK LOCATION STORE (geo index)
// ──────────────────────────────────────────────

// MockLocationStore is a mock implementation of LocationStoreInterface.
type MockLocationStore struct {
	mu      sync.RWMutex
	samples map[string]domain.LocationSample

	// Counters for verification
	UpsertCallCount     int32
	FindNearbyCallCount int32

	// Error injection
	UpsertError     error
	FindNearbyError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{
		samples: make(map[string]domain.LocationSample),
	}
}

// SetSample seeds a driver position.
func (m *MockLocationStore) SetSample(sample domain.LocationSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[sample.DriverID] = sample
}

func (m *MockLocationStore) Upsert(ctx context.Context, sample domain.LocationSample) (bool, error) {
	atomic.AddInt32(&m.UpsertCallCount, 1)
	if m.UpsertError != nil {
		return false, m.UpsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.samples[sample.DriverID]; ok && !sample.NewerThan(prev) {
		return false, nil
	}
	m.samples[sample.DriverID] = sample
	return true, nil
}

func (m *MockLocationStore) FindNearby(ctx context.Context, center geo.Point, radiusKm float64) ([]redis.NearbyDriver, error) {
	atomic.AddInt32(&m.FindNearbyCallCount, 1)
	if m.FindNearbyError != nil {
		return nil, m.FindNearbyError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []redis.NearbyDriver
	for id, sample := range m.samples {
		d := geo.HaversineKm(center, sample.Position)
		if d <= radiusKm {
			out = append(out, redis.NearbyDriver{DriverID: id, Position: sample.Position, DistanceKm: d})
		}
	}
	return out, nil
}

func (m *MockLocationStore) SetOffline(ctx context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample, ok := m.samples[driverID]
	if !ok {
		return nil
	}
	sample.Status = domain.DriverStatusOffline
	m.samples[driverID] = sample
	return nil
}

func (m *MockLocationStore) Status(ctx context.Context, driverID string) (domain.DriverStatus, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sample, ok := m.samples[driverID]
	if !ok {
		return "", false, nil
	}
	return sample.Status, true, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Counters for verification
	AcquireCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[sessionID] {
		return false, nil
	}
	m.locks[sessionID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseSessionLock(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, sessionID)
	return nil
}
