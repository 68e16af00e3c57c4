package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis. The session lock
// serializes acceptance so a session can only ever gain one driver even
// across multiple API instances.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireSessionLock attempts to acquire a lock for the given session.
// Returns true if the lock was acquired, false if already held.
func (s *LockStore) AcquireSessionLock(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:session:%s", sessionID)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseSessionLock releases the lock for the given session.
func (s *LockStore) ReleaseSessionLock(ctx context.Context, sessionID string) error {
	key := fmt.Sprintf("lock:session:%s", sessionID)

	return s.client.Del(ctx, key).Err()
}
