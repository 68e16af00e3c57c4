package feed

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus used for single-node deployments and
// tests. Subscribers with full buffers drop events rather than block the
// publisher; the feed contract is at-least-once with stale rejection, so
// consumers already tolerate gaps and replays.
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan Event)}
}

// Publish fans the event out to every subscriber.
func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered subscriber channel.
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, 256)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel
}
