package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/feed"
	"ridehail/internal/observability"
)

const feedChannel = "feed:changes"

// FeedBus is a feed.Bus backed by Redis pub/sub. Pub/sub is fire-and-
// forget per subscriber, which matches the change-feed contract: consumers
// must already tolerate gaps, replays and reordering.
type FeedBus struct {
	client *redis.Client
	log    *slog.Logger
}

// NewFeedBus creates a Redis-backed change-feed bus.
func NewFeedBus(client *redis.Client, log *slog.Logger) *FeedBus {
	if log == nil {
		log = slog.Default()
	}
	return &FeedBus{client: client, log: log}
}

var _ feed.Bus = (*FeedBus)(nil)

// Publish serializes the event and publishes it on the feed channel.
func (b *FeedBus) Publish(ctx context.Context, ev feed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, feedChannel, data).Err(); err != nil {
		return err
	}
	observability.FeedEventsTotal.WithLabelValues(string(ev.Table), string(ev.Op)).Inc()
	return nil
}

// Subscribe starts a pub/sub subscription and decodes events onto the
// returned channel until cancel is called or the context ends.
func (b *FeedBus) Subscribe(ctx context.Context) (<-chan feed.Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	subCtx, cancel := context.WithCancel(ctx)

	pubsub := b.client.Subscribe(subCtx, feedChannel)
	out := make(chan feed.Event, 256)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev feed.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("dropping malformed feed event", "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-subCtx.Done():
					_ = pubsub.Close()
					return
				}
			}
		}
	}()

	return out, cancel
}
