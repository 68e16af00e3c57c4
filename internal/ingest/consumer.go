package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"ridehail/internal/domain"
	"ridehail/internal/observability"
)

// IngestFunc applies one decoded location sample.
type IngestFunc func(ctx context.Context, sample domain.LocationSample) error

// messageReader is the subset of kafka.Reader the consumer needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer drains the location topic and applies each sample through an
// IngestFunc, retrying transient failures with exponential backoff.
type Consumer struct {
	reader   messageReader
	ingest   IngestFunc
	log      *slog.Logger
	attempts int
	delay    time.Duration
}

// NewConsumer creates a Consumer reading from the given brokers, topic
// and consumer group.
func NewConsumer(brokers []string, topic, groupID string, ingest IngestFunc, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, ingest: ingest, log: log, attempts: 3, delay: 200 * time.Millisecond}
}

// Run consumes until ctx is cancelled. Read errors back off and retry;
// malformed messages are counted and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("kafka read failed", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		var sample domain.LocationSample
		if err := json.Unmarshal(m.Value, &sample); err != nil {
			observability.StaleUpdatesDropped.WithLabelValues("malformed").Inc()
			c.log.Warn("invalid location message", "error", err)
			continue
		}

		if err := c.apply(ctx, sample); err != nil {
			c.log.Error("location ingest failed", "driver_id", sample.DriverID, "error", err)
		}
	}
}

func (c *Consumer) apply(ctx context.Context, sample domain.LocationSample) error {
	delay := c.delay
	var err error
	for i := 0; i < c.attempts; i++ {
		if err = c.ingest(ctx, sample); err == nil {
			return nil
		}
		if i < c.attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
