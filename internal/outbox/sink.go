// Package outbox delivers events that the store wrote alongside each ledger
// change to the audit sinks. Delivery is at-least-once and in write order.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Sink receives audit events.
type Sink interface {
	Publish(ctx context.Context, ev *models.OutboxEvent) error
}

// RedisStreamSink appends events to a Redis stream, trimmed approximately to
// maxLen entries.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Publish(ctx context.Context, ev *models.OutboxEvent) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"event_id":     ev.ID.String(),
			"kind":         string(ev.Kind),
			"aggregate_id": ev.AggregateID.String(),
			"payload":      string(ev.Payload),
			"created_at":   ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs through logger, or the default logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, ev *models.OutboxEvent) error {
	s.logger.InfoContext(ctx, "audit event",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"aggregate_id", ev.AggregateID,
		"payload", string(ev.Payload),
	)
	return nil
}

// MultiSink publishes to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev *models.OutboxEvent) error {
	for _, s := range m {
		if err := s.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ Sink = (*RedisStreamSink)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = MultiSink(nil)
)
