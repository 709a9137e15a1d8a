package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/internal/telemetry"
)

// Dispatcher moves pending outbox events to a Sink.
type Dispatcher struct {
	store     store.Store
	sink      Sink
	batchSize int
	interval  time.Duration
}

func NewDispatcher(st store.Store, sink Sink, batchSize int, interval time.Duration) *Dispatcher {
	return &Dispatcher{store: st, sink: sink, batchSize: batchSize, interval: interval}
}

// DispatchOnce delivers up to one batch of pending events and returns how many
// were delivered. A sink error stops the batch so later events are never
// delivered ahead of an earlier one. Events delivered before the error are
// still marked dispatched.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	events, err := d.store.ListPendingEvents(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("listing pending events: %w", err)
	}

	delivered := make([]uuid.UUID, 0, len(events))
	var sinkErr error
	for _, ev := range events {
		if err := d.sink.Publish(ctx, ev); err != nil {
			telemetry.OutboxFailures.Inc()
			sinkErr = fmt.Errorf("publishing event %s: %w", ev.ID, err)
			break
		}
		delivered = append(delivered, ev.ID)
	}

	if len(delivered) > 0 {
		if err := d.store.MarkEventsDispatched(ctx, delivered, time.Now().UTC()); err != nil {
			// They will be delivered again on the next run.
			return 0, fmt.Errorf("marking events dispatched: %w", err)
		}
		telemetry.OutboxDispatched.Add(float64(len(delivered)))
	}
	return len(delivered), sinkErr
}

// Run drains the outbox on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	slog.Info("outbox dispatcher started", "interval", d.interval, "batch_size", d.batchSize)
	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := d.DispatchOnce(ctx)
		if err != nil {
			slog.Warn("outbox dispatch failed", "delivered", n, "error", err)
			return
		}
		if n == 0 || n < d.batchSize {
			return
		}
	}
}
