package settlement

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs a settlement batch on a fixed interval.
type Scheduler struct {
	processor *Processor
	interval  time.Duration
}

func NewScheduler(p *Processor, interval time.Duration) *Scheduler {
	return &Scheduler{processor: p, interval: interval}
}

// Run starts with an immediate batch and then one per interval until ctx is
// cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("settlement scheduler started", "interval", s.interval)
	for {
		if _, err := s.processor.RunDue(ctx); err != nil {
			slog.Error("settlement batch failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("settlement scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
