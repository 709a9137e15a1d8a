// Package settlement releases held pilot payouts once their hold period has
// elapsed. Every release is idempotent on the transfer ID, so a batch that is
// re-run after a crash never pays twice.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/config"
	"github.com/kiranshivaraju/skybid/internal/gateway"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/internal/telemetry"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

var (
	ErrTransferNotFound  = errors.New("transfer not found")
	ErrTransferNotFailed = errors.New("only failed transfers can be rescheduled")
	ErrRetriesExhausted  = errors.New("transfer retries exhausted, manual reconciliation required")
)

// BatchResult counts the outcome of one settlement run.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type outcome string

const (
	outcomeSucceeded outcome = "succeeded"
	outcomeFailed    outcome = "failed"
	outcomeSkipped   outcome = "skipped"
)

// Processor runs settlement batches against the ledger store and the funds
// gateway.
type Processor struct {
	store   store.Store
	gateway gateway.Gateway
	cfg     config.SettlementConfig
	now     func() time.Time
}

// NewProcessor creates a Processor. now may be nil to use the wall clock.
func NewProcessor(st store.Store, gw gateway.Gateway, cfg config.SettlementConfig, now func() time.Time) *Processor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{store: st, gateway: gw, cfg: cfg, now: now}
}

// RunBatch releases every pending transfer due at or before now. Items are
// independent: a failing or slow item never changes the outcome of another.
// The returned error is only set when the due transfers could not be listed.
func (p *Processor) RunBatch(ctx context.Context, now time.Time) (BatchResult, error) {
	start := time.Now()
	defer func() {
		telemetry.SettlementBatchTime.Observe(time.Since(start).Seconds())
	}()

	due, err := p.store.ListDueTransfers(ctx, now, p.cfg.BatchSize)
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing due transfers: %w", err)
	}

	var (
		mu     sync.Mutex
		result BatchResult
		sem    = semaphore.NewWeighted(int64(p.concurrency()))
	)
	record := func(o outcome) {
		mu.Lock()
		defer mu.Unlock()
		result.Processed++
		switch o {
		case outcomeSucceeded:
			result.Succeeded++
		case outcomeFailed:
			result.Failed++
		case outcomeSkipped:
			result.Skipped++
		}
		telemetry.SettlementItems.WithLabelValues(string(o)).Inc()
	}

	for _, t := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled. Unstarted items stay pending for the next run.
			break
		}
		go func(t *models.ScheduledTransfer) {
			defer sem.Release(1)
			record(p.settle(ctx, t, now))
		}(t)
	}
	// Wait for in-flight items.
	_ = sem.Acquire(context.Background(), int64(p.concurrency()))

	slog.Info("settlement batch finished",
		"due", len(due),
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result, nil
}

// RunDue runs a batch for everything due at the processor's current time.
func (p *Processor) RunDue(ctx context.Context) (BatchResult, error) {
	return p.RunBatch(ctx, p.now())
}

func (p *Processor) concurrency() int {
	if p.cfg.Concurrency < 1 {
		return 1
	}
	return p.cfg.Concurrency
}

// settle claims, releases and records a single transfer.
func (p *Processor) settle(ctx context.Context, t *models.ScheduledTransfer, now time.Time) outcome {
	log := slog.With("transfer_id", t.ID, "job_id", t.JobID)

	claimed, err := p.store.ClaimTransfer(ctx, t.ID, now, p.cfg.ClaimLease)
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			log.Info("transfer claimed elsewhere, skipping")
		} else {
			log.Error("claiming transfer failed", "error", err)
		}
		return outcomeSkipped
	}

	job, err := p.store.GetJob(ctx, claimed.JobID)
	if err != nil {
		// Nothing was released. The lease expires and a later run retries.
		log.Error("loading job for transfer failed", "error", err)
		return outcomeFailed
	}

	ictx, cancel := context.WithTimeout(ctx, p.cfg.ItemTimeout)
	defer cancel()

	callStart := time.Now()
	release, err := p.gateway.ReleaseTransfer(ictx, gateway.ReleaseRequest{
		PilotID:        claimed.PilotID,
		Amount:         claimed.Amount,
		IdempotencyKey: claimed.ID.String(),
	})
	observeRelease(callStart, err)
	if err != nil {
		if _, ferr := p.store.FailTransfer(ctx, claimed.ID, err.Error(), p.now()); ferr != nil {
			log.Error("recording transfer failure failed", "error", ferr, "release_error", err)
		} else {
			log.Warn("transfer release failed", "error", err, "attempts", claimed.Attempts+1)
		}
		return outcomeFailed
	}

	ref := release.TransferRef
	pilotID := claimed.PilotID
	at := p.now()
	_, err = p.store.CompleteTransfer(ctx, store.CompleteTransferParams{
		TransferID:  claimed.ID,
		ExternalRef: ref,
		Transaction: &models.Transaction{
			ID:                 uuid.New(),
			Kind:               models.TransactionPayoutReleased,
			JobID:              claimed.JobID,
			PilotID:            &pilotID,
			ClientID:           job.ClientID,
			TotalAmount:        claimed.Amount,
			PlatformFee:        decimal.Zero,
			PilotPayout:        claimed.Amount,
			CommissionRate:     job.CommissionRate,
			PaymentStatus:      models.PaymentStatusSucceeded,
			ExternalPaymentRef: &ref,
			CreatedAt:          at,
		},
		At: at,
	})
	if err != nil {
		// The gateway has the money moving. The transfer stays pending, and the
		// replay after the lease expires gets the same receipt back.
		log.Error("recording released transfer failed", "error", err, "external_ref", ref)
		return outcomeFailed
	}

	log.Info("transfer released", "external_ref", ref, "amount", claimed.Amount.StringFixed(2))
	return outcomeSucceeded
}

// Reschedule moves a failed transfer back to pending. With a nil at the new
// due time backs off exponentially from the number of failed attempts.
func (p *Processor) Reschedule(ctx context.Context, transferID uuid.UUID, at *time.Time) (*models.ScheduledTransfer, error) {
	t, err := p.store.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("loading transfer: %w", err)
	}
	if t.Status != models.TransferStatusFailed {
		return nil, fmt.Errorf("%w: transfer is %s", ErrTransferNotFailed, t.Status)
	}

	now := p.now()
	if t.Attempts >= p.cfg.MaxAttempts {
		reason := fmt.Sprintf("transfer failed %d times, last error: %s", t.Attempts, deref(t.ErrorMessage))
		telemetry.ReconciliationFlags.WithLabelValues("transfer").Inc()
		if ferr := p.store.FlagForReconciliation(ctx, &models.ReconciliationFlag{
			ID:         uuid.New(),
			EntityKind: "transfer",
			EntityID:   t.ID,
			Reason:     reason,
			CreatedAt:  now,
		}); ferr != nil {
			slog.Error("failed to write reconciliation flag", "transfer_id", t.ID, "error", ferr)
		}
		return nil, ErrRetriesExhausted
	}

	when := now.Add(backoffWithJitter(p.cfg.BackoffInitial, p.cfg.BackoffMax, t.Attempts))
	if at != nil {
		when = at.UTC()
	}

	rescheduled, err := p.store.RescheduleTransfer(ctx, t.ID, when, now)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrTransferNotFailed
		}
		return nil, fmt.Errorf("rescheduling transfer: %w", err)
	}

	slog.Info("transfer rescheduled", "transfer_id", t.ID, "scheduled_for", when, "attempts", t.Attempts)
	return rescheduled, nil
}

func observeRelease(start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, gateway.ErrGatewayTimeout), errors.Is(err, context.DeadlineExceeded):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	telemetry.GatewayLatency.WithLabelValues("release", result).Observe(time.Since(start).Seconds())
}

// backoffWithJitter returns a wait between half and all of base*2^(attempt-1),
// capped at max.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	wait := time.Duration(exp)
	if wait > max || exp > float64(math.MaxInt64) {
		wait = max
	}
	if wait < 2 {
		return wait
	}
	jitter := time.Duration(rand.Int63n(int64(wait / 2)))
	return wait/2 + jitter
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
