// Package lifecycle drives a job from posting through completion. It enforces
// the job state machine, the bidding rules and the financial bookkeeping that
// happens at activation and completion.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/accounts"
	"github.com/kiranshivaraju/skybid/internal/fees"
	"github.com/kiranshivaraju/skybid/internal/gateway"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/internal/telemetry"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	maxTitleLength = 200

	defaultHoldDuration   = 48 * time.Hour
	defaultGatewayTimeout = 10 * time.Second
)

// JobDraft is the client's input when posting a job.
type JobDraft struct {
	Title       string
	Description string
	Location    string
	Deadline    *time.Time
	Budget      decimal.Decimal
	JobType     models.JobType
}

// CreateJobResult is a newly posted job and the fee the client must pay to
// activate it.
type CreateJobResult struct {
	Job        *models.Job
	PostingFee decimal.Decimal
}

// JobDetailsPatch holds the descriptive fields a client may edit before the
// job is paid for. Nil fields are left unchanged.
type JobDetailsPatch struct {
	Title       *string
	Description *string
	Location    *string
	Deadline    *time.Time
}

// BidDraft is a pilot's offer.
type BidDraft struct {
	Proposal                string
	BidAmount               decimal.Decimal
	EstimatedCompletionDays *int
}

// CompletionInput is the client's optional feedback on a finished job.
type CompletionInput struct {
	Rating *int
	Review *string
}

// CompletionResult is the completed job with the settlement it booked.
type CompletionResult struct {
	Job         *models.Job
	Transaction *models.Transaction
	Transfer    *models.ScheduledTransfer
}

// Manager implements the job lifecycle operations.
type Manager struct {
	store    store.Store
	gateway  gateway.Gateway
	accounts accounts.Lookup
	policy   fees.Policy

	now            func() time.Time
	holdDuration   time.Duration
	gatewayTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithHoldDuration sets how long a completed job's payout is held before the
// settlement batch may release it.
func WithHoldDuration(d time.Duration) Option {
	return func(m *Manager) { m.holdDuration = d }
}

// WithGatewayTimeout bounds each payment verification call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(m *Manager) { m.gatewayTimeout = d }
}

// NewManager creates a Manager.
func NewManager(st store.Store, gw gateway.Gateway, lookup accounts.Lookup, policy fees.Policy, opts ...Option) *Manager {
	m := &Manager{
		store:          st,
		gateway:        gw,
		accounts:       lookup,
		policy:         policy,
		now:            func() time.Time { return time.Now().UTC() },
		holdDuration:   defaultHoldDuration,
		gatewayTimeout: defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateJob validates a draft and stores it as a pending_payment job. The
// commission rate in force right now is frozen onto the job.
func (m *Manager) CreateJob(ctx context.Context, clientID uuid.UUID, d JobDraft) (*CreateJobResult, error) {
	const op = "create job"
	now := m.now()

	title := strings.TrimSpace(d.Title)
	if title == "" {
		return nil, newErrorf(op, ErrInvalidInput, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, newErrorf(op, ErrInvalidInput, "title must be at most %d characters", maxTitleLength)
	}
	if !d.JobType.Valid() {
		return nil, newErrorf(op, ErrUnknownJobType, "%q", d.JobType)
	}
	if !wholeCents(d.Budget) {
		return nil, newErrorf(op, ErrInvalidInput, "budget %s has sub-cent precision", d.Budget)
	}
	if d.Budget.LessThan(m.policy.MinBudget) {
		return nil, newErrorf(op, ErrBudgetTooLow, "%s < %s", d.Budget.StringFixed(2), m.policy.MinBudget.StringFixed(2))
	}
	if d.Deadline != nil && d.Deadline.Before(now) {
		return nil, newErrorf(op, ErrInvalidInput, "deadline is in the past")
	}

	fee, err := m.policy.PostingFee(d.JobType)
	if err != nil {
		return nil, wrapError(op, ErrUnknownJobType, err)
	}
	rate, err := m.policy.CommissionRate(d.JobType)
	if err != nil {
		return nil, wrapError(op, ErrUnknownJobType, err)
	}

	job := &models.Job{
		ID:             uuid.New(),
		ClientID:       clientID,
		Title:          title,
		Description:    d.Description,
		Location:       d.Location,
		Deadline:       d.Deadline,
		Budget:         d.Budget,
		JobType:        d.JobType,
		CommissionRate: rate,
		PostingFee:     fee,
		Status:         models.JobStatusPendingPayment,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	telemetry.JobTransitions.WithLabelValues(string(job.Status)).Inc()
	slog.Info("job created", "job_id", job.ID, "client_id", clientID, "job_type", job.JobType)
	return &CreateJobResult{Job: job, PostingFee: fee}, nil
}

// UpdateJobDetails edits the descriptive fields of an unpaid job.
func (m *Manager) UpdateJobDetails(ctx context.Context, jobID, callerID uuid.UUID, p JobDetailsPatch) (*models.Job, error) {
	const op = "update job"

	job, err := m.ownedJob(ctx, op, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPendingPayment {
		return nil, newErrorf(op, ErrInvalidStateTransition, "job is %s", job.Status)
	}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
			return nil, newErrorf(op, ErrInvalidInput, "title must be 1 to %d characters", maxTitleLength)
		}
		job.Title = title
	}
	if p.Description != nil {
		job.Description = *p.Description
	}
	if p.Location != nil {
		job.Location = *p.Location
	}
	if p.Deadline != nil {
		if p.Deadline.Before(m.now()) {
			return nil, newErrorf(op, ErrInvalidInput, "deadline is in the past")
		}
		job.Deadline = p.Deadline
	}
	job.UpdatedAt = m.now()

	if err := m.store.UpdateJobDetails(ctx, job); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, newError(op, ErrJobNotFound)
		case errors.Is(err, store.ErrConflict):
			return nil, newError(op, ErrInvalidStateTransition)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

// ActivateJob confirms the posting fee with the funds gateway and opens the
// job for bidding. Replaying an activation with the reference that already
// opened the job returns the job unchanged.
func (m *Manager) ActivateJob(ctx context.Context, jobID, callerID uuid.UUID, paymentRef string) (*models.Job, error) {
	const op = "activate job"

	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, newErrorf(op, ErrInvalidInput, "payment reference is required")
	}

	job, err := m.ownedJob(ctx, op, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if done, err := activationReplay(op, job, paymentRef); done {
		if err != nil {
			return nil, err
		}
		return job, nil
	}

	vctx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()
	start := time.Now()
	v, err := m.gateway.VerifyPayment(vctx, paymentRef)
	observeGateway("verify", start, err)
	if err != nil {
		slog.Warn("payment verification failed", "job_id", jobID, "error", err)
		return nil, wrapError(op, ErrPaymentVerificationFailed, err)
	}
	if !v.Succeeded {
		return nil, newErrorf(op, ErrPaymentVerificationFailed, "payment %s did not succeed", paymentRef)
	}
	if !v.Amount.IsZero() && v.Amount.LessThan(job.PostingFee) {
		return nil, newErrorf(op, ErrPaymentVerificationFailed, "paid %s, posting fee is %s",
			v.Amount.StringFixed(2), job.PostingFee.StringFixed(2))
	}

	now := m.now()
	ref := paymentRef
	tx := &models.Transaction{
		ID:                 uuid.New(),
		Kind:               models.TransactionPostingFee,
		JobID:              job.ID,
		ClientID:           job.ClientID,
		TotalAmount:        job.PostingFee,
		PlatformFee:        job.PostingFee,
		PilotPayout:        decimal.Zero,
		CommissionRate:     job.CommissionRate,
		PaymentStatus:      models.PaymentStatusSucceeded,
		ExternalPaymentRef: &ref,
		CreatedAt:          now,
	}
	activated, err := m.store.ActivateJob(ctx, store.ActivateJobParams{
		JobID:       job.ID,
		PaymentRef:  paymentRef,
		Transaction: tx,
		At:          now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrDuplicateKey) {
			// Another activation won. Report it the way a replay would.
			current, gerr := m.store.GetJob(ctx, job.ID)
			if gerr != nil {
				return nil, fmt.Errorf("%s: %w", op, gerr)
			}
			if done, rerr := activationReplay(op, current, paymentRef); done && rerr == nil {
				return current, nil
			}
			return nil, newError(op, ErrInvalidStateTransition)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	telemetry.JobTransitions.WithLabelValues(string(activated.Status)).Inc()
	slog.Info("job activated", "job_id", activated.ID, "payment_ref", paymentRef)
	return activated, nil
}

// activationReplay reports whether job is past pending_payment, and if so
// whether that is a harmless replay of paymentRef (nil error) or a real
// state violation.
func activationReplay(op string, job *models.Job, paymentRef string) (bool, error) {
	if job.Status == models.JobStatusPendingPayment && !job.PostingFeePaid {
		return false, nil
	}
	if job.PostingFeePaid && job.PaymentRef != nil && *job.PaymentRef == paymentRef {
		return true, nil
	}
	return true, newErrorf(op, ErrInvalidStateTransition, "job is %s", job.Status)
}

// SubmitBid records a pilot's bid on an open job.
func (m *Manager) SubmitBid(ctx context.Context, jobID, pilotID uuid.UUID, d BidDraft) (*models.Bid, error) {
	const op = "submit bid"

	job, err := m.getJob(ctx, op, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID == pilotID {
		return nil, newError(op, ErrSelfBidNotAllowed)
	}
	if job.Status != models.JobStatusOpen {
		return nil, newErrorf(op, ErrJobNotOpen, "job is %s", job.Status)
	}
	if !wholeCents(d.BidAmount) {
		return nil, newErrorf(op, ErrInvalidInput, "bid amount %s has sub-cent precision", d.BidAmount)
	}
	if d.BidAmount.LessThan(m.policy.MinBid) {
		return nil, newErrorf(op, ErrBidTooLow, "%s < %s", d.BidAmount.StringFixed(2), m.policy.MinBid.StringFixed(2))
	}
	if d.EstimatedCompletionDays != nil && *d.EstimatedCompletionDays <= 0 {
		return nil, newErrorf(op, ErrInvalidInput, "estimated completion days must be positive")
	}

	permitted, err := m.accounts.IsBiddingPermitted(ctx, pilotID)
	if err != nil {
		slog.Warn("account status lookup failed", "pilot_id", pilotID, "error", err)
		return nil, wrapError(op, ErrAccountLookupFailed, err)
	}
	if !permitted {
		return nil, newError(op, ErrBiddingNotPermitted)
	}

	now := m.now()
	bid := &models.Bid{
		ID:                      uuid.New(),
		JobID:                   jobID,
		PilotID:                 pilotID,
		Proposal:                d.Proposal,
		BidAmount:               d.BidAmount,
		EstimatedCompletionDays: d.EstimatedCompletionDays,
		Status:                  models.BidStatusPending,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := m.store.CreateBid(ctx, bid); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateKey):
			return nil, newError(op, ErrDuplicateBid)
		case errors.Is(err, store.ErrConflict):
			return nil, newError(op, ErrJobNotOpen)
		case errors.Is(err, store.ErrNotFound):
			return nil, newError(op, ErrJobNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	telemetry.BidsSubmitted.Inc()
	slog.Info("bid submitted", "job_id", jobID, "bid_id", bid.ID, "pilot_id", pilotID)
	return bid, nil
}

// AcceptBid assigns the job to the bid's pilot. Exactly one of any number of
// concurrent calls for the same job succeeds. The losers get
// ErrJobAlreadyAssigned and nothing they did is written.
func (m *Manager) AcceptBid(ctx context.Context, jobID, bidID, callerID uuid.UUID) (*models.Job, error) {
	const op = "accept bid"

	job, err := m.ownedJob(ctx, op, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if err := notOpenError(op, job); err != nil {
		return nil, err
	}

	bid, err := m.store.GetBid(ctx, bidID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(op, ErrBidNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if bid.JobID != jobID {
		return nil, newError(op, ErrBidNotFound)
	}
	if bid.Status != models.BidStatusPending {
		// A rival acceptance rejects every other bid, so report the job state
		// when the job has moved on since it was read above.
		if current, gerr := m.store.GetJob(ctx, jobID); gerr == nil {
			if nerr := notOpenError(op, current); nerr != nil {
				return nil, nerr
			}
		}
		return nil, newErrorf(op, ErrInvalidStateTransition, "bid is %s", bid.Status)
	}

	accepted, err := m.store.AcceptBid(ctx, jobID, bidID, m.now())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, newError(op, ErrBidNotFound)
		case errors.Is(err, store.ErrConflict):
			telemetry.AcceptConflicts.Inc()
			current, gerr := m.store.GetJob(ctx, jobID)
			if gerr != nil {
				return nil, fmt.Errorf("%s: %w", op, gerr)
			}
			if nerr := notOpenError(op, current); nerr != nil {
				return nil, nerr
			}
			return nil, newError(op, ErrJobAlreadyAssigned)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.checkSingleAccepted(ctx, jobID)
	telemetry.JobTransitions.WithLabelValues(string(accepted.Status)).Inc()
	slog.Info("bid accepted", "job_id", jobID, "bid_id", bidID, "pilot_id", bid.PilotID)
	return accepted, nil
}

// notOpenError explains why a job cannot take an assignment, or returns nil
// if it is open.
func notOpenError(op string, job *models.Job) error {
	switch job.Status {
	case models.JobStatusOpen:
		return nil
	case models.JobStatusInProgress, models.JobStatusCompleted:
		return newError(op, ErrJobAlreadyAssigned)
	default:
		return newErrorf(op, ErrJobNotOpen, "job is %s", job.Status)
	}
}

// checkSingleAccepted re-reads the bids after an acceptance. More than one
// accepted bid can only mean the storage guarantees were bypassed.
func (m *Manager) checkSingleAccepted(ctx context.Context, jobID uuid.UUID) {
	bids, err := m.store.ListBidsForJob(ctx, jobID)
	if err != nil {
		slog.Warn("post-accept bid check failed", "job_id", jobID, "error", err)
		return
	}
	accepted := 0
	for _, b := range bids {
		if b.Status == models.BidStatusAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		m.flag(ctx, "job", jobID, fmt.Sprintf("job has %d accepted bids", accepted))
	}
}

// CompleteJob closes an in-progress job, books the commission split and
// schedules the pilot payout. If the split would not conserve money the job is
// flagged for reconciliation and nothing financial is written.
func (m *Manager) CompleteJob(ctx context.Context, jobID, callerID uuid.UUID, in CompletionInput) (*CompletionResult, error) {
	const op = "complete job"

	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, newErrorf(op, ErrInvalidInput, "rating must be between 1 and 5")
	}

	job, err := m.ownedJob(ctx, op, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusInProgress {
		return nil, newErrorf(op, ErrInvalidStateTransition, "job is %s", job.Status)
	}
	if job.AcceptedBidID == nil || job.AssignedPilotID == nil {
		m.flag(ctx, "job", jobID, "in-progress job has no accepted bid")
		return nil, newErrorf(op, ErrInvariantViolation, "job has no accepted bid")
	}

	bid, err := m.store.GetBid(ctx, *job.AcceptedBidID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.flag(ctx, "job", jobID, "accepted bid is missing")
			return nil, newErrorf(op, ErrInvariantViolation, "accepted bid is missing")
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	split, err := fees.SplitAmount(bid.BidAmount, job.CommissionRate)
	if err == nil && !split.Conserved() {
		err = fmt.Errorf("fee %s + payout %s != %s", split.PlatformFee, split.PilotPayout, split.Amount)
	}
	if err != nil {
		m.flag(ctx, "job", jobID, fmt.Sprintf("settlement split rejected: %v", err))
		return nil, wrapError(op, ErrInvariantViolation, err)
	}

	now := m.now()
	pilotID := *job.AssignedPilotID
	tx := &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TransactionCompletionSettlement,
		JobID:          job.ID,
		PilotID:        &pilotID,
		ClientID:       job.ClientID,
		TotalAmount:    split.Amount,
		PlatformFee:    split.PlatformFee,
		PilotPayout:    split.PilotPayout,
		CommissionRate: job.CommissionRate,
		PaymentStatus:  models.PaymentStatusPending,
		CreatedAt:      now,
	}
	tr := &models.ScheduledTransfer{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		JobID:         job.ID,
		PilotID:       pilotID,
		Amount:        split.PilotPayout,
		ScheduledFor:  now.Add(m.holdDuration),
		Status:        models.TransferStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	completed, err := m.store.CompleteJob(ctx, store.CompleteJobParams{
		JobID:       job.ID,
		Rating:      in.Rating,
		Review:      in.Review,
		Transaction: tx,
		Transfer:    tr,
		At:          now,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrDuplicateKey) {
			return nil, newError(op, ErrInvalidStateTransition)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	telemetry.JobTransitions.WithLabelValues(string(completed.Status)).Inc()
	slog.Info("job completed",
		"job_id", job.ID,
		"amount", split.Amount.StringFixed(2),
		"platform_fee", split.PlatformFee.StringFixed(2),
		"pilot_payout", split.PilotPayout.StringFixed(2),
		"transfer_id", tr.ID,
		"scheduled_for", tr.ScheduledFor,
	)
	return &CompletionResult{Job: completed, Transaction: tx, Transfer: tr}, nil
}

// CancelJob withdraws a job that has not been assigned. Pending bids on it
// are rejected.
func (m *Manager) CancelJob(ctx context.Context, jobID, callerID uuid.UUID) (*models.Job, error) {
	const op = "cancel job"

	job, err := m.ownedJob(ctx, op, jobID, callerID)
	if err != nil {
		return nil, err
	}
	if !job.Status.CanTransition(models.JobStatusCancelled) {
		return nil, newErrorf(op, ErrInvalidStateTransition, "job is %s", job.Status)
	}

	cancelled, err := m.store.CancelJob(ctx, jobID, m.now())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, newError(op, ErrInvalidStateTransition)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	telemetry.JobTransitions.WithLabelValues(string(cancelled.Status)).Inc()
	slog.Info("job cancelled", "job_id", jobID)
	return cancelled, nil
}

// GetJob returns a job by ID.
func (m *Manager) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return m.getJob(ctx, "get job", jobID)
}

// ListBidsForJob returns every bid on a job, oldest first.
func (m *Manager) ListBidsForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Bid, error) {
	const op = "list bids"
	if _, err := m.getJob(ctx, op, jobID); err != nil {
		return nil, err
	}
	bids, err := m.store.ListBidsForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bids, nil
}

// ListTransactionsForJob returns the ledger records of a job to its client or
// its assigned pilot.
func (m *Manager) ListTransactionsForJob(ctx context.Context, jobID, callerID uuid.UUID) ([]*models.Transaction, error) {
	const op = "list transactions"

	job, err := m.getJob(ctx, op, jobID)
	if err != nil {
		return nil, err
	}
	isPilot := job.AssignedPilotID != nil && *job.AssignedPilotID == callerID
	if job.ClientID != callerID && !isPilot {
		return nil, newError(op, ErrNotJobOwner)
	}

	txs, err := m.store.ListTransactionsForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return txs, nil
}

// RevenueSummary aggregates the ledger since the given time.
func (m *Manager) RevenueSummary(ctx context.Context, since time.Time) ([]models.RevenueSummary, error) {
	summary, err := m.store.RevenueSummary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("revenue summary: %w", err)
	}
	return summary, nil
}

func (m *Manager) getJob(ctx context.Context, op string, jobID uuid.UUID) (*models.Job, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(op, ErrJobNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return job, nil
}

func (m *Manager) ownedJob(ctx context.Context, op string, jobID, callerID uuid.UUID) (*models.Job, error) {
	job, err := m.getJob(ctx, op, jobID)
	if err != nil {
		return nil, err
	}
	if job.ClientID != callerID {
		return nil, newError(op, ErrNotJobOwner)
	}
	return job, nil
}

// flag records a reconciliation flag. A failure to flag is logged and does not
// change the outcome of the calling operation.
func (m *Manager) flag(ctx context.Context, entity string, id uuid.UUID, reason string) {
	telemetry.ReconciliationFlags.WithLabelValues(entity).Inc()
	slog.Error("flagging for reconciliation", "entity", entity, "entity_id", id, "reason", reason)

	err := m.store.FlagForReconciliation(ctx, &models.ReconciliationFlag{
		ID:         uuid.New(),
		EntityKind: entity,
		EntityID:   id,
		Reason:     reason,
		CreatedAt:  m.now(),
	})
	if err != nil {
		slog.Error("failed to write reconciliation flag", "entity", entity, "entity_id", id, "error", err)
	}
}

func observeGateway(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.GatewayLatency.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
