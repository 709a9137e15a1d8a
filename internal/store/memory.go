package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

// MemoryStore is an in-process Store used by tests and local development. A
// single mutex plays the role of the database transaction: every method
// either applies all of its writes or none of them.
type MemoryStore struct {
	mu sync.Mutex

	apiKeys      map[uuid.UUID]*models.APIKey
	jobs         map[uuid.UUID]*models.Job
	bids         map[uuid.UUID]*models.Bid
	transfers    map[uuid.UUID]*models.ScheduledTransfer
	transactions []*models.Transaction
	events       []*models.OutboxEvent
	flags        []*models.ReconciliationFlag
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apiKeys:   make(map[uuid.UUID]*models.APIKey),
		jobs:      make(map[uuid.UUID]*models.Job),
		bids:      make(map[uuid.UUID]*models.Bid),
		transfers: make(map[uuid.UUID]*models.ScheduledTransfer),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- API Keys ---

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []*models.APIKey
	for _, k := range s.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			keys = append(keys, &c)
		}
	}
	return keys, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.apiKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
		k.UpdatedAt = now
	}
	return nil
}

func (s *MemoryStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.apiKeys {
		if k.ID == key.ID || k.KeyHash == key.KeyHash || (k.AccountID == key.AccountID && k.Name == key.Name) {
			return ErrDuplicateKey
		}
	}
	c := *key
	s.apiKeys[key.ID] = &c
	return nil
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	c := *job
	ev, err := jobStatusEvent(&c, "", c.CreatedAt)
	if err != nil {
		return err
	}
	s.jobs[job.ID] = &c
	s.appendEvents(ev)
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *j
	return &c, nil
}

func (s *MemoryStore) UpdateJobDetails(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if j.Status != models.JobStatusPendingPayment {
		return ErrConflict
	}
	j.Title = job.Title
	j.Description = job.Description
	j.Location = job.Location
	j.Deadline = job.Deadline
	j.UpdatedAt = job.UpdatedAt
	return nil
}

func (s *MemoryStore) ActivateJob(_ context.Context, p ActivateJobParams) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[p.JobID]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != models.JobStatusPendingPayment || j.PostingFeePaid {
		return nil, ErrConflict
	}
	if err := s.checkTransaction(p.Transaction); err != nil {
		return nil, err
	}

	next := *j
	next.Status = models.JobStatusOpen
	next.PostingFeePaid = true
	ref := p.PaymentRef
	next.PaymentRef = &ref
	next.UpdatedAt = p.At

	jobEv, err := jobStatusEvent(&next, j.Status, p.At)
	if err != nil {
		return nil, err
	}
	txEv, err := transactionEvent(p.Transaction)
	if err != nil {
		return nil, err
	}

	*j = next
	s.appendTransaction(p.Transaction)
	s.appendEvents(jobEv, txEv)
	c := next
	return &c, nil
}

func (s *MemoryStore) CancelJob(_ context.Context, jobID uuid.UUID, at time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if !j.Status.CanTransition(models.JobStatusCancelled) {
		return nil, ErrConflict
	}

	next := *j
	next.Status = models.JobStatusCancelled
	next.UpdatedAt = at
	jobEv, err := jobStatusEvent(&next, j.Status, at)
	if err != nil {
		return nil, err
	}
	rejected, events, err := s.planRejections(jobID, uuid.Nil, at)
	if err != nil {
		return nil, err
	}

	*j = next
	for _, b := range rejected {
		*s.bids[b.ID] = *b
	}
	s.appendEvents(append(events, jobEv)...)
	c := next
	return &c, nil
}

func (s *MemoryStore) AcceptBid(_ context.Context, jobID, bidID uuid.UUID, at time.Time) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[bidID]
	if !ok || bid.JobID != jobID {
		return nil, ErrNotFound
	}
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != models.JobStatusOpen || bid.Status != models.BidStatusPending {
		return nil, ErrConflict
	}

	nextJob := *j
	nextJob.Status = models.JobStatusInProgress
	pilotID, acceptedID := bid.PilotID, bid.ID
	nextJob.AssignedPilotID = &pilotID
	nextJob.AcceptedBidID = &acceptedID
	nextJob.UpdatedAt = at

	nextBid := *bid
	nextBid.Status = models.BidStatusAccepted
	nextBid.UpdatedAt = at

	rejected, events, err := s.planRejections(jobID, bidID, at)
	if err != nil {
		return nil, err
	}
	bidEv, err := bidStatusEvent(&nextBid, bid.Status, at)
	if err != nil {
		return nil, err
	}
	jobEv, err := jobStatusEvent(&nextJob, j.Status, at)
	if err != nil {
		return nil, err
	}

	*j = nextJob
	*bid = nextBid
	for _, b := range rejected {
		*s.bids[b.ID] = *b
	}
	s.appendEvents(append(events, bidEv, jobEv)...)
	c := nextJob
	return &c, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, p CompleteJobParams) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[p.JobID]
	if !ok {
		return nil, ErrNotFound
	}
	if j.Status != models.JobStatusInProgress {
		return nil, ErrConflict
	}
	if err := s.checkTransaction(p.Transaction); err != nil {
		return nil, err
	}
	if _, dup := s.transfers[p.Transfer.ID]; dup {
		return nil, ErrDuplicateKey
	}

	next := *j
	next.Status = models.JobStatusCompleted
	next.Rating = p.Rating
	next.Review = p.Review
	next.UpdatedAt = p.At

	tr := *p.Transfer
	jobEv, err := jobStatusEvent(&next, j.Status, p.At)
	if err != nil {
		return nil, err
	}
	txEv, err := transactionEvent(p.Transaction)
	if err != nil {
		return nil, err
	}
	trEv, err := transferStatusEvent(&tr, "", p.At)
	if err != nil {
		return nil, err
	}

	*j = next
	s.appendTransaction(p.Transaction)
	s.transfers[tr.ID] = &tr
	s.appendEvents(jobEv, txEv, trEv)
	c := next
	return &c, nil
}

// --- Bids ---

func (s *MemoryStore) CreateBid(_ context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[bid.JobID]
	if !ok {
		return ErrNotFound
	}
	if j.Status != models.JobStatusOpen {
		return ErrConflict
	}
	for _, b := range s.bids {
		if b.ID == bid.ID || (b.JobID == bid.JobID && b.PilotID == bid.PilotID) {
			return ErrDuplicateKey
		}
	}

	c := *bid
	ev, err := bidStatusEvent(&c, "", c.CreatedAt)
	if err != nil {
		return err
	}
	s.bids[c.ID] = &c
	s.appendEvents(ev)
	return nil
}

func (s *MemoryStore) GetBid(_ context.Context, id uuid.UUID) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *b
	return &c, nil
}

func (s *MemoryStore) ListBidsForJob(_ context.Context, jobID uuid.UUID) ([]*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bids := []*models.Bid{}
	for _, b := range s.bids {
		if b.JobID == jobID {
			c := *b
			bids = append(bids, &c)
		}
	}
	sort.Slice(bids, func(i, k int) bool {
		if bids[i].CreatedAt.Equal(bids[k].CreatedAt) {
			return bids[i].ID.String() < bids[k].ID.String()
		}
		return bids[i].CreatedAt.Before(bids[k].CreatedAt)
	})
	return bids, nil
}

// planRejections computes the rejected copies of every pending bid of the
// job except keep, without applying them.
func (s *MemoryStore) planRejections(jobID, keep uuid.UUID, at time.Time) ([]*models.Bid, []models.OutboxEvent, error) {
	var (
		rejected []*models.Bid
		events   []models.OutboxEvent
	)
	for _, b := range s.bids {
		if b.JobID != jobID || b.ID == keep || b.Status != models.BidStatusPending {
			continue
		}
		next := *b
		next.Status = models.BidStatusRejected
		next.UpdatedAt = at
		ev, err := bidStatusEvent(&next, b.Status, at)
		if err != nil {
			return nil, nil, err
		}
		rejected = append(rejected, &next)
		events = append(events, ev)
	}
	return rejected, events, nil
}

// --- Scheduled Transfers ---

func (s *MemoryStore) GetTransfer(_ context.Context, id uuid.UUID) (*models.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *MemoryStore) ListDueTransfers(_ context.Context, now time.Time, limit int) ([]*models.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*models.ScheduledTransfer
	for _, t := range s.transfers {
		if claimable(t, now) {
			c := *t
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].ScheduledFor.Equal(due[k].ScheduledFor) {
			return due[i].ID.String() < due[k].ID.String()
		}
		return due[i].ScheduledFor.Before(due[k].ScheduledFor)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func claimable(t *models.ScheduledTransfer, now time.Time) bool {
	return t.Status == models.TransferStatusPending &&
		!t.ScheduledFor.After(now) &&
		(t.LockedUntil == nil || !t.LockedUntil.After(now))
}

func (s *MemoryStore) ClaimTransfer(_ context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*models.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !claimable(t, now) {
		return nil, ErrConflict
	}
	until := now.Add(lease)
	t.LockedUntil = &until
	t.UpdatedAt = now
	c := *t
	return &c, nil
}

func (s *MemoryStore) CompleteTransfer(_ context.Context, p CompleteTransferParams) (*models.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[p.TransferID]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != models.TransferStatusPending {
		return nil, ErrConflict
	}
	if err := s.checkTransaction(p.Transaction); err != nil {
		return nil, err
	}

	next := *t
	next.Status = models.TransferStatusCompleted
	ref := p.ExternalRef
	next.ExternalTransferRef = &ref
	next.ErrorMessage = nil
	next.LockedUntil = nil
	next.UpdatedAt = p.At

	trEv, err := transferStatusEvent(&next, t.Status, p.At)
	if err != nil {
		return nil, err
	}
	txEv, err := transactionEvent(p.Transaction)
	if err != nil {
		return nil, err
	}

	*t = next
	s.appendTransaction(p.Transaction)
	s.appendEvents(trEv, txEv)
	c := next
	return &c, nil
}

func (s *MemoryStore) FailTransfer(_ context.Context, id uuid.UUID, reason string, at time.Time) (*models.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != models.TransferStatusPending {
		return nil, ErrConflict
	}

	next := *t
	next.Status = models.TransferStatusFailed
	next.ErrorMessage = &reason
	next.Attempts++
	next.LockedUntil = nil
	next.UpdatedAt = at

	ev, err := transferStatusEvent(&next, t.Status, at)
	if err != nil {
		return nil, err
	}
	*t = next
	s.appendEvents(ev)
	c := next
	return &c, nil
}

func (s *MemoryStore) RescheduleTransfer(_ context.Context, id uuid.UUID, scheduledFor, at time.Time) (*models.ScheduledTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != models.TransferStatusFailed {
		return nil, ErrConflict
	}

	next := *t
	next.Status = models.TransferStatusPending
	next.ScheduledFor = scheduledFor
	next.ErrorMessage = nil
	next.UpdatedAt = at

	ev, err := transferStatusEvent(&next, t.Status, at)
	if err != nil {
		return nil, err
	}
	*t = next
	s.appendEvents(ev)
	c := next
	return &c, nil
}

// --- Transactions ---

// checkTransaction mirrors the table constraints on transactions.
func (s *MemoryStore) checkTransaction(t *models.Transaction) error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.Kind == models.TransactionCompletionSettlement && !t.Balanced() {
		return ErrConflict
	}
	for _, existing := range s.transactions {
		if existing.ID == t.ID {
			return ErrDuplicateKey
		}
		if existing.JobID == t.JobID && existing.Kind == t.Kind && t.Kind != models.TransactionPayoutReleased {
			return ErrDuplicateKey
		}
	}
	return nil
}

func (s *MemoryStore) appendTransaction(t *models.Transaction) {
	c := *t
	s.transactions = append(s.transactions, &c)
}

func (s *MemoryStore) ListTransactionsForJob(_ context.Context, jobID uuid.UUID) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := []*models.Transaction{}
	for _, t := range s.transactions {
		if t.JobID == jobID {
			c := *t
			txs = append(txs, &c)
		}
	}
	return txs, nil
}

func (s *MemoryStore) RevenueSummary(_ context.Context, since time.Time) ([]models.RevenueSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind := make(map[models.TransactionKind]*models.RevenueSummary)
	for _, t := range s.transactions {
		if t.CreatedAt.Before(since) {
			continue
		}
		r, ok := byKind[t.Kind]
		if !ok {
			r = &models.RevenueSummary{Kind: t.Kind}
			byKind[t.Kind] = r
		}
		r.Count++
		r.TotalAmount = r.TotalAmount.Add(t.TotalAmount)
		r.PlatformFee = r.PlatformFee.Add(t.PlatformFee)
		r.PilotPayout = r.PilotPayout.Add(t.PilotPayout)
	}

	summaries := make([]models.RevenueSummary, 0, len(byKind))
	for _, r := range byKind {
		summaries = append(summaries, *r)
	}
	sort.Slice(summaries, func(i, k int) bool { return summaries[i].Kind < summaries[k].Kind })
	return summaries, nil
}

// --- Outbox ---

func (s *MemoryStore) appendEvents(events ...models.OutboxEvent) {
	for i := range events {
		ev := events[i]
		s.events = append(s.events, &ev)
	}
}

func (s *MemoryStore) ListPendingEvents(_ context.Context, limit int) ([]*models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.OutboxEvent
	for _, ev := range s.events {
		if ev.DispatchedAt != nil {
			continue
		}
		c := *ev
		pending = append(pending, &c)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *MemoryStore) MarkEventsDispatched(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, ev := range s.events {
		if _, ok := set[ev.ID]; ok && ev.DispatchedAt == nil {
			t := at
			ev.DispatchedAt = &t
		}
	}
	return nil
}

// --- Reconciliation ---

func (s *MemoryStore) FlagForReconciliation(_ context.Context, flag *models.ReconciliationFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *flag
	ev, err := flagEvent(&c)
	if err != nil {
		return err
	}
	s.flags = append(s.flags, &c)
	s.appendEvents(ev)
	return nil
}

// Flags returns the recorded reconciliation flags.
func (s *MemoryStore) Flags() []models.ReconciliationFlag {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ReconciliationFlag, len(s.flags))
	for i, f := range s.flags {
		out[i] = *f
	}
	return out
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
