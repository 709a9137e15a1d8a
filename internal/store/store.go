package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict is returned when a guarded update finds the row no longer in the
// expected state. Nothing has been written when it is returned.
var ErrConflict = errors.New("state changed concurrently")

// Store is the ledger data access interface. Every operation that touches more
// than one row of a job commits as one database transaction, and every business
// change writes its outbox events inside that same transaction.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobDetails(ctx context.Context, job *models.Job) error
	ActivateJob(ctx context.Context, p ActivateJobParams) (*models.Job, error)
	CancelJob(ctx context.Context, jobID uuid.UUID, at time.Time) (*models.Job, error)
	AcceptBid(ctx context.Context, jobID, bidID uuid.UUID, at time.Time) (*models.Job, error)
	CompleteJob(ctx context.Context, p CompleteJobParams) (*models.Job, error)

	CreateBid(ctx context.Context, bid *models.Bid) error
	GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	ListBidsForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Bid, error)

	GetTransfer(ctx context.Context, id uuid.UUID) (*models.ScheduledTransfer, error)
	ListDueTransfers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTransfer, error)
	ClaimTransfer(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*models.ScheduledTransfer, error)
	CompleteTransfer(ctx context.Context, p CompleteTransferParams) (*models.ScheduledTransfer, error)
	FailTransfer(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.ScheduledTransfer, error)
	RescheduleTransfer(ctx context.Context, id uuid.UUID, scheduledFor, at time.Time) (*models.ScheduledTransfer, error)

	ListTransactionsForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Transaction, error)
	RevenueSummary(ctx context.Context, since time.Time) ([]models.RevenueSummary, error)

	ListPendingEvents(ctx context.Context, limit int) ([]*models.OutboxEvent, error)
	MarkEventsDispatched(ctx context.Context, ids []uuid.UUID, at time.Time) error

	FlagForReconciliation(ctx context.Context, flag *models.ReconciliationFlag) error
}

// ActivateJobParams moves a job from pending_payment to open and records the
// posting fee in the ledger.
type ActivateJobParams struct {
	JobID       uuid.UUID
	PaymentRef  string
	Transaction *models.Transaction
	At          time.Time
}

// CompleteJobParams closes a job and books its settlement.
type CompleteJobParams struct {
	JobID       uuid.UUID
	Rating      *int
	Review      *string
	Transaction *models.Transaction
	Transfer    *models.ScheduledTransfer
	At          time.Time
}

// CompleteTransferParams records a released payout.
type CompleteTransferParams struct {
	TransferID  uuid.UUID
	ExternalRef string
	Transaction *models.Transaction
	At          time.Time
}
