package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn inside a database transaction. The transaction is rolled
// back if fn returns an error.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, account_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.AccountID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, client_id, title, description, location, deadline, budget, job_type,
	commission_rate, posting_fee, posting_fee_paid, payment_ref, status, assigned_pilot_id,
	accepted_bid_id, rating, review, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.ClientID, &j.Title, &j.Description, &j.Location, &j.Deadline,
		&j.Budget, &j.JobType, &j.CommissionRate, &j.PostingFee, &j.PostingFeePaid, &j.PaymentRef,
		&j.Status, &j.AssignedPilotID, &j.AcceptedBidID, &j.Rating, &j.Review, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO jobs (`+jobColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			job.ID, job.ClientID, job.Title, job.Description, job.Location, job.Deadline, job.Budget,
			job.JobType, job.CommissionRate, job.PostingFee, job.PostingFeePaid, job.PaymentRef, job.Status,
			job.AssignedPilotID, job.AcceptedBidID, job.Rating, job.Review, job.CreatedAt, job.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create job: %w", err)
		}
		ev, err := jobStatusEvent(job, "", job.CreatedAt)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateJobDetails(ctx context.Context, job *models.Job) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET title = $2, description = $3, location = $4, deadline = $5, updated_at = $6
		 WHERE id = $1 AND status = 'pending_payment'`,
		job.ID, job.Title, job.Description, job.Location, job.Deadline, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job details: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return jobMiss(ctx, s.pool, job.ID)
	}
	return nil
}

func (s *PostgresStore) ActivateJob(ctx context.Context, p ActivateJobParams) (*models.Job, error) {
	var job *models.Job
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx,
			`UPDATE jobs SET status = 'open', posting_fee_paid = TRUE, payment_ref = $2, updated_at = $3
			 WHERE id = $1 AND status = 'pending_payment' AND posting_fee_paid = FALSE
			 RETURNING `+jobColumns, p.JobID, p.PaymentRef, p.At))
		if errors.Is(err, pgx.ErrNoRows) {
			return jobMiss(ctx, tx, p.JobID)
		}
		if err != nil {
			return fmt.Errorf("activate job: %w", err)
		}

		if err := insertTransaction(ctx, tx, p.Transaction); err != nil {
			return err
		}
		jobEv, err := jobStatusEvent(job, models.JobStatusPendingPayment, p.At)
		if err != nil {
			return err
		}
		txEv, err := transactionEvent(p.Transaction)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, jobEv, txEv)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) CancelJob(ctx context.Context, jobID uuid.UUID, at time.Time) (*models.Job, error) {
	var job *models.Job
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var from models.JobStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&from); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock job: %w", err)
		}
		if !from.CanTransition(models.JobStatusCancelled) {
			return ErrConflict
		}

		var err error
		job, err = scanJob(tx.QueryRow(ctx,
			`UPDATE jobs SET status = 'cancelled', updated_at = $2 WHERE id = $1 RETURNING `+jobColumns,
			jobID, at))
		if err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}

		rejected, err := rejectPendingBids(ctx, tx, jobID, uuid.Nil, at)
		if err != nil {
			return err
		}
		ev, err := jobStatusEvent(job, from, at)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, append(rejected, ev)...)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// AcceptBid moves the job to in_progress and the chosen bid to accepted,
// rejecting every other pending bid for the job. The job row is updated first
// with a status guard so that a racing acceptance blocks on the row lock and
// then misses the guard.
func (s *PostgresStore) AcceptBid(ctx context.Context, jobID, bidID uuid.UUID, at time.Time) (*models.Job, error) {
	var job *models.Job
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		bid, err := scanBid(tx.QueryRow(ctx,
			`SELECT `+bidColumns+` FROM bids WHERE id = $1 AND job_id = $2`, bidID, jobID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get bid: %w", err)
		}

		job, err = scanJob(tx.QueryRow(ctx,
			`UPDATE jobs SET status = 'in_progress', assigned_pilot_id = $2, accepted_bid_id = $3, updated_at = $4
			 WHERE id = $1 AND status = 'open'
			 RETURNING `+jobColumns, jobID, bid.PilotID, bid.ID, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return jobMiss(ctx, tx, jobID)
		}
		if err != nil {
			return fmt.Errorf("assign job: %w", err)
		}

		accepted, err := scanBid(tx.QueryRow(ctx,
			`UPDATE bids SET status = 'accepted', updated_at = $2
			 WHERE id = $1 AND status = 'pending'
			 RETURNING `+bidColumns, bidID, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrConflict
			}
			return fmt.Errorf("accept bid: %w", err)
		}

		events, err := rejectPendingBids(ctx, tx, jobID, bidID, at)
		if err != nil {
			return err
		}
		bidEv, err := bidStatusEvent(accepted, models.BidStatusPending, at)
		if err != nil {
			return err
		}
		jobEv, err := jobStatusEvent(job, models.JobStatusOpen, at)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, append(events, bidEv, jobEv)...)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, p CompleteJobParams) (*models.Job, error) {
	var job *models.Job
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRow(ctx,
			`UPDATE jobs SET status = 'completed', rating = $2, review = $3, updated_at = $4
			 WHERE id = $1 AND status = 'in_progress'
			 RETURNING `+jobColumns, p.JobID, p.Rating, p.Review, p.At))
		if errors.Is(err, pgx.ErrNoRows) {
			return jobMiss(ctx, tx, p.JobID)
		}
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}

		if err := insertTransaction(ctx, tx, p.Transaction); err != nil {
			return err
		}
		tr := p.Transfer
		_, err = tx.Exec(ctx,
			`INSERT INTO scheduled_transfers (id, transaction_id, job_id, pilot_id, amount, scheduled_for, status, attempts, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			tr.ID, tr.TransactionID, tr.JobID, tr.PilotID, tr.Amount, tr.ScheduledFor, tr.Status,
			tr.Attempts, tr.CreatedAt, tr.UpdatedAt)
		if err != nil {
			return fmt.Errorf("schedule transfer: %w", err)
		}

		jobEv, err := jobStatusEvent(job, models.JobStatusInProgress, p.At)
		if err != nil {
			return err
		}
		txEv, err := transactionEvent(p.Transaction)
		if err != nil {
			return err
		}
		trEv, err := transferStatusEvent(tr, "", p.At)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, jobEv, txEv, trEv)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// jobMiss explains why a guarded job update touched no rows.
func jobMiss(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// --- Bids ---

const bidColumns = `id, job_id, pilot_id, proposal, bid_amount, estimated_completion_days, status, created_at, updated_at`

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.JobID, &b.PilotID, &b.Proposal, &b.BidAmount,
		&b.EstimatedCompletionDays, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBid inserts a pending bid. The job row is share-locked so a bid
// cannot land on a job that is being accepted or cancelled.
func (s *PostgresStore) CreateBid(ctx context.Context, bid *models.Bid) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var status models.JobStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR SHARE`, bid.JobID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock job: %w", err)
		}
		if status != models.JobStatusOpen {
			return ErrConflict
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			bid.ID, bid.JobID, bid.PilotID, bid.Proposal, bid.BidAmount, bid.EstimatedCompletionDays,
			bid.Status, bid.CreatedAt, bid.UpdatedAt)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("create bid: %w", err)
		}
		ev, err := bidStatusEvent(bid, "", bid.CreatedAt)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
}

func (s *PostgresStore) GetBid(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	b, err := scanBid(s.pool.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bid: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListBidsForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	bids := []*models.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// rejectPendingBids rejects every pending bid of the job except keep and
// returns the matching status events.
func rejectPendingBids(ctx context.Context, q querier, jobID, keep uuid.UUID, at time.Time) ([]models.OutboxEvent, error) {
	rows, err := q.Query(ctx,
		`UPDATE bids SET status = 'rejected', updated_at = $3
		 WHERE job_id = $1 AND id <> $2 AND status = 'pending'
		 RETURNING `+bidColumns, jobID, keep, at)
	if err != nil {
		return nil, fmt.Errorf("reject bids: %w", err)
	}
	defer rows.Close()

	var rejected []*models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		rejected = append(rejected, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reject bids: %w", err)
	}

	events := make([]models.OutboxEvent, 0, len(rejected))
	for _, b := range rejected {
		ev, err := bidStatusEvent(b, models.BidStatusPending, at)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// --- Scheduled Transfers ---

const transferColumns = `id, transaction_id, job_id, pilot_id, amount, scheduled_for, status, attempts,
	locked_until, external_transfer_ref, error_message, created_at, updated_at`

func scanTransfer(row pgx.Row) (*models.ScheduledTransfer, error) {
	var t models.ScheduledTransfer
	err := row.Scan(&t.ID, &t.TransactionID, &t.JobID, &t.PilotID, &t.Amount, &t.ScheduledFor,
		&t.Status, &t.Attempts, &t.LockedUntil, &t.ExternalTransferRef, &t.ErrorMessage,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetTransfer(ctx context.Context, id uuid.UUID) (*models.ScheduledTransfer, error) {
	t, err := scanTransfer(s.pool.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM scheduled_transfers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListDueTransfers(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledTransfer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transferColumns+` FROM scheduled_transfers
		 WHERE status = 'pending' AND scheduled_for <= $1 AND (locked_until IS NULL OR locked_until <= $1)
		 ORDER BY scheduled_for, id LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*models.ScheduledTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ClaimTransfer takes the lease on a due pending transfer. It returns
// ErrConflict if the transfer is no longer pending, not yet due, or leased by
// another run.
func (s *PostgresStore) ClaimTransfer(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*models.ScheduledTransfer, error) {
	t, err := scanTransfer(s.pool.QueryRow(ctx,
		`UPDATE scheduled_transfers SET locked_until = $3, updated_at = $2
		 WHERE id = $1 AND status = 'pending' AND scheduled_for <= $2
		   AND (locked_until IS NULL OR locked_until <= $2)
		 RETURNING `+transferColumns, id, now, now.Add(lease)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transferMiss(ctx, s.pool, id)
	}
	if err != nil {
		return nil, fmt.Errorf("claim transfer: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) CompleteTransfer(ctx context.Context, p CompleteTransferParams) (*models.ScheduledTransfer, error) {
	var tr *models.ScheduledTransfer
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		tr, err = scanTransfer(tx.QueryRow(ctx,
			`UPDATE scheduled_transfers
			 SET status = 'completed', external_transfer_ref = $2, error_message = NULL, locked_until = NULL, updated_at = $3
			 WHERE id = $1 AND status = 'pending'
			 RETURNING `+transferColumns, p.TransferID, p.ExternalRef, p.At))
		if errors.Is(err, pgx.ErrNoRows) {
			return transferMiss(ctx, tx, p.TransferID)
		}
		if err != nil {
			return fmt.Errorf("complete transfer: %w", err)
		}

		if err := insertTransaction(ctx, tx, p.Transaction); err != nil {
			return err
		}
		trEv, err := transferStatusEvent(tr, models.TransferStatusPending, p.At)
		if err != nil {
			return err
		}
		txEv, err := transactionEvent(p.Transaction)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, trEv, txEv)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (s *PostgresStore) FailTransfer(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*models.ScheduledTransfer, error) {
	var tr *models.ScheduledTransfer
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		tr, err = scanTransfer(tx.QueryRow(ctx,
			`UPDATE scheduled_transfers
			 SET status = 'failed', error_message = $2, attempts = attempts + 1, locked_until = NULL, updated_at = $3
			 WHERE id = $1 AND status = 'pending'
			 RETURNING `+transferColumns, id, reason, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return transferMiss(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("fail transfer: %w", err)
		}
		ev, err := transferStatusEvent(tr, models.TransferStatusPending, at)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (s *PostgresStore) RescheduleTransfer(ctx context.Context, id uuid.UUID, scheduledFor, at time.Time) (*models.ScheduledTransfer, error) {
	var tr *models.ScheduledTransfer
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		tr, err = scanTransfer(tx.QueryRow(ctx,
			`UPDATE scheduled_transfers
			 SET status = 'pending', scheduled_for = $2, error_message = NULL, updated_at = $3
			 WHERE id = $1 AND status = 'failed'
			 RETURNING `+transferColumns, id, scheduledFor, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return transferMiss(ctx, tx, id)
		}
		if err != nil {
			return fmt.Errorf("reschedule transfer: %w", err)
		}
		ev, err := transferStatusEvent(tr, models.TransferStatusFailed, at)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func transferMiss(ctx context.Context, q querier, id uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scheduled_transfers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check transfer: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// --- Transactions ---

const transactionColumns = `id, kind, job_id, pilot_id, client_id, total_amount, platform_fee, pilot_payout,
	commission_rate, payment_status, external_payment_ref, created_at`

func insertTransaction(ctx context.Context, q querier, t *models.Transaction) error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	_, err := q.Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Kind, t.JobID, t.PilotID, t.ClientID, t.TotalAmount, t.PlatformFee, t.PilotPayout,
		t.CommissionRate, t.PaymentStatus, t.ExternalPaymentRef, t.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert %s transaction: %w", t.Kind, err)
	}
	return nil
}

func (s *PostgresStore) ListTransactionsForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.Kind, &t.JobID, &t.PilotID, &t.ClientID, &t.TotalAmount,
			&t.PlatformFee, &t.PilotPayout, &t.CommissionRate, &t.PaymentStatus,
			&t.ExternalPaymentRef, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// RevenueSummary aggregates the ledger per transaction kind at read time.
func (s *PostgresStore) RevenueSummary(ctx context.Context, since time.Time) ([]models.RevenueSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(SUM(platform_fee), 0), COALESCE(SUM(pilot_payout), 0)
		 FROM transactions WHERE created_at >= $1
		 GROUP BY kind ORDER BY kind`, since)
	if err != nil {
		return nil, fmt.Errorf("revenue summary: %w", err)
	}
	defer rows.Close()

	summaries := []models.RevenueSummary{}
	for rows.Next() {
		var r models.RevenueSummary
		if err := rows.Scan(&r.Kind, &r.Count, &r.TotalAmount, &r.PlatformFee, &r.PilotPayout); err != nil {
			return nil, fmt.Errorf("scan revenue summary: %w", err)
		}
		summaries = append(summaries, r)
	}
	return summaries, rows.Err()
}

// --- Outbox ---

func insertEvents(ctx context.Context, q querier, events ...models.OutboxEvent) error {
	for _, ev := range events {
		_, err := q.Exec(ctx,
			`INSERT INTO outbox_events (id, kind, aggregate_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
			ev.ID, ev.Kind, ev.AggregateID, []byte(ev.Payload), ev.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox event %s: %w", ev.Kind, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListPendingEvents(ctx context.Context, limit int) ([]*models.OutboxEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, aggregate_id, payload, created_at, dispatched_at
		 FROM outbox_events WHERE dispatched_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var events []*models.OutboxEvent
	for rows.Next() {
		var (
			ev      models.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.AggregateID, &payload, &ev.CreatedAt, &ev.DispatchedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Payload = payload
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *PostgresStore) MarkEventsDispatched(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox_events SET dispatched_at = $2 WHERE id = ANY($1::uuid[]) AND dispatched_at IS NULL`, strIDs, at)
	if err != nil {
		return fmt.Errorf("mark events dispatched: %w", err)
	}
	return nil
}

// --- Reconciliation ---

func (s *PostgresStore) FlagForReconciliation(ctx context.Context, flag *models.ReconciliationFlag) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO reconciliation_flags (id, entity_kind, entity_id, reason, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			flag.ID, flag.EntityKind, flag.EntityID, flag.Reason, flag.CreatedAt)
		if err != nil {
			return fmt.Errorf("flag for reconciliation: %w", err)
		}
		ev, err := flagEvent(flag)
		if err != nil {
			return err
		}
		return insertEvents(ctx, tx, ev)
	})
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
