package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newJob(clientID uuid.UUID) *models.Job {
	return &models.Job{
		ID:             uuid.New(),
		ClientID:       clientID,
		Title:          "Roof inspection",
		Description:    "4K survey of a warehouse roof",
		Location:       "Leeds",
		Budget:         decimal.RequireFromString("500.00"),
		JobType:        models.JobTypeCustom,
		CommissionRate: decimal.RequireFromString("0.25"),
		PostingFee:     decimal.RequireFromString("25.00"),
		Status:         models.JobStatusPendingPayment,
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}
}

func postingFeeTx(job *models.Job, at time.Time) *models.Transaction {
	ref := "pay_" + job.ID.String()[:8]
	return &models.Transaction{
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
		CreatedAt:          at,
	}
}

func newBid(jobID uuid.UUID, amount string) *models.Bid {
	return &models.Bid{
		ID:        uuid.New(),
		JobID:     jobID,
		PilotID:   uuid.New(),
		Proposal:  "Can fly Tuesday",
		BidAmount: decimal.RequireFromString(amount),
		Status:    models.BidStatusPending,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

// seedOpenJob creates an activated job carrying n pending bids.
func seedOpenJob(t *testing.T, s store.Store, n int) (*models.Job, []*models.Bid) {
	t.Helper()
	ctx := context.Background()

	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))
	job, err := s.ActivateJob(ctx, store.ActivateJobParams{
		JobID:       job.ID,
		PaymentRef:  "pay_" + job.ID.String()[:8],
		Transaction: postingFeeTx(job, testNow),
		At:          testNow,
	})
	require.NoError(t, err)

	bids := make([]*models.Bid, n)
	for i := range bids {
		bids[i] = newBid(job.ID, "480.00")
		require.NoError(t, s.CreateBid(ctx, bids[i]))
	}
	return job, bids
}

func completeParams(job *models.Job, bid *models.Bid) store.CompleteJobParams {
	fee := bid.BidAmount.Mul(job.CommissionRate).Round(2)
	pilotID := bid.PilotID
	tx := &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TransactionCompletionSettlement,
		JobID:          job.ID,
		PilotID:        &pilotID,
		ClientID:       job.ClientID,
		TotalAmount:    bid.BidAmount,
		PlatformFee:    fee,
		PilotPayout:    bid.BidAmount.Sub(fee),
		CommissionRate: job.CommissionRate,
		PaymentStatus:  models.PaymentStatusPending,
		CreatedAt:      testNow,
	}
	return store.CompleteJobParams{
		JobID:       job.ID,
		Transaction: tx,
		Transfer: &models.ScheduledTransfer{
			ID:            uuid.New(),
			TransactionID: tx.ID,
			JobID:         job.ID,
			PilotID:       pilotID,
			Amount:        tx.PilotPayout,
			ScheduledFor:  testNow.Add(48 * time.Hour),
			Status:        models.TransferStatusPending,
			CreatedAt:     testNow,
			UpdatedAt:     testNow,
		},
		At: testNow,
	}
}

// seedDueTransfer drives a job to completion and returns its pending transfer.
func seedDueTransfer(t *testing.T, s store.Store) *models.ScheduledTransfer {
	t.Helper()
	ctx := context.Background()

	job, bids := seedOpenJob(t, s, 1)
	_, err := s.AcceptBid(ctx, job.ID, bids[0].ID, testNow)
	require.NoError(t, err)

	p := completeParams(job, bids[0])
	_, err = s.CompleteJob(ctx, p)
	require.NoError(t, err)

	tr, err := s.GetTransfer(ctx, p.Transfer.ID)
	require.NoError(t, err)
	return tr
}

func payoutTx(tr *models.ScheduledTransfer, clientID uuid.UUID, at time.Time) *models.Transaction {
	pilotID := tr.PilotID
	return &models.Transaction{
		ID:             uuid.New(),
		Kind:           models.TransactionPayoutReleased,
		JobID:          tr.JobID,
		PilotID:        &pilotID,
		ClientID:       clientID,
		TotalAmount:    tr.Amount,
		PlatformFee:    decimal.Zero,
		PilotPayout:    tr.Amount,
		CommissionRate: decimal.Zero,
		PaymentStatus:  models.PaymentStatusSucceeded,
		CreatedAt:      at,
	}
}

func assertSingleAccepted(t *testing.T, s store.Store, jobID uuid.UUID) {
	t.Helper()
	bids, err := s.ListBidsForJob(context.Background(), jobID)
	require.NoError(t, err)

	accepted := 0
	for _, b := range bids {
		switch b.Status {
		case models.BidStatusAccepted:
			accepted++
		case models.BidStatusRejected:
		default:
			t.Errorf("bid %s left in status %s", b.ID, b.Status)
		}
	}
	assert.Equal(t, 1, accepted)
}

func pendingEventsFor(t *testing.T, s store.Store, aggregateID uuid.UUID) []*models.OutboxEvent {
	t.Helper()
	events, err := s.ListPendingEvents(context.Background(), 10000)
	require.NoError(t, err)

	var out []*models.OutboxEvent
	for _, ev := range events {
		if ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out
}

// runStoreSuite exercises behavior every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("APIKeyCreateAndGet", func(t *testing.T) {
		s := newStore(t)
		prefix := "sb_" + uuid.NewString()[:6]
		key := &models.APIKey{
			ID:        uuid.New(),
			AccountID: uuid.New(),
			Name:      "client-key",
			KeyHash:   "hash-" + uuid.NewString(),
			KeyPrefix: prefix,
			Scopes:    []string{models.ScopeClient},
			CreatedAt: testNow,
			UpdatedAt: testNow,
		}
		require.NoError(t, s.CreateAPIKey(ctx, key))
		assert.ErrorIs(t, s.CreateAPIKey(ctx, key), store.ErrDuplicateKey)

		keys, err := s.GetAPIKeyByPrefix(ctx, prefix)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, key.AccountID, keys[0].AccountID)
		assert.Equal(t, []string{models.ScopeClient}, keys[0].Scopes)

		require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
		keys, err = s.GetAPIKeyByPrefix(ctx, prefix)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.NotNil(t, keys[0].LastUsedAt)
	})

	t.Run("CreateAndGetJob", func(t *testing.T) {
		s := newStore(t)
		job := newJob(uuid.New())
		require.NoError(t, s.CreateJob(ctx, job))

		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.Title, got.Title)
		assert.Equal(t, models.JobStatusPendingPayment, got.Status)
		assert.True(t, got.Budget.Equal(job.Budget))
		assert.True(t, got.CommissionRate.Equal(job.CommissionRate))
		assert.False(t, got.PostingFeePaid)

		_, err = s.GetJob(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)

		events := pendingEventsFor(t, s, job.ID)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventJobStatusChanged, events[0].Kind)
	})

	t.Run("UpdateJobDetailsOnlyWhilePendingPayment", func(t *testing.T) {
		s := newStore(t)
		job := newJob(uuid.New())
		require.NoError(t, s.CreateJob(ctx, job))

		job.Title = "Updated title"
		require.NoError(t, s.UpdateJobDetails(ctx, job))
		got, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, "Updated title", got.Title)

		_, err = s.ActivateJob(ctx, store.ActivateJobParams{
			JobID: job.ID, PaymentRef: "pay_1", Transaction: postingFeeTx(job, testNow), At: testNow,
		})
		require.NoError(t, err)

		job.Title = "Too late"
		assert.ErrorIs(t, s.UpdateJobDetails(ctx, job), store.ErrConflict)

		missing := newJob(uuid.New())
		assert.ErrorIs(t, s.UpdateJobDetails(ctx, missing), store.ErrNotFound)
	})

	t.Run("ActivateJobOnce", func(t *testing.T) {
		s := newStore(t)
		job := newJob(uuid.New())
		require.NoError(t, s.CreateJob(ctx, job))

		activated, err := s.ActivateJob(ctx, store.ActivateJobParams{
			JobID: job.ID, PaymentRef: "pay_abc", Transaction: postingFeeTx(job, testNow), At: testNow,
		})
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusOpen, activated.Status)
		assert.True(t, activated.PostingFeePaid)
		require.NotNil(t, activated.PaymentRef)
		assert.Equal(t, "pay_abc", *activated.PaymentRef)

		_, err = s.ActivateJob(ctx, store.ActivateJobParams{
			JobID: job.ID, PaymentRef: "pay_abc", Transaction: postingFeeTx(job, testNow), At: testNow,
		})
		assert.ErrorIs(t, err, store.ErrConflict)

		txs, err := s.ListTransactionsForJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, models.TransactionPostingFee, txs[0].Kind)
	})

	t.Run("CreateBidRules", func(t *testing.T) {
		s := newStore(t)
		pending := newJob(uuid.New())
		require.NoError(t, s.CreateJob(ctx, pending))
		assert.ErrorIs(t, s.CreateBid(ctx, newBid(pending.ID, "100.00")), store.ErrConflict)
		assert.ErrorIs(t, s.CreateBid(ctx, newBid(uuid.New(), "100.00")), store.ErrNotFound)

		job, bids := seedOpenJob(t, s, 1)
		dup := newBid(job.ID, "300.00")
		dup.PilotID = bids[0].PilotID
		assert.ErrorIs(t, s.CreateBid(ctx, dup), store.ErrDuplicateKey)

		got, err := s.GetBid(ctx, bids[0].ID)
		require.NoError(t, err)
		assert.Equal(t, models.BidStatusPending, got.Status)
		assert.True(t, got.BidAmount.Equal(decimal.RequireFromString("480")))
	})

	t.Run("AcceptBidRejectsOthers", func(t *testing.T) {
		s := newStore(t)
		job, bids := seedOpenJob(t, s, 3)

		got, err := s.AcceptBid(ctx, job.ID, bids[1].ID, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusInProgress, got.Status)
		require.NotNil(t, got.AssignedPilotID)
		assert.Equal(t, bids[1].PilotID, *got.AssignedPilotID)
		require.NotNil(t, got.AcceptedBidID)
		assert.Equal(t, bids[1].ID, *got.AcceptedBidID)

		list, err := s.ListBidsForJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for _, b := range list {
			if b.ID == bids[1].ID {
				assert.Equal(t, models.BidStatusAccepted, b.Status)
			} else {
				assert.Equal(t, models.BidStatusRejected, b.Status)
			}
		}

		_, err = s.AcceptBid(ctx, job.ID, bids[0].ID, testNow)
		assert.ErrorIs(t, err, store.ErrConflict)
		assertSingleAccepted(t, s, job.ID)
	})

	t.Run("AcceptBidUnknownBid", func(t *testing.T) {
		s := newStore(t)
		job, _ := seedOpenJob(t, s, 1)
		other, otherBids := seedOpenJob(t, s, 1)

		_, err := s.AcceptBid(ctx, job.ID, uuid.New(), testNow)
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.AcceptBid(ctx, job.ID, otherBids[0].ID, testNow)
		assert.ErrorIs(t, err, store.ErrNotFound, "bid of another job")

		got, err := s.GetJob(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusOpen, got.Status)
	})

	t.Run("ConcurrentAcceptSingleWinner", func(t *testing.T) {
		s := newStore(t)
		job, bids := seedOpenJob(t, s, 2)

		errs := make([]error, len(bids))
		var wg sync.WaitGroup
		for i, b := range bids {
			wg.Add(1)
			go func(i int, bidID uuid.UUID) {
				defer wg.Done()
				_, errs[i] = s.AcceptBid(ctx, job.ID, bidID, testNow)
			}(i, b.ID)
		}
		wg.Wait()

		var ok, conflict int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrConflict):
				conflict++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, conflict)
		assertSingleAccepted(t, s, job.ID)
	})

	t.Run("CancelJobRejectsPendingBids", func(t *testing.T) {
		s := newStore(t)
		job, bids := seedOpenJob(t, s, 2)

		got, err := s.CancelJob(ctx, job.ID, testNow)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCancelled, got.Status)

		for _, b := range bids {
			bid, err := s.GetBid(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BidStatusRejected, bid.Status)
		}

		_, err = s.CancelJob(ctx, job.ID, testNow)
		assert.ErrorIs(t, err, store.ErrConflict)
		_, err = s.CancelJob(ctx, uuid.New(), testNow)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CompleteJobBooksSettlement", func(t *testing.T) {
		s := newStore(t)
		job, bids := seedOpenJob(t, s, 1)

		p := completeParams(job, bids[0])
		_, err := s.CompleteJob(ctx, p)
		assert.ErrorIs(t, err, store.ErrConflict, "job is not in progress yet")

		_, err = s.AcceptBid(ctx, job.ID, bids[0].ID, testNow)
		require.NoError(t, err)

		rating := 5
		p.Rating = &rating
		got, err := s.CompleteJob(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		require.NotNil(t, got.Rating)
		assert.Equal(t, 5, *got.Rating)

		txs, err := s.ListTransactionsForJob(ctx, job.ID)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		settlement := txs[1]
		assert.Equal(t, models.TransactionCompletionSettlement, settlement.Kind)
		assert.Equal(t, "120.00", settlement.PlatformFee.StringFixed(2))
		assert.Equal(t, "360.00", settlement.PilotPayout.StringFixed(2))

		tr, err := s.GetTransfer(ctx, p.Transfer.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TransferStatusPending, tr.Status)
		assert.True(t, tr.ScheduledFor.Equal(testNow.Add(48*time.Hour)))

		_, err = s.CompleteJob(ctx, completeParams(job, bids[0]))
		assert.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("DueTransfersRespectScheduleAndLease", func(t *testing.T) {
		s := newStore(t)
		tr := seedDueTransfer(t, s)

		early := testNow.Add(47 * time.Hour)
		dueIDs := func(now time.Time) []uuid.UUID {
			due, err := s.ListDueTransfers(ctx, now, 1000)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(due))
			for _, d := range due {
				ids = append(ids, d.ID)
			}
			return ids
		}
		assert.NotContains(t, dueIDs(early), tr.ID)
		_, err := s.ClaimTransfer(ctx, tr.ID, early, time.Minute)
		assert.ErrorIs(t, err, store.ErrConflict)

		late := testNow.Add(49 * time.Hour)
		assert.Contains(t, dueIDs(late), tr.ID)

		claimed, err := s.ClaimTransfer(ctx, tr.ID, late, 5*time.Minute)
		require.NoError(t, err)
		require.NotNil(t, claimed.LockedUntil)
		assert.True(t, claimed.LockedUntil.Equal(late.Add(5*time.Minute)))

		_, err = s.ClaimTransfer(ctx, tr.ID, late.Add(time.Minute), 5*time.Minute)
		assert.ErrorIs(t, err, store.ErrConflict, "lease still held")
		assert.NotContains(t, dueIDs(late.Add(time.Minute)), tr.ID)

		_, err = s.ClaimTransfer(ctx, tr.ID, late.Add(10*time.Minute), 5*time.Minute)
		assert.NoError(t, err, "expired lease can be reclaimed")

		_, err = s.ClaimTransfer(ctx, uuid.New(), late, time.Minute)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CompleteTransferOnce", func(t *testing.T) {
		s := newStore(t)
		tr := seedDueTransfer(t, s)
		job, err := s.GetJob(ctx, tr.JobID)
		require.NoError(t, err)
		at := testNow.Add(49 * time.Hour)

		done, err := s.CompleteTransfer(ctx, store.CompleteTransferParams{
			TransferID: tr.ID, ExternalRef: "tr_ext_1", Transaction: payoutTx(tr, job.ClientID, at), At: at,
		})
		require.NoError(t, err)
		assert.Equal(t, models.TransferStatusCompleted, done.Status)
		require.NotNil(t, done.ExternalTransferRef)
		assert.Equal(t, "tr_ext_1", *done.ExternalTransferRef)
		assert.Nil(t, done.LockedUntil)

		_, err = s.CompleteTransfer(ctx, store.CompleteTransferParams{
			TransferID: tr.ID, ExternalRef: "tr_ext_2", Transaction: payoutTx(tr, job.ClientID, at), At: at,
		})
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = s.FailTransfer(ctx, tr.ID, "late failure", at)
		assert.ErrorIs(t, err, store.ErrConflict)

		txs, err := s.ListTransactionsForJob(ctx, tr.JobID)
		require.NoError(t, err)
		payouts := 0
		for _, tx := range txs {
			if tx.Kind == models.TransactionPayoutReleased {
				payouts++
			}
		}
		assert.Equal(t, 1, payouts)
	})

	t.Run("FailAndReschedule", func(t *testing.T) {
		s := newStore(t)
		tr := seedDueTransfer(t, s)
		at := testNow.Add(49 * time.Hour)

		failed, err := s.FailTransfer(ctx, tr.ID, "gateway rejected", at)
		require.NoError(t, err)
		assert.Equal(t, models.TransferStatusFailed, failed.Status)
		assert.Equal(t, 1, failed.Attempts)
		require.NotNil(t, failed.ErrorMessage)
		assert.Equal(t, "gateway rejected", *failed.ErrorMessage)

		due, err := s.ListDueTransfers(ctx, at.Add(time.Hour), 1000)
		require.NoError(t, err)
		for _, d := range due {
			assert.NotEqual(t, tr.ID, d.ID, "failed transfers are never due")
		}

		next := at.Add(time.Hour)
		again, err := s.RescheduleTransfer(ctx, tr.ID, next, at)
		require.NoError(t, err)
		assert.Equal(t, models.TransferStatusPending, again.Status)
		assert.True(t, again.ScheduledFor.Equal(next))
		assert.Equal(t, 1, again.Attempts)
		assert.Nil(t, again.ErrorMessage)

		_, err = s.RescheduleTransfer(ctx, tr.ID, next, at)
		assert.ErrorIs(t, err, store.ErrConflict, "only failed transfers can be rescheduled")
	})

	t.Run("RevenueSummaryAggregatesLedger", func(t *testing.T) {
		s := newStore(t)
		since := testNow.Add(-time.Minute)
		before, err := s.RevenueSummary(ctx, since)
		require.NoError(t, err)

		seedDueTransfer(t, s)

		after, err := s.RevenueSummary(ctx, since)
		require.NoError(t, err)

		byKind := func(rows []models.RevenueSummary) map[models.TransactionKind]models.RevenueSummary {
			m := make(map[models.TransactionKind]models.RevenueSummary)
			for _, r := range rows {
				m[r.Kind] = r
			}
			return m
		}
		b, a := byKind(before), byKind(after)

		fee := a[models.TransactionPostingFee]
		assert.Equal(t, b[models.TransactionPostingFee].Count+1, fee.Count)
		assert.True(t, fee.TotalAmount.Sub(b[models.TransactionPostingFee].TotalAmount).Equal(decimal.RequireFromString("25")))

		settle := a[models.TransactionCompletionSettlement]
		assert.True(t, settle.PlatformFee.Sub(b[models.TransactionCompletionSettlement].PlatformFee).Equal(decimal.RequireFromString("120")))

		future, err := s.RevenueSummary(ctx, testNow.AddDate(1, 0, 0))
		require.NoError(t, err)
		assert.Empty(t, future)
	})

	t.Run("OutboxEventsWrittenWithChanges", func(t *testing.T) {
		s := newStore(t)
		job, bids := seedOpenJob(t, s, 2)
		_, err := s.AcceptBid(ctx, job.ID, bids[0].ID, testNow)
		require.NoError(t, err)

		jobEvents := pendingEventsFor(t, s, job.ID)
		require.Len(t, jobEvents, 3, "created, opened and assigned")
		for _, ev := range jobEvents {
			assert.Equal(t, models.EventJobStatusChanged, ev.Kind)
			assert.NotEmpty(t, ev.Payload)
		}

		bidEvents := pendingEventsFor(t, s, bids[1].ID)
		require.Len(t, bidEvents, 2, "created and rejected")
		assert.JSONEq(t,
			`{"from":"pending","to":"rejected","job_id":"`+job.ID.String()+`","pilot_id":"`+bids[1].PilotID.String()+`"}`,
			string(bidEvents[1].Payload))

		ids := make([]uuid.UUID, 0, len(jobEvents))
		for _, ev := range jobEvents {
			ids = append(ids, ev.ID)
		}
		require.NoError(t, s.MarkEventsDispatched(ctx, ids, testNow))
		assert.Empty(t, pendingEventsFor(t, s, job.ID))
		assert.Len(t, pendingEventsFor(t, s, bids[1].ID), 2)
	})

	t.Run("FlagForReconciliation", func(t *testing.T) {
		s := newStore(t)
		entity := uuid.New()
		require.NoError(t, s.FlagForReconciliation(ctx, &models.ReconciliationFlag{
			ID:         uuid.New(),
			EntityKind: "job",
			EntityID:   entity,
			Reason:     "split does not balance",
			CreatedAt:  testNow,
		}))

		events := pendingEventsFor(t, s, entity)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventReconciliationFlagged, events[0].Kind)
	})
}
