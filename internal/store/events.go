package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

func jobStatusEvent(job *models.Job, from models.JobStatus, at time.Time) (models.OutboxEvent, error) {
	return models.NewEvent(models.EventJobStatusChanged, job.ID, struct {
		models.StatusChange
		ClientID        string `json:"client_id"`
		AssignedPilotID string `json:"assigned_pilot_id,omitempty"`
	}{
		StatusChange:    models.StatusChange{From: string(from), To: string(job.Status)},
		ClientID:        job.ClientID.String(),
		AssignedPilotID: uuidString(job.AssignedPilotID),
	}, at)
}

func bidStatusEvent(bid *models.Bid, from models.BidStatus, at time.Time) (models.OutboxEvent, error) {
	return models.NewEvent(models.EventBidStatusChanged, bid.ID, struct {
		models.StatusChange
		JobID   string `json:"job_id"`
		PilotID string `json:"pilot_id"`
	}{
		StatusChange: models.StatusChange{From: string(from), To: string(bid.Status)},
		JobID:        bid.JobID.String(),
		PilotID:      bid.PilotID.String(),
	}, at)
}

func transactionEvent(tx *models.Transaction) (models.OutboxEvent, error) {
	return models.NewEvent(models.EventTransactionRecorded, tx.ID, tx, tx.CreatedAt)
}

func transferStatusEvent(tr *models.ScheduledTransfer, from models.TransferStatus, at time.Time) (models.OutboxEvent, error) {
	reason := ""
	if tr.ErrorMessage != nil {
		reason = *tr.ErrorMessage
	}
	return models.NewEvent(models.EventTransferStatusChanged, tr.ID, struct {
		models.StatusChange
		PilotID  string `json:"pilot_id"`
		Amount   string `json:"amount"`
		Attempts int    `json:"attempts"`
	}{
		StatusChange: models.StatusChange{From: string(from), To: string(tr.Status), Reason: reason},
		PilotID:      tr.PilotID.String(),
		Amount:       tr.Amount.StringFixed(2),
		Attempts:     tr.Attempts,
	}, at)
}

func flagEvent(flag *models.ReconciliationFlag) (models.OutboxEvent, error) {
	return models.NewEvent(models.EventReconciliationFlagged, flag.EntityID, flag, flag.CreatedAt)
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
