package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// ScheduledTransfer is a delayed payout created once per settled job.
// LockedUntil is the claim lease held by a settlement run while it talks to
// the funds gateway.
type ScheduledTransfer struct {
	ID                  uuid.UUID       `db:"id"                    json:"id"`
	TransactionID       uuid.UUID       `db:"transaction_id"        json:"transaction_id"`
	JobID               uuid.UUID       `db:"job_id"                json:"job_id"`
	PilotID             uuid.UUID       `db:"pilot_id"              json:"pilot_id"`
	Amount              decimal.Decimal `db:"amount"                json:"amount"`
	ScheduledFor        time.Time       `db:"scheduled_for"         json:"scheduled_for"`
	Status              TransferStatus  `db:"status"                json:"status"`
	Attempts            int             `db:"attempts"              json:"attempts"`
	LockedUntil         *time.Time      `db:"locked_until"          json:"-"`
	ExternalTransferRef *string         `db:"external_transfer_ref" json:"external_transfer_ref,omitempty"`
	ErrorMessage        *string         `db:"error_message"         json:"error_message,omitempty"`
	CreatedAt           time.Time       `db:"created_at"            json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"            json:"updated_at"`
}
