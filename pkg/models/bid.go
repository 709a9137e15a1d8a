package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidStatusPending  BidStatus = "pending"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusRejected BidStatus = "rejected"
)

// Bid is a pilot's offer on an open job. A pilot holds at most one bid per job
// and at most one bid per job is ever accepted.
type Bid struct {
	ID                      uuid.UUID       `db:"id"                        json:"id"`
	JobID                   uuid.UUID       `db:"job_id"                    json:"job_id"`
	PilotID                 uuid.UUID       `db:"pilot_id"                  json:"pilot_id"`
	Proposal                string          `db:"proposal"                  json:"proposal"`
	BidAmount               decimal.Decimal `db:"bid_amount"                json:"bid_amount"`
	EstimatedCompletionDays *int            `db:"estimated_completion_days" json:"estimated_completion_days,omitempty"`
	Status                  BidStatus       `db:"status"                    json:"status"`
	CreatedAt               time.Time       `db:"created_at"                json:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"                json:"updated_at"`
}
