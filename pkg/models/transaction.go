package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind is the closed set of ledger record kinds.
type TransactionKind string

const (
	TransactionPostingFee           TransactionKind = "posting_fee"
	TransactionCompletionSettlement TransactionKind = "completion_settlement"
	TransactionPayoutReleased       TransactionKind = "payout_released"
)

// Validate rejects kinds outside the closed set.
func (k TransactionKind) Validate() error {
	switch k {
	case TransactionPostingFee, TransactionCompletionSettlement, TransactionPayoutReleased:
		return nil
	default:
		return fmt.Errorf("unknown transaction kind %q", string(k))
	}
}

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Transaction is an append-only ledger record. Rows are never updated.
type Transaction struct {
	ID                 uuid.UUID       `db:"id"                   json:"id"`
	Kind               TransactionKind `db:"kind"                 json:"type"`
	JobID              uuid.UUID       `db:"job_id"               json:"job_id"`
	PilotID            *uuid.UUID      `db:"pilot_id"             json:"pilot_id,omitempty"`
	ClientID           uuid.UUID       `db:"client_id"            json:"client_id"`
	TotalAmount        decimal.Decimal `db:"total_amount"         json:"total_amount"`
	PlatformFee        decimal.Decimal `db:"platform_fee"         json:"platform_fee"`
	PilotPayout        decimal.Decimal `db:"pilot_payout"         json:"pilot_payout"`
	CommissionRate     decimal.Decimal `db:"commission_rate"      json:"commission_rate"`
	PaymentStatus      PaymentStatus   `db:"payment_status"       json:"payment_status"`
	ExternalPaymentRef *string         `db:"external_payment_ref" json:"external_payment_ref,omitempty"`
	CreatedAt          time.Time       `db:"created_at"           json:"created_at"`
}

// Balanced reports whether fee and payout add up to the total. Only
// completion settlements are required to balance.
func (t Transaction) Balanced() bool {
	return t.PlatformFee.Add(t.PilotPayout).Equal(t.TotalAmount)
}

// RevenueSummary aggregates the ledger per transaction kind.
type RevenueSummary struct {
	Kind        TransactionKind `json:"type"`
	Count       int             `json:"count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	PilotPayout decimal.Decimal `json:"pilot_payout"`
}
