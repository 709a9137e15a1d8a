// Package gateway talks to the external funds gateway that verifies posting
// fee payments and releases pilot payouts.
package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sentinel errors for funds gateway failures.
var (
	ErrGatewayUnreachable = errors.New("funds gateway unreachable")
	ErrGatewayTimeout     = errors.New("funds gateway timeout")
	ErrGatewayRejected    = errors.New("funds gateway rejected request")
)

// Gateway is the funds movement capability consumed by the engine.
type Gateway interface {
	VerifyPayment(ctx context.Context, reference string) (Verification, error)
	ReleaseTransfer(ctx context.Context, req ReleaseRequest) (Release, error)
}

// Verification is the gateway's view of a payment confirmation.
type Verification struct {
	Reference string          `json:"reference"`
	Succeeded bool            `json:"succeeded"`
	Amount    decimal.Decimal `json:"amount"`
}

// ReleaseRequest asks the gateway to pay Amount to the pilot's payout
// destination. Requests with the same IdempotencyKey move money at most once.
type ReleaseRequest struct {
	PilotID        uuid.UUID
	Amount         decimal.Decimal
	IdempotencyKey string
}

// Release is the gateway's receipt for a payout.
type Release struct {
	TransferRef string `json:"transfer_ref"`
}
