package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of outbox event kinds.
type EventKind string

const (
	EventTransactionRecorded   EventKind = "transaction_recorded"
	EventTransferStatusChanged EventKind = "transfer_status_changed"
	EventJobStatusChanged      EventKind = "job_status_changed"
	EventBidStatusChanged      EventKind = "bid_status_changed"
	EventReconciliationFlagged EventKind = "reconciliation_flagged"
)

func (k EventKind) Validate() error {
	switch k {
	case EventTransactionRecorded, EventTransferStatusChanged, EventJobStatusChanged,
		EventBidStatusChanged, EventReconciliationFlagged:
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", string(k))
	}
}

// OutboxEvent is written in the same database transaction as the change it
// describes and delivered later by the outbox dispatcher.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	Kind         EventKind       `db:"kind"          json:"kind"`
	AggregateID  uuid.UUID       `db:"aggregate_id"  json:"aggregate_id"`
	Payload      json.RawMessage `db:"payload"       json:"payload"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	DispatchedAt *time.Time      `db:"dispatched_at" json:"dispatched_at,omitempty"`
}

// NewEvent marshals payload into an outbox event.
func NewEvent(kind EventKind, aggregateID uuid.UUID, payload any, at time.Time) (OutboxEvent, error) {
	if err := kind.Validate(); err != nil {
		return OutboxEvent{}, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return OutboxEvent{
		ID:          uuid.New(),
		Kind:        kind,
		AggregateID: aggregateID,
		Payload:     b,
		CreatedAt:   at,
	}, nil
}

// StatusChange is the payload of job, bid and transfer status events.
type StatusChange struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}
