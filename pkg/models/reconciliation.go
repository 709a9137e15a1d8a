package models

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationFlag marks a record for manual review. Nothing acts on a flag
// automatically.
type ReconciliationFlag struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	EntityKind string     `db:"entity_kind" json:"entity_kind"`
	EntityID   uuid.UUID  `db:"entity_id"   json:"entity_id"`
	Reason     string     `db:"reason"      json:"reason"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}
