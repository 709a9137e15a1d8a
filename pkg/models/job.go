// Package models contains the shared data model of the SkyBid marketplace engine.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobType selects the fee schedule applied to a job.
type JobType string

const (
	JobTypeCustom    JobType = "custom"
	JobTypeSponsored JobType = "sponsored"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeCustom, JobTypeSponsored:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPendingPayment JobStatus = "pending_payment"
	JobStatusOpen           JobStatus = "open"
	JobStatusInProgress     JobStatus = "in_progress"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusCancelled      JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPendingPayment: {JobStatusOpen, JobStatusCancelled},
	JobStatusOpen:           {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress:     {JobStatusCompleted},
}

// CanTransition reports whether the state machine has an edge from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transitions leave s.
func (s JobStatus) Terminal() bool {
	return len(jobTransitions[s]) == 0
}

// Job is a unit of work posted by a client. CommissionRate is frozen when the
// job is created and never recomputed.
type Job struct {
	ID              uuid.UUID       `db:"id"                json:"id"`
	ClientID        uuid.UUID       `db:"client_id"         json:"client_id"`
	Title           string          `db:"title"             json:"title"`
	Description     string          `db:"description"       json:"description"`
	Location        string          `db:"location"          json:"location"`
	Deadline        *time.Time      `db:"deadline"          json:"deadline,omitempty"`
	Budget          decimal.Decimal `db:"budget"            json:"budget"`
	JobType         JobType         `db:"job_type"          json:"job_type"`
	CommissionRate  decimal.Decimal `db:"commission_rate"   json:"commission_rate"`
	PostingFee      decimal.Decimal `db:"posting_fee"       json:"posting_fee"`
	PostingFeePaid  bool            `db:"posting_fee_paid"  json:"posting_fee_paid"`
	PaymentRef      *string         `db:"payment_ref"       json:"payment_ref,omitempty"`
	Status          JobStatus       `db:"status"            json:"status"`
	AssignedPilotID *uuid.UUID      `db:"assigned_pilot_id" json:"assigned_pilot_id,omitempty"`
	AcceptedBidID   *uuid.UUID      `db:"accepted_bid_id"   json:"accepted_bid_id,omitempty"`
	Rating          *int            `db:"rating"            json:"rating,omitempty"`
	Review          *string         `db:"review"            json:"review,omitempty"`
	CreatedAt       time.Time       `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"        json:"updated_at"`
}
