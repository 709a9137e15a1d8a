package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/kiranshivaraju/skybid/internal/lifecycle"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
)

// BidService is the part of the lifecycle manager the bid handlers use.
type BidService interface {
	SubmitBid(ctx context.Context, jobID, pilotID uuid.UUID, d lifecycle.BidDraft) (*models.Bid, error)
	ListBidsForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Bid, error)
	AcceptBid(ctx context.Context, jobID, bidID, callerID uuid.UUID) (*models.Job, error)
}

type submitBidRequest struct {
	Proposal                string          `json:"proposal"`
	BidAmount               decimal.Decimal `json:"bid_amount"`
	EstimatedCompletionDays *int            `json:"estimated_completion_days"`
}

// NewSubmitBidHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/bids. The caller bids as the pilot.
func NewSubmitBidHandler(svc BidService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pilotID, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		var req submitBidRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		bid, err := svc.SubmitBid(r.Context(), jobID, pilotID, lifecycle.BidDraft{
			Proposal:                req.Proposal,
			BidAmount:               req.BidAmount,
			EstimatedCompletionDays: req.EstimatedCompletionDays,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, bid)
	}
}

// NewListBidsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/bids.
func NewListBidsHandler(svc BidService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		bids, err := svc.ListBidsForJob(r.Context(), jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if bids == nil {
			bids = []*models.Bid{}
		}
		response.JSON(w, bids)
	}
}

// NewAcceptBidHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/bids/{bidID}/accept.
func NewAcceptBidHandler(svc BidService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		bidID, ok := pathID(w, r, "bidID", "INVALID_BID_ID")
		if !ok {
			return
		}

		job, err := svc.AcceptBid(r.Context(), jobID, bidID, caller)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}
