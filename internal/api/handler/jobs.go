package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/kiranshivaraju/skybid/internal/lifecycle"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/shopspring/decimal"
)

// JobService is the part of the lifecycle manager the job handlers use.
type JobService interface {
	CreateJob(ctx context.Context, clientID uuid.UUID, d lifecycle.JobDraft) (*lifecycle.CreateJobResult, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	UpdateJobDetails(ctx context.Context, jobID, callerID uuid.UUID, p lifecycle.JobDetailsPatch) (*models.Job, error)
	ActivateJob(ctx context.Context, jobID, callerID uuid.UUID, paymentRef string) (*models.Job, error)
	CancelJob(ctx context.Context, jobID, callerID uuid.UUID) (*models.Job, error)
	CompleteJob(ctx context.Context, jobID, callerID uuid.UUID, in lifecycle.CompletionInput) (*lifecycle.CompletionResult, error)
	ListTransactionsForJob(ctx context.Context, jobID, callerID uuid.UUID) ([]*models.Transaction, error)
}

type createJobRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Deadline    *time.Time      `json:"deadline"`
	Budget      decimal.Decimal `json:"budget"`
	JobType     models.JobType  `json:"job_type"`
}

type createJobResponse struct {
	Job        *models.Job     `json:"job"`
	PostingFee decimal.Decimal `json:"posting_fee"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, ok := callerID(w, r)
		if !ok {
			return
		}
		var req createJobRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		res, err := svc.CreateJob(r.Context(), clientID, lifecycle.JobDraft{
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			Deadline:    req.Deadline,
			Budget:      req.Budget,
			JobType:     req.JobType,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Created(w, createJobResponse{Job: res.Job, PostingFee: res.PostingFee})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		job, err := svc.GetJob(r.Context(), jobID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

type updateJobRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Deadline    *time.Time `json:"deadline"`
}

// NewUpdateJobHandler returns an http.HandlerFunc for PATCH /api/v1/jobs/{jobID}.
func NewUpdateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		var req updateJobRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		job, err := svc.UpdateJobDetails(r.Context(), jobID, caller, lifecycle.JobDetailsPatch{
			Title:       req.Title,
			Description: req.Description,
			Location:    req.Location,
			Deadline:    req.Deadline,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewActivateJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/activate.
func NewActivateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		var req struct {
			PaymentRef string `json:"payment_ref"`
		}
		if !decodeBody(w, r, &req, false) {
			return
		}

		job, err := svc.ActivateJob(r.Context(), jobID, caller, req.PaymentRef)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		job, err := svc.CancelJob(r.Context(), jobID, caller)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

type completeJobResponse struct {
	Job         *models.Job               `json:"job"`
	Transaction *models.Transaction       `json:"transaction"`
	Transfer    *models.ScheduledTransfer `json:"transfer"`
}

// NewCompleteJobHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/complete. The body is optional.
func NewCompleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		var req struct {
			Rating *int    `json:"rating"`
			Review *string `json:"review"`
		}
		if !decodeBody(w, r, &req, true) {
			return
		}

		res, err := svc.CompleteJob(r.Context(), jobID, caller, lifecycle.CompletionInput{
			Rating: req.Rating,
			Review: req.Review,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, completeJobResponse{
			Job:         res.Job,
			Transaction: res.Transaction,
			Transfer:    res.Transfer,
		})
	}
}

// NewListTransactionsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/transactions.
func NewListTransactionsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := callerID(w, r)
		if !ok {
			return
		}
		jobID, ok := pathID(w, r, "jobID", "INVALID_JOB_ID")
		if !ok {
			return
		}
		txs, err := svc.ListTransactionsForJob(r.Context(), jobID, caller)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if txs == nil {
			txs = []*models.Transaction{}
		}
		response.JSON(w, txs)
	}
}
