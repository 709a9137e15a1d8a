package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/skybid/internal/api/middleware"
	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/kiranshivaraju/skybid/internal/settlement"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/pkg/models"
)

// RevenueReporter aggregates the transaction ledger.
type RevenueReporter interface {
	RevenueSummary(ctx context.Context, since time.Time) ([]models.RevenueSummary, error)
}

// defaultRevenueWindow is used when the since parameter is omitted.
const defaultRevenueWindow = 30 * 24 * time.Hour

// NewRevenueHandler returns an http.HandlerFunc for
// GET /api/v1/reports/revenue?since=RFC3339.
func NewRevenueHandler(svc RevenueReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		since := time.Now().UTC().Add(-defaultRevenueWindow)
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			since = t
		}

		rows, err := svc.RevenueSummary(r.Context(), since)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if rows == nil {
			rows = []models.RevenueSummary{}
		}
		response.JSON(w, map[string]any{
			"since":   since.UTC().Format(time.RFC3339),
			"summary": rows,
		})
	}
}

// SettlementRunner drives the settlement processor on demand.
type SettlementRunner interface {
	RunDue(ctx context.Context) (settlement.BatchResult, error)
	Reschedule(ctx context.Context, transferID uuid.UUID, at *time.Time) (*models.ScheduledTransfer, error)
}

// NewRunSettlementsHandler returns an http.HandlerFunc for
// POST /api/v1/admin/settlements/run.
func NewRunSettlementsHandler(svc SettlementRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.RunDue(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewRescheduleTransferHandler returns an http.HandlerFunc for
// POST /api/v1/admin/transfers/{transferID}/reschedule. Without a body the
// transfer is rescheduled after the retry backoff.
func NewRescheduleTransferHandler(svc SettlementRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transferID, ok := pathID(w, r, "transferID", "INVALID_TRANSFER_ID")
		if !ok {
			return
		}
		var req struct {
			ScheduledFor *time.Time `json:"scheduled_for"`
		}
		if !decodeBody(w, r, &req, true) {
			return
		}

		t, err := svc.Reschedule(r.Context(), transferID, req.ScheduledFor)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, t)
	}
}

// KeyCreator persists new API keys.
type KeyCreator interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// NewCreateKeyHandler returns an http.HandlerFunc for POST /api/v1/admin/keys.
// The raw key is only ever returned in this response.
func NewCreateKeyHandler(s KeyCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccountID uuid.UUID `json:"account_id"`
			Name      string    `json:"name"`
			Scopes    []string  `json:"scopes"`
		}
		if !decodeBody(w, r, &req, false) {
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || req.AccountID == uuid.Nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "account_id and name are required", nil)
			return
		}
		if len(req.Scopes) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one scope is required", nil)
			return
		}
		for _, sc := range req.Scopes {
			if !models.IsValidScope(sc) {
				response.Error(w, http.StatusBadRequest, "INVALID_SCOPE", "unknown scope "+sc, nil)
				return
			}
		}

		raw, key, err := mw.GenerateAPIKey(req.AccountID, req.Name, req.Scopes)
		if err != nil {
			slog.Error("api key generation failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}
		if err := s.CreateAPIKey(r.Context(), key); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE_KEY", "API key with this name already exists", nil)
				return
			}
			slog.Error("api key insert failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
			return
		}

		response.Created(w, map[string]any{
			"id":         key.ID.String(),
			"account_id": key.AccountID.String(),
			"name":       key.Name,
			"key":        raw,
			"key_prefix": key.KeyPrefix,
			"scopes":     key.Scopes,
			"created_at": key.CreatedAt,
		})
	}
}
