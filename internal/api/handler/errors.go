// Package handler implements the HTTP handlers for the SkyBid API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/skybid/internal/api/middleware"
	"github.com/kiranshivaraju/skybid/internal/api/response"
	"github.com/kiranshivaraju/skybid/internal/gateway"
	"github.com/kiranshivaraju/skybid/internal/lifecycle"
	"github.com/kiranshivaraju/skybid/internal/settlement"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order. The first match wins, so specific
// sentinels come before the ones they might wrap.
var errorTable = []errorMapping{
	{lifecycle.ErrInvalidInput, http.StatusBadRequest, "INVALID_REQUEST"},
	{lifecycle.ErrUnknownJobType, http.StatusUnprocessableEntity, "UNKNOWN_JOB_TYPE"},
	{lifecycle.ErrBudgetTooLow, http.StatusUnprocessableEntity, "BUDGET_TOO_LOW"},
	{lifecycle.ErrBidTooLow, http.StatusUnprocessableEntity, "BID_TOO_LOW"},

	{lifecycle.ErrJobNotFound, http.StatusNotFound, "JOB_NOT_FOUND"},
	{lifecycle.ErrBidNotFound, http.StatusNotFound, "BID_NOT_FOUND"},
	{settlement.ErrTransferNotFound, http.StatusNotFound, "TRANSFER_NOT_FOUND"},

	{lifecycle.ErrNotJobOwner, http.StatusForbidden, "NOT_JOB_OWNER"},
	{lifecycle.ErrBiddingNotPermitted, http.StatusForbidden, "BIDDING_NOT_PERMITTED"},

	{lifecycle.ErrJobNotOpen, http.StatusConflict, "JOB_NOT_OPEN"},
	{lifecycle.ErrJobAlreadyAssigned, http.StatusConflict, "JOB_ALREADY_ASSIGNED"},
	{lifecycle.ErrInvalidStateTransition, http.StatusConflict, "INVALID_STATE_TRANSITION"},
	{lifecycle.ErrDuplicateBid, http.StatusConflict, "DUPLICATE_BID"},
	{lifecycle.ErrSelfBidNotAllowed, http.StatusConflict, "SELF_BID_NOT_ALLOWED"},
	{settlement.ErrTransferNotFailed, http.StatusConflict, "TRANSFER_NOT_FAILED"},
	{settlement.ErrRetriesExhausted, http.StatusConflict, "RETRIES_EXHAUSTED"},

	{gateway.ErrGatewayTimeout, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT"},
	{lifecycle.ErrPaymentVerificationFailed, http.StatusBadGateway, "PAYMENT_VERIFICATION_FAILED"},
	{lifecycle.ErrAccountLookupFailed, http.StatusBadGateway, "ACCOUNT_LOOKUP_FAILED"},

	{lifecycle.ErrInvariantViolation, http.StatusInternalServerError, "INVARIANT_VIOLATION"},
}

var kindStatus = map[lifecycle.Kind]int{
	lifecycle.KindValidation: http.StatusUnprocessableEntity,
	lifecycle.KindState:      http.StatusConflict,
	lifecycle.KindExternal:   http.StatusBadGateway,
	lifecycle.KindInvariant:  http.StatusInternalServerError,
}

// writeServiceError maps a service error onto the API error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			msg := err.Error()
			if m.status == http.StatusInternalServerError {
				slog.Error("request failed", "path", r.URL.Path, "code", m.code, "error", err)
				msg = "The job was flagged for reconciliation"
			}
			response.Error(w, m.status, m.code, msg, nil)
			return
		}
	}

	if status, ok := kindStatus[lifecycle.KindOf(err)]; ok {
		response.Error(w, status, "REQUEST_FAILED", err.Error(), nil)
		return
	}

	slog.Error("unexpected error", "path", r.URL.Path, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}

// callerID returns the authenticated account, writing a 401 when missing.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := mw.GetAccountID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a UUID route parameter, writing a 400 when malformed.
func pathID(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// decodeBody decodes a JSON request body into v. An empty body is allowed
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}
