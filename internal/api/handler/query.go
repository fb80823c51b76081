package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/api/response"
	"github.com/daap14/askdb/internal/api/validation"
	"github.com/daap14/askdb/internal/nlsql"
	"github.com/daap14/askdb/internal/permission"
)

// Asker answers natural-language questions.
type Asker interface {
	Ask(ctx context.Context, grant *permission.Grant, req nlsql.Request) (*nlsql.Response, error)
}

type focusRequest struct {
	DatasetID string   `json:"datasetId"`
	Tables    []string `json:"tables"`
}

type queryRequest struct {
	Question    string        `json:"question"`
	SessionID   string        `json:"sessionId"`
	FileContext string        `json:"fileContext"`
	Focus       *focusRequest `json:"focus"`
}

// QueryHandler handles POST /v1/query.
type QueryHandler struct {
	asker Asker
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(asker Asker) *QueryHandler {
	return &QueryHandler{asker: asker}
}

// Ask handles POST /v1/query. Pipeline failures are reported in-band with
// status 200; only request-shape and access errors use error statuses.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	v := validation.QueryRequest{Question: req.Question, SessionID: req.SessionID, FileContext: req.FileContext}
	if req.Focus != nil {
		v.FocusTables = req.Focus.Tables
	}
	if fieldErrors := validation.ValidateQueryRequest(v); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	in := nlsql.Request{
		Question:    req.Question,
		SessionID:   req.SessionID,
		FileContext: req.FileContext,
	}
	if req.Focus != nil {
		in.Focus = &nlsql.Focus{DatasetID: strings.TrimSpace(req.Focus.DatasetID), Tables: req.Focus.Tables}
	}

	resp, err := h.asker.Ask(r.Context(), middleware.GetGrant(r.Context()), in)
	if err != nil {
		switch {
		case errors.Is(err, nlsql.ErrEmptyQuestion), errors.Is(err, nlsql.ErrQuestionTooLong), errors.Is(err, nlsql.ErrInvalidFocus):
			response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
		case errors.Is(err, nlsql.ErrAccessDenied):
			response.Err(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to the requested data", requestID)
		case errors.Is(err, context.Canceled):
			slog.Info("question abandoned by caller", "requestId", requestID)
		default:
			slog.Error("failed to answer question", "error", err, "requestId", requestID)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to answer question", requestID)
		}
		return
	}

	response.Success(w, http.StatusOK, resp, requestID)
}
