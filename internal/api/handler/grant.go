package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/api/response"
	"github.com/daap14/askdb/internal/api/validation"
	"github.com/daap14/askdb/internal/permission"
)

// AllowlistChecker reports whether a principal is a permanent admin.
type AllowlistChecker interface {
	IsAllowlisted(principalID string) bool
}

type putGrantRequest struct {
	Kind             string   `json:"kind"`
	Role             string   `json:"role"`
	IsActive         *bool    `json:"isActive"`
	Datasets         []string `json:"datasets"`
	Agents           []string `json:"agents"`
	CanViewDashboard bool     `json:"canViewDashboard"`
	CanViewReports   bool     `json:"canViewReports"`
}

type grantResponse struct {
	PrincipalID      string   `json:"principalId"`
	Kind             string   `json:"kind"`
	Role             string   `json:"role"`
	IsActive         bool     `json:"isActive"`
	IsAdmin          bool     `json:"isAdmin"`
	Allowlisted      bool     `json:"allowlisted"`
	Datasets         []string `json:"datasets"`
	Agents           []string `json:"agents"`
	CanViewDashboard bool     `json:"canViewDashboard"`
	CanViewReports   bool     `json:"canViewReports"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// GrantHandler handles grant administration and GET /v1/me.
type GrantHandler struct {
	store     permission.Store
	allowlist AllowlistChecker
}

// NewGrantHandler creates a new GrantHandler.
func NewGrantHandler(store permission.Store, allowlist AllowlistChecker) *GrantHandler {
	return &GrantHandler{store: store, allowlist: allowlist}
}

func (h *GrantHandler) toResponse(g *permission.Grant) grantResponse {
	resp := grantResponse{
		PrincipalID:      g.PrincipalID,
		Kind:             string(g.Kind),
		Role:             string(g.Role),
		IsActive:         g.IsActive,
		IsAdmin:          g.IsAdmin(),
		Allowlisted:      h.allowlist.IsAllowlisted(g.PrincipalID),
		Datasets:         nonNil(g.Datasets),
		Agents:           nonNil(g.Agents),
		CanViewDashboard: g.CanViewDashboard,
		CanViewReports:   g.CanViewReports,
	}
	if !g.CreatedAt.IsZero() {
		resp.CreatedAt = g.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !g.UpdatedAt.IsZero() {
		resp.UpdatedAt = g.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Me handles GET /v1/me.
func (h *GrantHandler) Me(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, h.toResponse(middleware.GetGrant(r.Context())), middleware.GetRequestID(r.Context()))
}

// List handles GET /v1/grants.
func (h *GrantHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	grants, err := h.store.List(r.Context())
	if err != nil {
		slog.Error("failed to list grants", "error", err)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list grants", requestID)
		return
	}

	items := make([]grantResponse, 0, len(grants))
	for i := range grants {
		items = append(items, h.toResponse(&grants[i]))
	}

	response.SuccessList(w, items, len(items), requestID)
}

// Put handles PUT /v1/grants/{principalId}. Allow-listed principals cannot
// be demoted or deactivated.
func (h *GrantHandler) Put(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	principalID := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "principalId")))

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req putGrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidatePutGrantRequest(validation.PutGrantRequest{
		PrincipalID: principalID,
		Kind:        req.Kind,
		Role:        req.Role,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	g := &permission.Grant{
		PrincipalID:      principalID,
		Kind:             permission.PrincipalKind(req.Kind),
		Role:             permission.Role(req.Role),
		IsActive:         req.IsActive == nil || *req.IsActive,
		Datasets:         nonNil(req.Datasets),
		Agents:           nonNil(req.Agents),
		CanViewDashboard: req.CanViewDashboard,
		CanViewReports:   req.CanViewReports,
	}
	if g.Kind == "" {
		g.Kind = permission.KindUser
	}

	if h.allowlist.IsAllowlisted(principalID) && !g.IsAdmin() {
		response.Err(w, http.StatusConflict, "CONFLICT", "Allow-listed principals must remain active admins", requestID)
		return
	}

	if err := h.store.Upsert(r.Context(), g); err != nil {
		slog.Error("failed to save grant", "error", err, "principal", principalID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save grant", requestID)
		return
	}

	slog.Info("grant saved",
		"principal", principalID,
		"role", g.Role,
		"active", g.IsActive,
		"by", actor(r.Context()),
	)

	response.Success(w, http.StatusOK, h.toResponse(g), requestID)
}

// Delete handles DELETE /v1/grants/{principalId}.
func (h *GrantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	principalID := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "principalId")))

	if h.allowlist.IsAllowlisted(principalID) {
		response.Err(w, http.StatusConflict, "CONFLICT", "Allow-listed principals cannot be removed", requestID)
		return
	}

	if err := h.store.Delete(r.Context(), principalID); err != nil {
		if errors.Is(err, permission.ErrGrantNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Grant not found", requestID)
			return
		}
		slog.Error("failed to delete grant", "error", err, "principal", principalID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete grant", requestID)
		return
	}

	slog.Info("grant deleted", "principal", principalID, "by", actor(r.Context()))

	response.NoContent(w)
}

func actor(ctx context.Context) string {
	if id := middleware.GetIdentity(ctx); id != nil {
		return id.PrincipalID
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
