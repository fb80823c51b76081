package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/api/response"
	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/permission"
)

// CatalogHandler serves the datasets, agents and columns a grant may see.
type CatalogHandler struct {
	catalog      catalog.Reader
	introspector engine.Introspector
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(c catalog.Reader, introspector engine.Introspector) *CatalogHandler {
	return &CatalogHandler{catalog: c, introspector: introspector}
}

// ListDatasets handles GET /v1/datasets.
func (h *CatalogHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets := permission.AccessibleDatasets(middleware.GetGrant(r.Context()), h.catalog)
	if datasets == nil {
		datasets = []catalog.Dataset{}
	}
	response.SuccessList(w, datasets, len(datasets), middleware.GetRequestID(r.Context()))
}

// ListAgents handles GET /v1/agents.
func (h *CatalogHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents := permission.AccessibleAgents(middleware.GetGrant(r.Context()), h.catalog)
	if agents == nil {
		agents = []catalog.Agent{}
	}
	response.SuccessList(w, agents, len(agents), middleware.GetRequestID(r.Context()))
}

// ListColumns handles GET /v1/datasets/{id}/tables/{table}/columns.
func (h *CatalogHandler) ListColumns(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	ds, ok := h.catalog.Dataset(chi.URLParam(r, "id"))
	if !ok {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Dataset not found", requestID)
		return
	}

	table, ok := ds.Table(chi.URLParam(r, "table"))
	if !ok {
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Table is not part of this dataset", requestID)
		return
	}

	if !permission.HasDatasetAccess(middleware.GetGrant(r.Context()), ds) {
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this dataset", requestID)
		return
	}

	columns, err := h.introspector.ListColumns(r.Context(), table)
	if err != nil {
		slog.Error("failed to list columns", "error", err, "table", table, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list columns", requestID)
		return
	}
	if columns == nil {
		columns = []engine.Column{}
	}

	response.SuccessList(w, columns, len(columns), requestID)
}
