package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/api/response"
	"github.com/daap14/askdb/internal/catalog"
)

// DBPinger checks database connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	dbPinger DBPinger
	catalog  catalog.Reader
	version  string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pinger DBPinger, c catalog.Reader, version string) *HealthHandler {
	return &HealthHandler{
		dbPinger: pinger,
		catalog:  c,
		version:  version,
	}
}

type databaseStatus struct {
	Connected bool `json:"connected"`
}

type catalogStatus struct {
	Datasets int `json:"datasets"`
	Agents   int `json:"agents"`
}

type healthData struct {
	Status   string         `json:"status"`
	Version  string         `json:"version"`
	Database databaseStatus `json:"database"`
	Catalog  catalogStatus  `json:"catalog"`
}

// ServeHTTP handles the health check request. The status is degraded when
// the database is unreachable or the catalogue is empty.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	data := healthData{Status: "healthy", Version: h.version}

	if h.dbPinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.dbPinger.Ping(ctx); err != nil {
			slog.Warn("health check: database ping failed", "error", err)
		} else {
			data.Database.Connected = true
		}
	}

	if h.catalog != nil {
		data.Catalog.Datasets = len(h.catalog.Datasets())
		data.Catalog.Agents = len(h.catalog.Agents())
	}

	if !data.Database.Connected || data.Catalog.Datasets == 0 {
		data.Status = "degraded"
	}

	response.Success(w, http.StatusOK, data, requestID)
}
