package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/api/response"
	"github.com/daap14/askdb/internal/api/validation"
	"github.com/daap14/askdb/internal/engine"
	"github.com/daap14/askdb/internal/permission"
	"github.com/daap14/askdb/internal/report"
)

// ReportRunner builds and executes reports.
type ReportRunner interface {
	Run(ctx context.Context, grant *permission.Grant, req report.Request) (*report.Report, error)
}

type reportRequest struct {
	DatasetID         string   `json:"datasetId"`
	Table             string   `json:"table"`
	Columns           []string `json:"columns"`
	GroupBy           string   `json:"groupBy"`
	Aggregation       string   `json:"aggregation"`
	AggregationColumn string   `json:"aggregationColumn"`
	Limit             int      `json:"limit"`
}

type reportResponse struct {
	SQL      string           `json:"sql"`
	Shape    report.Shape     `json:"shape"`
	Limit    int              `json:"limit"`
	Rows     []map[string]any `json:"rows"`
	Fields   []engine.Field   `json:"fields"`
	RowCount int              `json:"rowCount"`
}

// ReportHandler handles POST /v1/reports.
type ReportHandler struct {
	runner ReportRunner
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(runner ReportRunner) *ReportHandler {
	return &ReportHandler{runner: runner}
}

// Run handles POST /v1/reports.
func (h *ReportHandler) Run(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateReportRequest(validation.ReportRequest{
		DatasetID:         req.DatasetID,
		Table:             req.Table,
		GroupBy:           req.GroupBy,
		Aggregation:       req.Aggregation,
		AggregationColumn: req.AggregationColumn,
		Limit:             req.Limit,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	rep, err := h.runner.Run(r.Context(), middleware.GetGrant(r.Context()), report.Request{
		DatasetID:         req.DatasetID,
		Table:             req.Table,
		Columns:           req.Columns,
		GroupBy:           req.GroupBy,
		Aggregation:       report.Aggregation(req.Aggregation),
		AggregationColumn: req.AggregationColumn,
		Limit:             req.Limit,
	})
	if err != nil {
		writeReportError(w, err, requestID)
		return
	}

	response.Success(w, http.StatusOK, reportResponse{
		SQL:      rep.Query.SQL,
		Shape:    rep.Query.Shape,
		Limit:    rep.Query.Limit,
		Rows:     rep.Result.Rows,
		Fields:   rep.Result.Fields,
		RowCount: rep.Result.RowCount,
	}, requestID)
}

func writeReportError(w http.ResponseWriter, err error, requestID string) {
	var (
		connErr    *engine.ConnectionError
		timeoutErr *engine.TimeoutError
		queryErr   *engine.QueryError
	)

	switch {
	case errors.Is(err, report.ErrDatasetNotFound):
		response.Err(w, http.StatusNotFound, "NOT_FOUND", "Dataset not found", requestID)
	case errors.Is(err, report.ErrAccessDenied):
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this dataset", requestID)
	case errors.Is(err, report.ErrInvalidTable),
		errors.Is(err, report.ErrInvalidColumn),
		errors.Is(err, report.ErrInvalidAggregation),
		errors.Is(err, report.ErrNonNumericAggregation):
		response.Err(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
	case errors.Is(err, context.Canceled):
		slog.Info("report abandoned by caller", "requestId", requestID)
	case errors.As(err, &connErr):
		slog.Error("report failed: database unreachable", "error", err, "requestId", requestID)
		response.Err(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", "The database is unreachable", requestID)
	case errors.As(err, &timeoutErr):
		slog.Warn("report timed out", "error", err, "requestId", requestID)
		response.Err(w, http.StatusGatewayTimeout, "TIMEOUT", "The report took too long to run", requestID)
	case errors.As(err, &queryErr):
		slog.Error("report query failed", "error", err, "code", queryErr.Code, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to run report", requestID)
	default:
		slog.Error("failed to run report", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to run report", requestID)
	}
}
