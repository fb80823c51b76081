package validation

import "strings"

// ReportRequest mirrors the fields needed for report validation.
type ReportRequest struct {
	DatasetID         string
	Table             string
	GroupBy           string
	Aggregation       string
	AggregationColumn string
	Limit             int
}

// ValidateReportRequest checks request shape only. Identifier membership is
// checked by the report builder against the catalogue and live columns.
func ValidateReportRequest(req ReportRequest) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(req.DatasetID) == "" {
		errs = append(errs, FieldError{Field: "datasetId", Message: "datasetId is required"})
	}
	if strings.TrimSpace(req.Table) == "" {
		errs = append(errs, FieldError{Field: "table", Message: "table is required"})
	}

	switch strings.ToUpper(req.Aggregation) {
	case "", "SUM", "COUNT", "AVG":
	default:
		errs = append(errs, FieldError{Field: "aggregation", Message: "aggregation must be one of SUM, COUNT, AVG"})
	}

	if req.AggregationColumn != "" && req.Aggregation == "" {
		errs = append(errs, FieldError{Field: "aggregation", Message: "aggregation is required when aggregationColumn is set"})
	}

	if req.Limit < 0 {
		errs = append(errs, FieldError{Field: "limit", Message: "limit must not be negative"})
	}

	return errs
}
