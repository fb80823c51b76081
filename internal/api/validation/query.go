package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxQuestionLength    = 500
	maxSessionIDLength   = 128
	maxFileContextLength = 20000
	maxFocusTables       = 20
)

// QueryRequest mirrors the fields needed for question validation.
type QueryRequest struct {
	Question    string
	SessionID   string
	FileContext string
	FocusTables []string
}

// ValidateQueryRequest validates the fields of a question request.
func ValidateQueryRequest(req QueryRequest) []FieldError {
	var errs []FieldError

	q := strings.TrimSpace(req.Question)
	if q == "" {
		errs = append(errs, FieldError{Field: "question", Message: "question is required"})
	} else if utf8.RuneCountInString(q) > maxQuestionLength {
		errs = append(errs, FieldError{Field: "question", Message: fmt.Sprintf("question must be at most %d characters", maxQuestionLength)})
	}

	if len(req.SessionID) > maxSessionIDLength {
		errs = append(errs, FieldError{Field: "sessionId", Message: fmt.Sprintf("sessionId must be at most %d characters", maxSessionIDLength)})
	}

	if utf8.RuneCountInString(req.FileContext) > maxFileContextLength {
		errs = append(errs, FieldError{Field: "fileContext", Message: fmt.Sprintf("fileContext must be at most %d characters", maxFileContextLength)})
	}

	if len(req.FocusTables) > maxFocusTables {
		errs = append(errs, FieldError{Field: "focus.tables", Message: fmt.Sprintf("focus.tables must list at most %d tables", maxFocusTables)})
	}

	return errs
}
