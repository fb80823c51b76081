package validation

import "strings"

const maxPrincipalIDLength = 320

// PutGrantRequest mirrors the fields needed for grant validation.
type PutGrantRequest struct {
	PrincipalID string
	Kind        string
	Role        string
}

// ValidatePutGrantRequest validates the fields of a grant upsert.
func ValidatePutGrantRequest(req PutGrantRequest) []FieldError {
	var errs []FieldError

	id := strings.TrimSpace(req.PrincipalID)
	if id == "" {
		errs = append(errs, FieldError{Field: "principalId", Message: "principalId is required"})
	} else if len(id) > maxPrincipalIDLength {
		errs = append(errs, FieldError{Field: "principalId", Message: "principalId must be at most 320 characters"})
	}

	if req.Kind != "" && req.Kind != "user" && req.Kind != "group" {
		errs = append(errs, FieldError{Field: "kind", Message: "kind must be \"user\" or \"group\""})
	}

	if req.Role == "" {
		errs = append(errs, FieldError{Field: "role", Message: "role is required"})
	} else if req.Role != "admin" && req.Role != "user" {
		errs = append(errs, FieldError{Field: "role", Message: "role must be \"admin\" or \"user\""})
	}

	return errs
}
