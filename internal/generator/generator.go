// Package generator talks to the external text-generation service that turns
// questions into candidate SQL.
package generator

import (
	"context"
	"errors"
)

var (
	// ErrAuth means the generator rejected our credentials or is not configured.
	ErrAuth = errors.New("generator authentication failed")
	// ErrTimeout means the generator did not answer within its time budget.
	ErrTimeout = errors.New("generator timed out")
	// ErrUnavailable means the generator could not be reached or is overloaded.
	ErrUnavailable = errors.New("generator unavailable")
)

// Prompt is everything the generator sees for one call.
type Prompt struct {
	Question    string
	Schema      string
	FileContext string
	ScopeHint   string
	FocusTables []string

	// Set on the corrective retry only.
	PreviousSQL string
	RetryError  string
}

// IsRetry reports whether p carries execution feedback.
func (p Prompt) IsRetry() bool {
	return p.RetryError != ""
}

// Reply is the raw generator output.
type Reply struct {
	Text       string
	TokensUsed int
	Model      string
}

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (*Reply, error)
}
