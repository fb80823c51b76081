package permission

import (
	"context"
	"errors"
)

// ErrGrantNotFound is returned when no grant exists for a principal.
var ErrGrantNotFound = errors.New("grant not found")

// Store persists grants. Upsert must be idempotent: writing the same grant
// twice, or concurrently, converges to a single record per principal.
type Store interface {
	List(ctx context.Context) ([]Grant, error)
	Get(ctx context.Context, principalID string) (*Grant, error)
	Upsert(ctx context.Context, g *Grant) error
	Delete(ctx context.Context, principalID string) error
}
