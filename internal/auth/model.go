package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/daap14/askdb/internal/permission"
)

// APIKey represents a row in the api_keys table.
type APIKey struct {
	ID            uuid.UUID
	PrincipalID   string
	PrincipalKind permission.PrincipalKind
	Label         string
	KeyPrefix     string
	KeyHash       string
	CreatedAt     time.Time
	RevokedAt     *time.Time
}

// Identity is stored in the request context after authentication.
type Identity struct {
	PrincipalID string
	Kind        permission.PrincipalKind
	KeyID       uuid.UUID
}

// Principal returns the permission principal for the identity.
func (i *Identity) Principal() permission.Principal {
	return permission.Principal{ID: i.PrincipalID, Kind: i.Kind}
}
