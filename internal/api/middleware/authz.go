package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/daap14/askdb/internal/api/response"
	"github.com/daap14/askdb/internal/permission"
)

const grantKey contextKey = "grant"

// GrantResolver maps a principal to its grant.
type GrantResolver interface {
	Resolve(ctx context.Context, principal permission.Principal) (*permission.Grant, error)
}

// ResolveGrant returns middleware that loads the grant of the authenticated
// principal. Principals without an active grant are rejected with 403.
func ResolveGrant(resolver GrantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			identity := GetIdentity(r.Context())
			if identity == nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required", requestID)
				return
			}

			grant, err := resolver.Resolve(r.Context(), identity.Principal())
			if err != nil {
				if errors.Is(err, permission.ErrGrantNotFound) {
					response.Err(w, http.StatusForbidden, "FORBIDDEN", "No access has been granted to this principal", requestID)
					return
				}
				slog.Error("failed to resolve grant", "error", err, "principal", identity.PrincipalID, "requestId", requestID)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resolve access", requestID)
				return
			}

			if !grant.IsActive {
				response.Err(w, http.StatusForbidden, "FORBIDDEN", "Access for this principal is disabled", requestID)
				return
			}

			ctx := context.WithValue(r.Context(), grantKey, grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns middleware that rejects non-admin grants with 403.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			grant := GetGrant(r.Context())
			if grant == nil {
				response.Err(w, http.StatusForbidden, "FORBIDDEN", "No access has been granted to this principal", requestID)
				return
			}

			if !grant.IsAdmin() {
				response.Err(w, http.StatusForbidden, "FORBIDDEN", "Admin access required", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetGrant retrieves the resolved grant from the request context.
func GetGrant(ctx context.Context) *permission.Grant {
	if g, ok := ctx.Value(grantKey).(*permission.Grant); ok {
		return g
	}
	return nil
}

// WithGrant returns a copy of ctx carrying grant.
func WithGrant(ctx context.Context, grant *permission.Grant) context.Context {
	return context.WithValue(ctx, grantKey, grant)
}
