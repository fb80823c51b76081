package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/auth"
	"github.com/daap14/askdb/internal/permission"
)

type mockGrantResolver struct {
	resolveFn func(ctx context.Context, principal permission.Principal) (*permission.Grant, error)
}

func (m *mockGrantResolver) Resolve(ctx context.Context, principal permission.Principal) (*permission.Grant, error) {
	return m.resolveFn(ctx, principal)
}

func resolverReturning(g *permission.Grant, err error) *mockGrantResolver {
	return &mockGrantResolver{
		resolveFn: func(_ context.Context, _ permission.Principal) (*permission.Grant, error) {
			return g, err
		},
	}
}

// withIdentity runs r through Auth so its context carries an Identity.
func withIdentity(r *http.Request, principalID string) *http.Request {
	r.Header.Set("X-API-Key", "k")
	authn := keyAuthenticator("k", &auth.Identity{PrincipalID: principalID, Kind: permission.KindUser})

	var out *http.Request
	middleware.Auth(authn)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		out = r
	})).ServeHTTP(httptest.NewRecorder(), r)
	return out
}

func TestResolveGrant_ActiveGrant(t *testing.T) {
	grant := &permission.Grant{PrincipalID: "alice@example.com", Role: permission.RoleUser, IsActive: true}
	var gotPrincipal permission.Principal
	resolver := &mockGrantResolver{
		resolveFn: func(_ context.Context, p permission.Principal) (*permission.Grant, error) {
			gotPrincipal = p
			return grant, nil
		},
	}

	var got *permission.Grant
	handler := middleware.ResolveGrant(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetGrant(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "alice@example.com")
	require.NotNil(t, req)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Same(t, grant, got)
	assert.Equal(t, "alice@example.com", gotPrincipal.ID)
	assert.Equal(t, permission.KindUser, gotPrincipal.Kind)
}

func TestResolveGrant_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		grant      *permission.Grant
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no grant", nil, permission.ErrGrantNotFound, http.StatusForbidden, "FORBIDDEN"},
		{"inactive grant", &permission.Grant{PrincipalID: "bob", Role: permission.RoleUser}, nil, http.StatusForbidden, "FORBIDDEN"},
		{"store failure", nil, errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.ResolveGrant(resolverReturning(tt.grant, tt.err))(okHandler())
			req := withIdentity(httptest.NewRequest(http.MethodGet, "/", nil), "bob")
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestResolveGrant_WithoutIdentity(t *testing.T) {
	handler := middleware.ResolveGrant(resolverReturning(nil, nil))(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		grant      *permission.Grant
		wantStatus int
	}{
		{"active admin", &permission.Grant{Role: permission.RoleAdmin, IsActive: true}, http.StatusOK},
		{"inactive admin", &permission.Grant{Role: permission.RoleAdmin, IsActive: false}, http.StatusForbidden},
		{"user", &permission.Grant{Role: permission.RoleUser, IsActive: true}, http.StatusForbidden},
		{"no grant", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.RequireAdmin()(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.grant != nil {
				req = req.WithContext(middleware.WithGrant(req.Context(), tt.grant))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
