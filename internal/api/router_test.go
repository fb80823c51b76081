package api_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	specpkg "github.com/daap14/askdb/api"
	"github.com/daap14/askdb/internal/api"
	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/auth"
	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/permission"
)

type openAPISpec struct {
	Paths map[string]map[string]any `json:"paths"`
}

// staticAuthenticator maps raw keys to principals.
type staticAuthenticator map[string]string

func (s staticAuthenticator) Authenticate(_ context.Context, rawKey string) (*auth.Identity, error) {
	principal, ok := s[rawKey]
	if !ok {
		return nil, auth.ErrInvalidKey
	}
	return &auth.Identity{PrincipalID: principal, Kind: permission.KindUser}, nil
}

type okPinger struct{}

func (okPinger) Ping(_ context.Context) error { return nil }

func newTestRouter(t *testing.T, limiter *middleware.RateLimiter) *chi.Mux {
	t.Helper()
	store := permission.NewMemoryStore(
		permission.Grant{PrincipalID: "alice@example.com", Kind: permission.KindUser, Role: permission.RoleUser, IsActive: true},
		permission.Grant{PrincipalID: "mallory@example.com", Kind: permission.KindUser, Role: permission.RoleUser, IsActive: false},
	)
	cat, err := catalog.New(nil, nil)
	require.NoError(t, err)

	return api.NewRouter(api.RouterDeps{
		DBPinger:    okPinger{},
		Catalog:     cat,
		Version:     "test",
		OpenAPISpec: specpkg.OpenAPISpec,
		Authenticator: staticAuthenticator{
			"askdb_root":    "root@example.com",
			"askdb_alice":   "alice@example.com",
			"askdb_mallory": "mallory@example.com",
			"askdb_nobody":  "nobody@example.com",
		},
		Resolver:    permission.NewResolver(store, permission.NewAllowlist("root@example.com")),
		GrantStore:  store,
		RateLimiter: limiter,
	})
}

func TestOpenAPISpec_RoutesCoverAllPaths(t *testing.T) {
	specJSON, err := yaml.YAMLToJSON(specpkg.OpenAPISpec)
	require.NoError(t, err, "embedded spec must convert to JSON")

	var spec openAPISpec
	require.NoError(t, yaml.Unmarshal(specJSON, &spec))

	specRoutes := extractSpecRoutes(spec)
	require.NotEmpty(t, specRoutes)

	chiRoutes := extractChiRoutes(t, newTestRouter(t, nil))
	require.NotEmpty(t, chiRoutes)

	for _, sr := range specRoutes {
		assert.Contains(t, chiRoutes, sr, "spec route %s %s not found in router", sr.method, sr.path)
	}
	for _, cr := range chiRoutes {
		assert.Contains(t, specRoutes, cr, "router route %s %s not documented", cr.method, cr.path)
	}
}

func TestRouter_AccessControl(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		name       string
		method     string
		path       string
		key        string
		wantStatus int
	}{
		{"health is public", http.MethodGet, "/health", "", http.StatusOK},
		{"openapi is public", http.MethodGet, "/openapi.json", "", http.StatusOK},
		{"missing key", http.MethodGet, "/v1/me", "", http.StatusUnauthorized},
		{"unknown key", http.MethodGet, "/v1/me", "askdb_wrong", http.StatusUnauthorized},
		{"no grant", http.MethodGet, "/v1/me", "askdb_nobody", http.StatusForbidden},
		{"inactive grant", http.MethodGet, "/v1/me", "askdb_mallory", http.StatusForbidden},
		{"active user", http.MethodGet, "/v1/me", "askdb_alice", http.StatusOK},
		{"user on admin route", http.MethodGet, "/v1/grants", "askdb_alice", http.StatusForbidden},
		{"allow-listed admin provisioned", http.MethodGet, "/v1/grants", "askdb_root", http.StatusOK},
		{"datasets for user", http.MethodGet, "/v1/datasets", "askdb_alice", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_RateLimitsPerPrincipal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := middleware.NewRateLimiter(ctx, middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	router := newTestRouter(t, limiter)

	get := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("askdb_alice"))
	assert.Equal(t, http.StatusTooManyRequests, get("askdb_alice"))
	assert.Equal(t, http.StatusOK, get("askdb_root"))
}

type route struct {
	method string
	path   string
}

func (r route) String() string { return fmt.Sprintf("%s %s", r.method, r.path) }

func extractSpecRoutes(spec openAPISpec) []route {
	var routes []route
	for path, item := range spec.Paths {
		for method := range item {
			switch method {
			case "get", "put", "post", "delete", "patch":
				routes = append(routes, route{method: strings.ToUpper(method), path: path})
			}
		}
	}
	sortRoutes(routes)
	return routes
}

func extractChiRoutes(t *testing.T, r *chi.Mux) []route {
	t.Helper()
	var routes []route
	walkFunc := func(method, routePath string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		normalized := strings.TrimRight(routePath, "/")
		if normalized == "" {
			normalized = "/"
		}
		routes = append(routes, route{method: method, path: normalized})
		return nil
	}
	require.NoError(t, chi.Walk(r, walkFunc))
	sortRoutes(routes)
	return routes
}

func sortRoutes(routes []route) {
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].path == routes[j].path {
			return routes[i].method < routes[j].method
		}
		return routes[i].path < routes[j].path
	})
}
