package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/daap14/askdb/internal/api/middleware"
	"github.com/daap14/askdb/internal/catalog"
	"github.com/daap14/askdb/internal/permission"
)

func makeChiRequest(method, path string, body []byte, params map[string]string, grant *permission.Grant) (*http.Request, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")

	ctx := req.Context()
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	if grant != nil {
		ctx = middleware.WithGrant(ctx, grant)
	}

	return req.WithContext(ctx), httptest.NewRecorder()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func parseEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	err := json.Unmarshal(w.Body.Bytes(), &env)
	require.NoError(t, err, "failed to parse response body")
	return env
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := parseEnvelope(t, w)["error"].(map[string]any)
	require.True(t, ok, "expected an error envelope, got %s", w.Body.String())
	return errObj["code"].(string)
}

func strPtr(s string) *string { return &s }

// testCatalogue has two finance datasets (one linked to the ledger agent),
// a coming-soon HR dataset and a disabled agent.
func testCatalogue(t *testing.T) *catalog.Catalogue {
	t.Helper()
	c, err := catalog.New(
		[]catalog.Dataset{
			{ID: "assets", Name: "Fixed assets", Department: "finance", Tables: []string{"assets", "asset_moves"}},
			{ID: "ledger", Name: "General ledger", Department: "finance", AgentID: strPtr("ledger-agent"), Tables: []string{"finance.ledger"}},
			{ID: "people", Name: "Headcount", Department: "hr", Status: catalog.StatusComingSoon, Tables: []string{"employees"}},
		},
		[]catalog.Agent{
			{ID: "ledger-agent", Name: "Ledger", ScopeHint: "General ledger postings", Enabled: true},
			{ID: "legacy", Name: "Legacy", Enabled: false},
		},
	)
	require.NoError(t, err)
	return c
}

func adminGrant() *permission.Grant {
	return &permission.Grant{PrincipalID: "root@example.com", Kind: permission.KindUser, Role: permission.RoleAdmin, IsActive: true}
}

func userGrant(datasets, agents []string) *permission.Grant {
	return &permission.Grant{
		PrincipalID: "alice@example.com",
		Kind:        permission.KindUser,
		Role:        permission.RoleUser,
		IsActive:    true,
		Datasets:    datasets,
		Agents:      agents,
	}
}
