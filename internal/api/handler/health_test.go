package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/daap14/askdb/internal/api/handler"
	"github.com/daap14/askdb/internal/catalog"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func TestHealthHandler(t *testing.T) {
	empty, err := catalog.New(nil, nil)
	assert.NoError(t, err)

	tests := []struct {
		name          string
		pingErr       error
		catalog       catalog.Reader
		wantStatus    string
		wantConnected bool
		wantDatasets  float64
	}{
		{"healthy", nil, testCatalogue(t), "healthy", true, 3},
		{"database down", errors.New("connection refused"), testCatalogue(t), "degraded", false, 3},
		{"empty catalogue", nil, empty, "degraded", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewHealthHandler(&mockPinger{err: tt.pingErr}, tt.catalog, "0.1.0")
			req, w := makeChiRequest(http.MethodGet, "/health", nil, nil, nil)

			h.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			env := parseEnvelope(t, w)
			assert.Nil(t, env["error"])
			data := env["data"].(map[string]any)
			assert.Equal(t, tt.wantStatus, data["status"])
			assert.Equal(t, "0.1.0", data["version"])
			assert.Equal(t, tt.wantConnected, data["database"].(map[string]any)["connected"])
			assert.Equal(t, tt.wantDatasets, data["catalog"].(map[string]any)["datasets"])
		})
	}
}
