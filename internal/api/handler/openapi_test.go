package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daap14/askdb/internal/api/handler"
)

func TestOpenAPIHandler_ServesJSON(t *testing.T) {
	yamlSpec := []byte("openapi: \"3.1.0\"\ninfo:\n  title: test\n  version: \"1\"\npaths: {}\n")
	h := handler.NewOpenAPIHandler(yamlSpec)
	req, w := makeChiRequest(http.MethodGet, "/openapi.json", nil, nil, nil)

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])
	assert.Equal(t, "test", doc["info"].(map[string]any)["title"])
}

func TestOpenAPIHandler_InvalidYAML(t *testing.T) {
	h := handler.NewOpenAPIHandler([]byte("openapi: [unclosed"))
	req, w := makeChiRequest(http.MethodGet, "/openapi.json", nil, nil, nil)

	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w))
}
