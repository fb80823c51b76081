package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daap14/askdb/internal/api/response"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestNewMeta(t *testing.T) {
	meta := response.NewMeta("")
	_, err := uuid.Parse(meta.RequestID)
	assert.NoError(t, err, "an empty request id is replaced by a UUID")

	_, err = time.Parse(time.RFC3339, meta.Timestamp)
	assert.NoError(t, err)
	assert.Nil(t, meta.Total)

	assert.Equal(t, "req-1", response.NewMeta("req-1").RequestID)
}

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	response.Success(w, http.StatusOK, map[string]string{"key": "value"}, "req-1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	env := decode(t, w)
	assert.Nil(t, env["error"])
	assert.Equal(t, "value", env["data"].(map[string]any)["key"])
	meta := env["meta"].(map[string]any)
	assert.Equal(t, "req-1", meta["requestId"])
	assert.NotContains(t, meta, "total")
}

func TestSuccessList(t *testing.T) {
	w := httptest.NewRecorder()

	response.SuccessList(w, []string{"a", "b"}, 2, "req-2")

	assert.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, []any{"a", "b"}, env["data"])
	assert.Equal(t, float64(2), env["meta"].(map[string]any)["total"])
}

func TestErrWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	details := []map[string]string{{"field": "question", "message": "question is required"}}

	response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", details, "req-3")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Nil(t, env["data"])
	errObj := env["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	assert.Len(t, errObj["details"], 1)
}

func TestErr_OmitsDetails(t *testing.T) {
	w := httptest.NewRecorder()

	response.Err(w, http.StatusNotFound, "NOT_FOUND", "Dataset not found", "req-4")

	assert.Equal(t, http.StatusNotFound, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "Dataset not found", errObj["message"])
	assert.NotContains(t, errObj, "details")
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()

	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
