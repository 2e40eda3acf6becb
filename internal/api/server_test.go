package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/api"
	"github.com/scanforge/scanforge/internal/progress"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := api.New(0, nil, zap.NewNop())
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProgressSnapshot(t *testing.T) {
	tracker, err := progress.Load(filepath.Join(t.TempDir(), "progress.json"))
	require.NoError(t, err)
	tracker.AddDownloaded()
	tracker.AddFailed()

	s := api.New(0, tracker, zap.NewNop())
	rec := get(t, s.Handler(), "/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap progress.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.Downloaded)
	assert.Equal(t, 1, snap.Failed)
	assert.NotEmpty(t, snap.RunID)
}

func TestProgressWithoutTracker(t *testing.T) {
	s := api.New(0, nil, zap.NewNop())
	rec := get(t, s.Handler(), "/progress")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointExists(t *testing.T) {
	s := api.New(0, nil, zap.NewNop())
	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
