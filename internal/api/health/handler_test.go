package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/warroom/internal/storage"
)

type fakeStore struct{ stats storage.Stats }

func (f fakeStore) Stats(context.Context) storage.Stats { return f.stats }

type fakeRunner struct {
	closed  bool
	running int
}

func (f fakeRunner) Closed() bool { return f.closed }
func (f fakeRunner) Running() int { return f.running }

type fakeMode string

func (f fakeMode) Mode() string { return string(f) }

func ready(t *testing.T, h *Handler) (int, HealthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Ready(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec.Code, resp
}

func TestReady_AllHealthy(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(NewStoreChecker(fakeStore{storage.Stats{Incidents: 2, Events: 5}}))
	h.RegisterChecker(NewSchedulerChecker(fakeRunner{running: 1}))
	h.RegisterChecker(NewAnalyzerChecker(fakeMode("rules")))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok (2 incidents, 5 events, 0 timeline entries, 0 actions)", resp.Checks["store"])
	assert.Equal(t, "ok (1 running)", resp.Checks["scheduler"])
	assert.Equal(t, "ok (mode rules)", resp.Checks["analyzer"])
}

func TestReady_SchedulerClosed(t *testing.T) {
	h := NewHandler()
	h.RegisterChecker(NewSchedulerChecker(fakeRunner{closed: true}))
	h.RegisterChecker(NewAnalyzerChecker(nil))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "scheduler closed", resp.Checks["scheduler"])
	assert.Equal(t, "analyzer not configured", resp.Checks["analyzer"])
}

func TestHealthAndLive(t *testing.T) {
	h := NewHandler()

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Live(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.JSONEq(t, `{"status":"live"}`, rec.Body.String())
}
