package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/warroom/internal/analysis"
	"github.com/good-yellow-bee/warroom/internal/incident"
	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/room"
	"github.com/good-yellow-bee/warroom/internal/scheduler"
	"github.com/good-yellow-bee/warroom/internal/storage"
)

type testEnv struct {
	server *Server
	store  *storage.MemoryStorage
	hub    *room.Hub
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var mu sync.Mutex
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	store := storage.NewMemoryStorage(&storage.MemoryConfig{Logger: logger, Now: clock})
	hub := room.NewHub(&room.Config{Logger: logger, Now: clock})
	sched, err := scheduler.New(&scheduler.Config{
		Logger:         logger,
		Timeline:       store.Timeline(),
		Publisher:      hub,
		CompletionType: models.UpdateAnalysisCompleted,
		Now:            clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Close(context.Background()) })

	commander, err := analysis.NewCommander(analysis.CommanderConfig{
		Fallback: analysis.NewRuleAnalyzer(nil, store.Incidents(), logger),
		Logger:   logger,
	})
	require.NoError(t, err)

	svc, err := incident.New(&incident.Config{
		Store:     store,
		Publisher: hub,
		Scheduler: sched,
		Analyzer:  commander,
		Logger:    logger,
		Now:       clock,
	})
	require.NoError(t, err)

	cfg := &Config{Logger: logger, RateLimitPerSec: 1000, RateLimitBurst: 1000}
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg, svc, hub)
	require.NoError(t, err)
	return &testEnv{server: srv, store: store, hub: hub}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *Error          `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(actorHeader, "alice")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type list[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (e *testEnv) createIncident(t *testing.T, body map[string]any) *models.Incident {
	t.Helper()
	code, env := e.do(t, http.MethodPost, "/api/v1/incidents", body)
	require.Equal(t, http.StatusCreated, code)
	return decodeData[*models.Incident](t, env)
}

func TestScenarioA_CreateIngestResolve(t *testing.T) {
	e := newTestEnv(t, nil)

	inc := e.createIncident(t, map[string]any{"title": "DB down", "severity": "critical"})
	assert.Equal(t, models.StatusOpen, inc.Status)

	code, _ := e.do(t, http.MethodPost, "/api/v1/ingest/events", map[string]any{
		"incident_id": inc.ID,
		"event_type":  "log",
		"message":     "connection refused",
		"level":       "ERROR",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := e.do(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", map[string]any{"status": "resolved"})
	require.Equal(t, http.StatusOK, code)
	resolved := decodeData[*models.Incident](t, env)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.MTTRMinutes)
	assert.Greater(t, *resolved.MTTRMinutes, 0.0)

	code, env = e.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/timeline", nil)
	require.Equal(t, http.StatusOK, code)
	timeline := decodeData[list[models.TimelineEntry]](t, env)
	require.Equal(t, 2, timeline.Total)
	assert.Equal(t, "Status changed to resolved", timeline.Items[0].Title)
	assert.Equal(t, "alice", timeline.Items[0].Actor)

	code, env = e.do(t, http.MethodGet, "/api/v1/ingest/events/"+inc.ID, nil)
	require.Equal(t, http.StatusOK, code)
	events := decodeData[list[models.Event]](t, env)
	require.Equal(t, 1, events.Total)
	assert.Equal(t, models.LevelError, events.Items[0].Level)
}

func TestScenarioB_OversizedBatchRejected(t *testing.T) {
	e := newTestEnv(t, nil)
	inc := e.createIncident(t, map[string]any{"title": "noisy"})

	batch := make([]map[string]any, incident.MaxBatchSize+1)
	for i := range batch {
		batch[i] = map[string]any{
			"incident_id": inc.ID,
			"event_type":  "metric",
			"message":     fmt.Sprintf("sample %d", i),
		}
	}

	code, env := e.do(t, http.MethodPost, "/api/v1/ingest/events/batch", batch)
	require.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
	assert.Equal(t, 0, e.store.Events().Count(context.Background(), inc.ID))

	code, env = e.do(t, http.MethodPost, "/api/v1/ingest/events/batch", []any{})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
}

func TestIngestBatch_SkipsUnknownIncidents(t *testing.T) {
	e := newTestEnv(t, nil)
	inc := e.createIncident(t, map[string]any{"title": "partial"})

	code, env := e.do(t, http.MethodPost, "/api/v1/ingest/events/batch", []map[string]any{
		{"incident_id": inc.ID, "event_type": "log", "message": "a"},
		{"incident_id": "missing", "event_type": "log", "message": "b"},
		{"incident_id": inc.ID, "event_type": "alert", "message": "c"},
	})
	require.Equal(t, http.StatusCreated, code)

	var resp struct {
		Accepted int `json:"accepted"`
		Skipped  int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 1, resp.Skipped)
}

func TestErrors(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown incident", http.MethodGet, "/api/v1/incidents/nope", nil, http.StatusNotFound, ErrCodeNotFound},
		{"malformed body", http.MethodPost, "/api/v1/incidents", "{not json", http.StatusBadRequest, ErrCodeBadRequest},
		{"missing title", http.MethodPost, "/api/v1/incidents", map[string]any{"title": " "}, http.StatusBadRequest, ErrCodeValidationFailed},
		{"bad status filter", http.MethodGet, "/api/v1/incidents?status=sleeping", nil, http.StatusBadRequest, ErrCodeValidationFailed},
		{"bad limit", http.MethodGet, "/api/v1/incidents?limit=-1", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"event for unknown incident", http.MethodPost, "/api/v1/ingest/events", map[string]any{
			"incident_id": "nope", "event_type": "log", "message": "x",
		}, http.StatusNotFound, ErrCodeNotFound},
		{"unknown job", http.MethodGet, "/api/v1/jobs/analysis-nope", nil, http.StatusNotFound, ErrCodeNotFound},
		{"unknown route", http.MethodGet, "/api/v1/nothing", nil, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := e.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestListIncidents_Filters(t *testing.T) {
	e := newTestEnv(t, nil)
	e.createIncident(t, map[string]any{"title": "a", "severity": "low"})
	b := e.createIncident(t, map[string]any{"title": "b", "severity": "high"})
	e.createIncident(t, map[string]any{"title": "c", "severity": "high"})

	code, _ := e.do(t, http.MethodPatch, "/api/v1/incidents/"+b.ID+"/status", map[string]any{"status": "investigating"})
	require.Equal(t, http.StatusOK, code)

	code, env := e.do(t, http.MethodGet, "/api/v1/incidents?severity=high", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, decodeData[list[models.Incident]](t, env).Total)

	code, env = e.do(t, http.MethodGet, "/api/v1/incidents?status=investigating", nil)
	require.Equal(t, http.StatusOK, code)
	got := decodeData[list[models.Incident]](t, env)
	require.Equal(t, 1, got.Total)
	assert.Equal(t, b.ID, got.Items[0].ID)

	code, env = e.do(t, http.MethodGet, "/api/v1/incidents?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decodeData[list[models.Incident]](t, env).Total)
}

func TestUpdateIncident_IgnoresUnknownFields(t *testing.T) {
	e := newTestEnv(t, nil)
	inc := e.createIncident(t, map[string]any{"title": "old"})

	code, env := e.do(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID, map[string]any{
		"title": "new",
		"id":    "hijack",
		"bogus": 1,
	})
	require.Equal(t, http.StatusOK, code)

	var resp struct {
		Item    models.Incident `json:"item"`
		Ignored []string        `json:"ignored"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "new", resp.Item.Title)
	assert.Equal(t, inc.ID, resp.Item.ID)
	assert.Equal(t, []string{"bogus", "id"}, resp.Ignored)
}

func TestCommentsAndActions(t *testing.T) {
	e := newTestEnv(t, nil)
	inc := e.createIncident(t, map[string]any{"title": "cache"})

	code, env := e.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/comments", map[string]any{"comment": "looking"})
	require.Equal(t, http.StatusCreated, code)
	entry := decodeData[models.TimelineEntry](t, env)
	assert.Equal(t, models.EntryComment, entry.EntryType)
	assert.Equal(t, "alice", entry.Actor)

	code, env = e.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/actions", map[string]any{
		"title":    "Flush cache",
		"priority": 2,
	})
	require.Equal(t, http.StatusCreated, code)
	action := decodeData[models.Action](t, env)
	assert.Equal(t, "alice", action.SuggestedBy)
	assert.Equal(t, models.ActionPending, action.Status)

	code, env = e.do(t, http.MethodPatch, "/api/v1/actions/"+action.ID, map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusOK, code)
	var updated struct {
		Item models.Action `json:"item"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.NotNil(t, updated.Item.StartedAt)

	code, env = e.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/actions", map[string]any{
		"title":    "Bad",
		"priority": 9,
	})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)

	code, env = e.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/actions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decodeData[list[models.Action]](t, env).Total)
}

func TestAnalyzeAndPollJob(t *testing.T) {
	e := newTestEnv(t, nil)
	inc := e.createIncident(t, map[string]any{"title": "Database connection pool exhausted"})

	code, env := e.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/analyze", nil)
	require.Equal(t, http.StatusAccepted, code)
	job := decodeData[scheduler.Status](t, env)
	assert.Equal(t, incident.AnalysisJobID(inc.ID), job.ID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		code, env := e.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
		require.Equal(t, http.StatusOK, code)
		state := decodeData[scheduler.Status](t, env).State
		if state == scheduler.StateSucceeded {
			break
		}
		require.NotEqual(t, scheduler.StateFailed, state)
		require.True(t, time.Now().Before(deadline), "analysis did not finish")
		time.Sleep(10 * time.Millisecond)
	}

	code, env = e.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/actions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotZero(t, decodeData[list[models.Action]](t, env).Total)

	code, env = e.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, decodeData[models.Incident](t, env).RootCause)
}

func TestPostmortem(t *testing.T) {
	e := newTestEnv(t, nil)
	inc := e.createIncident(t, map[string]any{"title": "Disk full"})

	for _, tt := range []struct {
		format      string
		contentType string
		contains    string
	}{
		{"", "text/markdown", "# Incident Postmortem"},
		{"html", "text/html", "<h1>"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents/"+inc.ID+"/postmortem?format="+tt.format, nil)
		rec := httptest.NewRecorder()
		e.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), tt.contentType))
		assert.Contains(t, rec.Body.String(), tt.contains)
		assert.Contains(t, rec.Body.String(), "Disk full")
	}

	code, env := e.do(t, http.MethodGet, "/api/v1/incidents/"+inc.ID+"/postmortem?format=pdf", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrCodeBadRequest, env.Error.Code)
}

func TestRateLimit(t *testing.T) {
	e := newTestEnv(t, func(c *Config) {
		c.RateLimitPerSec = 0.001
		c.RateLimitBurst = 1
	})

	code, _ := e.do(t, http.MethodGet, "/api/v1/incidents", nil)
	assert.Equal(t, http.StatusOK, code)
	code, env := e.do(t, http.MethodGet, "/api/v1/incidents", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, ErrCodeRateLimited, env.Error.Code)

	// Health is outside the limiter.
	code, _ = e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketRoom(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()
	inc := e.createIncident(t, map[string]any{"title": "live"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/incidents/" + inc.ID
	a, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer b.Close()

	ackA := readEnvelope(t, a)
	assert.Equal(t, models.UpdateConnection, ackA.Type)
	assert.Equal(t, inc.ID, ackA.IncidentID)
	assert.Equal(t, "Connected to incident room: "+inc.ID, ackA.Data["message"])
	assert.Equal(t, models.UpdateConnection, readEnvelope(t, b).Type)

	code, _ := e.do(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", map[string]any{"status": "identified"})
	require.Equal(t, http.StatusOK, code)
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, models.UpdateStatusChanged, env.Type)
	}

	// Chat relay reaches everyone, tagged with the sender.
	require.NoError(t, a.WriteJSON(map[string]string{"message": "on it", "user": "bob"}))
	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, models.UpdateUserMessage, env.Type)
		assert.Equal(t, "on it", env.Data["message"])
		assert.Equal(t, "bob", env.Data["user"])
		assert.Equal(t, ackA.Data["observer_id"], env.Data["observer_id"])
	}

	// Malformed input is answered privately.
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readEnvelope(t, b)
	assert.Equal(t, models.UpdateError, env.Type)
	assert.Equal(t, "Invalid JSON format", env.Data["message"])

	// Leaving notifies the rest of the room.
	require.NoError(t, b.Close())
	env = readEnvelope(t, a)
	assert.Equal(t, models.UpdateUserDisconnected, env.Type)
	require.Eventually(t, func() bool { return len(e.hub.Members(inc.ID)) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestAbortedRequestKeepsRoomMembers(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()
	inc := e.createIncident(t, map[string]any{"title": "live"})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/incidents/" + inc.ID
	var conns []*websocket.Conn
	for range 2 {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()
		assert.Equal(t, models.UpdateConnection, readEnvelope(t, conn).Type)
		conns = append(conns, conn)
	}

	// The caller goes away before the handler broadcasts.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status",
		strings.NewReader(`{"status":"identified"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(actorHeader, "alice")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, conn := range conns {
		assert.Equal(t, models.UpdateStatusChanged, readEnvelope(t, conn).Type)
	}
	assert.Len(t, e.hub.Members(inc.ID), 2)

	code, _ := e.do(t, http.MethodPatch, "/api/v1/incidents/"+inc.ID+"/status", map[string]any{"status": "monitoring"})
	require.Equal(t, http.StatusOK, code)
	for _, conn := range conns {
		env := readEnvelope(t, conn)
		assert.Equal(t, models.UpdateStatusChanged, env.Type)
	}
}

func TestSSEStream(t *testing.T) {
	e := newTestEnv(t, nil)
	ts := httptest.NewServer(e.server.Handler())
	defer ts.Close()
	inc := e.createIncident(t, map[string]any{"title": "stream"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/incidents/"+inc.ID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case name := <-events:
			return name
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, string(models.UpdateConnection), next())
	require.Eventually(t, func() bool { return len(e.hub.Members(inc.ID)) == 1 }, 5*time.Second, 10*time.Millisecond)

	code, _ := e.do(t, http.MethodPost, "/api/v1/incidents/"+inc.ID+"/comments", map[string]any{"comment": "hi"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, string(models.UpdateCommentAdded), next())

	e.server.live.Close()
	assert.Equal(t, "close", next())
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)
	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		e.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
