package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/warroom/internal/analysis"
	"github.com/good-yellow-bee/warroom/internal/api"
	"github.com/good-yellow-bee/warroom/internal/incident"
	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/room"
	"github.com/good-yellow-bee/warroom/internal/scheduler"
	"github.com/good-yellow-bee/warroom/internal/storage"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := storage.NewMemoryStorage(&storage.MemoryConfig{Logger: logger})
	hub := room.NewHub(&room.Config{Logger: logger})
	sched, err := scheduler.New(&scheduler.Config{
		Logger:         logger,
		Timeline:       store.Timeline(),
		Publisher:      hub,
		CompletionType: models.UpdateAnalysisCompleted,
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
	})
	require.NoError(t, err)

	srv, err := api.New(&api.Config{Logger: logger, RateLimitPerSec: 1000, RateLimitBurst: 1000}, svc, hub)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

// syncBuffer is a bytes.Buffer safe for a writer and a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// resetFlags restores package flag variables between runs, since cobra keeps
// parsed values on the shared command tree.
func resetFlags() {
	output = "table"
	actorName = "alice"
	timeout = 5 * time.Second
	verbose = false
	incidentTitle, incidentSeverity, incidentSource, incidentDescription = "", "", "cli", ""
	incidentTags = nil
	listStatus, listSeverity, listLimit = "", "", 0
	updateFields = nil
	postmortemFormat, postmortemOut = "markdown", ""
	eventType, eventLevel, eventSource, eventLimit, importTarget = string(models.EventTypeLog), "", "cli", 0, ""
	actionTitle, actionDescription, actionPriority = "", "", 0
	actionFields = nil
	analyzeWait, analyzeInterval, analyzeMaxWait = false, 10*time.Millisecond, 5*time.Second
}

func execute(ctx context.Context, stdin io.Reader, out io.Writer, args ...string) error {
	resetFlags()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(stdin)
	return rootCmd.ExecuteContext(ctx)
}

func run(t *testing.T, server string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), strings.NewReader(""), &out, append(args, "--server", server)...)
	require.NoError(t, err, out.String())
	return out.String()
}

func createIncident(t *testing.T, server, title string) *models.Incident {
	t.Helper()
	out := run(t, server, "incident", "create", "--title", title, "--severity", "high", "--tag", "db", "-o", "json")
	var inc models.Incident
	require.NoError(t, json.Unmarshal([]byte(out), &inc))
	return &inc
}

func TestIncidentCommands(t *testing.T) {
	server := newTestServer(t)
	inc := createIncident(t, server, "Primary DB unreachable")
	assert.Equal(t, models.SeverityHigh, inc.Severity)
	assert.Equal(t, "cli", inc.Source)
	assert.Equal(t, []string{"db"}, inc.Tags)

	out := run(t, server, "incident", "list")
	assert.Contains(t, out, inc.ID)
	assert.Contains(t, out, "Total: 1 incident(s)")

	out = run(t, server, "incident", "list", "--status", "resolved")
	assert.Contains(t, out, "No incidents found.")

	out = run(t, server, "incident", "update", inc.ID, "--set", "description=failover pending", "--set", `tags=["db","prod"]`)
	assert.Contains(t, out, "failover pending")
	assert.Contains(t, out, "db, prod")

	out = run(t, server, "incident", "comment", inc.ID, "paging", "dba")
	assert.Contains(t, out, "Comment added by alice")

	out = run(t, server, "incident", "status", inc.ID, "resolved")
	assert.Contains(t, out, "is now resolved")
	assert.Contains(t, out, "Time to resolve")

	out = run(t, server, "incident", "show", inc.ID)
	assert.Contains(t, out, "Status:      resolved")
	assert.Contains(t, out, "MTTR:")

	out = run(t, server, "incident", "timeline", inc.ID)
	assert.Contains(t, out, "Comment from alice")
	assert.Contains(t, out, "Status changed to resolved")

	path := filepath.Join(t.TempDir(), "pm.html")
	out = run(t, server, "incident", "postmortem", inc.ID, "--format", "html", "--out", path)
	assert.Contains(t, out, "Postmortem written to")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Primary DB unreachable")

	out = run(t, server, "incident", "postmortem", inc.ID)
	assert.Contains(t, out, "# Incident Postmortem: Primary DB unreachable")
}

func TestIncidentCommandErrors(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	err := execute(ctx, nil, io.Discard, "incident", "create", "--server", server)
	assert.ErrorContains(t, err, "--title is required")

	err = execute(ctx, nil, io.Discard, "incident", "show", "missing", "--server", server)
	assert.ErrorContains(t, err, "NOT_FOUND")

	err = execute(ctx, nil, io.Discard, "incident", "status", "x", "paused", "--server", server)
	assert.ErrorContains(t, err, "invalid status")

	err = execute(ctx, nil, io.Discard, "incident", "update", "x", "--server", server)
	assert.ErrorContains(t, err, "--set")
}

func TestEventCommands(t *testing.T) {
	server := newTestServer(t)
	inc := createIncident(t, server, "Disk pressure")

	out := run(t, server, "event", "send", inc.ID, "disk 95% full", "--type", "alert", "--level", "ERR")
	assert.Contains(t, out, "attached to "+inc.ID)

	ndjson := `{"event_type":"metric","message":"disk=96"}
{"event_type":"log","message":"write failed","level":"error"}
`
	var buf bytes.Buffer
	err := execute(context.Background(), strings.NewReader(ndjson), &buf,
		"event", "import", "-", "--incident", inc.ID, "--server", server)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Accepted: 2 | Skipped: 0")

	out = run(t, server, "event", "list", inc.ID)
	assert.Contains(t, out, "disk 95% full")
	assert.Contains(t, out, "ERROR")
	assert.Contains(t, out, "write failed")
}

func TestActionCommands(t *testing.T) {
	server := newTestServer(t)
	inc := createIncident(t, server, "Cache stampede")

	out := run(t, server, "action", "add", inc.ID, "--title", "Warm cache", "--priority", "4", "-o", "json")
	var a models.Action
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, 4, a.Priority)
	assert.Equal(t, "alice", a.SuggestedBy)

	out = run(t, server, "action", "update", a.ID, "--set", "status=completed", "--set", "result=done")
	assert.Contains(t, out, "is completed")

	out = run(t, server, "action", "list", inc.ID)
	assert.Contains(t, out, "Warm cache")
	assert.Contains(t, out, "completed")
}

func TestAnalyzeCommand(t *testing.T) {
	server := newTestServer(t)
	inc := createIncident(t, server, "Database connection pool exhausted")

	out := run(t, server, "analyze", inc.ID, "--wait", "--interval", "10ms")
	assert.Contains(t, out, "Root cause:")
	assert.Contains(t, out, "Suggested actions:")

	out = run(t, server, "job", incident.AnalysisJobID(inc.ID))
	assert.Contains(t, out, "State:     succeeded")
}

func TestWatchCommand(t *testing.T) {
	server := newTestServer(t)
	inc := createIncident(t, server, "Live incident")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- execute(ctx, nil, out, "watch", inc.ID, "--server", server)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Connected to incident room")
	}, 5*time.Second, 10*time.Millisecond)

	c, err := newClient()
	require.NoError(t, err)
	_, err = c.UpdateStatus(context.Background(), inc.ID, models.StatusInvestigating)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "status open → investigating by alice")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestHealthAndVersion(t *testing.T) {
	server := newTestServer(t)

	out := run(t, server, "health")
	assert.Contains(t, out, "Status: ready")

	out = run(t, server, "version", "-o", "json")
	assert.Contains(t, out, `"version"`)
}

func TestReadEvents(t *testing.T) {
	batch, err := readEvents(strings.NewReader(`[{"incident_id":"a","event_type":"log","message":"m"}]`))
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].IncidentID)

	batch, err = readEvents(strings.NewReader("{\"message\":\"one\"}\n\n{\"message\":\"two\"}\n"))
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	_, err = readEvents(strings.NewReader("{\"message\":\"one\"}\nnot json\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = readEvents(strings.NewReader("  "))
	assert.ErrorContains(t, err, "no events")
}

func TestParseAssignments(t *testing.T) {
	fields, err := parseAssignments([]string{"title=New title", "priority=3", `tags=["a"]`, "note="})
	require.NoError(t, err)
	assert.Equal(t, "New title", fields["title"])
	assert.Equal(t, float64(3), fields["priority"])
	assert.Equal(t, []any{"a"}, fields["tags"])
	assert.Equal(t, "", fields["note"])

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAssignments(nil)
	assert.Error(t, err)
}

func TestPrintEnvelope(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEnvelope(&buf, models.Envelope{
		Type:      models.UpdateUserMessage,
		Data:      map[string]any{"user": "bob", "message": "on it"},
		Timestamp: time.Now(),
	}))
	assert.Contains(t, buf.String(), "user_message")
	assert.Contains(t, buf.String(), "<bob> on it")

	buf.Reset()
	require.NoError(t, printEnvelope(&buf, models.Envelope{
		Type: models.UpdateAnalysisStarted,
		Data: map[string]any{"job_id": "analysis-1"},
	}))
	assert.Contains(t, buf.String(), `{"job_id":"analysis-1"}`)
}
