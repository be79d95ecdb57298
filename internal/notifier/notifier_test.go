package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// mockNotifier records what it was sent and can be told to fail.
type mockNotifier struct {
	name string
	fail bool

	mu   sync.Mutex
	sent []*Notification
}

func (m *mockNotifier) Name() string { return m.name }

func (m *mockNotifier) Send(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	if m.fail {
		return errors.New("mock send error")
	}
	return nil
}

func (m *mockNotifier) Close() error { return nil }

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingInst struct {
	mu      sync.Mutex
	results map[string]int
}

func (r *recordingInst) NotificationSent(channel, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	r.results[channel+"/"+result]++
}

func testIncident() *models.Incident {
	mttr := 42.0
	return &models.Incident{
		ID:          "inc-1",
		Title:       "Checkout latency",
		Description: "p99 above 2s",
		Status:      models.StatusResolved,
		Severity:    models.SeverityCritical,
		Source:      "grafana",
		Tags:        []string{"payments", "prod"},
		RootCause:   "connection pool exhausted",
		MTTRMinutes: &mttr,
	}
}

func testNotification() *Notification {
	return &Notification{
		Kind:      KindStatusChanged,
		Incident:  testIncident(),
		OldStatus: models.StatusMonitoring,
		Actor:     "alice",
		Timestamp: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestHeadline(t *testing.T) {
	n := testNotification()
	assert.Equal(t, "Incident resolved: Checkout latency", n.Headline())

	n.Incident.Status = models.StatusInvestigating
	assert.Equal(t, "Incident investigating: Checkout latency", n.Headline())

	n.Kind = KindCreated
	assert.Equal(t, "New incident: Checkout latency", n.Headline())
}

func TestDispatcherSendsToAllChannels(t *testing.T) {
	inst := &recordingInst{}
	d := NewDispatcher(RateLimitConfig{}, inst)
	a := &mockNotifier{name: "a"}
	b := &mockNotifier{name: "b", fail: true}
	d.Register(a)
	d.Register(b)
	require.Equal(t, 2, d.Len())

	err := d.Dispatch(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: mock send error")
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 1, inst.results["a/"+ResultSuccess])
	assert.Equal(t, 1, inst.results["b/"+ResultFailure])
}

func TestDispatcherNoChannels(t *testing.T) {
	d := NewDispatcher(RateLimitConfig{MaxPerWindow: 1, Enabled: true}, nil)
	require.NoError(t, d.Dispatch(context.Background(), testNotification()))
	assert.Equal(t, 0, d.RateLimitStats().CurrentCount)
}

func TestDispatcherRateLimited(t *testing.T) {
	inst := &recordingInst{}
	d := NewDispatcher(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true}, inst)
	ch := &mockNotifier{name: "slack"}
	d.Register(ch)

	require.NoError(t, d.Dispatch(context.Background(), testNotification()))
	err := d.Dispatch(context.Background(), testNotification())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, ch.count())
	assert.Equal(t, 1, inst.results["all/"+ResultRateLimited])
}

func TestDispatcherRefundsWhenEveryChannelFails(t *testing.T) {
	d := NewDispatcher(RateLimitConfig{MaxPerWindow: 1, Window: time.Minute, Enabled: true}, nil)
	d.Register(&mockNotifier{name: "failing", fail: true})

	require.Error(t, d.Dispatch(context.Background(), testNotification()))
	assert.Equal(t, 0, d.RateLimitStats().CurrentCount)

	err := d.Dispatch(context.Background(), testNotification())
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestDispatcherClose(t *testing.T) {
	d := NewDispatcher(DefaultRateLimitConfig(), nil)
	d.Register(&mockNotifier{name: "a"})
	require.NoError(t, d.Close())
	assert.Equal(t, 0, d.Len())
}
