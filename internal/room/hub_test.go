package room

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/warroom/internal/models"
)

type recorder struct {
	id   string
	fail atomic.Bool

	mu       sync.Mutex
	received []models.Envelope
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(ctx context.Context, env models.Envelope) error {
	if r.fail.Load() {
		return errors.New("connection reset")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, env)
	return nil
}

// updates returns received envelopes except connection acknowledgements.
func (r *recorder) updates() []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Envelope
	for _, env := range r.received {
		if env.Type != models.UpdateConnection {
			out = append(out, env)
		}
	}
	return out
}

// blocker never returns from Send until its context is done.
type blocker struct{ id string }

func (b *blocker) ID() string { return b.id }

func (b *blocker) Send(ctx context.Context, env models.Envelope) error {
	if env.Type == models.UpdateConnection {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

type countingInst struct {
	live   atomic.Int64
	failed atomic.Int64
}

func (c *countingInst) ObserverJoined() { c.live.Add(1) }
func (c *countingInst) ObserverLeft()   { c.live.Add(-1) }
func (c *countingInst) DeliveryFailed() { c.failed.Add(1) }

func newTestHub(t *testing.T, inst Instrumentation) *Hub {
	t.Helper()
	h := NewHub(&Config{
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		DeliveryTimeout: 100 * time.Millisecond,
		Instrumentation: inst,
	})
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return h
}

func TestJoinSendsAck(t *testing.T) {
	h := newTestHub(t, nil)
	a := newRecorder("a")

	require.NoError(t, h.Join(context.Background(), a, "inc-1"))

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.received, 1)
	assert.Equal(t, models.UpdateConnection, a.received[0].Type)
	assert.Equal(t, "inc-1", a.received[0].IncidentID)
	assert.Equal(t, []string{"a"}, h.Members("inc-1"))
}

func TestBroadcastFanOut(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	var inX []*recorder
	for i := 0; i < 3; i++ {
		r := newRecorder(fmt.Sprintf("x%d", i))
		require.NoError(t, h.Join(ctx, r, "X"))
		inX = append(inX, r)
	}
	other := newRecorder("y0")
	require.NoError(t, h.Join(ctx, other, "Y"))

	n := h.Broadcast(ctx, "X", "t", map[string]any{})
	assert.Equal(t, 3, n)

	for _, r := range inX {
		got := r.updates()
		require.Len(t, got, 1, r.id)
		assert.Equal(t, "X", got[0].IncidentID)
		assert.Equal(t, models.UpdateType("t"), got[0].Type)
	}
	assert.Empty(t, other.updates())
}

func TestRoomPrunedAndRejoined(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	a := newRecorder("a")
	require.NoError(t, h.Join(ctx, a, "R"))
	h.Broadcast(ctx, "R", models.UpdateIncidentUpdated, map[string]any{"n": 1})
	assert.True(t, h.Leave(a, "R"))
	assert.Empty(t, h.Rooms())
	assert.False(t, h.Leave(a, "R"))

	// Nobody is listening; this must not reach the next observer.
	assert.Equal(t, 0, h.Broadcast(ctx, "R", models.UpdateIncidentUpdated, map[string]any{"n": 2}))

	b := newRecorder("b")
	require.NoError(t, h.Join(ctx, b, "R"))
	h.Broadcast(ctx, "R", models.UpdateIncidentUpdated, map[string]any{"n": 3})

	got := b.updates()
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Data["n"])
}

func TestJoinAfterBroadcast(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	a := newRecorder("A")
	require.NoError(t, h.Join(ctx, a, "inc-1"))
	h.Broadcast(ctx, "inc-1", models.UpdateStatusChanged, map[string]any{"type": "status_change"})

	b := newRecorder("B")
	require.NoError(t, h.Join(ctx, b, "inc-1"))
	assert.Len(t, a.updates(), 1)
	assert.Empty(t, b.updates())

	assert.Equal(t, 2, h.Broadcast(ctx, "inc-1", models.UpdateStatusChanged, nil))
	assert.Len(t, a.updates(), 2)
	assert.Len(t, b.updates(), 1)
}

func TestFailedObserverRemoved(t *testing.T) {
	inst := &countingInst{}
	h := newTestHub(t, inst)
	ctx := context.Background()

	good := newRecorder("good")
	bad := newRecorder("bad")
	slow := &blocker{id: "slow"}
	require.NoError(t, h.Join(ctx, good, "inc"))
	require.NoError(t, h.Join(ctx, bad, "inc"))
	require.NoError(t, h.Join(ctx, slow, "inc"))
	assert.EqualValues(t, 3, inst.live.Load())

	bad.fail.Store(true)
	n := h.Broadcast(ctx, "inc", models.UpdateEventIngested, nil)

	assert.Equal(t, 1, n)
	assert.Len(t, good.updates(), 1)
	assert.Equal(t, []string{"good"}, h.Members("inc"))
	assert.EqualValues(t, 2, inst.failed.Load())
	assert.EqualValues(t, 1, inst.live.Load())
}

// ctxObserver fails a send whose context is already done, as a websocket
// writer does.
type ctxObserver struct{ *recorder }

func (o ctxObserver) Send(ctx context.Context, env models.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return o.recorder.Send(ctx, env)
}

func TestBroadcastWithCancelledPublisherKeepsMembers(t *testing.T) {
	inst := &countingInst{}
	h := newTestHub(t, inst)

	a := ctxObserver{newRecorder("a")}
	b := ctxObserver{newRecorder("b")}
	require.NoError(t, h.Join(context.Background(), a, "inc"))
	require.NoError(t, h.Join(context.Background(), b, "inc"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n := h.Broadcast(ctx, "inc", models.UpdateStatusChanged, map[string]any{"new_status": "identified"})

	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a", "b"}, h.Members("inc"))
	assert.Len(t, a.updates(), 1)
	assert.Len(t, b.updates(), 1)
	assert.EqualValues(t, 0, inst.failed.Load())

	assert.Equal(t, 2, h.Broadcast(context.Background(), "inc", models.UpdateEventIngested, nil))
}

func TestJoinAckFailure(t *testing.T) {
	h := newTestHub(t, nil)
	r := newRecorder("dead")
	r.fail.Store(true)

	err := h.Join(context.Background(), r, "inc")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Empty(t, h.Members("inc"))
	assert.Empty(t, h.Rooms())
}

func TestBroadcastOrderPerRoom(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	var obs []*recorder
	for i := 0; i < 4; i++ {
		r := newRecorder(fmt.Sprintf("o%d", i))
		require.NoError(t, h.Join(ctx, r, "ordered"))
		obs = append(obs, r)
	}

	const n = 50
	for i := 0; i < n; i++ {
		h.Broadcast(ctx, "ordered", models.UpdateIncidentUpdated, map[string]any{"seq": i})
	}

	for _, r := range obs {
		got := r.updates()
		require.Len(t, got, n)
		for i, env := range got {
			assert.Equal(t, i, env.Data["seq"])
		}
	}
}

func TestConcurrentRooms(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	recs := make([]*recorder, 20)
	for i := range recs {
		recs[i] = newRecorder(fmt.Sprintf("r%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := fmt.Sprintf("room-%d", i%4)
			assert.NoError(t, h.Join(ctx, recs[i], room))
			h.Broadcast(ctx, room, models.UpdateIncidentUpdated, nil)
		}(i)
	}
	wg.Wait()
	assert.Len(t, h.Rooms(), 4)

	for i, r := range recs {
		wg.Add(1)
		go func(i int, r *recorder) {
			defer wg.Done()
			h.Leave(r, fmt.Sprintf("room-%d", i%4))
		}(i, r)
	}
	wg.Wait()
	assert.Empty(t, h.Rooms())
}

func TestRelay(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	a := newRecorder("a")
	b := newRecorder("b")
	require.NoError(t, h.Join(ctx, a, "inc"))
	require.NoError(t, h.Join(ctx, b, "inc"))

	require.NoError(t, h.Relay(ctx, a, "inc", []byte(`{"message":"looking at the db"}`)))
	for _, r := range []*recorder{a, b} {
		got := r.updates()
		require.Len(t, got, 1)
		assert.Equal(t, models.UpdateUserMessage, got[0].Type)
		assert.Equal(t, "looking at the db", got[0].Data["message"])
		assert.Equal(t, "anonymous", got[0].Data["user"])
		assert.Equal(t, "a", got[0].Data["observer_id"])
	}

	err := h.Relay(ctx, b, "inc", []byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Len(t, a.updates(), 1)
	got := b.updates()
	require.Len(t, got, 2)
	assert.Equal(t, models.UpdateError, got[1].Type)
}

func TestDisconnect(t *testing.T) {
	h := newTestHub(t, nil)
	ctx := context.Background()

	a := newRecorder("a")
	b := newRecorder("b")
	require.NoError(t, h.Join(ctx, a, "inc"))
	require.NoError(t, h.Join(ctx, b, "inc"))

	h.Disconnect(ctx, a, "inc")
	assert.Empty(t, a.updates())
	got := b.updates()
	require.Len(t, got, 1)
	assert.Equal(t, models.UpdateUserDisconnected, got[0].Type)
	assert.Equal(t, "a", got[0].Data["observer_id"])
}

func TestClose(t *testing.T) {
	inst := &countingInst{}
	h := newTestHub(t, inst)
	ctx := context.Background()

	require.NoError(t, h.Join(ctx, newRecorder("a"), "one"))
	require.NoError(t, h.Join(ctx, newRecorder("b"), "two"))
	require.NoError(t, h.Close(ctx))

	assert.Empty(t, h.Rooms())
	assert.EqualValues(t, 0, inst.live.Load())
	assert.ErrorIs(t, h.Join(ctx, newRecorder("c"), "one"), ErrClosed)
}
