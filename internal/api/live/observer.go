package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/good-yellow-bee/warroom/internal/models"
)

var errObserverGone = errors.New("observer disconnected")

// writeWait bounds a websocket write when the caller sets no deadline.
const writeWait = 10 * time.Second

// wsObserver delivers envelopes as JSON text frames on a websocket.
type wsObserver struct {
	id   string
	conn *websocket.Conn

	mu sync.Mutex // one writer at a time
}

func newWSObserver(conn *websocket.Conn) *wsObserver {
	return &wsObserver{id: uuid.New().String(), conn: conn}
}

func (o *wsObserver) ID() string { return o.id }

func (o *wsObserver) Send(ctx context.Context, env models.Envelope) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	if err := o.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return o.conn.WriteJSON(env)
}

// sseObserver hands envelopes to the goroutine serving its event stream.
type sseObserver struct {
	id   string
	ch   chan models.Envelope
	done chan struct{}
}

func newSSEObserver(buffer int) *sseObserver {
	return &sseObserver{
		id:   uuid.New().String(),
		ch:   make(chan models.Envelope, buffer),
		done: make(chan struct{}),
	}
}

func (o *sseObserver) ID() string { return o.id }

func (o *sseObserver) Send(ctx context.Context, env models.Envelope) error {
	select {
	case <-o.done:
		return errObserverGone
	default:
	}
	select {
	case o.ch <- env:
		return nil
	case <-o.done:
		return errObserverGone
	case <-ctx.Done():
		return ctx.Err()
	}
}
