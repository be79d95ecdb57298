package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/good-yellow-bee/warroom/internal/models"
)

const writeWait = 10 * time.Second

// Room is a live websocket membership of one incident's room.
type Room struct {
	conn  *websocket.Conn
	actor string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// JoinRoom opens a websocket to incidentID's room. The first envelope
// received is the server's connection acknowledgement.
func (c *Client) JoinRoom(ctx context.Context, incidentID string) (*Room, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws/incidents/" + url.PathEscape(incidentID)

	header := http.Header{}
	if c.actor != "" {
		header.Set(actorHeader, c.actor)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("join room: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("join room: %w", err)
	}
	return &Room{conn: conn, actor: c.actor}, nil
}

// Next blocks until the next envelope arrives. It returns the websocket
// close error once the server ends the membership.
func (r *Room) Next() (models.Envelope, error) {
	var env models.Envelope
	err := r.conn.ReadJSON(&env)
	return env, err
}

// Say relays a chat message to every member of the room.
func (r *Room) Say(message string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return r.conn.WriteJSON(map[string]string{"message": message, "user": r.actor})
}

// Close leaves the room.
func (r *Room) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.writeMu.Lock()
		r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

// Watch joins incidentID's room and calls fn for every envelope until ctx
// ends, the server closes the room or fn returns an error. Ending through
// ctx or a normal close returns nil.
func (c *Client) Watch(ctx context.Context, incidentID string, fn func(models.Envelope) error) error {
	room, err := c.JoinRoom(ctx, incidentID)
	if err != nil {
		return err
	}
	defer room.Close()

	stop := context.AfterFunc(ctx, func() { room.Close() })
	defer stop()

	for {
		env, err := room.Next()
		if err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}

func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
