// Package live serves incident rooms over websocket and Server-Sent Events.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/good-yellow-bee/warroom/internal/room"
)

const (
	// maxMessageSize caps inbound websocket frames.
	maxMessageSize = 64 << 10
	// sseBuffer is the per-stream envelope queue length.
	sseBuffer = 32
	// sseRetry is the reconnect delay suggested to EventSource clients.
	sseRetry = 3 * time.Second
)

// Rooms is the subset of the room hub the transports use.
type Rooms interface {
	Join(ctx context.Context, observer room.Observer, incidentID string) error
	Relay(ctx context.Context, observer room.Observer, incidentID string, raw []byte) error
	Disconnect(ctx context.Context, observer room.Observer, incidentID string)
}

// Config holds live transport configuration. Hub is required.
type Config struct {
	Hub            Rooms
	MaxDuration    time.Duration // SSE stream lifetime
	HeartbeatEvery time.Duration // SSE heartbeat and websocket ping interval
	Logger         *slog.Logger
}

// Handler serves the websocket and SSE endpoints.
type Handler struct {
	hub       Rooms
	maxDur    time.Duration
	heartbeat time.Duration
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	closeOnce sync.Once
	done      chan struct{}
}

// NewHandler creates a live handler.
func NewHandler(cfg *Config) *Handler {
	h := &Handler{
		hub:       cfg.Hub,
		maxDur:    cfg.MaxDuration,
		heartbeat: cfg.HeartbeatEvery,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Rooms carry no credentials; any origin may observe.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if h.maxDur <= 0 {
		h.maxDur = 30 * time.Minute
	}
	if h.heartbeat <= 0 {
		h.heartbeat = 15 * time.Second
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "live")
	return h
}

// Close ends every open stream and websocket. http.Server.Shutdown does not
// wait for hijacked connections and would wait out SSE streams, so the
// server calls this first.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Websocket handles GET /ws/incidents/{id}. The connection joins the
// incident's room; text frames it sends are relayed to the room.
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Debug("websocket upgrade failed", "incident_id", incidentID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs := newWSObserver(conn)
	if err := h.hub.Join(ctx, obs, incidentID); err != nil {
		h.logger.Debug("websocket join failed", "incident_id", incidentID, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"),
			time.Now().Add(time.Second))
		return
	}
	defer h.hub.Disconnect(context.Background(), obs, incidentID)

	pongWait := 2 * h.heartbeat
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.keepalive(ctx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed", "incident_id", incidentID, "observer_id", obs.ID(), "error", err)
			}
			return
		}
		if err := h.hub.Relay(ctx, obs, incidentID, msg); err != nil {
			h.logger.Debug("relay rejected", "incident_id", incidentID, "observer_id", obs.ID(), "error", err)
		}
	}
}

// keepalive pings the peer and closes the connection on shutdown.
// WriteControl may run concurrently with the observer's writes.
func (h *Handler) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// Stream handles GET /api/v1/incidents/{id}/stream: a receive-only room
// membership over Server-Sent Events. Each envelope is an event named after
// its update type.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	ctx := r.Context()
	obs := newSSEObserver(sseBuffer)
	if err := h.hub.Join(ctx, obs, incidentID); err != nil {
		jsonError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "live updates unavailable")
		return
	}
	defer func() {
		close(obs.done)
		h.hub.Disconnect(context.Background(), obs, incidentID)
	}()

	sse, err := newSSEStream(w, flusher, sseRetry)
	if err != nil {
		return
	}

	deadline := time.NewTimer(h.maxDur)
	defer deadline.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return

		case <-h.done:
			sse.closing("shutdown")
			return

		case <-deadline.C:
			sse.closing("timeout")
			return

		case t := <-heartbeat.C:
			if err := sse.heartbeat(t); err != nil {
				return
			}

		case env := <-obs.ch:
			if err := sse.envelope(env); err != nil {
				return
			}
		}
	}
}

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
