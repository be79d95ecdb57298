// Package room fans live incident updates out to the observers connected to
// each incident's room.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

var (
	// ErrDeliveryFailed marks a failed send to a single observer. The hub
	// handles it by removing the observer; it is never returned by Broadcast.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrInvalidMessage is returned by Relay for malformed inbound payloads.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrClosed is returned by Join after Close.
	ErrClosed = errors.New("hub closed")
)

// DefaultDeliveryTimeout bounds a single observer's Send.
const DefaultDeliveryTimeout = 5 * time.Second

// Observer is a live connection. Send may be called from several goroutines
// at once when the observer is in more than one room, so implementations
// serialize their own writes.
type Observer interface {
	ID() string
	Send(ctx context.Context, env models.Envelope) error
}

// Instrumentation receives membership and delivery counts.
type Instrumentation interface {
	ObserverJoined()
	ObserverLeft()
	DeliveryFailed()
}

// Nop is an Instrumentation that does nothing.
type Nop struct{}

func (Nop) ObserverJoined() {}
func (Nop) ObserverLeft()   {}
func (Nop) DeliveryFailed() {}

// Config holds Hub configuration.
type Config struct {
	Logger          *slog.Logger
	DeliveryTimeout time.Duration
	Instrumentation Instrumentation
	Now             func() time.Time
}

// room is one incident's member set. mu guards members; sendMu serializes
// broadcasts so every member sees them in invocation order.
type room struct {
	mu      sync.Mutex
	members map[string]Observer

	sendMu sync.Mutex
}

func (r *room) snapshot() []Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Observer, 0, len(r.members))
	for _, o := range r.members {
		out = append(out, o)
	}
	return out
}

// Hub maintains rooms keyed by incident id.
type Hub struct {
	logger  *slog.Logger
	timeout time.Duration
	inst    Instrumentation
	now     func() time.Time

	mu     sync.RWMutex
	rooms  map[string]*room
	closed bool
}

// NewHub creates a hub.
func NewHub(cfg *Config) *Hub {
	if cfg == nil {
		cfg = &Config{}
	}
	h := &Hub{
		logger:  cfg.Logger,
		timeout: cfg.DeliveryTimeout,
		inst:    cfg.Instrumentation,
		now:     cfg.Now,
		rooms:   make(map[string]*room),
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "room")
	if h.timeout <= 0 {
		h.timeout = DefaultDeliveryTimeout
	}
	if h.inst == nil {
		h.inst = Nop{}
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}

// Join registers observer in incidentID's room, creating the room if needed,
// and sends it a private connection acknowledgement. If the acknowledgement
// cannot be delivered the observer is removed again.
func (h *Hub) Join(ctx context.Context, observer Observer, incidentID string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	r, ok := h.rooms[incidentID]
	if !ok {
		r = &room{members: make(map[string]Observer)}
		h.rooms[incidentID] = r
	}
	r.mu.Lock()
	_, already := r.members[observer.ID()]
	r.members[observer.ID()] = observer
	r.mu.Unlock()
	h.mu.Unlock()

	if !already {
		h.inst.ObserverJoined()
	}
	h.logger.Debug("observer joined", "incident_id", incidentID, "observer_id", observer.ID())

	ack := h.envelope(models.UpdateConnection, incidentID, map[string]any{
		"message":     fmt.Sprintf("Connected to incident room: %s", incidentID),
		"observer_id": observer.ID(),
	})
	if err := h.deliver(ctx, observer, ack); err != nil {
		h.Leave(observer, incidentID)
		return err
	}
	return nil
}

// Leave removes observer from incidentID's room and prunes the room when it
// becomes empty. It reports whether the observer was a member.
func (h *Hub) Leave(observer Observer, incidentID string) bool {
	return h.remove(incidentID, observer.ID())
}

func (h *Hub) remove(incidentID, observerID string) bool {
	h.mu.Lock()
	r, ok := h.rooms[incidentID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	r.mu.Lock()
	_, member := r.members[observerID]
	delete(r.members, observerID)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(h.rooms, incidentID)
	}
	h.mu.Unlock()

	if member {
		h.inst.ObserverLeft()
		h.logger.Debug("observer left", "incident_id", incidentID, "observer_id", observerID, "room_pruned", empty)
	}
	return member
}

// Broadcast delivers an update to every current member of incidentID's room
// and returns the number of successful deliveries. Members whose delivery
// fails are removed.
func (h *Hub) Broadcast(ctx context.Context, incidentID string, typ models.UpdateType, data map[string]any) int {
	return h.broadcast(ctx, h.envelope(typ, incidentID, data))
}

func (h *Hub) broadcast(ctx context.Context, env models.Envelope) int {
	h.mu.RLock()
	r, ok := h.rooms[env.IncidentID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	members := r.snapshot()
	if len(members) == 0 {
		return 0
	}

	errs := make([]error, len(members))
	var wg sync.WaitGroup
	for i, o := range members {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.deliver(ctx, o, env)
		}()
	}
	wg.Wait()

	delivered := 0
	for i, err := range errs {
		if err == nil {
			delivered++
			continue
		}
		h.inst.DeliveryFailed()
		h.logger.Debug("dropping observer after failed delivery",
			"incident_id", env.IncidentID,
			"observer_id", members[i].ID(),
			"type", env.Type,
			"error", err,
		)
		h.remove(env.IncidentID, members[i].ID())
	}
	return delivered
}

// deliver bounds one send by the hub's timeout. The publisher's cancellation
// is not inherited: an aborted request must not evict healthy members.
func (h *Hub) deliver(ctx context.Context, o Observer, env models.Envelope) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()
	if err := o.Send(ctx, env); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// inboundMessage is the chat payload an observer sends.
type inboundMessage struct {
	Message string `json:"message"`
	User    string `json:"user"`
}

// Relay handles a message received from observer. A JSON object is
// rebroadcast to the room as a user_message tagged with the observer id.
// Anything else gets a private error reply and ErrInvalidMessage.
func (h *Hub) Relay(ctx context.Context, observer Observer, incidentID string, raw []byte) error {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		reply := h.envelope(models.UpdateError, incidentID, map[string]any{
			"message": "Invalid JSON format",
		})
		if sendErr := h.deliver(ctx, observer, reply); sendErr != nil {
			h.logger.Debug("error reply not delivered", "observer_id", observer.ID(), "error", sendErr)
		}
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.User == "" {
		msg.User = "anonymous"
	}

	h.Broadcast(ctx, incidentID, models.UpdateUserMessage, map[string]any{
		"message":     msg.Message,
		"user":        msg.User,
		"observer_id": observer.ID(),
	})
	return nil
}

// Disconnect removes observer and tells the remaining members.
func (h *Hub) Disconnect(ctx context.Context, observer Observer, incidentID string) {
	if !h.Leave(observer, incidentID) {
		return
	}
	h.Broadcast(ctx, incidentID, models.UpdateUserDisconnected, map[string]any{
		"observer_id": observer.ID(),
	})
}

// Members returns the ids of incidentID's observers, sorted.
func (h *Hub) Members(incidentID string) []string {
	h.mu.RLock()
	r, ok := h.rooms[incidentID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Rooms returns the ids of incidents with at least one observer, sorted.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close drops every room without notifying members. Later Joins fail with
// ErrClosed; Broadcasts deliver nothing.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]*room)
	h.closed = true
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		n := len(r.members)
		r.members = map[string]Observer{}
		r.mu.Unlock()
		for i := 0; i < n; i++ {
			h.inst.ObserverLeft()
		}
	}
	h.logger.Info("room hub closed", "rooms", len(rooms))
	return nil
}

func (h *Hub) envelope(typ models.UpdateType, incidentID string, data map[string]any) models.Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return models.Envelope{
		Type:       typ,
		IncidentID: incidentID,
		Data:       data,
		Timestamp:  h.now(),
	}
}
