// Package notifier delivers incident lifecycle notifications to chat webhooks.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// Kind is the lifecycle change a notification reports.
type Kind string

const (
	KindCreated       Kind = "created"
	KindStatusChanged Kind = "status_changed"
)

// Notification describes one incident lifecycle change.
type Notification struct {
	Kind      Kind
	Incident  *models.Incident
	OldStatus models.Status
	Actor     string
	Timestamp time.Time
}

// Headline returns a one-line summary suitable for a message title.
func (n *Notification) Headline() string {
	switch n.Kind {
	case KindCreated:
		return fmt.Sprintf("New incident: %s", n.Incident.Title)
	case KindStatusChanged:
		if n.Incident.Status == models.StatusResolved {
			return fmt.Sprintf("Incident resolved: %s", n.Incident.Title)
		}
		return fmt.Sprintf("Incident %s: %s", n.Incident.Status, n.Incident.Title)
	}
	return n.Incident.Title
}

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Send delivers one notification.
	Send(ctx context.Context, n *Notification) error
	// Close releases any resources.
	Close() error
}

// Instrumentation receives delivery outcomes.
type Instrumentation interface {
	NotificationSent(channel, result string)
}

// Nop is an Instrumentation that does nothing.
type Nop struct{}

func (Nop) NotificationSent(string, string) {}

// Delivery results reported to Instrumentation.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultRateLimited = "rate_limited"
)

// ErrRateLimited is returned when a notification is dropped due to rate limiting.
var ErrRateLimited = errors.New("notification rate limited")

// Dispatcher fans notifications out to every registered channel.
type Dispatcher struct {
	mu          sync.RWMutex
	notifiers   map[string]Notifier
	rateLimiter *RateLimiter
	inst        Instrumentation
}

// NewDispatcher creates a dispatcher. A nil inst is replaced by Nop.
func NewDispatcher(limit RateLimitConfig, inst Instrumentation) *Dispatcher {
	if inst == nil {
		inst = Nop{}
	}
	return &Dispatcher{
		notifiers:   make(map[string]Notifier),
		rateLimiter: NewRateLimiter(limit),
		inst:        inst,
	}
}

// Register adds a channel, replacing any channel with the same name.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Len returns the number of registered channels.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notifiers)
}

// Dispatch sends n to every registered channel. A notification that no
// channel accepted gives its rate limit slot back.
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.notifiers) == 0 {
		return nil
	}
	if !d.rateLimiter.Allow() {
		d.inst.NotificationSent("all", ResultRateLimited)
		return ErrRateLimited
	}

	var errs []error
	for name, ch := range d.notifiers {
		if err := ch.Send(ctx, n); err != nil {
			d.inst.NotificationSent(name, ResultFailure)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		d.inst.NotificationSent(name, ResultSuccess)
	}

	if len(errs) == len(d.notifiers) {
		d.rateLimiter.Release()
	}
	return errors.Join(errs...)
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	return d.rateLimiter.Stats()
}

// Close closes all registered channels.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)
	return errors.Join(errs...)
}
