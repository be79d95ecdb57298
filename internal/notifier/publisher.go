package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// Broadcaster is the room fan-out the Publisher wraps.
type Broadcaster interface {
	Broadcast(ctx context.Context, incidentID string, typ models.UpdateType, data map[string]any) int
}

// PublisherConfig holds Publisher settings.
type PublisherConfig struct {
	Next        Broadcaster
	Dispatcher  *Dispatcher
	MinSeverity models.Severity // incidents below this are not notified (default: high)
	QueueSize   int             // pending notifications before new ones are dropped (default: 256)
	SendTimeout time.Duration   // budget per dispatch (default: 30s)
	Logger      *slog.Logger
	Now         func() time.Time
}

// Publisher forwards every broadcast to Next and, for incident creation and
// status changes at or above MinSeverity, queues a chat notification.
// Delivery happens on a background goroutine so webhooks never block the
// request that caused the change.
type Publisher struct {
	next        Broadcaster
	dispatcher  *Dispatcher
	minSeverity models.Severity
	sendTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	queue     chan *Notification
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPublisher creates a Publisher and starts its delivery goroutine.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Next == nil {
		return nil, errors.New("notifier: next broadcaster is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("notifier: dispatcher is required")
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = models.SeverityHigh
	}
	if !cfg.MinSeverity.Valid() {
		return nil, models.Validationf("invalid minimum severity %q", cfg.MinSeverity)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := &Publisher{
		next:        cfg.Next,
		dispatcher:  cfg.Dispatcher,
		minSeverity: cfg.MinSeverity,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger.With("component", "notifier"),
		now:         cfg.Now,
		queue:       make(chan *Notification, cfg.QueueSize),
		done:        make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// Broadcast implements the incident service's publisher.
func (p *Publisher) Broadcast(ctx context.Context, incidentID string, typ models.UpdateType, data map[string]any) int {
	delivered := p.next.Broadcast(ctx, incidentID, typ, data)
	if n := p.notification(typ, data); n != nil {
		p.enqueue(n)
	}
	return delivered
}

func (p *Publisher) notification(typ models.UpdateType, data map[string]any) *Notification {
	var kind Kind
	switch typ {
	case models.UpdateIncidentCreated:
		kind = KindCreated
	case models.UpdateStatusChanged:
		kind = KindStatusChanged
	default:
		return nil
	}

	inc, ok := data["incident"].(*models.Incident)
	if !ok || inc == nil {
		return nil
	}
	if inc.Severity.Rank() < p.minSeverity.Rank() {
		return nil
	}

	n := &Notification{
		Kind:      kind,
		Incident:  inc.Clone(),
		Timestamp: p.now(),
	}
	if old, ok := data["old_status"].(models.Status); ok {
		n.OldStatus = old
	}
	if actor, ok := data["actor"].(string); ok {
		n.Actor = actor
	}
	return n
}

func (p *Publisher) enqueue(n *Notification) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- n:
	default:
		p.logger.Warn("notification queue full, dropping",
			"incident_id", n.Incident.ID, "kind", n.Kind)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case n := <-p.queue:
			p.deliver(n)
		case <-p.done:
			for {
				select {
				case n := <-p.queue:
					p.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
	defer cancel()

	err := p.dispatcher.Dispatch(ctx, n)
	switch {
	case err == nil:
		p.logger.Debug("notification sent", "incident_id", n.Incident.ID, "kind", n.Kind)
	case errors.Is(err, ErrRateLimited):
		p.logger.Warn("notification rate limited", "incident_id", n.Incident.ID, "kind", n.Kind)
	default:
		p.logger.Error("notification failed", "incident_id", n.Incident.ID, "kind", n.Kind, "error", err)
	}
}

// Close stops accepting notifications, delivers what is queued and closes
// the dispatcher's channels. It returns ctx.Err() if draining outlives ctx.
func (p *Publisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.done) })

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return p.dispatcher.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}
