package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// MemoryConfig holds MemoryStorage configuration.
type MemoryConfig struct {
	// Logger receives warnings such as duplicate incident ids.
	Logger *slog.Logger
	// Now returns the current time. Defaults to time.Now in UTC.
	Now func() time.Time
}

// MemoryStorage is a volatile Storage. Each collection has its own lock so
// event ingestion, timeline appends and action updates never wait on an
// incident update. No method holds a lock while calling another method that
// takes a lock of the same collection.
type MemoryStorage struct {
	logger *slog.Logger
	now    func() time.Time

	incidents *memoryIncidents
	events    *memoryEvents
	timeline  *memoryTimeline
	actions   *memoryActions
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage(cfg *MemoryConfig) *MemoryStorage {
	if cfg == nil {
		cfg = &MemoryConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	s := &MemoryStorage{logger: logger.With("component", "storage"), now: now}
	s.timeline = &memoryTimeline{entries: make(map[string][]*models.TimelineEntry)}
	s.incidents = &memoryIncidents{store: s, items: make(map[string]*models.Incident)}
	s.events = &memoryEvents{store: s, byIncident: make(map[string][]*models.Event)}
	s.actions = &memoryActions{store: s, items: make(map[string]*models.Action), byIncident: make(map[string][]string)}
	return s
}

func (s *MemoryStorage) Incidents() IncidentRepository { return s.incidents }
func (s *MemoryStorage) Events() EventRepository       { return s.events }
func (s *MemoryStorage) Timeline() TimelineRepository  { return s.timeline }
func (s *MemoryStorage) Actions() ActionRepository     { return s.actions }

// Stats returns collection sizes. Each count is taken under its own lock, so
// the totals are not a single consistent snapshot.
func (s *MemoryStorage) Stats(ctx context.Context) Stats {
	var st Stats

	s.incidents.mu.RLock()
	st.Incidents = len(s.incidents.items)
	s.incidents.mu.RUnlock()

	s.events.mu.RLock()
	st.Events = s.events.total
	s.events.mu.RUnlock()

	s.timeline.mu.RLock()
	for _, entries := range s.timeline.entries {
		st.TimelineEntries += len(entries)
	}
	s.timeline.mu.RUnlock()

	s.actions.mu.RLock()
	st.Actions = len(s.actions.items)
	s.actions.mu.RUnlock()

	return st
}

// Close is a no-op; data stays readable until the process exits.
func (s *MemoryStorage) Close() error {
	return nil
}

// --- Incidents ---

type memoryIncidents struct {
	store *MemoryStorage
	mu    sync.RWMutex
	items map[string]*models.Incident
}

func (r *memoryIncidents) Create(ctx context.Context, incident *models.Incident) (*models.Incident, error) {
	if incident == nil || incident.ID == "" {
		return nil, models.Validationf("incident id is required")
	}
	stored := incident.Clone()

	r.mu.Lock()
	_, duplicate := r.items[stored.ID]
	r.items[stored.ID] = stored
	out := stored.Clone()
	r.mu.Unlock()

	if duplicate {
		r.store.logger.Warn("incident id already exists, overwriting", "incident_id", stored.ID)
	}
	r.store.timeline.ensure(stored.ID)
	return out, nil
}

func (r *memoryIncidents) Get(ctx context.Context, id string) (*models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return inc.Clone(), nil
}

func (r *memoryIncidents) Exists(ctx context.Context, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok
}

func (r *memoryIncidents) List(ctx context.Context, filter IncidentFilter) ([]*models.Incident, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultIncidentLimit
	}

	r.mu.RLock()
	matches := make([]*models.Incident, 0, len(r.items))
	for _, inc := range r.items {
		if filter.Status != "" && inc.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && inc.Severity != filter.Severity {
			continue
		}
		matches = append(matches, inc.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *memoryIncidents) Update(ctx context.Context, id string, patch models.IncidentPatch) (*models.Incident, error) {
	return r.UpdateFunc(ctx, id, func(models.Incident) (models.IncidentPatch, error) {
		return patch, nil
	})
}

func (r *memoryIncidents) UpdateFunc(ctx context.Context, id string, fn IncidentUpdateFunc) (*models.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}

	patch, err := fn(*inc.Clone())
	if err != nil {
		return nil, err
	}

	// Apply to a copy and swap it in so readers never see a partial update.
	next := inc.Clone()
	patch.Apply(next)
	next.ID = inc.ID
	next.CreatedAt = inc.CreatedAt
	now := r.store.now()
	if now.Before(inc.UpdatedAt) {
		now = inc.UpdatedAt
	}
	next.UpdatedAt = now
	r.items[id] = next

	return next.Clone(), nil
}

// --- Events ---

type memoryEvents struct {
	store      *MemoryStorage
	mu         sync.RWMutex
	byIncident map[string][]*models.Event
	total      int
}

func (r *memoryEvents) Create(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event == nil || event.ID == "" {
		return nil, models.Validationf("event id is required")
	}
	// Incidents are never deleted, so the parent cannot disappear between
	// this check and the insert.
	if !r.store.incidents.Exists(ctx, event.IncidentID) {
		return nil, fmt.Errorf("incident %s: %w", event.IncidentID, ErrNotFound)
	}
	stored := event.Clone()

	r.mu.Lock()
	r.byIncident[stored.IncidentID] = append(r.byIncident[stored.IncidentID], stored)
	r.total++
	r.mu.Unlock()

	return stored.Clone(), nil
}

func (r *memoryEvents) List(ctx context.Context, incidentID string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	r.mu.RLock()
	events := r.byIncident[incidentID]
	out := make([]*models.Event, len(events))
	for i, e := range events {
		out[len(events)-1-i] = e.Clone()
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryEvents) Count(ctx context.Context, incidentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIncident[incidentID])
}

// --- Timeline ---

type memoryTimeline struct {
	mu      sync.RWMutex
	entries map[string][]*models.TimelineEntry
}

// ensure creates the bucket for an incident if it does not exist yet.
func (r *memoryTimeline) ensure(incidentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[incidentID]; !ok {
		r.entries[incidentID] = []*models.TimelineEntry{}
	}
}

func (r *memoryTimeline) Add(ctx context.Context, entry *models.TimelineEntry) (*models.TimelineEntry, error) {
	if entry == nil {
		return nil, models.Validationf("timeline entry is required")
	}
	stored := entry.Clone()

	r.mu.Lock()
	r.entries[stored.IncidentID] = append(r.entries[stored.IncidentID], stored)
	r.mu.Unlock()

	return stored.Clone(), nil
}

// Get returns entries newest first. Entries with equal timestamps are
// returned in reverse append order.
func (r *memoryTimeline) Get(ctx context.Context, incidentID string) ([]*models.TimelineEntry, error) {
	r.mu.RLock()
	entries := r.entries[incidentID]
	out := make([]*models.TimelineEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e.Clone()
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// --- Actions ---

type memoryActions struct {
	store      *MemoryStorage
	mu         sync.RWMutex
	items      map[string]*models.Action
	byIncident map[string][]string
}

func (r *memoryActions) Create(ctx context.Context, action *models.Action) (*models.Action, error) {
	if action == nil || action.ID == "" {
		return nil, models.Validationf("action id is required")
	}
	if err := models.ValidatePriority(action.Priority); err != nil {
		return nil, err
	}
	stored := action.Clone()

	r.mu.Lock()
	if _, exists := r.items[stored.ID]; !exists {
		r.byIncident[stored.IncidentID] = append(r.byIncident[stored.IncidentID], stored.ID)
	}
	r.items[stored.ID] = stored
	r.mu.Unlock()

	return stored.Clone(), nil
}

func (r *memoryActions) Get(ctx context.Context, id string) (*models.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

func (r *memoryActions) List(ctx context.Context, incidentID string) ([]*models.Action, error) {
	r.mu.RLock()
	ids := r.byIncident[incidentID]
	out := make([]*models.Action, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.items[id].Clone())
	}
	r.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *models.Action) int {
		if a.Priority != b.Priority {
			return a.Priority - b.Priority
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (r *memoryActions) Update(ctx context.Context, id string, patch models.ActionPatch) (*models.Action, error) {
	if patch.Priority != nil {
		if err := models.ValidatePriority(*patch.Priority); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	next := a.Clone()
	patch.Apply(next, r.store.now())
	r.items[id] = next
	return next.Clone(), nil
}
