// Package storage provides the in-memory record store for incidents, their
// events, their timeline and their remediation actions.
package storage

import (
	"context"
	"errors"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// ErrNotFound is returned when a referenced incident, event or action does
// not exist.
var ErrNotFound = errors.New("not found")

// Default list limits.
const (
	DefaultIncidentLimit = 50
	DefaultEventLimit    = 100
)

// Storage is the record store. Every method returns copies; callers never
// hold a reference into the store's state.
type Storage interface {
	Incidents() IncidentRepository
	Events() EventRepository
	Timeline() TimelineRepository
	Actions() ActionRepository

	// Stats returns collection sizes.
	Stats(ctx context.Context) Stats
	// Close releases resources. The memory store keeps its data readable.
	Close() error
}

// IncidentFilter narrows ListIncidents. Zero values match everything.
type IncidentFilter struct {
	Status   models.Status
	Severity models.Severity
	Limit    int
}

// IncidentUpdateFunc computes a patch from the current state of an incident.
// It runs inside the store's exclusive section and must not call the store.
type IncidentUpdateFunc func(current models.Incident) (models.IncidentPatch, error)

// IncidentRepository stores incidents.
type IncidentRepository interface {
	// Create stores the incident and initializes its timeline. A duplicate
	// id overwrites the previous record.
	Create(ctx context.Context, incident *models.Incident) (*models.Incident, error)
	Get(ctx context.Context, id string) (*models.Incident, error)
	Exists(ctx context.Context, id string) bool
	// List returns matches sorted by creation time, newest first.
	List(ctx context.Context, filter IncidentFilter) ([]*models.Incident, error)
	// Update applies patch atomically and refreshes UpdatedAt.
	Update(ctx context.Context, id string, patch models.IncidentPatch) (*models.Incident, error)
	// UpdateFunc is Update with the patch computed from the current record
	// under the same exclusive section.
	UpdateFunc(ctx context.Context, id string, fn IncidentUpdateFunc) (*models.Incident, error)
}

// EventRepository stores immutable events.
type EventRepository interface {
	// Create fails with ErrNotFound when the owning incident is absent.
	Create(ctx context.Context, event *models.Event) (*models.Event, error)
	// List returns an incident's events sorted by timestamp, newest first.
	List(ctx context.Context, incidentID string, limit int) ([]*models.Event, error)
	Count(ctx context.Context, incidentID string) int
}

// TimelineRepository stores append-only timeline entries.
type TimelineRepository interface {
	// Add appends an entry. It always succeeds.
	Add(ctx context.Context, entry *models.TimelineEntry) (*models.TimelineEntry, error)
	// Get returns an incident's entries sorted by timestamp, newest first.
	Get(ctx context.Context, incidentID string) ([]*models.TimelineEntry, error)
}

// ActionRepository stores remediation actions.
type ActionRepository interface {
	Create(ctx context.Context, action *models.Action) (*models.Action, error)
	Get(ctx context.Context, id string) (*models.Action, error)
	// List returns an incident's actions by priority, then oldest first.
	List(ctx context.Context, incidentID string) ([]*models.Action, error)
	Update(ctx context.Context, id string, patch models.ActionPatch) (*models.Action, error)
}

// Stats holds collection sizes.
type Stats struct {
	Incidents       int `json:"incidents"`
	Events          int `json:"events"`
	TimelineEntries int `json:"timeline_entries"`
	Actions         int `json:"actions"`
}
