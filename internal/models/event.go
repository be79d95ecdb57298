package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an observed datum.
type EventType string

const (
	EventTypeLog        EventType = "log"
	EventTypeMetric     EventType = "metric"
	EventTypeAlert      EventType = "alert"
	EventTypeTrace      EventType = "trace"
	EventTypeUserAction EventType = "user_action"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeLog, EventTypeMetric, EventTypeAlert, EventTypeTrace, EventTypeUserAction:
		return true
	}
	return false
}

// Common event levels. Level is not a closed set; upstream sources vary.
const (
	LevelDebug    = "debug"
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelError    = "error"
	LevelCritical = "critical"
)

// Event is one observed datum attached to exactly one incident.
// Events are immutable after creation.
type Event struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	EventType  EventType      `json:"event_type"`
	Message    string         `json:"message"`
	Level      string         `json:"level"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
	Timestamp  time.Time      `json:"timestamp"`

	// Embedding is an opaque vector for semantic search. Never serialized.
	Embedding []float32 `json:"-"`
}

// EventCreate carries the caller-supplied fields of a new event.
type EventCreate struct {
	IncidentID string         `json:"incident_id"`
	EventType  EventType      `json:"event_type"`
	Message    string         `json:"message"`
	Level      string         `json:"level"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}

// Validate checks the create request and fills defaults.
func (c *EventCreate) Validate() error {
	if strings.TrimSpace(c.IncidentID) == "" {
		return Validationf("incident_id is required")
	}
	if !c.EventType.Valid() {
		return Validationf("invalid event_type %q", c.EventType)
	}
	if strings.TrimSpace(c.Message) == "" {
		return Validationf("message is required")
	}
	c.Level = NormalizeLevel(c.Level)
	if c.Source == "" {
		c.Source = "unknown"
	}
	return nil
}

// NewEvent builds an event from a validated create request. A zero or absent
// timestamp defaults to now.
func NewEvent(c EventCreate, now time.Time) *Event {
	ts := now
	if c.Timestamp != nil && !c.Timestamp.IsZero() {
		ts = c.Timestamp.UTC()
	}
	return &Event{
		ID:         uuid.New().String(),
		IncidentID: c.IncidentID,
		EventType:  c.EventType,
		Message:    c.Message,
		Level:      c.Level,
		Source:     c.Source,
		Metadata:   cloneMap(c.Metadata),
		Timestamp:  ts,
	}
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Metadata = cloneMap(e.Metadata)
	c.Embedding = slices.Clone(e.Embedding)
	return &c
}

// NormalizeLevel folds the common spellings of a log level onto the canonical
// lower-case names. Unrecognized levels are lower-cased and kept. An empty
// level becomes info.
func NormalizeLevel(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "":
		return LevelInfo
	case "debug", "trace":
		return LevelDebug
	case "info", "notice":
		return LevelInfo
	case "warning", "warn":
		return LevelWarning
	case "error", "err":
		return LevelError
	case "critical", "crit", "fatal", "emergency", "emerg", "alert":
		return LevelCritical
	default:
		return l
	}
}
