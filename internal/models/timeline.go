package models

import (
	"time"

	"github.com/google/uuid"
)

// TimelineEntryType classifies a timeline entry.
type TimelineEntryType string

const (
	EntryStatusChange TimelineEntryType = "status_change"
	EntryAIAnalysis   TimelineEntryType = "ai_analysis"
	EntryUserAction   TimelineEntryType = "user_action"
	EntrySystemEvent  TimelineEntryType = "system_event"
	EntryComment      TimelineEntryType = "comment"
)

// TimelineEntry is one append-only audit record of something that happened
// to an incident.
type TimelineEntry struct {
	ID          string            `json:"id"`
	IncidentID  string            `json:"incident_id"`
	EntryType   TimelineEntryType `json:"entry_type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Actor       string            `json:"actor"`
	Timestamp   time.Time         `json:"timestamp"`
	Metadata    map[string]any    `json:"metadata"`
}

// NewTimelineEntry builds an entry with a fresh id. Actor defaults to system.
func NewTimelineEntry(incidentID string, typ TimelineEntryType, title, description, actor string, now time.Time) *TimelineEntry {
	if actor == "" {
		actor = "system"
	}
	return &TimelineEntry{
		ID:          uuid.New().String(),
		IncidentID:  incidentID,
		EntryType:   typ,
		Title:       title,
		Description: description,
		Actor:       actor,
		Timestamp:   now,
		Metadata:    map[string]any{},
	}
}

// Clone returns a deep copy.
func (t *TimelineEntry) Clone() *TimelineEntry {
	if t == nil {
		return nil
	}
	c := *t
	c.Metadata = cloneMap(t.Metadata)
	return &c
}
