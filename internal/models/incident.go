// Package models contains the core data structures for Warroom.
package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an incident. The ordering
// open -> investigating -> identified -> monitoring -> resolved -> closed is
// advisory; any status may follow any other.
type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusIdentified    Status = "identified"
	StatusMonitoring    Status = "monitoring"
	StatusResolved      Status = "resolved"
	StatusClosed        Status = "closed"
)

// Statuses lists every status in advisory order.
var Statuses = []Status{
	StatusOpen, StatusInvestigating, StatusIdentified,
	StatusMonitoring, StatusResolved, StatusClosed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// IsActive reports whether an incident in this status still counts as active.
func (s Status) IsActive() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusIdentified, StatusMonitoring:
		return true
	}
	return false
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", Validationf("invalid status %q", s)
	}
	return st, nil
}

// Severity is the impact level of an incident.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities: critical is 5, info is 1, unknown is 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity converts a string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", Validationf("invalid severity %q", s)
	}
	return sev, nil
}

// Incident is the top-level tracked problem record.
type Incident struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      Status         `json:"status"`
	Severity    Severity       `json:"severity"`
	Source      string         `json:"source"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// Analysis output.
	AISummary        string   `json:"ai_summary,omitempty"`
	RootCause        string   `json:"root_cause,omitempty"`
	SuggestedActions []string `json:"suggested_actions"`
	SimilarIncidents []string `json:"similar_incidents"`

	// MTTRMinutes is minutes between creation and first resolution.
	MTTRMinutes *float64 `json:"mttr_minutes,omitempty"`
}

// IncidentCreate carries the caller-supplied fields of a new incident.
type IncidentCreate struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Source      string         `json:"source"`
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
}

// Validate checks the create request and fills defaults.
func (c *IncidentCreate) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return Validationf("title is required")
	}
	if len(c.Title) > 200 {
		return Validationf("title must be at most 200 characters")
	}
	if c.Severity == "" {
		c.Severity = SeverityMedium
	}
	sev, err := ParseSeverity(string(c.Severity))
	if err != nil {
		return err
	}
	c.Severity = sev
	if c.Source == "" {
		c.Source = "manual"
	}
	return nil
}

// NewIncident builds an open incident from a validated create request.
func NewIncident(c IncidentCreate, now time.Time) *Incident {
	return &Incident{
		ID:               uuid.New().String(),
		Title:            c.Title,
		Description:      c.Description,
		Status:           StatusOpen,
		Severity:         c.Severity,
		Source:           c.Source,
		Tags:             normalizeTags(c.Tags),
		Metadata:         cloneMap(c.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
		SuggestedActions: []string{},
		SimilarIncidents: []string{},
	}
}

// Clone returns a deep copy.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	c.Tags = slices.Clone(i.Tags)
	c.Metadata = cloneMap(i.Metadata)
	c.SuggestedActions = slices.Clone(i.SuggestedActions)
	c.SimilarIncidents = slices.Clone(i.SimilarIncidents)
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	if i.MTTRMinutes != nil {
		m := *i.MTTRMinutes
		c.MTTRMinutes = &m
	}
	return &c
}

// HasTag reports whether the incident carries tag (case-insensitive).
func (i *Incident) HasTag(tag string) bool {
	for _, t := range i.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// normalizeTags trims, drops empties and de-duplicates while keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return CloneMetadata(m)
}

// CloneMetadata deep-copies a JSON-shaped map: nested objects and lists
// are copied so the result shares no mutable state with m.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return CloneMetadata(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(vv)
	case map[string]string:
		return maps.Clone(vv)
	}
	return v
}
