package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionStatus is the execution state of a remediation action.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionSkipped    ActionStatus = "skipped"
)

// Valid reports whether s is a known action status.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionPending, ActionInProgress, ActionCompleted, ActionFailed, ActionSkipped:
		return true
	}
	return false
}

// Terminal reports whether the action has finished, successfully or not.
func (s ActionStatus) Terminal() bool {
	return s == ActionCompleted || s == ActionFailed
}

// Action priority bounds. 1 is the highest priority.
const (
	MinPriority = 1
	MaxPriority = 5
)

// Action is a remediation step associated with an incident.
type Action struct {
	ID          string       `json:"id"`
	IncidentID  string       `json:"incident_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      ActionStatus `json:"status"`
	SuggestedBy string       `json:"suggested_by"`
	ExecutedBy  string       `json:"executed_by,omitempty"`
	Priority    int          `json:"priority"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ActionCreate carries the caller-supplied fields of a new action.
type ActionCreate struct {
	IncidentID  string `json:"incident_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SuggestedBy string `json:"suggested_by"`
	Priority    int    `json:"priority"`
}

// Validate checks the create request and fills defaults.
func (c *ActionCreate) Validate() error {
	if strings.TrimSpace(c.IncidentID) == "" {
		return Validationf("incident_id is required")
	}
	if strings.TrimSpace(c.Title) == "" {
		return Validationf("title is required")
	}
	if c.Priority == 0 {
		c.Priority = MinPriority
	}
	if err := ValidatePriority(c.Priority); err != nil {
		return err
	}
	if c.SuggestedBy == "" {
		c.SuggestedBy = "ai"
	}
	return nil
}

// ValidatePriority checks that p lies in [MinPriority, MaxPriority].
func ValidatePriority(p int) error {
	if p < MinPriority || p > MaxPriority {
		return Validationf("priority must be between %d and %d, got %d", MinPriority, MaxPriority, p)
	}
	return nil
}

// NewAction builds a pending action from a validated create request.
func NewAction(c ActionCreate, now time.Time) *Action {
	return &Action{
		ID:          uuid.New().String(),
		IncidentID:  c.IncidentID,
		Title:       c.Title,
		Description: c.Description,
		Status:      ActionPending,
		SuggestedBy: c.SuggestedBy,
		Priority:    c.Priority,
		CreatedAt:   now,
	}
}

// Clone returns a deep copy.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	c := *a
	if a.StartedAt != nil {
		t := *a.StartedAt
		c.StartedAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
