package models

import "time"

// UpdateType is the type tag of a live-update envelope.
type UpdateType string

const (
	UpdateConnection       UpdateType = "connection"
	UpdateUserMessage      UpdateType = "user_message"
	UpdateUserDisconnected UpdateType = "user_disconnected"
	UpdateError            UpdateType = "error"

	UpdateIncidentCreated   UpdateType = "incident_created"
	UpdateIncidentUpdated   UpdateType = "incident_updated"
	UpdateStatusChanged     UpdateType = "status_changed"
	UpdateEventIngested     UpdateType = "event_ingested"
	UpdateActionCreated     UpdateType = "action_created"
	UpdateActionUpdated     UpdateType = "action_updated"
	UpdateCommentAdded      UpdateType = "comment_added"
	UpdateAnalysisStarted   UpdateType = "analysis_started"
	UpdateAnalysisCompleted UpdateType = "analysis_completed"
)

// Envelope is the message delivered to room members.
type Envelope struct {
	Type       UpdateType     `json:"type"`
	IncidentID string         `json:"incident_id"`
	Data       map[string]any `json:"data"`
	Timestamp  time.Time      `json:"timestamp"`
}
