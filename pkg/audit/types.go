package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Staging events
	EventTypeStageCreate EventType = "stage.create"
	EventTypeStageUpdate EventType = "stage.update"
	EventTypeStageDelete EventType = "stage.delete"
	EventTypeStageRetire EventType = "stage.retire"
	EventTypeStageUnlock EventType = "stage.unlock"

	// Review events
	EventTypeReviewCommit   EventType = "review.commit"
	EventTypeReviewRollback EventType = "review.rollback"
	EventTypeReviewRejected EventType = "review.rejected"

	// Ledger document events
	EventTypePendingRead      EventType = "pending.read"
	EventTypePendingOverwrite EventType = "pending.overwrite"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess  EventStatus = "success"
	EventStatusConflict EventStatus = "conflict"
	EventStatusFailure  EventStatus = "failure"
)

// ChangeDetails captures before/after snapshots for mutation events
type ChangeDetails struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Request context
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Username  string `json:"username,omitempty"`

	// Resource information
	Category     string `json:"category,omitempty"`
	ResourceID   uint64 `json:"resource_id,omitempty"`
	ResourceName string `json:"resource_name,omitempty"`

	// Additional details
	Message  string                 `json:"message,omitempty"`
	Changes  *ChangeDetails         `json:"changes,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
