package domain

import "time"

// Event types emitted by the data layer.
const (
	EventAccessDenied   = "access_denied"
	EventFilterRejected = "filter_rejected"
	EventTaskNotFound   = "task_not_found"
)

// Event is a best-effort audit record. UserID and DeviceID are empty when unknown.
type Event struct {
	Type     string
	Source   string
	UserID   string
	DeviceID string
	// Detail is free text rendered as the record body.
	Detail     string
	Attributes map[string]string
	CreatedAt  time.Time
}
