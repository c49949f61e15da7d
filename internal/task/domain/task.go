package domain

import (
	"time"

	"mobiperf/backend/internal/extension"
)

// Task is a measurement task. Filter is a query expression over device
// attributes; an empty filter matches every device.
type Task struct {
	ID        int64
	Created   time.Time
	CreatorID string
	// Type is the measurement type (ping, traceroute, http, ...).
	Type   string
	Tag    string
	Filter string

	StartTime   *time.Time
	EndTime     *time.Time
	IntervalSec float64
	Count       int64
	// Priority: larger values run first.
	Priority int64
	// DeviceID optionally pins the task to one device.
	DeviceID *string

	// Extensions carries the param and context namespaces.
	Extensions extension.Set
}

// Param returns the measurement parameter stored under key.
func (t *Task) Param(key string) (extension.Attr, bool) {
	return t.Extensions.Get(extension.Param, key)
}

// Params returns all measurement parameters keyed by bare name.
func (t *Task) Params() map[string]extension.Attr {
	return t.Extensions.All(extension.Param)
}

// Context returns the measurement context stored under key.
func (t *Task) Context(key string) (extension.Attr, bool) {
	return t.Extensions.Get(extension.Context, key)
}

// Contexts returns all measurement contexts keyed by bare name.
func (t *Task) Contexts() map[string]extension.Attr {
	return t.Extensions.All(extension.Context)
}
