package domain

import (
	"fmt"
	"time"

	"mobiperf/backend/internal/extension"
)

// Measurement is a single result reported by one device.
type Measurement struct {
	ID       string
	DeviceID string
	// DevicePropertiesID references the properties snapshot taken with the result.
	DevicePropertiesID string
	Type               string
	// Timestamp is set at write time when the device did not supply one.
	Timestamp time.Time
	Success   bool
	// TaskID references the originating task, if any.
	TaskID *int64

	// Extensions carries the param and value namespaces.
	Extensions extension.Set
}

// Param returns the measurement parameter stored under key.
func (m *Measurement) Param(key string) (extension.Attr, bool) {
	return m.Extensions.Get(extension.Param, key)
}

// Params returns all measurement parameters keyed by bare name.
func (m *Measurement) Params() map[string]extension.Attr {
	return m.Extensions.All(extension.Param)
}

// Value returns the result value stored under key.
func (m *Measurement) Value(key string) (extension.Attr, bool) {
	return m.Extensions.Get(extension.Value, key)
}

// Values returns all result values keyed by bare name.
func (m *Measurement) Values() map[string]extension.Attr {
	return m.Extensions.All(extension.Value)
}

// TimestampIn returns the timestamp in loc; nil loc leaves it in UTC.
func (m *Measurement) TimestampIn(loc *time.Location) time.Time {
	if loc == nil {
		return m.Timestamp.UTC()
	}
	return m.Timestamp.In(loc)
}

func (m *Measurement) String() string {
	return fmt.Sprintf("Measurement <device %s, type %s>", m.DeviceID, m.Type)
}
