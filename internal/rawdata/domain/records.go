// Package domain holds the auxiliary append-only telemetry records: RRC-state
// inference samples, CDN probes, push delivery tracking and the visualization cache.
package domain

import "time"

// RRCInferenceRawData is one RRC-state inference sample reported by a phone.
type RRCInferenceRawData struct {
	ID          string
	UserID      string
	PhoneID     string
	TestID      int64
	Timestamp   time.Time
	NetworkType string
	RTTLow      int64
	RTTHigh     int64
	LostLow     int64
	LostHigh    int64
	SignalLow   int64
	SignalHigh  int64
	ErrorLow    int64
	ErrorHigh   int64
	TimeDelay   int64
}

// RRCInferenceSizesRawData relates packet size to round-trip time for an RRC state.
type RRCInferenceSizesRawData struct {
	ID          string
	UserID      string
	PhoneID     string
	TestID      int64
	Timestamp   time.Time
	NetworkType string
	TimeDelay   int64
	Result      int64
	Size        int64
}

// CDNIpData maps a CDN domain to an IP and prefix. Timestamp is set on every write.
type CDNIpData struct {
	ID        string
	IP        string
	Prefix    string
	Timestamp time.Time
	CDNDomain string
}

// CDNPingMeasurement is one RTT probe from a device to a CDN address.
type CDNPingMeasurement struct {
	ID        string
	DeviceID  string
	Timestamp time.Time
	CDNDomain string
	IP        string
	RTT       float64
}

// GCMMeasurement tracks push delivery of a measurement request to a device.
type GCMMeasurement struct {
	ID            string
	DeviceID      string
	MeasurementID *string
	Timestamp     time.Time
}

// RecentMeasurement is an opaque payload cached for map visualization.
type RecentMeasurement struct {
	ID   string
	Data string
}
