package repository

import (
	"context"

	"mobiperf/backend/internal/rawdata/domain"
)

// Repository defines persistence for auxiliary telemetry. Every record is
// append-only except RecentMeasurement, which is replaced by key.
type Repository interface {
	CreateRRCInference(ctx context.Context, d *domain.RRCInferenceRawData) error
	CreateRRCInferenceSizes(ctx context.Context, d *domain.RRCInferenceSizesRawData) error
	// CreateCDNIp, CreateCDNPing and CreateGCM stamp the record with the write time.
	CreateCDNIp(ctx context.Context, d *domain.CDNIpData) error
	CreateCDNPing(ctx context.Context, d *domain.CDNPingMeasurement) error
	CreateGCM(ctx context.Context, d *domain.GCMMeasurement) error
	ListCDNPings(ctx context.Context, deviceID string, limit int) ([]*domain.CDNPingMeasurement, error)
	PutRecent(ctx context.Context, r *domain.RecentMeasurement) error
	// GetRecent returns the cached payload for id, or nil if not found.
	GetRecent(ctx context.Context, id string) (*domain.RecentMeasurement, error)
}
