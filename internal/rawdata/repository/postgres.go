package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/platform/pagination"
	"mobiperf/backend/internal/rawdata/domain"
)

// PostgresRepository persists auxiliary telemetry.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a raw-data repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// CreateRRCInference stores one RRC-state inference sample.
func (r *PostgresRepository) CreateRRCInference(ctx context.Context, d *domain.RRCInferenceRawData) error {
	newID(&d.ID)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rrc_inference_raw_data (id, user_id, phone_id, test_id, "timestamp", network_type,
			rtt_low, rtt_high, lost_low, lost_high, signal_low, signal_high, error_low, error_high, time_delay)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, d.UserID, d.PhoneID, d.TestID, d.Timestamp, d.NetworkType,
		d.RTTLow, d.RTTHigh, d.LostLow, d.LostHigh, d.SignalLow, d.SignalHigh, d.ErrorLow, d.ErrorHigh, d.TimeDelay)
	return err
}

// CreateRRCInferenceSizes stores one packet-size sample.
func (r *PostgresRepository) CreateRRCInferenceSizes(ctx context.Context, d *domain.RRCInferenceSizesRawData) error {
	newID(&d.ID)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rrc_inference_sizes_raw_data (id, user_id, phone_id, test_id, "timestamp", network_type,
			time_delay, result, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.UserID, d.PhoneID, d.TestID, d.Timestamp, d.NetworkType, d.TimeDelay, d.Result, d.Size)
	return err
}

// CreateCDNIp stores a CDN address mapping.
func (r *PostgresRepository) CreateCDNIp(ctx context.Context, d *domain.CDNIpData) error {
	newID(&d.ID)
	return r.db.QueryRowContext(ctx, `
		INSERT INTO cdn_ip_data (id, ip, prefix, cdn_domain) VALUES ($1, $2, $3, $4)
		RETURNING "timestamp"`, d.ID, d.IP, d.Prefix, d.CDNDomain).Scan(&d.Timestamp)
}

// CreateCDNPing stores a CDN RTT probe.
func (r *PostgresRepository) CreateCDNPing(ctx context.Context, d *domain.CDNPingMeasurement) error {
	newID(&d.ID)
	return r.db.QueryRowContext(ctx, `
		INSERT INTO cdn_ping_measurements (id, device_id, cdn_domain, ip, rtt) VALUES ($1, $2, $3, $4, $5)
		RETURNING "timestamp"`, d.ID, d.DeviceID, d.CDNDomain, d.IP, d.RTT).Scan(&d.Timestamp)
}

// CreateGCM stores a push-delivery record.
func (r *PostgresRepository) CreateGCM(ctx context.Context, d *domain.GCMMeasurement) error {
	newID(&d.ID)
	return r.db.QueryRowContext(ctx, `
		INSERT INTO gcm_measurements (id, device_id, measurement_id) VALUES ($1, $2, $3)
		RETURNING "timestamp"`, d.ID, d.DeviceID, d.MeasurementID).Scan(&d.Timestamp)
}

// ListCDNPings returns the newest probes of deviceID.
func (r *PostgresRepository) ListCDNPings(ctx context.Context, deviceID string, limit int) ([]*domain.CDNPingMeasurement, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, "timestamp", cdn_domain, ip, rtt
		FROM cdn_ping_measurements WHERE device_id = $1
		ORDER BY "timestamp" DESC LIMIT $2`, deviceID, pagination.Limit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.CDNPingMeasurement
	for rows.Next() {
		var d domain.CDNPingMeasurement
		if err := rows.Scan(&d.ID, &d.DeviceID, &d.Timestamp, &d.CDNDomain, &d.IP, &d.RTT); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// PutRecent creates or replaces the cached payload for rm.ID.
func (r *PostgresRepository) PutRecent(ctx context.Context, rm *domain.RecentMeasurement) error {
	newID(&rm.ID)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recent_measurements (id, data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, rm.ID, rm.Data)
	return err
}

// GetRecent returns the cached payload for id, or nil if not found.
func (r *PostgresRepository) GetRecent(ctx context.Context, id string) (*domain.RecentMeasurement, error) {
	var rm domain.RecentMeasurement
	err := r.db.QueryRowContext(ctx, `SELECT id, data FROM recent_measurements WHERE id = $1`, id).Scan(&rm.ID, &rm.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rm, nil
}

var _ Repository = (*PostgresRepository)(nil)
