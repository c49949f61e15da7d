package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/filter"
	"mobiperf/backend/internal/platform/pagination"
)

const deviceSelect = `SELECT d.id, d.owner_id, d.manufacturer, d.model, d.os, d.tac FROM devices d`

// PostgresRepository persists devices.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*domain.DeviceInfo, error) {
	var d domain.DeviceInfo
	var owner sql.NullString
	if err := row.Scan(&d.ID, &owner, &d.Manufacturer, &d.Model, &d.OS, &d.TAC); err != nil {
		return nil, err
	}
	if owner.Valid {
		d.OwnerID = &owner.String
	}
	return &d, nil
}

func scanDevices(rows *sql.Rows) ([]*domain.DeviceInfo, error) {
	defer rows.Close()
	var out []*domain.DeviceInfo
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID returns the device for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.DeviceInfo, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, deviceSelect+` WHERE d.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// List returns one page of devices ordered by id, resuming after q.Cursor.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]*domain.DeviceInfo, string, error) {
	after, err := pagination.Decode(q.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.Limit(q.Limit)
	var owner sql.NullString
	if q.OwnerID != nil {
		owner = sql.NullString{String: *q.OwnerID, Valid: true}
	}
	// One extra row tells whether another page exists.
	rows, err := r.db.QueryContext(ctx, deviceSelect+`
		WHERE ($1::text IS NULL OR d.owner_id = $1)
		  AND d.id > $2
		ORDER BY d.id
		LIMIT $3`, owner, after, limit+1)
	if err != nil {
		return nil, "", err
	}
	list, err := scanDevices(rows)
	if err != nil {
		return nil, "", err
	}
	var next string
	if len(list) > limit {
		list = list[:limit]
		next = pagination.Encode(list[limit-1].ID)
	}
	return list, next, nil
}

// Create persists the device. The device must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.DeviceInfo) error {
	if d.ID == "" {
		return errors.New("device: id is required")
	}
	var owner sql.NullString
	if d.OwnerID != nil {
		owner = sql.NullString{String: *d.OwnerID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, owner_id, manufacturer, model, os, tac)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, owner, d.Manufacturer, d.Model, d.OS, d.TAC)
	return err
}

// UpdateOwner sets or clears the owner of device id.
func (r *PostgresRepository) UpdateOwner(ctx context.Context, id string, ownerID *string) error {
	var owner sql.NullString
	if ownerID != nil {
		owner = sql.NullString{String: *ownerID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE devices SET owner_id = $2 WHERE id = $1`, id, owner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("device %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// FindByFilter returns the devices whose columns satisfy e.
func (r *PostgresRepository) FindByFilter(ctx context.Context, e filter.Expr) ([]*domain.DeviceInfo, error) {
	cond, args := filter.SQL(e, DeviceColumns, 0)
	rows, err := r.db.QueryContext(ctx, deviceSelect+` WHERE `+cond+` ORDER BY d.id`, args...)
	if err != nil {
		return nil, err
	}
	return scanDevices(rows)
}

const propertiesColumns = `p.id, p.device_id, p."timestamp", p.app_version, p.os_version, p.latitude, p.longitude,
	p.location_type, p.network_type, p.country_code, p.carrier, p.battery_level, p.is_battery_charging,
	p.cell_info, p.cell_rssi, p.rssi, p.ssid, p.bssid, p.wifi_ip_address, p.mobilyzer_version, p.host_apps,
	p.request_app, p.cpu_race, p.mem_race, p.network_race, p.assigned, p.done, p.registration_id`

// PostgresPropertiesRepository persists device property snapshots.
type PostgresPropertiesRepository struct {
	db    db.DBTX
	types *pgtype.Map
}

// NewPostgresPropertiesRepository returns a properties repository that uses the given db for persistence.
func NewPostgresPropertiesRepository(conn db.DBTX) *PostgresPropertiesRepository {
	return &PostgresPropertiesRepository{db: conn, types: pgtype.NewMap()}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func (r *PostgresPropertiesRepository) scan(row rowScanner) (*domain.DeviceProperties, error) {
	var (
		p                       domain.DeviceProperties
		lat, lon, cpu, mem, net sql.NullFloat64
		battery, rssi           sql.NullInt64
		charging                sql.NullBool
	)
	err := row.Scan(&p.ID, &p.DeviceID, &p.Timestamp, &p.AppVersion, &p.OSVersion, &lat, &lon,
		&p.LocationType, &p.NetworkType, &p.CountryCode, &p.Carrier, &battery, &charging,
		&p.CellInfo, &p.CellRSSI, &rssi, &p.SSID, &p.BSSID, &p.WifiIPAddress, &p.MobilyzerVersion,
		r.types.SQLScanner(&p.HostApps),
		&p.RequestApp, &cpu, &mem, &net, &p.Assigned, &p.Done, &p.RegistrationID)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		p.Location = &domain.Location{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	p.BatteryLevel = intPtr(battery)
	p.RSSI = intPtr(rssi)
	if charging.Valid {
		p.IsBatteryCharging = &charging.Bool
	}
	p.CPURace = floatPtr(cpu)
	p.MemRace = floatPtr(mem)
	p.NetworkRace = floatPtr(net)
	p.Timestamp = p.Timestamp.UTC()
	return &p, nil
}

// Create stores p. A zero Timestamp is replaced by the database clock.
func (r *PostgresPropertiesRepository) Create(ctx context.Context, p *domain.DeviceProperties) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var ts sql.NullTime
	if !p.Timestamp.IsZero() {
		ts = sql.NullTime{Time: p.Timestamp, Valid: true}
	}
	var lat, lon sql.NullFloat64
	if p.Location != nil {
		lat = sql.NullFloat64{Float64: p.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: p.Location.Longitude, Valid: true}
	}
	hostApps := p.HostApps
	if hostApps == nil {
		hostApps = []string{}
	}
	var stored time.Time
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO device_properties (id, device_id, "timestamp", app_version, os_version, latitude, longitude,
			location_type, network_type, country_code, carrier, battery_level, is_battery_charging,
			cell_info, cell_rssi, rssi, ssid, bssid, wifi_ip_address, mobilyzer_version, host_apps,
			request_app, cpu_race, mem_race, network_race, assigned, done, registration_id)
		VALUES ($1, $2, COALESCE($3, now()), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		RETURNING "timestamp"`,
		p.ID, p.DeviceID, ts, p.AppVersion, p.OSVersion, lat, lon,
		p.LocationType, p.NetworkType, p.CountryCode, p.Carrier, nullInt(p.BatteryLevel), nullBool(p.IsBatteryCharging),
		p.CellInfo, p.CellRSSI, nullInt(p.RSSI), p.SSID, p.BSSID, p.WifiIPAddress, p.MobilyzerVersion, hostApps,
		p.RequestApp, nullFloat(p.CPURace), nullFloat(p.MemRace), nullFloat(p.NetworkRace), p.Assigned, p.Done, p.RegistrationID,
	).Scan(&stored)
	if err != nil {
		return err
	}
	p.Timestamp = stored.UTC()
	return nil
}

// Latest returns the newest snapshot for deviceID, or nil if none exists.
func (r *PostgresPropertiesRepository) Latest(ctx context.Context, deviceID string) (*domain.DeviceProperties, error) {
	p, err := r.scan(r.db.QueryRowContext(ctx, `SELECT `+propertiesColumns+`
		FROM device_properties p
		WHERE p.device_id = $1
		ORDER BY p."timestamp" DESC
		LIMIT 1`, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Count returns the number of snapshots stored for deviceID.
func (r *PostgresPropertiesRepository) Count(ctx context.Context, deviceID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM device_properties WHERE device_id = $1`, deviceID).Scan(&n)
	return n, err
}

// DevicesMatching returns the devices owning a snapshot that satisfies e.
func (r *PostgresPropertiesRepository) DevicesMatching(ctx context.Context, e filter.Expr) ([]*domain.DeviceInfo, error) {
	cond, args := filter.SQL(e, PropertiesColumns, 0)
	rows, err := r.db.QueryContext(ctx, deviceSelect+`
		WHERE d.id IN (SELECT p.device_id FROM device_properties p WHERE `+cond+`)
		ORDER BY d.id`, args...)
	if err != nil {
		return nil, err
	}
	return scanDevices(rows)
}
