// seed inserts development sample data for local testing: devices, property
// snapshots, a task, measurements, a validation summary and auxiliary telemetry.
// Payloads go through the same decoder devices use. Idempotent: skips inserts if
// the first dev device already exists.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"mobiperf/backend/internal/config"
	"mobiperf/backend/internal/db"
	"mobiperf/backend/internal/decode"
	devicedomain "mobiperf/backend/internal/device/domain"
	devicerepo "mobiperf/backend/internal/device/repository"
	measurementrepo "mobiperf/backend/internal/measurement/repository"
	"mobiperf/backend/internal/platform/logging"
	rawdatadomain "mobiperf/backend/internal/rawdata/domain"
	rawdatarepo "mobiperf/backend/internal/rawdata/repository"
	taskrepo "mobiperf/backend/internal/task/repository"
	validationdomain "mobiperf/backend/internal/validation/domain"
	validationrepo "mobiperf/backend/internal/validation/repository"
)

const (
	devOwnerID   = "dev-user-001"
	devOwner2ID  = "dev-user-002"
	devDeviceID  = "dev-device-001"
	devDevice2ID = "dev-device-002"
	devDevice3ID = "dev-device-003"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, 0, false).Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.Level(), cfg.Production())
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is not set; create a .env or set DATABASE_URL")
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	existing, err := devicerepo.NewPostgresRepository(conn).GetByID(ctx, devDeviceID)
	if err != nil {
		logger.Error("seed check", "error", err)
		os.Exit(1)
	}
	if existing != nil {
		logger.Info("seed already applied; skipping", "device_id", devDeviceID)
		return
	}

	err = db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		return seed(ctx, tx, decode.NewDecoder(taskrepo.NewPostgresRepository(tx), logger))
	})
	if err != nil {
		logger.Error("seed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed applied")
}

func seed(ctx context.Context, tx *sql.Tx, dec *decode.Decoder) error {
	devices := devicerepo.NewPostgresRepository(tx)
	properties := devicerepo.NewPostgresPropertiesRepository(tx)
	tasks := taskrepo.NewPostgresRepository(tx)
	assignments := taskrepo.NewPostgresAssignmentRepository(tx)
	measurements := measurementrepo.NewPostgresRepository(tx)
	validations := validationrepo.NewPostgresRepository(tx)
	rawdata := rawdatarepo.NewPostgresRepository(tx)

	owner, owner2 := devOwnerID, devOwner2ID
	for _, d := range []*devicedomain.DeviceInfo{
		{ID: devDeviceID, OwnerID: &owner, Manufacturer: "Samsung", Model: "Galaxy Nexus", OS: "Android 4.1", TAC: "35391805"},
		{ID: devDevice2ID, OwnerID: &owner2, Manufacturer: "LGE", Model: "Nexus 4", OS: "Android 4.2", TAC: "35823905"},
		{ID: devDevice3ID, Manufacturer: "HTC", Model: "One", OS: "Android 4.1", TAC: "35455905"},
	} {
		if err := devices.Create(ctx, d); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	micros := func(t time.Time) int64 { return t.UnixMicro() }

	snapshots := map[string]map[string]any{
		devDeviceID: {
			"app_version": "2.4", "os_version": "4.1.2", "network_type": "LTE",
			"carrier": "Verizon", "country_code": "us", "battery_level": 87,
			"is_battery_charging": false, "rssi": -71, "host_apps": []any{"mobiperf"},
			"cpu_race": 0.1, "mem_race": 0.2, "network_race": 0.0,
			"location": map[string]any{"latitude": 42.2808, "longitude": -83.7430},
		},
		devDevice2ID: {
			"app_version": "2.4", "os_version": "4.2.2", "network_type": "WIFI",
			"carrier": "T-Mobile", "country_code": "us", "battery_level": "55",
			"is_battery_charging": "true", "ssid": "lab", "host_apps": []any{"mobiperf", "mobilyzer"},
			"location": map[string]any{"latitude": 47.6062, "longitude": -122.3321},
		},
		devDevice3ID: {
			"app_version": "2.3", "network_type": "HSPA", "carrier": "AT&T",
			"timestamp": micros(now.Add(-time.Hour)),
		},
	}
	propsIDs := make(map[string]string, len(snapshots))
	for _, id := range []string{devDeviceID, devDevice2ID, devDevice3ID} {
		p, _, err := dec.DecodeDeviceProperties(ctx, id, snapshots[id])
		if err != nil {
			return err
		}
		if err := properties.Create(ctx, p); err != nil {
			return err
		}
		propsIDs[id] = p.ID
	}

	task, _, err := dec.DecodeTask(ctx, map[string]any{
		"type": "ping", "tag": "seed", "filter": "carrier = 'Verizon' OR manufacturer = 'LGE'",
		"start_time": micros(now), "end_time": micros(now.Add(24 * time.Hour)),
		"interval_sec": 600, "count": 10, "priority": 5,
		"parameters": map[string]any{"target": "www.google.com", "packet_size_byte": 56},
		"contexts":   map[string]any{"source": "seed"},
	})
	if err != nil {
		return err
	}
	task.CreatorID = devOwnerID
	if err := tasks.Create(ctx, task); err != nil {
		return err
	}
	if _, err := assignments.Assign(ctx, task.ID, devDeviceID); err != nil {
		return err
	}

	var failedID string
	for i, payload := range []map[string]any{
		{"type": "ping", "timestamp": micros(now.Add(-2 * time.Minute)), "success": true, "task_key": task.ID,
			"parameters": map[string]any{"target": "www.google.com"},
			"values":     map[string]any{"mean_rtt_ms": 31.2, "packet_loss": 0}},
		{"type": "http", "timestamp": micros(now.Add(-time.Minute)), "success": "false",
			"parameters": map[string]any{"url": "http://www.google.com"},
			"values":     map[string]any{"error": "connection reset", "code": 0}},
		{"type": "dns_lookup", "timestamp": micros(now), "success": true, "task_key": "999999",
			"values": map[string]any{"address": "74.125.225.1", "time_ms": 12}},
	} {
		m, _, err := dec.DecodeMeasurement(ctx, payload)
		if err != nil {
			return err
		}
		m.DeviceID = devDeviceID
		m.DevicePropertiesID = propsIDs[devDeviceID]
		if err := measurements.Create(ctx, m); err != nil {
			return err
		}
		if i == 1 {
			failedID = m.ID
		}
	}
	if err := assignments.CompleteTask(ctx, task.ID, devDeviceID); err != nil {
		return err
	}

	summary := &validationdomain.ValidationSummary{
		MeasurementType: "http",
		TimestampStart:  now.Add(-time.Hour),
		TimestampEnd:    now,
		RecordCount:     1,
		ErrorCount:      1,
	}
	summary.SetErrorByType(map[string]int64{"connection_reset": 1})
	if err := validations.CreateSummary(ctx, summary); err != nil {
		return err
	}
	if err := validations.CreateEntry(ctx, &validationdomain.ValidationEntry{
		SummaryID: summary.ID, MeasurementID: failedID, ErrorTypes: []string{"connection_reset"},
	}); err != nil {
		return err
	}

	if err := rawdata.CreateRRCInference(ctx, &rawdatadomain.RRCInferenceRawData{
		UserID: devOwnerID, PhoneID: devDeviceID, TestID: 1, Timestamp: now, NetworkType: "LTE",
		RTTLow: 40, RTTHigh: 180, SignalLow: -95, SignalHigh: -70, TimeDelay: 500,
	}); err != nil {
		return err
	}
	if err := rawdata.CreateRRCInferenceSizes(ctx, &rawdatadomain.RRCInferenceSizesRawData{
		UserID: devOwnerID, PhoneID: devDeviceID, TestID: 1, Timestamp: now, NetworkType: "LTE",
		TimeDelay: 500, Result: 62, Size: 1024,
	}); err != nil {
		return err
	}
	if err := rawdata.CreateCDNIp(ctx, &rawdatadomain.CDNIpData{IP: "23.0.160.1", Prefix: "23.0.160.0/24", CDNDomain: "akamai.net"}); err != nil {
		return err
	}
	if err := rawdata.CreateCDNPing(ctx, &rawdatadomain.CDNPingMeasurement{DeviceID: devDeviceID, CDNDomain: "akamai.net", IP: "23.0.160.1", RTT: 18.5}); err != nil {
		return err
	}
	if err := rawdata.CreateGCM(ctx, &rawdatadomain.GCMMeasurement{DeviceID: devDeviceID}); err != nil {
		return err
	}
	return rawdata.PutRecent(ctx, &rawdatadomain.RecentMeasurement{ID: "seed", Data: `{"device":"dev-device-001","type":"ping","rtt":31.2}`})
}
