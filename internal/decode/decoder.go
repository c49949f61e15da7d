// Package decode turns device-submitted payloads (string keys to JSON values)
// into typed entities. Decoding is best-effort per field: a malformed optional
// field is left unset, logged and recorded in the returned Report. Only a
// malformed location fails the whole decode.
package decode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	devicedomain "mobiperf/backend/internal/device/domain"
	measurementdomain "mobiperf/backend/internal/measurement/domain"
	taskdomain "mobiperf/backend/internal/task/domain"
)

// TaskLookup resolves task references. GetByID returns (nil, nil) when the task
// does not exist.
type TaskLookup interface {
	GetByID(ctx context.Context, id int64) (*taskdomain.Task, error)
}

// Decoder decodes payloads into entities.
type Decoder struct {
	tasks  TaskLookup
	logger *slog.Logger
}

// NewDecoder returns a Decoder. tasks may be nil, in which case task references
// are never resolved. A nil logger discards.
func NewDecoder(tasks TaskLookup, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{tasks: tasks, logger: logger.With("component", "decode")}
}

func (d *Decoder) record(ctx context.Context, r *Report, fe *FieldError) {
	d.logger.WarnContext(ctx, "field dropped", "field", fe.Field, "value", fe.Value, "error", fe.Err)
	r.add(fe)
}

// TaskReference resolves an optional task id (decimal string or number). A nil
// value or an unknown task yields nil with no error; a malformed id is a
// FieldError. Lookup failures are returned as errors.
func (d *Decoder) TaskReference(ctx context.Context, v any) (*int64, *FieldError, error) {
	if v == nil {
		return nil, nil, nil
	}
	id, fe := Int64("task_key", v)
	if fe != nil {
		return nil, fe, nil
	}
	if d.tasks == nil {
		return nil, nil, nil
	}
	t, err := d.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("decode: look up task %d: %w", id, err)
	}
	if t == nil {
		d.logger.InfoContext(ctx, "task reference not found", "task_id", id)
		return nil, nil, nil
	}
	return &id, nil, nil
}

// DecodeDeviceProperties decodes a properties snapshot for deviceID. Unknown
// keys are ignored. The returned error is non-nil only for a malformed location.
func (d *Decoder) DecodeDeviceProperties(ctx context.Context, deviceID string, payload map[string]any) (*devicedomain.DeviceProperties, Report, error) {
	p := &devicedomain.DeviceProperties{DeviceID: deviceID}
	var r Report
	str := func(key string, dst *string) {
		v, ok := payload[key]
		if !ok || v == nil {
			return
		}
		s, fe := String(key, v)
		if fe != nil {
			d.record(ctx, &r, fe)
			return
		}
		*dst = s
	}
	intPtr := func(key string, dst **int64) {
		v, ok := payload[key]
		if !ok || v == nil {
			return
		}
		n, fe := Int64(key, v)
		if fe != nil {
			d.record(ctx, &r, fe)
			return
		}
		*dst = &n
	}
	floatPtr := func(key string, dst **float64) {
		v, ok := payload[key]
		if !ok || v == nil {
			return
		}
		f, fe := Float64(key, v)
		if fe != nil {
			d.record(ctx, &r, fe)
			return
		}
		*dst = &f
	}

	if v, ok := payload["location"]; ok && v != nil {
		loc, fe := Location("location", v)
		if fe != nil {
			return nil, Report{Errors: []*FieldError{fe}}, fe
		}
		p.Location = loc
	}
	if v, ok := payload["timestamp"]; ok && v != nil {
		ts, fe := Timestamp("timestamp", v)
		if fe != nil {
			d.record(ctx, &r, fe)
		} else {
			p.Timestamp = ts
		}
	}

	str("app_version", &p.AppVersion)
	str("os_version", &p.OSVersion)
	str("location_type", &p.LocationType)
	str("network_type", &p.NetworkType)
	str("country_code", &p.CountryCode)
	str("carrier", &p.Carrier)
	str("cell_info", &p.CellInfo)
	str("cell_rssi", &p.CellRSSI)
	str("ssid", &p.SSID)
	str("bssid", &p.BSSID)
	str("wifi_ip_address", &p.WifiIPAddress)
	str("mobilyzer_version", &p.MobilyzerVersion)
	str("request_app", &p.RequestApp)
	str("registration_id", &p.RegistrationID)
	intPtr("battery_level", &p.BatteryLevel)
	intPtr("rssi", &p.RSSI)
	floatPtr("cpu_race", &p.CPURace)
	floatPtr("mem_race", &p.MemRace)
	floatPtr("network_race", &p.NetworkRace)

	if v, ok := payload["is_battery_charging"]; ok && v != nil {
		b, fe := Bool("is_battery_charging", v)
		if fe != nil {
			d.record(ctx, &r, fe)
		} else {
			p.IsBatteryCharging = &b
		}
	}
	if v, ok := payload["host_apps"]; ok && v != nil {
		apps, fe := Strings("host_apps", v)
		if fe != nil {
			d.record(ctx, &r, fe)
		} else {
			p.HostApps = apps
		}
	}
	return p, r, nil
}

// DecodeMeasurement decodes a measurement result. DeviceID and
// DevicePropertiesID are left for the caller. The returned error is non-nil
// only when the task lookup itself fails.
func (d *Decoder) DecodeMeasurement(ctx context.Context, payload map[string]any) (*measurementdomain.Measurement, Report, error) {
	m := &measurementdomain.Measurement{}
	var r Report

	if v, ok := payload["type"]; ok && v != nil {
		if s, fe := String("type", v); fe != nil {
			d.record(ctx, &r, fe)
		} else {
			m.Type = s
		}
	}
	if v, ok := payload["timestamp"]; ok && v != nil {
		if ts, fe := Timestamp("timestamp", v); fe != nil {
			d.record(ctx, &r, fe)
		} else {
			m.Timestamp = ts
		}
	}
	if v, ok := payload["success"]; ok && v != nil {
		if b, fe := Bool("success", v); fe != nil {
			d.record(ctx, &r, fe)
		} else {
			m.Success = b
		}
	}
	if v, ok := payload["parameters"]; ok && v != nil {
		if fe := MeasurementParameters(&m.Extensions, v); fe != nil {
			d.record(ctx, &r, fe)
		}
	}
	if v, ok := payload["values"]; ok && v != nil {
		if fe := Values(&m.Extensions, v); fe != nil {
			d.record(ctx, &r, fe)
		}
	}
	taskID, fe, err := d.TaskReference(ctx, payload["task_key"])
	if err != nil {
		return nil, r, err
	}
	if fe != nil {
		d.record(ctx, &r, fe)
	}
	m.TaskID = taskID
	return m, r, nil
}

// DecodeTask decodes a task definition. Schedule bounds are epoch microseconds.
func (d *Decoder) DecodeTask(ctx context.Context, payload map[string]any) (*taskdomain.Task, Report, error) {
	t := &taskdomain.Task{}
	var r Report
	str := func(key string, dst *string) {
		v, ok := payload[key]
		if !ok || v == nil {
			return
		}
		s, fe := String(key, v)
		if fe != nil {
			d.record(ctx, &r, fe)
			return
		}
		*dst = s
	}
	timePtr := func(key string, dst **time.Time) {
		v, ok := payload[key]
		if !ok || v == nil {
			return
		}
		ts, fe := Timestamp(key, v)
		if fe != nil {
			d.record(ctx, &r, fe)
			return
		}
		*dst = &ts
	}
	integer := func(key string, dst *int64) {
		v, ok := payload[key]
		if !ok || v == nil {
			return
		}
		n, fe := Int64(key, v)
		if fe != nil {
			d.record(ctx, &r, fe)
			return
		}
		*dst = n
	}

	str("type", &t.Type)
	str("tag", &t.Tag)
	str("filter", &t.Filter)
	timePtr("start_time", &t.StartTime)
	timePtr("end_time", &t.EndTime)
	integer("count", &t.Count)
	integer("priority", &t.Priority)
	if v, ok := payload["interval_sec"]; ok && v != nil {
		if f, fe := Float64("interval_sec", v); fe != nil {
			d.record(ctx, &r, fe)
		} else {
			t.IntervalSec = f
		}
	}
	if v, ok := payload["device_id"]; ok && v != nil {
		if s, fe := String("device_id", v); fe != nil {
			d.record(ctx, &r, fe)
		} else if s != "" {
			t.DeviceID = &s
		}
	}
	if v, ok := payload["parameters"]; ok && v != nil {
		if fe := Parameters(&t.Extensions, v); fe != nil {
			d.record(ctx, &r, fe)
		}
	}
	if v, ok := payload["contexts"]; ok && v != nil {
		if fe := Contexts(&t.Extensions, v); fe != nil {
			d.record(ctx, &r, fe)
		}
	}
	return t, r, nil
}
