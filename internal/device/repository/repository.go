package repository

import (
	"context"

	"mobiperf/backend/internal/device/domain"
	"mobiperf/backend/internal/filter"
)

// ListQuery selects a page of devices ordered by id. A nil OwnerID lists every
// device; otherwise only devices owned by *OwnerID are returned.
type ListQuery struct {
	OwnerID *string
	Cursor  string
	Limit   int
}

// Repository defines persistence for devices.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.DeviceInfo, error)
	// List returns one page and the cursor of the next page ("" when exhausted).
	List(ctx context.Context, q ListQuery) ([]*domain.DeviceInfo, string, error)
	Create(ctx context.Context, d *domain.DeviceInfo) error
	// UpdateOwner claims (or releases, with nil) a device.
	UpdateOwner(ctx context.Context, id string, ownerID *string) error
	// FindByFilter returns every device whose static attributes satisfy e, ordered by id.
	FindByFilter(ctx context.Context, e filter.Expr) ([]*domain.DeviceInfo, error)
}

// PropertiesRepository defines persistence for device property snapshots.
type PropertiesRepository interface {
	// Create stores p, assigning ID and, when zero, Timestamp.
	Create(ctx context.Context, p *domain.DeviceProperties) error
	// Latest returns the newest snapshot for deviceID, or nil if none exists.
	Latest(ctx context.Context, deviceID string) (*domain.DeviceProperties, error)
	Count(ctx context.Context, deviceID string) (int64, error)
	// DevicesMatching returns the distinct devices owning at least one snapshot
	// that satisfies e, ordered by id.
	DevicesMatching(ctx context.Context, e filter.Expr) ([]*domain.DeviceInfo, error)
}

// DeviceColumns exposes device fields to filter expressions.
var DeviceColumns = filter.Columns{
	"id":           {Name: "d.id", Kind: filter.KindText},
	"user":         {Name: "d.owner_id", Kind: filter.KindText},
	"manufacturer": {Name: "d.manufacturer", Kind: filter.KindText},
	"model":        {Name: "d.model", Kind: filter.KindText},
	"os":           {Name: "d.os", Kind: filter.KindText},
	"tac":          {Name: "d.tac", Kind: filter.KindText},
}

// PropertiesColumns exposes snapshot fields to filter expressions.
var PropertiesColumns = filter.Columns{
	"device_info":         {Name: "p.device_id", Kind: filter.KindText},
	"timestamp":           {Name: `p."timestamp"`, Kind: filter.KindTime},
	"app_version":         {Name: "p.app_version", Kind: filter.KindText},
	"os_version":          {Name: "p.os_version", Kind: filter.KindText},
	"location_type":       {Name: "p.location_type", Kind: filter.KindText},
	"network_type":        {Name: "p.network_type", Kind: filter.KindText},
	"country_code":        {Name: "p.country_code", Kind: filter.KindText},
	"carrier":             {Name: "p.carrier", Kind: filter.KindText},
	"battery_level":       {Name: "p.battery_level", Kind: filter.KindNumber},
	"is_battery_charging": {Name: "p.is_battery_charging", Kind: filter.KindBool},
	"cell_info":           {Name: "p.cell_info", Kind: filter.KindText},
	"cell_rssi":           {Name: "p.cell_rssi", Kind: filter.KindText},
	"rssi":                {Name: "p.rssi", Kind: filter.KindNumber},
	"ssid":                {Name: "p.ssid", Kind: filter.KindText},
	"bssid":               {Name: "p.bssid", Kind: filter.KindText},
	"wifi_ip_address":     {Name: "p.wifi_ip_address", Kind: filter.KindText},
	"mobilyzer_version":   {Name: "p.mobilyzer_version", Kind: filter.KindText},
	"host_apps":           {Name: "p.host_apps", Kind: filter.KindTextArray},
	"request_app":         {Name: "p.request_app", Kind: filter.KindText},
	"cpu_race":            {Name: "p.cpu_race", Kind: filter.KindNumber},
	"mem_race":            {Name: "p.mem_race", Kind: filter.KindNumber},
	"network_race":        {Name: "p.network_race", Kind: filter.KindNumber},
	"assigned":            {Name: "p.assigned", Kind: filter.KindBool},
	"done":                {Name: "p.done", Kind: filter.KindBool},
	"registration_id":     {Name: "p.registration_id", Kind: filter.KindText},
}
