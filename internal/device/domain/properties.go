package domain

import (
	"fmt"
	"time"
)

// DefaultStalenessWindow is how long a properties snapshot counts as current.
const DefaultStalenessWindow = 90 * time.Second

// Location is a latitude/longitude pair.
type Location struct {
	Latitude  float64
	Longitude float64
}

// DeviceProperties is one snapshot of a device's dynamic properties. The latest
// snapshot per device is the one with the greatest Timestamp.
type DeviceProperties struct {
	ID       string
	DeviceID string
	// Timestamp is set at write time when the device did not supply one.
	Timestamp time.Time

	AppVersion        string
	OSVersion         string
	Location          *Location
	LocationType      string
	NetworkType       string
	CountryCode       string
	Carrier           string
	BatteryLevel      *int64
	IsBatteryCharging *bool
	// CellInfo is "LAC,CID,RSSI;LAC,CID,RSSI;..." for every tower in range.
	CellInfo         string
	CellRSSI         string
	RSSI             *int64
	SSID             string
	BSSID            string
	WifiIPAddress    string
	MobilyzerVersion string
	HostApps         []string
	RequestApp       string

	CPURace     *float64
	MemRace     *float64
	NetworkRace *float64

	Assigned bool
	Done     bool

	// RegistrationID is the push registration token.
	RegistrationID string
}

// IsOld reports whether the snapshot is older than window at now.
func (p *DeviceProperties) IsOld(now time.Time, window time.Duration) bool {
	return now.Sub(p.Timestamp) > window
}

// FilterAttributes returns the fields task filters may reference, keyed by their
// filter-expression names. Unset optional fields map to nil.
func (p *DeviceProperties) FilterAttributes() map[string]any {
	attrs := map[string]any{
		"device_info":         p.DeviceID,
		"timestamp":           p.Timestamp,
		"app_version":         p.AppVersion,
		"os_version":          p.OSVersion,
		"location_type":       p.LocationType,
		"network_type":        p.NetworkType,
		"country_code":        p.CountryCode,
		"carrier":             p.Carrier,
		"cell_info":           p.CellInfo,
		"cell_rssi":           p.CellRSSI,
		"ssid":                p.SSID,
		"bssid":               p.BSSID,
		"wifi_ip_address":     p.WifiIPAddress,
		"mobilyzer_version":   p.MobilyzerVersion,
		"host_apps":           p.HostApps,
		"request_app":         p.RequestApp,
		"assigned":            p.Assigned,
		"done":                p.Done,
		"registration_id":     p.RegistrationID,
		"battery_level":       nil,
		"is_battery_charging": nil,
		"rssi":                nil,
		"cpu_race":            nil,
		"mem_race":            nil,
		"network_race":        nil,
	}
	if p.BatteryLevel != nil {
		attrs["battery_level"] = *p.BatteryLevel
	}
	if p.IsBatteryCharging != nil {
		attrs["is_battery_charging"] = *p.IsBatteryCharging
	}
	if p.RSSI != nil {
		attrs["rssi"] = *p.RSSI
	}
	if p.CPURace != nil {
		attrs["cpu_race"] = *p.CPURace
	}
	if p.MemRace != nil {
		attrs["mem_race"] = *p.MemRace
	}
	if p.NetworkRace != nil {
		attrs["network_race"] = *p.NetworkRace
	}
	return attrs
}

func (p *DeviceProperties) String() string {
	return fmt.Sprintf("DeviceProperties <device %s>", p.DeviceID)
}
