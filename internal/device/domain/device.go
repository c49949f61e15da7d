package domain

import "fmt"

// DeviceInfo holds the static properties of a device. ID is the device-reported
// identifier and never changes once created.
type DeviceInfo struct {
	ID string
	// OwnerID is the user that claimed the device; nil for an unclaimed device.
	OwnerID      *string
	Manufacturer string
	Model        string
	OS           string
	// TAC is the type allocation code identifying the device model.
	TAC string
}

// IsUnclaimed reports whether no user owns the device.
func (d *DeviceInfo) IsUnclaimed() bool {
	return d.OwnerID == nil || *d.OwnerID == ""
}

// FilterAttributes returns the fields task filters may reference, keyed by their
// filter-expression names.
func (d *DeviceInfo) FilterAttributes() map[string]any {
	attrs := map[string]any{
		"id":           d.ID,
		"manufacturer": d.Manufacturer,
		"model":        d.Model,
		"os":           d.OS,
		"tac":          d.TAC,
	}
	if d.OwnerID != nil {
		attrs["user"] = *d.OwnerID
	} else {
		attrs["user"] = nil
	}
	return attrs
}

func (d *DeviceInfo) String() string {
	owner := "<unclaimed>"
	if d.OwnerID != nil {
		owner = *d.OwnerID
	}
	return fmt.Sprintf("DeviceInfo <id %s, user %s, device %s-%s-%s>", d.ID, owner, d.Manufacturer, d.Model, d.OS)
}
