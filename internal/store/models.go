package store

import "time"

// Device status values persisted in roku_devices.status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusUnknown = "unknown"
)

// Metadata keys with fixed meaning. The metadata map is otherwise open.
const (
	MetaMAC         = "mac_address"
	MetaVendor      = "vendor_name"
	MetaIsTV        = "is_tv"
	MetaIsStick     = "is_stick"
	MetaPreviousIP  = "previous_ip"
	MetaIPChangedAt = "ip_changed_at"
	MetaSerial      = "serial_number"
	MetaPowerMode   = "power_mode"
)

// RokuDevice is the locally owned device record.
type RokuDevice struct {
	ID              string
	IPAddress       string
	Name            string
	Model           string
	SerialNumber    string
	SoftwareVersion string
	PowerMode       string
	Status          string
	Metadata        map[string]any
	LastSeenAt      time.Time
	CreatedAt       time.Time
}

// MAC returns the normalized MAC from metadata, or "".
func (d RokuDevice) MAC() string {
	if d.Metadata == nil {
		return ""
	}
	mac, _ := d.Metadata[MetaMAC].(string)
	return mac
}

// RegistryRecord mirrors the canonical host registry view of a device.
type RegistryRecord struct {
	DeviceID            string
	Name                string
	DeviceType          string
	Address             string
	Online              bool
	ConsecutiveFailures int
	Capabilities        []string
	Metadata            map[string]any
	DiscoveredAt        time.Time
}

// EntityState is one per-device-per-signal state row.
type EntityState struct {
	EntityID   string
	State      string
	Attributes map[string]any
	UpdatedAt  time.Time
}
