package reconcile

import (
	"sort"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/naming"
	"github.com/maaxton/roku-integration/internal/store"
)

// Snapshot carries the three (possibly inconsistent, possibly empty) views
// of the device population at one instant.
type Snapshot struct {
	Devices  []store.RokuDevice
	Registry []store.RegistryRecord
	Entities []store.EntityState
}

// DeviceView is one merged per-device row.
type DeviceView struct {
	ID         string
	Name       string
	IPAddress  string
	Serial     string
	Status     string
	Online     *bool
	PowerState string
	EntityID   string
	Sources    []string
}

// Merge folds a snapshot into one view per device. Pure: no I/O, no clock.
//
// Precedence: the local device row anchors identity fields; the registry
// contributes liveness (online, address fallback); the newest entity row
// contributes the interpreted power state. Registry ids are canonicalized
// before keying so roku:SERIAL and roku-SERIAL rows land on one view.
func Merge(snap Snapshot) []DeviceView {
	byID := make(map[string]*DeviceView)

	for _, d := range snap.Devices {
		id := deviceid.Canonicalize(d.ID)
		byID[id] = &DeviceView{
			ID:        id,
			Name:      d.Name,
			IPAddress: d.IPAddress,
			Serial:    d.SerialNumber,
			Status:    d.Status,
			Sources:   []string{"local"},
		}
	}

	for _, rec := range snap.Registry {
		id := deviceid.Canonicalize(rec.DeviceID)
		v, ok := byID[id]
		if !ok {
			serial := ""
			if parsed, err := deviceid.Parse(rec.DeviceID); err == nil {
				serial = parsed.Serial
			}
			v = &DeviceView{ID: id, Name: rec.Name, IPAddress: rec.Address, Serial: serial, Status: store.StatusUnknown}
			byID[id] = v
		}
		if v.IPAddress == "" {
			v.IPAddress = rec.Address
		}
		if v.Name == "" {
			v.Name = rec.Name
		}
		online := rec.Online
		v.Online = &online
		v.Sources = append(v.Sources, "registry")
	}

	for _, e := range snap.Entities {
		slug, ok := naming.SlugFromEntityID(e.EntityID)
		if !ok {
			continue
		}
		v := matchEntity(byID, e, slug)
		if v == nil {
			continue
		}
		v.EntityID = e.EntityID
		if ps, ok := e.Attributes["power_state"].(string); ok {
			v.PowerState = ps
		}
		v.Sources = append(v.Sources, "entity")
	}

	views := make([]DeviceView, 0, len(byID))
	for _, v := range byID {
		views = append(views, *v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

func matchEntity(byID map[string]*DeviceView, e store.EntityState, slug string) *DeviceView {
	if devID, ok := e.Attributes["device_id"].(string); ok {
		if v, ok := byID[deviceid.Canonicalize(devID)]; ok {
			return v
		}
	}
	for _, v := range byID {
		if naming.FuzzyMatch(slug, v.Name) {
			return v
		}
	}
	return nil
}
