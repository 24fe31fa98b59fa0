package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/store"
)

// Resolve finds the known device record a network candidate refers to.
// Match tiers, in strict order, first match wins: serial number, normalized
// MAC, exact IP. A nil result with nil error means the candidate is a
// brand-new device.
//
// When the matched record's stored IP differs from the candidate's, the
// record is moved in place (previous_ip/ip_changed_at metadata, registry
// mirror, one device-ip-changed event). An unchanged IP only refreshes
// last_seen_at and status.
func (r *Reconciler) Resolve(ctx context.Context, serial, mac, ip string) (*store.RokuDevice, error) {
	devices, err := r.store.ListRokuDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	matched := matchCandidate(devices, serial, mac, ip)
	if matched == nil {
		return nil, nil
	}

	if countIPHolders(devices, ip) > 1 {
		// Stale DHCP duplicate. The match stands (accepted risk), but leave
		// a trail for whoever debugs the misattribution later.
		r.log.Warn().
			Str("ip", ip).
			Str("matched_device_id", matched.ID).
			Msg("multiple device records share candidate ip")
	}

	if matched.IPAddress == ip {
		return r.refreshSighting(ctx, *matched)
	}
	return r.moveDevice(ctx, *matched, ip)
}

func matchCandidate(devices []store.RokuDevice, serial, mac, ip string) *store.RokuDevice {
	if serial != "" {
		for i := range devices {
			if devices[i].SerialNumber == serial {
				return &devices[i]
			}
		}
	}
	if normMAC := deviceid.NormalizeMAC(mac); normMAC != "" {
		for i := range devices {
			if deviceid.NormalizeMAC(devices[i].MAC()) == normMAC {
				return &devices[i]
			}
		}
	}
	for i := range devices {
		if devices[i].IPAddress == ip {
			return &devices[i]
		}
	}
	return nil
}

func countIPHolders(devices []store.RokuDevice, ip string) int {
	n := 0
	for i := range devices {
		if devices[i].IPAddress == ip {
			n++
		}
	}
	return n
}

func (r *Reconciler) refreshSighting(ctx context.Context, d store.RokuDevice) (*store.RokuDevice, error) {
	d.Status = store.StatusOnline
	d.LastSeenAt = r.now()

	updated, err := r.store.UpdateRokuDevice(ctx, updateParams(d))
	if err != nil {
		return nil, fmt.Errorf("refresh device %s: %w", d.ID, err)
	}
	return &updated, nil
}

func (r *Reconciler) moveDevice(ctx context.Context, d store.RokuDevice, newIP string) (*store.RokuDevice, error) {
	oldIP := d.IPAddress
	now := r.now()

	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	d.Metadata[store.MetaPreviousIP] = oldIP
	d.Metadata[store.MetaIPChangedAt] = now.UTC().Format(time.RFC3339)
	d.IPAddress = newIP
	d.Status = store.StatusOnline
	d.LastSeenAt = now

	updated, err := r.store.UpdateRokuDevice(ctx, updateParams(d))
	if err != nil {
		return nil, fmt.Errorf("move device %s to %s: %w", d.ID, newIP, err)
	}

	if err := r.mirrorAddress(ctx, updated); err != nil {
		// Registry drift heals on the next sync pass.
		r.log.Warn().Err(err).Str("device_id", updated.ID).Msg("failed to mirror ip change to registry")
	}

	r.log.Info().
		Str("device_id", updated.ID).
		Str("old_ip", oldIP).
		Str("new_ip", newIP).
		Msg("device moved to new ip")

	r.publish(events.Event{
		Type:     events.TypeDeviceIPChanged,
		DeviceID: updated.ID,
		Payload:  map[string]any{"old_ip": oldIP, "new_ip": newIP},
	})

	return &updated, nil
}

func (r *Reconciler) mirrorAddress(ctx context.Context, d store.RokuDevice) error {
	canonical := deviceid.Canonicalize(d.ID)
	existing, err := r.store.GetRegistryRecord(ctx, canonical)
	if err != nil {
		if isNotFound(err) {
			// No registry row yet; startup sync or discovery will create it.
			return nil
		}
		return err
	}

	existing.Address = d.IPAddress
	_, err = r.store.UpsertRegistryRecord(ctx, store.UpsertRegistryRecordParams{
		DeviceID:            existing.DeviceID,
		Name:                existing.Name,
		DeviceType:          existing.DeviceType,
		Address:             existing.Address,
		Online:              existing.Online,
		ConsecutiveFailures: existing.ConsecutiveFailures,
		Capabilities:        existing.Capabilities,
		Metadata:            existing.Metadata,
	})
	return err
}

func updateParams(d store.RokuDevice) store.UpdateRokuDeviceParams {
	return store.UpdateRokuDeviceParams{
		ID:              d.ID,
		IPAddress:       d.IPAddress,
		Name:            d.Name,
		Model:           d.Model,
		SerialNumber:    d.SerialNumber,
		SoftwareVersion: d.SoftwareVersion,
		PowerMode:       d.PowerMode,
		Status:          d.Status,
		Metadata:        d.Metadata,
		LastSeenAt:      d.LastSeenAt,
	}
}
