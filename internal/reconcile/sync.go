package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/store"
)

// Sync normalizes every local device record into the canonical registry.
// Runs once during initialization, after Recover when that was needed.
//
// Idempotent: a second run with no intervening changes performs no writes.
// Legacy dashed ids (roku-SERIAL) found in either store are folded into the
// canonical colon form so the same physical device never holds two rows and
// every row is addressable under the id the rest of the bridge keys on.
func (r *Reconciler) Sync(ctx context.Context) error {
	devices, err := r.store.ListRokuDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	for _, d := range devices {
		if err := r.syncOne(ctx, d); err != nil {
			// One device's failure never aborts the rest of the set.
			r.log.Error().Err(err).Str("device_id", d.ID).Msg("registry sync failed for device")
		}
	}
	return nil
}

func (r *Reconciler) syncOne(ctx context.Context, d store.RokuDevice) error {
	id, err := r.identityOf(d)
	if err != nil {
		return err
	}
	canonical := id.String()

	d, err = r.foldLegacyDevice(ctx, d, canonical)
	if err != nil {
		return err
	}

	existing, haveExisting, err := r.lookupRegistry(ctx, canonical)
	if err != nil {
		return err
	}

	legacyMeta, hadLegacy, err := r.foldLegacy(ctx, id, canonical)
	if err != nil {
		return err
	}

	metadata := map[string]any{}
	if haveExisting {
		for k, v := range existing.Metadata {
			metadata[k] = v
		}
	}
	for k, v := range legacyMeta {
		if _, taken := metadata[k]; !taken {
			metadata[k] = v
		}
	}
	metadata[store.MetaSerial] = id.Serial
	metadata[store.MetaPowerMode] = d.PowerMode
	metadata["model"] = d.Model
	if vendor, ok := d.Metadata[store.MetaVendor]; ok {
		metadata[store.MetaVendor] = vendor
	}
	metadata["software_version"] = d.SoftwareVersion

	desired := store.UpsertRegistryRecordParams{
		DeviceID:     canonical,
		Name:         d.Name,
		DeviceType:   DeviceType,
		Address:      d.IPAddress,
		Capabilities: Capabilities(),
		Metadata:     metadata,
	}
	if haveExisting {
		desired.Online = existing.Online
		desired.ConsecutiveFailures = existing.ConsecutiveFailures
	}

	if haveExisting && !hadLegacy && registryUpToDate(existing, desired) {
		return nil
	}

	if _, err := r.store.UpsertRegistryRecord(ctx, desired); err != nil {
		return fmt.Errorf("upsert registry record %s: %w", canonical, err)
	}
	r.log.Debug().Str("device_id", canonical).Bool("folded_legacy", hadLegacy).Msg("registry record synchronized")
	return nil
}

// identityOf anchors a device's identity: stored serial first, serial
// derived from the id pattern otherwise.
func (r *Reconciler) identityOf(d store.RokuDevice) (deviceid.ID, error) {
	if d.SerialNumber != "" {
		return deviceid.FromSerial(d.SerialNumber)
	}
	id, err := deviceid.Parse(d.ID)
	if err != nil {
		return deviceid.ID{}, fmt.Errorf("device %s has no recoverable serial: %w", d.ID, err)
	}
	return id, nil
}

func (r *Reconciler) lookupRegistry(ctx context.Context, deviceID string) (store.RegistryRecord, bool, error) {
	rec, err := r.store.GetRegistryRecord(ctx, deviceID)
	if err != nil {
		if isNotFound(err) {
			return store.RegistryRecord{}, false, nil
		}
		return store.RegistryRecord{}, false, fmt.Errorf("get registry record %s: %w", deviceID, err)
	}
	return rec, true, nil
}

// foldLegacyDevice rewrites a dashed-form local row under the canonical id.
// The poll worker and the HTTP API both key lookups on the row id, so a row
// left under the legacy form would never receive heartbeats again.
func (r *Reconciler) foldLegacyDevice(ctx context.Context, d store.RokuDevice, canonical string) (store.RokuDevice, error) {
	if d.ID == canonical {
		return d, nil
	}

	moved, err := r.store.GetRokuDevice(ctx, canonical)
	switch {
	case err == nil:
		// Both forms made it into the table; the canonical row wins.
	case isNotFound(err):
		moved, err = r.store.CreateRokuDevice(ctx, store.CreateRokuDeviceParams{
			ID:              canonical,
			IPAddress:       d.IPAddress,
			Name:            d.Name,
			Model:           d.Model,
			SerialNumber:    d.SerialNumber,
			SoftwareVersion: d.SoftwareVersion,
			PowerMode:       d.PowerMode,
			Status:          d.Status,
			Metadata:        d.Metadata,
			LastSeenAt:      d.LastSeenAt,
		})
		if err != nil {
			return store.RokuDevice{}, fmt.Errorf("rewrite device row %s as %s: %w", d.ID, canonical, err)
		}
	default:
		return store.RokuDevice{}, fmt.Errorf("get device %s: %w", canonical, err)
	}

	if err := r.store.DeleteRokuDevice(ctx, d.ID); err != nil {
		return store.RokuDevice{}, fmt.Errorf("remove legacy device row %s: %w", d.ID, err)
	}
	r.log.Info().Str("legacy_id", d.ID).Str("device_id", canonical).Msg("migrated legacy device identifier")
	return moved, nil
}

// foldLegacy pulls metadata from a dashed-form registry row and removes it,
// so the canonical upsert leaves exactly one row per physical device.
func (r *Reconciler) foldLegacy(ctx context.Context, id deviceid.ID, canonical string) (map[string]any, bool, error) {
	legacyID := id.Legacy()
	if legacyID == canonical {
		return nil, false, nil
	}
	legacy, found, err := r.lookupRegistry(ctx, legacyID)
	if err != nil || !found {
		return nil, false, err
	}
	if err := r.store.DeleteRegistryRecord(ctx, legacyID); err != nil {
		return nil, false, fmt.Errorf("remove legacy registry record %s: %w", legacyID, err)
	}
	r.log.Info().Str("legacy_id", legacyID).Str("device_id", canonical).Msg("migrated legacy registry identifier")
	return legacy.Metadata, true, nil
}

func registryUpToDate(existing store.RegistryRecord, desired store.UpsertRegistryRecordParams) bool {
	return existing.Name == desired.Name &&
		existing.DeviceType == desired.DeviceType &&
		existing.Address == desired.Address &&
		existing.Online == desired.Online &&
		existing.ConsecutiveFailures == desired.ConsecutiveFailures &&
		slices.Equal(existing.Capabilities, desired.Capabilities) &&
		reflect.DeepEqual(existing.Metadata, desired.Metadata)
}
