package reconcile

import (
	"context"
	"fmt"
	"net"
	"sort"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/naming"
	"github.com/maaxton/roku-integration/internal/store"
)

// Recover rebuilds the local device table from historical entity-state rows
// after the table has been wiped. Callers invoke it only when the table is
// observed empty at startup.
//
// A record is only ever created from a live, verified ECP round-trip:
// serial, model, and firmware always come from the device itself, never
// from stale rows. Slugs whose IP cannot be recovered, or whose recovered
// IP does not answer, are skipped — they need fresh discovery.
func (r *Reconciler) Recover(ctx context.Context) ([]store.RokuDevice, error) {
	entities, err := r.store.ListEntityStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entity states: %w", err)
	}

	slugs := inferSlugs(entities)
	if len(slugs) == 0 {
		return nil, nil
	}

	registry, err := r.store.ListRegistryRecordsByType(ctx, DeviceType)
	if err != nil {
		return nil, fmt.Errorf("list registry records: %w", err)
	}

	r.log.Info().Int("slugs", len(slugs)).Msg("device table empty, attempting recovery from entity history")

	var recovered []store.RokuDevice
	seen := make(map[string]struct{})
	for _, slug := range slugs {
		ip := r.recoverIP(ctx, slug, entities, registry)
		if ip == "" {
			r.log.Debug().Str("slug", slug).Msg("no ip recoverable for slug, needs fresh discovery")
			continue
		}

		info, err := r.probe.DeviceInfo(ctx, ip)
		if err != nil {
			r.log.Warn().Err(err).Str("slug", slug).Str("ip", ip).Msg("recovered ip did not verify, skipping")
			continue
		}

		id, err := deviceid.FromSerial(info.SerialNumber)
		if err != nil {
			r.log.Warn().Str("slug", slug).Str("ip", ip).Msg("device answered without a serial number, skipping")
			continue
		}
		if _, dup := seen[id.String()]; dup {
			// Two historical slugs pointed at the same physical device.
			continue
		}
		seen[id.String()] = struct{}{}

		created, err := r.store.CreateRokuDevice(ctx, DeviceParamsFromInfo(id, ip, info, r.now()))
		if err != nil {
			r.log.Error().Err(err).Str("device_id", id.String()).Msg("failed to persist recovered device")
			continue
		}

		r.log.Info().Str("device_id", created.ID).Str("ip", ip).Str("slug", slug).Msg("recovered device record")
		recovered = append(recovered, created)
	}

	return recovered, nil
}

// inferSlugs extracts the unique device slugs from entity ids in the
// media_player namespace, in stable order.
func inferSlugs(entities []store.EntityState) []string {
	set := make(map[string]struct{})
	for _, e := range entities {
		if slug, ok := naming.SlugFromEntityID(e.EntityID); ok {
			set[slug] = struct{}{}
		}
	}
	slugs := make([]string, 0, len(set))
	for s := range set {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}

// recoverIP tries, in order: the device id recorded in the slug's own
// entity attributes resolved through the registry, then a fuzzy name match
// over all Roku-typed registry records.
func (r *Reconciler) recoverIP(ctx context.Context, slug string, entities []store.EntityState, registry []store.RegistryRecord) string {
	if devID := entityDeviceID(entities, slug); devID != "" {
		rec, err := r.store.GetRegistryRecord(ctx, deviceid.Canonicalize(devID))
		if err == nil && rec.Address != "" {
			return stripPort(rec.Address)
		}
		if err != nil && !isNotFound(err) {
			r.log.Warn().Err(err).Str("device_id", devID).Msg("registry lookup failed during recovery")
		}
	}

	for _, rec := range registry {
		if naming.FuzzyMatch(slug, rec.Name) && rec.Address != "" {
			return stripPort(rec.Address)
		}
	}
	return ""
}

// entityDeviceID digs the associated device id out of the slug's newest
// entity attributes, when the poll adapter recorded one.
func entityDeviceID(entities []store.EntityState, slug string) string {
	wanted := naming.EntityID(slug)
	for _, e := range entities {
		if e.EntityID != wanted || e.Attributes == nil {
			continue
		}
		if id, ok := e.Attributes["device_id"].(string); ok {
			return id
		}
	}
	return ""
}

func stripPort(address string) string {
	if host, _, err := net.SplitHostPort(address); err == nil && host != "" {
		return host
	}
	return address
}
