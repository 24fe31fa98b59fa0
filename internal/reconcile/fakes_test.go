package reconcile

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/store"
)

// fakeStore is an in-memory Store with write counters so tests can assert
// idempotence (no writes on a no-op pass).
type fakeStore struct {
	mu       sync.Mutex
	devices  map[string]store.RokuDevice
	registry map[string]store.RegistryRecord
	entities []store.EntityState

	deviceCreates   int
	deviceUpdates   int
	deviceDeletes   int
	registryUpserts int
	registryDeletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices:  map[string]store.RokuDevice{},
		registry: map[string]store.RegistryRecord{},
	}
}

func (f *fakeStore) ListRokuDevices(context.Context) ([]store.RokuDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.devices))
	for id := range f.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]store.RokuDevice, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.devices[id])
	}
	return out, nil
}

func (f *fakeStore) GetRokuDevice(_ context.Context, id string) (store.RokuDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return store.RokuDevice{}, pgx.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) CountRokuDevices(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.devices)), nil
}

func (f *fakeStore) CreateRokuDevice(_ context.Context, arg store.CreateRokuDeviceParams) (store.RokuDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceCreates++
	d := store.RokuDevice{
		ID:              arg.ID,
		IPAddress:       arg.IPAddress,
		Name:            arg.Name,
		Model:           arg.Model,
		SerialNumber:    arg.SerialNumber,
		SoftwareVersion: arg.SoftwareVersion,
		PowerMode:       arg.PowerMode,
		Status:          arg.Status,
		Metadata:        arg.Metadata,
		LastSeenAt:      arg.LastSeenAt,
		CreatedAt:       arg.LastSeenAt,
	}
	f.devices[d.ID] = d
	return d, nil
}

func (f *fakeStore) UpdateRokuDevice(_ context.Context, arg store.UpdateRokuDeviceParams) (store.RokuDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[arg.ID]
	if !ok {
		return store.RokuDevice{}, pgx.ErrNoRows
	}
	f.deviceUpdates++
	d.IPAddress = arg.IPAddress
	d.Name = arg.Name
	d.Model = arg.Model
	d.SerialNumber = arg.SerialNumber
	d.SoftwareVersion = arg.SoftwareVersion
	d.PowerMode = arg.PowerMode
	d.Status = arg.Status
	d.Metadata = arg.Metadata
	d.LastSeenAt = arg.LastSeenAt
	f.devices[arg.ID] = d
	return d, nil
}

func (f *fakeStore) DeleteRokuDevice(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceDeletes++
	delete(f.devices, id)
	return nil
}

func (f *fakeStore) GetRegistryRecord(_ context.Context, deviceID string) (store.RegistryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.registry[deviceID]
	if !ok {
		return store.RegistryRecord{}, pgx.ErrNoRows
	}
	return rec, nil
}

func (f *fakeStore) ListRegistryRecordsByType(_ context.Context, deviceType string) ([]store.RegistryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.registry))
	for id := range f.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []store.RegistryRecord
	for _, id := range ids {
		if f.registry[id].DeviceType == deviceType {
			out = append(out, f.registry[id])
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRegistryRecord(_ context.Context, arg store.UpsertRegistryRecordParams) (store.RegistryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registryUpserts++
	rec, ok := f.registry[arg.DeviceID]
	if !ok {
		rec = store.RegistryRecord{DeviceID: arg.DeviceID, DiscoveredAt: time.Now()}
	}
	rec.Name = arg.Name
	rec.DeviceType = arg.DeviceType
	rec.Address = arg.Address
	rec.Online = arg.Online
	rec.ConsecutiveFailures = arg.ConsecutiveFailures
	rec.Capabilities = arg.Capabilities
	rec.Metadata = arg.Metadata
	f.registry[arg.DeviceID] = rec
	return rec, nil
}

func (f *fakeStore) DeleteRegistryRecord(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registryDeletes++
	delete(f.registry, deviceID)
	return nil
}

func (f *fakeStore) ListEntityStates(context.Context) ([]store.EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.EntityState(nil), f.entities...), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(evt events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *fakePublisher) byType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeProber answers DeviceInfo by host, or refuses with an unreachable
// error when the host is not listed.
type fakeProber struct {
	mu    sync.Mutex
	infos map[string]ecp.DeviceInfo
	calls []string
}

func (p *fakeProber) DeviceInfo(_ context.Context, host string) (ecp.DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, host)
	info, ok := p.infos[host]
	if !ok {
		return ecp.DeviceInfo{}, &ecp.UnreachableError{Host: host, Err: context.DeadlineExceeded}
	}
	return info, nil
}

func newTestReconciler(st *fakeStore, pub *fakePublisher, probe Prober) *Reconciler {
	r := New(zerolog.Nop(), st, pub, probe)
	r.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	return r
}
