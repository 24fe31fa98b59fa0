package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/reconcile"
	"github.com/maaxton/roku-integration/internal/store"
)

// fakeStore is a map-backed reconcile.Store.
type fakeStore struct {
	devices  map[string]store.RokuDevice
	registry map[string]store.RegistryRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices:  map[string]store.RokuDevice{},
		registry: map[string]store.RegistryRecord{},
	}
}

func (f *fakeStore) ListRokuDevices(context.Context) ([]store.RokuDevice, error) {
	out := make([]store.RokuDevice, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) GetRokuDevice(_ context.Context, id string) (store.RokuDevice, error) {
	d, ok := f.devices[id]
	if !ok {
		return store.RokuDevice{}, pgx.ErrNoRows
	}
	return d, nil
}

func (f *fakeStore) CountRokuDevices(context.Context) (int64, error) {
	return int64(len(f.devices)), nil
}

func (f *fakeStore) CreateRokuDevice(_ context.Context, arg store.CreateRokuDeviceParams) (store.RokuDevice, error) {
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
	}
	f.devices[d.ID] = d
	return d, nil
}

func (f *fakeStore) UpdateRokuDevice(_ context.Context, arg store.UpdateRokuDeviceParams) (store.RokuDevice, error) {
	d, ok := f.devices[arg.ID]
	if !ok {
		return store.RokuDevice{}, pgx.ErrNoRows
	}
	d.IPAddress = arg.IPAddress
	d.Name = arg.Name
	d.Status = arg.Status
	d.Metadata = arg.Metadata
	d.LastSeenAt = arg.LastSeenAt
	f.devices[d.ID] = d
	return d, nil
}

func (f *fakeStore) DeleteRokuDevice(_ context.Context, id string) error {
	delete(f.devices, id)
	return nil
}

func (f *fakeStore) GetRegistryRecord(_ context.Context, deviceID string) (store.RegistryRecord, error) {
	r, ok := f.registry[deviceID]
	if !ok {
		return store.RegistryRecord{}, pgx.ErrNoRows
	}
	return r, nil
}

func (f *fakeStore) ListRegistryRecordsByType(_ context.Context, deviceType string) ([]store.RegistryRecord, error) {
	var out []store.RegistryRecord
	for _, r := range f.registry {
		if r.DeviceType == deviceType {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertRegistryRecord(_ context.Context, arg store.UpsertRegistryRecordParams) (store.RegistryRecord, error) {
	r := store.RegistryRecord{
		DeviceID:            arg.DeviceID,
		Name:                arg.Name,
		DeviceType:          arg.DeviceType,
		Address:             arg.Address,
		Online:              arg.Online,
		ConsecutiveFailures: arg.ConsecutiveFailures,
		Capabilities:        arg.Capabilities,
		Metadata:            arg.Metadata,
	}
	f.registry[arg.DeviceID] = r
	return r, nil
}

func (f *fakeStore) DeleteRegistryRecord(_ context.Context, deviceID string) error {
	delete(f.registry, deviceID)
	return nil
}

func (f *fakeStore) ListEntityStates(context.Context) ([]store.EntityState, error) {
	return nil, nil
}

// fakeProbe answers DeviceInfo per host.
type fakeProbe struct {
	infos map[string]ecp.DeviceInfo
}

func (f *fakeProbe) DeviceInfo(_ context.Context, host string) (ecp.DeviceInfo, error) {
	info, ok := f.infos[host]
	if !ok {
		return ecp.DeviceInfo{}, &ecp.UnreachableError{Host: host}
	}
	return info, nil
}

type fakePublisher struct {
	events []events.Event
}

func (f *fakePublisher) Publish(evt events.Event) {
	f.events = append(f.events, evt)
}

func (f *fakePublisher) byType(t events.Type) []events.Event {
	var out []events.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func bedroomInfo() ecp.DeviceInfo {
	return ecp.DeviceInfo{
		SerialNumber:   "X900000TEST",
		VendorName:     "Roku",
		ModelName:      "Streaming Stick 4K",
		UserDeviceName: "Bedroom Roku",
		PowerMode:      "PowerOn",
		IsStick:        true,
		WifiMAC:        "d4:3a:2b:11:22:33",
	}
}

func newTestIntake(st *fakeStore, probe *fakeProbe, pub *fakePublisher) *Intake {
	rec := reconcile.New(zerolog.Nop(), st, pub, probe)
	in := New(zerolog.Nop(), st, rec, pub, probe, nil)
	in.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	return in
}

func TestHandleCandidateClaimsNewDevice(t *testing.T) {
	st := newFakeStore()
	probe := &fakeProbe{infos: map[string]ecp.DeviceInfo{"192.168.1.77": bedroomInfo()}}
	pub := &fakePublisher{}
	in := newTestIntake(st, probe, pub)

	res, err := in.HandleCandidate(context.Background(), Candidate{IP: "192.168.1.77"})
	require.NoError(t, err)

	assert.Equal(t, DecisionClaimed, res.Decision)
	require.NotNil(t, res.Device)
	assert.Equal(t, "roku:X900000TEST", res.Device.ID)
	assert.Equal(t, "Bedroom Roku", res.Device.Name)

	reg, ok := st.registry["roku:X900000TEST"]
	require.True(t, ok, "claim should upsert a registry record")
	assert.Equal(t, "roku", reg.DeviceType)
	assert.Equal(t, "192.168.1.77", reg.Address)
	assert.True(t, reg.Online)

	require.Len(t, pub.byType(events.TypeDeviceAdded), 1)
}

func TestHandleCandidateIgnoresUnreachable(t *testing.T) {
	st := newFakeStore()
	probe := &fakeProbe{infos: map[string]ecp.DeviceInfo{}}
	pub := &fakePublisher{}
	in := newTestIntake(st, probe, pub)

	res, err := in.HandleCandidate(context.Background(), Candidate{IP: "192.168.1.200"})
	require.NoError(t, err)

	assert.Equal(t, DecisionIgnored, res.Decision)
	assert.Nil(t, res.Device)
	assert.Empty(t, st.devices, "unreachable candidate must not be claimed")
	assert.Empty(t, pub.events)
}

func TestHandleCandidateMatchesKnownBySerial(t *testing.T) {
	st := newFakeStore()
	st.devices["roku:X900000TEST"] = store.RokuDevice{
		ID:           "roku:X900000TEST",
		IPAddress:    "192.168.1.77",
		Name:         "Bedroom Roku",
		SerialNumber: "X900000TEST",
		Metadata:     map[string]any{},
	}
	probe := &fakeProbe{infos: map[string]ecp.DeviceInfo{"192.168.1.77": bedroomInfo()}}
	pub := &fakePublisher{}
	in := newTestIntake(st, probe, pub)

	res, err := in.HandleCandidate(context.Background(), Candidate{IP: "192.168.1.77"})
	require.NoError(t, err)

	assert.Equal(t, DecisionKnown, res.Decision)
	require.NotNil(t, res.Device)
	assert.Equal(t, "roku:X900000TEST", res.Device.ID)
	assert.Len(t, st.devices, 1)
	assert.Empty(t, pub.byType(events.TypeDeviceAdded))
}

func TestHandleCandidateKnownDeviceNewIP(t *testing.T) {
	st := newFakeStore()
	st.devices["roku:X900000TEST"] = store.RokuDevice{
		ID:           "roku:X900000TEST",
		IPAddress:    "192.168.1.77",
		Name:         "Bedroom Roku",
		SerialNumber: "X900000TEST",
		Metadata:     map[string]any{},
	}
	probe := &fakeProbe{infos: map[string]ecp.DeviceInfo{"192.168.1.90": bedroomInfo()}}
	pub := &fakePublisher{}
	in := newTestIntake(st, probe, pub)

	res, err := in.HandleCandidate(context.Background(), Candidate{IP: "192.168.1.90"})
	require.NoError(t, err)

	assert.Equal(t, DecisionKnown, res.Decision)
	assert.Equal(t, "192.168.1.90", st.devices["roku:X900000TEST"].IPAddress)
	require.Len(t, pub.byType(events.TypeDeviceIPChanged), 1)
}

func TestHandleCandidateRejectsEmptyIP(t *testing.T) {
	in := newTestIntake(newFakeStore(), &fakeProbe{}, &fakePublisher{})
	_, err := in.HandleCandidate(context.Background(), Candidate{})
	require.Error(t, err)
}

func TestDefaultInterest(t *testing.T) {
	i := DefaultInterest()
	assert.Equal(t, "roku", i.DeviceType)
	assert.Equal(t, 8060, i.Port)
}
