package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/store"
)

func ultraInfo(serial string) ecp.DeviceInfo {
	return ecp.DeviceInfo{
		SerialNumber:    serial,
		VendorName:      "Roku",
		ModelName:       "Roku Ultra",
		SoftwareVersion: "12.5.0",
		UserDeviceName:  "Living Room Roku",
		PowerMode:       "PowerOn",
		WifiMAC:         "b0:a7:37:aa:bb:cc",
		NetworkType:     "wifi",
	}
}

func TestRecoverViaEntityDeviceID(t *testing.T) {
	st := newFakeStore()
	st.entities = []store.EntityState{
		{
			EntityID:   "media_player.living_room_roku",
			State:      "playing",
			Attributes: map[string]any{"device_id": "roku:X1"},
		},
	}
	st.registry["roku:X1"] = store.RegistryRecord{
		DeviceID:   "roku:X1",
		Name:       "Living Room Roku",
		DeviceType: DeviceType,
		Address:    "192.168.1.50:8060",
	}
	probe := &fakeProber{infos: map[string]ecp.DeviceInfo{"192.168.1.50": ultraInfo("X1")}}
	r := newTestReconciler(st, &fakePublisher{}, probe)

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, recovered, 1)

	d := recovered[0]
	assert.Equal(t, "roku:X1", d.ID)
	assert.Equal(t, "192.168.1.50", d.IPAddress)
	assert.Equal(t, "X1", d.SerialNumber, "serial must come from the live round-trip")
	assert.Equal(t, "Roku Ultra", d.Model)
	assert.Equal(t, store.StatusOnline, d.Status)
}

func TestRecoverViaFuzzyRegistryName(t *testing.T) {
	st := newFakeStore()
	// Entity rows carry no device_id; only the registry name links the slug.
	st.entities = []store.EntityState{
		{EntityID: "media_player.bedroom", State: "idle", Attributes: map[string]any{}},
	}
	st.registry["roku-Y7"] = store.RegistryRecord{
		DeviceID:   "roku-Y7",
		Name:       "Bedroom Roku Stick",
		DeviceType: DeviceType,
		Address:    "192.168.1.61",
	}
	probe := &fakeProber{infos: map[string]ecp.DeviceInfo{"192.168.1.61": ultraInfo("Y7")}}
	r := newTestReconciler(st, &fakePublisher{}, probe)

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	assert.Equal(t, "roku:Y7", recovered[0].ID, "recovered id is always canonical form")
}

func TestRecoverSkipsUnverifiableSlugs(t *testing.T) {
	st := newFakeStore()
	st.entities = []store.EntityState{
		// Recoverable IP that no longer answers.
		{EntityID: "media_player.dead_roku", Attributes: map[string]any{"device_id": "roku:GONE"}},
		// No IP recoverable at all.
		{EntityID: "media_player.mystery", Attributes: map[string]any{}},
		// Foreign namespace, ignored outright.
		{EntityID: "sensor.kitchen_temp", Attributes: map[string]any{}},
	}
	st.registry["roku:GONE"] = store.RegistryRecord{
		DeviceID:   "roku:GONE",
		DeviceType: DeviceType,
		Address:    "192.168.1.99",
	}
	probe := &fakeProber{infos: map[string]ecp.DeviceInfo{}}
	r := newTestReconciler(st, &fakePublisher{}, probe)

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recovered, "recovery must not fabricate records for unverified devices")
	assert.Equal(t, 0, st.deviceCreates)
	assert.Equal(t, []string{"192.168.1.99"}, probe.calls, "only the slug with a recoverable ip is probed")
}

func TestRecoverDeduplicatesSlugsPointingAtOneDevice(t *testing.T) {
	st := newFakeStore()
	st.entities = []store.EntityState{
		{EntityID: "media_player.living_room", Attributes: map[string]any{"device_id": "roku:X1"}},
		{EntityID: "media_player.living_room_roku", Attributes: map[string]any{"device_id": "roku:X1"}},
	}
	st.registry["roku:X1"] = store.RegistryRecord{
		DeviceID:   "roku:X1",
		Name:       "Living Room Roku",
		DeviceType: DeviceType,
		Address:    "192.168.1.50",
	}
	probe := &fakeProber{infos: map[string]ecp.DeviceInfo{"192.168.1.50": ultraInfo("X1")}}
	r := newTestReconciler(st, &fakePublisher{}, probe)

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Len(t, recovered, 1)
	assert.Equal(t, 1, st.deviceCreates)
}

func TestRecoverNothingToDo(t *testing.T) {
	st := newFakeStore()
	r := newTestReconciler(st, &fakePublisher{}, &fakeProber{})

	recovered, err := r.Recover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recovered)
}

func TestStripPort(t *testing.T) {
	cases := map[string]string{
		"192.168.1.50:8060": "192.168.1.50",
		"192.168.1.50":      "192.168.1.50",
		"[fe80::1]:8060":    "fe80::1",
		"fe80::1":           "fe80::1",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, stripPort(in), "stripPort(%q)", in)
	}
}
