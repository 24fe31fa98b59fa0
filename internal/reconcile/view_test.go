package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maaxton/roku-integration/internal/store"
)

func TestMergeEmptySnapshot(t *testing.T) {
	assert.Empty(t, Merge(Snapshot{}))
}

func TestMergeCanonicalizesRegistryIDs(t *testing.T) {
	views := Merge(Snapshot{
		Devices: []store.RokuDevice{
			{ID: "roku:X1", SerialNumber: "X1", IPAddress: "192.168.1.50", Name: "Living Room Roku", Status: store.StatusOnline},
		},
		Registry: []store.RegistryRecord{
			{DeviceID: "roku-X1", Name: "Living Room Roku", Online: true},
		},
	})

	require.Len(t, views, 1, "legacy dashed registry id folds into the local row")
	v := views[0]
	assert.Equal(t, "roku:X1", v.ID)
	require.NotNil(t, v.Online)
	assert.True(t, *v.Online)
	assert.ElementsMatch(t, []string{"local", "registry"}, v.Sources)
}

func TestMergeRegistryOnlyDevice(t *testing.T) {
	views := Merge(Snapshot{
		Registry: []store.RegistryRecord{
			{DeviceID: "roku:Z9", Name: "Hall Roku", Address: "192.168.1.80", Online: false},
		},
	})

	require.Len(t, views, 1)
	assert.Equal(t, "roku:Z9", views[0].ID)
	assert.Equal(t, "Z9", views[0].Serial)
	assert.Equal(t, "192.168.1.80", views[0].IPAddress)
	assert.Equal(t, store.StatusUnknown, views[0].Status)
}

func TestMergeAttachesEntityState(t *testing.T) {
	views := Merge(Snapshot{
		Devices: []store.RokuDevice{
			{ID: "roku:X1", Name: "Living Room Roku", IPAddress: "192.168.1.50"},
		},
		Entities: []store.EntityState{
			{
				EntityID:   "media_player.living_room_roku",
				State:      "playing",
				Attributes: map[string]any{"device_id": "roku:X1", "power_state": "on"},
			},
			{EntityID: "sensor.unrelated", State: "52"},
		},
	})

	require.Len(t, views, 1)
	assert.Equal(t, "media_player.living_room_roku", views[0].EntityID)
	assert.Equal(t, "on", views[0].PowerState)
}

func TestMergeEntityFallsBackToFuzzyName(t *testing.T) {
	views := Merge(Snapshot{
		Devices: []store.RokuDevice{
			{ID: "roku:X1", Name: "Bedroom Roku Stick", IPAddress: "192.168.1.61"},
		},
		Entities: []store.EntityState{
			{EntityID: "media_player.bedroom", State: "idle", Attributes: map[string]any{"power_state": "standby"}},
		},
	})

	require.Len(t, views, 1)
	assert.Equal(t, "media_player.bedroom", views[0].EntityID)
	assert.Equal(t, "standby", views[0].PowerState)
}

func TestMergeStableOrder(t *testing.T) {
	snap := Snapshot{
		Devices: []store.RokuDevice{
			{ID: "roku:B", Name: "B"},
			{ID: "roku:A", Name: "A"},
		},
	}
	views := Merge(snap)
	require.Len(t, views, 2)
	assert.Equal(t, "roku:A", views[0].ID)
	assert.Equal(t, "roku:B", views[1].ID)
}
