// Package reconcile converges the three views of a Roku device — the local
// device table, the canonical registry, and historical entity-state rows —
// into one consistent picture. The stores may disagree at any instant; this
// package's job is convergence, not strict consistency.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/store"
)

// DeviceType is the registry type marker for bridge-owned devices.
const DeviceType = "roku"

// Capabilities is the fixed capability set every Roku registry record carries.
func Capabilities() []string {
	return []string{"power", "apps", "remote", "volume"}
}

// Store is the minimal query surface the reconciler needs. *store.Queries
// satisfies it; tests use in-memory fakes.
type Store interface {
	ListRokuDevices(ctx context.Context) ([]store.RokuDevice, error)
	GetRokuDevice(ctx context.Context, id string) (store.RokuDevice, error)
	CountRokuDevices(ctx context.Context) (int64, error)
	CreateRokuDevice(ctx context.Context, arg store.CreateRokuDeviceParams) (store.RokuDevice, error)
	UpdateRokuDevice(ctx context.Context, arg store.UpdateRokuDeviceParams) (store.RokuDevice, error)
	DeleteRokuDevice(ctx context.Context, id string) error
	GetRegistryRecord(ctx context.Context, deviceID string) (store.RegistryRecord, error)
	ListRegistryRecordsByType(ctx context.Context, deviceType string) ([]store.RegistryRecord, error)
	UpsertRegistryRecord(ctx context.Context, arg store.UpsertRegistryRecordParams) (store.RegistryRecord, error)
	DeleteRegistryRecord(ctx context.Context, deviceID string) error
	ListEntityStates(ctx context.Context) ([]store.EntityState, error)
}

// Publisher broadcasts bridge events. *events.Hub satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Prober performs the live ECP round-trip the Recovery Scanner uses to
// verify a device before trusting any historical data about it.
type Prober interface {
	DeviceInfo(ctx context.Context, host string) (ecp.DeviceInfo, error)
}

// ECPProber dials a fresh ECP client per probe.
type ECPProber struct{}

func (ECPProber) DeviceInfo(ctx context.Context, host string) (ecp.DeviceInfo, error) {
	client, err := ecp.NewClient(host)
	if err != nil {
		return ecp.DeviceInfo{}, err
	}
	return client.DeviceInfo(ctx)
}

// Reconciler owns identity resolution, startup recovery, and registry
// synchronization. It holds no background loops; callers drive it.
type Reconciler struct {
	log    zerolog.Logger
	store  Store
	events Publisher
	probe  Prober
	now    func() time.Time
}

func New(log zerolog.Logger, st Store, pub Publisher, probe Prober) *Reconciler {
	if probe == nil {
		probe = ECPProber{}
	}
	return &Reconciler{
		log:    log,
		store:  st,
		events: pub,
		probe:  probe,
		now:    time.Now,
	}
}

func (r *Reconciler) publish(evt events.Event) {
	if r.events != nil {
		r.events.Publish(evt)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// DeviceParamsFromInfo seeds a full device record from a verified ECP
// device-info response. Shared by recovery and discovery.
func DeviceParamsFromInfo(id deviceid.ID, ip string, info ecp.DeviceInfo, now time.Time) store.CreateRokuDeviceParams {
	metadata := map[string]any{
		store.MetaVendor:  info.VendorName,
		store.MetaIsTV:    info.IsTV,
		store.MetaIsStick: info.IsStick,
	}
	if mac := deviceid.NormalizeMAC(info.MAC()); mac != "" {
		metadata[store.MetaMAC] = mac
	}
	return store.CreateRokuDeviceParams{
		ID:              id.String(),
		IPAddress:       ip,
		Name:            info.Name(),
		Model:           info.ModelName,
		SerialNumber:    info.SerialNumber,
		SoftwareVersion: info.SoftwareVersion,
		PowerMode:       info.PowerMode,
		Status:          store.StatusOnline,
		Metadata:        metadata,
		LastSeenAt:      now,
	}
}
