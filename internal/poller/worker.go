// Package poller drives the periodic refresh of every known Roku device:
// device-info, active app, and media-player state are fetched over ECP and
// folded into the local store, the registry heartbeat, and broadcast events.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/metrics"
	"github.com/maaxton/roku-integration/internal/naming"
	"github.com/maaxton/roku-integration/internal/power"
	"github.com/maaxton/roku-integration/internal/store"
)

// Queries is the minimal DB interface the poll worker needs.
// *store.Queries satisfies this.
type Queries interface {
	ListRokuDevices(ctx context.Context) ([]store.RokuDevice, error)
	UpdateRokuDevice(ctx context.Context, arg store.UpdateRokuDeviceParams) (store.RokuDevice, error)
	GetRegistryRecord(ctx context.Context, deviceID string) (store.RegistryRecord, error)
	SetRegistryHeartbeat(ctx context.Context, deviceID string, online bool, consecutiveFailures int) error
	GetEntityState(ctx context.Context, entityID string) (store.EntityState, error)
	UpsertEntityState(ctx context.Context, entityID, state string, attributes map[string]any) error
}

// Publisher broadcasts bridge events. *events.Hub satisfies this.
type Publisher interface {
	Publish(events.Event)
}

// Device is the ECP surface a single poll needs. *ecp.Client satisfies this.
type Device interface {
	DeviceInfo(ctx context.Context) (ecp.DeviceInfo, error)
	ActiveApp(ctx context.Context) (*ecp.ActiveApp, error)
	MediaPlayer(ctx context.Context) (ecp.MediaPlayer, error)
}

// DialFunc opens an ECP session to a device address.
type DialFunc func(host string) (Device, error)

type Worker struct {
	log      zerolog.Logger
	q        Queries
	events   Publisher
	metrics  *metrics.Metrics
	dial     DialFunc
	interval time.Duration
	now      func() time.Time
}

type Options struct {
	Interval time.Duration
	Dial     DialFunc
	Now      func() time.Time
}

func New(log zerolog.Logger, q Queries, pub Publisher, opts Options, m *metrics.Metrics) *Worker {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	dial := opts.Dial
	if dial == nil {
		dial = func(host string) (Device, error) { return ecp.NewClient(host) }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Worker{
		log:      log,
		q:        q,
		events:   pub,
		metrics:  m,
		dial:     dial,
		interval: interval,
		now:      now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.q == nil {
		return
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := w.runOnce(ctx); err != nil {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.interval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

// runOnce polls every known device. A single device failing is logged and
// skipped; only a store-level failure fails the cycle.
func (w *Worker) runOnce(ctx context.Context) error {
	start := w.now()

	devices, err := w.q.ListRokuDevices(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("poll cycle failed to list devices")
		return err
	}
	if w.metrics != nil {
		w.metrics.SetDeviceCount(len(devices))
	}

	for _, d := range devices {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := w.PollDevice(ctx, d); err != nil {
			w.log.Warn().Err(err).Str("device_id", d.ID).Str("ip", d.IPAddress).Msg("device poll failed")
		}
	}

	if w.metrics != nil {
		w.metrics.ObservePollCycle(w.now().Sub(start))
	}
	return nil
}

// Result is the outcome of polling one device.
type Result struct {
	Device   store.RokuDevice
	EntityID string
	State    string
	Power    power.State
	Online   bool
}

// PollDevice refreshes a single device. Unreachable devices are a normal
// outcome: the device is marked offline and no error is returned.
func (w *Worker) PollDevice(ctx context.Context, d store.RokuDevice) (Result, error) {
	client, err := w.dial(d.IPAddress)
	if err != nil {
		return Result{}, err
	}

	info, err := client.DeviceInfo(ctx)
	if err != nil {
		if ecp.IsUnreachable(err) {
			if w.metrics != nil {
				w.metrics.IncECPRequest("unreachable")
			}
			return w.markOffline(ctx, d)
		}
		if w.metrics != nil {
			w.metrics.IncECPRequest("error")
		}
		return Result{}, err
	}
	if w.metrics != nil {
		w.metrics.IncECPRequest("ok")
	}

	app, err := client.ActiveApp(ctx)
	if err != nil {
		w.log.Debug().Err(err).Str("device_id", d.ID).Msg("active-app query failed")
		app = nil
	}

	var player *ecp.MediaPlayer
	if app != nil && app.Type != "screensaver" && !app.IsHome() {
		if mp, err := client.MediaPlayer(ctx); err == nil && !mp.Error {
			player = &mp
		}
	}

	pwr := power.Interpret(info.PowerMode, powerApp(app))
	state := entityStateFor(pwr, app, player)

	updated, err := w.refreshDevice(ctx, d, info)
	if err != nil {
		return Result{}, err
	}

	entityID := naming.EntityID(naming.Slug(updated.Name))
	if err := w.upsertEntity(ctx, updated, entityID, state, pwr, info, app, player); err != nil {
		return Result{}, err
	}

	if err := w.heartbeat(ctx, updated.ID, true); err != nil {
		w.log.Warn().Err(err).Str("device_id", updated.ID).Msg("registry heartbeat failed")
	}

	return Result{Device: updated, EntityID: entityID, State: state, Power: pwr, Online: true}, nil
}

// entityStateFor maps interpreted power plus foreground context onto the
// entity state vocabulary.
func entityStateFor(pwr power.State, app *ecp.ActiveApp, player *ecp.MediaPlayer) string {
	if app != nil && app.Type == "screensaver" {
		return "idle"
	}
	if pwr == power.Standby || pwr == power.Off {
		return "off"
	}
	if app == nil || app.IsHome() {
		return "idle"
	}
	if player != nil && player.State == "play" {
		return "playing"
	}
	return "on"
}

func powerApp(app *ecp.ActiveApp) *power.ActiveApp {
	if app == nil {
		return nil
	}
	return &power.ActiveApp{ID: app.ID, Name: app.Name, Type: app.Type}
}

func (w *Worker) refreshDevice(ctx context.Context, d store.RokuDevice, info ecp.DeviceInfo) (store.RokuDevice, error) {
	metadata := map[string]any{}
	for k, v := range d.Metadata {
		metadata[k] = v
	}
	metadata[store.MetaVendor] = info.VendorName
	metadata[store.MetaIsTV] = info.IsTV
	metadata[store.MetaIsStick] = info.IsStick
	if mac := deviceid.NormalizeMAC(info.MAC()); mac != "" {
		metadata[store.MetaMAC] = mac
	}

	name := info.Name()
	if name == "" {
		name = d.Name
	}
	serial := info.SerialNumber
	if serial == "" {
		serial = d.SerialNumber
	}

	return w.q.UpdateRokuDevice(ctx, store.UpdateRokuDeviceParams{
		ID:              d.ID,
		IPAddress:       d.IPAddress,
		Name:            name,
		Model:           info.ModelName,
		SerialNumber:    serial,
		SoftwareVersion: info.SoftwareVersion,
		PowerMode:       info.PowerMode,
		Status:          store.StatusOnline,
		Metadata:        metadata,
		LastSeenAt:      w.now(),
	})
}

func (w *Worker) upsertEntity(ctx context.Context, d store.RokuDevice, entityID, state string, pwr power.State, info ecp.DeviceInfo, app *ecp.ActiveApp, player *ecp.MediaPlayer) error {
	attrs := map[string]any{
		"device_id":     d.ID,
		"friendly_name": d.Name,
		"power_mode":    info.PowerMode,
		"power_state":   string(pwr),
		"screensaver":   app != nil && app.Type == "screensaver",
	}
	if app != nil {
		attrs["app_id"] = app.ID
		attrs["app_name"] = app.Name
		if app.Type != "" {
			attrs["app_type"] = app.Type
		}
	}
	if player != nil {
		attrs["media_state"] = player.State
		if player.Position != "" {
			attrs["media_position"] = player.Position
		}
		if player.Duration != "" {
			attrs["media_duration"] = player.Duration
		}
	}

	prev, err := w.q.GetEntityState(ctx, entityID)
	hadPrev := err == nil

	if err := w.q.UpsertEntityState(ctx, entityID, state, attrs); err != nil {
		return err
	}

	if !hadPrev || prev.State != state {
		w.publish(events.Event{
			Type:     events.TypeStateUpdated,
			DeviceID: d.ID,
			Payload: map[string]any{
				"entity_id":   entityID,
				"state":       state,
				"power_state": string(pwr),
			},
		})
	}
	return nil
}

// markOffline records a missed heartbeat and flips the device offline.
// Entity state is forced to "off" so stale playback state never lingers.
func (w *Worker) markOffline(ctx context.Context, d store.RokuDevice) (Result, error) {
	updated, err := w.q.UpdateRokuDevice(ctx, store.UpdateRokuDeviceParams{
		ID:              d.ID,
		IPAddress:       d.IPAddress,
		Name:            d.Name,
		Model:           d.Model,
		SerialNumber:    d.SerialNumber,
		SoftwareVersion: d.SoftwareVersion,
		PowerMode:       d.PowerMode,
		Status:          store.StatusOffline,
		Metadata:        d.Metadata,
		LastSeenAt:      d.LastSeenAt,
	})
	if err != nil {
		return Result{}, err
	}

	entityID := naming.EntityID(naming.Slug(updated.Name))
	prev, err := w.q.GetEntityState(ctx, entityID)
	hadPrev := err == nil
	if uerr := w.q.UpsertEntityState(ctx, entityID, "off", map[string]any{
		"device_id": updated.ID,
		"status":    store.StatusOffline,
	}); uerr != nil {
		w.log.Warn().Err(uerr).Str("device_id", updated.ID).Msg("offline entity update failed")
	} else if hadPrev && prev.State != "off" {
		w.publish(events.Event{
			Type:     events.TypeStateUpdated,
			DeviceID: updated.ID,
			Payload:  map[string]any{"entity_id": entityID, "state": "off"},
		})
	}

	if err := w.heartbeat(ctx, updated.ID, false); err != nil {
		w.log.Warn().Err(err).Str("device_id", updated.ID).Msg("registry heartbeat failed")
	}

	return Result{Device: updated, EntityID: entityID, State: "off", Power: power.Unknown, Online: false}, nil
}

// heartbeat updates the registry liveness counters and emits
// device-online/device-offline on transitions.
func (w *Worker) heartbeat(ctx context.Context, deviceID string, alive bool) error {
	reg, err := w.q.GetRegistryRecord(ctx, deviceID)
	known := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	failures := 0
	if !alive {
		failures = 1
		if known {
			failures = reg.ConsecutiveFailures + 1
		}
	}

	if err := w.q.SetRegistryHeartbeat(ctx, deviceID, alive, failures); err != nil {
		return err
	}

	if known && reg.Online != alive {
		evtType := events.TypeDeviceOnline
		if !alive {
			evtType = events.TypeDeviceOffline
		}
		w.publish(events.Event{Type: evtType, DeviceID: deviceID})
	}
	return nil
}

func (w *Worker) publish(evt events.Event) {
	if w.events != nil {
		w.events.Publish(evt)
	}
}
