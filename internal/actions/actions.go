// Package actions exposes the bridge's automation verbs: named handlers the
// host's rule engine invokes with loosely typed parameter maps.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/poller"
	"github.com/maaxton/roku-integration/internal/store"
)

// ErrUnknownAction is returned when dispatching a name nobody registered.
var ErrUnknownAction = errors.New("unknown action")

// ErrDeviceNotFound is returned when an action names a device the bridge
// does not track.
var ErrDeviceNotFound = errors.New("device not found")

// Trigger says what caused an action to run.
type Trigger struct {
	Source string `json:"source"`
	RuleID string `json:"rule_id,omitempty"`
}

// HandlerFunc is one automation verb.
type HandlerFunc func(ctx context.Context, params map[string]any, trig Trigger) (map[string]any, error)

// Registry maps action names to handlers.
type Registry struct {
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

func (r *Registry) Register(name string, fn HandlerFunc) {
	r.handlers[name] = fn
}

// Names lists registered actions, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the named action.
func (r *Registry) Dispatch(ctx context.Context, name string, params map[string]any, trig Trigger) (map[string]any, error) {
	fn, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return fn(ctx, params, trig)
}

// Queries is the DB surface the action handlers need.
// *store.Queries satisfies this.
type Queries interface {
	GetRokuDevice(ctx context.Context, id string) (store.RokuDevice, error)
}

// DevicePoller forces an immediate refresh of one device.
// *poller.Worker satisfies this.
type DevicePoller interface {
	PollDevice(ctx context.Context, d store.RokuDevice) (poller.Result, error)
}

// Device is the ECP control surface an action needs. *ecp.Client satisfies it.
type Device interface {
	Keypress(ctx context.Context, key string) error
	Launch(ctx context.Context, appID, contentID string) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
}

// DialFunc opens an ECP session to a device address.
type DialFunc func(host string) (Device, error)

// Actions binds the bridge's verbs to its store and ECP transport.
type Actions struct {
	log  zerolog.Logger
	q    Queries
	poll DevicePoller
	dial DialFunc
}

func New(log zerolog.Logger, q Queries, poll DevicePoller, dial DialFunc) *Actions {
	if dial == nil {
		dial = func(host string) (Device, error) { return ecp.NewClient(host) }
	}
	return &Actions{log: log, q: q, poll: poll, dial: dial}
}

// RegisterAll installs every bridge action into the registry.
func (a *Actions) RegisterAll(r *Registry) {
	r.Register("roku.keypress", a.Keypress)
	r.Register("roku.launch_app", a.LaunchApp)
	r.Register("roku.power_on", a.PowerOn)
	r.Register("roku.power_off", a.PowerOff)
	r.Register("roku.poll_now", a.PollNow)
}

func (a *Actions) Keypress(ctx context.Context, params map[string]any, _ Trigger) (map[string]any, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	if !ecp.ValidKey(key) {
		return nil, fmt.Errorf("invalid key %q", key)
	}

	d, client, err := a.device(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := client.Keypress(ctx, key); err != nil {
		return a.controlFailure(d, err)
	}
	return map[string]any{"ok": true, "device_id": d.ID, "key": key}, nil
}

func (a *Actions) LaunchApp(ctx context.Context, params map[string]any, _ Trigger) (map[string]any, error) {
	appID, err := stringParam(params, "app_id")
	if err != nil {
		return nil, err
	}
	contentID, _ := stringParam(params, "content_id")

	d, client, err := a.device(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := client.Launch(ctx, appID, contentID); err != nil {
		return a.controlFailure(d, err)
	}
	return map[string]any{"ok": true, "device_id": d.ID, "app_id": appID}, nil
}

func (a *Actions) PowerOn(ctx context.Context, params map[string]any, _ Trigger) (map[string]any, error) {
	return a.power(ctx, params, true)
}

func (a *Actions) PowerOff(ctx context.Context, params map[string]any, _ Trigger) (map[string]any, error) {
	return a.power(ctx, params, false)
}

func (a *Actions) power(ctx context.Context, params map[string]any, on bool) (map[string]any, error) {
	d, client, err := a.device(ctx, params)
	if err != nil {
		return nil, err
	}
	if on {
		err = client.PowerOn(ctx)
	} else {
		err = client.PowerOff(ctx)
	}
	if err != nil {
		return a.controlFailure(d, err)
	}
	return map[string]any{"ok": true, "device_id": d.ID, "power": on}, nil
}

// PollNow forces an immediate poll of one device and returns its fresh state.
func (a *Actions) PollNow(ctx context.Context, params map[string]any, _ Trigger) (map[string]any, error) {
	d, err := a.lookup(ctx, params)
	if err != nil {
		return nil, err
	}
	res, err := a.poll.PollDevice(ctx, d)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":          true,
		"device_id":   res.Device.ID,
		"online":      res.Online,
		"entity_id":   res.EntityID,
		"state":       res.State,
		"power_state": string(res.Power),
	}, nil
}

func (a *Actions) lookup(ctx context.Context, params map[string]any) (store.RokuDevice, error) {
	raw, err := stringParam(params, "device_id")
	if err != nil {
		return store.RokuDevice{}, err
	}
	d, err := a.q.GetRokuDevice(ctx, deviceid.Canonicalize(raw))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.RokuDevice{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, raw)
		}
		return store.RokuDevice{}, err
	}
	return d, nil
}

func (a *Actions) device(ctx context.Context, params map[string]any) (store.RokuDevice, Device, error) {
	d, err := a.lookup(ctx, params)
	if err != nil {
		return store.RokuDevice{}, nil, err
	}
	client, err := a.dial(d.IPAddress)
	if err != nil {
		return store.RokuDevice{}, nil, err
	}
	return d, client, nil
}

// controlFailure turns transport-level failures into non-fatal results so a
// rule firing against a sleeping device does not abort the whole rule run.
func (a *Actions) controlFailure(d store.RokuDevice, err error) (map[string]any, error) {
	switch {
	case ecp.IsUnreachable(err):
		a.log.Warn().Str("device_id", d.ID).Err(err).Msg("device unreachable during action")
		return map[string]any{"ok": false, "device_id": d.ID, "reason": "unreachable"}, nil
	case errors.Is(err, ecp.ErrRestricted):
		a.log.Warn().Str("device_id", d.ID).Msg("device rejected remote control")
		return map[string]any{"ok": false, "device_id": d.ID, "reason": "restricted"}, nil
	default:
		return nil, err
	}
}

// stringParam accepts strings and JSON numbers (app ids arrive as either).
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", fmt.Errorf("missing parameter %q", key)
		}
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
}
