// Package discovery handles network discovery candidates: hosts the home
// automation host (or an operator adding a device by IP) suspects of being
// Rokus. Every candidate is verified over ECP before anything is persisted.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/metrics"
	"github.com/maaxton/roku-integration/internal/reconcile"
	"github.com/maaxton/roku-integration/internal/store"
)

// Interest describes what candidates the bridge wants offered to it.
type Interest struct {
	DeviceType string `json:"device_type"`
	Port       int    `json:"port"`
}

// DefaultInterest is the bridge's standing discovery subscription.
func DefaultInterest() Interest {
	return Interest{DeviceType: reconcile.DeviceType, Port: ecp.DefaultPort}
}

// Candidate is one discovered host offered to the bridge.
type Candidate struct {
	IP  string `json:"ip"`
	MAC string `json:"mac,omitempty"`
}

// Decision is the claim outcome reported back to the offerer.
type Decision string

const (
	// DecisionClaimed means the candidate was a new Roku and is now tracked.
	DecisionClaimed Decision = "claimed"
	// DecisionKnown means the candidate matched a device already tracked.
	DecisionKnown Decision = "known"
	// DecisionIgnored means the candidate did not answer ECP and was left alone.
	DecisionIgnored Decision = "ignored"
)

// Result reports what became of a candidate.
type Result struct {
	Decision Decision
	Device   *store.RokuDevice
}

// Prober is the ECP round-trip used to verify a candidate.
// reconcile.ECPProber satisfies it.
type Prober interface {
	DeviceInfo(ctx context.Context, host string) (ecp.DeviceInfo, error)
}

// Publisher broadcasts bridge events. *events.Hub satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Intake verifies and claims discovery candidates.
type Intake struct {
	log     zerolog.Logger
	store   reconcile.Store
	rec     *reconcile.Reconciler
	events  Publisher
	probe   Prober
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(log zerolog.Logger, st reconcile.Store, rec *reconcile.Reconciler, pub Publisher, probe Prober, m *metrics.Metrics) *Intake {
	if probe == nil {
		probe = reconcile.ECPProber{}
	}
	return &Intake{
		log:     log,
		store:   st,
		rec:     rec,
		events:  pub,
		probe:   probe,
		metrics: m,
		now:     time.Now,
	}
}

// HandleCandidate verifies a candidate over ECP, resolves it against known
// devices, and either refreshes the match or claims it as a new device.
// Candidates that do not answer ECP are ignored, never claimed.
func (in *Intake) HandleCandidate(ctx context.Context, c Candidate) (Result, error) {
	ip := strings.TrimSpace(c.IP)
	if ip == "" {
		in.count("error")
		return Result{}, fmt.Errorf("candidate has no ip")
	}

	info, err := in.probe.DeviceInfo(ctx, ip)
	if err != nil {
		if ecp.IsUnreachable(err) {
			in.log.Debug().Str("ip", ip).Msg("candidate did not answer ecp, ignoring")
			in.count("unreachable")
			return Result{Decision: DecisionIgnored}, nil
		}
		in.count("error")
		return Result{}, fmt.Errorf("verify candidate %s: %w", ip, err)
	}

	mac := deviceid.NormalizeMAC(c.MAC)
	if mac == "" {
		mac = deviceid.NormalizeMAC(info.MAC())
	}

	matched, err := in.rec.Resolve(ctx, info.SerialNumber, mac, ip)
	if err != nil {
		in.count("error")
		return Result{}, err
	}
	if matched != nil {
		in.count("known")
		return Result{Decision: DecisionKnown, Device: matched}, nil
	}

	created, err := in.claim(ctx, ip, info)
	if err != nil {
		in.count("error")
		return Result{}, err
	}
	in.count("claimed")
	return Result{Decision: DecisionClaimed, Device: created}, nil
}

func (in *Intake) claim(ctx context.Context, ip string, info ecp.DeviceInfo) (*store.RokuDevice, error) {
	id, err := deviceid.FromSerial(info.SerialNumber)
	if err != nil {
		return nil, fmt.Errorf("device at %s: %w", ip, err)
	}

	created, err := in.store.CreateRokuDevice(ctx, reconcile.DeviceParamsFromInfo(id, ip, info, in.now()))
	if err != nil {
		return nil, fmt.Errorf("create device %s: %w", id, err)
	}

	if _, err := in.store.UpsertRegistryRecord(ctx, store.UpsertRegistryRecordParams{
		DeviceID:     created.ID,
		Name:         created.Name,
		DeviceType:   reconcile.DeviceType,
		Address:      created.IPAddress,
		Online:       true,
		Capabilities: reconcile.Capabilities(),
		Metadata: map[string]any{
			store.MetaSerial: created.SerialNumber,
		},
	}); err != nil {
		in.log.Warn().Err(err).Str("device_id", created.ID).Msg("registry upsert failed for new device")
	}

	in.log.Info().
		Str("device_id", created.ID).
		Str("ip", created.IPAddress).
		Str("name", created.Name).
		Msg("claimed discovered device")

	if in.events != nil {
		in.events.Publish(events.Event{
			Type:     events.TypeDeviceAdded,
			DeviceID: created.ID,
			Payload: map[string]any{
				"ip":   created.IPAddress,
				"name": created.Name,
			},
		})
	}
	return &created, nil
}

func (in *Intake) count(result string) {
	if in.metrics != nil {
		in.metrics.IncCandidate(result)
	}
}
