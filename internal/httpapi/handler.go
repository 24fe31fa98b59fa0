package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/maaxton/roku-integration/internal/actions"
	"github.com/maaxton/roku-integration/internal/db"
	"github.com/maaxton/roku-integration/internal/deviceid"
	"github.com/maaxton/roku-integration/internal/discovery"
	"github.com/maaxton/roku-integration/internal/ecp"
	"github.com/maaxton/roku-integration/internal/events"
	"github.com/maaxton/roku-integration/internal/metrics"
	"github.com/maaxton/roku-integration/internal/naming"
	"github.com/maaxton/roku-integration/internal/poller"
	"github.com/maaxton/roku-integration/internal/reconcile"
	"github.com/maaxton/roku-integration/internal/store"
)

// Queries is the DB surface the route handlers need.
// *store.Queries satisfies this.
type Queries interface {
	ListRokuDevices(ctx context.Context) ([]store.RokuDevice, error)
	GetRokuDevice(ctx context.Context, id string) (store.RokuDevice, error)
	DeleteRokuDevice(ctx context.Context, id string) error
	GetRegistryRecord(ctx context.Context, deviceID string) (store.RegistryRecord, error)
	ListRegistryRecordsByType(ctx context.Context, deviceType string) ([]store.RegistryRecord, error)
	DeleteRegistryRecord(ctx context.Context, deviceID string) error
	ListEntityStates(ctx context.Context) ([]store.EntityState, error)
	DeleteEntityState(ctx context.Context, entityID string) error
	GetSettings(ctx context.Context) (map[string]any, error)
	SaveSettings(ctx context.Context, settings map[string]any) error
}

// ActionDispatcher runs named automation actions.
// *actions.Registry satisfies this.
type ActionDispatcher interface {
	Names() []string
	Dispatch(ctx context.Context, name string, params map[string]any, trig actions.Trigger) (map[string]any, error)
}

// CandidateHandler verifies and claims discovery candidates.
// *discovery.Intake satisfies this.
type CandidateHandler interface {
	HandleCandidate(ctx context.Context, c discovery.Candidate) (discovery.Result, error)
}

// DevicePoller forces an immediate refresh of one device.
// *poller.Worker satisfies this.
type DevicePoller interface {
	PollDevice(ctx context.Context, d store.RokuDevice) (poller.Result, error)
}

// DeviceConn is the per-device ECP surface the passthrough routes use.
// *ecp.Client satisfies this.
type DeviceConn interface {
	DeviceInfo(ctx context.Context) (ecp.DeviceInfo, error)
	Apps(ctx context.Context) ([]ecp.App, error)
	ActiveApp(ctx context.Context) (*ecp.ActiveApp, error)
	Keypress(ctx context.Context, key string) error
	Launch(ctx context.Context, appID, contentID string) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	IconURL(appID string) string
}

// DialFunc opens an ECP session to a device address.
type DialFunc func(host string) (DeviceConn, error)

type Handler struct {
	log     zerolog.Logger
	pool    *db.Pool
	queries Queries
	hub     *events.Hub
	intake  CandidateHandler
	poll    DevicePoller
	actions ActionDispatcher
	metrics *metrics.Metrics
	dial    DialFunc
}

type Options struct {
	Hub     *events.Hub
	Intake  CandidateHandler
	Poller  DevicePoller
	Actions ActionDispatcher
	Metrics *metrics.Metrics
	Dial    DialFunc
}

func NewHandler(log zerolog.Logger, pool *db.Pool, opts Options) *Handler {
	var q Queries
	if pool != nil {
		q = pool.Queries()
	}
	dial := opts.Dial
	if dial == nil {
		dial = func(host string) (DeviceConn, error) { return ecp.NewClient(host) }
	}
	return &Handler{
		log:     log,
		pool:    pool,
		queries: q,
		hub:     opts.Hub,
		intake:  opts.Intake,
		poll:    opts.Poller,
		actions: opts.Actions,
		metrics: opts.Metrics,
		dial:    dial,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", h.handleListDevices)
				r.Post("/", h.handleAddDevice)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetDevice)
					r.Delete("/", h.handleRemoveDevice)
					r.Post("/poll", h.handlePollDevice)
					r.Get("/info", h.handleDeviceInfo)
					r.Get("/apps", h.handleListApps)
					r.Get("/apps/active", h.handleActiveApp)
					r.Post("/apps/active", h.handleLaunchApp)
					r.Get("/access", h.handleAccessLevel)
					r.Post("/keypress", h.handleKeypress)
					r.Post("/launch", h.handleLaunchApp)
					r.Post("/power/on", h.handlePowerOn)
					r.Post("/power/off", h.handlePowerOff)
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", h.handleGetSettings)
				r.Put("/", h.handlePutSettings)
			})

			r.Route("/actions", func(r chi.Router) {
				r.Get("/", h.handleListActions)
				r.Post("/{name}", h.handleRunAction)
			})

			r.Post("/discovery/candidate", h.handleCandidate)

			if h.hub != nil {
				r.Get("/events/ws", h.hub.ServeWS)
			}
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")

		if h.metrics != nil {
			h.metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		}
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ok writes the success envelope: {"success": true, ...payload}.
func (h *Handler) ok(w http.ResponseWriter, payload map[string]any) {
	resp := map[string]any{"success": true}
	for k, v := range payload {
		resp[k] = v
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// fail writes the error envelope: {"success": false, "error": ..., "status": ...}
// with the HTTP status mirrored in the body.
func (h *Handler) fail(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
		"status":  status,
	})
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.fail(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	if err := h.pool.Ping(ctx); err != nil {
		h.fail(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureQueries(w http.ResponseWriter) bool {
	if h.queries == nil {
		h.fail(w, http.StatusServiceUnavailable, "database not configured")
		return false
	}
	return true
}

// device fetches the device row for the {id} URL param, accepting both the
// canonical and legacy id forms. Writes the 404 itself on miss.
func (h *Handler) device(w http.ResponseWriter, r *http.Request) (store.RokuDevice, bool) {
	id := deviceid.Canonicalize(chi.URLParam(r, "id"))
	d, err := h.queries.GetRokuDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.fail(w, http.StatusNotFound, "device not found")
		} else {
			h.log.Error().Err(err).Str("id", id).Msg("get device failed")
			h.fail(w, http.StatusInternalServerError, "failed to fetch device")
		}
		return store.RokuDevice{}, false
	}
	return d, true
}

// connect dials the device's ECP endpoint. Writes the failure itself.
func (h *Handler) connect(w http.ResponseWriter, d store.RokuDevice) (DeviceConn, bool) {
	client, err := h.dial(d.IPAddress)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("ecp dial failed")
		h.fail(w, http.StatusInternalServerError, "failed to reach device")
		return nil, false
	}
	return client, true
}

type deviceView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IPAddress  string `json:"ip_address"`
	Serial     string `json:"serial_number"`
	Status     string `json:"status"`
	Online     *bool  `json:"online,omitempty"`
	PowerState string `json:"power_state,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
}

func toDeviceView(v reconcile.DeviceView) deviceView {
	return deviceView{
		ID:         v.ID,
		Name:       v.Name,
		IPAddress:  v.IPAddress,
		Serial:     v.Serial,
		Status:     v.Status,
		Online:     v.Online,
		PowerState: v.PowerState,
		EntityID:   v.EntityID,
	}
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}

	devices, err := h.queries.ListRokuDevices(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list devices failed")
		h.fail(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	registry, err := h.queries.ListRegistryRecordsByType(r.Context(), reconcile.DeviceType)
	if err != nil {
		h.log.Error().Err(err).Msg("list registry failed")
		h.fail(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	entities, err := h.queries.ListEntityStates(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list entity states failed")
		h.fail(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	merged := reconcile.Merge(reconcile.Snapshot{
		Devices:  devices,
		Registry: registry,
		Entities: entities,
	})
	views := make([]deviceView, 0, len(merged))
	for _, v := range merged {
		views = append(views, toDeviceView(v))
	}
	h.ok(w, map[string]any{"devices": views})
}

type addDeviceRequest struct {
	IP  string `json:"ip"`
	MAC string `json:"mac,omitempty"`
}

func (h *Handler) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.IP == "" {
		h.fail(w, http.StatusBadRequest, "ip is required")
		return
	}
	if h.intake == nil {
		h.fail(w, http.StatusServiceUnavailable, "discovery not configured")
		return
	}

	res, err := h.intake.HandleCandidate(r.Context(), discovery.Candidate{IP: req.IP, MAC: req.MAC})
	if err != nil {
		h.log.Error().Err(err).Str("ip", req.IP).Msg("manual add failed")
		h.fail(w, http.StatusInternalServerError, "failed to add device")
		return
	}

	switch res.Decision {
	case discovery.DecisionClaimed:
		h.writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"device":  deviceBody(*res.Device),
		})
	case discovery.DecisionKnown:
		h.fail(w, http.StatusConflict, "device already exists")
	default:
		// Unreachable is an answer, not an error: the host probed the IP and
		// nothing spoke ECP there.
		h.ok(w, map[string]any{"claimed": false, "status": "offline"})
	}
}

func deviceBody(d store.RokuDevice) map[string]any {
	return map[string]any{
		"id":               d.ID,
		"name":             d.Name,
		"ip_address":       d.IPAddress,
		"model":            d.Model,
		"serial_number":    d.SerialNumber,
		"software_version": d.SoftwareVersion,
		"power_mode":       d.PowerMode,
		"status":           d.Status,
		"metadata":         d.Metadata,
		"last_seen_at":     d.LastSeenAt,
	}
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}

	body := map[string]any{"device": deviceBody(d)}
	if reg, err := h.queries.GetRegistryRecord(r.Context(), d.ID); err == nil {
		body["online"] = reg.Online
	}
	h.ok(w, body)
}

func (h *Handler) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}

	if err := h.queries.DeleteRokuDevice(r.Context(), d.ID); err != nil {
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("delete device failed")
		h.fail(w, http.StatusInternalServerError, "failed to remove device")
		return
	}
	if err := h.queries.DeleteRegistryRecord(r.Context(), d.ID); err != nil {
		h.log.Warn().Err(err).Str("device_id", d.ID).Msg("registry delete failed")
	}
	entityID := naming.EntityID(naming.Slug(d.Name))
	if err := h.queries.DeleteEntityState(r.Context(), entityID); err != nil {
		h.log.Warn().Err(err).Str("entity_id", entityID).Msg("entity state delete failed")
	}

	if h.hub != nil {
		h.hub.Publish(events.Event{Type: events.TypeDeviceRemoved, DeviceID: d.ID})
	}
	h.ok(w, map[string]any{"removed": d.ID})
}

func (h *Handler) handlePollDevice(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	if h.poll == nil {
		h.fail(w, http.StatusServiceUnavailable, "poller not configured")
		return
	}

	res, err := h.poll.PollDevice(r.Context(), d)
	if err != nil {
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("forced poll failed")
		h.fail(w, http.StatusInternalServerError, "poll failed")
		return
	}

	status := store.StatusOnline
	if !res.Online {
		status = store.StatusOffline
	}
	h.ok(w, map[string]any{
		"device_id":   res.Device.ID,
		"status":      status,
		"entity_id":   res.EntityID,
		"state":       res.State,
		"power_state": string(res.Power),
	})
}

func (h *Handler) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	info, err := client.DeviceInfo(r.Context())
	if err != nil {
		if ecp.IsUnreachable(err) {
			h.ok(w, map[string]any{"device_id": d.ID, "status": store.StatusOffline})
			return
		}
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("device-info query failed")
		h.fail(w, http.StatusBadGateway, "device returned an invalid response")
		return
	}

	h.ok(w, map[string]any{
		"device_id": d.ID,
		"status":    store.StatusOnline,
		"info": map[string]any{
			"serial_number":    info.SerialNumber,
			"vendor_name":      info.VendorName,
			"model_name":       info.ModelName,
			"model_number":     info.ModelNumber,
			"software_version": info.SoftwareVersion,
			"name":             info.Name(),
			"power_mode":       info.PowerMode,
			"is_tv":            info.IsTV,
			"is_stick":         info.IsStick,
			"mac_address":      deviceid.NormalizeMAC(info.MAC()),
			"network_type":     info.NetworkType,
		},
	})
}

func (h *Handler) handleListApps(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	apps, err := client.Apps(r.Context())
	if err != nil {
		if ecp.IsUnreachable(err) {
			h.ok(w, map[string]any{"device_id": d.ID, "status": store.StatusOffline, "apps": []any{}})
			return
		}
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("apps query failed")
		h.fail(w, http.StatusBadGateway, "device returned an invalid response")
		return
	}

	body := make([]map[string]any, 0, len(apps))
	for _, app := range apps {
		body = append(body, map[string]any{
			"id":      app.ID,
			"name":    app.Name,
			"type":    app.Type,
			"version": app.Version,
			"icon":    client.IconURL(app.ID),
		})
	}
	h.ok(w, map[string]any{"device_id": d.ID, "status": store.StatusOnline, "apps": body})
}

func (h *Handler) handleActiveApp(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	app, err := client.ActiveApp(r.Context())
	if err != nil {
		if ecp.IsUnreachable(err) {
			h.ok(w, map[string]any{"device_id": d.ID, "status": store.StatusOffline})
			return
		}
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("active-app query failed")
		h.fail(w, http.StatusBadGateway, "device returned an invalid response")
		return
	}

	body := map[string]any{"device_id": d.ID, "status": store.StatusOnline}
	if app != nil {
		body["app"] = map[string]any{
			"id":          app.ID,
			"name":        app.Name,
			"type":        app.Type,
			"screensaver": app.Type == "screensaver",
			"home":        app.IsHome(),
		}
	}
	h.ok(w, body)
}

type launchRequest struct {
	AppID     string `json:"app_id"`
	ContentID string `json:"content_id,omitempty"`
}

func (h *Handler) handleLaunchApp(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.AppID == "" {
		h.fail(w, http.StatusBadRequest, "app_id is required")
		return
	}
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	if err := client.Launch(r.Context(), req.AppID, req.ContentID); err != nil {
		h.writeControlFailure(w, d, err)
		return
	}
	h.ok(w, map[string]any{"device_id": d.ID, "app_id": req.AppID})
}

type keypressRequest struct {
	Key string `json:"key"`
}

func (h *Handler) handleKeypress(w http.ResponseWriter, r *http.Request) {
	var req keypressRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Key == "" {
		h.fail(w, http.StatusBadRequest, "key is required")
		return
	}
	if !ecp.ValidKey(req.Key) {
		h.fail(w, http.StatusBadRequest, "unknown key")
		return
	}
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	if err := client.Keypress(r.Context(), req.Key); err != nil {
		h.writeControlFailure(w, d, err)
		return
	}
	h.ok(w, map[string]any{"device_id": d.ID, "key": req.Key})
}

func (h *Handler) handlePowerOn(w http.ResponseWriter, r *http.Request) {
	h.handlePower(w, r, true)
}

func (h *Handler) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	h.handlePower(w, r, false)
}

func (h *Handler) handlePower(w http.ResponseWriter, r *http.Request, on bool) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	var err error
	if on {
		err = client.PowerOn(r.Context())
	} else {
		err = client.PowerOff(r.Context())
	}
	if err != nil {
		h.writeControlFailure(w, d, err)
		return
	}
	h.ok(w, map[string]any{"device_id": d.ID, "power": on})
}

// writeControlFailure maps control-path ECP failures onto the envelope.
// Neither an offline nor a restricted device is an API error.
func (h *Handler) writeControlFailure(w http.ResponseWriter, d store.RokuDevice, err error) {
	switch {
	case ecp.IsUnreachable(err):
		h.ok(w, map[string]any{"device_id": d.ID, "sent": false, "status": store.StatusOffline})
	case errors.Is(err, ecp.ErrRestricted):
		h.ok(w, map[string]any{"device_id": d.ID, "sent": false, "level": "limited"})
	default:
		h.log.Error().Err(err).Str("device_id", d.ID).Msg("ecp control request failed")
		h.fail(w, http.StatusBadGateway, "device returned an invalid response")
	}
}

// handleAccessLevel probes the device and reports how much remote control
// its owner allows: full, limited (403 on ECP), or disabled (unreachable).
func (h *Handler) handleAccessLevel(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	d, found := h.device(w, r)
	if !found {
		return
	}
	client, okConn := h.connect(w, d)
	if !okConn {
		return
	}

	level := "full"
	if _, err := client.Apps(r.Context()); err != nil {
		switch {
		case errors.Is(err, ecp.ErrRestricted):
			level = "limited"
		case ecp.IsUnreachable(err):
			level = "disabled"
		default:
			h.log.Error().Err(err).Str("device_id", d.ID).Msg("access probe failed")
			h.fail(w, http.StatusBadGateway, "device returned an invalid response")
			return
		}
	}
	h.ok(w, map[string]any{"device_id": d.ID, "level": level})
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if !h.ensureQueries(w) {
		return
	}
	settings, err := h.queries.GetSettings(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("get settings failed")
		h.fail(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	h.ok(w, map[string]any{"settings": settings})
}

func (h *Handler) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]any
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if settings == nil {
		h.fail(w, http.StatusBadRequest, "settings body is required")
		return
	}
	if !h.ensureQueries(w) {
		return
	}

	if err := h.queries.SaveSettings(r.Context(), settings); err != nil {
		h.log.Error().Err(err).Msg("save settings failed")
		h.fail(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	h.ok(w, map[string]any{"settings": settings})
}

func (h *Handler) handleCandidate(w http.ResponseWriter, r *http.Request) {
	var c discovery.Candidate
	if err := decodeJSONStrict(r, &c); err != nil {
		h.fail(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if c.IP == "" {
		h.fail(w, http.StatusBadRequest, "ip is required")
		return
	}
	if h.intake == nil {
		h.fail(w, http.StatusServiceUnavailable, "discovery not configured")
		return
	}

	res, err := h.intake.HandleCandidate(r.Context(), c)
	if err != nil {
		h.log.Error().Err(err).Str("ip", c.IP).Msg("candidate handling failed")
		h.fail(w, http.StatusInternalServerError, "failed to handle candidate")
		return
	}

	body := map[string]any{"decision": string(res.Decision)}
	if res.Device != nil {
		body["device_id"] = res.Device.ID
	}
	h.ok(w, body)
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	if h.actions == nil {
		h.fail(w, http.StatusServiceUnavailable, "actions not configured")
		return
	}
	h.ok(w, map[string]any{"actions": h.actions.Names()})
}

func (h *Handler) handleRunAction(w http.ResponseWriter, r *http.Request) {
	if h.actions == nil {
		h.fail(w, http.StatusServiceUnavailable, "actions not configured")
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, http.StatusBadRequest, "invalid json body")
		return
	}

	name := chi.URLParam(r, "name")
	result, err := h.actions.Dispatch(r.Context(), name, params, actions.Trigger{Source: "api"})
	if err != nil {
		switch {
		case errors.Is(err, actions.ErrUnknownAction):
			h.fail(w, http.StatusNotFound, "unknown action")
		case errors.Is(err, actions.ErrDeviceNotFound):
			h.fail(w, http.StatusNotFound, "device not found")
		default:
			h.fail(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	h.ok(w, map[string]any{"action": name, "result": result})
}
