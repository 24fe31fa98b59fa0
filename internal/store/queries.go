package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const rokuDeviceColumns = `id, ip_address, name, model, serial_number, software_version, power_mode, status, metadata, last_seen_at, created_at`

func scanRokuDevice(row pgx.Row) (RokuDevice, error) {
	var d RokuDevice
	err := row.Scan(&d.ID, &d.IPAddress, &d.Name, &d.Model, &d.SerialNumber, &d.SoftwareVersion, &d.PowerMode, &d.Status, &d.Metadata, &d.LastSeenAt, &d.CreatedAt)
	return d, err
}

const listRokuDevices = `-- name: ListRokuDevices :many
SELECT ` + rokuDeviceColumns + `
FROM roku_devices
ORDER BY id
`

func (q *Queries) ListRokuDevices(ctx context.Context) ([]RokuDevice, error) {
	rows, err := q.db.Query(ctx, listRokuDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RokuDevice
	for rows.Next() {
		d, err := scanRokuDevice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRokuDevice = `-- name: GetRokuDevice :one
SELECT ` + rokuDeviceColumns + `
FROM roku_devices
WHERE id = $1
`

func (q *Queries) GetRokuDevice(ctx context.Context, id string) (RokuDevice, error) {
	return scanRokuDevice(q.db.QueryRow(ctx, getRokuDevice, id))
}

const countRokuDevices = `-- name: CountRokuDevices :one
SELECT COUNT(*) FROM roku_devices
`

func (q *Queries) CountRokuDevices(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countRokuDevices).Scan(&n)
	return n, err
}

const createRokuDevice = `-- name: CreateRokuDevice :one
INSERT INTO roku_devices (
  id, ip_address, name, model, serial_number, software_version, power_mode, status, metadata, last_seen_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, '{}'::jsonb), $10)
RETURNING ` + rokuDeviceColumns + `
`

type CreateRokuDeviceParams struct {
	ID              string
	IPAddress       string
	Name            string
	Model           string
	SerialNumber    string
	SoftwareVersion string
	PowerMode       string
	Status          string
	Metadata        map[string]any
	LastSeenAt      time.Time
}

func (q *Queries) CreateRokuDevice(ctx context.Context, arg CreateRokuDeviceParams) (RokuDevice, error) {
	row := q.db.QueryRow(ctx, createRokuDevice,
		arg.ID, arg.IPAddress, arg.Name, arg.Model, arg.SerialNumber,
		arg.SoftwareVersion, arg.PowerMode, arg.Status, arg.Metadata, arg.LastSeenAt)
	return scanRokuDevice(row)
}

const updateRokuDevice = `-- name: UpdateRokuDevice :one
UPDATE roku_devices
SET ip_address       = $2,
    name             = $3,
    model            = $4,
    serial_number    = $5,
    software_version = $6,
    power_mode       = $7,
    status           = $8,
    metadata         = COALESCE($9, '{}'::jsonb),
    last_seen_at     = $10
WHERE id = $1
RETURNING ` + rokuDeviceColumns + `
`

type UpdateRokuDeviceParams struct {
	ID              string
	IPAddress       string
	Name            string
	Model           string
	SerialNumber    string
	SoftwareVersion string
	PowerMode       string
	Status          string
	Metadata        map[string]any
	LastSeenAt      time.Time
}

func (q *Queries) UpdateRokuDevice(ctx context.Context, arg UpdateRokuDeviceParams) (RokuDevice, error) {
	row := q.db.QueryRow(ctx, updateRokuDevice,
		arg.ID, arg.IPAddress, arg.Name, arg.Model, arg.SerialNumber,
		arg.SoftwareVersion, arg.PowerMode, arg.Status, arg.Metadata, arg.LastSeenAt)
	return scanRokuDevice(row)
}

const deleteRokuDevice = `-- name: DeleteRokuDevice :exec
DELETE FROM roku_devices WHERE id = $1
`

func (q *Queries) DeleteRokuDevice(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, deleteRokuDevice, id)
	return err
}

const registryColumns = `device_id, name, device_type, address, online, consecutive_failures, capabilities, metadata, discovered_at`

func scanRegistryRecord(row pgx.Row) (RegistryRecord, error) {
	var r RegistryRecord
	err := row.Scan(&r.DeviceID, &r.Name, &r.DeviceType, &r.Address, &r.Online, &r.ConsecutiveFailures, &r.Capabilities, &r.Metadata, &r.DiscoveredAt)
	return r, err
}

const getRegistryRecord = `-- name: GetRegistryRecord :one
SELECT ` + registryColumns + `
FROM device_registry
WHERE device_id = $1
`

func (q *Queries) GetRegistryRecord(ctx context.Context, deviceID string) (RegistryRecord, error) {
	return scanRegistryRecord(q.db.QueryRow(ctx, getRegistryRecord, deviceID))
}

const listRegistryRecordsByType = `-- name: ListRegistryRecordsByType :many
SELECT ` + registryColumns + `
FROM device_registry
WHERE device_type = $1
ORDER BY device_id
`

func (q *Queries) ListRegistryRecordsByType(ctx context.Context, deviceType string) ([]RegistryRecord, error) {
	rows, err := q.db.Query(ctx, listRegistryRecordsByType, deviceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RegistryRecord
	for rows.Next() {
		r, err := scanRegistryRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertRegistryRecord = `-- name: UpsertRegistryRecord :one
INSERT INTO device_registry (
  device_id, name, device_type, address, online, consecutive_failures, capabilities, metadata
)
VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, '{}'::jsonb))
ON CONFLICT (device_id) DO UPDATE
SET name                 = EXCLUDED.name,
    device_type          = EXCLUDED.device_type,
    address              = EXCLUDED.address,
    online               = EXCLUDED.online,
    consecutive_failures = EXCLUDED.consecutive_failures,
    capabilities         = EXCLUDED.capabilities,
    metadata             = EXCLUDED.metadata
RETURNING ` + registryColumns + `
`

type UpsertRegistryRecordParams struct {
	DeviceID            string
	Name                string
	DeviceType          string
	Address             string
	Online              bool
	ConsecutiveFailures int
	Capabilities        []string
	Metadata            map[string]any
}

func (q *Queries) UpsertRegistryRecord(ctx context.Context, arg UpsertRegistryRecordParams) (RegistryRecord, error) {
	row := q.db.QueryRow(ctx, upsertRegistryRecord,
		arg.DeviceID, arg.Name, arg.DeviceType, arg.Address, arg.Online,
		arg.ConsecutiveFailures, arg.Capabilities, arg.Metadata)
	return scanRegistryRecord(row)
}

const deleteRegistryRecord = `-- name: DeleteRegistryRecord :exec
DELETE FROM device_registry WHERE device_id = $1
`

func (q *Queries) DeleteRegistryRecord(ctx context.Context, deviceID string) error {
	_, err := q.db.Exec(ctx, deleteRegistryRecord, deviceID)
	return err
}

const setRegistryHeartbeat = `-- name: SetRegistryHeartbeat :exec
UPDATE device_registry
SET online               = $2,
    consecutive_failures = $3
WHERE device_id = $1
`

func (q *Queries) SetRegistryHeartbeat(ctx context.Context, deviceID string, online bool, consecutiveFailures int) error {
	_, err := q.db.Exec(ctx, setRegistryHeartbeat, deviceID, online, consecutiveFailures)
	return err
}

const listEntityStates = `-- name: ListEntityStates :many
SELECT entity_id, state, attributes, updated_at
FROM entity_states
ORDER BY entity_id
`

func (q *Queries) ListEntityStates(ctx context.Context) ([]EntityState, error) {
	rows, err := q.db.Query(ctx, listEntityStates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EntityState
	for rows.Next() {
		var s EntityState
		if err := rows.Scan(&s.EntityID, &s.State, &s.Attributes, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getEntityState = `-- name: GetEntityState :one
SELECT entity_id, state, attributes, updated_at
FROM entity_states
WHERE entity_id = $1
`

func (q *Queries) GetEntityState(ctx context.Context, entityID string) (EntityState, error) {
	var s EntityState
	err := q.db.QueryRow(ctx, getEntityState, entityID).Scan(&s.EntityID, &s.State, &s.Attributes, &s.UpdatedAt)
	return s, err
}

const upsertEntityState = `-- name: UpsertEntityState :exec
INSERT INTO entity_states (entity_id, state, attributes, updated_at)
VALUES ($1, $2, COALESCE($3, '{}'::jsonb), now())
ON CONFLICT (entity_id) DO UPDATE
SET state      = EXCLUDED.state,
    attributes = EXCLUDED.attributes,
    updated_at = now()
`

func (q *Queries) UpsertEntityState(ctx context.Context, entityID, state string, attributes map[string]any) error {
	_, err := q.db.Exec(ctx, upsertEntityState, entityID, state, attributes)
	return err
}

const deleteEntityState = `-- name: DeleteEntityState :exec
DELETE FROM entity_states WHERE entity_id = $1
`

func (q *Queries) DeleteEntityState(ctx context.Context, entityID string) error {
	_, err := q.db.Exec(ctx, deleteEntityState, entityID)
	return err
}

const getSettings = `-- name: GetSettings :one
SELECT settings FROM bridge_settings WHERE id = true
`

func (q *Queries) GetSettings(ctx context.Context) (map[string]any, error) {
	var settings map[string]any
	err := q.db.QueryRow(ctx, getSettings).Scan(&settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}

const saveSettings = `-- name: SaveSettings :exec
INSERT INTO bridge_settings (id, settings, updated_at)
VALUES (true, COALESCE($1, '{}'::jsonb), now())
ON CONFLICT (id) DO UPDATE
SET settings   = EXCLUDED.settings,
    updated_at = now()
`

func (q *Queries) SaveSettings(ctx context.Context, settings map[string]any) error {
	_, err := q.db.Exec(ctx, saveSettings, settings)
	return err
}
