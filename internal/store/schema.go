package store

import "context"

// Schema bootstrap runs at startup. The bridge owns these tables outright,
// so in-source DDL with IF NOT EXISTS is sufficient; there is no migration
// history to replay.
const schema = `
CREATE TABLE IF NOT EXISTS roku_devices (
  id               text PRIMARY KEY,
  ip_address       text NOT NULL,
  name             text NOT NULL DEFAULT '',
  model            text NOT NULL DEFAULT '',
  serial_number    text NOT NULL DEFAULT '',
  software_version text NOT NULL DEFAULT '',
  power_mode       text NOT NULL DEFAULT '',
  status           text NOT NULL DEFAULT 'unknown',
  metadata         jsonb NOT NULL DEFAULT '{}'::jsonb,
  last_seen_at     timestamptz NOT NULL DEFAULT now(),
  created_at       timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS device_registry (
  device_id            text PRIMARY KEY,
  name                 text NOT NULL DEFAULT '',
  device_type          text NOT NULL DEFAULT '',
  address              text NOT NULL DEFAULT '',
  online               boolean NOT NULL DEFAULT false,
  consecutive_failures integer NOT NULL DEFAULT 0,
  capabilities         text[] NOT NULL DEFAULT '{}',
  metadata             jsonb NOT NULL DEFAULT '{}'::jsonb,
  discovered_at        timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity_states (
  entity_id  text PRIMARY KEY,
  state      text NOT NULL DEFAULT '',
  attributes jsonb NOT NULL DEFAULT '{}'::jsonb,
  updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bridge_settings (
  id         boolean PRIMARY KEY DEFAULT true CHECK (id),
  settings   jsonb NOT NULL DEFAULT '{}'::jsonb,
  updated_at timestamptz NOT NULL DEFAULT now()
);
`

// Bootstrap creates the bridge's tables when missing.
func (q *Queries) Bootstrap(ctx context.Context) error {
	_, err := q.db.Exec(ctx, schema)
	return err
}
