package db

const schemaSQL = `
-- ==========================================================================
-- Accessories
-- ==========================================================================

-- One row per zone ever discovered. Rows are never deleted by the bridge so
-- accessory identities survive a zone dropping out of discovery.
CREATE TABLE IF NOT EXISTS accessories (
  accessory_id TEXT PRIMARY KEY,
  zone_id TEXT NOT NULL,
  provider TEXT NOT NULL DEFAULT '',
  display_name TEXT NOT NULL,
  category INTEGER NOT NULL DEFAULT 26,
  known INTEGER NOT NULL DEFAULT 1,
  first_seen_at TEXT NOT NULL,
  last_seen_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_accessories_zone_id ON accessories(zone_id);
CREATE INDEX IF NOT EXISTS idx_accessories_known ON accessories(known);

-- ==========================================================================
-- Zone event log
-- ==========================================================================

CREATE TABLE IF NOT EXISTS audit_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  zone_id TEXT,
  accessory_id TEXT,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(type);
CREATE INDEX IF NOT EXISTS idx_audit_events_zone_id ON audit_events(zone_id) WHERE zone_id IS NOT NULL;
`
