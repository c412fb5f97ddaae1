package audit

import (
	"database/sql"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventZoneDiscovered  EventType = "ZONE_DISCOVERED"
	EventZoneRestored    EventType = "ZONE_RESTORED"
	EventZoneRenamed     EventType = "ZONE_RENAMED"
	EventZoneMissing     EventType = "ZONE_MISSING"
	EventZoneUnreachable EventType = "ZONE_UNREACHABLE"
	EventZoneReachable   EventType = "ZONE_REACHABLE"
	EventPlaybackChanged EventType = "PLAYBACK_CHANGED"
	EventSystemStartup   EventType = "SYSTEM_STARTUP"
)

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// AuditEvent represents a single audit event.
type AuditEvent struct {
	EventID     string         `json:"event_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Type        EventType      `json:"type"`
	Level       EventLevel     `json:"level"`
	ZoneID      *string        `json:"zone_id,omitempty"`
	AccessoryID *string        `json:"accessory_id,omitempty"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new audit event.
type WriteEventInput struct {
	Type        EventType
	Level       EventLevel
	ZoneID      string
	AccessoryID string
	Message     string
	Payload     map[string]any
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type   *EventType
	Level  *EventLevel
	ZoneID *string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}
