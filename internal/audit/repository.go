package audit

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fixed-width so timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Repository handles database operations for audit events.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new audit Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// InsertEvent writes a new audit event and returns it as stored.
func (r *Repository) InsertEvent(input WriteEventInput) (*AuditEvent, error) {
	level := input.Level
	if level == "" {
		level = EventLevelInfo
	}
	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &AuditEvent{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Type:      input.Type,
		Level:     level,
		Message:   input.Message,
		Payload:   payload,
	}
	if input.ZoneID != "" {
		event.ZoneID = &input.ZoneID
	}
	if input.AccessoryID != "" {
		event.AccessoryID = &input.AccessoryID
	}

	_, err = r.writer.Exec(`
		INSERT INTO audit_events (event_id, timestamp, type, level, zone_id, accessory_id, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.EventID, event.Timestamp.Format(timestampLayout), string(event.Type), string(level),
		event.ZoneID, event.AccessoryID, event.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}
	return event, nil
}

// GetEvent retrieves a single event by ID.
// Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*AuditEvent, error) {
	row := r.reader.QueryRow(`
		SELECT event_id, timestamp, type, level, zone_id, accessory_id, message, payload
		FROM audit_events
		WHERE event_id = ?
	`, eventID)

	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// QueryEvents returns one page of matching events, newest first, plus the
// total number of matches.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]AuditEvent, int, error) {
	whereClause, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM audit_events "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := r.reader.Query(`
		SELECT event_id, timestamp, type, level, zone_id, accessory_id, message, payload
		FROM audit_events
		`+whereClause+`
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Prune deletes events older than cutoff and returns how many went.
func (r *Repository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`DELETE FROM audit_events WHERE timestamp < ?`,
		cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters EventQueryFilters) (string, []any) {
	var conditions []string
	var args []any

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, string(*filters.Type))
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.ZoneID != nil {
		conditions = append(conditions, "zone_id = ?")
		args = append(args, *filters.ZoneID)
	}
	if filters.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filters.From.UTC().Format(timestampLayout))
	}
	if filters.To != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filters.To.UTC().Format(timestampLayout))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*AuditEvent, error) {
	var (
		event       AuditEvent
		timestamp   string
		eventType   string
		level       string
		zoneID      sql.NullString
		accessoryID sql.NullString
		payloadJSON string
	)
	if err := row.Scan(&event.EventID, &timestamp, &eventType, &level, &zoneID, &accessoryID, &event.Message, &payloadJSON); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(timestampLayout, timestamp)
	if err != nil {
		return nil, err
	}
	event.Timestamp = parsed
	event.Type = EventType(eventType)
	event.Level = EventLevel(level)
	if zoneID.Valid {
		event.ZoneID = &zoneID.String
	}
	if accessoryID.Valid {
		event.AccessoryID = &accessoryID.String
	}
	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}
	return &event, nil
}
