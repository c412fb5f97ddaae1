package accessory

import (
	"database/sql"
	"fmt"
	"time"
)

// Fixed-width so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository persists accessories in SQLite.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
}

// NewRepository creates a new accessory Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// Upsert inserts or updates accessories in one transaction. first_seen_at is
// kept from the existing row.
func (r *Repository) Upsert(items []Accessory) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.writer.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO accessories (accessory_id, zone_id, provider, display_name, category, known, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(accessory_id) DO UPDATE SET
			zone_id = excluded.zone_id,
			provider = excluded.provider,
			display_name = excluded.display_name,
			category = excluded.category,
			known = excluded.known,
			last_seen_at = excluded.last_seen_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		category := item.Category
		if category == 0 {
			category = CategorySpeaker
		}
		_, err := stmt.Exec(
			item.AccessoryID,
			item.ZoneID,
			item.Provider,
			item.DisplayName,
			category,
			boolToInt(item.Known),
			formatTime(item.FirstSeenAt),
			formatTime(item.LastSeenAt),
		)
		if err != nil {
			return fmt.Errorf("upsert accessory %s: %w", item.AccessoryID, err)
		}
	}

	return tx.Commit()
}

// List returns every accessory ordered by first appearance.
func (r *Repository) List() ([]Accessory, error) {
	rows, err := r.reader.Query(`
		SELECT accessory_id, zone_id, provider, display_name, category, known, first_seen_at, last_seen_at
		FROM accessories
		ORDER BY first_seen_at ASC, accessory_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list accessories: %w", err)
	}
	defer rows.Close()

	result := []Accessory{}
	for rows.Next() {
		item, err := scanAccessory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// Get returns one accessory, or nil if it does not exist.
func (r *Repository) Get(accessoryID string) (*Accessory, error) {
	row := r.reader.QueryRow(`
		SELECT accessory_id, zone_id, provider, display_name, category, known, first_seen_at, last_seen_at
		FROM accessories
		WHERE accessory_id = ?
	`, accessoryID)
	item, err := scanAccessory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccessory(row scanner) (Accessory, error) {
	var (
		item      Accessory
		known     int
		firstSeen string
		lastSeen  string
	)
	if err := row.Scan(&item.AccessoryID, &item.ZoneID, &item.Provider, &item.DisplayName, &item.Category, &known, &firstSeen, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return Accessory{}, err
		}
		return Accessory{}, fmt.Errorf("scan accessory: %w", err)
	}
	item.Known = known == 1
	item.FirstSeenAt = parseTime(firstSeen)
	item.LastSeenAt = parseTime(lastSeen)
	return item, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
