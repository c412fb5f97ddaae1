package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	busyTimeoutMs = 5000
	readerConns   = 4
	connLifetime  = time.Hour
)

// DBPair splits SQLite access into a single-connection writer and a small
// read-only pool. WAL mode lets the two proceed concurrently.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

func (p *DBPair) Reader() *sql.DB { return p.reader }

func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools.
func (p *DBPair) Close() error {
	return errors.Join(p.reader.Close(), p.writer.Close())
}

// Init opens (creating if needed) the database at dbPath, applies the schema
// and runs migrations.
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	writer, err := open(dbPath, "rwc", 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA foreign_keys = ON;"} {
		if _, err := writer.Exec(pragma); err != nil {
			writer.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := runMigrations(writer); err != nil {
		writer.Close()
		return nil, err
	}

	// The reader opens after the schema exists; mode=ro cannot create it.
	reader, err := open(dbPath, "ro", readerConns)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DBPair{reader: reader, writer: writer}, nil
}

func open(dbPath, mode string, maxConns int) (*sql.DB, error) {
	// go-sqlite3 only forwards mode= to SQLite for file: URIs.
	dsn := fmt.Sprintf("file:%s?mode=%s&_journal=WAL&_busy_timeout=%d", dbPath, mode, busyTimeoutMs)
	if mode == "ro" {
		dsn += "&_query_only=true"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(maxConns)
	conn.SetConnMaxLifetime(connLifetime)
	return conn, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func runMigrations(db *sql.DB) error {
	// Databases created before provider tracking lack the column.
	columns, err := tableColumns(db, "accessories")
	if err != nil {
		return err
	}
	if !columns["provider"] {
		if _, err := db.Exec("ALTER TABLE accessories ADD COLUMN provider TEXT NOT NULL DEFAULT ''"); err != nil {
			return fmt.Errorf("add accessories.provider: %w", err)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
