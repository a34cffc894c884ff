package telemetry

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added (session_id, timestamp_ns) index
const currentSchemaVersion = 1

// Store persists telemetry events in SQLite (WAL mode).
type Store struct {
	db *sql.DB
}

// OpenStore creates or opens the database at path and applies migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_telemetry_session
			ON telemetry_events(session_id, timestamp_ns)
		`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Write inserts events in one transaction. Duplicate IDs are ignored.
func (s *Store) Write(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry_events
		(id, session_id, event_type, timestamp_ns, duration_ns, properties)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		props, err := marshalProperties(ev.Properties)
		if err != nil {
			return fmt.Errorf("write telemetry %s: %w", ev.ID, err)
		}
		var duration sql.NullInt64
		if ev.Duration > 0 {
			duration = sql.NullInt64{Int64: int64(ev.Duration), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			ev.ID,
			ev.SessionID,
			string(ev.Type),
			ev.Timestamp.UnixNano(),
			duration,
			props,
		); err != nil {
			return fmt.Errorf("write telemetry %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Type  EventType
	Since time.Time
	Limit int
}

// List returns stored events oldest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT id, session_id, event_type, timestamp_ns, duration_ns, properties
		FROM telemetry_events
		WHERE 1 = 1`
	var args []any
	if f.Type != "" {
		query += " AND event_type = ?"
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		query += " AND timestamp_ns >= ?"
		args = append(args, f.Since.UnixNano())
	}
	query += " ORDER BY timestamp_ns ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev       Event
			typ      string
			tsNanos  int64
			duration sql.NullInt64
			props    string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &typ, &tsNanos, &duration, &props); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		ev.Type = EventType(typ)
		ev.Timestamp = time.Unix(0, tsNanos).UTC()
		if duration.Valid {
			ev.Duration = time.Duration(duration.Int64)
		}
		if ev.Properties, err = unmarshalProperties(props); err != nil {
			return nil, fmt.Errorf("telemetry %s: %w", ev.ID, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list telemetry: %w", err)
	}
	return out, nil
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM telemetry_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count telemetry: %w", err)
	}
	return n, nil
}

// marshalProperties encodes props with sorted keys.
func marshalProperties(props map[string]string) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(b), nil
}

func unmarshalProperties(s string) (map[string]string, error) {
	var props map[string]string
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	if len(props) == 0 {
		return nil, nil
	}
	return props, nil
}
