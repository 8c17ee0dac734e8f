package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const currentSchemaVersion = 1

// SQLiteStore is the default durable Store, pure-Go SQLite via
// ncruces/go-sqlite3 so the daemon needs no cgo toolchain to build or run —
// grounded on detent's internal/persistence/sqlite.go, trimmed to exactly
// the append/list contract the Event Log needs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite-backed event log at path,
// applying the same WAL/pragma tuning detent's persistence layer uses.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		// #nosec G301 - restrictive, owner-only directory
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating event log directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening event log database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
		"PRAGMA mmap_size=268435456",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating event log schema: %w", err)
	}

	// #nosec G302 - event payloads may contain source snippets; keep the file private
	_ = os.Chmod(path, 0o600)

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
			CREATE TABLE IF NOT EXISTS events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				job_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				payload TEXT NOT NULL,
				ts_unix_nano INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_events_job_id ON events(job_id);
			CREATE INDEX IF NOT EXISTS idx_events_job_id_id ON events(job_id, id);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", m.version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Append implements Store. The timestamp is taken from the Go clock before
// the insert and stored with the row, so List can sort purely on stored
// state.
func (s *SQLiteStore) Append(ctx context.Context, jobID, eventType string, payload json.RawMessage) (Event, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO events (job_id, event_type, payload, ts_unix_nano) VALUES (?, ?, ?, ?)",
		jobID, eventType, string(payload), now.UnixNano(),
	)
	if err != nil {
		return Event{}, fmt.Errorf("appending event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, fmt.Errorf("reading event id: %w", err)
	}
	return Event{
		ID:        id,
		JobID:     jobID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: now,
	}, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, jobID string, sinceID int64, limit int) ([]Event, error) {
	query := "SELECT id, job_id, event_type, payload, ts_unix_nano FROM events WHERE job_id = ? AND id > ? ORDER BY ts_unix_nano ASC, id ASC"
	args := []any{jobID, sinceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var payload string
		var tsNano int64
		if err := rows.Scan(&ev.ID, &ev.JobID, &ev.Type, &payload, &tsNano); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		ev.Timestamp = time.Unix(0, tsNano).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
