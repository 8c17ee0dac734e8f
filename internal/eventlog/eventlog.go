// Package eventlog is the append-only persistent log of (job_id, event_type,
// payload, timestamp) tuples described in spec §3/§4.4. It is the source of
// truth the Emitter writes to before publishing to the Event Bus, and what
// the Stream Endpoint replays for late-joining subscribers.
//
// Two implementations are provided: Memory (used by tests and by anything
// that doesn't need durability across process restarts) and the SQLite-backed
// Store in sqlite.go, grounded on detent's internal/persistence/sqlite.go.
// Per spec §1's non-goal ("persistent database technology... we require only
// an ordered append-only event log"), callers depend on the Store interface,
// never on *SQLiteStore directly.
package eventlog

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one entry in a job's append-only log.
type Event struct {
	ID        int64           `json:"id"`
	JobID     string          `json:"job_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store is the append-only, per-job-ordered log contract every Emitter and
// Stream Endpoint depends on.
type Store interface {
	// Append records one event for jobID and returns its assigned id and
	// timestamp. Timestamps are monotonically non-decreasing per job; ties
	// are broken by insertion (and therefore id) order.
	Append(ctx context.Context, jobID, eventType string, payload json.RawMessage) (Event, error)

	// List returns events for jobID in ascending (timestamp, id) order.
	// If sinceID > 0, only events with ID > sinceID are returned. If
	// limit > 0, at most limit events are returned.
	List(ctx context.Context, jobID string, sinceID int64, limit int) ([]Event, error)

	// Close releases any resources held by the store.
	Close() error
}
