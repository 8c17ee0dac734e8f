package eventlog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store backed by a slice per job. It satisfies the
// same append-only, ordered-read contract as the SQLite store and is used
// by the test suite and by any embedding that doesn't need the log to
// survive a process restart.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	byJob   map[string][]Event
	lastTS  map[string]time.Time
}

// NewMemory constructs an empty in-memory event log.
func NewMemory() *Memory {
	return &Memory{
		byJob:  make(map[string][]Event),
		lastTS: make(map[string]time.Time),
	}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, jobID, eventType string, payload json.RawMessage) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	ts := time.Now().UTC()
	// Guarantee non-decreasing timestamps per job even under a fast clock.
	if prev, ok := m.lastTS[jobID]; ok && !ts.After(prev) {
		ts = prev.Add(time.Nanosecond)
	}
	m.lastTS[jobID] = ts

	ev := Event{
		ID:        m.nextID,
		JobID:     jobID,
		Type:      eventType,
		Payload:   append(json.RawMessage(nil), payload...),
		Timestamp: ts,
	}
	m.byJob[jobID] = append(m.byJob[jobID], ev)
	return ev, nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, jobID string, sinceID int64, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.byJob[jobID]
	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.ID > sinceID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
