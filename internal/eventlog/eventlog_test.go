package eventlog

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemoryAppendThenListOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := m.Append(ctx, "job-1", "agent_thought", []byte(`{"n":1}`)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := m.Append(ctx, "job-2", "agent_thought", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("append other job: %v", err)
	}

	events, err := m.List(ctx, "job-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events for job-1, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("timestamps not non-decreasing at index %d", i)
		}
		if events[i].ID <= events[i-1].ID {
			t.Fatalf("ids not increasing at index %d", i)
		}
	}
}

func TestMemoryListSinceID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		ev, err := m.Append(ctx, "job-1", "agent_thought", []byte(`{}`))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, ev.ID)
	}

	events, err := m.List(ctx, "job-1", ids[0], 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after sinceID, got %d", len(events))
	}
}

func TestSQLiteStoreAppendAndList(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLite(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := store.Append(ctx, "job-1", "terminal_output", []byte(`{"line":"ok"}`)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	events, err := store.List(ctx, "job-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.JobID != "job-1" {
			t.Errorf("event %d: wrong job id %q", i, ev.JobID)
		}
	}

	// Re-opening the same path must not re-apply migrations destructively.
	store2, err := OpenSQLite(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store2.Close()

	events2, err := store2.List(ctx, "job-1", 0, 0)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(events2) != 4 {
		t.Fatalf("expected 4 events after reopen, got %d", len(events2))
	}
}
