package emitter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
)

func TestEmitAppendsThenPublishesWithLogTimestamp(t *testing.T) {
	store := eventlog.NewMemory()
	bus := eventbus.New()
	em := New(store, bus)

	sub := bus.Subscribe(Topic("job-1"))
	defer sub.Unsubscribe()

	ctx := context.Background()
	ev, err := em.Emit(ctx, "job-1", "agent_thought", map[string]string{"thought": "hi"})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Timestamp != ev.Timestamp.UnixNano() {
			t.Fatalf("bus message timestamp %d does not match log event timestamp %d", msg.Timestamp, ev.Timestamp.UnixNano())
		}
		var payload map[string]string
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload["thought"] != "hi" {
			t.Fatalf("unexpected payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus publish")
	}

	events, err := store.List(ctx, "job-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 logged event, got %d", len(events))
	}
}

func TestEmitSucceedsEvenWithNoSubscribers(t *testing.T) {
	store := eventlog.NewMemory()
	bus := eventbus.New()
	em := New(store, bus)

	if _, err := em.Emit(context.Background(), "job-1", "status_changed", map[string]string{"to": "PLANNING"}); err != nil {
		t.Fatalf("emit without subscribers should still append to the log: %v", err)
	}
}
