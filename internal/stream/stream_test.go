package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
)

// fakeSource pairs a real Memory event log with a real Bus, so tests
// exercise Serve's actual replay-then-tail sequencing without needing the
// full Orchestrator.
type fakeSource struct {
	log *eventlog.Memory
	bus *eventbus.Bus
}

func newFakeSource() *fakeSource {
	return &fakeSource{log: eventlog.NewMemory(), bus: eventbus.New()}
}

func (f *fakeSource) Events(ctx context.Context, jobID string, sinceID int64, limit int) ([]eventlog.Event, error) {
	return f.log.List(ctx, jobID, sinceID, limit)
}

func (f *fakeSource) Subscribe(jobID string) *eventbus.Subscription {
	return f.bus.Subscribe("job:" + jobID)
}

func (f *fakeSource) publish(ctx context.Context, jobID, eventType string, payload string) {
	ev, _ := f.log.Append(ctx, jobID, eventType, json.RawMessage(payload))
	f.bus.Publish("job:"+jobID, eventbus.Message{
		Type: ev.Type, JobID: ev.JobID, Payload: ev.Payload, Timestamp: ev.Timestamp.UnixNano(),
	})
}

func readEnvelopes(t *testing.T, buf *bytes.Buffer, n int) []envelope {
	t.Helper()
	scanner := bufio.NewScanner(buf)
	var out []envelope
	for len(out) < n && scanner.Scan() {
		var e envelope
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshaling envelope: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestServeSendsConnectedThenReplaysHistory(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.publish(ctx, "job-1", "job_created", `{"ok":true}`)
	src.publish(ctx, "job-1", "status_changed", `{"state":"PLANNING"}`)

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	lines := make(chan string)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- Serve(runCtx, src, "job-1", w, lines) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	envs := readEnvelopes(t, &out, 3)
	if len(envs) != 3 {
		t.Fatalf("expected 3 envelopes (connected + 2 replayed), got %d: %+v", len(envs), envs)
	}
	if envs[0].Type != "connected" {
		t.Fatalf("expected first envelope to be connected, got %q", envs[0].Type)
	}
	if envs[1].Type != "job_created" || envs[2].Type != "status_changed" {
		t.Fatalf("expected replay in log order, got %q then %q", envs[1].Type, envs[2].Type)
	}
}

func TestServeForwardsLiveBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newFakeSource()

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	lines := make(chan string)

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, src, "job-2", w, lines) }()

	time.Sleep(20 * time.Millisecond) // let Serve subscribe before we publish
	src.publish(ctx, "job-2", "phase_started", `{"phase_id":1}`)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	envs := readEnvelopes(t, &out, 2)
	if len(envs) != 2 || envs[1].Type != "phase_started" {
		t.Fatalf("expected connected then phase_started, got %+v", envs)
	}
}

func TestServeRespondsToPing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newFakeSource()

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	lines := make(chan string)

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, src, "job-3", w, lines) }()

	time.Sleep(20 * time.Millisecond)
	lines <- `{"type":"ping"}`
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	envs := readEnvelopes(t, &out, 2)
	if len(envs) != 2 || envs[1].Type != "pong" {
		t.Fatalf("expected connected then pong, got %+v", envs)
	}
}

func TestServeIgnoresMalformedClientLine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := newFakeSource()

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	lines := make(chan string)

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, src, "job-4", w, lines) }()

	time.Sleep(20 * time.Millisecond)
	lines <- "not json"
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if strings.Count(out.String(), "\n") != 1 {
		t.Fatalf("expected only the connected envelope, got %q", out.String())
	}
}
