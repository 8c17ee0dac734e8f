// Package stream implements the Stream Endpoint (C8): a per-job duplex
// subscription that replays the Event Log in order, then tails the Event
// Bus, with client ping/pong and a 45s-silence heartbeat, per spec §4.8.
//
// The duplex transport itself is a hijacked HTTP/1.1 connection speaking
// newline-delimited JSON in both directions (see http.go) rather than a
// websocket library — none of the example repos in the pack pin a
// websocket dependency, and the wire contract spec §4.8/§6 describes
// (`{type, job_id, payload, timestamp}` lines, a handful of control types)
// is exactly what a hijacked connection's raw reader/writer pair can speak
// directly, the way detent's act package drives a subprocess's stdin/stdout
// as two independent line streams rather than through a higher-level
// framework.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
)

const heartbeatInterval = 45 * time.Second

// envelope is the wire shape named in spec §4.8's "Stream message envelope".
// Control messages (connected, pong, heartbeat) omit payload and timestamp.
type envelope struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Source is the subset of the Orchestrator the Stream Endpoint depends on:
// read the persisted history, and tail the live bus.
type Source interface {
	Events(ctx context.Context, jobID string, sinceID int64, limit int) ([]eventlog.Event, error)
	Subscribe(jobID string) *eventbus.Subscription
}

// clientMessage is the shape of a line sent by the client, per spec §4.8
// ("Accepts client {type: "ping"}").
type clientMessage struct {
	Type string `json:"type"`
}

// Serve runs the core duplex protocol described in spec §4.8 over w/r until
// the context is cancelled, the client disconnects, or a write fails. lines
// is fed by a transport-specific goroutine reading newline-delimited input
// from the client (see http.go); Serve never reads the raw connection
// itself, so it can be exercised with an ordinary channel in tests.
func Serve(ctx context.Context, src Source, jobID string, w *bufio.Writer, lines <-chan string) error {
	if err := writeEnvelope(w, envelope{Type: "connected"}); err != nil {
		return err
	}

	events, err := src.Events(ctx, jobID, 0, 0)
	if err != nil {
		return fmt.Errorf("replaying events for job %s: %w", jobID, err)
	}
	for _, ev := range events {
		if err := writeEnvelope(w, envelope{
			Type:      ev.Type,
			JobID:     ev.JobID,
			Payload:   ev.Payload,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}

	sub := src.Subscribe(jobID)
	defer sub.Unsubscribe()

	heartbeat := time.NewTimer(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			if err := writeEnvelope(w, envelope{
				Type:      msg.Type,
				JobID:     msg.JobID,
				Payload:   json.RawMessage(msg.Payload),
				Timestamp: time.Unix(0, msg.Timestamp).UTC().Format(time.RFC3339Nano),
			}); err != nil {
				return err
			}
			resetHeartbeat(heartbeat)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			var cm clientMessage
			if err := json.Unmarshal([]byte(line), &cm); err != nil {
				continue // malformed client line: ignore, per the tolerant-reader posture in §9
			}
			if cm.Type == "ping" {
				if err := writeEnvelope(w, envelope{Type: "pong"}); err != nil {
					return err
				}
			}
			resetHeartbeat(heartbeat)

		case <-heartbeat.C:
			if err := writeEnvelope(w, envelope{Type: "heartbeat"}); err != nil {
				return err
			}
			heartbeat.Reset(heartbeatInterval)
		}
	}
}

func resetHeartbeat(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(heartbeatInterval)
}

func writeEnvelope(w *bufio.Writer, e envelope) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling stream envelope: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
