// Package emitter implements the dual-write described in spec §4.5: append
// to the Event Log (source of truth), then publish the identical envelope
// to the Event Bus (low-latency path) using the timestamp the log assigned.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
)

// Emitter is the only writer of job events. Every component that wants to
// surface something to subscribers (the Executor, the Job State Machine,
// the Watchdog) goes through it rather than touching the log or bus
// directly, so the dual-write ordering invariant can't be bypassed.
type Emitter struct {
	log eventlog.Store
	bus *eventbus.Bus
}

// New builds an Emitter over the given log and bus.
func New(store eventlog.Store, bus *eventbus.Bus) *Emitter {
	return &Emitter{log: store, bus: bus}
}

// Emit appends the event to the log, then publishes it to the bus. The log
// append must succeed or the caller is told; the bus publish is swallowed
// (logged only) per §4.5 and §7's error-handling taxonomy item 5 — a
// subscriber that misses the bus publish still sees the event on its next
// replay, because the log write already happened.
func (e *Emitter) Emit(ctx context.Context, jobID, eventType string, payload any) (eventlog.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("marshaling %s payload: %w", eventType, err)
	}

	ev, err := e.log.Append(ctx, jobID, eventType, raw)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("appending %s event: %w", eventType, err)
	}

	e.publish(ev)
	return ev, nil
}

func (e *Emitter) publish(ev eventlog.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("emitter: recovered from panic publishing event %d for job %s: %v", ev.ID, ev.JobID, r)
		}
	}()
	e.bus.Publish(topic(ev.JobID), eventbus.Message{
		Type:      ev.Type,
		JobID:     ev.JobID,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp.UnixNano(),
	})
}

// topic returns the bus topic convention named in spec §4.3: "job:<job_id>".
func topic(jobID string) string {
	return "job:" + jobID
}

// Topic exposes the topic-naming convention to the Stream Endpoint, which
// subscribes directly on the bus rather than through the Emitter.
func Topic(jobID string) string {
	return topic(jobID)
}
