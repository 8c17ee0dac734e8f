package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kandra-sh/kandra/internal/emitter"
)

const (
	watchdogPollInterval = 30 * time.Second
	watchdogStallLimit   = 120 * time.Second
)

// activityTracker records the Executor's current activity and when it last
// changed, so the watchdog can detect a stall without instrumenting every
// call site with its own timers.
type activityTracker struct {
	mu          sync.Mutex
	activity    string
	detail      string
	lastChanged time.Time
	lastSuccess string
}

func newActivityTracker() *activityTracker {
	return &activityTracker{lastChanged: time.Now()}
}

// set records a new activity (one of waiting_for_llm, executing_tool,
// starting_phase per §4.6's Watchdog paragraph) with a human-readable
// detail string.
func (a *activityTracker) set(activity, detail string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activity == activity && a.detail == detail {
		return
	}
	a.activity = activity
	a.detail = detail
	a.lastChanged = time.Now()
}

// markSuccess records the last successfully completed action, surfaced in
// stuck_warning diagnostics.
func (a *activityTracker) markSuccess(description string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSuccess = description
}

func (a *activityTracker) snapshot() (activity, detail, lastSuccess string, since time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activity, a.detail, a.lastSuccess, time.Since(a.lastChanged)
}

// watchdog is the concurrent supervisor from §4.6's Watchdog paragraph: it
// polls every 30s and emits stuck_warning if the current activity has been
// active for more than 120s.
type watchdog struct {
	emit  *emitter.Emitter
	jobID string
	track *activityTracker
}

func newWatchdog(emit *emitter.Emitter, jobID string, track *activityTracker) *watchdog {
	return &watchdog{emit: emit, jobID: jobID, track: track}
}

func (w *watchdog) run(ctx context.Context) {
	ticker := time.NewTicker(watchdogPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			activity, detail, lastSuccess, since := w.track.snapshot()
			if activity == "" || since < watchdogStallLimit {
				continue
			}
			_, _ = w.emit.Emit(ctx, w.jobID, "stuck_warning", map[string]any{
				"activity":       activity,
				"detail":         detail,
				"stalled_for_s":  int(since.Seconds()),
				"last_success":   lastSuccess,
				"likely_cause":   likelyCause(activity),
			})
		}
	}
}

// likelyCause gives a one-line hypothesis for each stall-prone activity,
// surfaced in stuck_warning so a human operator has somewhere to start.
func likelyCause(activity string) string {
	switch activity {
	case "waiting_for_llm":
		return "the language model request may be rate-limited or hung"
	case "executing_tool":
		return "the running command may be waiting on an unhandled prompt or a long build"
	case "starting_phase":
		return "phase setup (purge or pre-gate) may be stuck on a slow filesystem walk"
	default:
		return fmt.Sprintf("unrecognized activity %q", activity)
	}
}
