// Package orchestrator wires the Job State Machine (C7), Event Log/Bus/
// Emitter (C2-C4), Workspace Manager (C5) and Executor Agent (C6) into the
// control flow named in spec §2: a client creates a job, triggers planning
// (an external collaborator), approval advances the job and starts the
// Executor under the global execution lock, and the Stream Endpoint (C8,
// internal/stream) replays and tails the event plane independently of all
// of this.
//
// Per §9's design note on mutable per-job singletons ("Model as process-wide
// state with explicit init at startup and teardown on shutdown; all three
// may live in one Orchestrator value"), a single Orchestrator value is
// meant to be constructed once at process startup and shared by every HTTP
// handler; it holds the job machine's global execution lock and the event
// bus. The third singleton named there, the connection roster, is the Event
// Bus's own per-topic subscriber set (internal/eventbus) — kept there
// rather than duplicated here, since Subscribe/Unsubscribe already do the
// bookkeeping a separate roster would only repeat.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kandra-sh/kandra/internal/emitter"
	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
	"github.com/kandra-sh/kandra/internal/executor"
	"github.com/kandra-sh/kandra/internal/job"
	"github.com/kandra-sh/kandra/internal/plan"
	"github.com/kandra-sh/kandra/internal/workspace"
)

// ErrNoPlan is returned by Approve when a job has no plan_complete event to
// read, per spec §4.7 ("missing/unparsable -> 400").
var ErrNoPlan = fmt.Errorf("orchestrator: job has no plan_complete event")

// Orchestrator is the process-wide handle every HTTP handler shares.
type Orchestrator struct {
	jobs *job.Machine
	log  eventlog.Store
	bus  *eventbus.Bus
	emit *emitter.Emitter
	ex   *executor.Executor

	workspaceBase string

	mu         sync.Mutex
	workspaces map[string]*workspace.Workspace
}

// New constructs an Orchestrator over the given collaborators. workspaceBase
// is the directory under which every job's <sanitized-repo>[-session]/
// layout (source/, target/, .kandra/, reports/) is created.
func New(jobs *job.Machine, store eventlog.Store, bus *eventbus.Bus, emit *emitter.Emitter, ex *executor.Executor, workspaceBase string) *Orchestrator {
	return &Orchestrator{
		jobs:          jobs,
		log:           store,
		bus:           bus,
		emit:          emit,
		ex:            ex,
		workspaceBase: workspaceBase,
		workspaces:    make(map[string]*workspace.Workspace),
	}
}

// CreateJob implements the first control-flow hop in spec §2: a client
// creates a job. It provisions the job's Workspace layout immediately
// (source/ is left for the external clone collaborator to populate before
// planning starts) and emits job_created.
func (o *Orchestrator) CreateJob(ctx context.Context, sourceRepoURL, shortName, targetStack string) (*job.Job, error) {
	j, err := o.jobs.Create(ctx, sourceRepoURL, shortName, targetStack)
	if err != nil {
		return nil, err
	}

	ws, err := workspace.New(o.workspaceBase, shortName, j.ID)
	if err != nil {
		return nil, fmt.Errorf("provisioning workspace for job %s: %w", j.ID, err)
	}
	if err := o.jobs.SetWorkspacePath(ctx, j.ID, ws.Root); err != nil {
		return nil, fmt.Errorf("recording workspace path for job %s: %w", j.ID, err)
	}

	o.mu.Lock()
	o.workspaces[j.ID] = ws
	o.mu.Unlock()

	if _, err := o.emit.Emit(ctx, j.ID, "job_created", map[string]any{
		"source_repo_url": sourceRepoURL,
		"short_name":      shortName,
		"target_stack":    targetStack,
		"workspace_path":  ws.Root,
	}); err != nil {
		return nil, fmt.Errorf("emitting job_created for job %s: %w", j.ID, err)
	}

	return o.jobs.Get(ctx, j.ID)
}

// StartPlanning transitions a job into PLANNING and emits plan_generating,
// signalling the external planner to begin. Per spec §4.7, planning itself
// happens outside this module: the planner reads plan_generating (or is
// triggered out of band) and eventually calls RecordPlan with its result.
func (o *Orchestrator) StartPlanning(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := o.jobs.StartPlanning(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "status_changed", map[string]any{"state": string(j.State)}); err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "plan_generating", map[string]any{
		"source_repo_url": j.SourceRepoURL,
		"target_stack":    j.TargetStack,
	}); err != nil {
		return nil, err
	}
	return j, nil
}

// RecordPlan is the entry point the external planner calls when it has
// finished: it appends plan_complete carrying the full plan text verbatim
// (spec §3's event invariant) and advances the job to AWAITING_APPROVAL. It
// deliberately does not parse planJSON — spec §4.7 only requires parsing to
// happen at Approve time ("re-read the latest plan_complete event and parse
// it"), so a planner extension the typed Plan struct doesn't model yet can
// still be recorded and replayed.
func (o *Orchestrator) RecordPlan(ctx context.Context, jobID string, planJSON []byte) (*job.Job, error) {
	if _, err := o.emit.Emit(ctx, jobID, "plan_complete", rawPayload(planJSON)); err != nil {
		return nil, fmt.Errorf("recording plan for job %s: %w", jobID, err)
	}
	j, err := o.jobs.MarkAwaitingApproval(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "status_changed", map[string]any{"state": string(j.State)}); err != nil {
		return nil, err
	}
	return j, nil
}

// Reject transitions AWAITING_APPROVAL -> CREATED and emits plan_rejected.
func (o *Orchestrator) Reject(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := o.jobs.Reject(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "plan_rejected", map[string]any{}); err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "status_changed", map[string]any{"state": string(j.State)}); err != nil {
		return nil, err
	}
	return j, nil
}

// Approve implements the rest of spec §4.7's approve transition: re-read the
// latest plan_complete event, parse it (missing/unparsable -> ErrNoPlan or a
// parse error, both of which the HTTP layer maps to 400), advance the state
// machine to EXECUTING, and start the Executor in the background under the
// global execution lock. Approve itself returns as soon as the state
// transition and plan parse succeed; it does not wait for execution to
// finish.
func (o *Orchestrator) Approve(ctx context.Context, jobID string) (*job.Job, error) {
	p, err := o.latestPlan(ctx, jobID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	ws := o.workspaces[jobID]
	o.mu.Unlock()
	if ws == nil {
		return nil, fmt.Errorf("orchestrator: no workspace provisioned for job %s", jobID)
	}

	j, err := o.jobs.Approve(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "plan_approved", map[string]any{}); err != nil {
		return nil, err
	}
	if _, err := o.emit.Emit(ctx, jobID, "status_changed", map[string]any{"state": string(j.State)}); err != nil {
		return nil, err
	}

	go o.runExecution(jobID, ws, p)

	return j, nil
}

// runExecution acquires the global execution lock (spec §5: "at most one
// Executor is ever in its step loop") and drives one job's phases to
// completion. It runs on a detached background context rather than the
// Approve request's context, since the HTTP request that triggered it has
// already returned by the time this runs.
func (o *Orchestrator) runExecution(jobID string, ws *workspace.Workspace, p *plan.Plan) {
	ctx := context.Background()

	release, err := o.jobs.AcquireExecution(ctx)
	if err != nil {
		o.fail(ctx, jobID, fmt.Errorf("acquiring execution lock: %w", err))
		return
	}
	defer release()

	if err := o.ex.ExecutePlan(ctx, jobID, ws, p); err != nil {
		o.fail(ctx, jobID, err)
		return
	}

	j, err := o.jobs.Complete(ctx, jobID)
	if err != nil {
		log.Printf("orchestrator: job %s finished execution but failed to transition to COMPLETED: %v", jobID, err)
		return
	}
	if _, err := o.emit.Emit(ctx, jobID, "status_changed", map[string]any{"state": string(j.State)}); err != nil {
		log.Printf("orchestrator: emitting status_changed for job %s: %v", jobID, err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, jobID string, reason error) {
	j, err := o.jobs.Fail(ctx, jobID, reason)
	if err != nil {
		log.Printf("orchestrator: job %s failed (%v) but could not transition to FAILED: %v", jobID, reason, err)
		return
	}
	if _, err := o.emit.Emit(ctx, jobID, "status_changed", map[string]any{"state": string(j.State), "error": j.Error}); err != nil {
		log.Printf("orchestrator: emitting status_changed for job %s: %v", jobID, err)
	}
}

// latestPlan re-reads jobID's full event history and parses the payload of
// the most recent plan_complete event, per spec §4.7's approve invariant.
func (o *Orchestrator) latestPlan(ctx context.Context, jobID string) (*plan.Plan, error) {
	events, err := o.log.List(ctx, jobID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("reading events for job %s: %w", jobID, err)
	}

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != "plan_complete" {
			continue
		}
		p, err := plan.Parse(events[i].Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
		}
		return p, nil
	}
	return nil, ErrNoPlan
}

// Job fetches a job by id.
func (o *Orchestrator) Job(ctx context.Context, jobID string) (*job.Job, error) {
	return o.jobs.Get(ctx, jobID)
}

// Events returns jobID's event history, for the Stream Endpoint's replay
// phase and for any plain REST read of a job's timeline.
func (o *Orchestrator) Events(ctx context.Context, jobID string, sinceID int64, limit int) ([]eventlog.Event, error) {
	return o.log.List(ctx, jobID, sinceID, limit)
}

// Subscribe opens a live tail on jobID's topic, for the Stream Endpoint.
func (o *Orchestrator) Subscribe(jobID string) *eventbus.Subscription {
	return o.bus.Subscribe(emitter.Topic(jobID))
}

// rawPayload lets Emit's json.Marshal round-trip already-serialized JSON
// bytes unchanged, rather than re-encoding them as a base64 string.
type rawPayload []byte

func (r rawPayload) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("{}"), nil
	}
	return r, nil
}
