// Package job implements the Job State Machine (C7): job identity and
// lifecycle, the transition graph in spec §4.7, and the single global
// execution lock that serializes Executor runs across jobs.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// State is one node of the lifecycle graph in spec §3/§4.7.
type State string

const (
	StateCreated          State = "CREATED"
	StatePlanning         State = "PLANNING"
	StateAwaitingApproval State = "AWAITING_APPROVAL"
	StateExecuting        State = "EXECUTING"
	StateCompleted        State = "COMPLETED"
	StateFailed           State = "FAILED"
)

// Job is the mutable job record the state machine owns. workspace_path is
// immutable once set, per spec §3's invariant; every other field may change
// as the job advances.
type Job struct {
	ID            string
	State         State
	SourceRepoURL string
	ShortName     string
	TargetStack   string
	WorkspacePath string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ErrInvalidTransition is returned when a transition is attempted from a
// state that does not permit it. Per §4.7/§8 ("State gate"), this must
// surface as a client error without mutating state.
type ErrInvalidTransition struct {
	From State
	To   string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot %s job in state %s", e.To, e.From)
}

// Store is the mutable-job-record contract spec §1 requires beyond the
// Event Log: get/put access to a job by id. The only implementation shipped
// is in-memory (see memory.go) — per §1's non-goal, no particular database
// technology is mandated, and a job's entire history is already
// reconstructable from its Event Log stream if a durable Store is ever
// needed.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, j *Job) error
}

// Machine drives jobs through their lifecycle and owns the single global
// execution lock named in spec §4.7 and §5 ("at most one Executor is ever
// in its step loop").
type Machine struct {
	store    Store
	execLock *semaphore.Weighted
}

// NewMachine constructs a Machine over the given Store.
func NewMachine(store Store) *Machine {
	return &Machine{
		store:    store,
		execLock: semaphore.NewWeighted(1),
	}
}

// Create starts a new job in CREATED state.
func (m *Machine) Create(ctx context.Context, sourceRepoURL, shortName, targetStack string) (*Job, error) {
	now := time.Now().UTC()
	j := &Job{
		ID:            uuid.NewString(),
		State:         StateCreated,
		SourceRepoURL: sourceRepoURL,
		ShortName:     shortName,
		TargetStack:   targetStack,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return j, nil
}

// Get fetches a job by id.
func (m *Machine) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// StartPlanning transitions CREATED or FAILED -> PLANNING. The caller is
// expected to then trigger the (external) planner.
func (m *Machine) StartPlanning(ctx context.Context, id string) (*Job, error) {
	return m.transition(ctx, id, "start-planning", func(j *Job) error {
		if j.State != StateCreated && j.State != StateFailed {
			return &ErrInvalidTransition{From: j.State, To: "start-planning"}
		}
		j.State = StatePlanning
		j.Error = ""
		return nil
	})
}

// MarkAwaitingApproval transitions PLANNING -> AWAITING_APPROVAL once the
// external planner has emitted plan_complete.
func (m *Machine) MarkAwaitingApproval(ctx context.Context, id string) (*Job, error) {
	return m.transition(ctx, id, "plan-complete", func(j *Job) error {
		if j.State != StatePlanning {
			return &ErrInvalidTransition{From: j.State, To: "plan-complete"}
		}
		j.State = StateAwaitingApproval
		return nil
	})
}

// Reject transitions AWAITING_APPROVAL -> CREATED.
func (m *Machine) Reject(ctx context.Context, id string) (*Job, error) {
	return m.transition(ctx, id, "reject", func(j *Job) error {
		if j.State != StateAwaitingApproval {
			return &ErrInvalidTransition{From: j.State, To: "reject"}
		}
		j.State = StateCreated
		return nil
	})
}

// Approve transitions AWAITING_APPROVAL -> EXECUTING. It does not itself
// acquire the execution lock or start the Executor — callers (the
// orchestrator) do that after Approve succeeds, since starting the
// Executor is an I/O-bound, potentially long-running suspension point that
// should not happen while holding the job's own update path.
func (m *Machine) Approve(ctx context.Context, id string) (*Job, error) {
	return m.transition(ctx, id, "approve", func(j *Job) error {
		if j.State != StateAwaitingApproval {
			return &ErrInvalidTransition{From: j.State, To: "approve"}
		}
		j.State = StateExecuting
		return nil
	})
}

// Complete transitions EXECUTING -> COMPLETED.
func (m *Machine) Complete(ctx context.Context, id string) (*Job, error) {
	return m.transition(ctx, id, "complete", func(j *Job) error {
		if j.State != StateExecuting {
			return &ErrInvalidTransition{From: j.State, To: "complete"}
		}
		j.State = StateCompleted
		return nil
	})
}

// Fail transitions any state -> FAILED, recording reason. Per §4.7, an
// exception during planning or execution reaches FAILED from any state.
func (m *Machine) Fail(ctx context.Context, id string, reason error) (*Job, error) {
	return m.transition(ctx, id, "fail", func(j *Job) error {
		j.State = StateFailed
		if reason != nil {
			j.Error = reason.Error()
		}
		return nil
	})
}

// SetWorkspacePath sets the job's workspace path exactly once; subsequent
// calls with a different value fail, enforcing §3's immutability invariant.
func (m *Machine) SetWorkspacePath(ctx context.Context, id, path string) error {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.WorkspacePath != "" && j.WorkspacePath != path {
		return fmt.Errorf("workspace path for job %s is already set to %q", id, j.WorkspacePath)
	}
	j.WorkspacePath = path
	j.UpdatedAt = time.Now().UTC()
	return m.store.Update(ctx, j)
}

func (m *Machine) transition(ctx context.Context, id, name string, mutate func(*Job) error) (*Job, error) {
	j, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := mutate(j); err != nil {
		return nil, err
	}
	j.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, j); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return j, nil
}

// AcquireExecution blocks until the global execution lock is available or
// ctx is cancelled. The caller must call release() when execution ends.
// This is the single cross-job synchronization primitive named in §5.
func (m *Machine) AcquireExecution(ctx context.Context) (release func(), err error) {
	if err := m.execLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { m.execLock.Release(1) }, nil
}
