package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newMachine() *Machine {
	return NewMachine(NewMemoryStore())
}

func TestHappyPathTransitions(t *testing.T) {
	ctx := context.Background()
	m := newMachine()

	j, err := m.Create(ctx, "https://example.com/repo.git", "repo", "Fastify + TypeScript")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if j.State != StateCreated {
		t.Fatalf("expected CREATED, got %s", j.State)
	}

	if _, err := m.StartPlanning(ctx, j.ID); err != nil {
		t.Fatalf("start planning: %v", err)
	}
	if _, err := m.MarkAwaitingApproval(ctx, j.ID); err != nil {
		t.Fatalf("mark awaiting approval: %v", err)
	}
	j, err = m.Approve(ctx, j.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if j.State != StateExecuting {
		t.Fatalf("expected EXECUTING, got %s", j.State)
	}
	j, err = m.Complete(ctx, j.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.State != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", j.State)
	}
}

func TestRejectReturnsToCreated(t *testing.T) {
	ctx := context.Background()
	m := newMachine()
	j, _ := m.Create(ctx, "u", "r", "t")
	if _, err := m.StartPlanning(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.MarkAwaitingApproval(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	j, err := m.Reject(ctx, j.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if j.State != StateCreated {
		t.Fatalf("expected CREATED after reject, got %s", j.State)
	}
}

func TestApprovingWrongStateIsRejectedWithoutMutation(t *testing.T) {
	ctx := context.Background()
	m := newMachine()
	j, _ := m.Create(ctx, "u", "r", "t")

	_, err := m.Approve(ctx, j.ID)
	var transErr *ErrInvalidTransition
	if !errors.As(err, &transErr) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	after, err := m.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.State != StateCreated {
		t.Fatalf("state must not mutate on rejected transition, got %s", after.State)
	}
}

func TestFailReachableFromAnyState(t *testing.T) {
	ctx := context.Background()
	m := newMachine()
	j, _ := m.Create(ctx, "u", "r", "t")
	if _, err := m.StartPlanning(ctx, j.ID); err != nil {
		t.Fatal(err)
	}

	j, err := m.Fail(ctx, j.ID, errors.New("planner exploded"))
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if j.State != StateFailed {
		t.Fatalf("expected FAILED, got %s", j.State)
	}
	if j.Error != "planner exploded" {
		t.Fatalf("expected error text recorded, got %q", j.Error)
	}
}

func TestWorkspacePathImmutableOnceSet(t *testing.T) {
	ctx := context.Background()
	m := newMachine()
	j, _ := m.Create(ctx, "u", "r", "t")

	if err := m.SetWorkspacePath(ctx, j.ID, "/ws/a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.SetWorkspacePath(ctx, j.ID, "/ws/a"); err != nil {
		t.Fatalf("idempotent set should not fail: %v", err)
	}
	if err := m.SetWorkspacePath(ctx, j.ID, "/ws/b"); err == nil {
		t.Fatal("expected error changing an already-set workspace path")
	}
}

// TestSerialExecution verifies §5/§8's "at most one Executor is ever in its
// step loop" and "serial execution" property: two jobs approved
// simultaneously produce non-overlapping lock-held spans.
func TestSerialExecution(t *testing.T) {
	m := newMachine()
	ctx := context.Background()

	var mu sync.Mutex
	var spans []string
	var wg sync.WaitGroup

	run := func(name string) {
		defer wg.Done()
		release, err := m.AcquireExecution(ctx)
		if err != nil {
			t.Errorf("acquire: %v", err)
			return
		}
		mu.Lock()
		spans = append(spans, name+":start")
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		spans = append(spans, name+":end")
		mu.Unlock()
		release()
	}

	wg.Add(2)
	go run("a")
	go run("b")
	wg.Wait()

	if len(spans) != 4 {
		t.Fatalf("expected 4 span events, got %d: %v", len(spans), spans)
	}
	// Whichever job starts first must end before the other starts.
	first := spans[0][:1]
	if spans[1] != first+":end" {
		t.Fatalf("expected non-overlapping spans, got %v", spans)
	}
}
