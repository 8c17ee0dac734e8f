package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kandra-sh/kandra/internal/emitter"
	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
	"github.com/kandra-sh/kandra/internal/llm"
	"github.com/kandra-sh/kandra/internal/plan"
	"github.com/kandra-sh/kandra/internal/workspace"
)

func newTestEnv(t *testing.T) (*emitter.Emitter, *workspace.Workspace) {
	t.Helper()
	store := eventlog.NewMemory()
	bus := eventbus.New()
	em := emitter.New(store, bus)

	ws, err := workspace.New(t.TempDir(), "repo", "")
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return em, ws
}

func simplePlan(t *testing.T) *plan.Plan {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"summary": map[string]any{"title": "Migrate", "description": "test"},
		"transformation": map[string]any{
			"source_stack": "Flask", "target_stack": "Fastify + TypeScript",
		},
		"phases": []map[string]any{
			{"id": 1, "title": "Bootstrap", "description": "set up project"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := plan.Parse(raw)
	if err != nil {
		t.Fatalf("plan.Parse: %v", err)
	}
	return p
}

func TestExecutePlanCompletesOnStatusComplete(t *testing.T) {
	em, ws := newTestEnv(t)
	client := &llm.FakeClient{Responses: []string{
		`{"thought": "nothing to do, phase is trivially satisfied", "status": "complete"}`,
	}}

	ex := New(client, "claude-sonnet-4-5", em, 10)
	err := ex.ExecutePlan(context.Background(), "job-1", ws, simplePlan(t))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
}

func TestExecutePlanRunsToolThenCompletes(t *testing.T) {
	em, ws := newTestEnv(t)
	client := &llm.FakeClient{Responses: []string{
		`{"thought": "write the readme", "tool": "write_file", "args": {"path": "README.md", "content": "hello"}}`,
		`{"thought": "done", "status": "complete"}`,
	}}

	ex := New(client, "claude-sonnet-4-5", em, 10)
	err := ex.ExecutePlan(context.Background(), "job-2", ws, simplePlan(t))
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if client.Calls() != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", client.Calls())
	}
}

func TestExecutePlanAbortsOnBlockedStatus(t *testing.T) {
	em, ws := newTestEnv(t)
	client := &llm.FakeClient{Responses: []string{
		`{"thought": "I'm stuck and cannot proceed", "status": "blocked"}`,
	}}

	ex := New(client, "claude-sonnet-4-5", em, 10)
	err := ex.ExecutePlan(context.Background(), "job-3", ws, simplePlan(t))
	if err == nil {
		t.Fatal("expected ExecutePlan to return an error on a blocked status")
	}
}

func TestExtractJSONObjectToleratesFencedBlock(t *testing.T) {
	text := "Here is my action:\n```json\n{\"thought\": \"ok\", \"status\": \"complete\"}\n```\n"
	a, err := parseAction(text)
	if err != nil {
		t.Fatalf("parseAction: %v", err)
	}
	if a.Status != "complete" {
		t.Fatalf("expected status complete, got %q", a.Status)
	}
}

func TestSimilarityRatioIdenticalIsOne(t *testing.T) {
	if r := similarityRatio("same text", "same text"); r != 1.0 {
		t.Fatalf("expected ratio 1.0 for identical strings, got %v", r)
	}
}

func TestSimilarityRatioDetectsNearDuplicateThought(t *testing.T) {
	a := "I will inspect the package.json file to understand the dependencies"
	b := "I will inspect the package.json file to understand the dependency list"
	if r := similarityRatio(a, b); r <= thoughtLoopThreshold {
		t.Fatalf("expected near-duplicate thoughts to exceed the loop threshold, got %v", r)
	}
}
