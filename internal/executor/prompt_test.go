package executor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/kandra-sh/kandra/internal/plan"
)

func planWithMigrationNotes(t *testing.T, notes string) *plan.Plan {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"summary":         map[string]any{"title": "Migrate", "description": "test"},
		"transformation":  map[string]any{"source_stack": "Flask", "target_stack": "Fastify + TypeScript"},
		"migration_notes": notes,
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

func TestBuildPreambleSurfacesMigrationNotes(t *testing.T) {
	p := planWithMigrationNotes(t, "keep the legacy webhook signature format")
	rc := &runState{plan: p}

	preamble := buildPreamble(rc, p.Phases[0], "", "", nil)

	if !strings.Contains(preamble, "MIGRATION NOTES") {
		t.Fatalf("expected MIGRATION NOTES section, got:\n%s", preamble)
	}
	if !strings.Contains(preamble, "keep the legacy webhook signature format") {
		t.Fatalf("expected migration_notes text in preamble, got:\n%s", preamble)
	}
}

func TestBuildPreambleOmitsMigrationNotesWhenAbsent(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"summary":        map[string]any{"title": "Migrate", "description": "test"},
		"transformation": map[string]any{"source_stack": "Flask", "target_stack": "Fastify + TypeScript"},
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
	rc := &runState{plan: p}

	preamble := buildPreamble(rc, p.Phases[0], "", "", nil)

	if strings.Contains(preamble, "MIGRATION NOTES") {
		t.Fatalf("expected no MIGRATION NOTES section, got:\n%s", preamble)
	}
}
