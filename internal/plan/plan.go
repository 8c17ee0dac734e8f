// Package plan defines the Migration Plan shape that the (external) planner
// emits as the payload of a plan_complete event. The Agent Action shape the
// Executor Agent parses back from the LLM lives in internal/executor.
//
// Plans are open JSON trees per spec §9's "event payload polymorphism" design
// note: runtime code must tolerate unknown keys. Rather than hand-roll a
// second loose-JSON type per shape, unknown-key tolerance and optional-field
// probing are done with github.com/tidwall/gjson, the way the rest of the
// pack (detent's tools/registry.go indirect dependency) already pulls it in
// for exactly this kind of "read what I need, ignore the rest" JSON access.
package plan

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Summary is the plan's human-facing headline.
type Summary struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Confidence         int    `json:"confidence"`
	EstimatedDuration  string `json:"estimated_duration"`
	RiskLevel          string `json:"risk_level"`
}

// Transformation describes the source-to-target migration shape.
type Transformation struct {
	SourceStack     string   `json:"source_stack"`
	TargetStack     string   `json:"target_stack"`
	PackageManager  string   `json:"package_manager"`
	TestFramework   string   `json:"test_framework"`
	BuildTool       string   `json:"build_tool"`
	FileExtensions  []string `json:"file_extensions"`
}

// ImpactedFile is one source->target mapping a phase touches.
type ImpactedFile struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// Verification is the gate a phase must pass before it is considered done.
type Verification struct {
	TestCommands    []string `json:"test_commands"`
	SuccessCriteria string   `json:"success_criteria"`
}

// Phase is one named unit of work within a plan.
type Phase struct {
	ID              int            `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Instructions    []string       `json:"instructions"`
	Tasks           []string       `json:"tasks"`
	FilesImpacted   []ImpactedFile `json:"files_impacted"`
	Verification    Verification   `json:"verification"`
}

// DependencyChange is one entry in the add/remove dependency lists.
type DependencyChange struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Dependencies groups the package add/remove lists.
type Dependencies struct {
	Add    []DependencyChange `json:"add"`
	Remove []DependencyChange `json:"remove"`
}

// Plan is the full payload of a plan_complete event.
type Plan struct {
	Summary        Summary        `json:"summary"`
	Transformation Transformation `json:"transformation"`
	Phases         []Phase        `json:"phases"`
	Dependencies   Dependencies   `json:"dependencies"`

	// raw keeps the original bytes so unrecognized top-level keys survive a
	// round trip through the event log instead of being silently dropped.
	raw []byte
}

// Parse decodes a Plan from JSON, tolerating and preserving unknown fields.
// It enforces the one structural invariant spec.md names explicitly: a plan
// must have at least one phase.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if len(p.Phases) == 0 {
		return nil, fmt.Errorf("parsing plan: at least one phase is required")
	}
	p.raw = append([]byte(nil), data...)
	return &p, nil
}

// RawField reads an arbitrary top-level or dotted field from the plan's
// original JSON, for callers that want to surface planner extensions the
// typed Plan struct doesn't model (new UI fields, experimental phase
// metadata, ...).
func (p *Plan) RawField(path string) gjson.Result {
	return gjson.GetBytes(p.raw, path)
}

// Raw returns the exact bytes the plan was parsed from, suitable for storing
// verbatim as the plan_complete event payload (§3: "the kind plan_complete
// for a job must carry the full plan text in payload").
func (p *Plan) Raw() []byte {
	return p.raw
}

// LanguageLockWhitelist returns the set of allowed file extensions as a
// lookup set, or nil if the plan did not configure one (Language Lock is
// then inactive, per §4.1/§4.2's "if an allowed-extensions list is
// configured").
func (p *Plan) LanguageLockWhitelist() map[string]bool {
	if len(p.Transformation.FileExtensions) == 0 {
		return nil
	}
	set := make(map[string]bool, len(p.Transformation.FileExtensions))
	for _, ext := range p.Transformation.FileExtensions {
		set[ext] = true
	}
	return set
}
