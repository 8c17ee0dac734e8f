package executor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kandra-sh/kandra/internal/plan"
	"github.com/kandra-sh/kandra/internal/tools"
)

// buildPreamble assembles the context preamble described in §4.6b: workspace
// layout, stack DNA, purge report (once), loop warning, failure-reflection
// digest, the current phase, and the tool schemas.
func buildPreamble(rc *runState, phase plan.Phase, purgeReport string, loopWarning string, surface []tools.Tool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "WORKSPACE LAYOUT\n")
	fmt.Fprintf(&b, "- source/ is a read-only reference copy of the original repository; never write to it.\n")
	fmt.Fprintf(&b, "- target/ is your working directory; all tool paths are relative to it.\n\n")

	fmt.Fprintf(&b, "STACK\n")
	fmt.Fprintf(&b, "- target stack: %s\n", rc.plan.Transformation.TargetStack)
	if lock := rc.plan.LanguageLockWhitelist(); lock != nil {
		exts := make([]string, 0, len(lock))
		for ext := range lock {
			exts = append(exts, ext)
		}
		fmt.Fprintf(&b, "- language lock active: only %s files may be written\n", strings.Join(exts, ", "))
	}
	b.WriteString("\n")

	if purgeReport != "" {
		fmt.Fprintf(&b, "PURGE REPORT\n%s\n\n", purgeReport)
	}

	// migration_notes is a planner extension the typed Plan struct doesn't
	// model; surface it when present rather than silently dropping it.
	if notes := rc.plan.RawField("migration_notes"); notes.Exists() && notes.String() != "" {
		fmt.Fprintf(&b, "MIGRATION NOTES\n%s\n\n", notes.String())
	}

	if loopWarning != "" {
		fmt.Fprintf(&b, "WARNING\n%s\n\n", loopWarning)
	}

	if len(rc.lessons) > 0 {
		fmt.Fprintf(&b, "LESSONS LEARNED\n")
		start := 0
		if len(rc.lessons) > 3 {
			start = len(rc.lessons) - 3
		}
		for _, lesson := range rc.lessons[start:] {
			fmt.Fprintf(&b, "- %s\n", lesson)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "PHASE: %s\n%s\n", phase.Title, phase.Description)
	if len(phase.Instructions) > 0 {
		fmt.Fprintf(&b, "Instructions:\n")
		for _, instr := range phase.Instructions {
			fmt.Fprintf(&b, "- %s\n", instr)
		}
	}
	if len(phase.Tasks) > 0 {
		fmt.Fprintf(&b, "Tasks:\n")
		for _, task := range phase.Tasks {
			fmt.Fprintf(&b, "- %s\n", task)
		}
	}
	if len(phase.FilesImpacted) > 0 {
		fmt.Fprintf(&b, "Impacted files:\n")
		for _, f := range phase.FilesImpacted {
			fmt.Fprintf(&b, "  %s -> %s (%s)\n", f.Source, f.Target, f.Reason)
		}
	}
	if len(phase.Verification.TestCommands) > 0 {
		fmt.Fprintf(&b, "Verification commands: %s\n", strings.Join(phase.Verification.TestCommands, "; "))
		if phase.Verification.SuccessCriteria != "" {
			fmt.Fprintf(&b, "Success criteria: %s\n", phase.Verification.SuccessCriteria)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "TOOLS\n")
	schemas := make(map[string]any, len(surface))
	for _, t := range surface {
		schemas[t.Name()] = map[string]any{
			"description": t.Description(),
			"input_schema": t.InputSchema(),
		}
	}
	schemaJSON, _ := json.MarshalIndent(schemas, "", "  ")
	b.Write(schemaJSON)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Respond with a single JSON object: "+
		`{"thought": "...", "tool": "<one of %s>", "args": {...}, "status": "complete|incomplete|blocked"}`+
		". Use tool when you have a concrete next action; use status when the phase is finished or you "+
		"cannot proceed. What is your next action?\n", toolNames(surface))

	return b.String()
}

func toolNames(surface []tools.Tool) string {
	names := make([]string, len(surface))
	for i, t := range surface {
		names[i] = t.Name()
	}
	return strings.Join(names, ", ")
}
