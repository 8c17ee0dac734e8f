package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kandra-sh/kandra/internal/plan"
	"github.com/kandra-sh/kandra/internal/tools"
)

// dispatchTool implements §4.6h/i: look up the named tool, apply the smart
// command wrapper for run_command, call it, emit the per-tool events, and
// run the grounding-on-repeated-failure logic before returning the
// observation text handed back to the model.
func (e *Executor) dispatchTool(ctx context.Context, rc *runState, phase plan.Phase, action Action, rawText string) string {
	rc.activity.set("executing_tool", action.Tool)
	e.emitEvent(ctx, rc.jobID, "agent_thought", map[string]any{
		"phase_id": phase.ID, "step": rc.step, "thought": action.Thought,
	})

	tool := tools.Lookup(rc.surface, action.Tool)
	if tool == nil {
		return fmt.Sprintf("unknown tool %q; the available tools are list_dir, read_file, write_file, run_command", action.Tool)
	}

	args := action.filteredArgs()
	if action.Tool == "run_command" {
		if cmd, ok := args["command"].(string); ok {
			args["command"] = rc.wrapper(rc.workspace.Target, cmd)
		}
	}

	input, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("internal error encoding tool arguments: %v", err)
	}

	result, err := tool.Execute(ctx, json.RawMessage(input))
	if err != nil {
		return fmt.Sprintf("internal error running %s: %v", action.Tool, err)
	}

	switch action.Tool {
	case "run_command":
		cmd, _ := args["command"].(string)
		e.emitEvent(ctx, rc.jobID, "terminal_output", map[string]any{
			"phase_id": phase.ID, "command": cmd, "output": result.Content, "is_error": result.IsError,
		})
		return e.applyGrounding(ctx, rc, cmd, result)
	case "write_file":
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		e.emitEvent(ctx, rc.jobID, "file_modified", map[string]any{
			"phase_id": phase.ID, "path": path, "content": content,
		})
	}

	if !result.IsError {
		rc.activity.markSuccess(fmt.Sprintf("%s (phase %d step %d)", action.Tool, phase.ID, rc.step))
	}
	return result.Content
}

// applyGrounding implements §4.6i. On the second consecutive failure of the
// identical command text, it asks the LLM's grounded variant for a fix and
// injects the response as an observation prefix; otherwise it returns the
// tool's own output unchanged.
func (e *Executor) applyGrounding(ctx context.Context, rc *runState, command string, result tools.Result) string {
	if !result.IsError {
		rc.lastFailedCmd = ""
		rc.failureStreak = 0
		return result.Content
	}

	if command == rc.lastFailedCmd {
		rc.failureStreak++
	} else {
		rc.lastFailedCmd = command
		rc.failureStreak = 1
	}

	if rc.failureStreak < groundingFailureLimit {
		return result.Content
	}

	prompt := fmt.Sprintf(
		"A migration agent's command failed repeatedly.\nTarget stack: %s\nPackage manager: %s\nCommand: %s\nError output:\n%s\nWhat is the likely fix?",
		rc.plan.Transformation.TargetStack, rc.plan.Transformation.PackageManager, command, result.Content,
	)

	suggestion, sources, _, err := e.llm.CompleteGrounded(ctx, e.model, prompt)
	rc.failureStreak = 0
	if err != nil || suggestion == "" {
		return result.Content
	}

	// §4.6i caps grounding citations at three, regardless of how many the
	// search returned.
	if len(sources) > 3 {
		sources = sources[:3]
	}

	observation := result.Content + "\n\nSOLUTION SUGGESTION (from web search): " + suggestion
	for _, src := range sources {
		observation += "\nsource: " + src
	}
	return observation
}
