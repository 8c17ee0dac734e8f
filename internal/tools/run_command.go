package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kandra-sh/kandra/internal/shell"
)

// RunCommandTool implements the run_command primitive from spec §4.2.
type RunCommandTool struct {
	ctx *Context
}

// NewRunCommandTool constructs the run_command tool.
func NewRunCommandTool(ctx *Context) *RunCommandTool {
	return &RunCommandTool{ctx: ctx}
}

// Name implements Tool.
func (t *RunCommandTool) Name() string { return "run_command" }

// Description implements Tool.
func (t *RunCommandTool) Description() string {
	return "Run a shell command inside the workspace, with readiness and interactive-prompt detection."
}

// InputSchema implements Tool.
func (t *RunCommandTool) InputSchema() map[string]any {
	return NewSchema().
		AddString("command", "The shell command line to run.").
		AddOptionalInteger("timeout", "Timeout override in seconds.", 0).
		Build()
}

type runCommandInput struct {
	Command string `json:"command"`
	Timeout *int   `json:"timeout"`
}

// Execute implements Tool.
func (t *RunCommandTool) Execute(ctx context.Context, input json.RawMessage) (Result, error) {
	var in runCommandInput
	if err := json.Unmarshal(input, &in); err != nil {
		return ErrorResult("invalid input: " + err.Error()), nil
	}
	if strings.TrimSpace(in.Command) == "" {
		return ErrorResult("command is required"), nil
	}

	var callerTimeout time.Duration
	if in.Timeout != nil && *in.Timeout > 0 {
		callerTimeout = time.Duration(*in.Timeout) * time.Second
	}

	res, err := shell.Run(ctx, t.ctx.Workspace.Target, in.Command, callerTimeout)
	if err != nil {
		if errors.Is(err, shell.ErrSandboxEscape) {
			return ErrorResult(err.Error()), nil
		}
		return ErrorResult(fmt.Sprintf("running command: %v", err)), nil
	}

	result := Result{Content: t.renderOutput(res), Metadata: map[string]any{}}

	switch {
	case res.Hung:
		result.IsError = true
		result.Content = fmt.Sprintf("%s\n\ninteractive prompt detected: %s (use non-interactive flags, e.g. --yes, -y, --non-interactive)", result.Content, res.HangReason)
		result.Metadata["hung"] = true
		result.Metadata["hang_reason"] = res.HangReason
	case res.TimedOut:
		result.IsError = true
		result.Content = fmt.Sprintf("%s\n\ncommand timed out", result.Content)
		result.Metadata["timed_out"] = true
	case res.ExitCode != 0:
		result.IsError = true
	}

	if res.Ready {
		result.Metadata["ready"] = true
	}

	if res.SourceLeak {
		if res.ExitCode != 0 || res.Hung || res.TimedOut {
			result.IsError = true
			result.Content += "\n\ncritical: output references the read-only source/ directory"
		} else {
			result.Content += "\n\nwarning: output references the read-only source/ directory"
		}
		result.Metadata["source_leak"] = true
	}

	if warnings, auditErr := AuditLanguageLock(t.ctx.Workspace, t.ctx.LanguageLock); auditErr == nil && len(warnings) > 0 {
		result.Metadata["language_lock_warnings"] = warnings
	}

	result.Metadata["exit_code"] = res.ExitCode
	return result, nil
}

func (t *RunCommandTool) renderOutput(res *shell.Result) string {
	out := res.CombinedOutput()
	if out == "" {
		return fmt.Sprintf("(no output, exit code %d)", res.ExitCode)
	}
	return out
}
