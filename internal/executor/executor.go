// Package executor implements the Executor Agent (C6): the ReAct loop that
// drives an LLM against the four-tool surface to carry out a Migration
// Plan's phases, with loop/hallucination detection, grounding-on-repeated-
// failure, and a watchdog. Grounded on detent's internal/heal/loop
// (HealLoop.Run's iterate-call-dispatch shape, token/cost accounting) and
// internal/heal/tools (tool registry dispatch), generalized from "heal a CI
// failure" to "execute a migration plan phase by phase" per spec §4.6.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/kandra-sh/kandra/internal/emitter"
	"github.com/kandra-sh/kandra/internal/llm"
	"github.com/kandra-sh/kandra/internal/plan"
	"github.com/kandra-sh/kandra/internal/shell"
	"github.com/kandra-sh/kandra/internal/tools"
	"github.com/kandra-sh/kandra/internal/workspace"
)

const (
	defaultMaxSteps       = 50
	historyTruncateBytes  = 2048
	historyTrimAfterStep  = 40
	historyTrimKeepTurns  = 30
	groundingFailureLimit = 2
)

// ErrPhaseAborted signals the executor gave up on a phase via the
// give-up branch (§4.6g) — the caller fails the job.
var ErrPhaseAborted = errors.New("executor: phase aborted by agent")

// turn is one (action, observation) pair kept in the running history.
type turn struct {
	actionJSON  string
	observation string
}

// runState is the mutable state threaded through one execute_plan call.
type runState struct {
	jobID     string
	plan      *plan.Plan
	workspace *workspace.Workspace
	toolCtx   *tools.Context
	surface   []tools.Tool
	wrapper   commandWrapper

	history []turn
	lessons []string

	lastActions     []string // canonicalized (tool, args) for loop detection
	lastThought     string
	lastFailedCmd   string
	failureStreak   int

	step  int
	phase int

	activity *activityTracker
}

// Executor drives execute_plan(plan) against a language model and a
// workspace's tool surface.
type Executor struct {
	llm      llm.Client
	model    string
	emit     *emitter.Emitter
	maxSteps int
}

// New constructs an Executor.
func New(client llm.Client, model string, emit *emitter.Emitter, maxSteps int) *Executor {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Executor{llm: client, model: model, emit: emit, maxSteps: maxSteps}
}

// ExecutePlan is the entry point named in §4.6: execute_plan(plan). It runs
// every phase in order inside ws, emitting the executor's event taxonomy,
// and returns an error (job FAILED) only when a phase is aborted or an
// unexpected error occurs.
func (e *Executor) ExecutePlan(ctx context.Context, jobID string, ws *workspace.Workspace, p *plan.Plan) (err error) {
	languageLock := p.LanguageLockWhitelist()
	toolCtx := &tools.Context{Workspace: ws, LanguageLock: languageLock}
	surface := tools.NewSurface(toolCtx)

	rc := &runState{
		jobID:     jobID,
		plan:      p,
		workspace: ws,
		toolCtx:   toolCtx,
		surface:   surface,
		wrapper:   wrapperFor(p.Transformation.TargetStack),
		activity:  newActivityTracker(),
	}

	watchdog := newWatchdog(e.emit, jobID, rc.activity)
	wdCtx, stopWatchdog := context.WithCancel(ctx)
	go watchdog.run(wdCtx)
	defer stopWatchdog()

	ensureVenv(ctx, rc)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: panic: %v", r)
		}
		if err != nil {
			e.emitEvent(ctx, jobID, "execution_error", map[string]any{"error": err.Error()})
			return
		}
		e.emitEvent(ctx, jobID, "execution_complete", map[string]any{"job_id": jobID})
	}()

	for i, phase := range p.Phases {
		rc.phase = i
		rc.step = 0
		rc.history = nil
		rc.lastActions = nil
		rc.lastThought = ""
		rc.lastFailedCmd = ""
		rc.failureStreak = 0

		rc.activity.set("starting_phase", fmt.Sprintf("phase %d: %s", phase.ID, phase.Title))
		e.emitEvent(ctx, jobID, "phase_started", map[string]any{"phase_id": phase.ID, "title": phase.Title})

		if perr := e.runPhase(ctx, rc, phase); perr != nil {
			e.emitEvent(ctx, jobID, "phase_error", map[string]any{"phase_id": phase.ID, "error": perr.Error()})
			return perr
		}

		e.emitEvent(ctx, jobID, "phase_completed", map[string]any{"phase_id": phase.ID, "title": phase.Title})
	}

	return nil
}

// runPhase executes steps 1-3 of §4.6's "Phase execution": purge, pre-gate,
// then the bounded step loop.
func (e *Executor) runPhase(ctx context.Context, rc *runState, phase plan.Phase) error {
	purgeReport, purgedCount, err := purgeForeignCode(rc.workspace, rc.plan.LanguageLockWhitelist())
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	if purgeReport != "" {
		e.emitEvent(ctx, rc.jobID, "cleanup_status", map[string]any{
			"phase_id":     phase.ID,
			"report":       purgeReport,
			"purged_count": purgedCount,
		})
	}

	var pregateObservation string
	if phaseImpliesTesting(phase.Title) {
		gate, gerr := runHeuristicGate(ctx, rc.workspace.Target, rc.plan)
		if gerr == nil && gate.Ran && !gate.Passed {
			pregateObservation = "baseline check failed before this phase began:\n" + gate.Output
		}
	}

	loopWarning := ""
	for rc.step < e.maxSteps {
		rc.step++
		rc.activity.set("waiting_for_llm", fmt.Sprintf("phase %d step %d", phase.ID, rc.step))

		preamble := buildPreamble(rc, phase, purgeReport, loopWarning, rc.surface)
		purgeReport = "" // report only once, on the phase's first prompt
		loopWarning = ""

		userTurn := preamble
		if pregateObservation != "" {
			userTurn = pregateObservation + "\n\n" + preamble
			pregateObservation = ""
		}

		action, rawText, usage, err := e.callLLM(ctx, rc, userTurn)
		if err != nil {
			return fmt.Errorf("step %d: %w", rc.step, err)
		}
		_ = usage

		// d. Thought-loop check.
		if rc.lastThought != "" && similarityRatio(rc.lastThought, action.Thought) > thoughtLoopThreshold {
			loopWarning = "THOUGHT LOOP DETECTED: your reasoning has not changed in the last step. Try a different approach."
		}
		rc.lastThought = action.Thought

		// a. Loop detection (on the *previous* three actions) was applied when
		// building this preamble; now record this action's canonical form.
		canon := action.Tool + "|" + action.canonicalArgs()
		rc.lastActions = append(rc.lastActions, canon)
		if len(rc.lastActions) >= 3 {
			n := len(rc.lastActions)
			if rc.lastActions[n-1] == rc.lastActions[n-2] && rc.lastActions[n-2] == rc.lastActions[n-3] {
				if loopWarning == "" {
					loopWarning = "TOOL LOOP DETECTED: the last three actions were identical. Try something different."
				}
			}
		}

		// e. Hallucination check.
		if action.Tool == "" && !validStatus(action.Status) {
			loopWarning = appendWarning(loopWarning, "you must either call a tool or report status complete/incomplete/blocked.")
			e.recordTurn(rc, rawText, "(no tool or status recognized)")
			continue
		}

		// f/g. Status branches.
		if validStatus(action.Status) && action.Tool == "" {
			switch action.Status {
			case statusComplete:
				ok, observation, gerr := e.verifyCompletion(ctx, rc, phase)
				if gerr != nil {
					return gerr
				}
				if ok {
					return nil
				}
				rc.lessons = append(rc.lessons, summarizeFailure(observation))
				e.recordTurn(rc, rawText, observation)
				continue
			case statusIncomplete, statusBlocked:
				return fmt.Errorf("%w: %s (%s)", ErrPhaseAborted, action.Thought, action.Status)
			}
		}

		// h. Tool branch.
		observation := e.dispatchTool(ctx, rc, phase, action, rawText)
		e.recordTurn(rc, rawText, observation)
	}

	return fmt.Errorf("phase %d: max steps (%d) exceeded", phase.ID, e.maxSteps)
}

// verifyCompletion implements §4.6f's completion branch.
func (e *Executor) verifyCompletion(ctx context.Context, rc *runState, phase plan.Phase) (bool, string, error) {
	if len(phase.Verification.TestCommands) > 0 {
		var failOutput string
		for _, cmd := range phase.Verification.TestCommands {
			res, err := e.runCommand(ctx, rc, cmd)
			if err != nil {
				return false, "", err
			}
			if res.ExitCode != 0 || outputIndicatesFailure(res.CombinedOutput()) {
				failOutput = tail(res.CombinedOutput(), 1024)
				break
			}
		}
		if failOutput != "" {
			return false, failOutput, nil
		}
		return true, "", nil
	}

	if phaseImpliesTesting(phase.Title) {
		gate, err := runHeuristicGate(ctx, rc.workspace.Target, rc.plan)
		if err != nil {
			return false, "", err
		}
		if gate.Ran && !gate.Passed {
			return false, tail(gate.Output, 1024), nil
		}
	}

	return true, "", nil
}

func (e *Executor) runCommand(ctx context.Context, rc *runState, command string) (*shell.Result, error) {
	wrapped := rc.wrapper(rc.workspace.Target, command)
	return shell.Run(ctx, rc.workspace.Target, wrapped, 0)
}

func appendWarning(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + " " + add
}

func summarizeFailure(observation string) string {
	line := strings.SplitN(observation, "\n", 2)[0]
	if len(line) > 160 {
		line = line[:160] + "..."
	}
	return line
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// emitEvent is a thin wrapper that logs emitter failures without failing
// the executor's own control flow — per §4.5, emit failures are already
// swallowed for the bus; this additionally tolerates a log-append error
// surfacing mid-phase rather than aborting the migration over a telemetry
// miss.
func (e *Executor) emitEvent(ctx context.Context, jobID, eventType string, payload any) {
	if _, err := e.emit.Emit(ctx, jobID, eventType, payload); err != nil {
		log.Printf("executor: emitting %s for job %s: %v", eventType, jobID, err)
	}
}

// callLLM issues the LLM request, parses the action JSON, and retries once
// on a parse failure with a corrective nudge (the model is told its last
// reply wasn't valid JSON).
func (e *Executor) callLLM(ctx context.Context, rc *runState, userTurn string) (Action, string, llm.Usage, error) {
	system := systemPrompt(rc)
	messages := rc.history

	prompt := renderConversation(messages, userTurn)

	text, usage, err := e.llm.Complete(ctx, e.model, system, prompt)
	if err != nil {
		return Action{}, "", usage, err
	}

	action, perr := parseAction(text)
	if perr != nil {
		retryPrompt := prompt + "\n\nYour previous reply was not a single valid JSON object. Reply with ONLY the JSON object."
		text2, usage2, err2 := e.llm.Complete(ctx, e.model, system, retryPrompt)
		if err2 != nil {
			return Action{}, "", usage, err2
		}
		usage.Add(usage2.TokenUsage)
		action, perr = parseAction(text2)
		if perr != nil {
			return Action{}, "", usage, fmt.Errorf("model did not return a parseable action: %w", perr)
		}
		text = text2
	}

	return action, text, usage, nil
}

func systemPrompt(rc *runState) string {
	return "You are the execution agent for an automated code migration. " +
		"You act strictly through the four tools described in the prompt, one action per turn. " +
		"Target stack: " + rc.plan.Transformation.TargetStack
}

// renderConversation merges the running history and the latest user turn
// into a single prompt. Per §4.6b, on turn 1 the preamble is the sole user
// turn; on later turns it is appended to the transcript so the model sees
// its own prior actions and observations, while still presenting a single
// request (this executor calls a plain completion endpoint, not the
// multi-turn Messages API, per the opaque llm.Client contract).
func renderConversation(history []turn, latestUserTurn string) string {
	if len(history) == 0 {
		return latestUserTurn
	}
	var b strings.Builder
	for i, t := range history {
		fmt.Fprintf(&b, "--- step %d action ---\n%s\n--- step %d observation ---\n%s\n\n", i+1, t.actionJSON, i+1, t.observation)
	}
	b.WriteString(latestUserTurn)
	return b.String()
}

// recordTurn implements §4.6j's history maintenance.
func (e *Executor) recordTurn(rc *runState, actionJSON, observation string) {
	rc.history = append(rc.history, turn{
		actionJSON:  actionJSON,
		observation: truncateWithEllipsis(observation, historyTruncateBytes),
	})
	if rc.step > historyTrimAfterStep && len(rc.history) > historyTrimKeepTurns {
		rc.history = rc.history[len(rc.history)-historyTrimKeepTurns:]
	}
}

func truncateWithEllipsis(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + " ...[truncated]"
}
