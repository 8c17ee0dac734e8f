package executor

import (
	"context"
	"strings"

	"github.com/kandra-sh/kandra/internal/plan"
	"github.com/kandra-sh/kandra/internal/shell"
)

// failureIndicators are substrings whose presence in a test command's
// combined output marks the run as failed, per §4.6f, unless the "0
// failures" exemption also appears.
var failureIndicators = []string{
	"FAILURES", "FAILED (", "Tests failed", "Test failed", "Error:", "✗", "✖",
}

const failureExemption = "0 failures"

// outputIndicatesFailure implements the failure-detection rule shared by
// the completion branch (§4.6f) and the heuristic test gate (§4.6.5).
func outputIndicatesFailure(output string) bool {
	if strings.Contains(output, failureExemption) {
		return false
	}
	for _, ind := range failureIndicators {
		if strings.Contains(output, ind) {
			return true
		}
	}
	return false
}

// canonicalTestCommand maps a test_framework name to its invocation, per
// §4.6.5's precedence rule (1).
func canonicalTestCommand(framework, packageManager string) string {
	switch strings.ToLower(framework) {
	case "pytest":
		return "./.venv/bin/pytest"
	case "unittest":
		return "./.venv/bin/python -m unittest discover tests"
	case "jest", "vitest", "mocha", "tap":
		pm := packageManager
		if pm == "" {
			pm = "npm"
		}
		return pm + " test"
	case "go test":
		return "go test ./..."
	case "cargo test":
		return "cargo test"
	default:
		return ""
	}
}

// inferTestCommand implements precedence rule (2): infer a test command
// from the free-text target stack when no recognized test_framework was
// given.
func inferTestCommand(targetStack string) string {
	s := strings.ToLower(targetStack)
	switch {
	case strings.Contains(s, "python"):
		return "./.venv/bin/pytest"
	case strings.Contains(s, "go"):
		return "go test ./..."
	case strings.Contains(s, "rust"):
		return "cargo test"
	case strings.Contains(s, "ruby"):
		return "bundle exec rspec"
	case strings.Contains(s, "java") || strings.Contains(s, "spring"):
		return "./mvnw test"
	case strings.Contains(s, "node") || strings.Contains(s, "typescript") || strings.Contains(s, "javascript"):
		return "npm test"
	default:
		return ""
	}
}

// gateResult is the outcome of running the heuristic test gate.
type gateResult struct {
	Ran    bool
	Passed bool
	Output string
}

// runHeuristicGate implements §4.6.5: choose a command by precedence and
// run it, treating its output with the same failure-detection rule as the
// completion branch. If no command can be chosen, the gate is skipped with
// success.
func runHeuristicGate(ctx context.Context, targetDir string, p *plan.Plan) (gateResult, error) {
	cmd := canonicalTestCommand(p.Transformation.TestFramework, p.Transformation.PackageManager)
	if cmd == "" {
		cmd = inferTestCommand(p.Transformation.TargetStack)
	}
	if cmd == "" {
		return gateResult{Ran: false, Passed: true}, nil
	}

	res, err := shell.Run(ctx, targetDir, cmd, 0)
	if err != nil {
		return gateResult{}, err
	}
	output := res.CombinedOutput()
	return gateResult{
		Ran:    true,
		Passed: res.ExitCode == 0 && !outputIndicatesFailure(output),
		Output: output,
	}, nil
}

// phaseImpliesTesting reports whether a phase's title suggests it is a
// testing/verification phase, per §4.6 phase 2 ("only if phase title
// implies testing/verification") and §4.6f's fallback gate trigger.
func phaseImpliesTesting(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "test") || strings.Contains(t, "verif") || strings.Contains(t, "qa")
}
