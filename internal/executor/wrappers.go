package executor

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kandra-sh/kandra/internal/shell"
)

// commandWrapper rewrites a raw command line before it reaches the Shell
// Tool, keyed off the target stack, per spec §4.6's "smart command
// wrappers" paragraph.
type commandWrapper func(targetDir, command string) string

var (
	pipCmd    = regexp.MustCompile(`^pip(3)?\b`)
	pythonCmd = regexp.MustCompile(`^python(3)?\b`)
	pytestCmd = regexp.MustCompile(`^pytest\b`)
	gemCmd    = regexp.MustCompile(`^(gem|rake|rails)\b`)
	mvnCmd    = regexp.MustCompile(`^mvn\b`)
	gradleCmd = regexp.MustCompile(`^gradle\b`)
)

func isPythonish(targetStack string) bool {
	s := strings.ToLower(targetStack)
	return strings.Contains(s, "python") || strings.Contains(s, "django") ||
		strings.Contains(s, "flask") || strings.Contains(s, "fastapi")
}

func isRubyish(targetStack string) bool {
	s := strings.ToLower(targetStack)
	return strings.Contains(s, "ruby") || strings.Contains(s, "rails") || strings.Contains(s, "sinatra")
}

func isJavaSpring(targetStack string) bool {
	s := strings.ToLower(targetStack)
	return strings.Contains(s, "java") || strings.Contains(s, "spring") || strings.Contains(s, "kotlin")
}

// wrapperFor returns the command-rewriting function appropriate for
// targetStack. Rust/Go stacks pass commands through unchanged.
func wrapperFor(targetStack string) commandWrapper {
	switch {
	case isPythonish(targetStack):
		return pythonWrapper
	case isRubyish(targetStack):
		return rubyWrapper
	case isJavaSpring(targetStack):
		return javaWrapper
	default:
		return passthroughWrapper
	}
}

func pythonWrapper(_, command string) string {
	if loc := pipCmd.FindStringIndex(command); loc != nil {
		return "./.venv/bin/pip" + command[loc[1]:]
	}
	if loc := pythonCmd.FindStringIndex(command); loc != nil {
		return "./.venv/bin/python" + command[loc[1]:]
	}
	if loc := pytestCmd.FindStringIndex(command); loc != nil {
		return "./.venv/bin/pytest" + command[loc[1]:]
	}
	return command
}

func rubyWrapper(_, command string) string {
	if gemCmd.MatchString(command) {
		return "bundle exec " + command
	}
	return command
}

func javaWrapper(targetDir, command string) string {
	if mvnCmd.MatchString(command) && fileExists(filepath.Join(targetDir, "mvnw")) {
		return "./mvnw" + command[len("mvn"):]
	}
	if gradleCmd.MatchString(command) && fileExists(filepath.Join(targetDir, "gradlew")) {
		return "./gradlew" + command[len("gradle"):]
	}
	return command
}

func passthroughWrapper(_, command string) string { return command }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureVenv creates target/.venv and upgrades pip, best-effort, when the
// target stack is Python-ish and no venv exists yet — run once before the
// first phase, per spec §4.6.
func ensureVenv(ctx context.Context, rc *runState) {
	if !isPythonish(rc.plan.Transformation.TargetStack) {
		return
	}
	venvPath := filepath.Join(rc.workspace.Target, ".venv")
	if fileExists(venvPath) {
		return
	}
	_, _ = shell.Run(ctx, rc.workspace.Target, "python3 -m venv .venv", 0)
	_, _ = shell.Run(ctx, rc.workspace.Target, "./.venv/bin/pip install --upgrade pip", 0)
}
