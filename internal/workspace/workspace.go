// Package workspace creates and manages the fixed on-disk layout described
// in spec §3/§5: source/ (read-only clone), target/ (the agent's sandbox
// root), .kandra/ (scratch), reports/ (audit JSON). It is adapted from
// detent's path-sanitizing, directory-creation idioms in
// internal/persistence/config.go and internal/git/worktree.go, generalized
// from "one repo, one detent.json" to "one job, four fixed subdirectories".
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// SourceDir is the read-only clone of the input repository.
	SourceDir = "source"
	// TargetDir is the agent's working directory and tool sandbox root.
	TargetDir = "target"
	// MetaDir is scratch/meta state, not reachable by the agent's tools.
	MetaDir = ".kandra"
	// ReportsDir holds audit JSON produced by the (external) audit stage.
	ReportsDir = "reports"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeName turns an arbitrary repo short name into a filesystem-safe
// directory component, collapsing runs of unsafe characters to a single
// hyphen the way detent's worktree naming does for branch names.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "job"
	}
	sanitized := unsafeNameChars.ReplaceAllString(name, "-")
	sanitized = strings.Trim(sanitized, "-")
	if sanitized == "" {
		sanitized = "job"
	}
	return sanitized
}

// Workspace is a handle to one job's on-disk layout.
type Workspace struct {
	Root    string
	Source  string
	Target  string
	Meta    string
	Reports string
}

// New creates the fixed layout under <base>/<sanitized-repo>[-session]/.
// It does not clone the source repository (out of scope per spec §1) —
// callers populate source/ themselves before the Executor runs; New only
// guarantees the four directories exist and that target/ starts out empty,
// per "resets target on each run".
func New(base, shortName, session string) (*Workspace, error) {
	dirName := SanitizeName(shortName)
	if session != "" {
		dirName = dirName + "-" + SanitizeName(session)
	}
	root := filepath.Join(base, dirName)

	ws := &Workspace{
		Root:    root,
		Source:  filepath.Join(root, SourceDir),
		Target:  filepath.Join(root, TargetDir),
		Meta:    filepath.Join(root, MetaDir),
		Reports: filepath.Join(root, ReportsDir),
	}

	for _, dir := range []string{ws.Source, ws.Target, ws.Meta, ws.Reports} {
		// #nosec G301 - workspace directories are per-job working state, not secrets
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating workspace directory %s: %w", dir, err)
		}
	}
	if err := ws.ResetTarget(); err != nil {
		return nil, err
	}

	return ws, nil
}

// ResetTarget empties target/ without touching source/, .kandra/, or
// reports/ — "resets target on each run" from spec §4.2 component table.
func (w *Workspace) ResetTarget() error {
	entries, err := os.ReadDir(w.Target)
	if err != nil {
		if os.IsNotExist(err) {
			// #nosec G301 - see New
			return os.MkdirAll(w.Target, 0o755)
		}
		return fmt.Errorf("reading target directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(w.Target, entry.Name())); err != nil {
			return fmt.Errorf("removing %s from target: %w", entry.Name(), err)
		}
	}
	return nil
}

// ResolveInTarget resolves a relative path against target/ and verifies the
// result remains a descendant of target/, per the Sandbox invariant in §8.
// It is the one path-validation routine the file tools (list_dir,
// read_file, write_file) funnel through.
func (w *Workspace) ResolveInTarget(relPath string) (string, error) {
	cleaned := filepath.Clean(relPath)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("absolute paths are not allowed: %q", relPath)
	}

	abs := filepath.Join(w.Target, cleaned)
	rel, err := filepath.Rel(w.Target, abs)
	if err != nil {
		return "", fmt.Errorf("resolving %q under target: %w", relPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the sandbox", relPath)
	}
	return abs, nil
}

// ContainsSourceLeak reports whether s references the sibling source/
// directory via the relative path the agent would have to use to reach it
// from inside target/ — the substring check named explicitly in spec §4.1
// and §4.2 ("if content contains the substring ../source").
func ContainsSourceLeak(s string) bool {
	return strings.Contains(s, "../"+SourceDir)
}
