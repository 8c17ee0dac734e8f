// Package tools implements the Tool Surface (C1): list_dir, read_file,
// write_file, run_command, each rooted at a Workspace's target/ directory.
// Grounded on detent's heal/tools package (Tool interface, Context,
// ValidatePath, SchemaBuilder) generalized from "healing a worktree" to
// "migrating into target/" per spec §4.1.
package tools

import (
	"context"
	"encoding/json"

	"github.com/kandra-sh/kandra/internal/workspace"
)

// Tool is the uniform shape every Tool Surface primitive implements.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, input json.RawMessage) (Result, error)
}

// Result is the uniform tool result shape from spec §4.1: free-form output
// text, an error flag (errors are reported values, not raised conditions —
// the agent must be able to read and reason about them), and an optional
// metadata map for scenario-interruption flags (§7 taxonomy item 3).
type Result struct {
	Content  string         `json:"content"`
	IsError  bool           `json:"is_error"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorResult builds a Result carrying an error message.
func ErrorResult(msg string) Result {
	return Result{Content: msg, IsError: true}
}

// SuccessResult builds a successful Result.
func SuccessResult(content string) Result {
	return Result{Content: content}
}

// WithMetadata attaches metadata to a Result and returns it, for chaining.
func (r Result) WithMetadata(key string, value any) Result {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// Context is shared, mutable state every Tool Surface primitive reads: the
// sandbox root (target/, plus the read-only source/ sibling), and the
// active Language Lock whitelist (nil when the plan configured none).
type Context struct {
	Workspace *workspace.Workspace

	// LanguageLock is the set of allowed code file extensions (e.g.
	// ".ts"), or nil if no lock is configured (§4.1's "if an
	// allowed-extensions list is configured").
	LanguageLock map[string]bool
}

// codeExtensions is the fixed set of extensions considered "code" for
// Language Lock purposes, named in spec §4.1. Per the §9 design note this
// should arguably be "any known code extension minus the whitelist" so new
// target languages don't require extending this set in lockstep — left as
// the literal spec set here, since no new language has actually been added
// yet.
var codeExtensions = map[string]bool{
	".js": true, ".ts": true, ".py": true, ".go": true, ".rs": true,
	".java": true, ".rb": true, ".php": true, ".cs": true, ".cpp": true,
	".c": true, ".kt": true, ".swift": true,
}

// metadataExtensions are always allowed regardless of the Language Lock.
var metadataExtensions = map[string]bool{
	".json": true, ".md": true, ".yml": true, ".yaml": true,
	".txt": true, ".lock": true, ".gitignore": true, ".env": true,
	".editorconfig": true,
}

// metadataFilenames are known config filenames always allowed regardless
// of extension or Language Lock — the per-ecosystem manifest files named in
// spec §4.2's post-audit. The *.config.{js,cjs,mjs} family is matched by
// suffix in isAlwaysAllowed.
var metadataFilenames = map[string]bool{
	"pom.xml": true, "Gemfile": true, "Cargo.toml": true, "go.mod": true,
	"go.sum": true, "Dockerfile": true, "Makefile": true,
	"package.json": true, "package-lock.json": true, "tsconfig.json": true,
	"requirements.txt": true, "pyproject.toml": true,
}

// isCodeFile reports whether ext (including the leading dot) is in the
// fixed "foreign code" extension set.
func isCodeFile(ext string) bool {
	return codeExtensions[ext]
}

// isAlwaysAllowed reports whether a file is exempt from the Language Lock
// regardless of its extension, per §4.1/§4.2's metadata allow-list.
func isAlwaysAllowed(base, ext string) bool {
	if metadataExtensions[ext] {
		return true
	}
	if metadataFilenames[base] {
		return true
	}
	if len(base) > len(".config.js") {
		for _, suffix := range []string{".config.js", ".config.cjs", ".config.mjs"} {
			if len(base) >= len(suffix) && base[len(base)-len(suffix):] == suffix {
				return true
			}
		}
	}
	return false
}
