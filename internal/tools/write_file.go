package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kandra-sh/kandra/internal/workspace"
)

// WriteFileTool implements the write_file primitive from spec §4.1/§4.2.
type WriteFileTool struct {
	ctx *Context
}

// NewWriteFileTool constructs the write_file tool.
func NewWriteFileTool(ctx *Context) *WriteFileTool {
	return &WriteFileTool{ctx: ctx}
}

// Name implements Tool.
func (t *WriteFileTool) Name() string { return "write_file" }

// Description implements Tool.
func (t *WriteFileTool) Description() string {
	return "Write (creating or overwriting) a file under the workspace, relative to the workspace root."
}

// InputSchema implements Tool.
func (t *WriteFileTool) InputSchema() map[string]any {
	return NewSchema().
		AddString("path", "File to write, relative to the workspace root.").
		AddString("content", "The full contents to write.").
		Build()
}

type writeFileInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Execute implements Tool.
func (t *WriteFileTool) Execute(_ context.Context, input json.RawMessage) (Result, error) {
	var in writeFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return ErrorResult("invalid input: " + err.Error()), nil
	}
	if in.Path == "" {
		return ErrorResult("path is required"), nil
	}

	// Reject attempts to smuggle a reference to the read-only source/
	// sibling into target/ before anything touches disk, per §4.1/§4.2.
	if workspace.ContainsSourceLeak(in.Path) || workspace.ContainsSourceLeak(in.Content) {
		return ErrorResult("refusing to write: content references the read-only source/ directory"), nil
	}

	abs, err := t.ctx.Workspace.ResolveInTarget(in.Path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("sandbox violation: %v", err)), nil
	}

	warning := t.languageLockNotice(in.Path)

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return ErrorResult(fmt.Sprintf("creating parent directories: %v", err)), nil
	}
	if err := os.WriteFile(abs, []byte(in.Content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("writing file: %v", err)), nil
	}

	result := SuccessResult(fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path)).
		WithMetadata("file_modified", in.Path)
	if warning != "" {
		result = result.WithMetadata("warning", warning)
	}
	return result, nil
}

// languageLockNotice returns a non-empty relaxed-mode warning when path's
// extension is a foreign-code extension not present in the active Language
// Lock whitelist. Per spec §4.1 point 3, this never blocks the write — it
// only surfaces the warning in the result's metadata.
func (t *WriteFileTool) languageLockNotice(path string) string {
	if t.ctx.LanguageLock == nil {
		return ""
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if isAlwaysAllowed(base, ext) {
		return ""
	}
	if !isCodeFile(ext) {
		return ""
	}
	if t.ctx.LanguageLock[ext] {
		return ""
	}
	return fmt.Sprintf("language lock: %q is not in the allowed extensions for this migration (relaxed mode, write allowed)", ext)
}
