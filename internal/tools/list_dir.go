package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const defaultMaxDepth = 2

// ListDirTool implements the list_dir primitive from spec §4.1.
type ListDirTool struct {
	ctx *Context
}

// NewListDirTool constructs the list_dir tool.
func NewListDirTool(ctx *Context) *ListDirTool {
	return &ListDirTool{ctx: ctx}
}

// Name implements Tool.
func (t *ListDirTool) Name() string { return "list_dir" }

// Description implements Tool.
func (t *ListDirTool) Description() string {
	return "List files and directories under a path (relative to the workspace root), indented by depth."
}

// InputSchema implements Tool.
func (t *ListDirTool) InputSchema() map[string]any {
	return NewSchema().
		AddOptionalString("path", "Directory to list, relative to the workspace root. Defaults to \".\".").
		AddOptionalInteger("max_depth", "How many levels deep to recurse. Defaults to 2.", defaultMaxDepth).
		Build()
}

type listDirInput struct {
	Path     string `json:"path"`
	MaxDepth *int   `json:"max_depth"`
}

// Execute implements Tool.
func (t *ListDirTool) Execute(_ context.Context, input json.RawMessage) (Result, error) {
	var in listDirInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return ErrorResult("invalid input: " + err.Error()), nil
		}
	}
	if in.Path == "" {
		in.Path = "."
	}
	maxDepth := defaultMaxDepth
	if in.MaxDepth != nil && *in.MaxDepth > 0 {
		maxDepth = *in.MaxDepth
	}

	root, err := t.ctx.Workspace.ResolveInTarget(in.Path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("sandbox violation: %v", err)), nil
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("not found: %s", in.Path)), nil
		}
		return ErrorResult(err.Error()), nil
	}
	if !info.IsDir() {
		return ErrorResult(fmt.Sprintf("not a directory: %s", in.Path)), nil
	}

	var b strings.Builder
	if err := walk(root, 0, maxDepth, &b); err != nil {
		return ErrorResult(err.Error()), nil
	}

	content := b.String()
	if content == "" {
		content = "(empty directory)\n"
	}
	return SuccessResult(content), nil
}

// listDirIgnoreGlobs are entries list_dir never shows, dotfiles plus the
// same build/dependency directories the Language-Lock audit skips.
var listDirIgnoreGlobs = append([]string{".*"}, skipDirGlobs...)

func matchesListDirIgnoreGlob(name string) bool {
	for _, pattern := range listDirIgnoreGlobs {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func walk(dir string, depth, maxDepth int, b *strings.Builder) error {
	if depth > maxDepth {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	indent := strings.Repeat("  ", depth)
	for _, entry := range entries {
		name := entry.Name()
		if matchesListDirIgnoreGlob(name) {
			continue
		}
		if entry.IsDir() {
			fmt.Fprintf(b, "%s%s/\n", indent, name)
			if depth < maxDepth {
				if err := walk(filepath.Join(dir, name), depth+1, maxDepth, b); err != nil {
					return err
				}
			}
		} else {
			fmt.Fprintf(b, "%s%s\n", indent, name)
		}
	}
	return nil
}
