package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// maxReadBytes is the read_file size ceiling from spec §4.1: files larger
// than this are reported as too-large rather than read.
const maxReadBytes = 50 * 1024

// ReadFileTool implements the read_file primitive from spec §4.1.
type ReadFileTool struct {
	ctx *Context
}

// NewReadFileTool constructs the read_file tool.
func NewReadFileTool(ctx *Context) *ReadFileTool {
	return &ReadFileTool{ctx: ctx}
}

// Name implements Tool.
func (t *ReadFileTool) Name() string { return "read_file" }

// Description implements Tool.
func (t *ReadFileTool) Description() string {
	return "Read the contents of a text file under the workspace, relative to the workspace root."
}

// InputSchema implements Tool.
func (t *ReadFileTool) InputSchema() map[string]any {
	return NewSchema().
		AddString("path", "File to read, relative to the workspace root.").
		Build()
}

type readFileInput struct {
	Path string `json:"path"`
}

// Execute implements Tool.
func (t *ReadFileTool) Execute(_ context.Context, input json.RawMessage) (Result, error) {
	var in readFileInput
	if err := json.Unmarshal(input, &in); err != nil {
		return ErrorResult("invalid input: " + err.Error()), nil
	}
	if in.Path == "" {
		return ErrorResult("path is required"), nil
	}

	abs, err := t.ctx.Workspace.ResolveInTarget(in.Path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("sandbox violation: %v", err)), nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(fmt.Sprintf("not found: %s", in.Path)), nil
		}
		return ErrorResult(err.Error()), nil
	}
	if info.IsDir() {
		return ErrorResult(fmt.Sprintf("%s is a directory, not a file", in.Path)), nil
	}
	if info.Size() > maxReadBytes {
		return ErrorResult(fmt.Sprintf("%s is %d bytes, exceeding the %d byte read limit", in.Path, info.Size(), maxReadBytes)), nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	if isBinary(data) {
		return ErrorResult(fmt.Sprintf("%s looks like a binary file and cannot be read as text", in.Path)), nil
	}

	return SuccessResult(string(data)), nil
}

// isBinary is a cheap NUL-byte heuristic over the leading bytes of the file,
// the same sniff length file(1) and most editors use.
func isBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	return bytes.IndexByte(data[:n], 0) != -1
}
