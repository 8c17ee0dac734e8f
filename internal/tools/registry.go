package tools

// NewSurface builds the fixed four-tool surface from spec §4.1, in the
// canonical order the Executor's prompt preamble lists them.
func NewSurface(ctx *Context) []Tool {
	return []Tool{
		NewListDirTool(ctx),
		NewReadFileTool(ctx),
		NewWriteFileTool(ctx),
		NewRunCommandTool(ctx),
	}
}

// Lookup returns the named tool from a surface, or nil if absent.
func Lookup(surface []Tool, name string) Tool {
	for _, tool := range surface {
		if tool.Name() == name {
			return tool
		}
	}
	return nil
}
