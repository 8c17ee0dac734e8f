package tools

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kandra-sh/kandra/internal/workspace"
)

// skipDirGlobs names the directories the Language-Lock post-audit does not
// descend into, per spec §4.2 — build output and dependency trees the
// agent did not author. Patterns rather than bare names so versioned build
// directories (".gradle-8.9", "*.egg-info") are still skipped.
var skipDirGlobs = []string{
	"node_modules", ".git", "__pycache__", ".venv", "dist", "build",
	"coverage", ".next", ".turbo", "out", ".jest_cache", ".pytest_cache",
	"target", "vendor", ".gradle*", "*.egg-info",
}

func matchesSkipDirGlob(name string) bool {
	for _, pattern := range skipDirGlobs {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// AuditLanguageLock walks ws.Target and returns one warning string per file
// whose extension is a foreign-code extension outside both allowed and the
// metadata allow-list, per §4.2's Language-Lock post-audit. It is a
// non-blocking warning producer: callers attach the result to their tool
// metadata rather than failing the command.
func AuditLanguageLock(ws *workspace.Workspace, allowed map[string]bool) ([]string, error) {
	if allowed == nil {
		return nil, nil
	}

	var warnings []string
	err := filepath.WalkDir(ws.Target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != ws.Target && matchesSkipDirGlob(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		base := d.Name()
		ext := filepath.Ext(base)
		if !isCodeFile(ext) || isAlwaysAllowed(base, ext) || allowed[ext] {
			return nil
		}

		rel, relErr := filepath.Rel(ws.Target, path)
		if relErr != nil {
			rel = path
		}
		warnings = append(warnings, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}
