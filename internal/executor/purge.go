package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kandra-sh/kandra/internal/workspace"
)

// purgeSkipDirGlobs is the same ignore-directory list named in spec §4.2's
// Language-Lock post-audit; the purge step (§4.6 phase 1) walks the same
// tree shape so it reuses it verbatim rather than drifting from it. Entries
// are doublestar patterns rather than bare names so build-tool directories
// that vary by version (".gradle-8.9", "*.egg-info") are still skipped.
var purgeSkipDirGlobs = []string{
	"node_modules", ".git", "__pycache__", ".venv", "dist", "build",
	"coverage", ".next", ".turbo", "out", ".jest_cache", ".pytest_cache",
	"target", "vendor", ".gradle*", "*.egg-info",
}

func matchesSkipGlob(name string) bool {
	for _, pattern := range purgeSkipDirGlobs {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// foreignCodeExtensions mirrors tools.codeExtensions; kept as a small,
// deliberate duplication rather than an import, since purge's delete
// semantics (no metadata allow-list exemption) differ from the audit's
// warn semantics in internal/tools.
var foreignCodeExtensions = map[string]bool{
	".js": true, ".ts": true, ".py": true, ".go": true, ".rs": true,
	".java": true, ".rb": true, ".php": true, ".cs": true, ".cpp": true,
	".c": true, ".kt": true, ".swift": true,
}

// purgeForeignCode implements §4.6 phase 1: delete any file under
// ws.Target whose extension is a foreign-code extension not present in
// allowed, skipping purgeSkipDirGlobs, and returns a human-readable report
// plus the count of files removed (both zero-valued if nothing was).
func purgeForeignCode(ws *workspace.Workspace, allowed map[string]bool) (string, int, error) {
	if allowed == nil {
		return "", 0, nil
	}

	var removed []string
	err := filepath.WalkDir(ws.Target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != ws.Target && matchesSkipGlob(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := filepath.Ext(d.Name())
		if !foreignCodeExtensions[ext] || allowed[ext] {
			return nil
		}
		rel, relErr := filepath.Rel(ws.Target, path)
		if relErr != nil {
			rel = path
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return fmt.Errorf("removing %s: %w", rel, rmErr)
		}
		removed = append(removed, rel)
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	if len(removed) == 0 {
		return "", 0, nil
	}
	return fmt.Sprintf("removed %d foreign-language file(s) outside the language lock: %s", len(removed), strings.Join(removed, ", ")), len(removed), nil
}
