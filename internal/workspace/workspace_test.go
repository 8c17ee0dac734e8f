package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewCreatesFixedLayout(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base, "My Repo!!", "session-1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, dir := range []string{ws.Source, ws.Target, ws.Meta, ws.Reports} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
}

func TestResetTargetEmptiesOnlyTarget(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base, "repo", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := os.WriteFile(filepath.Join(ws.Target, "stale.js"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws.Source, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ws.ResetTarget(); err != nil {
		t.Fatalf("reset: %v", err)
	}

	entries, err := os.ReadDir(ws.Target)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty target, found %v", entries)
	}
	if _, err := os.Stat(filepath.Join(ws.Source, "keep.txt")); err != nil {
		t.Fatalf("source file should survive target reset: %v", err)
	}
}

func TestResolveInTargetRejectsEscape(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base, "repo", "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := ws.ResolveInTarget("app.py"); err != nil {
		t.Fatalf("expected normal relative path to resolve, got %v", err)
	}
	if _, err := ws.ResolveInTarget("../source/secret.go"); err == nil {
		t.Fatal("expected escape via ../source to be rejected")
	}
	if _, err := ws.ResolveInTarget("/etc/passwd"); err == nil {
		t.Fatal("expected absolute path to be rejected")
	}
	if _, err := ws.ResolveInTarget("a/../../b"); err == nil {
		t.Fatal("expected traversal-via-subdirectory to be rejected")
	}
}

func TestContainsSourceLeak(t *testing.T) {
	cases := map[string]bool{
		"from ../source/util import x": true,
		"import util from './util'":    false,
		"../source":                    true,
	}
	for input, want := range cases {
		if got := ContainsSourceLeak(input); got != want {
			t.Errorf("ContainsSourceLeak(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"My Repo!!":  "My-Repo",
		"":           "job",
		"a/b\\c":     "a-b-c",
		"already-ok": "already-ok",
	}
	for input, want := range cases {
		if got := SanitizeName(input); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}
