package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWhenFileAbsent(t *testing.T) {
	t.Setenv(KandraHomeEnv, t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, cfg.Model)
	}
	if cfg.MaxSteps != DefaultMaxSteps {
		t.Fatalf("expected default max steps %d, got %d", DefaultMaxSteps, cfg.MaxSteps)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("expected default listen addr %q, got %q", DefaultListenAddr, cfg.ListenAddr)
	}
}

func TestLoadClampsOutOfRangeBudget(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(KandraHomeEnv, dir)

	writeConfigFile(t, dir, fileConfig{BudgetPerRunUSD: floatPtr(9999)})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BudgetPerRunUSD != maxBudgetUSD {
		t.Fatalf("expected budget clamped to %v, got %v", maxBudgetUSD, cfg.BudgetPerRunUSD)
	}
}

func TestLoadRejectsModelWithoutClaudePrefix(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(KandraHomeEnv, dir)

	writeConfigFile(t, dir, fileConfig{Model: "gpt-5"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Fatalf("expected invalid model to fall back to default, got %q", cfg.Model)
	}
}

func TestEnvAPIKeyOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(KandraHomeEnv, dir)
	writeConfigFile(t, dir, fileConfig{APIKey: "file-key"})
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "env-key" {
		t.Fatalf("expected env key to win, got %q", cfg.APIKey)
	}
}

func TestKandraDirHonorsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(KandraHomeEnv, dir)

	got, err := KandraDir()
	if err != nil {
		t.Fatalf("KandraDir: %v", err)
	}
	if got != filepath.Clean(dir) {
		t.Fatalf("expected %q, got %q", dir, got)
	}
}

func writeConfigFile(t *testing.T, dir string, fc fileConfig) {
	t.Helper()
	raw, err := json.Marshal(fc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), raw, 0o600); err != nil {
		t.Fatal(err)
	}
}

func floatPtr(v float64) *float64 { return &v }
