// Package config resolves kandrad's settings from a global config file,
// environment variables, and defaults, the way detent's persistence package
// resolves its global/local config pair — minus the per-repo local tier,
// since Kandra has one workspace base directory rather than one config file
// per cloned repository.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	kandraDirName = ".kandra"
	configFile    = "config.json"

	// KandraHomeEnv overrides ~/.kandra for testing.
	KandraHomeEnv = "KANDRA_HOME"
)

var (
	cachedHomeDir   string
	cachedHomeDirMu sync.RWMutex
)

// Defaults mirror detent's budget/timeout defaults; migrations run longer
// and touch more files than a single heal, so the step ceiling and
// workspace base are Kandra-specific.
const (
	DefaultModel              = "claude-sonnet-4-5"
	DefaultBudgetPerRunUSD    = 2.00
	DefaultBudgetMonthlyUSD   = 0 // 0 means unlimited
	DefaultMaxSteps           = 50
	DefaultWatchdogInterval   = 30 // seconds
	DefaultWatchdogStallLimit = 120 // seconds
	DefaultCommandTimeout     = 60  // seconds, §4.2 default
	DefaultHeavyCommandFloor  = 300 // seconds, §4.2 heavy-keyword floor
	DefaultHeartbeatInterval  = 45  // seconds, §4.8
	DefaultListenAddr         = "127.0.0.1:8420"

	minBudgetUSD        = 0.0
	maxBudgetUSD        = 100.0
	maxBudgetMonthlyUSD = 2000.0
	minMaxSteps         = 1
	maxMaxSteps         = 500
	modelPrefix         = "claude-"
)

// fileConfig is the raw structure persisted to ~/.kandra/config.json.
type fileConfig struct {
	APIKey              string   `json:"api_key,omitempty"`
	Model               string   `json:"model,omitempty"`
	BudgetPerRunUSD     *float64 `json:"budget_per_run_usd,omitempty"`
	BudgetMonthlyUSD    *float64 `json:"budget_monthly_usd,omitempty"`
	MaxSteps            *int     `json:"max_steps,omitempty"`
	WorkspaceBase       string   `json:"workspace_base,omitempty"`
	ListenAddr          string   `json:"listen_addr,omitempty"`
	EventLogPath        string   `json:"event_log_path,omitempty"`
}

// Config is the resolved configuration used by the daemon.
type Config struct {
	APIKey           string
	Model            string
	BudgetPerRunUSD  float64
	BudgetMonthlyUSD float64
	MaxSteps         int
	WorkspaceBase    string
	ListenAddr       string
	EventLogPath     string
}

// KandraDir returns ~/.kandra (or $KANDRA_HOME if set), cached after first
// resolution the same way detent caches its home directory lookup.
func KandraDir() (string, error) {
	if override := os.Getenv(KandraHomeEnv); override != "" {
		return filepath.Clean(override), nil
	}

	cachedHomeDirMu.RLock()
	cached := cachedHomeDir
	cachedHomeDirMu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	cachedHomeDirMu.Lock()
	defer cachedHomeDirMu.Unlock()
	if cachedHomeDir != "" {
		return cachedHomeDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving user home directory: %w", err)
	}
	cachedHomeDir = filepath.Join(home, kandraDirName)
	return cachedHomeDir, nil
}

// Load reads ~/.kandra/config.json (tolerating its absence), layers
// ANTHROPIC_API_KEY on top, clamps numeric fields, and fills in defaults.
func Load() (*Config, error) {
	raw, err := loadFile()
	if err != nil {
		return nil, err
	}

	dir, err := KandraDir()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Model:            DefaultModel,
		BudgetPerRunUSD:  DefaultBudgetPerRunUSD,
		BudgetMonthlyUSD: DefaultBudgetMonthlyUSD,
		MaxSteps:         DefaultMaxSteps,
		WorkspaceBase:    filepath.Join(dir, "workspaces"),
		ListenAddr:       DefaultListenAddr,
		EventLogPath:     filepath.Join(dir, "kandra.db"),
	}

	if raw.APIKey != "" {
		cfg.APIKey = raw.APIKey
	}
	if raw.Model != "" {
		if len(raw.Model) >= len(modelPrefix) && raw.Model[:len(modelPrefix)] == modelPrefix {
			cfg.Model = raw.Model
		} else {
			fmt.Fprintf(os.Stderr, "warning: ignoring invalid model %q (must start with %q)\n", raw.Model, modelPrefix)
		}
	}
	if raw.BudgetPerRunUSD != nil {
		cfg.BudgetPerRunUSD = clamp(*raw.BudgetPerRunUSD, minBudgetUSD, maxBudgetUSD)
	}
	if raw.BudgetMonthlyUSD != nil {
		cfg.BudgetMonthlyUSD = clamp(*raw.BudgetMonthlyUSD, 0, maxBudgetMonthlyUSD)
	}
	if raw.MaxSteps != nil {
		cfg.MaxSteps = int(clamp(float64(*raw.MaxSteps), minMaxSteps, maxMaxSteps))
	}
	if raw.WorkspaceBase != "" {
		cfg.WorkspaceBase = raw.WorkspaceBase
	}
	if raw.ListenAddr != "" {
		cfg.ListenAddr = raw.ListenAddr
	}
	if raw.EventLogPath != "" {
		cfg.EventLogPath = raw.EventLogPath
	}

	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		cfg.APIKey = envKey
	}

	return cfg, nil
}

func loadFile() (*fileConfig, error) {
	dir, err := KandraDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, configFile)

	// #nosec G304 - path is derived from the user's home directory
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return &fileConfig{}, nil
	}

	var cfg fileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
