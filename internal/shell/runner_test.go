package shell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunRejectsSandboxEscape(t *testing.T) {
	_, err := Run(context.Background(), t.TempDir(), "cat ../source/secret.txt", 0)
	if !errors.Is(err, ErrSandboxEscape) {
		t.Fatalf("expected ErrSandboxEscape, got %v", err)
	}
}

func TestRunNaturalExitSuccess(t *testing.T) {
	res, err := Run(context.Background(), t.TempDir(), "echo hello", 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit 0, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Fatalf("expected stdout to contain hello, got %q", res.Stdout)
	}
}

func TestRunReadyDetectionReapsSimpleCommand(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), t.TempDir(), "echo 'Listening on port 9001'\nsleep 30", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected ready detection to return quickly, took %v", elapsed)
	}
	if !res.Ready {
		t.Fatal("expected ready flag to be set")
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected ready-kill to normalize to success, got exit %d", res.ExitCode)
	}
}

func TestRunInteractivePromptIsKilled(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), t.TempDir(), "echo 'Continue? (y/n)'; sleep 30", 5*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("expected interactive-prompt kill to return quickly, took %v", elapsed)
	}
	if !res.Hung {
		t.Fatal("expected hung to be true")
	}
	if res.HangReason == "" {
		t.Fatal("expected a hang reason")
	}
}

func TestRunTimeoutWithNoReady(t *testing.T) {
	res, err := Run(context.Background(), t.TempDir(), "sleep 30", 1*time.Second)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.TimedOut {
		t.Fatal("expected TimedOut to be true")
	}
}

func TestEffectiveTimeoutRaisesFloorForHeavyKeywords(t *testing.T) {
	if got := effectiveTimeout("npm install", 0); got != heavyTimeout {
		t.Fatalf("expected heavy floor %v, got %v", heavyTimeout, got)
	}
	if got := effectiveTimeout("echo hi", 0); got != defaultTimeout {
		t.Fatalf("expected default %v, got %v", defaultTimeout, got)
	}
	if got := effectiveTimeout("echo hi", 500*time.Second); got != 500*time.Second {
		t.Fatalf("expected caller override to win when larger, got %v", got)
	}
}

func TestIsComplexDetectsEmbeddedVerification(t *testing.T) {
	cases := map[string]bool{
		"npm run build":       false,
		"curl localhost:3000": true,
		"a && b":              true,
		"a; b":                true,
		"a | b":               true,
	}
	for cmd, want := range cases {
		if got := isComplex(cmd); got != want {
			t.Errorf("isComplex(%q) = %v, want %v", cmd, got, want)
		}
	}
}

func TestTruncateLeavesShortOutputAlone(t *testing.T) {
	short := "hello"
	if got := truncate(short); got != short {
		t.Fatalf("expected short output untouched, got %q", got)
	}
}

func TestTruncateTrimsLongOutput(t *testing.T) {
	long := strings.Repeat("a", truncateLimit+500)
	got := truncate(long)
	if len(got) >= len(long) {
		t.Fatal("expected truncated output to be shorter")
	}
	if !strings.Contains(got, truncateMarker) {
		t.Fatal("expected truncation marker in output")
	}
}
