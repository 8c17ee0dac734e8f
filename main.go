package main

import (
	"fmt"
	"os"
	"unicode"

	"github.com/kandra-sh/kandra/cmd"
	"github.com/kandra-sh/kandra/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	// IMPORTANT: Defer order matters! Defers execute in LIFO order.
	// RecoverAndPanic must be deferred FIRST so it executes LAST,
	// allowing cleanup() to flush events before the re-panic.
	defer telemetry.RecoverAndPanic()
	cleanup := telemetry.Init(cmd.Version)
	defer cleanup()

	if err := cmd.Execute(); err != nil {
		telemetry.CaptureError(err)
		errMsg := err.Error()
		if errMsg != "" {
			runes := []rune(errMsg)
			runes[0] = unicode.ToUpper(runes[0])
			errMsg = string(runes)
		}
		fmt.Fprintln(os.Stderr, "Error:", errMsg)
		return 1
	}
	return 0
}
