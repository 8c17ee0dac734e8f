// Package cmd implements kandrad's command-line shell: a small cobra tree
// over the daemon (serve) and the Job State Machine's client operations
// (job create/start-planning/plan/approve/reject/tail), in the structure
// of detent's own cmd/root.go.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kandra-sh/kandra/internal/config"
	"github.com/kandra-sh/kandra/internal/signal"
)

// cfg holds the loaded configuration, available to every command.
// Initialized in PersistentPreRunE.
var cfg *config.Config

var addrFlag string

var rootCmd = &cobra.Command{
	Use:   "kandrad",
	Short: "Run the Kandra code-migration orchestrator",
	Long: `kandrad drives jobs through Kandra's migration pipeline: create a job
against a source repository and a target stack, trigger planning, approve
the resulting plan, and watch the Executor Agent carry it out phase by
phase over a live event stream.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command with signal handling.
func Execute() error {
	ctx := signal.SetupSignalHandler(context.Background())
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "kandrad listen address (default: config listen_addr)")
}

// resolveAddr returns the effective daemon address: --addr if set, else the
// loaded config's ListenAddr.
func resolveAddr() string {
	if addrFlag != "" {
		return addrFlag
	}
	return cfg.ListenAddr
}
