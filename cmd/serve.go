package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kandra-sh/kandra/internal/emitter"
	"github.com/kandra-sh/kandra/internal/eventbus"
	"github.com/kandra-sh/kandra/internal/eventlog"
	"github.com/kandra-sh/kandra/internal/executor"
	"github.com/kandra-sh/kandra/internal/job"
	"github.com/kandra-sh/kandra/internal/llm"
	"github.com/kandra-sh/kandra/internal/orchestrator"
	"github.com/kandra-sh/kandra/internal/signal"
	"github.com/kandra-sh/kandra/internal/stream"
	"github.com/kandra-sh/kandra/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kandrad daemon",
	Long: `serve starts the Job Orchestration Engine: the Event Log/Bus, the Job
State Machine, and the Executor Agent, exposed over the daemon's HTTP
surface (job CRUD plus the per-job duplex stream endpoint).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cfg.APIKey == "" {
		return fmt.Errorf("no API key configured: set ANTHROPIC_API_KEY or api_key in the kandra config file")
	}

	store, err := eventlog.OpenSQLite(cfg.EventLogPath)
	if err != nil {
		return fmt.Errorf("opening event log at %s: %w", cfg.EventLogPath, err)
	}
	defer store.Close()

	bus := eventbus.New()
	em := emitter.New(store, bus)

	client, err := llm.New(cfg.APIKey)
	if err != nil {
		return fmt.Errorf("constructing LLM client: %w", err)
	}

	ex := executor.New(client, cfg.Model, em, cfg.MaxSteps)
	machine := job.NewMachine(job.NewMemoryStore())
	orch := orchestrator.New(machine, store, bus, em, ex, cfg.WorkspaceBase)

	handler := stream.NewHandler(orch)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler.Routes(),
	}

	serveErr := make(chan error, 1)
	go func() {
		fmt.Printf("kandrad listening on %s\n", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		signal.PrintCancellationMessage("serve")
		telemetry.SetTag("shutdown_reason", "signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-serveErr:
		return err
	}
}
