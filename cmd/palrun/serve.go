package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/palcode-dev/palrun/internal/config"
	"github.com/palcode-dev/palrun/internal/engine"
	"github.com/palcode-dev/palrun/internal/language"
	"github.com/palcode-dev/palrun/internal/observability"
	"github.com/palcode-dev/palrun/internal/sandbox"
	"github.com/palcode-dev/palrun/internal/server"
	"github.com/palcode-dev/palrun/internal/storage/sqlite"
	"github.com/palcode-dev/palrun/internal/workspace"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution engine server",
	Long: `Start the PalRun server: the websocket streaming gateway on /ws
plus REST endpoints for run history, live sessions, health, and metrics.

Examples:
  palrun serve
  palrun serve --port 9090
  PAL_SANDBOX_BACKEND=local palrun serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workspaces, err := workspace.NewResolver(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("resolving storage root: %w", err)
	}

	languages := language.NewRegistry(cfg.Versions)

	runner, err := sandbox.NewRunner(cfg.Sandbox.Backend, sandbox.Policy{
		MemoryMB:  cfg.Sandbox.MemoryMB,
		CPUCores:  cfg.Sandbox.CPUCores,
		PIDsLimit: cfg.Sandbox.PIDsLimit,
		Network:   cfg.Sandbox.Network,
	})
	if err != nil {
		return fmt.Errorf("creating sandbox runner: %w", err)
	}

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	metrics := observability.New()

	orch := engine.New(languages, workspaces, runner, engine.Options{
		Store:          store,
		Metrics:        metrics,
		MaxRunDuration: cfg.MaxRunDuration(),
	})

	log.Printf("storage root: %s (backend=%s)", cfg.Storage.Root, cfg.Sandbox.Backend)

	port := cfg.Server.Port
	if portFlag > 0 {
		port = portFlag
	}

	srv := server.New(cfg, orch, store, metrics)

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		srv.Shutdown(context.Background())
	}()

	return srv.Start(port)
}
