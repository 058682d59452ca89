package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palcode-dev/palrun/internal/config"
	"github.com/palcode-dev/palrun/internal/engine"
	"github.com/palcode-dev/palrun/internal/language"
	"github.com/palcode-dev/palrun/internal/mcpserver"
	"github.com/palcode-dev/palrun/internal/sandbox"
	"github.com/palcode-dev/palrun/internal/storage/sqlite"
	"github.com/palcode-dev/palrun/internal/workspace"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as an MCP tool server over stdio",
	Long: `Expose task execution as a Model Context Protocol server. The
run_task tool executes a task to completion and returns its output —
a non-interactive alternative to the websocket gateway, backed by the
same engine and the same one-run-per-task rule.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workspaces, err := workspace.NewResolver(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("resolving storage root: %w", err)
	}

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

	orch := engine.New(language.NewRegistry(cfg.Versions), workspaces, runner, engine.Options{
		Store:          store,
		MaxRunDuration: cfg.MaxRunDuration(),
	})

	return mcpserver.New(orch).ServeStdio()
}
