package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/palcode-dev/palrun/internal/config"
	"github.com/palcode-dev/palrun/internal/storage"
	"github.com/palcode-dev/palrun/internal/storage/sqlite"
)

var runsLimitFlag int

var runsCmd = &cobra.Command{
	Use:   "runs <taskID>",
	Short: "List a task's execution history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimitFlag, "limit", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), storage.RunListOptions{
		TaskID: args[0],
		Limit:  runsLimitFlag,
	})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded for this task.")
		return nil
	}

	fmt.Printf("%-25s  %-9s  %-9s  %4s  %s\n", "STARTED", "LANGUAGE", "OUTCOME", "EXIT", "RUN ID")
	for _, run := range runs {
		outcome := run.Outcome
		if outcome == "" {
			outcome = "running"
		}
		fmt.Printf("%-25s  %-9s  %-9s  %4d  %s\n",
			run.StartedAt.Local().Format(time.RFC3339),
			run.Language, outcome, run.ExitCode, run.ID)
	}
	return nil
}
