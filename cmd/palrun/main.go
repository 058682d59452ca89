package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "palrun",
	Short: "PalRun - interactive code execution engine for PalCode",
	Long: `PalRun runs classroom task code in isolated, language-specific
sandboxes and streams stdin/stdout to live client sessions over a
persistent websocket connection.

Task workspaces are directories under PAL_STORAGE_ROOT, one per task.`,
}

func main() {
	// .env is optional; real deployments set PAL_* in the environment.
	godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
