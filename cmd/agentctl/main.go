// Command agentctl is the CLI collaborator around pkg/orchestrator: it
// parses a TaskSpec, wires a Store and Orchestrator from configuration, and
// maps the result onto a closed set of process exit codes.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var stateRoot string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Drives the Planner/Coder/Critic/Verifier pipeline for one Android code-generation task",
}

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultRoot := filepath.Join(home, ".agentforge")

	rootCmd.PersistentFlags().StringVar(&stateRoot, "state-root", defaultRoot, "Directory holding the state database, PID file, heartbeat and task workspaces")

	envPath := filepath.Join(defaultRoot, ".env")
	if err := godotenv.Load(envPath); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: no %s file, continuing with existing environment\n", envPath)
	}

	rootCmd.AddCommand(agentCmd, abortCmd, cleanupCmd, uiCmd)
}
