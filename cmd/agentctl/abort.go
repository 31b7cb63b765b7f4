package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentforge/pipeline/pkg/taxonomy"
)

var abortTaskID string

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Signal a running task to abort via its PID file",
	RunE:  runAbort,
}

func init() {
	abortCmd.Flags().StringVar(&abortTaskID, "task-id", "", "task to abort (logged only; the PID file names the process, not the task)")
	abortCmd.MarkFlagRequired("task-id")
}

func runAbort(cmd *cobra.Command, args []string) error {
	pidPath := filepath.Join(stateRoot, "agentctl.pid")

	raw, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return taxonomy.NewValidationError("cli", fmt.Sprintf("no PID file at %s, nothing running", pidPath))
		}
		return fmt.Errorf("read PID file %s: %w", pidPath, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return taxonomy.NewValidationError("cli", fmt.Sprintf("PID file %s is corrupt: %v", pidPath, err))
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent TERM to PID %d for task %s\n", pid, abortTaskID)
	return nil
}
