package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/store"
	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
)

var (
	cleanupOlderThan  string
	cleanupFailedOnly bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove task workspace directories older than a threshold",
	RunE:  runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupOlderThan, "older-than", "", "age threshold, e.g. '30d'")
	cleanupCmd.Flags().BoolVar(&cleanupFailedOnly, "failed-only", false, "only remove workspaces for FAILED tasks")
	cleanupCmd.MarkFlagRequired("older-than")
}

// parseDays accepts the "<N>d" form only; no other unit is part of the
// collaborator contract.
func parseDays(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "d") {
		return 0, taxonomy.NewValidationError("cli", fmt.Sprintf("%q is not of the form '<N>d'", s))
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil || n < 0 {
		return 0, taxonomy.NewValidationError("cli", fmt.Sprintf("%q is not of the form '<N>d'", s))
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	age, err := parseDays(cleanupOlderThan)
	if err != nil {
		return err
	}

	cfg, err := config.Load(stateRoot)
	if err != nil {
		return taxonomy.NewValidationError("cli", err.Error())
	}

	st, err := store.Open(filepath.Join(stateRoot, "state.db"), cfg.Paths.WorkspaceRoot, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := os.ReadDir(cfg.Paths.WorkspaceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read workspace root %s: %w", cfg.Paths.WorkspaceRoot, err)
	}

	cutoff := time.Now().Add(-age)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		taskID := entry.Name()

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if cleanupFailedOnly {
			task, err := st.GetTask(taskID)
			if err != nil || task.State != taskspec.TaskStateFailed {
				continue
			}
		}

		dir := filepath.Join(cfg.Paths.WorkspaceRoot, taskID)
		if err := os.RemoveAll(dir); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "agentctl: failed to remove %s: %v\n", dir, err)
			continue
		}
		removed++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d workspace director%s\n", removed, plural(removed))
	return nil
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
