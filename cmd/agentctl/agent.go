package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/orchestrator"
	"github.com/agentforge/pipeline/pkg/store"
	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
)

var (
	agentMessage            string
	agentStrictVerification bool
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run one code-generation task to completion",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentMessage, "message", "", `task request, formatted as 'build app: <JSON TaskSpec>'`)
	agentCmd.Flags().BoolVar(&agentStrictVerification, "strict-verification", false, "treat a low Verifier quality score as a failure instead of a warning")
	agentCmd.MarkFlagRequired("message")
}

// messagePrefix is the only accepted --message verb; anything else is a
// validation error rather than a silently-ignored no-op.
const messagePrefix = "build app:"

func parseTaskSpec(message string) (taskspec.TaskSpec, error) {
	trimmed := strings.TrimSpace(message)
	if !strings.HasPrefix(strings.ToLower(trimmed), messagePrefix) {
		return taskspec.TaskSpec{}, taxonomy.NewValidationError("cli", fmt.Sprintf("message must start with %q", messagePrefix))
	}
	payload := strings.TrimSpace(trimmed[len(messagePrefix):])

	var spec taskspec.TaskSpec
	if err := json.Unmarshal([]byte(payload), &spec); err != nil {
		return taskspec.TaskSpec{}, taxonomy.NewValidationError("cli", fmt.Sprintf("invalid TaskSpec JSON: %v", err))
	}
	return spec, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	spec, err := parseTaskSpec(agentMessage)
	if err != nil {
		return err
	}

	cfg, err := config.Load(stateRoot)
	if err != nil {
		return taxonomy.NewValidationError("cli", err.Error())
	}
	cfg.StrictVerification = agentStrictVerification

	logger, closeLog, err := openLogger(stateRoot, cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.Open(filepath.Join(stateRoot, "state.db"), cfg.Paths.WorkspaceRoot, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	orch := orchestrator.New(cfg, st, logger)

	task, runErr := orch.Run(context.Background(), spec, agentStrictVerification)
	if task != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "task_id=%s state=%s api_calls=%d tokens=%d\n",
			task.TaskID, task.State, task.APICallCount, task.TotalTokens)
	}
	return runErr
}
