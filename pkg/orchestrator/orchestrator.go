// Package orchestrator drives the Task state machine: the per-step
// Coder↔Critic retry loop, budget enforcement, the two circuit breakers,
// signal-safe cleanup, and the heartbeat. It is the only caller of
// pkg/agents and the only writer of task state through pkg/store; the agents
// reach pkg/llm on its behalf, and cmd/agentctl only opens the store and
// reads from it. A driver owning a background goroutine's
// lifecycle, restricted to a single-threaded cooperative pipeline — there
// is no concurrent sub-agent dispatch here, only one heartbeat ticker
// isolated from the step loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/agentforge/pipeline/pkg/agents"
	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/llm"
	"github.com/agentforge/pipeline/pkg/pidlock"
	"github.com/agentforge/pipeline/pkg/ratelimit"
	"github.com/agentforge/pipeline/pkg/store"
	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
	"github.com/agentforge/pipeline/pkg/validation"
)

// Orchestrator runs one Task at a time to completion. It owns the PID
// exclusion lock, the heartbeat, and the abort flag for the duration of a
// Run call; nothing survives between calls — there are no ambient
// singletons.
type Orchestrator struct {
	cfg    *config.Config
	store  *store.Store
	client *llm.Client

	planner  *agents.Planner
	coder    *agents.Coder
	critic   *agents.Critic
	verifier *agents.Verifier

	logger *slog.Logger

	pidPath           string
	heartbeatPath     string
	emergencyStopPath string
}

// New wires an Orchestrator from configuration and a previously opened
// Store, constructing its own rate limiter and LLM client.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	bucket := ratelimit.NewBucket(cfg.RateLimit.TokensPerInterval, cfg.RateLimit.Interval.Std(), cfg.RateLimit.Burst)
	client := llm.NewClient(cfg.LLM, bucket, logger)

	return &Orchestrator{
		cfg:               cfg,
		store:             st,
		client:            client,
		planner:           agents.NewPlanner(client),
		coder:             agents.NewCoder(client, cfg.Budgets.MaxFileSizeBytes, logger),
		critic:            agents.NewCritic(client, logger),
		verifier:          agents.NewVerifier(client, logger),
		logger:            logger,
		pidPath:           filepath.Join(cfg.Paths.StateRoot, "agentctl.pid"),
		heartbeatPath:     filepath.Join(cfg.Paths.StateRoot, "heartbeat.json"),
		emergencyStopPath: filepath.Join(cfg.Paths.StateRoot, "EMERGENCY_STOP"),
	}
}

// runState holds the two independent breaker counters and the running list
// of accepted file paths for one Run call. It is never persisted — only the
// Task's counters in the store are durable; this is the in-memory mirror
// the step loop consults between store round trips.
type runState struct {
	consecutiveFailures   int
	consecutiveRejections int
	completedFiles        []string
	abortRequested        atomic.Bool
}

// Run executes one Task end to end: intake, planning, the per-step retry
// loop, verification, and cleanup. It always returns the final Task, even
// on failure, so the caller can inspect state and error_message.
func (o *Orchestrator) Run(ctx context.Context, spec taskspec.TaskSpec, strictVerification bool) (*taskspec.Task, error) {
	if err := validation.ValidateTaskSpec(spec); err != nil {
		return nil, err
	}

	if free, err := freeBytes(o.cfg.Paths.WorkspaceRoot); err == nil && free < o.cfg.Budgets.MinFreeDiskBytes {
		return nil, taxonomy.NewValidationError("orchestrator",
			fmt.Sprintf("only %d bytes free, below the %d byte floor", free, o.cfg.Budgets.MinFreeDiskBytes))
	} else if err != nil {
		o.logger.Warn("could not check free disk space, proceeding anyway", "error", err)
	}

	lock, err := pidlock.Acquire(o.pidPath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	taskID := uuid.NewString()
	taskDir, err := o.store.CreateTask(taskID, spec)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	logger := o.logger.With("task_id", taskID)
	state := &runState{}

	hb := newHeartbeat(o.heartbeatPath, taskID, o.cfg.Heartbeat.Interval.Std(), logger)
	hb.start()
	defer hb.stopAndWait()

	stopSignals := o.watchSignals(taskID, state, logger)
	defer stopSignals()

	task, runErr := o.runTask(ctx, taskID, taskDir, spec, strictVerification, state, logger)
	if runErr != nil {
		logger.Error("task failed", "error", runErr)
	}
	return task, runErr
}

// runTask is Run's body, separated so Run can own lock/heartbeat/signal
// lifecycle in defers around it, guaranteeing they unwind on every return
// path out of runTask.
func (o *Orchestrator) runTask(ctx context.Context, taskID, taskDir string, spec taskspec.TaskSpec, strictVerification bool, state *runState, logger *slog.Logger) (*taskspec.Task, error) {
	plan, planUsage, err := o.planner.CreatePlan(ctx, spec)
	if err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}
	if err := o.recordUsage(taskID, taskspec.AgentPlanner, planUsage); err != nil {
		logger.Warn("failed to record planner API call", "error", err)
	}

	if err := validation.ValidatePlan(plan); err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}

	if err := o.store.StorePlan(taskID, plan); err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}
	if err := o.store.UpdateTaskState(taskID, taskspec.TaskStateExecuting, ""); err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}

	for _, step := range plan.Steps {
		if err := o.runStep(ctx, taskID, taskDir, step, spec, state, logger); err != nil {
			o.fail(taskID, err)
			return o.finalTask(taskID)
		}
	}

	if err := o.store.UpdateTaskState(taskID, taskspec.TaskStateVerifying, ""); err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}

	report, verifyUsage, err := o.verifier.VerifyProject(ctx, state.completedFiles, spec)
	if err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}
	if err := o.recordUsage(taskID, taskspec.AgentVerifier, verifyUsage); err != nil {
		logger.Warn("failed to record verifier API call", "error", err)
	}

	finalState := taskspec.TaskStateCompleted
	if report.QualityScore < 0.5 {
		if strictVerification {
			verr := taxonomy.NewVerificationError(report.QualityScore, "verification quality score below threshold")
			o.fail(taskID, verr)
			return o.finalTask(taskID)
		}
		finalState = taskspec.TaskStateCompletedWithWarnings
	}

	if err := o.store.UpdateTaskState(taskID, finalState, ""); err != nil {
		o.fail(taskID, err)
		return o.finalTask(taskID)
	}

	return o.finalTask(taskID)
}

// runStep runs the Coder↔Critic retry loop for one step, up to
// cfg.Budgets.MaxStepRetries attempts.
func (o *Orchestrator) runStep(ctx context.Context, taskID, taskDir string, step taskspec.Step, spec taskspec.TaskSpec, state *runState, logger *slog.Logger) error {
	var priorIssues []taskspec.Issue

	for attempt := 1; attempt <= o.cfg.Budgets.MaxStepRetries; attempt++ {
		if state.abortRequested.Load() {
			return abortError()
		}
		if o.emergencyStopRequested() {
			return abortError()
		}
		if state.consecutiveRejections >= 2*o.cfg.Budgets.ConsecutiveFailureLimit {
			return taxonomy.NewCircuitBreakerError(taxonomy.BreakerFeedbackLoop, "Coder unable to satisfy Critic requirements")
		}
		if err := o.checkBudgets(taskID); err != nil {
			return err
		}

		content, usage, err := o.coder.GenerateFile(ctx, step, spec, state.completedFiles, priorIssues)
		if err != nil {
			if !taxonomy.IsTransient(err) {
				return err
			}
			state.consecutiveFailures++
			if state.consecutiveFailures >= o.cfg.Budgets.ConsecutiveFailureLimit {
				return taxonomy.NewCircuitBreakerError(taxonomy.BreakerConsecutiveFail, "too many consecutive transient failures")
			}
			if attempt == o.cfg.Budgets.MaxStepRetries {
				return err
			}
			logger.Warn("coder attempt failed transiently, retrying", "step", step.StepNumber, "attempt", attempt, "error", err)
			continue
		}
		if err := o.recordUsage(taskID, taskspec.AgentCoder, usage); err != nil {
			logger.Warn("failed to record coder API call", "error", err)
		}
		if err := o.checkBudgets(taskID); err != nil {
			return err
		}

		decision, criticUsage, err := o.critic.ReviewFile(ctx, step, content, spec)
		if err != nil {
			return err
		}
		if err := o.recordUsage(taskID, taskspec.AgentCritic, criticUsage); err != nil {
			logger.Warn("failed to record critic API call", "error", err)
		}

		rec := taskspec.StepRecord{
			TaskID: taskID, StepNumber: step.StepNumber, FilePath: step.FilePath,
			Attempt: attempt, CoderOutput: content, CriticDecision: &decision.Decision,
			CriticIssues: decision.Issues, Timestamp: time.Now(),
		}
		if err := o.store.RecordStep(rec); err != nil {
			return fmt.Errorf("record step: %w", err)
		}

		if decision.Decision == taskspec.CriticAccept {
			if err := o.store.WriteFile(taskDir, step.FilePath, []byte(content)); err != nil {
				return err
			}
			state.completedFiles = append(state.completedFiles, step.FilePath)
			state.consecutiveFailures = 0
			state.consecutiveRejections = 0
			return nil
		}

		state.consecutiveRejections++
		priorIssues = decision.Issues
		if attempt == o.cfg.Budgets.MaxStepRetries {
			return rejectedError(step, decision.Issues)
		}
		logger.Warn("critic rejected, retrying with feedback", "step", step.StepNumber, "attempt", attempt, "issues", len(decision.Issues))
	}

	return fmt.Errorf("step %d exhausted retries without resolution", step.StepNumber)
}

func rejectedError(step taskspec.Step, issues []taskspec.Issue) error {
	if len(issues) > 3 {
		issues = issues[:3]
	}
	msg := fmt.Sprintf("step %d rejected after exhausting retries", step.StepNumber)
	for _, issue := range issues {
		msg += fmt.Sprintf("; [%s] %s", issue.Severity, issue.Message)
	}
	return taxonomy.NewValidationError("critic", msg)
}

func abortError() error {
	return errors.New("Manual abort requested")
}

// checkBudgets reads the persisted Task counters and raises
// LimitExceededError on the first breach found.
func (o *Orchestrator) checkBudgets(taskID string) error {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("load task for budget check: %w", err)
	}

	if time.Since(task.StartTime) > o.cfg.Budgets.WallClockTimeout.Std() {
		return taxonomy.NewLimitExceededError(taxonomy.LimitWallClock,
			fmt.Sprintf("wall-clock time exceeded %s", o.cfg.Budgets.WallClockTimeout.Std()))
	}
	if task.APICallCount >= o.cfg.Budgets.MaxAPICalls {
		return taxonomy.NewLimitExceededError(taxonomy.LimitAPICalls,
			fmt.Sprintf("API call count reached %d", o.cfg.Budgets.MaxAPICalls))
	}
	if task.TotalTokens >= o.cfg.Budgets.MaxTotalTokens {
		return taxonomy.NewLimitExceededError(taxonomy.LimitTokens,
			fmt.Sprintf("Token limit of %d reached", o.cfg.Budgets.MaxTotalTokens))
	}
	return nil
}

func (o *Orchestrator) recordUsage(taskID string, agent taskspec.Agent, usage taskspec.Usage) error {
	return o.store.RecordAPICall(taskspec.APICallRecord{
		TaskID: taskID, Agent: agent,
		PromptTokens: usage.PromptTokens, CompletionTokens: usage.CompletionTokens,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) emergencyStopRequested() bool {
	_, err := os.Stat(o.emergencyStopPath)
	return err == nil
}

// fail best-effort marks the Task FAILED with a short human message. Called
// from every catch site in runTask/runStep; the caller still propagates the
// original error to its own caller.
func (o *Orchestrator) fail(taskID string, cause error) {
	if err := o.store.UpdateTaskState(taskID, taskspec.TaskStateFailed, cause.Error()); err != nil {
		o.logger.Warn("failed to persist FAILED state", "task_id", taskID, "error", err)
	}
}

func (o *Orchestrator) finalTask(taskID string) (*taskspec.Task, error) {
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("load final task: %w", err)
	}
	if task.State == taskspec.TaskStateFailed {
		return task, errors.New(task.ErrorMessage)
	}
	return task, nil
}

// watchSignals installs INT/TERM handlers that set state's abort flag and
// best-effort mark the Task FAILED, without terminating the process
// directly — a minimal writer handler. The step loop observes
// the flag at its next re-entry point.
func (o *Orchestrator) watchSignals(taskID string, state *runState, logger *slog.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			logger.Warn("received termination signal, requesting abort")
			state.abortRequested.Store(true)
			if err := o.store.UpdateTaskState(taskID, taskspec.TaskStateFailed, "Manual abort requested"); err != nil {
				logger.Warn("failed to persist abort state", "error", err)
			}
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
