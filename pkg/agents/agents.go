// Package agents implements the four thin LLM wrappers: Planner, Coder,
// Critic, Verifier. Each builds a prompt, calls the LLM
// client, and parses the response; none retains state between calls. Critic
// and Verifier fail open on malformed output (advisory agents over noisy
// models); Planner parse failures are fatal because the orchestrator cannot
// proceed without a well-formed plan.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentforge/pipeline/pkg/llm"
	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
)

// Planner turns a TaskSpec into a Plan.
type Planner struct {
	client *llm.Client
}

// NewPlanner builds a Planner bound to client.
func NewPlanner(client *llm.Client) *Planner {
	return &Planner{client: client}
}

// CreatePlan asks the model for a build plan. A parse failure is fatal —
// the caller should treat the returned error as non-retryable.
func (p *Planner) CreatePlan(ctx context.Context, spec taskspec.TaskSpec) (taskspec.Plan, taskspec.Usage, error) {
	parts := plannerPrompt(spec)
	resp, err := p.client.Chat(ctx, taskspec.AgentPlanner, []llm.Message{
		{Role: "system", Content: parts[0]},
		{Role: "user", Content: parts[1] + "\n\n" + parts[2]},
	})
	if err != nil {
		return taskspec.Plan{}, taskspec.Usage{}, err
	}

	var steps []taskspec.Step
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &steps); err != nil {
		return taskspec.Plan{}, taskspec.Usage{}, taxonomy.NewValidationError("planner",
			fmt.Sprintf("could not parse plan response as a JSON array: %v", err))
	}

	return taskspec.Plan{Steps: steps}, resp.Usage, nil
}

// Coder produces the file contents for one Step.
type Coder struct {
	client       *llm.Client
	maxFileBytes int64
	logger       *slog.Logger
}

// NewCoder builds a Coder bound to client, truncating output at
// maxFileBytes.
func NewCoder(client *llm.Client, maxFileBytes int64, logger *slog.Logger) *Coder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coder{client: client, maxFileBytes: maxFileBytes, logger: logger}
}

// GenerateFile asks the model for the contents of step.FilePath. priorIssues
// is nil on the first attempt and carries the previous Critic's issues on
// retries.
func (c *Coder) GenerateFile(ctx context.Context, step taskspec.Step, spec taskspec.TaskSpec, completedFiles []string, priorIssues []taskspec.Issue) (string, taskspec.Usage, error) {
	prompt := coderPrompt(step, spec, completedFiles, priorIssues)
	resp, err := c.client.Chat(ctx, taskspec.AgentCoder, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", taskspec.Usage{}, err
	}

	content := resp.Content
	if int64(len(content)) > c.maxFileBytes {
		c.logger.Warn("coder output truncated to file size limit", "path", step.FilePath, "bytes", len(content), "limit", c.maxFileBytes)
		content = content[:c.maxFileBytes]
	}

	return content, resp.Usage, nil
}

// Critic reviews one Coder output.
type Critic struct {
	client *llm.Client
	logger *slog.Logger
}

// NewCritic builds a Critic bound to client.
func NewCritic(client *llm.Client, logger *slog.Logger) *Critic {
	if logger == nil {
		logger = slog.Default()
	}
	return &Critic{client: client, logger: logger}
}

// defaultCriticOutput is the fail-open result returned whenever the model's
// response cannot be trusted — a transport error, malformed JSON, an
// unrecognized decision, or a non-array issues field.
func defaultCriticOutput() taskspec.CriticOutput {
	return taskspec.CriticOutput{Decision: taskspec.CriticAccept, Issues: nil}
}

// ReviewFile asks the model to review content against step and spec.
// Malformed responses and transport errors alike fail open to ACCEPT,
// logged as a warning, so a noisy model can never permanently block a step.
func (c *Critic) ReviewFile(ctx context.Context, step taskspec.Step, content string, spec taskspec.TaskSpec) (taskspec.CriticOutput, taskspec.Usage, error) {
	prompt := criticPrompt(step, content, spec)
	resp, err := c.client.Chat(ctx, taskspec.AgentCritic, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		c.logger.Warn("critic call failed, failing open to ACCEPT", "path", step.FilePath, "error", err)
		return defaultCriticOutput(), taskspec.Usage{}, nil
	}

	var out taskspec.CriticOutput
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &out); err != nil {
		c.logger.Warn("critic response did not parse, failing open to ACCEPT", "path", step.FilePath, "error", err)
		return defaultCriticOutput(), resp.Usage, nil
	}

	switch out.Decision {
	case taskspec.CriticAccept, taskspec.CriticReject:
	default:
		c.logger.Warn("critic returned an unrecognized decision, failing open to ACCEPT", "path", step.FilePath, "decision", out.Decision)
		return defaultCriticOutput(), resp.Usage, nil
	}

	return out, resp.Usage, nil
}

// Verifier assesses the completed project as a whole.
type Verifier struct {
	client *llm.Client
	logger *slog.Logger
}

// NewVerifier builds a Verifier bound to client.
func NewVerifier(client *llm.Client, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{client: client, logger: logger}
}

// defaultVerifierOutput is the result returned on parse failure: empty
// warnings, empty missing items, and a borderline 0.5 quality score. The
// orchestrator only downgrades scores below 0.5, so this default completes
// the task as COMPLETED.
func defaultVerifierOutput() taskspec.VerifierOutput {
	return taskspec.VerifierOutput{Warnings: nil, MissingItems: nil, QualityScore: 0.5}
}

// VerifyProject asks the model to assess the finished set of files.
func (v *Verifier) VerifyProject(ctx context.Context, files []string, spec taskspec.TaskSpec) (taskspec.VerifierOutput, taskspec.Usage, error) {
	prompt := verifierPrompt(files, spec)
	resp, err := v.client.Chat(ctx, taskspec.AgentVerifier, []llm.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return taskspec.VerifierOutput{}, taskspec.Usage{}, err
	}

	var out taskspec.VerifierOutput
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &out); err != nil {
		v.logger.Warn("verifier response did not parse, defaulting to a borderline report", "error", err)
		return defaultVerifierOutput(), resp.Usage, nil
	}

	return out, resp.Usage, nil
}

// extractJSON strips leading/trailing whitespace and markdown code fences a
// model may wrap its JSON response in, despite being told not to.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
