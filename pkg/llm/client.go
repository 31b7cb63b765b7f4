// Package llm implements the HTTP contract to the code-generation provider:
// one blocking chat() round-trip per call, a fixed retry schedule for
// transient failures, and a sliding-window error-rate breaker that opens
// independently of the orchestrator's own breakers. A thin *http.Client
// wrapper with a context-scoped request and explicit status handling.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentforge/pipeline/pkg/config"
	"github.com/agentforge/pipeline/pkg/ratelimit"
	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
)

// Message is one entry in a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the parsed result of one successful chat round-trip.
type Response struct {
	Content string
	Usage   taskspec.Usage
}

// Client is the sole entry point to the code-generation provider. One
// Client is shared by every agent wrapper in a Task, so the rate limiter and
// error-rate breaker apply across Planner, Coder, Critic and Verifier calls
// alike.
type Client struct {
	httpClient *http.Client
	cfg        config.LLMConfig
	bucket     *ratelimit.Bucket
	breaker    *errorRateBreaker
	logger     *slog.Logger
}

// NewClient builds a Client bound to cfg's endpoint, model and retry
// schedule, gated by bucket before every attempt.
func NewClient(cfg config.LLMConfig, bucket *ratelimit.Bucket, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout.Std()},
		cfg:        cfg,
		bucket:     bucket,
		breaker:    newErrorRateBreaker(cfg.ErrorRateWindow.Std(), cfg.ErrorRateLimit),
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Content string `json:"content"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends messages to the provider on behalf of agent and returns its
// reply. It blocks for the rate limiter, retries transient failures per a
// fixed schedule, and raises taxonomy.CircuitBreakerError without
// attempting a request if the error-rate breaker is open.
func (c *Client) Chat(ctx context.Context, agent taskspec.Agent, messages []Message) (*Response, error) {
	if open, since := c.breaker.Open(); open {
		return nil, taxonomy.NewCircuitBreakerError(taxonomy.BreakerErrorRate,
			fmt.Sprintf("provider error rate exceeded %d failures in %s (oldest failure %s ago)",
				c.cfg.ErrorRateLimit, c.cfg.ErrorRateWindow.Std(), since))
	}

	rateLimitRetries := 0
	usedServerRetry := false
	var lastErr error

	for {
		c.bucket.Acquire()

		resp, err := c.doAttempt(ctx, agent, messages)
		if err == nil {
			c.breaker.Record(nil)
			return resp, nil
		}
		lastErr = err
		c.breaker.Record(err)

		if !taxonomy.IsTransient(err) {
			return nil, err
		}

		apiErr, isAPIErr := err.(*taxonomy.APIError)
		rateLimited := isAPIErr && apiErr.StatusCode == http.StatusTooManyRequests

		if rateLimited {
			if rateLimitRetries >= len(c.cfg.RateLimitBaseDelays) {
				return nil, lastErr
			}
			delay := ratelimit.Jitter(c.cfg.RateLimitBaseDelays[rateLimitRetries].Std(), c.cfg.JitterFraction, c.cfg.MinBackoff.Std())
			rateLimitRetries++
			c.logger.Warn("retrying after rate limit", "agent", agent, "attempt", rateLimitRetries, "delay", delay)
			if !c.sleep(ctx, delay) {
				return nil, ctx.Err()
			}
			continue
		}

		// 5xx or timeout: at most one retry, independent of the rate-limit budget.
		if usedServerRetry {
			return nil, lastErr
		}
		usedServerRetry = true
		delay := ratelimit.Jitter(c.cfg.ServerErrorDelay.Std(), c.cfg.JitterFraction, c.cfg.MinBackoff.Std())
		c.logger.Warn("retrying after transient failure", "agent", agent, "delay", delay, "error", err)
		if !c.sleep(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) doAttempt(ctx context.Context, agent taskspec.Agent, messages []Message) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, taxonomy.NewValidationError("llm", fmt.Sprintf("encode chat request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, taxonomy.NewValidationError("llm", fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, taxonomy.NewTimeoutError(fmt.Sprintf("%s call to provider: %v", agent, err))
		}
		return nil, taxonomy.NewAPIError(0, true, fmt.Sprintf("%s call failed: %v", agent, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taxonomy.NewAPIError(resp.StatusCode, true, fmt.Sprintf("read response body: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, taxonomy.NewAPIError(resp.StatusCode, classifyStatus(resp.StatusCode), string(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, taxonomy.NewAPIError(resp.StatusCode, false, fmt.Sprintf("decode provider response: %v", err))
	}

	return &Response{
		Content: parsed.Content,
		Usage: taskspec.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// classifyStatus reports whether an HTTP status is transient: 429 and every
// 5xx are retryable, everything else — 4xx other than 429 — is a permanent
// failure.
func classifyStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500 && status < 600
}
