package config

import "fmt"

// Validator validates the merged configuration, fail-fast, one method per
// concern.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, stopping at the first
// error.
func (v *Validator) ValidateAll() error {
	if err := v.validateBudgets(); err != nil {
		return fmt.Errorf("budgets: %w", err)
	}
	if err := v.validateRateLimit(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := v.validatePaths(); err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	return nil
}

func (v *Validator) validateBudgets() error {
	b := v.cfg.Budgets
	if b.MaxStepRetries < 1 {
		return fmt.Errorf("max_step_retries must be at least 1, got %d", b.MaxStepRetries)
	}
	if b.MaxAPICalls < 1 {
		return fmt.Errorf("max_api_calls must be at least 1, got %d", b.MaxAPICalls)
	}
	if b.MaxTotalTokens < 1 {
		return fmt.Errorf("max_total_tokens must be at least 1, got %d", b.MaxTotalTokens)
	}
	if b.WallClockTimeout.Std() <= 0 {
		return fmt.Errorf("wall_clock_timeout must be positive, got %v", b.WallClockTimeout.Std())
	}
	if b.ConsecutiveFailureLimit < 1 {
		return fmt.Errorf("consecutive_failure_limit must be at least 1, got %d", b.ConsecutiveFailureLimit)
	}
	if b.MaxFileSizeBytes < 1 {
		return fmt.Errorf("max_file_size_bytes must be at least 1, got %d", b.MaxFileSizeBytes)
	}
	return nil
}

func (v *Validator) validateRateLimit() error {
	r := v.cfg.RateLimit
	if r.TokensPerInterval < 1 {
		return fmt.Errorf("tokens_per_interval must be at least 1, got %d", r.TokensPerInterval)
	}
	if r.Interval.Std() <= 0 {
		return fmt.Errorf("interval must be positive, got %v", r.Interval.Std())
	}
	if r.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", r.Burst)
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if l.APIKey == "" {
		return ErrMissingAPIKey
	}
	if l.RequestTimeout.Std() <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", l.RequestTimeout.Std())
	}
	if l.MaxRateLimitRetries < 1 {
		return fmt.Errorf("max_rate_limit_retries must be at least 1, got %d", l.MaxRateLimitRetries)
	}
	if len(l.RateLimitBaseDelays) != l.MaxRateLimitRetries {
		return fmt.Errorf("rate_limit_base_delays must have exactly max_rate_limit_retries (%d) entries, got %d",
			l.MaxRateLimitRetries, len(l.RateLimitBaseDelays))
	}
	if l.ErrorRateWindow.Std() <= 0 {
		return fmt.Errorf("error_rate_window must be positive, got %v", l.ErrorRateWindow.Std())
	}
	if l.ErrorRateLimit < 1 {
		return fmt.Errorf("error_rate_limit must be at least 1, got %d", l.ErrorRateLimit)
	}
	return nil
}

func (v *Validator) validatePaths() error {
	if v.cfg.Paths.StateRoot == "" {
		return fmt.Errorf("state_root must not be empty")
	}
	if v.cfg.Paths.WorkspaceRoot == "" {
		return fmt.Errorf("workspace_root must not be empty")
	}
	return nil
}
