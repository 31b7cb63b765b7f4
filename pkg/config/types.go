// Package config loads, merges, and validates the orchestrator's runtime
// configuration: built-in defaults, an optional user YAML override, and
// environment variables, in that order of increasing precedence.
package config

// Budgets holds the resource caps enforced by the orchestrator.
type Budgets struct {
	MaxStepRetries          int      `yaml:"max_step_retries"`
	MaxAPICalls             int      `yaml:"max_api_calls"`
	MaxTotalTokens          int      `yaml:"max_total_tokens"`
	WallClockTimeout        Duration `yaml:"wall_clock_timeout"`
	ConsecutiveFailureLimit int      `yaml:"consecutive_failure_limit"`
	MaxFileSizeBytes        int64    `yaml:"max_file_size_bytes"`
	MinFreeDiskBytes        int64    `yaml:"min_free_disk_bytes"`
}

// RateLimitConfig configures C3's token bucket.
type RateLimitConfig struct {
	TokensPerInterval int      `yaml:"tokens_per_interval"`
	Interval          Duration `yaml:"interval"`
	Burst             int      `yaml:"burst"`
}

// LLMConfig configures C4's HTTP client, retry schedule, and error-rate
// breaker.
type LLMConfig struct {
	Endpoint            string     `yaml:"endpoint"`
	Model               string     `yaml:"model"`
	APIKey              string     `yaml:"-"` // sourced only from the environment, never persisted
	RequestTimeout      Duration   `yaml:"request_timeout"`
	MaxRateLimitRetries int        `yaml:"max_rate_limit_retries"`
	RateLimitBaseDelays []Duration `yaml:"rate_limit_base_delays"`
	ServerErrorDelay    Duration   `yaml:"server_error_delay"`
	JitterFraction      float64    `yaml:"jitter_fraction"`
	MinBackoff          Duration   `yaml:"min_backoff"`
	ErrorRateWindow     Duration   `yaml:"error_rate_window"`
	ErrorRateLimit      int        `yaml:"error_rate_limit"`
	Temperature         float64    `yaml:"temperature"`
	TopP                float64    `yaml:"top_p"`
	MaxTokens           int        `yaml:"max_tokens"`
}

// HeartbeatConfig configures the background heartbeat writer.
type HeartbeatConfig struct {
	Interval Duration `yaml:"interval"`
}

// PathsConfig locates the on-disk state root and heartbeat/PID/emergency
// stop files beneath it.
type PathsConfig struct {
	StateRoot     string `yaml:"state_root"`
	WorkspaceRoot string `yaml:"workspace_root"`
}

// UIConfig configures the optional read-only monitoring server.
type UIConfig struct {
	Port int `yaml:"port"`
}

// Config is the umbrella configuration object returned by Load, threaded
// into the orchestrator and never read from the environment again once
// constructed — there are no ambient singletons.
type Config struct {
	Budgets            Budgets         `yaml:"budgets"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
	LLM                LLMConfig       `yaml:"llm"`
	Heartbeat          HeartbeatConfig `yaml:"heartbeat"`
	Paths              PathsConfig     `yaml:"paths"`
	UI                 UIConfig        `yaml:"ui"`
	StrictVerification bool            `yaml:"strict_verification"`
	Debug              bool            `yaml:"-"`
}
