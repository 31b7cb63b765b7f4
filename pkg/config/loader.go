package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsFS embed.FS

// Load builds the umbrella Config: built-in defaults, an optional
// <stateRoot>/config.yaml override merged on top with mergo (user values
// win), then environment variables applied last, followed by validation.
func Load(stateRoot string) (*Config, error) {
	cfg, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if err := mergeUserOverride(cfg, stateRoot); err != nil {
		return nil, err
	}

	applyEnv(cfg, stateRoot)

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}

func loadDefaults() (*Config, error) {
	raw, err := defaultsFS.ReadFile("defaults.yaml")
	if err != nil {
		return nil, NewLoadError("defaults.yaml", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expandEnv(raw), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// mergeUserOverride reads <stateRoot>/config.yaml if present and merges it
// over cfg, with override values winning. A missing file is not an error —
// the built-in defaults stand on their own.
func mergeUserOverride(cfg *Config, stateRoot string) error {
	path := filepath.Join(stateRoot, "config.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return NewLoadError(path, err)
	}

	var override Config
	if err := yaml.Unmarshal(expandEnv(raw), &override); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := mergo.Merge(cfg, override, mergo.WithOverride); err != nil {
		return NewLoadError(path, err)
	}
	return nil
}

// applyEnv applies environment variable overrides, which always take
// precedence over both YAML sources.
func applyEnv(cfg *Config, stateRoot string) {
	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")

	if v := os.Getenv("WORKSPACE_ROOT"); v != "" {
		cfg.Paths.WorkspaceRoot = v
	} else if cfg.Paths.WorkspaceRoot == "" {
		cfg.Paths.WorkspaceRoot = filepath.Join(stateRoot, "workspaces")
	}
	if cfg.Paths.StateRoot == "" {
		cfg.Paths.StateRoot = stateRoot
	}

	if v := os.Getenv("LLM_REQUEST_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.LLM.RequestTimeout = Duration(secs) * Duration(1_000_000_000)
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.TokensPerInterval = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("UI_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UI.Port = n
		}
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
}
