package config

import (
	"fmt"
	"os"
	"time"
)

// ModelConfig configures one remote model collaborator (embedding, classifier or insight).
type ModelConfig struct {
	Name       string        `mapstructure:"name"`         // Display name used in logs
	Provider   string        `mapstructure:"provider"`     // Provider type, validated per role
	Model      string        `mapstructure:"model"`        // Model name/ID
	APIKey     string        `mapstructure:"api_key"`      // API key (can be set directly or via env var)
	APIKeyEnv  string        `mapstructure:"api_key_env"`  // Environment variable name for API key
	BaseURL    string        `mapstructure:"base_url"`     // Base URL override
	BaseURLEnv string        `mapstructure:"base_url_env"` // Environment variable name for base URL
	Dimensions int           `mapstructure:"dimensions"`   // Embedding vector dimensions (embedding only)
	Timeout    time.Duration `mapstructure:"timeout"`      // Per-call timeout
}

var (
	embeddingProviders  = []string{"jina", "openai-compatible"}
	classifierProviders = []string{"huggingface"}
	insightProviders    = []string{"gemini", "openai"}
)

// ResolveEnvVars resolves environment variable references in the configuration.
// Direct values (APIKey, BaseURL) take precedence if already set.
func (c *ModelConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
	if c.BaseURLEnv != "" && c.BaseURL == "" {
		if val := os.Getenv(c.BaseURLEnv); val != "" {
			c.BaseURL = val
		}
	}
}

// validate checks the fields every collaborator needs.
func (c *ModelConfig) validate(role string, providers []string) error {
	if c.Provider == "" {
		return fmt.Errorf("%s: provider is required", role)
	}
	known := false
	for _, p := range providers {
		if p == c.Provider {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%s: unknown provider %q", role, c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("%s: model is required", role)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s: timeout must be positive", role)
	}
	return nil
}

// requireAPIKey validates the configuration including the credential.
func (c *ModelConfig) requireAPIKey(role string) error {
	if c.APIKey == "" {
		hint := c.APIKeyEnv
		if hint == "" {
			hint = "api_key"
		}
		return fmt.Errorf("%s: credential is required (set %s)", role, hint)
	}
	return nil
}
