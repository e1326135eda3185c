package config

import (
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// loomEnv holds raw env values that override the YAML file.
type loomEnv struct {
	Credential   string `env:"LOOM_CREDENTIAL"`
	AnthropicKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	GroqKey      string `env:"GROQ_API_KEY"`
	Provider     string `env:"LOOM_PROVIDER"`
	Model        string `env:"LOOM_MODEL"`
	BaseURL      string `env:"LOOM_BASE_URL"`
	Streaming    string `env:"LOOM_STREAMING"`
	DatabasePath string `env:"LOOM_DB"`
	Backend      string `env:"LOOM_STORAGE_BACKEND"`
	MaxMutators  string `env:"LOOM_MAX_MUTATORS"`
}

// applyEnvOverrides applies environment variable overrides.
// Vendor keys are checked in increasing priority; LOOM_CREDENTIAL wins and
// leaves the provider to credential-shape detection.
func (c *Config) applyEnvOverrides() error {
	var raw loomEnv
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	vendorKeys := []struct {
		key      string
		provider string
	}{
		{raw.GeminiKey, "gemini"},
		{raw.GroqKey, "groq"},
		{raw.OpenAIKey, "openai"},
		{raw.AnthropicKey, "anthropic"},
	}
	for _, vk := range vendorKeys {
		if vk.key != "" {
			c.LLM.Credential = vk.key
			c.LLM.Provider = vk.provider
		}
	}
	if raw.Credential != "" {
		c.LLM.Credential = raw.Credential
		c.LLM.Provider = "auto"
	}

	if raw.Provider != "" {
		c.LLM.Provider = raw.Provider
	}
	if raw.Model != "" {
		c.LLM.Model = raw.Model
	}
	if raw.BaseURL != "" {
		c.LLM.BaseURL = raw.BaseURL
	}
	if raw.Streaming != "" {
		on, err := strconv.ParseBool(raw.Streaming)
		if err != nil {
			return fmt.Errorf("parse env: LOOM_STREAMING: %w", err)
		}
		c.LLM.Streaming = on
	}

	if raw.DatabasePath != "" {
		c.Storage.Path = raw.DatabasePath
	}
	if raw.Backend != "" {
		c.Storage.Backend = raw.Backend
	}
	if raw.MaxMutators != "" {
		n, err := strconv.Atoi(raw.MaxMutators)
		if err != nil {
			return fmt.Errorf("parse env: LOOM_MAX_MUTATORS: %w", err)
		}
		c.Rules.MaxMutators = n
		c.Rules.MinMutators = min(c.Rules.MinMutators, n)
	}
	return nil
}
