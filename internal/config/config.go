package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all fateloom configuration.
type Config struct {
	// Generation provider settings
	LLM LLMConfig `yaml:"llm"`

	// Snapshot ledger limits and costs
	Ledger LedgerConfig `yaml:"ledger"`

	// Doom meter thresholds
	Meter MeterConfig `yaml:"meter"`

	// Save slots
	Storage StorageConfig `yaml:"storage"`

	// World mutators drawn for each run
	Rules RulesConfig `yaml:"rules"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation provider.
type LLMConfig struct {
	Provider         string  `yaml:"provider"` // auto, gemini, gemini-sdk, openai, anthropic, ollama, deepseek, groq, openrouter
	Credential       string  `yaml:"credential"`
	Model            string  `yaml:"model"`
	BaseURL          string  `yaml:"base_url"`
	Timeout          string  `yaml:"timeout"`
	Streaming        bool    `yaml:"streaming"`
	MaxDecodeRetries int     `yaml:"max_decode_retries"`
	Temperature      float64 `yaml:"temperature"`
	MaxOutputTokens  int     `yaml:"max_output_tokens"`
}

// LedgerConfig configures the snapshot ledger.
type LedgerConfig struct {
	Capacity  int `yaml:"capacity"`
	MajorCost int `yaml:"major_cost"`
	MinorCost int `yaml:"minor_cost"`
}

// MeterConfig configures the doom meter.
type MeterConfig struct {
	Thresholds   []int `yaml:"thresholds"`
	DecayPerTick int   `yaml:"decay_per_tick"` // subtracted on every time tick, 0 disables
}

// StorageConfig configures the persistence backend.
type StorageConfig struct {
	Backend     string `yaml:"backend"` // memory, sqlite, bolt
	Path        string `yaml:"path"`
	Namespace   string `yaml:"namespace"`
	AutosaveKey string `yaml:"autosave_key"`
	LedgerKey   string `yaml:"ledger_key"`
	LegacyKey   string `yaml:"legacy_key"`
	HistoryCap  int    `yaml:"history_cap"`
}

// RulesConfig bounds how many world mutators a new run draws.
type RulesConfig struct {
	MinMutators int `yaml:"min_mutators"`
	MaxMutators int `yaml:"max_mutators"` // 0 disables mutators
}

// DefaultThresholds are the doom meter levels used when none are configured.
var DefaultThresholds = []int{25, 50, 75, 100}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:         "auto",
			Timeout:          "120s",
			Streaming:        false,
			MaxDecodeRetries: 2,
			Temperature:      0.9,
			MaxOutputTokens:  4096,
		},

		Ledger: LedgerConfig{
			Capacity:  50,
			MajorCost: 8,
			MinorCost: 5,
		},

		Meter: MeterConfig{
			Thresholds: append([]int(nil), DefaultThresholds...),
		},

		Storage: StorageConfig{
			Backend:     "sqlite",
			Path:        "data/fateloom.db",
			AutosaveKey: "rpg_autosave",
			LedgerKey:   "rpg_savepoints",
			LegacyKey:   "rpg_legacy_save",
			HistoryCap:  30,
		},

		Rules: RulesConfig{
			MinMutators: 1,
			MaxMutators: 3,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetLLMTimeout returns the transport timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// GetThresholds returns the configured meter thresholds, or the defaults
// when the configured list is empty, out of range or decreasing.
func (c *Config) GetThresholds() []int {
	if !validThresholds(c.Meter.Thresholds) {
		return append([]int(nil), DefaultThresholds...)
	}
	return append([]int(nil), c.Meter.Thresholds...)
}

func validThresholds(ts []int) bool {
	if len(ts) == 0 {
		return false
	}
	prev := 0
	for _, t := range ts {
		if t < prev || t > 100 {
			return false
		}
		prev = t
	}
	return true
}

// ValidProviders lists all accepted provider names.
var ValidProviders = []string{"auto", "gemini", "gemini-sdk", "openai", "anthropic", "ollama", "deepseek", "groq", "openrouter"}

// ValidBackends lists all accepted storage backends.
var ValidBackends = []string{"memory", "sqlite", "bolt"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.MaxDecodeRetries < 0 {
		return fmt.Errorf("max_decode_retries must be >= 0, got %d", c.LLM.MaxDecodeRetries)
	}
	if c.Ledger.Capacity <= 0 {
		return fmt.Errorf("ledger capacity must be positive, got %d", c.Ledger.Capacity)
	}
	if c.Ledger.MajorCost < 0 || c.Ledger.MinorCost < 0 {
		return fmt.Errorf("ledger costs must be non-negative")
	}
	if c.Rules.MinMutators < 0 || c.Rules.MaxMutators < c.Rules.MinMutators {
		return fmt.Errorf("rules need 0 <= min_mutators <= max_mutators, got %d and %d", c.Rules.MinMutators, c.Rules.MaxMutators)
	}
	if !contains(ValidBackends, c.Storage.Backend) {
		return fmt.Errorf("invalid storage backend: %s (valid: %v)", c.Storage.Backend, ValidBackends)
	}
	if c.Storage.Backend != "memory" && c.Storage.Path == "" {
		return fmt.Errorf("storage path required for %s backend", c.Storage.Backend)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
