// Package config provides configuration management for the Steward
// assistant. It uses Viper to load a YAML file from ~/.steward and
// merges STEWARD_-prefixed environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for Steward.
// It is loaded from ~/.steward/config.yaml and can be overridden by
// environment variables.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Router       RouterConfig       `mapstructure:"router" yaml:"router"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Prompt       PromptConfig       `mapstructure:"prompt" yaml:"prompt"`
	Eval         EvalConfig         `mapstructure:"eval" yaml:"eval"`
	Storage      StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig contains the model endpoint settings shared by the router
// and the orchestrator.
type LLMConfig struct {
	// Endpoint is the base URL of the messages API.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// APIKey authenticates against the endpoint. Usually supplied via
	// STEWARD_LLM_API_KEY rather than the config file.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// TimeoutSec is the per-request HTTP timeout.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RouterConfig controls the two-stage message router.
type RouterConfig struct {
	// Model is the small, fast model used for classification.
	Model string `mapstructure:"model" yaml:"model"`
}

// OrchestratorConfig controls the tool-calling conversation loop.
type OrchestratorConfig struct {
	// Model is the capable model used for full conversations.
	Model string `mapstructure:"model" yaml:"model"`
	// MaxIterations bounds tool round-trips within one conversation.
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
	// MaxTokens caps model output per call.
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// PromptConfig controls system prompt assembly.
type PromptConfig struct {
	// CacheTTLSec is how long a built system prompt is reused before
	// rules are re-read from storage.
	CacheTTLSec int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
}

// EvalConfig controls the replay harness.
type EvalConfig struct {
	// Model used for replay. Empty means the orchestrator model.
	Model string `mapstructure:"model" yaml:"model,omitempty"`
}

// StorageConfig locates the on-disk state.
type StorageConfig struct {
	// DataDir holds the SQLite database. Tilde is expanded.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Console switches to human-readable console output instead of JSON.
	Console bool `mapstructure:"console" yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Endpoint:   "https://api.anthropic.com",
			TimeoutSec: 60,
		},
		Router: RouterConfig{
			Model: "claude-3-5-haiku-latest",
		},
		Orchestrator: OrchestratorConfig{
			Model:         "claude-sonnet-4-5",
			MaxIterations: 10,
			MaxTokens:     1024,
		},
		Prompt: PromptConfig{
			CacheTTLSec: 300,
		},
		Storage: StorageConfig{
			DataDir: "~/.steward",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads configuration from the default location
// (~/.steward/config.yaml) and merges with environment variables. If no
// config file exists, it creates one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".steward", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges
// with environment variables. If the file doesn't exist, it creates one
// with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: STEWARD_LLM_API_KEY, STEWARD_LOGGING_LEVEL
	v.SetEnvPrefix("STEWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in zero values so a partial config file still
// yields a runnable configuration.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = defaults.LLM.Endpoint
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = defaults.LLM.TimeoutSec
	}
	if c.Router.Model == "" {
		c.Router.Model = defaults.Router.Model
	}
	if c.Orchestrator.Model == "" {
		c.Orchestrator.Model = defaults.Orchestrator.Model
	}
	if c.Orchestrator.MaxIterations == 0 {
		c.Orchestrator.MaxIterations = defaults.Orchestrator.MaxIterations
	}
	if c.Orchestrator.MaxTokens == 0 {
		c.Orchestrator.MaxTokens = defaults.Orchestrator.MaxTokens
	}
	if c.Prompt.CacheTTLSec == 0 {
		c.Prompt.CacheTTLSec = defaults.Prompt.CacheTTLSec
	}
	if c.Eval.Model == "" {
		c.Eval.Model = c.Orchestrator.Model
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = expandPath(defaults.Storage.DataDir)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// LLMTimeout returns the HTTP timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSec) * time.Second
}

// PromptCacheTTL returns the prompt cache TTL as a duration.
func (c *Config) PromptCacheTTL() time.Duration {
	return time.Duration(c.Prompt.CacheTTLSec) * time.Second
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint cannot be empty")
	}
	if c.Router.Model == "" {
		return fmt.Errorf("router.model cannot be empty")
	}
	if c.Orchestrator.Model == "" {
		return fmt.Errorf("orchestrator.model cannot be empty")
	}
	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator.max_iterations must be at least 1")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir cannot be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// writeConfigFile writes a Config struct to a YAML file. Uses
// gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands a leading tilde to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}
