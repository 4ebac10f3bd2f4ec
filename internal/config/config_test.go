package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Router.Model == "" {
		t.Error("expected a default router model")
	}
	if cfg.Orchestrator.MaxIterations != 10 {
		t.Errorf("expected max iterations 10, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Prompt.CacheTTLSec != 300 {
		t.Errorf("expected prompt cache TTL 300s, got %d", cfg.Prompt.CacheTTLSec)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), ".steward", "config.yaml")

	// First load creates the default file.
	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.Orchestrator.Model == "" {
		t.Error("expected orchestrator model to be populated")
	}

	// Modify and reload.
	cfg.Router.Model = "custom-fast-model"
	if err := cfg.SaveToPath(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	reloaded, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to reload config: %v", err)
	}
	if reloaded.Router.Model != "custom-fast-model" {
		t.Errorf("expected saved router model, got '%s'", reloaded.Router.Model)
	}
}

func TestLoadFromPath_PartialFileGetsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	partial := []byte("logging:\n  level: debug\n")
	if err := os.WriteFile(configPath, partial, 0644); err != nil {
		t.Fatalf("failed to write partial config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load partial config: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
	if cfg.Orchestrator.MaxIterations != 10 {
		t.Errorf("expected defaulted max iterations, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Eval.Model != cfg.Orchestrator.Model {
		t.Errorf("expected eval model to default to orchestrator model, got '%s'", cfg.Eval.Model)
	}
	if cfg.LLMTimeout() != 60*time.Second {
		t.Errorf("expected defaulted 60s timeout, got %v", cfg.LLMTimeout())
	}
}

func TestEnvironmentOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("STEWARD_LOGGING_LEVEL", "error")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected env override 'error', got '%s'", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.LLM.Endpoint = "" }},
		{"empty router model", func(c *Config) { c.Router.Model = "" }},
		{"empty orchestrator model", func(c *Config) { c.Orchestrator.Model = "" }},
		{"zero iterations", func(c *Config) { c.Orchestrator.MaxIterations = 0 }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
