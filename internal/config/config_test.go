package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentloop.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Agent.MaxIterations != 28 {
		t.Errorf("Agent.MaxIterations = %d, want 28", cfg.Agent.MaxIterations)
	}
	if cfg.Conversation.EvictionStrategy != EvictionTokenAware {
		t.Errorf("EvictionStrategy = %q, want token_aware", cfg.Conversation.EvictionStrategy)
	}
	if cfg.Timeouts.CancelGrace != 2 {
		t.Errorf("Timeouts.CancelGrace = %d, want 2", cfg.Timeouts.CancelGrace)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[agent]
max_iterations = 7

[conversation]
eviction_strategy = "sliding_window"
max_turns = 12

[llm]
provider = "openai"
model = "gpt-4o"
max_tokens = 2048

[timeouts]
infer = 30
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Agent.MaxIterations != 7 {
		t.Errorf("Agent.MaxIterations = %d, want 7", cfg.Agent.MaxIterations)
	}
	if cfg.Conversation.EvictionStrategy != EvictionSlidingWindow {
		t.Errorf("EvictionStrategy = %q", cfg.Conversation.EvictionStrategy)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.InferTimeout() != 30*time.Second {
		t.Errorf("InferTimeout() = %v, want 30s", cfg.InferTimeout())
	}
	// Untouched sections keep their defaults.
	if cfg.SubAgent.MaxIterations != 10 {
		t.Errorf("SubAgent.MaxIterations = %d, want default 10", cfg.SubAgent.MaxIterations)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"zero sub-agent iterations", func(c *Config) { c.SubAgent.MaxIterations = 0 }},
		{"unknown strategy", func(c *Config) { c.Conversation.EvictionStrategy = "lru" }},
		{"sliding window without bound", func(c *Config) {
			c.Conversation.EvictionStrategy = EvictionSlidingWindow
			c.Conversation.MaxTurns = 0
		}},
		{"token aware without budget", func(c *Config) { c.Conversation.TokenBudget = 0 }},
		{"missing model", func(c *Config) { c.LLM.Model = "" }},
		{"zero workers", func(c *Config) { c.Engine.Workers = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestGetAPIKeyFallsBackToProviderDefault(t *testing.T) {
	cfg := New()
	cfg.LLM.Provider = "openai"
	t.Setenv("OPENAI_API_KEY", "sk-test")
	if got := cfg.GetAPIKey(); got != "sk-test" {
		t.Errorf("GetAPIKey() = %q", got)
	}

	cfg.LLM.APIKeyEnv = "CUSTOM_KEY"
	t.Setenv("CUSTOM_KEY", "sk-custom")
	if got := cfg.GetAPIKey(); got != "sk-custom" {
		t.Errorf("GetAPIKey() with api_key_env = %q", got)
	}
}

func TestLoadFileRejectsBadTOML(t *testing.T) {
	path := writeConfig(t, "not [valid toml")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() = nil, want parse error")
	}
}
