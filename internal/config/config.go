// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Eviction strategy names accepted in [conversation].
const (
	EvictionSlidingWindow = "sliding_window"
	EvictionTokenAware    = "token_aware"
)

// Config is the agent configuration.
type Config struct {
	Agent        AgentConfig        `toml:"agent"`
	SubAgent     SubAgentConfig     `toml:"sub_agent"`
	Conversation ConversationConfig `toml:"conversation"`
	LLM          LLMConfig          `toml:"llm"`
	Engine       EngineConfig       `toml:"engine"`
	Timeouts     TimeoutsConfig     `toml:"timeouts"`
	Logging      LoggingConfig      `toml:"logging"`
}

// AgentConfig bounds the planner session.
type AgentConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

// SubAgentConfig bounds delegated sessions independently of the planner.
type SubAgentConfig struct {
	MaxIterations int `toml:"max_iterations"`
}

// ConversationConfig selects and sizes the transcript eviction strategy.
type ConversationConfig struct {
	EvictionStrategy string `toml:"eviction_strategy"` // sliding_window or token_aware
	TokenBudget      int    `toml:"token_budget"`      // token_aware budget
	MaxTurns         int    `toml:"max_turns"`         // sliding_window bound on non-system turns
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
}

// EngineConfig sizes tool execution.
type EngineConfig struct {
	Workers int `toml:"workers"` // concurrent read-only steps
}

// TimeoutsConfig holds per-call timeouts, in seconds.
type TimeoutsConfig struct {
	Infer       int `toml:"infer"`        // per inference call
	Tool        int `toml:"tool"`         // per tool execution
	CancelGrace int `toml:"cancel_grace"` // in-flight tool grace after cancellation
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `toml:"level"` // debug|info|warn|error
}

// New returns a configuration with defaults applied.
func New() *Config {
	return &Config{
		Agent:    AgentConfig{MaxIterations: 28},
		SubAgent: SubAgentConfig{MaxIterations: 10},
		Conversation: ConversationConfig{
			EvictionStrategy: EvictionTokenAware,
			TokenBudget:      48000,
			MaxTurns:         40,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Engine: EngineConfig{Workers: 4},
		Timeouts: TimeoutsConfig{
			Infer:       120,
			Tool:        60,
			CancelGrace: 2,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadFile loads configuration from a TOML file, layered over defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads agentloop.toml from the current directory, or defaults
// when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	path := filepath.Join(cwd, "agentloop.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	return LoadFile(path)
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be > 0, got %d", c.Agent.MaxIterations)
	}
	if c.SubAgent.MaxIterations <= 0 {
		return fmt.Errorf("sub_agent.max_iterations must be > 0, got %d", c.SubAgent.MaxIterations)
	}
	switch c.Conversation.EvictionStrategy {
	case EvictionSlidingWindow:
		if c.Conversation.MaxTurns <= 0 {
			return fmt.Errorf("conversation.max_turns must be > 0 for sliding_window, got %d", c.Conversation.MaxTurns)
		}
	case EvictionTokenAware:
		if c.Conversation.TokenBudget <= 0 {
			return fmt.Errorf("conversation.token_budget must be > 0 for token_aware, got %d", c.Conversation.TokenBudget)
		}
	default:
		return fmt.Errorf("conversation.eviction_strategy must be %q or %q, got %q",
			EvictionSlidingWindow, EvictionTokenAware, c.Conversation.EvictionStrategy)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be > 0, got %d", c.Engine.Workers)
	}
	return nil
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}

// InferTimeout returns the inference timeout as a duration.
func (c *Config) InferTimeout() time.Duration {
	return time.Duration(c.Timeouts.Infer) * time.Second
}

// ToolTimeout returns the per-tool timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Timeouts.Tool) * time.Second
}

// CancelGrace returns the post-cancellation grace period as a duration.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.Timeouts.CancelGrace) * time.Second
}
