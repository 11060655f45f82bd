package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openclaw/agentloop/internal/agent"
	"github.com/openclaw/agentloop/internal/config"
	"github.com/openclaw/agentloop/internal/conversation"
	"github.com/openclaw/agentloop/internal/engine"
	"github.com/openclaw/agentloop/internal/llm"
	"github.com/openclaw/agentloop/internal/logging"
	"github.com/openclaw/agentloop/internal/subagent"
	"github.com/openclaw/agentloop/internal/tools"
)

// Run implements the run command: wire everything up, run the planner
// session on the goal, print its output.
func (c *RunCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	logger := logging.New()
	if c.Verbose {
		logger.SetLevel(logging.LevelDebug)
	} else {
		logger.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	}

	provider, err := llm.NewProvider(llm.FantasyConfig{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.Model,
		APIKey:    cfg.GetAPIKey(),
		BaseURL:   cfg.LLM.BaseURL,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return err
	}

	toolset, err := loadToolset(c.Tools)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		Workers:     cfg.Engine.Workers,
		StepTimeout: cfg.ToolTimeout(),
		CancelGrace: cfg.CancelGrace(),
		Logger:      logger,
	})

	newConv := conversationFactory(cfg)

	factory := subagent.NewFactory(provider, toolset, eng, agent.Config{
		MaxIterations: cfg.SubAgent.MaxIterations,
		InferTimeout:  cfg.InferTimeout(),
		MaxTokens:     cfg.LLM.MaxTokens,
	}, newConv, logger)

	registry := tools.NewRegistry()
	for _, t := range toolset {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}
	if err := registry.Register(factory.Tool()); err != nil {
		return fmt.Errorf("register delegation tool: %w", err)
	}
	registry.Freeze()

	session := agent.NewSession(provider, registry, eng, newConv(), agent.Config{
		Role:          agent.RolePlanner,
		MaxIterations: cfg.Agent.MaxIterations,
		InferTimeout:  cfg.InferTimeout(),
		MaxTokens:     cfg.LLM.MaxTokens,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := session.Run(ctx, c.Goal)
	fmt.Println(result.Output)
	if runErr != nil {
		return fmt.Errorf("session halted: %w", runErr)
	}
	return nil
}

// Run implements the validate command.
func (c *ValidateCmd) Run() error {
	if _, err := config.LoadFile(c.Config); err != nil {
		return err
	}
	fmt.Printf("%s: OK\n", c.Config)
	if c.Tools != "" {
		if _, err := LoadManifest(c.Tools); err != nil {
			return err
		}
		fmt.Printf("%s: OK\n", c.Tools)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// loadToolset combines the builtin tools with any manifest-defined ones.
func loadToolset(manifestPath string) ([]tools.Tool, error) {
	toolset := builtinTools()
	if manifestPath == "" {
		return toolset, nil
	}
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return append(toolset, m.BuildTools()...), nil
}

// conversationFactory returns a constructor for the configured eviction
// strategy. Every session gets its own manager instance.
func conversationFactory(cfg *config.Config) func() conversation.Manager {
	if cfg.Conversation.EvictionStrategy == config.EvictionSlidingWindow {
		maxTurns := cfg.Conversation.MaxTurns
		return func() conversation.Manager { return conversation.NewSlidingWindow(maxTurns) }
	}
	budget := cfg.Conversation.TokenBudget
	return func() conversation.Manager { return conversation.NewTokenAware(budget) }
}
