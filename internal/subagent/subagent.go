// Package subagent implements delegation: a tool that spawns a fresh,
// stateless agent session for one bounded sub-task and returns only its
// final text. The sub-session shares nothing with its caller except the
// tool set; its conversation is discarded when the call returns.
package subagent

import (
	"context"
	"fmt"

	"github.com/openclaw/agentloop/internal/agent"
	"github.com/openclaw/agentloop/internal/conversation"
	"github.com/openclaw/agentloop/internal/engine"
	"github.com/openclaw/agentloop/internal/llm"
	"github.com/openclaw/agentloop/internal/logging"
	"github.com/openclaw/agentloop/internal/tools"
)

// ToolName is the registry name of the delegation tool.
const ToolName = "spawn_agent"

// MaxDepth bounds recursive delegation. The planner runs at depth 0, so a
// sub-agent may delegate once more; the depth-2 session has no delegation
// tool at all.
const MaxDepth = 2

// Factory builds delegation tools and the sessions they spawn. One factory
// serves all depths; each spawned session gets its own conversation and
// counters.
type Factory struct {
	provider llm.Provider
	base     []tools.Tool
	engine   *engine.Engine
	cfg      agent.Config
	newConv  func() conversation.Manager
	logger   *logging.Logger
}

// NewFactory creates a delegation factory. base is the tool set available to
// sub-agents, excluding the delegation tool itself, which the factory adds
// per depth. newConv creates a fresh conversation manager per sub-session.
func NewFactory(provider llm.Provider, base []tools.Tool, eng *engine.Engine, cfg agent.Config, newConv func() conversation.Manager, logger *logging.Logger) *Factory {
	cfg.Role = agent.RoleSubAgent
	if logger == nil {
		logger = logging.New()
	}
	return &Factory{
		provider: provider,
		base:     base,
		engine:   eng,
		cfg:      cfg,
		newConv:  newConv,
		logger:   logger.WithComponent("subagent"),
	}
}

// Tool returns the delegation tool for the planner's registry. Sessions it
// spawns run at depth 1.
func (f *Factory) Tool() tools.Tool {
	return f.toolAtDepth(1)
}

func (f *Factory) toolAtDepth(depth int) tools.Tool {
	desc := tools.Descriptor{
		Name:        ToolName,
		Description: "Delegate a self-contained sub-task to a fresh agent. The sub-agent sees only the task text you provide, runs to completion, and returns only its final answer.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task": map[string]interface{}{
					"type":        "string",
					"description": "Complete, standalone description of the sub-task.",
				},
			},
			"required": []interface{}{"task"},
		},
	}
	return tools.NewTool(desc, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		task, _ := args["task"].(string)
		if task == "" {
			return nil, fmt.Errorf("spawn_agent: task must be a non-empty string")
		}
		return f.run(ctx, task, depth)
	})
}

// run executes one delegated session to a terminal state and discards it.
func (f *Factory) run(ctx context.Context, task string, depth int) (interface{}, error) {
	registry, err := f.registryForDepth(depth)
	if err != nil {
		return nil, fmt.Errorf("spawn_agent: %w", err)
	}

	session := agent.NewSession(f.provider, registry, f.engine, f.newConv(), f.cfg, f.logger)
	result, err := session.Run(ctx, task)
	if err != nil {
		// A halted sub-agent still produced explanatory text; carry it in
		// the error so the planner observes it.
		return nil, fmt.Errorf("sub-agent halted after %d iterations: %s", result.Iterations, result.Output)
	}
	return result.Output, nil
}

// registryForDepth builds the tool set a session at the given depth sees.
// Sessions below MaxDepth get a delegation tool for the next depth; sessions
// at MaxDepth get none.
func (f *Factory) registryForDepth(depth int) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	for _, t := range f.base {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	if depth < MaxDepth {
		if err := registry.Register(f.toolAtDepth(depth + 1)); err != nil {
			return nil, err
		}
	}
	registry.Freeze()
	return registry, nil
}
