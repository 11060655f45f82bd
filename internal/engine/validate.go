package engine

import (
	"fmt"
	"strings"

	"github.com/openclaw/agentloop/internal/llm"
	"github.com/openclaw/agentloop/internal/tools"
)

// ValidationError rejects a whole plan before any step executes.
type ValidationError struct {
	// Reason is the human-readable rejection cause.
	Reason string
	// Steps lists the offending step indices, when applicable.
	Steps []int
	// Isolation marks rejections caused by overlapping mutations.
	Isolation bool
}

func (e *ValidationError) Error() string {
	if len(e.Steps) > 0 {
		return fmt.Sprintf("plan rejected: %s (steps %v)", e.Reason, e.Steps)
	}
	return "plan rejected: " + e.Reason
}

// validate checks the whole plan fail-fast: every tool must exist, every
// argument set must satisfy its schema, and no two mutating steps may target
// equal or overlapping resources.
func validate(plan *llm.Plan, registry *tools.Registry) *ValidationError {
	type mutation struct {
		step int
		key  string
	}
	var mutations []mutation

	for i, step := range plan.Steps {
		desc, ok := registry.Descriptor(step.Tool.ToolName)
		if !ok {
			return &ValidationError{
				Reason: fmt.Sprintf("unknown tool %q", step.Tool.ToolName),
				Steps:  []int{i},
			}
		}
		if err := registry.ValidateArgs(step.Tool.ToolName, step.Tool.ToolParams); err != nil {
			return &ValidationError{
				Reason: fmt.Sprintf("invalid arguments: %v", err),
				Steps:  []int{i},
			}
		}
		if desc.Mutates {
			mutations = append(mutations, mutation{step: i, key: desc.ResourceKey(step.Tool.ToolParams)})
		}
	}

	for i := 0; i < len(mutations); i++ {
		for j := i + 1; j < len(mutations); j++ {
			if keysOverlap(mutations[i].key, mutations[j].key) {
				return &ValidationError{
					Reason: fmt.Sprintf("isolation violation: steps %d and %d mutate overlapping resource %q",
						mutations[i].step, mutations[j].step, mutations[j].key),
					Steps:     []int{mutations[i].step, mutations[j].step},
					Isolation: true,
				}
			}
		}
	}

	return nil
}

// keysOverlap treats resource keys as slash-separated paths: keys overlap
// when equal or when one is a path prefix of the other.
func keysOverlap(a, b string) bool {
	a = strings.TrimSuffix(a, "/")
	b = strings.TrimSuffix(b, "/")
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
