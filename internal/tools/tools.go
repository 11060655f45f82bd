// Package tools provides the tool capability interface and registry.
package tools

import (
	"context"
)

// ResourceKeyFunc derives the identity of the shared resource a mutating tool
// touches (typically a file path) from its arguments. Used by plan validation
// to detect steps that would mutate overlapping resources.
type ResourceKeyFunc func(args map[string]interface{}) string

// Descriptor is the static metadata a tool registers with. It is immutable
// after registration.
type Descriptor struct {
	// Name uniquely identifies the tool within a registry.
	Name string
	// Description is the planner-facing explanation of what the tool does.
	Description string
	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]interface{}
	// Mutates reports whether the tool mutates a shared resource. Mutating
	// steps are serialized and checked for resource overlap; read-only steps
	// may run concurrently.
	Mutates bool
	// ResourceKey extracts the mutated resource identity from arguments.
	// Required when Mutates is true; ignored otherwise.
	ResourceKey ResourceKeyFunc
}

// Tool represents an executable tool.
type Tool interface {
	// Descriptor returns the tool's static metadata.
	Descriptor() Descriptor
	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// ExecuteFunc adapts a plain function to the Tool interface.
type ExecuteFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

type funcTool struct {
	desc Descriptor
	fn   ExecuteFunc
}

// NewTool builds a Tool from a descriptor and an execute function.
func NewTool(desc Descriptor, fn ExecuteFunc) Tool {
	return &funcTool{desc: desc, fn: fn}
}

func (t *funcTool) Descriptor() Descriptor { return t.desc }

func (t *funcTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.fn(ctx, args)
}
