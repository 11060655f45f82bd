package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry holds all registered tools. Registration happens once at startup;
// after Freeze the registry is read-only and safe for concurrent use across
// sessions.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	frozen bool
}

type entry struct {
	tool   Tool
	desc   Descriptor
	schema *jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*entry)}
}

// Register adds a tool to the registry, compiling its parameter schema.
// It fails on duplicate names, invalid schemas, mutating tools without a
// resource key extractor, or registration after Freeze.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen; tools must be registered at startup")
	}

	desc := t.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("tool %q already registered", desc.Name)
	}
	if desc.Mutates && desc.ResourceKey == nil {
		return fmt.Errorf("mutating tool %q has no resource key extractor", desc.Name)
	}

	schema, err := compileSchema(desc.Name, desc.Parameters)
	if err != nil {
		return fmt.Errorf("tool %q: invalid parameter schema: %w", desc.Name, err)
	}

	r.tools[desc.Name] = &entry{tool: t, desc: desc, schema: schema}
	return nil
}

// Freeze marks the registry immutable. Further Register calls fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil
	}
	return e.tool
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Descriptor returns the descriptor for a tool name. The boolean reports
// whether the tool exists.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Descriptors returns all tool descriptors sorted by name, so prompt
// rendering is deterministic.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]Descriptor, 0, len(r.tools))
	for _, e := range r.tools {
		descs = append(descs, e.desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// ValidateArgs checks tool arguments against the tool's compiled parameter
// schema. A nil schema (tool registered without parameters) accepts anything.
func (r *Registry) ValidateArgs(name string, args map[string]interface{}) error {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool not found: %s", name)
	}
	if e.schema == nil {
		return nil
	}

	// Round-trip through JSON so argument values use the canonical types the
	// validator expects (float64 numbers, no typed structs).
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("tool %q: arguments not serializable: %w", name, err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tool %q: arguments not serializable: %w", name, err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}

	if err := e.schema.Validate(doc); err != nil {
		return fmt.Errorf("tool %q: %w", name, err)
	}
	return nil
}

// WithoutTool returns a copy of the registry minus the named tool. The copy is
// frozen. Used by delegation to strip capabilities from sub-agent registries.
func (r *Registry) WithoutTool(name string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &Registry{tools: make(map[string]*entry, len(r.tools)), frozen: true}
	for n, e := range r.tools {
		if n == name {
			continue
		}
		clone.tools[n] = e
	}
	return clone
}

// compileSchema compiles a tool parameter schema. Nil or empty schemas are
// allowed and mean "no constraints".
func compileSchema(name string, params map[string]interface{}) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return nil, nil
	}

	// Normalize to validator-canonical types before compiling.
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	url := "registry:///" + name + ".json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
