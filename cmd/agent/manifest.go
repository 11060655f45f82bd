package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/agentloop/internal/tools"
)

// Manifest declares additional command-backed tools in YAML. Each entry
// wraps an external program as a tool the planner can invoke.
type Manifest struct {
	Tools []ManifestTool `yaml:"tools"`
}

// ManifestTool is one command-backed tool definition.
type ManifestTool struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Command is the program and fixed arguments, e.g. "git log --oneline".
	// Tool arguments are appended in the order listed under args.
	Command string `yaml:"command"`
	// Args names the string parameters the planner supplies, in the order
	// they are appended to the command line.
	Args []string `yaml:"args"`
	// Mutates marks the tool as writing to a shared resource. ResourceArg
	// names the parameter whose value identifies that resource.
	Mutates     bool   `yaml:"mutates"`
	ResourceArg string `yaml:"resource_arg"`
}

// LoadManifest reads and validates a YAML tool manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i, t := range m.Tools {
		if t.Name == "" {
			return nil, fmt.Errorf("manifest tool %d: name is required", i)
		}
		if t.Command == "" {
			return nil, fmt.Errorf("manifest tool %q: command is required", t.Name)
		}
		if t.Mutates && t.ResourceArg == "" {
			return nil, fmt.Errorf("manifest tool %q: mutating tools need resource_arg", t.Name)
		}
	}
	return &m, nil
}

// BuildTools converts manifest entries into registrable tools.
func (m *Manifest) BuildTools() []tools.Tool {
	built := make([]tools.Tool, 0, len(m.Tools))
	for _, mt := range m.Tools {
		built = append(built, mt.build())
	}
	return built
}

func (mt ManifestTool) build() tools.Tool {
	props := make(map[string]interface{}, len(mt.Args))
	required := make([]interface{}, 0, len(mt.Args))
	for _, arg := range mt.Args {
		props[arg] = map[string]interface{}{"type": "string"}
		required = append(required, arg)
	}
	desc := tools.Descriptor{
		Name:        mt.Name,
		Description: mt.Description,
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
		Mutates: mt.Mutates,
	}
	if mt.Mutates {
		resourceArg := mt.ResourceArg
		desc.ResourceKey = func(args map[string]interface{}) string {
			v, _ := args[resourceArg].(string)
			return filepath.Clean(v)
		}
	}

	base := strings.Fields(mt.Command)
	argNames := mt.Args
	return tools.NewTool(desc, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		argv := append([]string{}, base...)
		for _, name := range argNames {
			v, _ := args[name].(string)
			argv = append(argv, v)
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		out, err := cmd.CombinedOutput()
		output := strings.TrimRight(string(out), "\n")
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, output)
		}
		return output, nil
	})
}
