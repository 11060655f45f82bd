package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/openclaw/agentloop/internal/tools"
)

// builtinTools returns the demo tool set: filesystem read/list/write and
// shell execution. Write-capable tools declare the path they touch as their
// resource key so plan validation can reject conflicting writes.
func builtinTools() []tools.Tool {
	return []tools.Tool{
		tools.NewTool(tools.Descriptor{
			Name:        "fs_read",
			Description: "Read a file and return its contents as text.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"path"},
			},
		}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			path, _ := args["path"].(string)
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}),

		tools.NewTool(tools.Descriptor{
			Name:        "fs_list",
			Description: "List directory entries. Directories end with a slash.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"path"},
			},
		}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			path, _ := args["path"].(string)
			entries, err := os.ReadDir(path)
			if err != nil {
				return nil, err
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return names, nil
		}),

		tools.NewTool(tools.Descriptor{
			Name:        "fs_write",
			Description: "Write text content to a file, creating parent directories as needed.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    map[string]interface{}{"type": "string"},
					"content": map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"path", "content"},
			},
			Mutates: true,
			ResourceKey: func(args map[string]interface{}) string {
				path, _ := args["path"].(string)
				return filepath.Clean(path)
			},
		}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			path, _ := args["path"].(string)
			content, _ := args["content"].(string)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
		}),

		tools.NewTool(tools.Descriptor{
			Name:        "shell",
			Description: "Run a shell command and return combined stdout/stderr. Set cwd to control the working directory.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{"type": "string"},
					"cwd":     map[string]interface{}{"type": "string"},
				},
				"required": []interface{}{"command"},
			},
			Mutates: true,
			ResourceKey: func(args map[string]interface{}) string {
				cwd, _ := args["cwd"].(string)
				if cwd == "" {
					cwd = "."
				}
				return filepath.Clean(cwd)
			},
		}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			command, _ := args["command"].(string)
			cwd, _ := args["cwd"].(string)
			cmd := exec.CommandContext(ctx, "sh", "-c", command)
			if cwd != "" {
				cmd.Dir = cwd
			}
			out, err := cmd.CombinedOutput()
			output := strings.TrimRight(string(out), "\n")
			if err != nil {
				return nil, fmt.Errorf("%w: %s", err, output)
			}
			return output, nil
		}),
	}
}
