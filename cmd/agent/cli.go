// Package main is the entry point for the agentloop CLI.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run the agent on a goal"`
	Validate ValidateCmd `cmd:"" help:"Validate a config file and tool manifest"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// RunCmd runs the planner session on a goal.
type RunCmd struct {
	Goal    string `arg:"" help:"Goal for the agent to accomplish"`
	Config  string `short:"c" help:"Config file path (default: agentloop.toml in cwd)"`
	Tools   string `short:"t" help:"YAML manifest of additional command tools"`
	Verbose bool   `short:"v" help:"Enable debug logging"`
}

// ValidateCmd checks config and manifest files without running anything.
type ValidateCmd struct {
	Config string `arg:"" optional:"" default:"agentloop.toml" help:"Config file path"`
	Tools  string `short:"t" help:"YAML manifest of additional command tools"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
