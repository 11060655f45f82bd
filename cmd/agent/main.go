package main

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	// Load .env for API keys and other env vars
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("agentloop"),
		kong.Description("Plan/act/observe agent loop"),
		kong.UsageOnError(),
		kongVars(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}

// Run implements the version command.
func (c *VersionCmd) Run() error {
	fmt.Printf("agentloop %s (commit %s, built %s)\n", version, commit, buildTime)
	return nil
}
