package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openclaw/agentloop/internal/tools"
)

const promptPreamble = `You are an agent that solves tasks by planning tool invocations, observing their results, and iterating until you can answer.

On each turn respond with exactly one of:

1. A plan: a JSON object with a "plan" key holding an ordered list of steps. Each step has a "thought" explaining why and a "tool" naming the invocation. Steps in one plan must not write to the same resource twice.
2. A final answer: plain text with no plan object, once tool results are sufficient.

Plan format:

` + "```json" + `
{
  "plan": [
    {
      "thought": "List the directory before reading anything",
      "tool": {"tool_name": "fs_list", "tool_params": {"path": "."}}
    }
  ]
}
` + "```" + `

Tool results arrive as tool messages, one per step, in plan order. An empty plan is allowed when you only need to reconsider existing results.`

// RenderSystemPrompt builds the session's system prompt from the registered
// tool descriptors.
func RenderSystemPrompt(descs []tools.Descriptor) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nAvailable tools:\n")
	for _, d := range descs {
		fmt.Fprintf(&b, "\n- %s: %s", d.Name, d.Description)
		if d.Mutates {
			b.WriteString(" (writes)")
		}
		if len(d.Parameters) > 0 {
			if schema, err := json.Marshal(d.Parameters); err == nil {
				fmt.Fprintf(&b, "\n  parameters: %s", schema)
			}
		}
	}
	return b.String()
}
