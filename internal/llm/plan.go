package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Invocation names a tool and the arguments to call it with.
type Invocation struct {
	ToolName   string                 `json:"tool_name"`
	ToolParams map[string]interface{} `json:"tool_params"`
}

// PlanStep pairs the model's rationale with a tool invocation. Immutable
// once parsed.
type PlanStep struct {
	Thought string     `json:"thought"`
	Tool    Invocation `json:"tool"`
}

// Plan is an ordered batch of tool invocations proposed for one execution
// phase.
type Plan struct {
	Steps []PlanStep `json:"plan"`
}

// Decision is the parsed outcome of one inference call: either a plan to
// execute or a final textual answer. Exactly one branch is taken.
type Decision struct {
	// Plan is non-nil when the model proposed tool invocations.
	Plan *Plan
	// Prose is the user-facing text surrounding the plan, or the full final
	// answer when Plan is nil.
	Prose string
}

// Final reports whether the decision terminates the loop.
func (d Decision) Final() bool { return d.Plan == nil }

// ParseDecision splits model output into a plan and user-facing prose.
// Output with no JSON plan object is a final answer. Output that contains a
// plan-shaped JSON object which fails to decode is a malformed plan and
// returns an error so the loop can feed a corrective observation back.
func ParseDecision(content string) (Decision, error) {
	raw := ExtractJSON(content)
	if raw == "" || !looksLikePlan(raw) {
		return Decision{Prose: strings.TrimSpace(content)}, nil
	}

	var plan Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return Decision{}, fmt.Errorf("malformed plan: %w", err)
	}
	for i, step := range plan.Steps {
		if step.Tool.ToolName == "" {
			return Decision{}, fmt.Errorf("malformed plan: step %d has no tool name", i)
		}
	}

	return Decision{Plan: &plan, Prose: proseAround(content, raw)}, nil
}

// looksLikePlan reports whether a JSON object carries a "plan" key. Other
// JSON in a final answer (code samples, data) must not be mistaken for one.
func looksLikePlan(raw string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return false
	}
	_, ok := probe["plan"]
	return ok
}

// proseAround removes the plan JSON (and any fenced block wrapping it) from
// the content, leaving the user-facing text.
func proseAround(content, raw string) string {
	for _, fenced := range []string{"```json\n" + raw + "\n```", "```\n" + raw + "\n```", raw} {
		if idx := strings.Index(content, fenced); idx >= 0 {
			return strings.TrimSpace(content[:idx] + content[idx+len(fenced):])
		}
	}
	return strings.TrimSpace(content)
}

var jsonBlockRe = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\n?```")
var codeBlockRe = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?```")

// ExtractJSON finds and returns a JSON object from text that may contain
// markdown or other content.
func ExtractJSON(content string) string {
	// First try: look for ```json code block
	if matches := jsonBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// Second try: look for ``` code block (no language specified)
	if matches := codeBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		candidate := strings.TrimSpace(matches[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate
		}
	}

	// Third try: find raw JSON object
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return ""
}
