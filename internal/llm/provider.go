// Package llm defines the inference capability consumed by the agent loop
// and the wire shapes planners produce.
package llm

import "context"

// Message is a single prompt message.
type Message struct {
	Role    string
	Content string
}

// ToolDef is the planner-facing definition of an available tool.
type ToolDef struct {
	Name        string                 `json:"tool_name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// InferRequest carries the transcript and available tools to the provider.
type InferRequest struct {
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

// InferResponse is the raw provider output. The content either embeds a JSON
// plan or is a final textual answer; ParseDecision tells them apart.
type InferResponse struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the inference capability. The core treats it as a black box:
// prompt in, structured plan or final text out.
type Provider interface {
	// Infer invokes the model with the given transcript. Blocking; callers
	// bound it with a context deadline.
	Infer(ctx context.Context, req InferRequest) (*InferResponse, error)
	// Name identifies the provider for logging.
	Name() string
}

// Usage accumulates token usage across inference calls in one session.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add folds a response's usage into the running totals.
func (u *Usage) Add(resp *InferResponse) {
	if resp == nil {
		return
	}
	u.InputTokens += resp.InputTokens
	u.OutputTokens += resp.OutputTokens
	u.TotalTokens += resp.InputTokens + resp.OutputTokens
}
