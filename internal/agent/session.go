// Package agent drives the plan/execute/observe loop for one session. Each
// session owns its conversation and counters; sessions share only the tool
// registry, which is read-only after startup.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/agentloop/internal/conversation"
	"github.com/openclaw/agentloop/internal/engine"
	"github.com/openclaw/agentloop/internal/llm"
	"github.com/openclaw/agentloop/internal/logging"
	"github.com/openclaw/agentloop/internal/tools"
)

// State is the session's position in the loop. Final and Halted are
// terminal.
type State string

const (
	StateInit      State = "INIT"
	StatePlanning  State = "PLANNING"
	StateExecuting State = "EXECUTING"
	StateObserving State = "OBSERVING"
	StateFinal     State = "FINAL"
	StateHalted    State = "HALTED"
)

// Role distinguishes the top-level planner from delegated sub-agents.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleSubAgent Role = "sub_agent"
)

// Config bounds one session.
type Config struct {
	Role          Role
	MaxIterations int
	// InferTimeout bounds each inference call. Zero means no timeout.
	InferTimeout time.Duration
	// MaxTokens caps model output per inference call.
	MaxTokens int
	// SystemPrompt overrides the default rendered prompt when non-empty.
	SystemPrompt string
}

// Result is what a terminal session hands back to its caller.
type Result struct {
	Output     string
	State      State
	Iterations int
	Usage      llm.Usage
}

// Session is one agent session. Not safe for concurrent use; the loop is
// single-threaded and phases strictly alternate.
type Session struct {
	id       string
	cfg      Config
	provider llm.Provider
	registry *tools.Registry
	engine   *engine.Engine
	conv     conversation.Manager
	logger   *logging.Logger

	state      State
	iterations int
	usage      llm.Usage

	// lastObservation is the most recent tool output summary, kept so a
	// halted session can still produce a partial answer.
	lastObservation string
}

// NewSession assembles a session around its collaborators. The conversation
// manager must be freshly created and exclusively owned by this session.
func NewSession(provider llm.Provider, registry *tools.Registry, eng *engine.Engine, conv conversation.Manager, cfg Config, logger *logging.Logger) *Session {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 28
	}
	if cfg.Role == "" {
		cfg.Role = RolePlanner
	}
	id := uuid.NewString()
	if logger == nil {
		logger = logging.New()
	}
	return &Session{
		id:       id,
		cfg:      cfg,
		provider: provider,
		registry: registry,
		engine:   eng,
		conv:     conv,
		logger:   logger.WithComponent("agent").WithSessionID(id),
		state:    StateInit,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// Run drives the loop for one goal until a terminal state. A halted session
// still returns a Result with explanatory output; the error says why it
// halted.
func (s *Session) Run(ctx context.Context, goal string) (*Result, error) {
	start := time.Now()
	s.logger.SessionStart(string(s.cfg.Role))
	ctx, span := startSessionSpan(ctx, s.id, string(s.cfg.Role))
	defer func() {
		endSessionSpan(span, string(s.state), s.iterations)
		s.logger.SessionComplete(string(s.state), s.iterations, time.Since(start))
	}()

	prompt := s.cfg.SystemPrompt
	if prompt == "" {
		prompt = RenderSystemPrompt(s.registry.Descriptors())
	}
	if err := s.conv.Append(conversation.Turn{Role: conversation.RoleSystem, Content: prompt}); err != nil {
		return s.halt(fmt.Errorf("seed system turn: %w", err))
	}
	if err := s.conv.Append(conversation.Turn{Role: conversation.RoleUser, Content: goal}); err != nil {
		return s.halt(fmt.Errorf("seed goal turn: %w", err))
	}

	malformedStreak := 0
	for {
		if ctx.Err() != nil {
			return s.halt(fmt.Errorf("session canceled: %w", ctx.Err()))
		}

		// Entering PLANNING consumes one iteration. The budget check comes
		// first so the session halts the instant it would be exceeded.
		if s.iterations+1 > s.cfg.MaxIterations {
			return s.halt(&BudgetExceededError{Iterations: s.iterations, Max: s.cfg.MaxIterations})
		}
		s.iterations++
		s.state = StatePlanning
		s.logger.PhaseStart("plan", s.iterations)

		planCtx, planSpan := startPhaseSpan(ctx, "plan", s.iterations)
		resp, err := s.infer(planCtx)
		endPhaseSpan(planSpan, err)
		if err != nil {
			return s.halt(&InferenceError{Err: err, LastObservation: s.lastObservation})
		}
		s.usage.Add(resp)

		decision, err := llm.ParseDecision(resp.Content)
		if err != nil {
			malformedStreak++
			if malformedStreak >= 2 {
				return s.halt(fmt.Errorf("two consecutive malformed plans: %w", err))
			}
			if aerr := s.feedCorrection(resp.Content, err); aerr != nil {
				return s.halt(aerr)
			}
			continue
		}

		if decision.Final() {
			s.state = StateFinal
			output := decision.Prose
			if output == "" {
				output = s.partialAnswer("the model finished without a written answer")
			}
			return &Result{Output: output, State: StateFinal, Iterations: s.iterations, Usage: s.usage}, nil
		}

		// An empty plan is an implicit observe: nothing to run, loop back
		// to planning without new tool results.
		if len(decision.Plan.Steps) == 0 {
			malformedStreak = 0
			if err := s.conv.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: resp.Content}); err != nil {
				return s.halt(err)
			}
			continue
		}

		s.state = StateExecuting
		s.logger.PhaseStart("execute", s.iterations)
		execStart := time.Now()

		// Invocation ids are minted when the plan is accepted; tool turns
		// correlate back to them.
		ids := make([]string, len(decision.Plan.Steps))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
		assistantContent := resp.Content
		if err := s.conv.Append(conversation.Turn{
			Role:          conversation.RoleAssistant,
			Content:       assistantContent,
			InvocationIDs: ids,
		}); err != nil {
			return s.halt(err)
		}

		execCtx, execSpan := startPhaseSpan(ctx, "execute", s.iterations)
		results, err := s.engine.Execute(execCtx, decision.Plan, s.registry)
		endPhaseSpan(execSpan, err)
		if err != nil {
			// Wholesale rejection: no steps ran. Feed the rejection back as
			// a synthetic observation so the model can self-correct, once.
			malformedStreak++
			if malformedStreak >= 2 {
				return s.halt(fmt.Errorf("plan rejected twice in a row: %w", err))
			}
			obs := fmt.Sprintf("Your plan was rejected before execution: %v. Produce a corrected plan.", err)
			if aerr := s.conv.Append(conversation.Turn{Role: conversation.RoleUser, Content: obs}); aerr != nil {
				return s.halt(aerr)
			}
			continue
		}
		malformedStreak = 0
		s.logger.PhaseComplete("execute", s.iterations, time.Since(execStart), fmt.Sprintf("%d steps", len(results)))

		// Results arriving after cancellation are discarded, never appended.
		if ctx.Err() != nil {
			return s.halt(fmt.Errorf("session canceled during execution: %w", ctx.Err()))
		}

		s.state = StateObserving
		var obsParts []string
		for i, r := range results {
			content := renderResult(r)
			obsParts = append(obsParts, content)
			if err := s.conv.Append(conversation.Turn{
				Role:          conversation.RoleTool,
				Content:       content,
				CorrelationID: ids[i],
			}); err != nil {
				return s.halt(err)
			}
		}
		s.lastObservation = strings.Join(obsParts, "\n")
	}
}

// infer calls the provider with the current transcript, bounded by the
// configured timeout.
func (s *Session) infer(ctx context.Context) (*llm.InferResponse, error) {
	if s.cfg.InferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.InferTimeout)
		defer cancel()
	}
	req := llm.InferRequest{
		Messages:  messagesFromTurns(s.conv.Snapshot()),
		Tools:     toolDefs(s.registry.Descriptors()),
		MaxTokens: s.cfg.MaxTokens,
	}
	return s.provider.Infer(ctx, req)
}

// feedCorrection records the malformed output and a corrective observation
// so the next planning pass can fix it.
func (s *Session) feedCorrection(raw string, cause error) error {
	if err := s.conv.Append(conversation.Turn{Role: conversation.RoleAssistant, Content: raw}); err != nil {
		return err
	}
	obs := fmt.Sprintf("Your previous response could not be parsed as a plan: %v. Respond with either a valid plan JSON object or a final answer.", cause)
	return s.conv.Append(conversation.Turn{Role: conversation.RoleUser, Content: obs})
}

// halt moves the session to HALTED with a best-effort partial answer. A
// halt never yields an empty result.
func (s *Session) halt(cause error) (*Result, error) {
	s.state = StateHalted
	output := s.partialAnswer(cause.Error())
	return &Result{Output: output, State: StateHalted, Iterations: s.iterations, Usage: s.usage}, cause
}

func (s *Session) partialAnswer(reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The session stopped before completing the goal: %s.", reason)
	if s.lastObservation != "" {
		b.WriteString("\n\nLast observation:\n")
		b.WriteString(s.lastObservation)
	}
	return b.String()
}

// renderResult serializes a tool result for the transcript.
func renderResult(r engine.ToolResult) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"step_index":%d,"tool_name":%q,"status":"error","error_detail":"unserializable output"}`, r.StepIndex, r.ToolName)
	}
	return string(data)
}

func messagesFromTurns(turns []conversation.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: string(t.Role), Content: t.Content})
	}
	return msgs
}

func toolDefs(descs []tools.Descriptor) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(descs))
	for _, d := range descs {
		defs = append(defs, llm.ToolDef{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
	}
	return defs
}
