// Package engine executes validated plans under ordering and isolation
// constraints. Read-only steps run concurrently on a bounded worker pool;
// mutating steps run strictly in plan order. Results always come back in
// step-index order regardless of completion order.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/agentloop/internal/llm"
	"github.com/openclaw/agentloop/internal/logging"
	"github.com/openclaw/agentloop/internal/tools"
)

// Status reports the outcome of one step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ToolResult is the per-step outcome. StepIndex matches the originating
// plan position.
type ToolResult struct {
	StepIndex   int         `json:"step_index"`
	ToolName    string      `json:"tool_name"`
	Status      Status      `json:"status"`
	Output      interface{} `json:"output"`
	ErrorDetail string      `json:"error_detail,omitempty"`
}

// Options configures an Engine.
type Options struct {
	// Workers bounds concurrent read-only steps. Defaults to 4.
	Workers int
	// StepTimeout bounds each tool execution. Zero means no timeout.
	StepTimeout time.Duration
	// CancelGrace is how long in-flight steps get to finish after the
	// context is canceled before being abandoned. Defaults to 2s.
	CancelGrace time.Duration
	// Logger receives tool call/result events. Defaults to a fresh logger.
	Logger *logging.Logger
}

// Engine runs plans against a tool registry.
type Engine struct {
	workers     int
	stepTimeout time.Duration
	cancelGrace time.Duration
	logger      *logging.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.CancelGrace <= 0 {
		opts.CancelGrace = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.New().WithComponent("engine")
	}
	return &Engine{
		workers:     opts.Workers,
		stepTimeout: opts.StepTimeout,
		cancelGrace: opts.CancelGrace,
		logger:      opts.Logger,
	}
}

// Execute validates and runs a plan. A validation failure rejects the plan
// wholesale: no steps execute and the returned error is a *ValidationError.
// Per-step failures do not abort siblings; they come back as error results.
func (e *Engine) Execute(ctx context.Context, plan *llm.Plan, registry *tools.Registry) ([]ToolResult, error) {
	if verr := validate(plan, registry); verr != nil {
		e.logger.PlanRejected(verr.Reason, len(plan.Steps))
		return nil, verr
	}
	if len(plan.Steps) == 0 {
		return nil, nil
	}

	resCh := make(chan ToolResult, len(plan.Steps))
	sem := make(chan struct{}, e.workers)

	// Read-only steps fan out onto the worker pool.
	for i, step := range plan.Steps {
		desc, _ := registry.Descriptor(step.Tool.ToolName)
		if desc.Mutates {
			continue
		}
		go func(idx int, step llm.PlanStep) {
			sem <- struct{}{}
			defer func() { <-sem }()
			resCh <- e.runStep(ctx, idx, step, registry)
		}(i, step)
	}

	// Mutating steps run strictly in plan order, each after the previous
	// write completes. Cancellation is honored at step boundaries.
	canceled := false
	for i, step := range plan.Steps {
		desc, _ := registry.Descriptor(step.Tool.ToolName)
		if !desc.Mutates {
			continue
		}
		if canceled || ctx.Err() != nil {
			canceled = true
			resCh <- ToolResult{
				StepIndex:   i,
				ToolName:    step.Tool.ToolName,
				Status:      StatusError,
				ErrorDetail: "canceled before execution",
			}
			continue
		}
		resCh <- e.runStep(ctx, i, step, registry)
	}

	// Assemble results into step-index order. After cancellation, in-flight
	// steps get a bounded grace period; anything later is discarded.
	results := make([]ToolResult, len(plan.Steps))
	seen := make([]bool, len(plan.Steps))
	collected := 0
	var graceTimer <-chan time.Time

	for collected < len(plan.Steps) {
		select {
		case r := <-resCh:
			results[r.StepIndex] = r
			seen[r.StepIndex] = true
			collected++
		case <-ctx.Done():
			if graceTimer == nil {
				graceTimer = time.After(e.cancelGrace)
			}
			select {
			case r := <-resCh:
				results[r.StepIndex] = r
				seen[r.StepIndex] = true
				collected++
			case <-graceTimer:
				for i := range results {
					if !seen[i] {
						results[i] = ToolResult{
							StepIndex:   i,
							ToolName:    plan.Steps[i].Tool.ToolName,
							Status:      StatusError,
							ErrorDetail: "abandoned: canceled before completion",
						}
					}
				}
				return results, nil
			}
		}
	}

	return results, nil
}

// runStep executes one step, converting failures and timeouts into error
// results rather than propagating them.
func (e *Engine) runStep(ctx context.Context, idx int, step llm.PlanStep, registry *tools.Registry) (result ToolResult) {
	result = ToolResult{StepIndex: idx, ToolName: step.Tool.ToolName}
	start := time.Now()
	desc, _ := registry.Descriptor(step.Tool.ToolName)
	ctx, span := startStepSpan(ctx, step.Tool.ToolName, idx, desc.Mutates)
	e.logger.ToolCall(step.Tool.ToolName, idx)

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusError
			result.ErrorDetail = fmt.Sprintf("tool panicked: %v", r)
		}
		var err error
		if result.Status == StatusError {
			err = fmt.Errorf("%s", result.ErrorDetail)
		}
		e.logger.ToolResult(step.Tool.ToolName, time.Since(start), err)
		endStepSpan(span, result.Status, result.ErrorDetail)
	}()

	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	tool := registry.Get(step.Tool.ToolName)
	output, err := tool.Execute(stepCtx, step.Tool.ToolParams)
	if err != nil {
		result.Status = StatusError
		if stepCtx.Err() == context.DeadlineExceeded {
			result.ErrorDetail = fmt.Sprintf("tool timed out after %s", e.stepTimeout)
		} else {
			result.ErrorDetail = err.Error()
		}
		return result
	}

	result.Status = StatusSuccess
	result.Output = output
	return result
}
