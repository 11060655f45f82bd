package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openclaw/agentloop/internal/llm"
	"github.com/openclaw/agentloop/internal/tools"
)

// testRegistry builds a registry with one read tool and one write tool.
// probe sleeps for delay_ms then echoes its tag; write records its path.
func testRegistry(t *testing.T, executed *atomic.Int32) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()

	probe := tools.NewTool(tools.Descriptor{
		Name:        "probe",
		Description: "Read probe with configurable latency.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"tag":      map[string]interface{}{"type": "string"},
				"delay_ms": map[string]interface{}{"type": "number"},
			},
			"required": []interface{}{"tag"},
		},
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if executed != nil {
			executed.Add(1)
		}
		if delay, ok := args["delay_ms"].(float64); ok {
			select {
			case <-time.After(time.Duration(delay) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return args["tag"], nil
	})
	if err := r.Register(probe); err != nil {
		t.Fatalf("Register(probe) error = %v", err)
	}

	write := tools.NewTool(tools.Descriptor{
		Name:        "write",
		Description: "Write to a path.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"path"},
		},
		Mutates: true,
		ResourceKey: func(args map[string]interface{}) string {
			path, _ := args["path"].(string)
			return path
		},
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		if executed != nil {
			executed.Add(1)
		}
		return "wrote " + args["path"].(string), nil
	})
	if err := r.Register(write); err != nil {
		t.Fatalf("Register(write) error = %v", err)
	}

	failing := tools.NewTool(tools.Descriptor{
		Name:        "failing",
		Description: "Always fails.",
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register(failing) error = %v", err)
	}

	panicking := tools.NewTool(tools.Descriptor{
		Name:        "panicking",
		Description: "Always panics.",
	}, func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		panic("unexpected state")
	})
	if err := r.Register(panicking); err != nil {
		t.Fatalf("Register(panicking) error = %v", err)
	}

	r.Freeze()
	return r
}

func probeStep(tag string, delayMS int) llm.PlanStep {
	return llm.PlanStep{
		Thought: "probe " + tag,
		Tool: llm.Invocation{
			ToolName:   "probe",
			ToolParams: map[string]interface{}{"tag": tag, "delay_ms": float64(delayMS)},
		},
	}
}

func writeStep(path string) llm.PlanStep {
	return llm.PlanStep{
		Thought: "write " + path,
		Tool: llm.Invocation{
			ToolName:   "write",
			ToolParams: map[string]interface{}{"path": path},
		},
	}
}

func TestExecuteResultsInStepOrder(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{Workers: 4})

	// Earlier steps sleep longer, so completion order inverts plan order.
	plan := &llm.Plan{Steps: []llm.PlanStep{
		probeStep("s0", 60),
		probeStep("s1", 30),
		probeStep("s2", 0),
	}}

	results, err := e.Execute(context.Background(), plan, r)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, res := range results {
		if res.StepIndex != i {
			t.Errorf("results[%d].StepIndex = %d", i, res.StepIndex)
		}
		if res.Status != StatusSuccess {
			t.Errorf("results[%d].Status = %s", i, res.Status)
		}
		if want := fmt.Sprintf("s%d", i); res.Output != want {
			t.Errorf("results[%d].Output = %v, want %s", i, res.Output, want)
		}
	}
}

func TestExecuteMixedReadsAndWrites(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{Workers: 2})

	plan := &llm.Plan{Steps: []llm.PlanStep{
		probeStep("a", 20),
		writeStep("/tmp/x"),
		probeStep("b", 0),
		writeStep("/tmp/y"),
	}}

	results, err := e.Execute(context.Background(), plan, r)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for i, res := range results {
		if res.Status != StatusSuccess {
			t.Errorf("results[%d] = %+v, want success", i, res)
		}
	}
	if results[1].Output != "wrote /tmp/x" || results[3].Output != "wrote /tmp/y" {
		t.Errorf("write outputs misplaced: %v / %v", results[1].Output, results[3].Output)
	}
}

func TestIsolationViolationRejectsWholePlan(t *testing.T) {
	var executed atomic.Int32
	r := testRegistry(t, &executed)
	e := New(Options{})

	plan := &llm.Plan{Steps: []llm.PlanStep{
		writeStep("/tmp/same"),
		probeStep("reader", 0),
		writeStep("/tmp/same"),
	}}

	results, err := e.Execute(context.Background(), plan, r)
	if results != nil {
		t.Errorf("expected no results from a rejected plan, got %v", results)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Execute() error = %v, want *ValidationError", err)
	}
	if !verr.Isolation {
		t.Error("expected an isolation violation")
	}
	if len(verr.Steps) != 2 || verr.Steps[0] != 0 || verr.Steps[1] != 2 {
		t.Errorf("conflicting steps = %v, want [0 2]", verr.Steps)
	}
	if executed.Load() != 0 {
		t.Errorf("%d steps executed from a rejected plan", executed.Load())
	}
}

func TestOverlappingResourceKeysRejected(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{})

	// A directory and a file under it overlap even though the keys differ.
	plan := &llm.Plan{Steps: []llm.PlanStep{
		writeStep("/tmp/dir"),
		writeStep("/tmp/dir/file.txt"),
	}}

	_, err := e.Execute(context.Background(), plan, r)
	var verr *ValidationError
	if !errors.As(err, &verr) || !verr.Isolation {
		t.Fatalf("Execute() error = %v, want isolation violation", err)
	}
}

func TestUnknownToolRejected(t *testing.T) {
	var executed atomic.Int32
	r := testRegistry(t, &executed)
	e := New(Options{})

	plan := &llm.Plan{Steps: []llm.PlanStep{
		probeStep("ok", 0),
		{Tool: llm.Invocation{ToolName: "nonexistent"}},
	}}

	_, err := e.Execute(context.Background(), plan, r)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Execute() error = %v, want *ValidationError", err)
	}
	if !strings.Contains(verr.Error(), "nonexistent") {
		t.Errorf("error does not name the unknown tool: %v", verr)
	}
	if executed.Load() != 0 {
		t.Error("steps executed despite rejection")
	}
}

func TestSchemaMismatchRejected(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{})

	plan := &llm.Plan{Steps: []llm.PlanStep{{
		Tool: llm.Invocation{ToolName: "probe", ToolParams: map[string]interface{}{"tag": 7}},
	}}}

	_, err := e.Execute(context.Background(), plan, r)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Execute() error = %v, want *ValidationError", err)
	}
}

func TestStepFailureDoesNotAbortSiblings(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{Workers: 2})

	plan := &llm.Plan{Steps: []llm.PlanStep{
		probeStep("fine", 0),
		{Tool: llm.Invocation{ToolName: "failing"}},
		probeStep("also fine", 0),
	}}

	results, err := e.Execute(context.Background(), plan, r)
	if err != nil {
		t.Fatalf("Execute() error = %v, per-step failures must not be fatal", err)
	}
	if results[0].Status != StatusSuccess || results[2].Status != StatusSuccess {
		t.Error("sibling steps affected by one failure")
	}
	if results[1].Status != StatusError || !strings.Contains(results[1].ErrorDetail, "boom") {
		t.Errorf("results[1] = %+v, want error with detail", results[1])
	}
}

func TestStepTimeoutBecomesErrorResult(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{StepTimeout: 20 * time.Millisecond})

	plan := &llm.Plan{Steps: []llm.PlanStep{
		probeStep("slow", 500),
		probeStep("fast", 0),
	}}

	results, err := e.Execute(context.Background(), plan, r)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if results[0].Status != StatusError || !strings.Contains(results[0].ErrorDetail, "timed out") {
		t.Errorf("results[0] = %+v, want timeout error", results[0])
	}
	if results[1].Status != StatusSuccess {
		t.Errorf("results[1] = %+v, want success", results[1])
	}
}

func TestPanicBecomesErrorResult(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{})

	plan := &llm.Plan{Steps: []llm.PlanStep{
		{Tool: llm.Invocation{ToolName: "panicking"}},
	}}

	results, err := e.Execute(context.Background(), plan, r)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if results[0].Status != StatusError || !strings.Contains(results[0].ErrorDetail, "panicked") {
		t.Errorf("results[0] = %+v, want recovered panic", results[0])
	}
}

func TestCancellationAbandonsInFlightSteps(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{Workers: 2, CancelGrace: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	plan := &llm.Plan{Steps: []llm.PlanStep{
		probeStep("stuck", 5000),
		probeStep("quick", 0),
	}}

	time.AfterFunc(20*time.Millisecond, cancel)
	start := time.Now()
	results, err := e.Execute(ctx, plan, r)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Execute() took %v, grace period not honored", elapsed)
	}
	if results[0].Status != StatusError {
		t.Errorf("results[0] = %+v, want canceled/abandoned error", results[0])
	}
}

func TestEmptyPlanProducesNoResults(t *testing.T) {
	r := testRegistry(t, nil)
	e := New(Options{})

	results, err := e.Execute(context.Background(), &llm.Plan{}, r)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}
