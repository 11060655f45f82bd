// Tracing instrumentation for tool execution.
package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startStepSpan starts a span for one tool step.
func startStepSpan(ctx context.Context, tool string, stepIndex int, mutates bool) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("github.com/openclaw/agentloop/internal/engine").Start(ctx, "tool."+tool)
	span.SetAttributes(
		attribute.String("tool.name", tool),
		attribute.Int("tool.step", stepIndex),
		attribute.Bool("tool.mutates", mutates),
	)
	return ctx, span
}

// endStepSpan ends a step span with its result status.
func endStepSpan(span trace.Span, status Status, errorDetail string) {
	span.SetAttributes(attribute.String("tool.status", string(status)))
	if errorDetail != "" {
		span.SetAttributes(attribute.String("tool.error", errorDetail))
	}
	span.End()
}
