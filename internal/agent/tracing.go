// Tracing instrumentation for agent sessions.
package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func tracer() trace.Tracer {
	return otel.Tracer("github.com/openclaw/agentloop/internal/agent")
}

// startSessionSpan starts a span covering one session run.
func startSessionSpan(ctx context.Context, sessionID, role string) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "session.run")
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("session.role", role),
	)
	return ctx, span
}

// endSessionSpan ends the session span with terminal state info.
func endSessionSpan(span trace.Span, state string, iterations int) {
	span.SetAttributes(
		attribute.String("session.state", state),
		attribute.Int("session.iterations", iterations),
	)
	span.End()
}

// startPhaseSpan starts a span for one loop phase.
func startPhaseSpan(ctx context.Context, phase string, iteration int) (context.Context, trace.Span) {
	ctx, span := tracer().Start(ctx, "phase."+phase)
	span.SetAttributes(
		attribute.String("phase.name", phase),
		attribute.Int("phase.iteration", iteration),
	)
	return ctx, span
}

// endPhaseSpan ends a phase span, recording the error if the phase failed.
func endPhaseSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
