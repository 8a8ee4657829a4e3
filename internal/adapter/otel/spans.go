package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agents"

// StartExecutionSpan starts a span covering a full execution run.
func StartExecutionSpan(ctx context.Context, executionID, agentID, taskID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "execution",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("agent.id", agentID),
			attribute.String("task.id", taskID),
		),
	)
}

// StartTransitionSpan starts a span for a single state transition.
func StartTransitionSpan(ctx context.Context, executionID, from, to string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "transition",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("transition.from", from),
			attribute.String("transition.to", to),
		),
	)
}

// StartInferenceSpan starts a span for one inference call.
func StartInferenceSpan(ctx context.Context, executionID, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "inference",
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("inference.model", model),
		),
	)
}
