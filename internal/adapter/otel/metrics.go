package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agents"

// Metrics holds all execution metric instruments.
type Metrics struct {
	ExecutionsStarted   metric.Int64Counter
	ExecutionsCompleted metric.Int64Counter
	ExecutionsFailed    metric.Int64Counter
	ExecutionsCancelled metric.Int64Counter
	StateConflicts      metric.Int64Counter
	ExecutionDuration   metric.Float64Histogram
	TokensUsed          metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ExecutionsStarted, err = meter.Int64Counter("agents.executions.started",
		metric.WithDescription("Number of executions started"))
	if err != nil {
		return nil, err
	}

	m.ExecutionsCompleted, err = meter.Int64Counter("agents.executions.completed",
		metric.WithDescription("Number of executions completed"))
	if err != nil {
		return nil, err
	}

	m.ExecutionsFailed, err = meter.Int64Counter("agents.executions.failed",
		metric.WithDescription("Number of executions failed"))
	if err != nil {
		return nil, err
	}

	m.ExecutionsCancelled, err = meter.Int64Counter("agents.executions.cancelled",
		metric.WithDescription("Number of executions cancelled"))
	if err != nil {
		return nil, err
	}

	m.StateConflicts, err = meter.Int64Counter("agents.executions.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"))
	if err != nil {
		return nil, err
	}

	m.ExecutionDuration, err = meter.Float64Histogram("agents.execution.duration_seconds",
		metric.WithDescription("Execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("agents.execution.tokens",
		metric.WithDescription("Total inference tokens used"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
