package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/ontoflow/engine"
)

// MetricsHandler translates engine events into OpenTelemetry metrics. It
// records counters for executions, failures, fired rules, and workspace
// loads, and a histogram of execution durations.
type MetricsHandler struct {
	executions     metric.Int64Counter
	failures       metric.Int64Counter
	rulesFired     metric.Int64Counter
	workspaceLoads metric.Int64Counter
	duration       metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create instruments for recording engine metrics.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	executions, err := meter.Int64Counter("ontoflow.action.executions",
		metric.WithDescription("Number of action executions"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("ontoflow.action.failures",
		metric.WithDescription("Number of rejected action executions"),
	)
	if err != nil {
		return nil, err
	}

	rulesFired, err := meter.Int64Counter("ontoflow.rule.fired",
		metric.WithDescription("Number of ripple rules fired"),
	)
	if err != nil {
		return nil, err
	}

	workspaceLoads, err := meter.Int64Counter("ontoflow.workspace.loads",
		metric.WithDescription("Number of workspace loads"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("ontoflow.action.duration",
		metric.WithDescription("Duration of action execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		executions:     executions,
		failures:       failures,
		rulesFired:     rulesFired,
		workspaceLoads: workspaceLoads,
		duration:       duration,
	}, nil
}

// Handle processes an engine event and records the appropriate metrics.
// It implements engine.EventHandler semantics.
func (h *MetricsHandler) Handle(e engine.Event) {
	ctx := context.Background()
	switch e.Kind {
	case engine.EventWorkspaceLoaded:
		domain := ""
		if d, ok := e.Payload["domain"].(string); ok {
			domain = d
		}
		h.workspaceLoads.Add(ctx, 1, metric.WithAttributes(
			attribute.String("domain", domain),
		))
	case engine.EventRuleFired:
		h.rulesFired.Add(ctx, 1, metric.WithAttributes(
			attribute.String("rule_id", e.RuleID),
		))
	case engine.EventActionFinished:
		attrs := metric.WithAttributes(
			attribute.String("action_id", e.ActionID),
		)
		h.executions.Add(ctx, 1, attrs)
		h.duration.Record(ctx, e.Elapsed.Seconds(), attrs)
	case engine.EventActionFailed:
		h.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action_id", e.ActionID),
		))
	}
}
