// Package otel provides OpenTelemetry integration for ontoflow engine events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/ontoflow/engine"
)

// TracingHandler translates engine events into OpenTelemetry spans. Each
// action execution gets one span, opened on action.started and closed on
// action.finished or action.failed; every rule.fired becomes a span event on
// the execution span.
type TracingHandler struct {
	tracer trace.Tracer

	mu    sync.RWMutex
	spans map[string]trace.Span // executionID -> span
}

// NewTracingHandler creates a TracingHandler that uses the given tracer to
// create spans from engine events.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer: tracer,
		spans:  make(map[string]trace.Span),
	}
}

// Handle processes an engine event and creates or ends spans accordingly.
// It implements engine.EventHandler semantics.
func (h *TracingHandler) Handle(e engine.Event) {
	switch e.Kind {
	case engine.EventWorkspaceLoaded, engine.EventWorkspaceReset:
		h.handleWorkspaceEvent(e)
	case engine.EventActionStarted:
		h.handleActionStarted(e)
	case engine.EventRuleFired:
		h.handleRuleFired(e)
	case engine.EventActionFinished:
		h.handleActionFinished(e)
	case engine.EventActionFailed:
		h.handleActionFailed(e)
	}
}

// handleWorkspaceEvent records load and reset as instantaneous spans.
func (h *TracingHandler) handleWorkspaceEvent(e engine.Event) {
	_, span := h.tracer.Start(context.Background(), string(e.Kind),
		trace.WithTimestamp(e.Time),
	)
	if domain, ok := e.Payload["domain"].(string); ok {
		span.SetAttributes(attribute.String("ontoflow.domain", domain))
	}
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

// handleActionStarted creates the execution span.
func (h *TracingHandler) handleActionStarted(e engine.Event) {
	_, span := h.tracer.Start(context.Background(), "action:"+e.ActionID,
		trace.WithAttributes(
			attribute.String("ontoflow.execution_id", e.ExecutionID),
			attribute.String("ontoflow.action_id", e.ActionID),
			attribute.String("ontoflow.node_id", e.NodeID),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.spans[e.ExecutionID] = span
	h.mu.Unlock()
}

// handleRuleFired adds a span event on the execution span.
func (h *TracingHandler) handleRuleFired(e engine.Event) {
	h.mu.RLock()
	span, ok := h.spans[e.ExecutionID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	span.AddEvent("rule.fired",
		trace.WithTimestamp(e.Time),
		trace.WithAttributes(
			attribute.String("ontoflow.rule_id", e.RuleID),
			attribute.String("ontoflow.target_node", e.NodeID),
		),
	)
}

// handleActionFinished ends the execution span with success status.
func (h *TracingHandler) handleActionFinished(e engine.Event) {
	h.mu.Lock()
	span, ok := h.spans[e.ExecutionID]
	if ok {
		delete(h.spans, e.ExecutionID)
	}
	h.mu.Unlock()

	if ok {
		span.SetAttributes(
			attribute.String("ontoflow.duration", e.Elapsed.String()),
		)
		span.SetStatus(codes.Ok, "")
		span.End(trace.WithTimestamp(e.Time))
	}
}

// handleActionFailed ends the execution span with error status. Failed
// preconditions never emit action.started, so usually there is no span to
// end; the rejection is still recorded as an instantaneous error span.
func (h *TracingHandler) handleActionFailed(e engine.Event) {
	h.mu.Lock()
	span, ok := h.spans[e.ExecutionID]
	if ok {
		delete(h.spans, e.ExecutionID)
	}
	h.mu.Unlock()

	if !ok {
		_, span = h.tracer.Start(context.Background(), "action:"+e.ActionID,
			trace.WithAttributes(
				attribute.String("ontoflow.execution_id", e.ExecutionID),
				attribute.String("ontoflow.action_id", e.ActionID),
				attribute.String("ontoflow.node_id", e.NodeID),
			),
			trace.WithTimestamp(e.Time),
		)
	}

	span.SetStatus(codes.Error, "execution rejected")
	span.End(trace.WithTimestamp(e.Time))
}

// ActiveSpanContext returns the SpanContext for the active execution span.
// Returns an empty SpanContext if not found.
func (h *TracingHandler) ActiveSpanContext(executionID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.spans[executionID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}
