// Package engine implements the ontology simulation engine: workspace
// loading, action execution with ripple propagation, insight generation,
// snapshot/reset, and execution history.
package engine

import "time"

// EventKind identifies the type of event emitted by the engine.
type EventKind string

const (
	// EventWorkspaceLoaded is emitted after a workspace replaces engine state.
	EventWorkspaceLoaded EventKind = "workspace.loaded"

	// EventWorkspaceReset is emitted after a reset restores the snapshot.
	EventWorkspaceReset EventKind = "workspace.reset"

	// EventActionStarted is emitted when an action execution begins.
	EventActionStarted EventKind = "action.started"

	// EventRuleFired is emitted when a ripple rule matches a neighbor and
	// its secondary effect is applied.
	EventRuleFired EventKind = "rule.fired"

	// EventActionFinished is emitted when an action execution completes.
	EventActionFinished EventKind = "action.finished"

	// EventActionFailed is emitted when an execution is rejected by a
	// precondition (unknown action or node).
	EventActionFailed EventKind = "action.failed"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured record of what happened during engine operation.
// Events are consumed by observability handlers (tracing, metrics); they are
// not part of the simulation result.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// ExecutionID is the unique identifier for one ExecuteAction call
	// (empty for workspace-level events).
	ExecutionID string

	// ActionID is the executed action (empty for workspace-level events).
	ActionID string

	// NodeID is the node the event concerns: the execution target for
	// action events, the matched neighbor for rule events.
	NodeID string

	// RuleID is set on rule-level events.
	RuleID string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the execution started.
	Elapsed time.Duration

	// Payload contains event-specific data. Keep this small.
	Payload map[string]any
}

// EventHandler is a function type for handling events.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}
