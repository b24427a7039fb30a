package engine

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEvent is one recorded execution in the chronological history.
type HistoryEvent struct {
	EventID      string    `json:"event_id"`
	Timestamp    string    `json:"timestamp"` // ISO-8601 UTC
	ActionID     string    `json:"action_id"`
	TargetNodeID string    `json:"target_node_id"`
	RipplePath   []string  `json:"ripple_path"`
	Insights     []Insight `json:"insights"`
	DeltaGraph   Delta     `json:"delta_graph"`
}

// history is an append-only chronological log of successful executions.
// Push is called exclusively by the ripple executor on success; Clear by
// Reset. Locking is the engine's responsibility.
type history struct {
	events []HistoryEvent
}

func (h *history) push(actionID, targetNodeID string, result *Result) {
	h.events = append(h.events, HistoryEvent{
		EventID:      uuid.New().String(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		ActionID:     actionID,
		TargetNodeID: targetNodeID,
		RipplePath:   result.RipplePath,
		Insights:     result.Insights,
		DeltaGraph:   result.DeltaGraph,
	})
}

func (h *history) all() []HistoryEvent {
	out := make([]HistoryEvent, len(h.events))
	copy(out, h.events)
	return out
}

func (h *history) clear() {
	h.events = h.events[:0]
}
