package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/ontoflow/effects"
	"github.com/petal-labs/ontoflow/graphstore"
	"github.com/petal-labs/ontoflow/workspace"
)

// ExecuteAction executes the named action on the target node, applies its
// direct effect, propagates its ripple rules through the graph, and returns
// the delta, ripple path, and insights.
//
// The executor performs exactly one pass over the rules in declaration
// order; it does not re-enter ripple processing on newly updated nodes, so
// total work is bounded by rules x edges-per-source and termination holds
// under arbitrary rule sets. On success one history event is pushed; failed
// preconditions push nothing.
func (e *Engine) ExecuteAction(actionID, targetNodeID string) (*Result, error) {
	started := time.Now()
	executionID := uuid.New().String()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.config == nil {
		return nil, ErrNoWorkspace
	}
	action := e.config.FindAction(actionID)
	if action == nil {
		e.emitEvent(Event{
			Kind:        EventActionFailed,
			ExecutionID: executionID,
			ActionID:    actionID,
			NodeID:      targetNodeID,
		})
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, actionID)
	}
	if !e.graph.HasNode(targetNodeID) {
		e.emitEvent(Event{
			Kind:        EventActionFailed,
			ExecutionID: executionID,
			ActionID:    actionID,
			NodeID:      targetNodeID,
		})
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, targetNodeID)
	}

	e.emitEvent(Event{
		Kind:        EventActionStarted,
		ExecutionID: executionID,
		ActionID:    actionID,
		NodeID:      targetNodeID,
	})

	// Reset per-execution accumulators.
	e.insights = []Insight{}
	e.ripplePath = []string{targetNodeID}
	e.updatedNodes = []map[string]any{}
	e.highlightEdges = []EdgeRef{}

	if action.DirectEffect != nil {
		e.applyDirectEffect(action.DirectEffect, targetNodeID)
	}

	for i := range action.RippleRules {
		e.processRippleRule(&action.RippleRules[i], targetNodeID, executionID)
	}

	result := &Result{
		Status: "success",
		DeltaGraph: Delta{
			UpdatedNodes:   e.updatedNodes,
			HighlightEdges: e.highlightEdges,
		},
		RipplePath: e.ripplePath,
		Insights:   e.insights,
	}

	e.history.push(actionID, targetNodeID, result)

	e.emitEvent(Event{
		Kind:        EventActionFinished,
		ExecutionID: executionID,
		ActionID:    actionID,
		NodeID:      targetNodeID,
		Elapsed:     time.Since(started),
		Payload: map[string]any{
			"ripple_path_len": len(result.RipplePath),
			"insights":        len(result.Insights),
		},
	})

	return result, nil
}

// applyDirectEffect overwrites one property on the action's target node with
// a literal value and records the change in the delta. Direct effects emit
// no insight; insights are a property of ripple rules only.
func (e *Engine) applyDirectEffect(effect *workspace.DirectEffect, targetNodeID string) {
	attrs, ok := e.graph.NodeAttrs(targetNodeID)
	if !ok {
		return
	}
	oldValue := attrs[effect.PropertyToUpdate]
	attrs[effect.PropertyToUpdate] = graphstore.DeepCopyValue(effect.NewValue)
	e.updatedNodes = append(e.updatedNodes, map[string]any{
		"id":                              targetNodeID,
		effect.PropertyToUpdate:           effect.NewValue,
		"_old_" + effect.PropertyToUpdate: oldValue,
	})
}

// processRippleRule parses the rule's propagation path, walks the matching
// edges of the source node, filters neighbors by edge and node type,
// evaluates the optional condition, and applies the secondary effect to
// every surviving match.
func (e *Engine) processRippleRule(rule *workspace.RippleRule, sourceNodeID, executionID string) {
	direction, edgeType, nodeType, ok := ParsePropagationPath(rule.PropagationPath)
	if !ok {
		// Malformed path: empty match, not an error.
		return
	}

	var edges []graphstore.Edge
	if direction == DirectionIncoming {
		edges = e.graph.InEdges(sourceNodeID)
	} else {
		edges = e.graph.OutEdges(sourceNodeID)
	}

	for _, edge := range edges {
		neighborID := edge.Target
		if direction == DirectionIncoming {
			neighborID = edge.Source
		}

		if edge.Type() != edgeType {
			continue
		}
		neighborAttrs, ok := e.graph.NodeAttrs(neighborID)
		if !ok {
			continue
		}
		if t, _ := neighborAttrs["type"].(string); t != nodeType {
			continue
		}

		if rule.Condition != "" {
			sourceAttrs, _ := e.graph.NodeAttrs(sourceNodeID)
			if !e.conditions.eval(rule.Condition,
				graphstore.DeepCopyAttrs(sourceAttrs),
				graphstore.DeepCopyAttrs(neighborAttrs)) {
				continue
			}
		}

		e.highlightEdges = append(e.highlightEdges, EdgeRef{
			Source: edge.Source,
			Target: edge.Target,
			Type:   edge.Type(),
		})

		// Ripple path records first touch only; a neighbor matched by a
		// second rule or a parallel edge is not repeated.
		if !contains(e.ripplePath, neighborID) {
			e.ripplePath = append(e.ripplePath, neighborID)
		}

		e.applySecondaryEffect(rule, sourceNodeID, neighborID, executionID)
	}
}

// applySecondaryEffect resolves the rule's effect function in the registry,
// invokes it against the neighbor, writes the returned properties back, and
// emits one insight. A missing or failing effect degrades to a
// warning-severity insight with no graph mutation.
func (e *Engine) applySecondaryEffect(rule *workspace.RippleRule, sourceNodeID, targetNodeID, executionID string) {
	funcName := rule.EffectOnTarget.ActionToTrigger

	fn, ok := e.registry.Get(funcName)
	if !ok {
		e.insights = append(e.insights, Insight{
			Text:       fmt.Sprintf("Warning: action function '%s' not registered", funcName),
			Type:       "warning",
			Severity:   "warning",
			SourceNode: sourceNodeID,
			TargetNode: targetNodeID,
			RuleID:     rule.RuleID,
		})
		return
	}

	sourceAttrs, _ := e.graph.NodeAttrs(sourceNodeID)
	targetAttrs, _ := e.graph.NodeAttrs(targetNodeID)

	ctx := effects.Context{
		SourceAttrs: graphstore.DeepCopyAttrs(sourceAttrs),
		TargetAttrs: graphstore.DeepCopyAttrs(targetAttrs),
		SourceID:    sourceNodeID,
		TargetID:    targetNodeID,
		Params:      rule.EffectOnTarget.Parameters,
		Graph:       e.graph,
	}

	result, err := fn(ctx)
	if err != nil {
		e.insights = append(e.insights, Insight{
			Text:       fmt.Sprintf("Warning: action function '%s' failed: %v", funcName, err),
			Type:       "warning",
			Severity:   "warning",
			SourceNode: sourceNodeID,
			TargetNode: targetNodeID,
			RuleID:     rule.RuleID,
		})
		return
	}

	for prop, value := range result.UpdatedProperties {
		targetAttrs[prop] = value
	}

	nodeUpdate := map[string]any{"id": targetNodeID}
	for prop, value := range result.UpdatedProperties {
		nodeUpdate[prop] = value
	}
	for prop, value := range result.OldValues {
		nodeUpdate["_old_"+prop] = value
	}
	e.updatedNodes = append(e.updatedNodes, nodeUpdate)

	e.emitEvent(Event{
		Kind:        EventRuleFired,
		ExecutionID: executionID,
		NodeID:      targetNodeID,
		RuleID:      rule.RuleID,
	})

	e.insights = append(e.insights, e.buildInsight(rule, sourceNodeID, targetNodeID))
}

// buildInsight creates the structured insight for a fired rule, using the
// rule's template, type, and severity with "info" defaults.
func (e *Engine) buildInsight(rule *workspace.RippleRule, sourceNodeID, targetNodeID string) Insight {
	insightType := rule.InsightType
	if insightType == "" {
		insightType = "info"
	}
	severity := rule.InsightSeverity
	if severity == "" {
		severity = "info"
	}

	var text string
	if rule.InsightTemplate != "" {
		sourceAttrs, _ := e.graph.NodeAttrs(sourceNodeID)
		targetAttrs, _ := e.graph.NodeAttrs(targetNodeID)
		text = formatInsightText(rule.InsightTemplate, sourceAttrs, targetAttrs)
	} else {
		text = fmt.Sprintf("Rule %s: effect applied to %s", rule.RuleID, targetNodeID)
	}

	return Insight{
		Text:       text,
		Type:       insightType,
		Severity:   severity,
		SourceNode: sourceNodeID,
		TargetNode: targetNodeID,
		RuleID:     rule.RuleID,
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
