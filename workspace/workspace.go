// Package workspace defines the workspace document model: the ontology, the
// graph data, and the action catalog a simulation workspace is built from.
// It supports JSON and YAML input and validates documents into Diagnostic
// records before the engine accepts them.
package workspace

// Metadata describes the workspace as a whole.
type Metadata struct {
	Domain      string `json:"domain"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// NodeTypeDef is display metadata for a declared node type. The engine
// consults only the type name; the rest is for the renderer.
type NodeTypeDef struct {
	Label      string         `json:"label"`
	Color      string         `json:"color"`
	Shape      string         `json:"shape"`
	Icon       string         `json:"icon,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// EdgeTypeDef is display metadata for a declared edge type.
type EdgeTypeDef struct {
	Label      string         `json:"label"`
	Color      string         `json:"color"`
	Style      string         `json:"style,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// OntologyDef declares the node and edge types of the workspace.
type OntologyDef struct {
	NodeTypes map[string]NodeTypeDef `json:"node_types"`
	EdgeTypes map[string]EdgeTypeDef `json:"edge_types"`
}

// GraphNode is a node in the workspace graph.
type GraphNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphEdge is a directed edge in the workspace graph.
type GraphEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphData holds the initial nodes and edges.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// DirectEffect overwrites one property on the action's target node with a
// literal value.
type DirectEffect struct {
	PropertyToUpdate string `json:"property_to_update"`
	NewValue         any    `json:"new_value"`
}

// EffectOnTarget names the effect function a ripple rule invokes and the
// parameters it is invoked with.
type EffectOnTarget struct {
	ActionToTrigger string         `json:"action_to_trigger"`
	Parameters      map[string]any `json:"parameters,omitempty"`
}

// RippleRule selects neighbors via a propagation path, optionally guards
// them with a condition, and applies a secondary effect with insight
// metadata.
type RippleRule struct {
	RuleID          string         `json:"rule_id"`
	PropagationPath string         `json:"propagation_path"`
	Condition       string         `json:"condition,omitempty"`
	EffectOnTarget  EffectOnTarget `json:"effect_on_target"`
	InsightTemplate string         `json:"insight_template,omitempty"`
	InsightType     string         `json:"insight_type,omitempty"`
	InsightSeverity string         `json:"insight_severity,omitempty"`
}

// Action is a user-invocable operation applicable to nodes of a given type.
type Action struct {
	ActionID       string        `json:"action_id"`
	TargetNodeType string        `json:"target_node_type"`
	DisplayName    string        `json:"display_name"`
	DirectEffect   *DirectEffect `json:"direct_effect,omitempty"`
	RippleRules    []RippleRule  `json:"ripple_rules,omitempty"`
}

// ActionEngine is the action catalog section of a workspace.
type ActionEngine struct {
	Actions []Action `json:"actions"`
}

// Config is the full workspace document.
type Config struct {
	Metadata     Metadata     `json:"metadata"`
	OntologyDef  OntologyDef  `json:"ontology_def"`
	GraphData    GraphData    `json:"graph_data"`
	ActionEngine ActionEngine `json:"action_engine"`
}

// FindAction returns the action with the given ID, or nil.
func (c *Config) FindAction(actionID string) *Action {
	for i := range c.ActionEngine.Actions {
		if c.ActionEngine.Actions[i].ActionID == actionID {
			return &c.ActionEngine.Actions[i]
		}
	}
	return nil
}

// ActionsForNodeType returns the actions applicable to nodes of the given
// type, in declaration order.
func (c *Config) ActionsForNodeType(nodeType string) []Action {
	var out []Action
	for _, a := range c.ActionEngine.Actions {
		if a.TargetNodeType == nodeType {
			out = append(out, a)
		}
	}
	return out
}
