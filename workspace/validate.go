package workspace

import "fmt"

// Diagnostic represents a validation error or warning produced by workspace
// validation.
type Diagnostic struct {
	Code     string `json:"code"`           // e.g. "WS-001"
	Severity string `json:"severity"`       // "error" or "warning"
	Message  string `json:"message"`        // human-readable description
	Path     string `json:"path,omitempty"` // JSON path to offending field
}

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// HasErrors returns true if any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func Errors(diags []Diagnostic) []Diagnostic {
	var errs []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityError {
			errs = append(errs, d)
		}
	}
	return errs
}

// Warnings returns only the warning-severity diagnostics.
func Warnings(diags []Diagnostic) []Diagnostic {
	var warns []Diagnostic
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warns = append(warns, d)
		}
	}
	return warns
}

// Validate checks the structural integrity of the workspace document:
//   - WS-001: metadata.domain is required
//   - WS-002: node IDs are non-empty and unique
//   - WS-003: edge endpoints reference existing nodes
//   - WS-004: node/edge types should be declared in the ontology (warning)
//   - WS-005: action IDs are non-empty and unique; target_node_type required
//   - WS-006: rules carry rule_id, propagation_path, and action_to_trigger
//
// Errors make the document unloadable; warnings are reported but do not
// fail the load.
func (c *Config) Validate() []Diagnostic {
	var diags []Diagnostic

	if c.Metadata.Domain == "" {
		diags = append(diags, Diagnostic{
			Code:     "WS-001",
			Severity: SeverityError,
			Message:  "metadata.domain is required",
			Path:     "metadata.domain",
		})
	}

	nodeIDs := make(map[string]bool, len(c.GraphData.Nodes))
	for i, node := range c.GraphData.Nodes {
		path := fmt.Sprintf("graph_data.nodes[%d]", i)
		if node.ID == "" {
			diags = append(diags, Diagnostic{
				Code:     "WS-002",
				Severity: SeverityError,
				Message:  "node ID must not be empty",
				Path:     path + ".id",
			})
			continue
		}
		if nodeIDs[node.ID] {
			diags = append(diags, Diagnostic{
				Code:     "WS-002",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate node ID %q", node.ID),
				Path:     path + ".id",
			})
		}
		nodeIDs[node.ID] = true
		if node.Type != "" && c.OntologyDef.NodeTypes != nil {
			if _, declared := c.OntologyDef.NodeTypes[node.Type]; !declared {
				diags = append(diags, Diagnostic{
					Code:     "WS-004",
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("Node %q has type %q not declared in ontology", node.ID, node.Type),
					Path:     path + ".type",
				})
			}
		}
	}

	for i, edge := range c.GraphData.Edges {
		path := fmt.Sprintf("graph_data.edges[%d]", i)
		if !nodeIDs[edge.Source] {
			diags = append(diags, Diagnostic{
				Code:     "WS-003",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Edge source %q references unknown node", edge.Source),
				Path:     path + ".source",
			})
		}
		if !nodeIDs[edge.Target] {
			diags = append(diags, Diagnostic{
				Code:     "WS-003",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Edge target %q references unknown node", edge.Target),
				Path:     path + ".target",
			})
		}
		if edge.Type != "" && c.OntologyDef.EdgeTypes != nil {
			if _, declared := c.OntologyDef.EdgeTypes[edge.Type]; !declared {
				diags = append(diags, Diagnostic{
					Code:     "WS-004",
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("Edge %q -> %q has type %q not declared in ontology", edge.Source, edge.Target, edge.Type),
					Path:     path + ".type",
				})
			}
		}
	}

	actionIDs := make(map[string]bool, len(c.ActionEngine.Actions))
	for i, action := range c.ActionEngine.Actions {
		path := fmt.Sprintf("action_engine.actions[%d]", i)
		if action.ActionID == "" {
			diags = append(diags, Diagnostic{
				Code:     "WS-005",
				Severity: SeverityError,
				Message:  "action_id must not be empty",
				Path:     path + ".action_id",
			})
		} else if actionIDs[action.ActionID] {
			diags = append(diags, Diagnostic{
				Code:     "WS-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Duplicate action ID %q", action.ActionID),
				Path:     path + ".action_id",
			})
		}
		actionIDs[action.ActionID] = true
		if action.TargetNodeType == "" {
			diags = append(diags, Diagnostic{
				Code:     "WS-005",
				Severity: SeverityError,
				Message:  fmt.Sprintf("Action %q has no target_node_type", action.ActionID),
				Path:     path + ".target_node_type",
			})
		}
		for j, rule := range action.RippleRules {
			rulePath := fmt.Sprintf("%s.ripple_rules[%d]", path, j)
			if rule.RuleID == "" {
				diags = append(diags, Diagnostic{
					Code:     "WS-006",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Action %q has a rule with no rule_id", action.ActionID),
					Path:     rulePath + ".rule_id",
				})
			}
			if rule.PropagationPath == "" {
				diags = append(diags, Diagnostic{
					Code:     "WS-006",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Rule %q has no propagation_path", rule.RuleID),
					Path:     rulePath + ".propagation_path",
				})
			}
			if rule.EffectOnTarget.ActionToTrigger == "" {
				diags = append(diags, Diagnostic{
					Code:     "WS-006",
					Severity: SeverityError,
					Message:  fmt.Sprintf("Rule %q has no effect_on_target.action_to_trigger", rule.RuleID),
					Path:     rulePath + ".effect_on_target.action_to_trigger",
				})
			}
		}
	}

	return diags
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := Errors(e.Diagnostics)
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
