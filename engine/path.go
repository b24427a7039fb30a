package engine

import "strings"

// Propagation path directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// ParsePropagationPath parses the Cypher-style neighbor selector used by
// ripple rules. Exactly two forms exist:
//
//	incoming: <-[EDGE_TYPE]- NodeType
//	outgoing: -[EDGE_TYPE]-> NodeType
//
// The edge type is whatever lies between the brackets; the node type is the
// trailing token with arrows, dashes, and whitespace stripped. Malformed
// paths return ok=false, which the executor treats as an empty match rather
// than an error, so one broken rule cannot abort a whole action.
func ParsePropagationPath(path string) (direction, edgeType, nodeType string, ok bool) {
	open := strings.Index(path, "[")
	if open < 0 {
		return "", "", "", false
	}
	close := strings.Index(path[open:], "]")
	if close < 0 {
		return "", "", "", false
	}
	close += open

	direction = DirectionOutgoing
	if strings.HasPrefix(path, "<-") {
		direction = DirectionIncoming
	}

	edgeType = path[open+1 : close]

	after := path[close+1:]
	after = strings.TrimLeft(after, "-")
	after = strings.TrimLeft(after, ">")
	nodeType = strings.TrimSpace(after)

	return direction, edgeType, nodeType, true
}
