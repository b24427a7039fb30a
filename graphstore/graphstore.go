// Package graphstore provides the in-memory typed property graph the
// simulation engine executes against. It is a directed multigraph: nodes are
// identified by opaque string IDs, edges are (source, target) pairs, and both
// carry open attribute maps. Iteration order is insertion order.
package graphstore

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrDuplicateNode = errors.New("duplicate node ID")
)

// Edge is a directed connection between two nodes with an attribute map.
// The edge type tag lives in Attrs under the "type" key, alongside any
// user-supplied edge properties.
type Edge struct {
	Source string
	Target string
	Attrs  map[string]any
}

// Type returns the edge's type tag, or "" if untyped.
func (e Edge) Type() string {
	t, _ := e.Attrs["type"].(string)
	return t
}

// Store is a directed property multigraph. It is not safe for concurrent
// use; callers serialize access (the engine holds an exclusive lock around
// every operation that touches the store).
type Store struct {
	nodes     map[string]map[string]any
	nodeOrder []string
	edges     []Edge
	out       map[string][]int // node ID -> indexes into edges, insertion order
	in        map[string][]int
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.Clear()
	return s
}

// Clear removes all nodes and edges.
func (s *Store) Clear() {
	s.nodes = make(map[string]map[string]any)
	s.nodeOrder = s.nodeOrder[:0]
	s.edges = s.edges[:0]
	s.out = make(map[string][]int)
	s.in = make(map[string][]int)
}

// AddNode adds a node with the given attribute map. The map is stored as-is;
// callers that need isolation pass a copy.
func (s *Store) AddNode(id string, attrs map[string]any) error {
	if id == "" {
		return errors.New("node ID must not be empty")
	}
	if _, exists := s.nodes[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, id)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	s.nodes[id] = attrs
	s.nodeOrder = append(s.nodeOrder, id)
	return nil
}

// AddEdge adds a directed edge. Both endpoints must exist. Parallel edges
// between the same pair are allowed; they are distinguished by type.
func (s *Store) AddEdge(source, target string, attrs map[string]any) error {
	if _, ok := s.nodes[source]; !ok {
		return fmt.Errorf("edge source %w: %q", ErrNodeNotFound, source)
	}
	if _, ok := s.nodes[target]; !ok {
		return fmt.Errorf("edge target %w: %q", ErrNodeNotFound, target)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	idx := len(s.edges)
	s.edges = append(s.edges, Edge{Source: source, Target: target, Attrs: attrs})
	s.out[source] = append(s.out[source], idx)
	s.in[target] = append(s.in[target], idx)
	return nil
}

// HasNode reports whether a node with the given ID exists.
func (s *Store) HasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// NodeAttrs returns the live attribute map for a node. Mutating the returned
// map mutates the graph; use DeepCopyAttrs for an isolated snapshot.
func (s *Store) NodeAttrs(id string) (map[string]any, bool) {
	attrs, ok := s.nodes[id]
	return attrs, ok
}

// SetNodeProp sets a single property on a node.
func (s *Store) SetNodeProp(id, key string, value any) error {
	attrs, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	attrs[key] = value
	return nil
}

// Nodes returns all node IDs in insertion order.
func (s *Store) Nodes() []string {
	out := make([]string, len(s.nodeOrder))
	copy(out, s.nodeOrder)
	return out
}

// Edges returns all edges in insertion order.
func (s *Store) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// OutEdges returns the edges leaving a node, in insertion order.
func (s *Store) OutEdges(id string) []Edge {
	return s.edgesAt(s.out[id])
}

// InEdges returns the edges arriving at a node, in insertion order.
func (s *Store) InEdges(id string) []Edge {
	return s.edgesAt(s.in[id])
}

func (s *Store) edgesAt(idxs []int) []Edge {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.edges[i])
	}
	return out
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	return len(s.edges)
}

// DeepCopyAttrs returns a deep copy of a JSON-shaped attribute map.
func DeepCopyAttrs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = DeepCopyValue(value)
	}
	return out
}

// DeepCopyValue deep-copies a JSON-shaped value: nested maps and slices are
// copied, scalars (string, bool, numbers, nil) are returned as-is.
func DeepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return DeepCopyAttrs(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = DeepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
