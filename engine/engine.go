package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petal-labs/ontoflow/effects"
	"github.com/petal-labs/ontoflow/graphstore"
	"github.com/petal-labs/ontoflow/workspace"
)

// Engine preconditions surfaced to callers.
var (
	ErrNoWorkspace   = errors.New("no workspace loaded")
	ErrUnknownAction = errors.New("action not found")
	ErrUnknownNode   = errors.New("node not found")
)

// EdgeRef identifies a live edge highlighted by an execution.
type EdgeRef struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Delta is the list of per-node property changes and highlighted edges
// produced by one action execution. Each updated-node entry carries the new
// property values plus _old_<prop> keys recording what was overwritten.
type Delta struct {
	UpdatedNodes   []map[string]any `json:"updated_nodes"`
	HighlightEdges []EdgeRef        `json:"highlight_edges"`
}

// Result is the outcome of a successful action execution.
type Result struct {
	Status     string    `json:"status"`
	DeltaGraph Delta     `json:"delta_graph"`
	RipplePath []string  `json:"ripple_path"`
	Insights   []Insight `json:"insights"`
}

// RenderNode is a node in the frontend-friendly graph export.
type RenderNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// RenderEdge is an edge in the frontend-friendly graph export.
type RenderEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// RenderGraph is the nested export format consumed by renderers. A rendered
// graph round-trips: its nodes and edges parse back as workspace graph data.
type RenderGraph struct {
	Nodes []RenderNode `json:"nodes"`
	Edges []RenderEdge `json:"edges"`
}

// LoadResult summarizes a workspace load.
type LoadResult struct {
	RegisteredFunctions []effects.Registration
	Warnings            []string
}

// Engine orchestrates workspace loading, action execution, ripple
// propagation, insight generation, and reset. It holds exactly one mutable
// workspace; all operations serialize through an exclusive lock, so a single
// Engine is safe to share across HTTP handlers.
type Engine struct {
	mu sync.RWMutex

	graph      *graphstore.Store
	config     *workspace.Config
	snapshot   map[string]map[string]any
	registry   *effects.Registry
	conditions *conditionCache
	history    history

	// Per-execution accumulators, cleared on entry to ExecuteAction so
	// results never leak between executions.
	insights       []Insight
	ripplePath     []string
	updatedNodes   []map[string]any
	highlightEdges []EdgeRef

	emit EventHandler
}

// Option configures an Engine.
type Option func(*Engine)

// WithEventHandler installs an observability event handler. Use
// MultiEventHandler to attach several.
func WithEventHandler(h EventHandler) Option {
	return func(e *Engine) {
		e.emit = h
	}
}

// New creates an engine with no workspace loaded.
func New(opts ...Option) *Engine {
	e := &Engine{
		graph:      graphstore.New(),
		registry:   effects.NewRegistry(),
		conditions: newConditionCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emitEvent(ev Event) {
	if e.emit != nil {
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}
		e.emit(ev)
	}
}

// LoadWorkspace builds the graph from the config and atomically replaces the
// engine's graph, snapshot, registry, and transient buffers. The initial
// snapshot is captured after graph construction and before any execution.
//
// customEffects, when non-nil, is a custom effect document (see the effects
// package); its effects register after the builtins, so custom names win.
// A document that fails to parse or compile aborts the load and leaves the
// previously loaded workspace intact.
func (e *Engine) LoadWorkspace(cfg *workspace.Config, customEffects []byte) (*LoadResult, error) {
	if cfg == nil {
		return nil, errors.New("nil workspace config")
	}

	// Stage everything before touching engine state so a failed load
	// cannot leave a half-replaced workspace.
	registry := effects.NewRegistry()
	effects.RegisterBuiltins(registry)
	if customEffects != nil {
		if _, err := effects.RegisterDocument(registry, customEffects); err != nil {
			return nil, fmt.Errorf("loading custom effects: %w", err)
		}
	}

	graph := graphstore.New()
	for _, node := range cfg.GraphData.Nodes {
		attrs := map[string]any{"type": node.Type}
		for k, v := range node.Properties {
			attrs[k] = graphstore.DeepCopyValue(v)
		}
		if err := graph.AddNode(node.ID, attrs); err != nil {
			return nil, fmt.Errorf("building graph: %w", err)
		}
	}
	for _, edge := range cfg.GraphData.Edges {
		attrs := map[string]any{"type": edge.Type}
		for k, v := range edge.Properties {
			attrs[k] = graphstore.DeepCopyValue(v)
		}
		if err := graph.AddEdge(edge.Source, edge.Target, attrs); err != nil {
			return nil, fmt.Errorf("building graph: %w", err)
		}
	}

	snapshot := make(map[string]map[string]any, graph.NodeCount())
	for _, id := range graph.Nodes() {
		attrs, _ := graph.NodeAttrs(id)
		snapshot[id] = graphstore.DeepCopyAttrs(attrs)
	}

	warnings := unregisteredFunctionWarnings(cfg, registry)

	e.mu.Lock()
	e.graph = graph
	e.config = cfg
	e.snapshot = snapshot
	e.registry = registry
	e.conditions = newConditionCache()
	e.clearBuffersLocked()
	e.mu.Unlock()

	e.emitEvent(Event{
		Kind: EventWorkspaceLoaded,
		Payload: map[string]any{
			"domain": cfg.Metadata.Domain,
			"nodes":  graph.NodeCount(),
			"edges":  graph.EdgeCount(),
		},
	})

	return &LoadResult{
		RegisteredFunctions: registry.List(),
		Warnings:            warnings,
	}, nil
}

// unregisteredFunctionWarnings reports every rule whose action_to_trigger is
// absent from the registry at load time. Warnings do not fail the load; the
// executor degrades the missing function to a warning insight at run time.
func unregisteredFunctionWarnings(cfg *workspace.Config, registry *effects.Registry) []string {
	var warnings []string
	for _, action := range cfg.ActionEngine.Actions {
		for _, rule := range action.RippleRules {
			name := rule.EffectOnTarget.ActionToTrigger
			if name == "" || registry.Has(name) {
				continue
			}
			warnings = append(warnings, fmt.Sprintf(
				"Function '%s' referenced in rule '%s' is not registered in ActionRegistry",
				name, rule.RuleID))
		}
	}
	return warnings
}

// Reset restores every snapshotted node's attribute map to its state at load
// time (deep copy) and clears the execution history. Edges and edge
// attributes are not snapshotted and therefore not reset. Nodes that did not
// exist at load time are left untouched; the public API offers no way to add
// such nodes, so the case only arises for callers mutating the store
// directly.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if e.config == nil {
		e.mu.Unlock()
		return ErrNoWorkspace
	}
	for id, snapshotAttrs := range e.snapshot {
		attrs, ok := e.graph.NodeAttrs(id)
		if !ok {
			continue
		}
		for key := range attrs {
			delete(attrs, key)
		}
		for key, value := range snapshotAttrs {
			attrs[key] = graphstore.DeepCopyValue(value)
		}
	}
	e.clearBuffersLocked()
	e.history.clear()
	e.mu.Unlock()

	e.emitEvent(Event{Kind: EventWorkspaceReset})
	return nil
}

func (e *Engine) clearBuffersLocked() {
	e.insights = nil
	e.ripplePath = nil
	e.updatedNodes = nil
	e.highlightEdges = nil
}

// Loaded reports whether a workspace is currently loaded.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config != nil
}

// HasNode reports whether the loaded graph contains the node.
func (e *Engine) HasNode(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.HasNode(id)
}

// GraphForRender exports the live graph in the nested frontend format.
// Property maps are deep-copied; mutating the export does not touch the
// graph.
func (e *Engine) GraphForRender() *RenderGraph {
	e.mu.RLock()
	defer e.mu.RUnlock()

	render := &RenderGraph{
		Nodes: make([]RenderNode, 0, e.graph.NodeCount()),
		Edges: make([]RenderEdge, 0, e.graph.EdgeCount()),
	}
	for _, id := range e.graph.Nodes() {
		attrs, _ := e.graph.NodeAttrs(id)
		nodeType, _ := attrs["type"].(string)
		properties := make(map[string]any, len(attrs))
		for k, v := range attrs {
			if k == "type" {
				continue
			}
			properties[k] = graphstore.DeepCopyValue(v)
		}
		render.Nodes = append(render.Nodes, RenderNode{ID: id, Type: nodeType, Properties: properties})
	}
	for _, edge := range e.graph.Edges() {
		properties := make(map[string]any, len(edge.Attrs))
		for k, v := range edge.Attrs {
			if k == "type" {
				continue
			}
			properties[k] = graphstore.DeepCopyValue(v)
		}
		render.Edges = append(render.Edges, RenderEdge{
			Source:     edge.Source,
			Target:     edge.Target,
			Type:       edge.Type(),
			Properties: properties,
		})
	}
	return render
}

// AvailableActions returns the actions applicable to the given node,
// filtered by node type, in declaration order. An empty nodeID returns the
// whole catalog; an unknown node returns nothing.
func (e *Engine) AvailableActions(nodeID string) []workspace.Action {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.config == nil {
		return nil
	}
	if nodeID == "" {
		return append([]workspace.Action(nil), e.config.ActionEngine.Actions...)
	}
	attrs, ok := e.graph.NodeAttrs(nodeID)
	if !ok {
		return nil
	}
	nodeType, _ := attrs["type"].(string)
	return e.config.ActionsForNodeType(nodeType)
}

// History returns the execution log in chronological order.
func (e *Engine) History() []HistoryEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.all()
}

// RegisteredFunctions lists the effect registry sorted by name.
func (e *Engine) RegisteredFunctions() []effects.Registration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.List()
}

// NodeAttrs returns a deep-copied snapshot of a node's attributes.
func (e *Engine) NodeAttrs(id string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	attrs, ok := e.graph.NodeAttrs(id)
	if !ok {
		return nil, false
	}
	return graphstore.DeepCopyAttrs(attrs), true
}
