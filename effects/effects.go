// Package effects provides the effect-function registry and the built-in
// effect library. An effect function receives an invocation context (source
// and target attribute snapshots, parameters, and a read-only graph handle)
// and returns the properties it wants written to the target node along with
// the old values to record in the delta.
package effects

import (
	"github.com/petal-labs/ontoflow/graphstore"
)

// Context is passed to every effect function during execution. SourceAttrs
// and TargetAttrs are snapshots; writes happen exclusively through the
// returned Result. Graph is for read-only traversal.
type Context struct {
	SourceAttrs map[string]any
	TargetAttrs map[string]any
	SourceID    string
	TargetID    string
	Params      map[string]any
	Graph       *graphstore.Store
}

// Result is returned by every effect function. UpdatedProperties are written
// back to the target node; OldValues are recorded in the delta.
type Result struct {
	UpdatedProperties map[string]any
	OldValues         map[string]any
}

// Func is the uniform effect function signature. A returned error means the
// effect produced nothing; the executor degrades it to a warning insight and
// leaves the graph untouched.
type Func func(ctx Context) (Result, error)

// toFloat coerces JSON-shaped numeric values to float64. Non-numeric values
// yield the fallback.
func toFloat(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return fallback
	}
}

// paramString reads a string parameter with a default.
func paramString(params map[string]any, key, fallback string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
