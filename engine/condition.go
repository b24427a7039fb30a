package engine

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionCache caches compiled rule conditions for the lifetime of a
// workspace. Conditions that fail to compile are remembered so the compile
// error is not paid on every edge.
type conditionCache struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
	broken   map[string]bool
}

func newConditionCache() *conditionCache {
	return &conditionCache{
		programs: make(map[string]*vm.Program),
		broken:   make(map[string]bool),
	}
}

func (c *conditionCache) compile(condition string) (*vm.Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken[condition] {
		return nil, false
	}
	if program, ok := c.programs[condition]; ok {
		return program, true
	}
	program, err := expr.Compile(condition)
	if err != nil {
		c.broken[condition] = true
		return nil, false
	}
	c.programs[condition] = program
	return program, true
}

// eval evaluates a rule condition against source and target attribute
// snapshots. The expression sees exactly two names, source and target, each
// a plain attribute map. Any compile or runtime error, and any non-boolean
// result, evaluates to false: a broken condition skips the neighbor, it
// never aborts the action.
func (c *conditionCache) eval(condition string, sourceAttrs, targetAttrs map[string]any) bool {
	program, ok := c.compile(condition)
	if !ok {
		return false
	}
	env := map[string]any{
		"source": sourceAttrs,
		"target": targetAttrs,
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}
