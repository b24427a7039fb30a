package effects

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Definition is one effect in a custom effect document. Property and Value
// are expressions evaluated against source, target, and params; Property
// must yield the name of the property to write, Value yields the new value.
//
//	{
//	  "name": "set_property",
//	  "property": "params.property",
//	  "value": "params.value + \"_CUSTOM\""
//	}
type Definition struct {
	Name     string `json:"name"`
	Property string `json:"property"`
	Value    string `json:"value"`
}

// Document is a custom effect document: the declarative replacement for
// runtime-loaded effect code. Expressions are compiled once at load time.
type Document struct {
	Effects []Definition `json:"effects"`
}

// ParseDocument decodes and structurally checks a custom effect document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing effect document: %w", err)
	}
	if len(doc.Effects) == 0 {
		return nil, fmt.Errorf("effect document declares no effects")
	}
	for i, def := range doc.Effects {
		if def.Name == "" {
			return nil, fmt.Errorf("effects[%d]: name is required", i)
		}
		if def.Property == "" {
			return nil, fmt.Errorf("effect %q: property expression is required", def.Name)
		}
		if def.Value == "" {
			return nil, fmt.Errorf("effect %q: value expression is required", def.Name)
		}
	}
	return &doc, nil
}

// Compile turns a Definition into an effect Func. Expression compilation
// errors surface here so a bad document is rejected at load time rather than
// mid-execution.
func Compile(def Definition) (Func, error) {
	propProgram, err := expr.Compile(def.Property)
	if err != nil {
		return nil, fmt.Errorf("effect %q: compiling property expression: %w", def.Name, err)
	}
	valueProgram, err := expr.Compile(def.Value)
	if err != nil {
		return nil, fmt.Errorf("effect %q: compiling value expression: %w", def.Name, err)
	}
	name := def.Name

	return func(ctx Context) (Result, error) {
		env := map[string]any{
			"source": ctx.SourceAttrs,
			"target": ctx.TargetAttrs,
			"params": ctx.Params,
		}
		prop, err := runString(propProgram, env)
		if err != nil {
			return Result{}, fmt.Errorf("effect %q: property expression: %w", name, err)
		}
		value, err := expr.Run(valueProgram, env)
		if err != nil {
			return Result{}, fmt.Errorf("effect %q: value expression: %w", name, err)
		}
		return Result{
			UpdatedProperties: map[string]any{prop: value},
			OldValues:         map[string]any{prop: ctx.TargetAttrs[prop]},
		}, nil
	}, nil
}

// RegisterDocument parses a custom effect document, compiles every effect,
// and registers them under the custom source. Nothing is registered unless
// the whole document compiles. Returns the registered names in declaration
// order.
func RegisterDocument(r *Registry, data []byte) ([]string, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	compiled := make([]Func, len(doc.Effects))
	for i, def := range doc.Effects {
		fn, err := Compile(def)
		if err != nil {
			return nil, err
		}
		compiled[i] = fn
	}
	names := make([]string, len(doc.Effects))
	for i, def := range doc.Effects {
		r.Register(def.Name, compiled[i], SourceCustom)
		names[i] = def.Name
	}
	return names, nil
}

func runString(program *vm.Program, env map[string]any) (string, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return "", err
	}
	s, ok := out.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("must yield a non-empty string, got %T", out)
	}
	return s, nil
}
