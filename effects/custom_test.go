package effects

import (
	"strings"
	"testing"
)

const suffixDoc = `{
  "effects": [
    {
      "name": "set_property",
      "property": "params.property",
      "value": "params.value + \"_CUSTOM\""
    }
  ]
}`

func TestRegisterDocumentOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	names, err := RegisterDocument(r, []byte(suffixDoc))
	if err != nil {
		t.Fatalf("RegisterDocument: %v", err)
	}
	if len(names) != 1 || names[0] != "set_property" {
		t.Fatalf("registered names = %v, want [set_property]", names)
	}

	fn, ok := r.Get("set_property")
	if !ok {
		t.Fatal("set_property not registered")
	}
	res, err := fn(Context{
		TargetAttrs: map[string]any{"status": "PENDING"},
		Params:      map[string]any{"property": "status", "value": "FAILED"},
	})
	if err != nil {
		t.Fatalf("custom set_property: %v", err)
	}
	if res.UpdatedProperties["status"] != "FAILED_CUSTOM" {
		t.Errorf("status = %v, want FAILED_CUSTOM", res.UpdatedProperties["status"])
	}
	if res.OldValues["status"] != "PENDING" {
		t.Errorf("old status = %v, want PENDING", res.OldValues["status"])
	}

	for _, reg := range r.List() {
		if reg.Name == "set_property" && reg.Source != SourceCustom {
			t.Errorf("set_property source = %q, want custom", reg.Source)
		}
	}
}

func TestCustomEffectReadsNodeAttrs(t *testing.T) {
	doc := `{
  "effects": [
    {
      "name": "scale_by_source",
      "property": "\"scaled\"",
      "value": "target.base * source.factor"
    }
  ]
}`
	r := NewRegistry()
	if _, err := RegisterDocument(r, []byte(doc)); err != nil {
		t.Fatalf("RegisterDocument: %v", err)
	}
	fn, _ := r.Get("scale_by_source")
	res, err := fn(Context{
		SourceAttrs: map[string]any{"factor": 3.0},
		TargetAttrs: map[string]any{"base": 7.0},
		Params:      map[string]any{},
	})
	if err != nil {
		t.Fatalf("scale_by_source: %v", err)
	}
	if res.UpdatedProperties["scaled"] != 21.0 {
		t.Errorf("scaled = %v, want 21", res.UpdatedProperties["scaled"])
	}
}

func TestParseDocumentRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"invalid json", `{`, "parsing"},
		{"no effects", `{"effects": []}`, "no effects"},
		{"missing name", `{"effects": [{"property": "\"p\"", "value": "1"}]}`, "name is required"},
		{"missing value", `{"effects": [{"name": "x", "property": "\"p\""}]}`, "value expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.doc))
			if err == nil {
				t.Fatal("ParseDocument succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestRegisterDocumentCompileErrorRegistersNothing(t *testing.T) {
	doc := `{
  "effects": [
    {"name": "good", "property": "\"p\"", "value": "1"},
    {"name": "bad", "property": "\"p\"", "value": "1 +"}
  ]
}`
	r := NewRegistry()
	if _, err := RegisterDocument(r, []byte(doc)); err == nil {
		t.Fatal("RegisterDocument succeeded with uncompilable expression")
	}
	if r.Has("good") {
		t.Error("partial registration: 'good' registered despite document failure")
	}
}
