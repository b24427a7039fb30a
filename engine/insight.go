package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Insight is a structured, human-readable record emitted when a ripple rule
// fires.
type Insight struct {
	Text       string `json:"text"`
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	SourceNode string `json:"source_node"`
	TargetNode string `json:"target_node"`
	RuleID     string `json:"rule_id"`
}

// formatInsightText interpolates an insight template against source and
// target attribute maps. The syntax is map-scoped: {source[attr]} and
// {target[attr]} expand to the attribute value's string form. If any
// referenced key is missing the raw template is returned unchanged — the
// fallback is whole-template, matching the original formatter's behavior.
func formatInsightText(template string, sourceAttrs, targetAttrs map[string]any) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.Index(rest[open:], "}")
		if close < 0 {
			b.WriteString(rest)
			return b.String()
		}
		close += open

		placeholder := rest[open+1 : close]
		value, ok := lookupPlaceholder(placeholder, sourceAttrs, targetAttrs)
		if !ok {
			return template
		}
		b.WriteString(rest[:open])
		b.WriteString(value)
		rest = rest[close+1:]
	}
}

// lookupPlaceholder resolves "source[attr]" or "target[attr]" against the
// attribute maps.
func lookupPlaceholder(placeholder string, sourceAttrs, targetAttrs map[string]any) (string, bool) {
	open := strings.Index(placeholder, "[")
	if open < 0 || !strings.HasSuffix(placeholder, "]") {
		return "", false
	}
	scope := placeholder[:open]
	key := placeholder[open+1 : len(placeholder)-1]

	var attrs map[string]any
	switch scope {
	case "source":
		attrs = sourceAttrs
	case "target":
		attrs = targetAttrs
	default:
		return "", false
	}
	value, ok := attrs[key]
	if !ok {
		return "", false
	}
	return formatValue(value), true
}

// formatValue renders an attribute value for insight text. Floats print
// without exponent notation so valuations read as plain numbers.
func formatValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(tv)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", tv)
	}
}
