// Package normalize guarantees every handler result carries a user-facing
// final_output field.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Apology is used when a result has no usable text at all.
const Apology = "I'm sorry, I couldn't produce an answer for that question. Please try rephrasing it."

// Response is the wire shape returned to callers. Handler-specific fields
// pass through untouched.
type Response map[string]any

// preference lists, per result type, the fields concatenated into
// final_output. Each inner slice is a group of alternatives: the first
// non-empty field of a group is used.
var preference = map[string][][]string{
	"forecast":      {{"forecast_display"}, {"interpretation"}},
	"scenario":      {{"llm_analysis", "response"}},
	"comparative":   {{"response", "llm_analysis"}},
	"rag":           {{"response", "llm_analysis"}},
	"trivial":       {{"response", "llm_analysis"}},
	"file_analysis": {{"response", "llm_analysis"}},
}

var defaultPreference = [][]string{{"response", "llm_analysis"}}

// Normalize fills final_output when it is absent or blank. The input map is
// modified in place and returned.
func Normalize(r Response) Response {
	if r == nil {
		r = Response{}
	}
	if s, ok := r["final_output"].(string); ok && strings.TrimSpace(s) != "" {
		return r
	}

	kind, _ := r["type"].(string)
	groups, ok := preference[kind]
	if !ok {
		groups = defaultPreference
	}

	var parts []string
	for _, group := range groups {
		for _, field := range group {
			if s := text(r[field]); s != "" {
				parts = append(parts, s)
				break
			}
		}
	}
	out := strings.Join(parts, "\n\n")
	if out == "" {
		out = Apology
	}
	r["final_output"] = out
	return r
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return ""
	}
}

// FromStruct converts a typed handler result into a Response using its JSON
// field names.
func FromStruct(v any) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return r, nil
}

// Clone copies the top level of r so canned payloads are never mutated.
func Clone(r map[string]any) Response {
	out := make(Response, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}
