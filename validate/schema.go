// Package validate checks parsed model output: plausibility against the request schema,
// structural post-conditions per workshop step, and injection scrubbing of strings.
//
// Every check reports a list of distinct human-readable issues so the result can feed a
// re-generation prompt directly.
package validate

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/skosovsky/llmrelay"
)

// Schema validates value against schema and returns one issue per violation.
// Type names are matched case-insensitively ("OBJECT" and "object" are the same).
// The error is non-nil only when schema itself cannot be compiled.
func Schema(schema llmrelay.Schema, value any) ([]string, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(normalizeTypes(schema)))
	if err != nil {
		return nil, fmt.Errorf("llmrelay: compiling response schema: %w", err)
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nil, fmt.Errorf("llmrelay: validating response: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, e.String())
	}
	return issues, nil
}

// normalizeTypes returns a copy of a schema tree with every "type" string lowercased.
func normalizeTypes(node any) any {
	switch n := node.(type) {
	case llmrelay.Schema:
		return normalizeTypes(map[string]any(n))
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			if s, ok := v.(string); ok && k == "type" {
				out[k] = strings.ToLower(s)
				continue
			}
			out[k] = normalizeTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			out[i] = normalizeTypes(v)
		}
		return out
	default:
		return node
	}
}
