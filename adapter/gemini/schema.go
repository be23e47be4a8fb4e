package gemini

import (
	"fmt"

	"google.golang.org/genai"

	"github.com/skosovsky/llmrelay/internal/cast"
)

// droppedKeys are JSON Schema annotations the Gemini responseSchema rejects or ignores.
var droppedKeys = []string{"description", "examples", "default"}

// Simplify returns a copy of schema without the annotations Gemini does not accept,
// applied recursively through properties, items and the anyOf/oneOf/allOf branches.
func Simplify(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		out[k] = v
	}
	for _, k := range droppedKeys {
		delete(out, k)
	}
	if props, ok := out["properties"].(map[string]any); ok {
		np := make(map[string]any, len(props))
		for name, sub := range props {
			if sm, ok := sub.(map[string]any); ok {
				np[name] = Simplify(sm)
			} else {
				np[name] = sub
			}
		}
		out["properties"] = np
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = Simplify(items)
	}
	for _, k := range []string{"anyOf", "oneOf", "allOf"} {
		branches, ok := out[k].([]any)
		if !ok {
			continue
		}
		nb := make([]any, len(branches))
		for i, b := range branches {
			if bm, ok := b.(map[string]any); ok {
				nb[i] = Simplify(bm)
			} else {
				nb[i] = b
			}
		}
		out[k] = nb
	}
	return out
}

// toGenaiSchema converts a JSON Schema (map[string]any) to genai.Schema.
// Handles type (including ["x","null"]), properties, items, required, enum, anyOf/oneOf
// and numeric or length bounds. Recursive for nested objects and arrays.
func toGenaiSchema(m map[string]any) (*genai.Schema, error) {
	if m == nil {
		return nil, nil
	}
	s := &genai.Schema{}
	switch t := m["type"].(type) {
	case string:
		s.Type = jsonSchemaTypeToGenai(t)
	case []any:
		for _, x := range t {
			name, _ := x.(string)
			if name == "null" {
				nullable := true
				s.Nullable = &nullable
				continue
			}
			if s.Type == "" {
				s.Type = jsonSchemaTypeToGenai(name)
			}
		}
	case nil:
	default:
		return nil, fmt.Errorf("unsupported type %v", t)
	}
	if p, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(p))
		for k, v := range p {
			sub, ok := v.(map[string]any)
			if !ok {
				continue
			}
			conv, err := toGenaiSchema(sub)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", k, err)
			}
			if conv != nil {
				s.Properties[k] = conv
			}
		}
	}
	s.Required = stringList(m["required"])
	if sub, ok := m["items"].(map[string]any); ok {
		conv, err := toGenaiSchema(sub)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		s.Items = conv
	}
	s.Enum = stringList(m["enum"])
	if f, ok := m["format"].(string); ok {
		s.Format = f
	}
	for _, k := range []string{"anyOf", "oneOf"} {
		branches, ok := m[k].([]any)
		if !ok {
			continue
		}
		for i, b := range branches {
			bm, ok := b.(map[string]any)
			if !ok {
				continue
			}
			conv, err := toGenaiSchema(bm)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", k, i, err)
			}
			s.AnyOf = append(s.AnyOf, conv)
		}
	}
	s.MinItems = intBound(m["minItems"])
	s.MaxItems = intBound(m["maxItems"])
	s.MinLength = intBound(m["minLength"])
	s.MaxLength = intBound(m["maxLength"])
	s.Minimum = floatBound(m["minimum"])
	s.Maximum = floatBound(m["maximum"])
	return s, nil
}

func stringList(v any) []string {
	ss, _ := cast.ToStringSlice(v)
	return ss
}

func floatBound(v any) *float64 {
	if f, ok := cast.ToFloat64(v); ok {
		return &f
	}
	return nil
}

func intBound(v any) *int64 {
	if i, ok := cast.ToInt64(v); ok {
		return &i
	}
	return nil
}

func jsonSchemaTypeToGenai(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}
