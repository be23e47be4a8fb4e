package llmrelay

import "slices"

// Schema is a JSON-Schema-like description (type, properties, items, enum, required).
// It steers generation and is used to check the parsed result is plausible.
type Schema map[string]any

// PropertyNames returns the sorted property names declared at any depth of the schema.
func (s Schema) PropertyNames() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(m map[string]any)
	walk = func(m map[string]any) {
		if props, ok := m["properties"].(map[string]any); ok {
			for name, sub := range props {
				if !seen[name] {
					seen[name] = true
					out = append(out, name)
				}
				if sm, ok := sub.(map[string]any); ok {
					walk(sm)
				}
			}
		}
		if items, ok := m["items"].(map[string]any); ok {
			walk(items)
		}
	}
	walk(s)
	slices.Sort(out)
	return out
}

// Request is the provider-agnostic call input. It is treated as immutable:
// the With* helpers return modified copies.
type Request struct {
	SystemInstruction string
	UserPrompt        string
	ResponseSchema    Schema
}

// WithUserPrompt returns a copy of r with the user prompt replaced.
func (r Request) WithUserPrompt(p string) Request {
	r.UserPrompt = p
	return r
}

// WithSystemInstruction returns a copy of r with the system instruction replaced.
func (r Request) WithSystemInstruction(s string) Request {
	r.SystemInstruction = s
	return r
}

// WithoutSchema returns a copy of r with no response schema.
func (r Request) WithoutSchema() Request {
	r.ResponseSchema = nil
	return r
}

// Usage reports token consumption. Estimated is true when the provider did not report
// usage and the counts come from a TokenCounter.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
	Estimated        bool  `json:"estimated,omitempty"`
}

// Response is the raw textual payload of a completion before any JSON extraction.
type Response struct {
	Text         string
	Usage        *Usage
	FinishReason string
	Provider     ProviderID
	Model        string
}
