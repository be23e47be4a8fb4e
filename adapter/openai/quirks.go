package openai

import (
	"strings"

	"github.com/skosovsky/llmrelay"
)

// Quirks are the request adjustments a provider and model need.
type Quirks struct {
	// CompletionTokens sends max_completion_tokens instead of max_tokens.
	CompletionTokens bool
	// FixedTemperature forces temperature 1; the model rejects other values.
	FixedTemperature bool
	// Reasoning adds reasoning_effort and verbosity and drops response_format and top_p.
	Reasoning bool
	// NativeJSON sends response_format json_object when a schema is present.
	NativeJSON bool
}

// QuirksFor returns the adjustments for model served by provider.
func QuirksFor(provider llmrelay.ProviderID, model string) Quirks {
	m := strings.ToLower(model)
	q := Quirks{
		CompletionTokens: containsAny(m, "gpt-5", "gpt-4o", "gpt-o3", "o1-"),
		FixedTemperature: containsAny(m, "gpt-5", "o1-"),
		Reasoning:        strings.Contains(m, "gpt-5"),
	}
	switch provider {
	case llmrelay.OpenAI:
		q.NativeJSON = !q.Reasoning && !strings.Contains(m, "o1-")
	case llmrelay.Mistral, llmrelay.DeepSeek, llmrelay.Groq, llmrelay.XAI:
		q.NativeJSON = true
	}
	return q
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Default token limits.
const (
	DefaultMaxTokens       = 16000 // openai
	DefaultCompatMaxTokens = 4000  // every other provider of the family
)

// DefaultTemperature is used unless the model forces its own.
const DefaultTemperature = 0.2

var defaultBaseURLs = map[llmrelay.ProviderID]string{
	llmrelay.OpenAI:   "https://api.openai.com",
	llmrelay.Mistral:  "https://api.mistral.ai",
	llmrelay.DeepSeek: "https://api.deepseek.com",
	llmrelay.Qwen:     "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	llmrelay.XAI:      "https://api.x.ai",
	llmrelay.Groq:     "https://api.groq.com/openai",
	llmrelay.LMStudio: "http://localhost:1234",
}

// Supports reports whether provider speaks the OpenAI chat completions protocol.
func Supports(provider llmrelay.ProviderID) bool {
	_, ok := defaultBaseURLs[provider]
	return ok
}

// APIBase returns the versioned API base for provider: the configured (or default) base
// URL with /v1 appended, or /compatible-mode/v1 for Qwen, unless already present.
func APIBase(provider llmrelay.ProviderID, baseURL string) string {
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURLs[provider]
	}
	suffix := "/v1"
	if provider == llmrelay.Qwen {
		suffix = "/compatible-mode/v1"
	}
	if strings.HasSuffix(base, suffix) {
		return base
	}
	return base + suffix
}
