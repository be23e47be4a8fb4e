package configstore

import (
	"github.com/skosovsky/llmrelay"
)

// DefaultProvider is selected when nothing else is configured.
const DefaultProvider = llmrelay.Gemini

var defaults = map[llmrelay.ProviderID]llmrelay.ProviderConfig{
	llmrelay.Gemini:    {Model: "gemini-2.5-flash", BaseURL: "https://generativelanguage.googleapis.com"},
	llmrelay.Ollama:    {Model: "llama3.3", BaseURL: "http://localhost:11434"},
	llmrelay.LMStudio:  {Model: "local-model", BaseURL: "http://localhost:1234"},
	llmrelay.Mistral:   {Model: "mistral-large-2407", BaseURL: "https://api.mistral.ai"},
	llmrelay.Anthropic: {Model: "claude-sonnet-4-20250514", BaseURL: "https://api.anthropic.com"},
	llmrelay.DeepSeek:  {Model: "deepseek-chat", BaseURL: "https://api.deepseek.com"},
	llmrelay.Qwen:      {Model: "qwen-max", BaseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"},
	llmrelay.XAI:       {Model: "grok-2-latest", BaseURL: "https://api.x.ai"},
	llmrelay.Groq:      {Model: "llama-3.3-70b-versatile", BaseURL: "https://api.groq.com/openai"},
	llmrelay.OpenAI:    {Model: "gpt-4o", BaseURL: "https://api.openai.com"},
}

// Default returns the built-in configuration: every provider with its default model and
// base URL, no credentials, Gemini selected.
func Default() llmrelay.Config {
	cfg := llmrelay.Config{Provider: DefaultProvider, Providers: make(map[llmrelay.ProviderID]llmrelay.ProviderConfig, len(defaults))}
	for _, id := range llmrelay.Providers() {
		pc := defaults[id]
		pc.Provider = id
		cfg.Providers[id] = pc
	}
	return cfg
}

// DefaultFor returns the built-in settings of one provider.
func DefaultFor(id llmrelay.ProviderID) (llmrelay.ProviderConfig, bool) {
	pc, ok := defaults[id]
	if ok {
		pc.Provider = id
	}
	return pc, ok
}

// merge overlays the non-empty fields of src onto dst. Options replace dst's options.
func merge(dst, src llmrelay.ProviderConfig) llmrelay.ProviderConfig {
	if src.APIKey != "" {
		dst.APIKey = src.APIKey
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Options != nil {
		dst.Options = src.Options
	}
	return dst
}
