package llmrelay

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// ProviderID identifies one of the supported LLM backends.
type ProviderID string

// Supported providers.
const (
	Gemini    ProviderID = "gemini"
	OpenAI    ProviderID = "openai"
	Mistral   ProviderID = "mistral"
	Anthropic ProviderID = "anthropic"
	DeepSeek  ProviderID = "deepseek"
	Qwen      ProviderID = "qwen"
	XAI       ProviderID = "xai"
	Groq      ProviderID = "groq"
	Ollama    ProviderID = "ollama"
	LMStudio  ProviderID = "lmstudio"
)

var allProviders = []ProviderID{Gemini, OpenAI, Mistral, Anthropic, DeepSeek, Qwen, XAI, Groq, Ollama, LMStudio}

var displayNames = map[ProviderID]string{
	Gemini:    "Gemini",
	OpenAI:    "OpenAI",
	Mistral:   "Mistral",
	Anthropic: "Anthropic",
	DeepSeek:  "DeepSeek",
	Qwen:      "Qwen",
	XAI:       "xAI",
	Groq:      "Groq",
	Ollama:    "Ollama",
	LMStudio:  "LM Studio",
}

// Providers returns all supported provider ids in a stable order.
func Providers() []ProviderID {
	return slices.Clone(allProviders)
}

// ParseProviderID validates s (case-insensitive) and returns the matching ProviderID.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(allProviders, id) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
	return id, nil
}

// IsLocal reports whether the provider runs on the user's machine (base URL, no API key).
func (p ProviderID) IsLocal() bool {
	return p == Ollama || p == LMStudio
}

// DisplayName returns the human-readable provider name used in error messages.
func (p ProviderID) DisplayName() string {
	if n, ok := displayNames[p]; ok {
		return n
	}
	return string(p)
}

// Provider is the adapter contract: one implementation per backend, selected by a factory on ProviderID.
type Provider interface {
	// ID returns the backend this adapter talks to.
	ID() ProviderID
	// GenerateContent sends req and returns the raw text payload, never assumed well-formed.
	GenerateContent(ctx context.Context, req Request) (*Response, error)
	// GenerateJSON sends req and extracts a JSON value from the answer.
	GenerateJSON(ctx context.Context, req Request) (any, error)
}
