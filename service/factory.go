package service

import (
	"log/slog"
	"net/http"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/adapter/anthropic"
	"github.com/skosovsky/llmrelay/adapter/gemini"
	"github.com/skosovsky/llmrelay/adapter/ollama"
	"github.com/skosovsky/llmrelay/adapter/openai"
)

// Factory builds the adapter for one provider configuration. hc carries the routing
// transport for CORS-restricted providers.
type Factory func(cfg llmrelay.ProviderConfig, hc *http.Client, logger *slog.Logger) (llmrelay.Provider, error)

// DefaultFactory selects the adapter implementation by provider id.
func DefaultFactory(cfg llmrelay.ProviderConfig, hc *http.Client, logger *slog.Logger) (llmrelay.Provider, error) {
	switch {
	case cfg.Provider == llmrelay.Gemini:
		return gemini.New(cfg, gemini.WithHTTPClient(hc), gemini.WithLogger(logger))
	case cfg.Provider == llmrelay.Anthropic:
		return anthropic.New(cfg, anthropic.WithHTTPClient(hc), anthropic.WithLogger(logger))
	case cfg.Provider == llmrelay.Ollama:
		return ollama.New(cfg, ollama.WithHTTPClient(hc), ollama.WithLogger(logger))
	case openai.Supports(cfg.Provider):
		return openai.New(cfg, openai.WithHTTPClient(hc), openai.WithLogger(logger))
	default:
		return nil, &llmrelay.ConfigurationError{
			Provider: cfg.Provider,
			Problems: []string{"no adapter for provider " + string(cfg.Provider)},
			Err:      llmrelay.ErrUnsupportedProvider,
		}
	}
}
