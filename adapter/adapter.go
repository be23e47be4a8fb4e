package adapter

import (
	"context"
	"strings"

	"github.com/skosovsky/llmrelay"
	"github.com/skosovsky/llmrelay/internal/cast"
	"github.com/skosovsky/llmrelay/jsonrepair"
)

// ModelParams holds well-known model option keys extracted from ProviderConfig.Options.
// Use ExtractModelConfig to populate from map[string]any.
type ModelParams struct {
	Temperature *float64
	MaxTokens   *int64
	TopP        *float64
	TopK        *float64
	Stop        []string
}

// ExtractModelConfig reads well-known keys from cfg and returns typed ModelParams.
// Well-known keys: "temperature" (float64), "max_tokens" (int64), "top_p" (float64),
// "top_k" (float64), "stop" ([]string).
func ExtractModelConfig(cfg map[string]any) ModelParams {
	var out ModelParams
	if cfg == nil {
		return out
	}
	if v, ok := cfg["temperature"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.Temperature = &f
		}
	}
	if v, ok := cfg["max_tokens"]; ok {
		if i, ok := cast.ToInt64(v); ok {
			out.MaxTokens = &i
		}
	}
	if v, ok := cfg["top_p"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.TopP = &f
		}
	}
	if v, ok := cfg["top_k"]; ok {
		if f, ok := cast.ToFloat64(v); ok {
			out.TopK = &f
		}
	}
	if v, ok := cfg["stop"]; ok {
		if ss, ok := cast.ToStringSlice(v); ok {
			out.Stop = ss
		}
	}
	return out
}

// TemperatureOr returns mp.Temperature, or def when unset.
func (mp ModelParams) TemperatureOr(def float64) float64 {
	if mp.Temperature != nil {
		return *mp.Temperature
	}
	return def
}

// MaxTokensOr returns mp.MaxTokens, or def when unset or not positive.
func (mp ModelParams) MaxTokensOr(def int64) int64 {
	if mp.MaxTokens != nil && *mp.MaxTokens > 0 {
		return *mp.MaxTokens
	}
	return def
}

// CheckConfig fails with *llmrelay.ConfigurationError when cfg cannot be used.
// Adapters call it at construction so missing credentials never reach the network.
func CheckConfig(cfg llmrelay.ProviderConfig) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return &llmrelay.ConfigurationError{Provider: cfg.Provider, Problems: problems}
	}
	return nil
}

// CheckRequest fails with *llmrelay.ConfigurationError when req has no user prompt.
func CheckRequest(provider llmrelay.ProviderID, req llmrelay.Request) error {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return &llmrelay.ConfigurationError{Provider: provider, Problems: []string{"prompt must not be empty"}}
	}
	return nil
}

// ExtractOptions returns the jsonrepair options used for a response to req.
func ExtractOptions(provider llmrelay.ProviderID, req llmrelay.Request) []jsonrepair.Option {
	opts := []jsonrepair.Option{jsonrepair.WithSchemaKeys(req.ResponseSchema.PropertyNames())}
	if typ, ok := req.ResponseSchema["type"].(string); ok {
		opts = append(opts, jsonrepair.WithSchemaType(typ))
	}
	if provider == llmrelay.Gemini {
		opts = append(opts, jsonrepair.WithProseRecovery())
	}
	return opts
}

// GenerateJSON is the default Provider.GenerateJSON: GenerateContent followed by
// jsonrepair extraction.
func GenerateJSON(ctx context.Context, p llmrelay.Provider, req llmrelay.Request) (any, error) {
	resp, err := p.GenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonrepair.Extract(p.ID(), resp.Text, ExtractOptions(p.ID(), req)...)
}

// EmptyIfBlank returns *llmrelay.EmptyResponseError when text has no content.
func EmptyIfBlank(provider llmrelay.ProviderID, text, finishReason string) error {
	if strings.TrimSpace(text) == "" {
		return &llmrelay.EmptyResponseError{Provider: provider, FinishReason: finishReason}
	}
	return nil
}
