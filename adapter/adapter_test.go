package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/skosovsky/llmrelay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubProvider struct {
	id   llmrelay.ProviderID
	text string
	err  error
}

func (s stubProvider) ID() llmrelay.ProviderID { return s.id }

func (s stubProvider) GenerateContent(context.Context, llmrelay.Request) (*llmrelay.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llmrelay.Response{Text: s.text, Provider: s.id}, nil
}

func (s stubProvider) GenerateJSON(ctx context.Context, req llmrelay.Request) (any, error) {
	return GenerateJSON(ctx, s, req)
}

func TestGenerateJSON_FencedArray(t *testing.T) {
	t.Parallel()
	p := stubProvider{id: llmrelay.OpenAI, text: "```json\n[1,2,3]\n```"}
	v, err := p.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x", ResponseSchema: llmrelay.Schema{"type": "array"}})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, v)
}

func TestGenerateJSON_ArraySchemaAfterProse(t *testing.T) {
	t.Parallel()
	text := `Using {"format": "list"} as asked: [{"id": "RS1"}, {"id": "RS2"}]`
	p := stubProvider{id: llmrelay.Gemini, text: text}
	v, err := p.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x", ResponseSchema: llmrelay.Schema{
		"type":  "array",
		"items": map[string]any{"type": "object", "properties": map[string]any{"id": map[string]any{"type": "string"}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": "RS1"}, map[string]any{"id": "RS2"}}, v)

	v, err = p.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x", ResponseSchema: llmrelay.Schema{"type": "object"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"format": "list"}, v)
}

func TestGenerateJSON_Empty(t *testing.T) {
	t.Parallel()
	p := stubProvider{id: llmrelay.Mistral, text: ""}
	_, err := p.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x"})
	require.ErrorIs(t, err, llmrelay.ErrEmptyResponse)
	assert.Contains(t, err.Error(), "Mistral")
}

func TestGenerateJSON_PropagatesProviderError(t *testing.T) {
	t.Parallel()
	want := NewProviderError(llmrelay.DeepSeek, http.StatusTooManyRequests, "", nil)
	_, err := stubProvider{id: llmrelay.DeepSeek, err: want}.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x"})
	assert.Same(t, want, err)
}

func TestStatusKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llmrelay.ErrAuthentication},
		{http.StatusForbidden, llmrelay.ErrAuthentication},
		{http.StatusTooManyRequests, llmrelay.ErrRateLimited},
		{http.StatusRequestTimeout, llmrelay.ErrTransport},
		{http.StatusInternalServerError, llmrelay.ErrProvider},
		{http.StatusBadGateway, llmrelay.ErrProvider},
		{http.StatusServiceUnavailable, llmrelay.ErrProvider},
		{http.StatusBadRequest, llmrelay.ErrProvider},
		{http.StatusNotFound, llmrelay.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusKind(tt.status))
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "  ", ""},
		{"nested", `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, "Incorrect API key provided"},
		{"nested with code", `{"error":{"message":"model not purchased","code":"AccessDenied.Unpurchased"}}`, "AccessDenied.Unpurchased: model not purchased"},
		{"numeric code", `{"error":{"message":"slow down","code":429}}`, "slow down"},
		{"string error", `{"error":"model 'llama9' not found"}`, "model 'llama9' not found"},
		{"top-level message", `{"message":"Unauthorized"}`, "Unauthorized"},
		{"detail", `{"detail":"Not Found"}`, "Not Found"},
		{"plain text", "Bad Gateway", "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DecodeMessage(tt.body))
		})
	}
}

func TestNewProviderError(t *testing.T) {
	t.Parallel()
	err := NewProviderError(llmrelay.Anthropic, http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, nil)
	require.ErrorIs(t, err, llmrelay.ErrAuthentication)
	assert.Contains(t, err.Error(), "Anthropic")
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestRequestError(t *testing.T) {
	t.Parallel()
	cfgErr := &llmrelay.ConfigurationError{Provider: llmrelay.Anthropic, Err: llmrelay.ErrProxyUnavailable}
	assert.Same(t, cfgErr, RequestError(llmrelay.Anthropic, fmt.Errorf("post: %w", cfgErr)))

	err := RequestError(llmrelay.Groq, errors.New("connection refused"))
	require.ErrorIs(t, err, llmrelay.ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCheckConfigAndRequest(t *testing.T) {
	t.Parallel()
	err := CheckConfig(llmrelay.ProviderConfig{Provider: llmrelay.XAI, Model: "grok-3"})
	require.ErrorIs(t, err, llmrelay.ErrConfiguration)
	assert.Contains(t, err.Error(), "xAI API key is missing")

	require.NoError(t, CheckConfig(llmrelay.ProviderConfig{Provider: llmrelay.XAI, APIKey: "k", Model: "grok-3"}))
	require.ErrorIs(t, CheckRequest(llmrelay.XAI, llmrelay.Request{UserPrompt: " "}), llmrelay.ErrConfiguration)
	require.NoError(t, CheckRequest(llmrelay.XAI, llmrelay.Request{UserPrompt: "x"}))
}

func TestEmptyIfBlank(t *testing.T) {
	t.Parallel()
	err := EmptyIfBlank(llmrelay.OpenAI, " \n", "content_filter")
	var ee *llmrelay.EmptyResponseError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "content_filter", ee.FinishReason)
	require.NoError(t, EmptyIfBlank(llmrelay.OpenAI, "{}", "stop"))
}

func TestModelParams_Defaults(t *testing.T) {
	t.Parallel()
	mp := ExtractModelConfig(map[string]any{"max_tokens": 0, "top_k": 40})
	assert.InDelta(t, 0.2, mp.TemperatureOr(0.2), 1e-9)
	assert.Equal(t, int64(4000), mp.MaxTokensOr(4000))
	require.NotNil(t, mp.TopK)
	assert.InDelta(t, 40.0, *mp.TopK, 1e-9)
}

func TestExtractModelConfig(t *testing.T) {
	t.Parallel()

	mp := ExtractModelConfig(nil)
	assert.Equal(t, ModelParams{}, mp)

	// Options decoded from a YAML config file.
	mp = ExtractModelConfig(map[string]any{
		"temperature": 1,
		"max_tokens":  float64(1024),
		"top_p":       0.95,
		"stop":        []any{"###"},
		"model":       "ignored",
	})
	require.NotNil(t, mp.Temperature)
	assert.InDelta(t, 1.0, *mp.Temperature, 1e-9)
	require.NotNil(t, mp.MaxTokens)
	assert.Equal(t, int64(1024), *mp.MaxTokens)
	require.NotNil(t, mp.TopP)
	assert.InDelta(t, 0.95, *mp.TopP, 1e-9)
	assert.Equal(t, []string{"###"}, mp.Stop)

	mp = ExtractModelConfig(map[string]any{"temperature": "high", "max_tokens": 10.5, "stop": []any{1}})
	assert.Nil(t, mp.Temperature)
	assert.Nil(t, mp.MaxTokens)
	assert.Nil(t, mp.Stop)
}
