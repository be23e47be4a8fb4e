package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skosovsky/llmrelay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func cfg(p llmrelay.ProviderID, model, base string) llmrelay.ProviderConfig {
	return llmrelay.ProviderConfig{Provider: p, APIKey: "sk-test", Model: model, BaseURL: base}
}

func completionJSON(content, finish string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": finish,
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	})
	return string(b)
}

// fakeServer serves chat completions and records the last request body.
func fakeServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if seen != nil {
			data, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(data, seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ExampleAdapter_Params() {
	a, _ := New(cfg(llmrelay.OpenAI, "gpt-5-mini", ""))
	p := a.Params(llmrelay.Request{UserPrompt: "Hello", ResponseSchema: llmrelay.Schema{"type": "object"}})
	fmt.Println(p.MaxCompletionTokens.Value, p.Temperature.Value, p.ReasoningEffort, p.Verbosity)
	// Output: 16000 1 medium medium
}

func TestNew_RequiresCredentials(t *testing.T) {
	t.Parallel()
	_, err := New(llmrelay.ProviderConfig{Provider: llmrelay.DeepSeek, Model: "deepseek-chat"})
	require.ErrorIs(t, err, llmrelay.ErrConfiguration)

	_, err = New(cfg(llmrelay.Gemini, "gemini-2.5-flash", ""))
	require.ErrorIs(t, err, llmrelay.ErrUnsupportedProvider)

	a, err := New(llmrelay.ProviderConfig{Provider: llmrelay.LMStudio, BaseURL: "http://localhost:1234", Model: "local-model"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1234/v1", a.BaseURL())
}

func TestAPIBase(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://api.openai.com/v1", APIBase(llmrelay.OpenAI, ""))
	assert.Equal(t, "https://api.groq.com/openai/v1", APIBase(llmrelay.Groq, ""))
	assert.Equal(t, "https://api.x.ai/v1", APIBase(llmrelay.XAI, "https://api.x.ai/v1/"))
	assert.Equal(t, "https://dashscope-intl.aliyuncs.com/compatible-mode/v1", APIBase(llmrelay.Qwen, ""))
	assert.Equal(t, "https://dashscope.aliyuncs.com/compatible-mode/v1", APIBase(llmrelay.Qwen, "https://dashscope.aliyuncs.com"))
}

func TestQuirksFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		provider llmrelay.ProviderID
		model    string
		want     Quirks
	}{
		{llmrelay.OpenAI, "gpt-4o", Quirks{CompletionTokens: true, NativeJSON: true}},
		{llmrelay.OpenAI, "gpt-4-turbo", Quirks{NativeJSON: true}},
		{llmrelay.OpenAI, "o1-mini", Quirks{CompletionTokens: true, FixedTemperature: true}},
		{llmrelay.OpenAI, "gpt-5", Quirks{CompletionTokens: true, FixedTemperature: true, Reasoning: true}},
		{llmrelay.Mistral, "mistral-large-2407", Quirks{NativeJSON: true}},
		{llmrelay.Qwen, "qwen-max", Quirks{}},
		{llmrelay.LMStudio, "local-model", Quirks{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider)+"/"+tt.model, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, QuirksFor(tt.provider, tt.model))
		})
	}
}

func TestParams_StandardModel(t *testing.T) {
	t.Parallel()
	a, err := New(cfg(llmrelay.Mistral, "mistral-large-2407", ""))
	require.NoError(t, err)
	p := a.Params(llmrelay.Request{SystemInstruction: "sys", UserPrompt: "hi", ResponseSchema: llmrelay.Schema{"type": "object"}})
	require.Len(t, p.Messages, 2)
	assert.Equal(t, "sys", p.Messages[0].OfSystem.Content.OfString.Value)
	assert.Equal(t, "hi", p.Messages[1].OfUser.Content.OfString.Value)
	assert.Equal(t, int64(DefaultCompatMaxTokens), p.MaxTokens.Value)
	assert.False(t, p.MaxCompletionTokens.Valid())
	assert.InDelta(t, DefaultTemperature, p.Temperature.Value, 1e-9)
	assert.NotNil(t, p.ResponseFormat.OfJSONObject)
}

func TestParams_OptionsOverride(t *testing.T) {
	t.Parallel()
	c := cfg(llmrelay.OpenAI, "gpt-4-turbo", "")
	c.Options = map[string]any{"temperature": 0.7, "max_tokens": 512, "top_p": 0.9, "stop": []any{"END"}}
	a, err := New(c)
	require.NoError(t, err)
	p := a.Params(llmrelay.Request{UserPrompt: "hi"})
	assert.Len(t, p.Messages, 1)
	assert.InDelta(t, 0.7, p.Temperature.Value, 1e-9)
	assert.Equal(t, int64(512), p.MaxTokens.Value)
	assert.InDelta(t, 0.9, p.TopP.Value, 1e-9)
	assert.Equal(t, []string{"END"}, p.Stop.OfStringArray)
	assert.Nil(t, p.ResponseFormat.OfJSONObject, "no schema, no JSON mode")
}

func TestParams_ReasoningDropsUnsupported(t *testing.T) {
	t.Parallel()
	c := cfg(llmrelay.OpenAI, "gpt-5", "")
	c.Options = map[string]any{"top_p": 0.5, "temperature": 0.1}
	a, err := New(c)
	require.NoError(t, err)
	p := a.Params(llmrelay.Request{UserPrompt: "hi", ResponseSchema: llmrelay.Schema{"type": "object"}})
	assert.False(t, p.TopP.Valid())
	assert.Nil(t, p.ResponseFormat.OfJSONObject)
	assert.InDelta(t, 1.0, p.Temperature.Value, 1e-9)
	assert.False(t, p.MaxTokens.Valid())
}

func TestGenerateContent_WireFormat(t *testing.T) {
	t.Parallel()
	var seen map[string]any
	srv := fakeServer(t, http.StatusOK, completionJSON(`{"ok":true}`, "stop"), &seen)
	a, err := New(cfg(llmrelay.OpenAI, "gpt-4o", srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := a.GenerateContent(context.Background(), llmrelay.Request{SystemInstruction: "s", UserPrompt: "u", ResponseSchema: llmrelay.Schema{"type": "object"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, &llmrelay.Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}, resp.Usage)

	assert.Equal(t, "gpt-4o", seen["model"])
	assert.InDelta(t, 16000.0, seen["max_completion_tokens"], 1e-9)
	assert.NotContains(t, seen, "max_tokens")
	assert.Equal(t, map[string]any{"type": "json_object"}, seen["response_format"])
	msgs := seen["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestGenerateJSON_Extracts(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t, http.StatusOK, completionJSON("Here you go:\n```json\n[1,2,3]\n```", "stop"), nil)
	a, err := New(cfg(llmrelay.Groq, "llama-3.3-70b-versatile", srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	v, err := a.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x", ResponseSchema: llmrelay.Schema{"type": "array"}})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, v)
}

func TestGenerateContent_EmptyCarriesFinishReason(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t, http.StatusOK, completionJSON("", "content_filter"), nil)
	a, err := New(cfg(llmrelay.XAI, "grok-3", srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	_, err = a.GenerateContent(context.Background(), llmrelay.Request{UserPrompt: "x"})
	var ee *llmrelay.EmptyResponseError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "content_filter", ee.FinishReason)
	assert.Contains(t, err.Error(), "xAI")
	assert.Contains(t, err.Error(), "rephrase")
}

func TestGenerateContent_HTTPErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   int
		body     string
		kind     error
		contains string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, llmrelay.ErrAuthentication, "Incorrect API key provided"},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, llmrelay.ErrRateLimited, "Rate limit reached"},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"Unsupported value: 'temperature'","type":"invalid_request_error"}}`, llmrelay.ErrProvider, "Unsupported value"},
		{"server", http.StatusServiceUnavailable, `{"error":{"message":"overloaded"}}`, llmrelay.ErrProvider, "try again later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := fakeServer(t, tt.status, tt.body, nil)
			a, err := New(cfg(llmrelay.OpenAI, "gpt-4o", srv.URL), WithHTTPClient(srv.Client()))
			require.NoError(t, err)
			_, err = a.GenerateContent(context.Background(), llmrelay.Request{UserPrompt: "x"})
			require.ErrorIs(t, err, tt.kind)
			var pe *llmrelay.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Contains(t, err.Error(), "OpenAI")
		})
	}
}

func TestGenerateContent_QwenAccessDenied(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compatible-mode/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"code":"AccessDenied.Unpurchased","message":"Access denied","type":"AccessDenied.Unpurchased"}}`)
	}))
	defer srv.Close()

	a, err := New(cfg(llmrelay.Qwen, "qwen-max", srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	_, err = a.GenerateContent(context.Background(), llmrelay.Request{UserPrompt: "x"})
	require.ErrorIs(t, err, llmrelay.ErrAuthentication)
	assert.Contains(t, err.Error(), "activate it on the DashScope console")
}

func TestGenerateContent_EmptyPrompt(t *testing.T) {
	t.Parallel()
	a, err := New(cfg(llmrelay.OpenAI, "gpt-4o", "http://127.0.0.1:1"))
	require.NoError(t, err)
	_, err = a.GenerateContent(context.Background(), llmrelay.Request{UserPrompt: ""})
	require.ErrorIs(t, err, llmrelay.ErrConfiguration)
}

func TestGenerateContent_NetworkFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	a, err := New(cfg(llmrelay.DeepSeek, "deepseek-chat", base))
	require.NoError(t, err)
	_, err = a.GenerateContent(context.Background(), llmrelay.Request{UserPrompt: "x"})
	require.ErrorIs(t, err, llmrelay.ErrTransport)
}
