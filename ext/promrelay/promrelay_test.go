package promrelay

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/llmrelay"
)

type fakeProvider struct {
	resp *llmrelay.Response
	err  error
}

func (f *fakeProvider) ID() llmrelay.ProviderID { return llmrelay.DeepSeek }

func (f *fakeProvider) GenerateContent(context.Context, llmrelay.Request) (*llmrelay.Response, error) {
	return f.resp, f.err
}

func (f *fakeProvider) GenerateJSON(context.Context, llmrelay.Request) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{}, nil
}

func TestGenerateContent_CountsUsage(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	p := m.Wrap(&fakeProvider{resp: &llmrelay.Response{Text: "{}", Usage: &llmrelay.Usage{PromptTokens: 12, CompletionTokens: 3}}})

	_, err = p.GenerateContent(context.Background(), llmrelay.Request{UserPrompt: "x"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("deepseek", OpGenerateContent, "ok")), 1e-9)
	assert.InDelta(t, 12.0, testutil.ToFloat64(m.tokens.WithLabelValues("deepseek", "prompt")), 1e-9)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.tokens.WithLabelValues("deepseek", "completion")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestGenerateJSON_ErrorOutcome(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	rateLimited := &llmrelay.ProviderError{Provider: llmrelay.DeepSeek, StatusCode: 429, Kind: llmrelay.ErrRateLimited}
	p := m.Wrapper()(&fakeProvider{err: rateLimited})

	_, err = p.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x"})
	require.ErrorIs(t, err, llmrelay.ErrRateLimited)
	_, err = p.GenerateJSON(context.Background(), llmrelay.Request{UserPrompt: "x"})
	require.Error(t, err)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("deepseek", OpGenerateJSON, "rate_limited")), 1e-9)
	assert.Equal(t, llmrelay.DeepSeek, p.ID())
}

func TestNew_DuplicateRegistration(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}
