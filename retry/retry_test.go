package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/skosovsky/llmrelay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func rateLimited() error {
	return &llmrelay.ProviderError{Provider: llmrelay.Groq, StatusCode: http.StatusTooManyRequests, Kind: llmrelay.ErrRateLimited}
}

func TestDo_RateLimitExhaustsAttempts(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(context.Context) error {
		calls++
		return rateLimited()
	}, WithSleep(rec.sleep))

	require.ErrorIs(t, err, llmrelay.ErrRateLimited)
	var pe *llmrelay.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
	for i := 1; i < len(rec.waits); i++ {
		assert.Greater(t, rec.waits[i], rec.waits[i-1])
	}
}

func TestDo_AuthIsFatal(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	calls := 0
	want := &llmrelay.ProviderError{Provider: llmrelay.OpenAI, StatusCode: http.StatusUnauthorized, Kind: llmrelay.ErrAuthentication}
	err := Do(context.Background(), DefaultPolicy(), func(context.Context) error {
		calls++
		return want
	}, WithSleep(rec.sleep))
	assert.Same(t, want, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestDoValue_SucceedsAfterTransient(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	calls := 0
	v, err := DoValue(context.Background(), Policy{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond, BackoffFactor: 3},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("dial: %w", llmrelay.ErrTransport)
			}
			return "ok", nil
		}, WithSleep(rec.sleep))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, rec.waits)
}

func TestDo_NonRetryableFailsFast(t *testing.T) {
	t.Parallel()
	calls := 0
	err := Do(context.Background(), DefaultPolicy(), func(context.Context) error {
		calls++
		return &llmrelay.EmptyResponseError{Provider: llmrelay.Gemini, FinishReason: "SAFETY"}
	}, WithSleep(func(context.Context, time.Duration) error { return nil }))
	require.ErrorIs(t, err, llmrelay.ErrEmptyResponse)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledDuringSleep(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, DefaultPolicy(), func(context.Context) error {
		calls++
		return rateLimited()
	}, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return SleepContext(ctx, d)
	}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContextNotRetried(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, DefaultPolicy(), func(context.Context) error {
		calls++
		cancel()
		return rateLimited()
	})
	require.ErrorIs(t, err, llmrelay.ErrRateLimited)
	assert.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, NonRetryable},
		{"config", &llmrelay.ConfigurationError{Provider: llmrelay.Mistral}, Fatal},
		{"proxy", &llmrelay.ConfigurationError{Err: llmrelay.ErrProxyUnavailable}, Fatal},
		{"forbidden status", &llmrelay.ProviderError{Provider: llmrelay.Qwen, StatusCode: 403}, Fatal},
		{"too many requests status", &llmrelay.ProviderError{Provider: llmrelay.XAI, StatusCode: 429}, Retryable},
		{"transport kind", &llmrelay.ProviderError{Provider: llmrelay.DeepSeek, Kind: llmrelay.ErrTransport}, Retryable},
		{"request timeout status", &llmrelay.ProviderError{Provider: llmrelay.DeepSeek, StatusCode: 408, Kind: llmrelay.ErrTransport}, Retryable},
		{"server error status", &llmrelay.ProviderError{Provider: llmrelay.DeepSeek, StatusCode: 503, Kind: llmrelay.ErrProvider}, NonRetryable},
		{"bad request", &llmrelay.ProviderError{Provider: llmrelay.OpenAI, StatusCode: 400, Message: "rate must be positive"}, NonRetryable},
		{"malformed", &llmrelay.MalformedJSONError{Provider: llmrelay.Gemini}, NonRetryable},
		{"canceled", context.Canceled, NonRetryable},
		{"message api key", errors.New("invalid API key provided"), Fatal},
		{"message cors", errors.New("blocked by CORS policy"), Fatal},
		{"message 401", errors.New("status 401"), Fatal},
		{"message rate", errors.New("Rate limit exceeded"), Retryable},
		{"message timeout", errors.New("request timeout"), Retryable},
		{"message network", errors.New("network unreachable"), Retryable},
		{"message other", errors.New("unexpected end of input"), NonRetryable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.err), tt.want.String())
		})
	}
}

func TestPolicy_Delay(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, time.Second, Policy{InitialDelay: time.Second}.Delay(3))
}

func TestSleepContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
