package critique

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/skosovsky/llmrelay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minBusinessValues(n int) CheckFunc {
	return func(v any) []string {
		obj, _ := v.(map[string]any)
		items, _ := obj["businessValues"].([]any)
		if len(items) >= n {
			return nil
		}
		return []string{
			fmt.Sprintf("businessValues must contain at least %d items (got %d)", n, len(items)),
			fmt.Sprintf("add %d more business values", n-len(items)),
		}
	}
}

func values(n int) map[string]any {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{"name": fmt.Sprintf("VM%d", i+1)}
	}
	return map[string]any{"businessValues": items}
}

func TestLoop_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()
	var prompts []string
	var states []State
	loop := New(WithTransition(func(tr Transition) { states = append(states, tr.To) }))

	counts := []int{2, 3, 4}
	got, err := loop.Run(context.Background(), llmrelay.Request{UserPrompt: "List business values."},
		func(_ context.Context, req llmrelay.Request) (any, error) {
			prompts = append(prompts, req.UserPrompt)
			return values(counts[len(prompts)-1]), nil
		}, minBusinessValues(4))

	require.NoError(t, err)
	assert.Equal(t, values(4), got)
	require.Len(t, prompts, 3)
	assert.Equal(t, "List business values.", prompts[0])
	assert.Contains(t, prompts[1], "at least 4 items (got 2)")
	assert.Contains(t, prompts[1], "add 2 more business values")

	assert.True(t, strings.HasPrefix(prompts[2], "List business values.\n\n"))
	assert.Contains(t, prompts[2], "at least 4 items (got 3)")
	assert.Contains(t, prompts[2], "add 1 more business values")
	assert.NotContains(t, prompts[2], "got 2", "only the preceding attempt's issues are fed back")

	assert.Equal(t, []State{
		StateAttempt, StateValidate,
		StateAttempt, StateValidate,
		StateAttempt, StateValidate, StateSucceed,
	}, states)
}

func TestLoop_Exhausted(t *testing.T) {
	t.Parallel()
	calls := 0
	var last Transition
	loop := New(WithTransition(func(tr Transition) { last = tr }))
	got, err := loop.Run(context.Background(), llmrelay.Request{UserPrompt: "p"},
		func(context.Context, llmrelay.Request) (any, error) {
			calls++
			return values(1), nil
		}, minBusinessValues(4))

	assert.Nil(t, got)
	var verr *llmrelay.ValidationError
	require.ErrorAs(t, err, &verr)
	require.ErrorIs(t, err, llmrelay.ErrValidation)
	assert.Equal(t, MaxAttempts, verr.Attempts)
	assert.Equal(t, []string{"businessValues must contain at least 4 items (got 1)", "add 3 more business values"}, verr.Issues)
	assert.Equal(t, MaxAttempts, calls)
	assert.Equal(t, StateFailExhausted, last.To)
}

func TestLoop_ValidationErrorFromGenerateFeedsBack(t *testing.T) {
	t.Parallel()
	var prompts []string
	got, err := New().Run(context.Background(), llmrelay.Request{UserPrompt: "p"},
		func(_ context.Context, req llmrelay.Request) (any, error) {
			prompts = append(prompts, req.UserPrompt)
			if len(prompts) == 1 {
				return nil, &llmrelay.ValidationError{Issues: []string{"(root): Invalid type. Expected: array, given: object"}}
			}
			return []any{1.0}, nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, got)
	assert.Contains(t, prompts[1], "Expected: array")
}

func TestLoop_ValidationErrorWithoutIssues(t *testing.T) {
	t.Parallel()
	var prompts []string
	_, err := New().Run(context.Background(), llmrelay.Request{UserPrompt: "p"},
		func(_ context.Context, req llmrelay.Request) (any, error) {
			prompts = append(prompts, req.UserPrompt)
			return nil, &llmrelay.ValidationError{}
		}, nil)
	var verr *llmrelay.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MaxAttempts, verr.Attempts)
	assert.Equal(t, []string{"response failed validation"}, verr.Issues)
	require.Len(t, prompts, MaxAttempts)
	assert.Equal(t, "p", prompts[0])
	assert.NotEqual(t, prompts[0], prompts[1])
	assert.Contains(t, prompts[1], "response failed validation")
}

func TestLoop_OtherErrorsPropagate(t *testing.T) {
	t.Parallel()
	want := &llmrelay.EmptyResponseError{Provider: llmrelay.Anthropic}
	calls := 0
	_, err := New().Run(context.Background(), llmrelay.Request{UserPrompt: "p"},
		func(context.Context, llmrelay.Request) (any, error) {
			calls++
			return nil, want
		}, minBusinessValues(1))
	assert.Same(t, want, errors.Unwrap(fmt.Errorf("%w", err)))
	assert.Equal(t, 1, calls)
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "fail_exhausted", StateFailExhausted.String())
	assert.Equal(t, "unknown", State(0).String())
}
