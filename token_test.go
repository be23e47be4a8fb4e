package llmrelay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharFallbackCounter_Count(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cpt  int
		text string
		want int
	}{
		{"empty default", 0, "", 0},
		{"ASCII short default", 0, "hello", 2},
		{"ASCII exact", 4, "abcd", 1},
		{"accents count as runes", 4, "Élevée", 2},
		{"cpt2", 2, "Élevée", 3},
		{"negative cpt uses 4", -1, "1234", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &CharFallbackCounter{CharsPerToken: tt.cpt}
			got, err := c.Count(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateUsage(t *testing.T) {
	t.Parallel()
	u, err := EstimateUsage(nil, "12345678", "abcd")
	require.NoError(t, err)
	assert.Equal(t, &Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3, Estimated: true}, u)
}

type failingCounter struct{}

func (failingCounter) Count(string) (int, error) { return 0, errors.New("tokenizer down") }

func TestEstimateUsage_CounterError(t *testing.T) {
	t.Parallel()
	_, err := EstimateUsage(failingCounter{}, "a", "b")
	require.Error(t, err)
}
