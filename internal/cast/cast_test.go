package cast

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

type temperature float32

func TestToFloat64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    any
		want float64
		ok   bool
	}{
		{"json float", 0.7, 0.7, true},
		{"yaml int", 2, 2, true},
		{"uint8", uint8(9), 9, true},
		{"named float kind", temperature(0.5), 0.5, true},
		{"json number", json.Number("1.25"), 1.25, true},
		{"bad json number", json.Number("x"), 0, false},
		{"string", "1.0", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToFloat64(tt.v)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestToInt64(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		v    any
		want int64
		ok   bool
	}{
		{"int", 3, 3, true},
		{"whole json float", float64(1024), 1024, true},
		{"fractional float", 2.5, 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"huge uint clamps", uint64(math.MaxUint64), math.MaxInt64, true},
		{"json number int", json.Number("42"), 42, true},
		{"json number whole float", json.Number("3.0"), 3, true},
		{"json number fraction", json.Number("3.5"), 0, false},
		{"string", "3", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ToInt64(tt.v)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToStringSlice(t *testing.T) {
	t.Parallel()

	got, ok := ToStringSlice([]any{"string", "null"})
	assert.True(t, ok)
	assert.Equal(t, []string{"string", "null"}, got)

	got, ok = ToStringSlice([]string{"a"})
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, got)

	_, ok = ToStringSlice([]any{"a", 1})
	assert.False(t, ok)

	_, ok = ToStringSlice("string")
	assert.False(t, ok)
}
