package decode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWith_Strategies(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		strategy string
		want     any
	}{
		{
			name:     "plain object",
			input:    `{"a":1}`,
			strategy: "as_is",
			want:     map[string]any{"a": float64(1)},
		},
		{
			name:     "plain array",
			input:    `[1, 2]`,
			strategy: "as_is",
			want:     []any{float64(1), float64(2)},
		},
		{
			name:     "json fence",
			input:    "```json\n{\"a\":1}\n```",
			strategy: "strip_fence",
			want:     map[string]any{"a": float64(1)},
		},
		{
			name:     "bare fence uppercase tag",
			input:    "```JSON\n{\"story\":\"x\"}```",
			strategy: "strip_fence",
			want:     map[string]any{"story": "x"},
		},
		{
			name:     "trailing commas",
			input:    `{"a":[1,2,],}`,
			strategy: "trailing_commas",
			want:     map[string]any{"a": []any{float64(1), float64(2)}},
		},
		{
			name:     "single quotes",
			input:    `{'a': 'b'}`,
			strategy: "single_quotes",
			want:     map[string]any{"a": "b"},
		},
		{
			name:     "prose around object",
			input:    `Sure! Here you go: {"a": {"b": "c"}} Hope that helps.`,
			strategy: "embedded_object",
			want:     map[string]any{"a": map[string]any{"b": "c"}},
		},
		{
			name:     "fence plus trailing comma",
			input:    "```json\n{\"a\":1,}\n```",
			strategy: "embedded_object",
			want:     map[string]any{"a": float64(1)},
		},
		{
			name:     "first of several objects",
			input:    `one {"id": 1} two {"id": 2}`,
			strategy: "embedded_object",
			want:     map[string]any{"id": float64(1)},
		},
		{
			name:     "brace inside string",
			input:    `note: {"text": "a } in here"} end`,
			strategy: "embedded_object",
			want:     map[string]any{"text": "a } in here"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, ok := DecodeWith(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.strategy, strategy)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Failures(t *testing.T) {
	for _, input := range []string{
		"",
		"   \n\t",
		"not json",
		"{",
		"} {",
		"```json\n```",
	} {
		_, ok := Decode(input)
		assert.False(t, ok, "input %q", input)
	}
}

func TestDecode_StrategiesAreNotCumulative(t *testing.T) {
	// Single quotes alone parse, but single quotes plus a trailing comma need
	// two rewrites at once and no strategy combines them except the last one,
	// which only strips commas.
	_, ok := Decode(`{'a': 1,}`)
	assert.False(t, ok)
}

func TestDecode_NeverPanics(t *testing.T) {
	inputs := []string{
		"\x00\xff{",
		strings.Repeat("{", 5000),
		strings.Repeat("}", 5000),
		`{"a": "\`,
		"```",
		"'''",
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() { Decode(input) })
	}
}

func TestObject(t *testing.T) {
	obj, ok := Object("```\n{\"story\":\"The gate opens.\",\"options\":[]}\n```")
	require.True(t, ok)
	assert.Equal(t, "The gate opens.", obj["story"])

	_, ok = Object(`[1,2,3]`)
	assert.False(t, ok, "arrays are not objects")

	_, ok = Object(`"just a string"`)
	assert.False(t, ok)
}

func TestFirstBalanced(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"surrounded", `prefix {"key": "value"} suffix`, `{"key": "value"}`, true},
		{"nested", `start {"a": {"b": "c"}} end`, `{"a": {"b": "c"}}`, true},
		{"first of two", `one {"id": 1} two {"id": 2}`, `{"id": 1}`, true},
		{"brace in string", `{"key": "value with } inside"}`, `{"key": "value with } inside"}`, true},
		{"escaped quote", `{"key": "a \" b"}`, `{"key": "a \" b"}`, true},
		{"stray closer first", `} { valid } {`, `{ valid }`, true},
		{"empty object", `{}`, `{}`, true},
		{"never closes", `prefix { incomplete`, "", false},
		{"no braces", `just prose`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstBalanced(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
