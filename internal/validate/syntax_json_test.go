package validate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "object", input: `{"target_table": "t", "n": 1.50}`},
		{name: "object with trailing whitespace", input: "{}\n\n"},
		{name: "empty", input: "  ", wantErr: "empty output"},
		{name: "array", input: `[1, 2]`, wantErr: "got array"},
		{name: "string", input: `"x"`, wantErr: "got string"},
		{name: "trailing data", input: `{"a": 1} {"b": 2}`, wantErr: "unexpected data after the top-level object"},
		{name: "trailing comma", input: "{\n  \"a\": 1,\n}", wantErr: "line 3"},
		{name: "truncated", input: `{"a": [1, 2`, wantErr: "unexpected end of input"},
		{name: "prose", input: `Here is your JSON`, wantErr: "JSON syntax error at line 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := CheckJSONObject(context.Background(), tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.input, art.Text)
				assert.IsType(t, map[string]any{}, art.Value)
				return
			}
			require.Error(t, err)
			var syn *SyntaxError
			require.True(t, errors.As(err, &syn))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, syn.Issue().Message, "syntax error: ")
			assert.Equal(t, KindSyntax, syn.Issue().Kind)
		})
	}
}

func TestCheckJSONObject_KeepsNumbers(t *testing.T) {
	art, err := CheckJSONObject(context.Background(), `{"n": 12345678901234567890}`)
	require.NoError(t, err)
	doc := art.Value.(map[string]any)
	assert.Equal(t, json.Number("12345678901234567890"), doc["n"])
}

func TestCheckJSONObject_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CheckJSONObject(ctx, `{}`)
	assert.ErrorIs(t, err, context.Canceled)
}
