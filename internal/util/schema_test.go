package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category": map[string]any{"type": "string", "enum": []string{"wisdom", "history"}},
			"content":  map[string]any{"type": "string"},
			"weight":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"tags":     map[string]any{"type": "array"},
		},
		"required": []string{"category", "content"},
	}

	tests := []struct {
		name    string
		params  map[string]any
		wantErr string
	}{
		{
			name:   "valid full",
			params: map[string]any{"category": "wisdom", "content": "x", "weight": 0.7, "tags": []any{"a"}},
		},
		{
			name:   "valid minimal",
			params: map[string]any{"category": "history", "content": "x"},
		},
		{
			name:    "missing required",
			params:  map[string]any{"category": "wisdom"},
			wantErr: "content",
		},
		{
			name:    "wrong type",
			params:  map[string]any{"category": "wisdom", "content": 42},
			wantErr: "content",
		},
		{
			name:    "enum violation",
			params:  map[string]any{"category": "gossip", "content": "x"},
			wantErr: "category",
		},
		{
			name:    "above maximum",
			params:  map[string]any{"category": "wisdom", "content": "x", "weight": 1.5},
			wantErr: "weight",
		},
		{
			name:    "below minimum",
			params:  map[string]any{"category": "wisdom", "content": "x", "weight": -0.1},
			wantErr: "weight",
		},
		{
			name:   "string slice accepted as array",
			params: map[string]any{"category": "wisdom", "content": "x", "tags": []string{"a", "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Field)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"weight": map[string]any{"type": "number", "default": 0.5},
			"tags":   map[string]any{"type": "array", "default": []any{}},
			"name":   map[string]any{"type": "string"},
		},
	}

	t.Run("fills absent fields", func(t *testing.T) {
		out := ApplyDefaults(map[string]any{"name": "x"}, schema)
		assert.Equal(t, 0.5, out["weight"])
		assert.Equal(t, []any{}, out["tags"])
		assert.Equal(t, "x", out["name"])
	})

	t.Run("keeps provided values", func(t *testing.T) {
		out := ApplyDefaults(map[string]any{"weight": 0.9}, schema)
		assert.Equal(t, 0.9, out["weight"])
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := map[string]any{"name": "x"}
		_ = ApplyDefaults(in, schema)
		_, ok := in["weight"]
		assert.False(t, ok)
	})

	t.Run("nil params", func(t *testing.T) {
		out := ApplyDefaults(nil, schema)
		assert.Equal(t, 0.5, out["weight"])
	})
}

func TestStringSlice(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, StringSlice([]any{"a", "b"}))
	assert.Equal(t, []string{"a"}, StringSlice([]string{"a"}))
	assert.Nil(t, StringSlice(nil))
	assert.Nil(t, StringSlice("a"))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("hello {{.name}}", map[string]any{"name": "echo"})
	require.NoError(t, err)
	assert.Equal(t, "hello echo", out)

	_, err = RenderTemplate("{{.name", nil)
	assert.Error(t, err)
}
