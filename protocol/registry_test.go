package protocol

import (
	"context"
	"testing"

	"github.com/hupe1980/echomesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceRegistry(t *testing.T) {
	r := NewResourceRegistry(core.LayerArena)
	r.Register("arena://state", "state", "", func(_ map[string]string) (any, error) {
		return "state-value", nil
	})
	r.Register("arena://frame/{id}", "frame", "", func(params map[string]string) (any, error) {
		return "frame:" + params["id"], nil
	})
	// A static pattern registered after the parameterized one still wins.
	r.Register("arena://frame/root", "root-frame", "", func(_ map[string]string) (any, error) {
		return "the-root", nil
	})

	t.Run("listing preserves registration order", func(t *testing.T) {
		list := r.List()
		require.Len(t, list, 3)
		assert.Equal(t, "arena://state", list[0].URI)
		assert.Equal(t, "arena://frame/{id}", list[1].URI)
		assert.Equal(t, "arena://frame/root", list[2].URI)
	})

	t.Run("static read", func(t *testing.T) {
		v, err := r.Read("arena://state")
		require.NoError(t, err)
		assert.Equal(t, "state-value", v)
	})

	t.Run("static match beats parameterized", func(t *testing.T) {
		v, err := r.Read("arena://frame/root")
		require.NoError(t, err)
		assert.Equal(t, "the-root", v)
	})

	t.Run("parameterized read", func(t *testing.T) {
		v, err := r.Read("arena://frame/f-1")
		require.NoError(t, err)
		assert.Equal(t, "frame:f-1", v)
	})

	t.Run("read is idempotent", func(t *testing.T) {
		first, err := r.Read("arena://state")
		require.NoError(t, err)
		second, err := r.Read("arena://state")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("unknown path", func(t *testing.T) {
		_, err := r.Read("arena://nothing")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		_, err := r.Read("agent://state")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("wrong-scheme registration panics", func(t *testing.T) {
		assert.Panics(t, func() {
			r.Register("agent://oops", "oops", "", nil)
		})
	})
}

func TestToolRegistry(t *testing.T) {
	ctx := context.Background()

	r := NewToolRegistry(core.LayerArena)
	var calls int
	r.Register(Tool{
		Name: "addLore",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{"type": "string", "enum": []string{"wisdom", "history"}},
				"content":  map[string]any{"type": "string"},
				"weight":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0, "default": 0.5},
			},
			"required": []string{"category", "content"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			calls++
			return args, nil
		},
	})

	t.Run("defaults applied before handler", func(t *testing.T) {
		v, err := r.Call(ctx, "addLore", map[string]any{"category": "wisdom", "content": "x"})
		require.NoError(t, err)
		assert.Equal(t, 0.5, v.(map[string]any)["weight"])
	})

	t.Run("missing required fails without invoking handler", func(t *testing.T) {
		before := calls
		_, err := r.Call(ctx, "addLore", map[string]any{"category": "wisdom"})
		require.Error(t, err)
		assert.True(t, core.IsInvalidArgument(err))

		var cerr *core.Error
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "content", cerr.Field)
		assert.Equal(t, before, calls)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, err := r.Call(ctx, "nope", nil)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		assert.Panics(t, func() {
			r.Register(Tool{Name: "addLore"})
		})
	})
}

func TestPromptRegistry(t *testing.T) {
	r := NewPromptRegistry(core.LayerRelation)
	r.Register(Prompt{
		Name: "social_context",
		Arguments: []core.PromptArgument{
			{Name: "participants", Required: true},
			{Name: "mood", Required: false},
		},
		Render: func(args map[string]string) (string, error) {
			return "with " + args["participants"], nil
		},
	})

	t.Run("renders with required argument", func(t *testing.T) {
		out, err := r.Render("social_context", map[string]string{"participants": "a,b"})
		require.NoError(t, err)
		assert.Equal(t, "with a,b", out)
	})

	t.Run("missing required argument", func(t *testing.T) {
		_, err := r.Render("social_context", map[string]string{})
		require.Error(t, err)
		assert.True(t, core.IsInvalidArgument(err))
	})

	t.Run("empty required argument", func(t *testing.T) {
		_, err := r.Render("social_context", map[string]string{"participants": ""})
		assert.True(t, core.IsInvalidArgument(err))
	})

	t.Run("unknown prompt", func(t *testing.T) {
		_, err := r.Render("missing", nil)
		assert.True(t, core.IsNotFound(err))
	})
}
