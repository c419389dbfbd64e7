package protocol

import (
	"context"
	"errors"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/internal/util"
)

// ToolHandler executes a tool with already-validated, default-filled
// arguments. Side-effecting handlers apply exactly once per call: validation
// runs to completion before the handler is invoked.
type ToolHandler func(ctx context.Context, args map[string]any) (any, error)

// Tool couples a schema-validated capability with its handler. Schema follows
// the minimal JSON-Schema shape understood by util.ValidateParameters (type,
// properties, required, enum, minimum/maximum, default).
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     ToolHandler
}

// ToolRegistry maps tool names to schema-validated handlers, preserving
// registration order in listings.
type ToolRegistry struct {
	layer core.Layer
	order []string
	tools map[string]Tool
}

// NewToolRegistry constructs an empty registry scoped to one layer.
func NewToolRegistry(layer core.Layer) *ToolRegistry {
	return &ToolRegistry{layer: layer, tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name panics: tool sets are fixed at
// server construction.
func (r *ToolRegistry) Register(t Tool) {
	if _, exists := r.tools[t.Name]; exists {
		panic("protocol: duplicate tool " + t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// List returns the tool descriptors in registration order.
func (r *ToolRegistry) List() []core.ToolDescriptor {
	out := make([]core.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, core.ToolDescriptor{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return out
}

// Call validates args against the named tool's schema, applies declared
// defaults and dispatches. An unknown name yields CodeNotFound; a schema
// failure yields CodeInvalidArgument naming the offending field, with the
// handler never invoked.
func (r *ToolRegistry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, core.NewNotFound(name, "unknown tool on layer %q", r.layer)
	}

	if args == nil {
		args = map[string]any{}
	}
	filled := util.ApplyDefaults(args, t.Schema)

	if err := util.ValidateParameters(filled, t.Schema); err != nil {
		var verr *util.ValidationError
		if errors.As(err, &verr) {
			return nil, core.NewInvalidArgument(name, verr.Field, "%s", verr.Message)
		}
		return nil, core.NewInvalidArgument(name, "", "%s", err.Error())
	}

	return t.Handler(ctx, filled)
}
