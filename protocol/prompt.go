package protocol

import (
	"github.com/hupe1980/echomesh/core"
)

// PromptRenderer produces the prompt text from the flat string-keyed
// arguments. Renderers are pure functions over a membrane snapshot plus the
// supplied arguments; required arguments are checked before invocation.
type PromptRenderer func(args map[string]string) (string, error)

// Prompt couples a prompt descriptor with its renderer.
type Prompt struct {
	Name        string
	Description string
	Arguments   []core.PromptArgument
	Render      PromptRenderer
}

// PromptRegistry maps prompt names to renderers, preserving registration
// order in listings.
type PromptRegistry struct {
	layer   core.Layer
	order   []string
	prompts map[string]Prompt
}

// NewPromptRegistry constructs an empty registry scoped to one layer.
func NewPromptRegistry(layer core.Layer) *PromptRegistry {
	return &PromptRegistry{layer: layer, prompts: make(map[string]Prompt)}
}

// Register adds a prompt. Re-registering a name panics: prompt sets are fixed
// at server construction.
func (r *PromptRegistry) Register(p Prompt) {
	if _, exists := r.prompts[p.Name]; exists {
		panic("protocol: duplicate prompt " + p.Name)
	}
	r.prompts[p.Name] = p
	r.order = append(r.order, p.Name)
}

// List returns the prompt descriptors in registration order.
func (r *PromptRegistry) List() []core.PromptDescriptor {
	out := make([]core.PromptDescriptor, 0, len(r.order))
	for _, name := range r.order {
		p := r.prompts[name]
		out = append(out, core.PromptDescriptor{Name: p.Name, Description: p.Description, Arguments: p.Arguments})
	}
	return out
}

// Render resolves and renders the named prompt. An unknown name yields
// CodeNotFound; a missing required argument yields CodeInvalidArgument
// naming the argument.
func (r *PromptRegistry) Render(name string, args map[string]string) (string, error) {
	p, ok := r.prompts[name]
	if !ok {
		return "", core.NewNotFound(name, "unknown prompt on layer %q", r.layer)
	}

	for _, arg := range p.Arguments {
		if !arg.Required {
			continue
		}
		if v, exists := args[arg.Name]; !exists || v == "" {
			return "", core.NewInvalidArgument(name, arg.Name, "required prompt argument is missing")
		}
	}

	return p.Render(args)
}
