package protocol

import (
	"github.com/hupe1980/echomesh/core"
)

// ResourceHandler resolves a matched resource URI into its current value.
// Params carries the captured path parameters (empty for static URIs).
// Handlers read from membrane snapshots on every call: results are never
// cached between reads.
type ResourceHandler func(params map[string]string) (any, error)

type resourceEntry struct {
	pattern URIPattern
	desc    core.ResourceDescriptor
	handler ResourceHandler
}

// ResourceRegistry maps URI patterns to handlers. Registration order is
// preserved in listings and in parameterized-pattern fallback order.
type ResourceRegistry struct {
	layer   core.Layer
	entries []resourceEntry
}

// NewResourceRegistry constructs an empty registry scoped to one layer.
func NewResourceRegistry(layer core.Layer) *ResourceRegistry {
	return &ResourceRegistry{layer: layer}
}

// Register adds a resource under the given pattern. The pattern's scheme must
// belong to the registry's layer; Register panics otherwise since patterns
// are statically known at server construction.
func (r *ResourceRegistry) Register(pattern, name, description string, handler ResourceHandler) {
	p := MustParseURIPattern(pattern)
	if p.Scheme != r.layer {
		panic("protocol: pattern " + pattern + " registered on layer " + string(r.layer))
	}
	r.entries = append(r.entries, resourceEntry{
		pattern: p,
		desc:    core.ResourceDescriptor{URI: p.String(), Name: name, Description: description},
		handler: handler,
	})
}

// List returns the resource descriptors in registration order.
func (r *ResourceRegistry) List() []core.ResourceDescriptor {
	out := make([]core.ResourceDescriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.desc
	}
	return out
}

// Read resolves uri. Exact static matches are preferred; parameterized
// patterns are tried in registration order only after every static match
// fails. Unknown scheme or unmatched path yields CodeNotFound.
func (r *ResourceRegistry) Read(uri string) (any, error) {
	scheme, ok := SchemeOf(uri)
	if !ok {
		return nil, core.NewNotFound(uri, "malformed resource URI")
	}
	if scheme != r.layer {
		return nil, core.NewNotFound(uri, "unrecognized scheme %q for layer %q", scheme, r.layer)
	}

	for _, e := range r.entries {
		if !e.pattern.IsStatic() {
			continue
		}
		if _, matched := e.pattern.Match(uri); matched {
			return e.handler(nil)
		}
	}
	for _, e := range r.entries {
		if e.pattern.IsStatic() {
			continue
		}
		if params, matched := e.pattern.Match(uri); matched {
			return e.handler(params)
		}
	}

	return nil, core.NewNotFound(uri, "no resource matches URI")
}
