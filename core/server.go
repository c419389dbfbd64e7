package core

import "context"

// ResourceDescriptor describes one URI-addressed resource exposed by a layer
// server.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolDescriptor describes one schema-validated tool.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// PromptArgument describes one argument accepted by a prompt template.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// PromptDescriptor describes one argument-templated prompt.
type PromptDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// LayerConfig is a layer server's immutable configuration. Config() returns
// a copy; mutating it never affects the server.
type LayerConfig struct {
	Layer       Layer  `json:"layer"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// LayerServer is the uniform five-operation protocol surface every layer
// exposes. Listings are computed fresh from current membrane state on every
// call and preserve registration order; they are never cached or re-sorted.
type LayerServer interface {
	// Layer returns the layer tag, which doubles as the URI scheme.
	Layer() Layer

	// ListResources returns the resource descriptors in registration order.
	ListResources() []ResourceDescriptor
	// ReadResource resolves uri against the layer's scheme. Static URIs match
	// exactly; parameterized URIs extract path segments. Unknown scheme or
	// unmatched path fails with CodeNotFound.
	ReadResource(uri string) (any, error)

	// ListTools returns the tool descriptors in registration order.
	ListTools() []ToolDescriptor
	// CallTool validates args against the tool's schema, applies declared
	// defaults, then dispatches. Schema failure yields CodeInvalidArgument
	// naming the field, with no membrane mutation; an unknown name yields
	// CodeNotFound. Side-effecting handlers apply exactly once per call.
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)

	// ListPrompts returns the prompt descriptors in registration order.
	ListPrompts() []PromptDescriptor
	// GetPrompt renders a prompt template over a membrane snapshot. A missing
	// required argument yields CodeInvalidArgument.
	GetPrompt(name string, args map[string]string) (string, error)

	// Config returns an immutable copy of the server configuration.
	Config() LayerConfig
}

// Orchestrator is the external multi-agent orchestration callback: given the
// participating agent IDs and a directive it returns one response per agent.
type Orchestrator func(ctx context.Context, agentIDs []string, directive string) (map[string]string, error)

// AppControl holds optional application-control hooks. A nil hook is not an
// error: the corresponding tool degrades to a descriptive no-op result.
type AppControl struct {
	SelectHome   func(homeID string) (string, error)
	Homes        func() ([]string, error)
	CreateHome   func(name string) (string, error)
	OpenSettings func(section string) (string, error)
	Navigate     func(target string) (string, error)
}
