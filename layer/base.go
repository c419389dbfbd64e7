package layer

import (
	"context"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/logging"
	"github.com/hupe1980/echomesh/protocol"
)

// baseServer bundles the shared protocol plumbing of a layer server: the
// three registries, the emitter and the logger. Concrete servers embed it
// and register their resources, tools and prompts at construction; the
// registries are not mutated afterwards, so the dispatch methods need no
// locking of their own.
type baseServer struct {
	cfg       core.LayerConfig
	resources *protocol.ResourceRegistry
	tools     *protocol.ToolRegistry
	prompts   *protocol.PromptRegistry
	emitter   *core.Emitter
	logger    logging.Logger
}

func newBaseServer(cfg core.LayerConfig, emitter *core.Emitter, logger logging.Logger) baseServer {
	if emitter == nil {
		emitter = core.NewEmitter()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return baseServer{
		cfg:       cfg,
		resources: protocol.NewResourceRegistry(cfg.Layer),
		tools:     protocol.NewToolRegistry(cfg.Layer),
		prompts:   protocol.NewPromptRegistry(cfg.Layer),
		emitter:   emitter,
		logger:    logger,
	}
}

// Layer returns the layer tag.
func (b *baseServer) Layer() core.Layer { return b.cfg.Layer }

// Config returns an immutable copy of the server configuration.
func (b *baseServer) Config() core.LayerConfig { return b.cfg }

// Emitter exposes the server's emitter for observer registration.
func (b *baseServer) Emitter() *core.Emitter { return b.emitter }

// ListResources returns the resource descriptors in registration order.
func (b *baseServer) ListResources() []core.ResourceDescriptor { return b.resources.List() }

// ReadResource resolves a resource URI against the layer's registry.
func (b *baseServer) ReadResource(uri string) (any, error) {
	value, err := b.resources.Read(uri)
	if err != nil {
		b.logger.Debug("resource.read.miss", "layer", b.cfg.Layer, "uri", uri, "error", err.Error())
		return nil, err
	}
	return value, nil
}

// ListTools returns the tool descriptors in registration order.
func (b *baseServer) ListTools() []core.ToolDescriptor { return b.tools.List() }

// CallTool validates and dispatches a tool call, logging its outcome.
func (b *baseServer) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	start := time.Now()
	b.logger.Debug("tool.call.start", "layer", b.cfg.Layer, "tool", name)

	result, err := b.tools.Call(ctx, name, args)

	if tl, ok := b.logger.(logging.ToolCallLogger); ok {
		tl.LogToolCall(string(b.cfg.Layer), name, time.Since(start), err == nil, err)
	} else if err != nil {
		if core.IsInvalidArgument(err) {
			b.logger.Warn("tool.call.validation_failed", "layer", b.cfg.Layer, "tool", name, "error", err.Error())
		} else {
			b.logger.Error("tool.call.error", "layer", b.cfg.Layer, "tool", name, "error", err.Error())
		}
	} else {
		b.logger.Info("tool.call.success", "layer", b.cfg.Layer, "tool", name, "duration_ms", time.Since(start).Milliseconds())
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListPrompts returns the prompt descriptors in registration order.
func (b *baseServer) ListPrompts() []core.PromptDescriptor { return b.prompts.List() }

// GetPrompt renders a prompt template.
func (b *baseServer) GetPrompt(name string, args map[string]string) (string, error) {
	return b.prompts.Render(name, args)
}
