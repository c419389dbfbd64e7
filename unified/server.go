// Package unified composes the three layer servers and the lifecycle
// coordinator into one nested server with a single dispatch surface.
// Resources route by URI scheme; tools and prompts require an explicit layer
// tag, since names are only unique within a layer.
package unified

import (
	"context"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/layer"
	"github.com/hupe1980/echomesh/lifecycle"
	"github.com/hupe1980/echomesh/logging"
	"github.com/hupe1980/echomesh/membrane"
	"github.com/hupe1980/echomesh/protocol"
)

// TaggedResource is a resource descriptor annotated with its owning layer.
type TaggedResource struct {
	Layer core.Layer `json:"layer"`
	core.ResourceDescriptor
}

// TaggedTool is a tool descriptor annotated with its owning layer.
type TaggedTool struct {
	Layer core.Layer `json:"layer"`
	core.ToolDescriptor
}

// TaggedPrompt is a prompt descriptor annotated with its owning layer.
type TaggedPrompt struct {
	Layer core.Layer `json:"layer"`
	core.PromptDescriptor
}

// Options configures a unified Server. Zero-valued fields get working
// defaults: in-memory membranes, a shared emitter, NoOp logging, lifecycle
// cycling disabled.
type Options struct {
	// InstanceName labels the composed server.
	InstanceName string
	// AgentMembrane overrides the default in-memory agent membrane.
	AgentMembrane core.AgentMembrane
	// ArenaMembrane overrides the default in-memory arena membrane.
	ArenaMembrane core.ArenaMembrane
	// RelationMembrane overrides the default in-memory relation membrane.
	RelationMembrane core.RelationMembrane
	// Orchestrator is the optional external multi-agent callback.
	Orchestrator core.Orchestrator
	// AppControl carries the optional application-control hooks.
	AppControl core.AppControl
	// EnableLifecycle turns on interval-driven automatic cycling in Start.
	EnableLifecycle bool
	// LifecycleInterval between automatic cycles.
	LifecycleInterval time.Duration
	// CoherenceThreshold below which coherence:low is emitted.
	CoherenceThreshold float64
	// Emitter is shared by all layers and the coordinator; defaults to a
	// fresh one.
	Emitter *core.Emitter
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Server is the unified nested server: three layer servers over their
// membranes, plus the developmental-cycle coordinator. All layers share one
// emitter, so a single observer sees the whole system's event stream.
type Server struct {
	name        string
	agent       *layer.AgentServer
	arena       *layer.ArenaServer
	relation    *layer.RelationServer
	coordinator *lifecycle.Coordinator

	agentMembrane    core.AgentMembrane
	arenaMembrane    core.ArenaMembrane
	relationMembrane core.RelationMembrane

	enableLifecycle bool
	emitter         *core.Emitter
	logger          logging.Logger
}

// New constructs a unified server. The virtual self-model is bootstrapped
// with defaults and synchronized once from the agent membrane's actual state
// during construction.
func New(optFns ...func(o *Options)) *Server {
	opts := Options{
		InstanceName:       "echomesh",
		LifecycleInterval:  lifecycle.DefaultInterval,
		CoherenceThreshold: lifecycle.DefaultCoherenceThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.AgentMembrane == nil {
		opts.AgentMembrane = membrane.NewAgent()
	}
	if opts.ArenaMembrane == nil {
		opts.ArenaMembrane = membrane.NewArena()
	}
	if opts.RelationMembrane == nil {
		opts.RelationMembrane = membrane.NewRelation()
	}
	if opts.Emitter == nil {
		opts.Emitter = core.NewEmitter()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	// Rich loggers get a component tag per subsystem; plain loggers are
	// shared as-is.
	componentLogger := func(component string) logging.Logger {
		if rich, ok := opts.Logger.(*logging.EchoMeshLogger); ok {
			return rich.WithComponent(component)
		}
		return opts.Logger
	}

	agentSrv := layer.NewAgentServer(opts.AgentMembrane, func(o *layer.AgentOptions) {
		o.Emitter = opts.Emitter
		o.Logger = componentLogger("agent")
	})
	arenaSrv := layer.NewArenaServer(opts.ArenaMembrane, func(o *layer.ArenaOptions) {
		o.Orchestrator = opts.Orchestrator
		o.AppControl = opts.AppControl
		o.Emitter = opts.Emitter
		o.Logger = componentLogger("arena")
	})
	relationSrv := layer.NewRelationServer(opts.RelationMembrane, opts.AgentMembrane, opts.ArenaMembrane, func(o *layer.RelationOptions) {
		o.Emitter = opts.Emitter
		o.Logger = componentLogger("relation")
	})

	coordinator := lifecycle.NewCoordinator(agentSrv, arenaSrv, relationSrv, func(o *lifecycle.Options) {
		o.Interval = opts.LifecycleInterval
		o.CoherenceThreshold = opts.CoherenceThreshold
		o.Emitter = opts.Emitter
		o.Logger = componentLogger("lifecycle")
	})

	return &Server{
		name:             opts.InstanceName,
		agent:            agentSrv,
		arena:            arenaSrv,
		relation:         relationSrv,
		coordinator:      coordinator,
		agentMembrane:    opts.AgentMembrane,
		arenaMembrane:    opts.ArenaMembrane,
		relationMembrane: opts.RelationMembrane,
		enableLifecycle:  opts.EnableLifecycle,
		emitter:          opts.Emitter,
		logger:           opts.Logger,
	}
}

// Name returns the instance name.
func (s *Server) Name() string { return s.name }

// Agent returns the agent layer server.
func (s *Server) Agent() *layer.AgentServer { return s.agent }

// Arena returns the arena layer server.
func (s *Server) Arena() *layer.ArenaServer { return s.arena }

// Relation returns the relation layer server.
func (s *Server) Relation() *layer.RelationServer { return s.relation }

// Coordinator returns the lifecycle coordinator.
func (s *Server) Coordinator() *lifecycle.Coordinator { return s.coordinator }

// Emitter returns the shared emitter.
func (s *Server) Emitter() *core.Emitter { return s.emitter }

// layers returns the layer servers in canonical order.
func (s *Server) layers() []core.LayerServer {
	return []core.LayerServer{s.arena, s.agent, s.relation}
}

func (s *Server) layerByTag(tag core.Layer) (core.LayerServer, error) {
	switch tag {
	case core.LayerArena:
		return s.arena, nil
	case core.LayerAgent:
		return s.agent, nil
	case core.LayerRelation:
		return s.relation, nil
	}
	return nil, core.NewNotFound("unified.layer", "unknown layer %q", tag)
}

// ListAllResources returns every layer's resources, each tagged with its
// owning layer, in layer then registration order.
func (s *Server) ListAllResources() []TaggedResource {
	var out []TaggedResource
	for _, srv := range s.layers() {
		for _, d := range srv.ListResources() {
			out = append(out, TaggedResource{Layer: srv.Layer(), ResourceDescriptor: d})
		}
	}
	return out
}

// ListAllTools returns every layer's tools, tagged with the owning layer.
func (s *Server) ListAllTools() []TaggedTool {
	var out []TaggedTool
	for _, srv := range s.layers() {
		for _, d := range srv.ListTools() {
			out = append(out, TaggedTool{Layer: srv.Layer(), ToolDescriptor: d})
		}
	}
	return out
}

// ListAllPrompts returns every layer's prompts, tagged with the owning layer.
func (s *Server) ListAllPrompts() []TaggedPrompt {
	var out []TaggedPrompt
	for _, srv := range s.layers() {
		for _, d := range srv.ListPrompts() {
			out = append(out, TaggedPrompt{Layer: srv.Layer(), PromptDescriptor: d})
		}
	}
	return out
}

// ReadResource routes a URI to its layer purely by scheme prefix. An unknown
// scheme fails with CodeNotFound.
func (s *Server) ReadResource(uri string) (any, error) {
	tag, ok := protocol.SchemeOf(uri)
	if !ok {
		return nil, core.NewNotFound("unified.readResource", "uri %q has no scheme", uri)
	}
	srv, err := s.layerByTag(tag)
	if err != nil {
		return nil, core.NewNotFound("unified.readResource", "no layer serves scheme %q", tag)
	}
	return srv.ReadResource(uri)
}

// CallTool dispatches to the named layer. The layer tag is explicit: tool
// names are not globally unique across layers.
func (s *Server) CallTool(ctx context.Context, tag core.Layer, name string, args map[string]any) (any, error) {
	srv, err := s.layerByTag(tag)
	if err != nil {
		return nil, err
	}
	return srv.CallTool(ctx, name, args)
}

// GetPrompt renders a prompt on the named layer.
func (s *Server) GetPrompt(tag core.Layer, name string, args map[string]string) (string, error) {
	srv, err := s.layerByTag(tag)
	if err != nil {
		return "", err
	}
	return srv.GetPrompt(name, args)
}

// RunCycle executes one developmental cycle.
func (s *Server) RunCycle(ctx context.Context) ([]core.DevelopmentalCycleResult, error) {
	return s.coordinator.RunCycle(ctx)
}

// ExecutePhase runs a single developmental phase.
func (s *Server) ExecutePhase(ctx context.Context, phase core.Phase) (core.DevelopmentalCycleResult, error) {
	return s.coordinator.ExecutePhase(ctx, phase)
}

// Start starts the membranes and, when lifecycle cycling is enabled, the
// coordinator's interval ticker. Membranes start in arena, agent, relation
// order; the first failure aborts the start.
func (s *Server) Start(ctx context.Context) error {
	if err := s.arenaMembrane.Start(ctx); err != nil {
		return err
	}
	if err := s.agentMembrane.Start(ctx); err != nil {
		return err
	}
	if err := s.relationMembrane.Start(ctx); err != nil {
		return err
	}
	if s.enableLifecycle {
		if err := s.coordinator.Start(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("unified.start", "instance", s.name, "lifecycle", s.enableLifecycle)
	return nil
}

// Stop stops the coordinator first, then the membranes in reverse start
// order. Stop reports the first error but keeps going, so a failing membrane
// does not strand the rest.
func (s *Server) Stop(ctx context.Context) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.coordinator.Stop(ctx))
	record(s.relationMembrane.Stop(ctx))
	record(s.agentMembrane.Stop(ctx))
	record(s.arenaMembrane.Stop(ctx))

	s.logger.Info("unified.stop", "instance", s.name)
	return firstErr
}
