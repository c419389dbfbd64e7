// Package echomesh provides a high-level façade over the unified nested
// server: three layer servers (arena, agent, relation) over in-memory
// membranes, plus the five-phase developmental-cycle coordinator. Most
// applications interact with this package by:
//  1. Creating an EchoMesh via New() (optionally overriding membranes,
//     orchestration callback or app-control hooks)
//  2. Reading resources, calling tools and rendering prompts through the
//     unified dispatch surface
//  3. Driving developmental cycles manually (RunCycle) or letting the
//     interval ticker do it (EnableLifecycle)
//
// The façade delegates dispatch to unified.Server while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; hosting applications typically supply an orchestration callback
// and a structured logger.
package echomesh

import (
	"context"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/lifecycle"
	"github.com/hupe1980/echomesh/logging"
	"github.com/hupe1980/echomesh/unified"
)

// Options configures the EchoMesh instance.
type Options struct {
	// InstanceName labels the server in logs and snapshots.
	InstanceName string

	// EnableLifecycle turns on interval-driven automatic developmental
	// cycling when the server starts.
	EnableLifecycle bool

	// LifecycleInterval is the period between automatic cycles. Ignored
	// unless EnableLifecycle is set.
	LifecycleInterval time.Duration

	// CoherenceThreshold is the level below which a coherence:low event is
	// emitted after each phase. Low coherence is observed, never gated.
	CoherenceThreshold float64

	// Membranes (default to in-memory implementations if not provided)
	AgentMembrane    core.AgentMembrane
	ArenaMembrane    core.ArenaMembrane
	RelationMembrane core.RelationMembrane

	// Orchestrator is the external multi-agent callback backing the
	// orchestrate tool. Absent, orchestration degrades to a descriptive
	// failure outcome.
	Orchestrator core.Orchestrator

	// AppControl carries optional application-control hooks for the
	// arena's app-facing tools.
	AppControl core.AppControl

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// EchoMesh is the high-level façade aggregating the unified server.
type EchoMesh struct {
	opts   Options
	server *unified.Server
}

// New creates a new EchoMesh instance with optional overrides. Any unset
// membrane is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *EchoMesh {
	opts := Options{
		InstanceName:       "echomesh",
		LifecycleInterval:  lifecycle.DefaultInterval,
		CoherenceThreshold: lifecycle.DefaultCoherenceThreshold,
		Logger:             logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	server := unified.New(func(o *unified.Options) {
		o.InstanceName = opts.InstanceName
		o.AgentMembrane = opts.AgentMembrane
		o.ArenaMembrane = opts.ArenaMembrane
		o.RelationMembrane = opts.RelationMembrane
		o.Orchestrator = opts.Orchestrator
		o.AppControl = opts.AppControl
		o.EnableLifecycle = opts.EnableLifecycle
		o.LifecycleInterval = opts.LifecycleInterval
		o.CoherenceThreshold = opts.CoherenceThreshold
		o.Logger = opts.Logger
	})

	return &EchoMesh{opts: opts, server: server}
}

// NewFromConfig creates an EchoMesh from a loaded configuration, with
// optional programmatic overrides applied on top.
func NewFromConfig(cfg Config, optFns ...func(o *Options)) *EchoMesh {
	base := func(o *Options) {
		cfg.apply(o)
	}
	return New(append([]func(o *Options){base}, optFns...)...)
}

// Server exposes the underlying unified server for advanced use.
func (e *EchoMesh) Server() *unified.Server { return e.server }

// Emitter exposes the shared event emitter for observer registration.
func (e *EchoMesh) Emitter() *core.Emitter { return e.server.Emitter() }

// Start starts the membranes and, if enabled, automatic cycling.
func (e *EchoMesh) Start(ctx context.Context) error { return e.server.Start(ctx) }

// Stop stops automatic cycling and the membranes.
func (e *EchoMesh) Stop(ctx context.Context) error { return e.server.Stop(ctx) }

// ListAllResources lists every resource across all layers, tagged by layer.
func (e *EchoMesh) ListAllResources() []unified.TaggedResource {
	return e.server.ListAllResources()
}

// ListAllTools lists every tool across all layers, tagged by layer.
func (e *EchoMesh) ListAllTools() []unified.TaggedTool { return e.server.ListAllTools() }

// ListAllPrompts lists every prompt across all layers, tagged by layer.
func (e *EchoMesh) ListAllPrompts() []unified.TaggedPrompt { return e.server.ListAllPrompts() }

// ReadResource resolves a URI against the owning layer by scheme.
func (e *EchoMesh) ReadResource(uri string) (any, error) { return e.server.ReadResource(uri) }

// CallTool invokes a named tool on an explicit layer.
func (e *EchoMesh) CallTool(ctx context.Context, layer core.Layer, name string, args map[string]any) (any, error) {
	return e.server.CallTool(ctx, layer, name, args)
}

// GetPrompt renders a named prompt on an explicit layer.
func (e *EchoMesh) GetPrompt(layer core.Layer, name string, args map[string]string) (string, error) {
	return e.server.GetPrompt(layer, name, args)
}

// RunCycle executes one five-phase developmental cycle.
func (e *EchoMesh) RunCycle(ctx context.Context) ([]core.DevelopmentalCycleResult, error) {
	return e.server.RunCycle(ctx)
}

// ExecutePhase runs a single developmental phase.
func (e *EchoMesh) ExecutePhase(ctx context.Context, phase core.Phase) (core.DevelopmentalCycleResult, error) {
	return e.server.ExecutePhase(ctx, phase)
}

// ExportSnapshot captures the virtual models for persistence.
func (e *EchoMesh) ExportSnapshot() unified.Snapshot { return e.server.ExportSnapshot() }

// ImportSnapshot restores the virtual models from a snapshot.
func (e *EchoMesh) ImportSnapshot(snap unified.Snapshot) error {
	return e.server.ImportSnapshot(snap)
}
