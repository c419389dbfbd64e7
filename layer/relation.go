package layer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/logging"
	"github.com/hupe1980/echomesh/protocol"
)

// DefaultFlowWindow caps how many flow events the relation server retains.
const DefaultFlowWindow = 50

// FlowEvent records one observed cognitive flow between agent and arena.
type FlowEvent struct {
	ID          string             `json:"id"`
	Direction   core.FlowDirection `json:"direction"`
	Description string             `json:"description"`
	Intensity   float64            `json:"intensity"`
	Timestamp   time.Time          `json:"timestamp"`
}

// RelationOptions configures a RelationServer.
type RelationOptions struct {
	// Name overrides the server's configured name.
	Name string
	// FlowWindow bounds the retained flow history; defaults to DefaultFlowWindow.
	FlowWindow int
	// Emitter receives the server's notifications; defaults to a fresh one.
	Emitter *core.Emitter
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// RelationServer wraps the Relation membrane along with read handles on the
// agent and arena membranes it synthesizes over. It additionally keeps a
// bounded sliding window of observed flow events.
type RelationServer struct {
	baseServer
	membrane core.RelationMembrane
	agent    core.AgentMembrane
	arena    core.ArenaMembrane

	flowMu     sync.RWMutex
	flows      []FlowEvent
	flowWindow int
}

var _ core.LayerServer = (*RelationServer)(nil)

// NewRelationServer constructs the relation layer server. agent and arena
// supply the snapshots every synthesis is computed from.
func NewRelationServer(m core.RelationMembrane, agent core.AgentMembrane, arena core.ArenaMembrane, optFns ...func(o *RelationOptions)) *RelationServer {
	opts := RelationOptions{Name: "relation", FlowWindow: DefaultFlowWindow}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.FlowWindow <= 0 {
		opts.FlowWindow = DefaultFlowWindow
	}

	s := &RelationServer{
		baseServer: newBaseServer(core.LayerConfig{
			Layer:       core.LayerRelation,
			Name:        opts.Name,
			Description: "emergent identity: coherence, creative tensions, cognitive flows",
			Version:     "1.0.0",
		}, opts.Emitter, opts.Logger),
		membrane:   m,
		agent:      agent,
		arena:      arena,
		flowWindow: opts.FlowWindow,
	}

	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Membrane exposes the wrapped relation membrane.
func (s *RelationServer) Membrane() core.RelationMembrane { return s.membrane }

// Synthesize recomputes the emergent identity from fresh agent and arena
// snapshots.
func (s *RelationServer) Synthesize() core.EmergentIdentity {
	return s.membrane.Synthesize(s.agent.State(), s.arena.State())
}

// Coherence returns the coherence of a fresh synthesis. It is derived each
// call rather than read from a cache.
func (s *RelationServer) Coherence() float64 {
	return s.Synthesize().Coherence
}

// RecordFlow appends a flow event to the sliding window, evicting the oldest
// entries past the window bound. Invalid directions are rejected without
// mutating the window.
func (s *RelationServer) RecordFlow(direction core.FlowDirection, description string, intensity float64) (FlowEvent, error) {
	if !direction.Valid() {
		return FlowEvent{}, core.NewInvalidArgument("relation.recordFlow", "direction", "unknown flow direction %q", direction)
	}

	event := FlowEvent{
		ID:          uuid.NewString(),
		Direction:   direction,
		Description: description,
		Intensity:   clampUnit(intensity),
		Timestamp:   time.Now().UTC(),
	}

	s.flowMu.Lock()
	s.flows = append(s.flows, event)
	if overflow := len(s.flows) - s.flowWindow; overflow > 0 {
		s.flows = append(s.flows[:0], s.flows[overflow:]...)
	}
	s.flowMu.Unlock()

	return event, nil
}

// Flows returns the retained flow events, oldest first.
func (s *RelationServer) Flows() []FlowEvent {
	s.flowMu.RLock()
	defer s.flowMu.RUnlock()

	out := make([]FlowEvent, len(s.flows))
	copy(out, s.flows)
	return out
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (s *RelationServer) registerResources() {
	s.resources.Register("relation://state", "state", "Full relation state snapshot", func(_ map[string]string) (any, error) {
		return s.membrane.State(), nil
	})
	s.resources.Register("relation://identity", "emergent-identity", "Freshly synthesized emergent identity", func(_ map[string]string) (any, error) {
		return s.Synthesize(), nil
	})
	s.resources.Register("relation://coherence", "coherence", "Current coherence scalar, derived live", func(_ map[string]string) (any, error) {
		return map[string]any{"coherence": s.Coherence()}, nil
	})
	s.resources.Register("relation://tensions", "creative-tensions", "Active creative tensions", func(_ map[string]string) (any, error) {
		return s.Synthesize().CreativeTensions, nil
	})
	s.resources.Register("relation://flows", "flows", "Recent cognitive flow events, oldest first", func(_ map[string]string) (any, error) {
		return s.Flows(), nil
	})
}

func (s *RelationServer) registerTools() {
	s.tools.Register(protocol.Tool{
		Name:        "synthesize",
		Description: "Recompute the emergent identity from fresh agent and arena snapshots",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return s.Synthesize(), nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "recordFlow",
		Description: "Record a cognitive flow between agent and arena",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"direction": map[string]any{
					"type": "string",
					"enum": []string{string(core.FlowAgentToArena), string(core.FlowArenaToAgent), string(core.FlowBidirectional)},
				},
				"description": map[string]any{"type": "string", "default": ""},
				"intensity":   map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0, "default": 0.5},
			},
			"required": []string{"direction"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			direction, _ := args["direction"].(string)
			description, _ := args["description"].(string)
			return s.RecordFlow(core.FlowDirection(direction), description, numberArg(args, "intensity"))
		},
	})
}

func (s *RelationServer) registerPrompts() {
	s.prompts.Register(protocol.Prompt{
		Name:        "social_context",
		Description: "Frame the emergent identity against a set of participants",
		Arguments: []core.PromptArgument{
			{Name: "participants", Description: "Comma-separated participant names", Required: true},
		},
		Render: func(args map[string]string) (string, error) {
			identity := s.Synthesize()
			participants := strings.Split(args["participants"], ",")
			for i := range participants {
				participants[i] = strings.TrimSpace(participants[i])
			}
			var b strings.Builder
			fmt.Fprintf(&b, "In the company of %s, the relation holds at %.0f%% coherence.",
				strings.Join(participants, ", "), identity.Coherence*100)
			if len(identity.ActiveThemes) > 0 {
				fmt.Fprintf(&b, " Themes in play: %s.", strings.Join(identity.ActiveThemes, ", "))
			}
			fmt.Fprintf(&b, " The dominant flow runs %s.", identity.DominantFlow)
			return b.String(), nil
		},
	})

	s.prompts.Register(protocol.Prompt{
		Name:        "tension_report",
		Description: "Describe the active creative tensions",
		Arguments:   nil,
		Render: func(_ map[string]string) (string, error) {
			identity := s.Synthesize()
			if len(identity.CreativeTensions) == 0 {
				return "No creative tension is active; the relation rests in equilibrium.", nil
			}
			var b strings.Builder
			b.WriteString("Active tensions:")
			for _, t := range identity.CreativeTensions {
				fmt.Fprintf(&b, "\n- %s vs %s (balance %.2f)", t.Pole1, t.Pole2, t.Balance)
			}
			return b.String(), nil
		},
	})
}
