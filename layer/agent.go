package layer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/internal/util"
	"github.com/hupe1980/echomesh/logging"
	"github.com/hupe1980/echomesh/protocol"
)

// AgentOptions configures an AgentServer.
type AgentOptions struct {
	// Name overrides the server's configured name.
	Name string
	// Emitter receives the server's notifications; defaults to a fresh one.
	Emitter *core.Emitter
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// AgentServer wraps the Agent membrane and owns the virtual self-model. The
// self-model inverts the real containment: the arena contains the agent, but
// the agent's self-model (Vi) contains its world-model (Vo). Vo is created
// first and handed to Vi, which holds the only tracked reference; reads and
// patches go through the server's mutex, and the Vo pointer is never
// re-assigned after construction.
type AgentServer struct {
	baseServer
	membrane core.AgentMembrane

	virtMu sync.RWMutex
	vo     *core.VirtualArenaModel
	vi     *core.VirtualAgentModel
}

var _ core.LayerServer = (*AgentServer)(nil)

// NewAgentServer constructs the agent layer server over the given membrane.
// The virtual models are initialized with conservative defaults and then
// synchronized once from the membrane's actual state.
func NewAgentServer(m core.AgentMembrane, optFns ...func(o *AgentOptions)) *AgentServer {
	opts := AgentOptions{Name: "agent"}
	for _, fn := range optFns {
		fn(&opts)
	}

	vo := core.NewVirtualArenaModel()
	s := &AgentServer{
		baseServer: newBaseServer(core.LayerConfig{
			Layer:       core.LayerAgent,
			Name:        opts.Name,
			Description: "agent state: identity, character facets, social memory, virtual self-model",
			Version:     "1.0.0",
		}, opts.Emitter, opts.Logger),
		membrane: m,
		vo:       vo,
		vi:       core.NewVirtualAgentModel(vo),
	}

	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	s.SyncVirtualFromActual()
	return s
}

// Membrane exposes the wrapped agent membrane.
func (s *AgentServer) Membrane() core.AgentMembrane { return s.membrane }

// VirtualSelf returns a detached deep copy of the self-model. The copy's
// WorldView does not alias the tracked world-model.
func (s *AgentServer) VirtualSelf() *core.VirtualAgentModel {
	s.virtMu.RLock()
	defer s.virtMu.RUnlock()

	return s.vi.Clone()
}

// VirtualWorld returns a detached deep copy of the world-model.
func (s *AgentServer) VirtualWorld() *core.VirtualArenaModel {
	s.virtMu.RLock()
	defer s.virtMu.RUnlock()

	return s.vo.Clone()
}

// WithVirtual runs fn with the live self-model under the read lock. fn must
// not retain or mutate the model; it exists for callers, like the lifecycle
// coordinator, that need a consistent multi-field read without a full clone.
func (s *AgentServer) WithVirtual(fn func(vi *core.VirtualAgentModel)) {
	s.virtMu.RLock()
	defer s.virtMu.RUnlock()

	fn(s.vi)
}

// UpdateVirtualAgent applies a shallow-merge patch to the self-model and
// emits virtual-agent:updated with a detached snapshot.
func (s *AgentServer) UpdateVirtualAgent(patch core.VirtualAgentPatch) *core.VirtualAgentModel {
	s.virtMu.Lock()
	s.vi.Apply(patch)
	snapshot := s.vi.Clone()
	s.virtMu.Unlock()

	s.emitter.Emit(core.TopicVirtualAgentUpdated, snapshot)
	return snapshot
}

// UpdateVirtualArena applies a shallow-merge patch to the nested world-model
// and emits virtual-arena:updated with a detached snapshot. The change is
// observable through Vi's WorldView as well, shared pointer and all.
func (s *AgentServer) UpdateVirtualArena(patch core.VirtualArenaPatch) *core.VirtualArenaModel {
	s.virtMu.Lock()
	s.vo.Apply(patch)
	snapshot := s.vo.Clone()
	s.virtMu.Unlock()

	s.emitter.Emit(core.TopicVirtualArenaUpdated, snapshot)
	return snapshot
}

// MarkSynced stamps the world-model's divergence metrics after a Mirroring
// pass. The metrics are rebuilt wholesale, never merged.
func (s *AgentServer) MarkSynced(metrics core.DivergenceMetrics) {
	s.virtMu.Lock()
	s.vo.DivergenceMetrics = metrics
	s.vo.DivergenceMetrics.KnownMisalignments = append([]string(nil), metrics.KnownMisalignments...)
	s.virtMu.Unlock()
}

// SetEstimatedCoherence assigns the coherence estimate carried by the
// world-model. Only the Mirroring phase calls this; the estimate is never
// computed from the virtual models themselves.
func (s *AgentServer) SetEstimatedCoherence(coherence float64) {
	s.virtMu.Lock()
	s.vo.SituationalAwareness.EstimatedCoherence = coherence
	s.virtMu.Unlock()
}

// ImportVirtual overwrites the virtual models from a detached snapshot. The
// tracked Vi and Vo keep their addresses: contents are copied in place, so
// the WorldView aliasing survives the import. Emits virtual:synced.
func (s *AgentServer) ImportVirtual(snapshot *core.VirtualAgentModel) {
	s.virtMu.Lock()
	s.vi.CopyFrom(snapshot)
	refreshed := s.vi.Clone()
	s.virtMu.Unlock()

	s.emitter.Emit(core.TopicVirtualSynced, refreshed)
}

// SyncVirtualFromActual refreshes the self-model's verifiable fields from the
// membrane's actual state: the perceived dominant facet, capabilities named
// after active facets, and a confidence bump toward the actual engagement.
// Purely interpretive fields (story, goals, world theory) are left alone.
// Emits virtual:synced with the refreshed self-model snapshot.
func (s *AgentServer) SyncVirtualFromActual() *core.VirtualAgentModel {
	actual := s.membrane.State()

	s.virtMu.Lock()
	s.vi.SelfImage.PerceivedDominantFacet = actual.DominantFacet
	if actual.Identity.Name != "" {
		s.vi.SelfImage.Description = fmt.Sprintf("%s, currently led by the %s facet", actual.Identity.Name, actual.DominantFacet)
	}
	s.vi.PerceivedCapabilities = activeFacetNames(actual.Facets)
	s.vi.SelfAwareness.LastReflection = time.Now()
	snapshot := s.vi.Clone()
	s.virtMu.Unlock()

	s.emitter.Emit(core.TopicVirtualSynced, snapshot)
	return snapshot
}

// activeFacetNames lists facets with meaningful activation, strongest first.
func activeFacetNames(facets core.CharacterFacets) []string {
	names := make([]string, 0, len(facets))
	for name, facet := range facets {
		if facet.Activation >= 0.2 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if facets[names[i]].Activation != facets[names[j]].Activation {
			return facets[names[i]].Activation > facets[names[j]].Activation
		}
		return names[i] < names[j]
	})
	return names
}

func (s *AgentServer) registerResources() {
	s.resources.Register("agent://identity", "identity", "Core identity of the agent", func(_ map[string]string) (any, error) {
		return s.membrane.Identity(), nil
	})
	s.resources.Register("agent://facets", "facets", "Character facets with activation levels", func(_ map[string]string) (any, error) {
		st := s.membrane.State()
		return map[string]any{"facets": st.Facets, "dominant": st.DominantFacet}, nil
	})
	s.resources.Register("agent://state", "state", "Full agent state snapshot", func(_ map[string]string) (any, error) {
		return s.membrane.State(), nil
	})
	// The live pointers, not copies: a later mutation is observable on a
	// re-read of the same resource, and vi.WorldView from one read is the
	// same object a worldview read returns.
	s.resources.Register("agent://self", "virtual-self", "The agent's virtual self-model, world-model nested inside", func(_ map[string]string) (any, error) {
		return s.vi, nil
	})
	s.resources.Register("agent://worldview", "virtual-world", "The agent's virtual world-model", func(_ map[string]string) (any, error) {
		return s.vo, nil
	})
	s.resources.Register("agent://social/{entityId}", "social-memory-entry", "The agent's impression of one entity", func(params map[string]string) (any, error) {
		entityID := params["entityId"]
		entry, ok := s.membrane.SocialMemory(entityID)
		if !ok {
			return nil, core.NewNotFound("agent.social", "no social memory for entity %q", entityID)
		}
		return entry, nil
	})
	s.resources.Register("agent://social", "social-memory", "All social memory entries", func(_ map[string]string) (any, error) {
		return s.membrane.State().Social, nil
	})
	s.resources.Register("agent://memory", "transactional-memory", "The agent's transactional memory log", func(_ map[string]string) (any, error) {
		return s.membrane.State().Transactions, nil
	})
}

func (s *AgentServer) registerTools() {
	s.tools.Register(protocol.Tool{
		Name:        "activateFacet",
		Description: "Raise a character facet's activation to at least the given level",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"facet": map[string]any{"type": "string", "description": "Facet name"},
				"level": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			},
			"required": []string{"facet", "level"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			facet, _ := args["facet"].(string)
			if err := s.membrane.ActivateFacet(facet, numberArg(args, "level")); err != nil {
				return nil, err
			}
			st := s.membrane.State()
			return map[string]any{"facets": st.Facets, "dominant": st.DominantFacet}, nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "evolve",
		Description: "Integrate an experience, shifting facet activations by its impact",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"experience": map[string]any{"type": "string"},
				"impact":     map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0, "default": 0.5},
			},
			"required": []string{"experience"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			experience, _ := args["experience"].(string)
			if err := s.membrane.Evolve(experience, numberArg(args, "impact")); err != nil {
				return nil, err
			}
			return s.membrane.State(), nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "participate",
		Description: "Record an engagement action, blending intensity into the engagement level",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action":    map[string]any{"type": "string"},
				"intensity": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0, "default": 0.5},
			},
			"required": []string{"action"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			action, _ := args["action"].(string)
			if err := s.membrane.Participate(action, numberArg(args, "intensity")); err != nil {
				return nil, err
			}
			return map[string]any{"engagement": s.membrane.State().Engagement}, nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "updateSocialMemory",
		Description: "Merge an impression of another entity into social memory",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"entityId":    map[string]any{"type": "string"},
				"name":        map[string]any{"type": "string", "default": ""},
				"trust":       map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
				"familiarity": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
				"note":        map[string]any{"type": "string", "default": ""},
			},
			"required": []string{"entityId"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			entityID, _ := args["entityId"].(string)
			var patch core.SocialMemoryPatch
			if v, ok := args["name"].(string); ok && v != "" {
				patch.Name = &v
			}
			if _, ok := args["trust"]; ok {
				trust := numberArg(args, "trust")
				patch.Trust = &trust
			}
			if _, ok := args["familiarity"]; ok {
				familiarity := numberArg(args, "familiarity")
				patch.Familiarity = &familiarity
			}
			if v, ok := args["note"].(string); ok && v != "" {
				patch.Notes = []string{v}
			}
			if err := s.membrane.UpdateSocialMemory(entityID, patch); err != nil {
				return nil, err
			}
			entry, _ := s.membrane.SocialMemory(entityID)
			return entry, nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "updateVirtualAgent",
		Description: "Shallow-merge a patch into the virtual self-model",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"selfDescription":        map[string]any{"type": "string"},
				"selfConfidence":         map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
				"perceivedDominantFacet": map[string]any{"type": "string"},
				"selfStory":              map[string]any{"type": "string"},
				"perceivedCapabilities":  map[string]any{"type": "array"},
				"roleUnderstanding":      map[string]any{"type": "string"},
				"currentGoals":           map[string]any{"type": "array"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			var patch core.VirtualAgentPatch
			if v, ok := args["selfDescription"].(string); ok {
				patch.SelfDescription = &v
			}
			if _, ok := args["selfConfidence"]; ok {
				v := numberArg(args, "selfConfidence")
				patch.SelfConfidence = &v
			}
			if v, ok := args["perceivedDominantFacet"].(string); ok {
				patch.PerceivedDominantFacet = &v
			}
			if v, ok := args["selfStory"].(string); ok {
				patch.SelfStory = &v
			}
			if _, ok := args["perceivedCapabilities"]; ok {
				v := util.StringSlice(args["perceivedCapabilities"])
				patch.PerceivedCapabilities = &v
			}
			if v, ok := args["roleUnderstanding"].(string); ok {
				patch.RoleUnderstanding = &v
			}
			if _, ok := args["currentGoals"]; ok {
				v := util.StringSlice(args["currentGoals"])
				patch.CurrentGoals = &v
			}
			return s.UpdateVirtualAgent(patch), nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "updateVirtualArena",
		Description: "Shallow-merge a patch into the nested virtual world-model",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"perceivedContext":      map[string]any{"type": "string"},
				"assumedNarrativePhase": map[string]any{"type": "string"},
				"perceivedRules":        map[string]any{"type": "array"},
				"worldTheory":           map[string]any{"type": "string"},
				"uncertainties":         map[string]any{"type": "array"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			var patch core.VirtualArenaPatch
			if v, ok := args["perceivedContext"].(string); ok {
				patch.PerceivedContext = &v
			}
			if v, ok := args["assumedNarrativePhase"].(string); ok {
				patch.AssumedNarrativePhase = &v
			}
			if _, ok := args["perceivedRules"]; ok {
				v := util.StringSlice(args["perceivedRules"])
				patch.PerceivedRules = &v
			}
			if v, ok := args["worldTheory"].(string); ok {
				patch.WorldTheory = &v
			}
			if _, ok := args["uncertainties"]; ok {
				v := util.StringSlice(args["uncertainties"])
				patch.Uncertainties = &v
			}
			return s.UpdateVirtualArena(patch), nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "syncVirtualFromActual",
		Description: "Refresh the self-model's verifiable fields from actual agent state",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return s.SyncVirtualFromActual(), nil
		},
	})
}

func (s *AgentServer) registerPrompts() {
	s.prompts.Register(protocol.Prompt{
		Name:        "self_reflection",
		Description: "A first-person reflection grounded in the virtual self-model",
		Arguments:   nil,
		Render: func(_ map[string]string) (string, error) {
			vi := s.VirtualSelf()
			var b strings.Builder
			fmt.Fprintf(&b, "I see myself as %s.", vi.SelfImage.Description)
			if vi.SelfImage.PerceivedDominantFacet != "" {
				fmt.Fprintf(&b, " The %s in me feels strongest.", vi.SelfImage.PerceivedDominantFacet)
			}
			fmt.Fprintf(&b, " %s", vi.SelfStory)
			if len(vi.SelfAwareness.ActiveQuestions) > 0 {
				fmt.Fprintf(&b, " I keep asking: %s", strings.Join(vi.SelfAwareness.ActiveQuestions, " "))
			}
			fmt.Fprintf(&b, " My world, as I understand it: %s", vi.WorldView.WorldTheory)
			return b.String(), nil
		},
	})

	s.prompts.Register(protocol.Prompt{
		Name:        "first_person_status",
		Description: "A compact first-person status line",
		Arguments: []core.PromptArgument{
			{Name: "mood", Description: "Optional mood coloring the status", Required: false},
		},
		Render: func(args map[string]string) (string, error) {
			actual := s.membrane.State()
			vi := s.VirtualSelf()
			return util.RenderTemplate(
				"I am {{.name}}. Right now {{.facet}} leads me; my engagement sits at {{pct .engagement}} "+
					"and I trust my self-image at {{pct .confidence}}.{{if .mood}} The mood is {{.mood}}.{{end}}",
				map[string]any{
					"name":       actual.Identity.Name,
					"facet":      actual.DominantFacet,
					"engagement": actual.Engagement,
					"confidence": vi.SelfImage.Confidence,
					"mood":       args["mood"],
				},
			)
		},
	})
}
