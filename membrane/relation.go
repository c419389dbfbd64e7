package membrane

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/echomesh/core"
)

// tensionActivationBand: a paired-pole tension is considered active when its
// balance sits outside 0.5 +/- this band.
const tensionActivationBand = 0.08

// Relation is a volatile RelationMembrane implementation. It holds only the
// most recent synthesis; coherence is always read out of that synthesis,
// never maintained as an independent scalar.
type Relation struct {
	mu      sync.RWMutex
	running bool

	identity       core.EmergentIdentity
	reflection     core.SelfReflection
	synthesisCount int
}

var _ core.RelationMembrane = (*Relation)(nil)

// NewRelation constructs an empty relation membrane. Until the first
// synthesis its coherence is zero and its reflection is a blank slate.
func NewRelation() *Relation {
	return &Relation{
		reflection: core.SelfReflection{
			SelfNarrative:   "I have not yet synthesized who I am here.",
			PerceivedRole:   "undetermined",
			ActiveQuestions: []string{"what joins the agent to its arena?"},
		},
	}
}

// State returns a deep-copied snapshot of the relation state.
func (r *Relation) State() core.RelationState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return core.RelationState{
		Identity:       cloneIdentity(r.identity),
		Reflection:     cloneReflection(r.reflection),
		SynthesisCount: r.synthesisCount,
	}
}

// SelfReflection returns the current first-person reflection.
func (r *Relation) SelfReflection() core.SelfReflection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneReflection(r.reflection)
}

// EmergentIdentity returns the current synthesis summary.
func (r *Relation) EmergentIdentity() core.EmergentIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneIdentity(r.identity)
}

// Coherence returns the coherence of the most recent synthesis.
func (r *Relation) Coherence() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity.Coherence
}

// Synthesize recomputes the emergent identity from fresh agent and arena
// snapshots. The computation is deterministic: coherence blends how clearly
// the agent knows itself (dominant facet activation), how focused the arena
// is (dominant phase intensity), how grounded the world is (mean lore
// weight) and how trusting the social field is (mean trust).
func (r *Relation) Synthesize(agent core.AgentState, arena core.ArenaState) core.EmergentIdentity {
	facetAlignment := 0.0
	if f, ok := agent.Facets[agent.DominantFacet]; ok {
		facetAlignment = f.Activation
	}

	phaseFocus := arena.Phases[arena.CurrentPhase]

	loreGrounding := 0.5
	if len(arena.Lore) > 0 {
		var sum float64
		for _, entry := range arena.Lore {
			sum += entry.Weight
		}
		loreGrounding = sum / float64(len(arena.Lore))
	}

	socialTrust := 0.5
	if len(agent.Social) > 0 {
		var sum float64
		for _, entry := range agent.Social {
			sum += entry.Trust
		}
		socialTrust = sum / float64(len(agent.Social))
	}

	coherence := clamp01(0.35*facetAlignment + 0.3*phaseFocus + 0.2*loreGrounding + 0.15*socialTrust)

	themes := activeThemes(agent, arena)
	tensions := activeTensions(agent, phaseFocus, socialTrust)
	flow := dominantFlow(agent.Engagement, phaseFocus)

	identity := core.EmergentIdentity{
		Coherence:        coherence,
		ActiveThemes:     themes,
		CreativeTensions: tensions,
		DominantFlow:     flow,
		SynthesizedAt:    time.Now().UTC(),
	}
	reflection := reflect(agent, arena, identity)

	r.mu.Lock()
	r.identity = identity
	r.reflection = reflection
	r.synthesisCount++
	r.mu.Unlock()

	return cloneIdentity(identity)
}

func activeThemes(agent core.AgentState, arena core.ArenaState) []string {
	themes := []string{agent.DominantFacet, arena.CurrentPhase}
	seen := map[string]bool{agent.DominantFacet: true, arena.CurrentPhase: true}
	for _, entry := range arena.Lore {
		if seen[entry.Category] {
			continue
		}
		seen[entry.Category] = true
		themes = append(themes, entry.Category)
		if len(themes) >= 5 {
			break
		}
	}
	return themes
}

func activeTensions(agent core.AgentState, phaseFocus, socialTrust float64) []core.CreativeTension {
	candidates := []core.CreativeTension{
		{Pole1: "introspection", Pole2: "engagement", Balance: agent.Engagement},
		{Pole1: "stability", Pole2: "novelty", Balance: clamp01(1 - phaseFocus)},
		{Pole1: "solitude", Pole2: "communion", Balance: socialTrust},
	}

	active := make([]core.CreativeTension, 0, len(candidates))
	for _, t := range candidates {
		if math.Abs(t.Balance-0.5) > tensionActivationBand {
			active = append(active, t)
		}
	}
	return active
}

func dominantFlow(engagement, phaseFocus float64) core.FlowDirection {
	switch {
	case engagement > phaseFocus+0.1:
		return core.FlowAgentToArena
	case phaseFocus > engagement+0.1:
		return core.FlowArenaToAgent
	default:
		return core.FlowBidirectional
	}
}

func reflect(agent core.AgentState, arena core.ArenaState, identity core.EmergentIdentity) core.SelfReflection {
	questions := make([]string, 0, len(identity.CreativeTensions)+1)
	for _, t := range identity.CreativeTensions {
		questions = append(questions, fmt.Sprintf("how do I hold %s against %s?", t.Pole1, t.Pole2))
	}
	if identity.Coherence < 0.5 {
		questions = append(questions, "why do my self and my world pull apart?")
	}

	return core.SelfReflection{
		SelfNarrative: fmt.Sprintf(
			"I am %s, mostly %s, moving through the %s phase; my themes are %s and my coherence holds at %.2f.",
			agent.Identity.Name, agent.DominantFacet, arena.CurrentPhase,
			strings.Join(identity.ActiveThemes, ", "), identity.Coherence,
		),
		PerceivedRole:   fmt.Sprintf("the %s of this arena", agent.DominantFacet),
		ActiveQuestions: questions,
	}
}

// Start marks the membrane running.
func (r *Relation) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("relation membrane is already running")
	}
	r.running = true
	return nil
}

// Stop marks the membrane stopped. Stopping a stopped membrane is a no-op.
func (r *Relation) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	return nil
}

func cloneIdentity(id core.EmergentIdentity) core.EmergentIdentity {
	id.ActiveThemes = slices.Clone(id.ActiveThemes)
	id.CreativeTensions = slices.Clone(id.CreativeTensions)
	return id
}

func cloneReflection(r core.SelfReflection) core.SelfReflection {
	r.ActiveQuestions = slices.Clone(r.ActiveQuestions)
	return r
}
