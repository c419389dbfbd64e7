package core

import (
	"context"
	"time"
)

// Layer identifies one of the three AAR membranes and doubles as the URI
// scheme of its layer server.
type Layer string

const (
	// LayerArena owns the world state: narrative phases, session frames, lore.
	LayerArena Layer = "arena"
	// LayerAgent owns the agent's actual state: identity, facets, memories.
	LayerAgent Layer = "agent"
	// LayerRelation owns the synthesis of agent and arena into an emergent identity.
	LayerRelation Layer = "relation"
)

// Scheme returns the URI scheme prefix for the layer, e.g. "arena://".
func (l Layer) Scheme() string { return string(l) + "://" }

// CoreIdentity is the Agent membrane's persistent sense of self.
type CoreIdentity struct {
	Name       string    `json:"name"`
	Essence    string    `json:"essence"`
	CoreValues []string  `json:"core_values"`
	Origin     time.Time `json:"origin"`
}

// Facet is one character aspect with a current activation level in [0,1].
// The facet with the highest activation is the dominant facet.
type Facet struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Activation  float64 `json:"activation"`
}

// CharacterFacets maps facet name to facet.
type CharacterFacets map[string]Facet

// SocialMemoryEntry records the agent's accumulated impression of another entity.
type SocialMemoryEntry struct {
	EntityID        string    `json:"entity_id"`
	Name            string    `json:"name"`
	Trust           float64   `json:"trust"`
	Familiarity     float64   `json:"familiarity"`
	LastInteraction time.Time `json:"last_interaction"`
	Notes           []string  `json:"notes,omitempty"`
}

// SocialMemoryPatch updates the impression of an entity. Nil fields preserve
// the existing values, so an explicit zero (full distrust) still applies;
// Notes append to the entry's history.
type SocialMemoryPatch struct {
	Name        *string
	Trust       *float64
	Familiarity *float64
	Notes       []string
}

// Transaction is one entry of the agent's transactional memory: a discrete
// experience, participation or evolution step.
type Transaction struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "evolve", "participate", "facet"
	Summary   string    `json:"summary"`
	Impact    float64   `json:"impact"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentState is a point-in-time snapshot of the Agent membrane.
type AgentState struct {
	Identity      CoreIdentity                 `json:"identity"`
	Facets        CharacterFacets              `json:"facets"`
	DominantFacet string                       `json:"dominant_facet"`
	Social        map[string]SocialMemoryEntry `json:"social"`
	Transactions  []Transaction                `json:"transactions"`
	Engagement    float64                      `json:"engagement"`
}

// SessionFrame is one narrative container inside the Arena; frames form a
// fork tree via ParentID.
type SessionFrame struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parent_id,omitempty"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}

// LoreEntry is one piece of accumulated world knowledge.
type LoreEntry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Weight    float64   `json:"weight"` // [0,1]
	CreatedAt time.Time `json:"created_at"`
}

// ArenaState is a point-in-time snapshot of the Arena membrane. Phases maps
// narrative phase name to intensity; CurrentPhase is the dominant one.
type ArenaState struct {
	Phases       map[string]float64      `json:"phases"`
	CurrentPhase string                  `json:"current_phase"`
	Frames       map[string]SessionFrame `json:"frames"`
	Lore         []LoreEntry             `json:"lore"`
}

// FlowDirection classifies the direction of a cognitive flow between the
// agent and its arena.
type FlowDirection string

const (
	// FlowAgentToArena is an outward flow: the agent acting on its world.
	FlowAgentToArena FlowDirection = "agent->arena"
	// FlowArenaToAgent is an inward flow: the world impressing on the agent.
	FlowArenaToAgent FlowDirection = "arena->agent"
	// FlowBidirectional is a balanced exchange.
	FlowBidirectional FlowDirection = "bidirectional"
)

// Valid reports whether d is a recognized flow direction.
func (d FlowDirection) Valid() bool {
	switch d {
	case FlowAgentToArena, FlowArenaToAgent, FlowBidirectional:
		return true
	}
	return false
}

// CreativeTension is a paired-pole balance within the emergent identity.
// Balance in [0,1]: 0 fully pole1, 1 fully pole2, 0.5 equilibrium.
type CreativeTension struct {
	Pole1   string  `json:"pole1"`
	Pole2   string  `json:"pole2"`
	Balance float64 `json:"balance"`
}

// EmergentIdentity summarizes how well agent and arena synthesize into a
// consistent whole. Coherence is always freshly derived, never cached.
type EmergentIdentity struct {
	Coherence        float64           `json:"coherence"`
	ActiveThemes     []string          `json:"active_themes"`
	CreativeTensions []CreativeTension `json:"creative_tensions"`
	DominantFlow     FlowDirection     `json:"dominant_flow"`
	SynthesizedAt    time.Time         `json:"synthesized_at"`
}

// SelfReflection is the Relation membrane's first-person account of the
// synthesis, merged into the virtual agent model each Reflection phase.
type SelfReflection struct {
	SelfNarrative   string   `json:"self_narrative"`
	PerceivedRole   string   `json:"perceived_role"`
	ActiveQuestions []string `json:"active_questions"`
}

// RelationState is a point-in-time snapshot of the Relation membrane.
type RelationState struct {
	Identity       EmergentIdentity `json:"identity"`
	Reflection     SelfReflection   `json:"reflection"`
	SynthesisCount int              `json:"synthesis_count"`
}

// AgentMembrane owns the agent's actual state. All accessors return
// snapshots; mutation happens only through the named methods.
type AgentMembrane interface {
	// State returns a deep-copied snapshot of the full agent state.
	State() AgentState
	// Identity returns the core identity.
	Identity() CoreIdentity
	// SocialMemory returns the impression of one entity, if known.
	SocialMemory(entityID string) (SocialMemoryEntry, bool)
	// ActivateFacet raises the named facet's activation to at least level.
	ActivateFacet(name string, level float64) error
	// Evolve integrates an experience with the given impact, shifting facets.
	Evolve(experience string, impact float64) error
	// Participate records an engagement action at the given intensity.
	Participate(action string, intensity float64) error
	// UpdateSocialMemory merges an impression of an entity.
	UpdateSocialMemory(entityID string, patch SocialMemoryPatch) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ArenaMembrane owns the world's actual state.
type ArenaMembrane interface {
	// State returns a deep-copied snapshot of the full arena state.
	State() ArenaState
	// CreateFrame opens a new root session frame in the given phase.
	CreateFrame(name, phase string) (SessionFrame, error)
	// ForkFrame branches an existing frame, inheriting its phase.
	ForkFrame(parentID, name string) (SessionFrame, error)
	// TransitionPhase reinforces the named narrative phase by intensity and
	// renormalizes the distribution.
	TransitionPhase(phase string, intensity float64) error
	// AddLore appends a lore entry, assigning ID and timestamp.
	AddLore(entry LoreEntry) (LoreEntry, error)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RelationMembrane owns the synthesis of agent and arena.
type RelationMembrane interface {
	// State returns a deep-copied snapshot of the relation state.
	State() RelationState
	// SelfReflection returns the current first-person reflection.
	SelfReflection() SelfReflection
	// EmergentIdentity returns the current synthesis summary.
	EmergentIdentity() EmergentIdentity
	// Synthesize recomputes the emergent identity from fresh snapshots.
	Synthesize(agent AgentState, arena ArenaState) EmergentIdentity
	// Coherence returns the current coherence scalar, derived live from the
	// last synthesis rather than stored independently.
	Coherence() float64

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
