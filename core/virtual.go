package core

import (
	"maps"
	"slices"
	"time"
)

// SelfImage is the agent's perception of its own character.
type SelfImage struct {
	Description            string  `json:"description"`
	PerceivedDominantFacet string  `json:"perceived_dominant_facet"`
	Confidence             float64 `json:"confidence"`
}

// SelfAwareness tracks the meta-level of the virtual self-model.
type SelfAwareness struct {
	Level           float64   `json:"level"`
	ActiveQuestions []string  `json:"active_questions"`
	LastReflection  time.Time `json:"last_reflection"`
}

// EntityImpression is the virtual world-model's belief about another entity.
type EntityImpression struct {
	Name        string    `json:"name"`
	Disposition string    `json:"disposition"`
	Trust       float64   `json:"trust"`
	LastSeen    time.Time `json:"last_seen"`
}

// SituationalAwareness is the virtual world-model's reading of the current
// situation. EstimatedCoherence is assigned from the Relation synthesis every
// Mirroring phase, never computed independently.
type SituationalAwareness struct {
	PerceivedContext      string  `json:"perceived_context"`
	AssumedNarrativePhase string  `json:"assumed_narrative_phase"`
	EstimatedCoherence    float64 `json:"estimated_coherence"`
}

// DivergenceMetrics estimates the gap between the virtual world-model and the
// actual synthesis. Rebuilt in full (never incrementally) every Mirroring
// phase: EstimatedDrift = 1 - coherence, bounded to [0,1].
type DivergenceMetrics struct {
	EstimatedDrift     float64   `json:"estimated_drift"`
	KnownMisalignments []string  `json:"known_misalignments"`
	LastSyncTime       time.Time `json:"last_sync_time"`
}

// VirtualArenaModel (Vo) is the agent's inner model of its world. It nests
// inside the VirtualAgentModel, inverting the real containment direction
// (the Arena contains the Agent; the self-model contains a world-model).
type VirtualArenaModel struct {
	SituationalAwareness SituationalAwareness        `json:"situational_awareness"`
	KnownEntities        map[string]EntityImpression `json:"known_entities"`
	PerceivedRules       []string                    `json:"perceived_rules"`
	WorldTheory          string                      `json:"world_theory"`
	Uncertainties        []string                    `json:"uncertainties"`
	DivergenceMetrics    DivergenceMetrics           `json:"divergence_metrics"`
}

// VirtualAgentModel (Vi) is the agent's inner model of itself. WorldView is
// the one owned reference to the tracked VirtualArenaModel: it is never
// copied, so mutations through either handle are observable through both.
type VirtualAgentModel struct {
	SelfImage             SelfImage          `json:"self_image"`
	SelfStory             string             `json:"self_story"`
	PerceivedCapabilities []string           `json:"perceived_capabilities"`
	RoleUnderstanding     string             `json:"role_understanding"`
	CurrentGoals          []string           `json:"current_goals"`
	SelfAwareness         SelfAwareness      `json:"self_awareness"`
	WorldView             *VirtualArenaModel `json:"world_view"`
}

// NewVirtualArenaModel returns a Vo with conservative defaults: an unknown
// context, zero assumed coherence and full estimated drift.
func NewVirtualArenaModel() *VirtualArenaModel {
	return &VirtualArenaModel{
		SituationalAwareness: SituationalAwareness{
			PerceivedContext:      "unobserved",
			AssumedNarrativePhase: "emergence",
		},
		KnownEntities:  make(map[string]EntityImpression),
		PerceivedRules: []string{},
		WorldTheory:    "the arena is larger than what has been observed of it",
		Uncertainties:  []string{"extent of the arena", "intentions of other entities"},
		DivergenceMetrics: DivergenceMetrics{
			EstimatedDrift:     1,
			KnownMisalignments: []string{},
		},
	}
}

// NewVirtualAgentModel returns a Vi nesting the given world-model. The
// world pointer is adopted as-is to preserve the single-owner aliasing
// contract.
func NewVirtualAgentModel(world *VirtualArenaModel) *VirtualAgentModel {
	return &VirtualAgentModel{
		SelfImage: SelfImage{
			Description: "an agent becoming aware of itself",
			Confidence:  0.5,
		},
		SelfStory:             "I have just come into being; my story is unwritten.",
		PerceivedCapabilities: []string{"observe", "reflect", "participate"},
		RoleUnderstanding:     "undetermined",
		CurrentGoals:          []string{"understand the arena", "establish coherence"},
		SelfAwareness: SelfAwareness{
			Level:           0.5,
			ActiveQuestions: []string{"who am I?", "what is this place?"},
		},
		WorldView: world,
	}
}

// VirtualAgentPatch is a shallow-merge update to a VirtualAgentModel. A nil
// field leaves the corresponding model field untouched; a set field replaces
// it wholesale. WorldView is deliberately absent: the nested world-model is
// patched through VirtualArenaPatch and must never be re-pointed.
type VirtualAgentPatch struct {
	SelfDescription        *string        `json:"self_description,omitempty"`
	SelfConfidence         *float64       `json:"self_confidence,omitempty"`
	PerceivedDominantFacet *string        `json:"perceived_dominant_facet,omitempty"`
	SelfStory              *string        `json:"self_story,omitempty"`
	PerceivedCapabilities  *[]string      `json:"perceived_capabilities,omitempty"`
	RoleUnderstanding      *string        `json:"role_understanding,omitempty"`
	CurrentGoals           *[]string      `json:"current_goals,omitempty"`
	SelfAwareness          *SelfAwareness `json:"self_awareness,omitempty"`
}

// Apply merges the patch into the model, field by field.
func (m *VirtualAgentModel) Apply(p VirtualAgentPatch) {
	if p.SelfDescription != nil {
		m.SelfImage.Description = *p.SelfDescription
	}
	if p.SelfConfidence != nil {
		m.SelfImage.Confidence = *p.SelfConfidence
	}
	if p.PerceivedDominantFacet != nil {
		m.SelfImage.PerceivedDominantFacet = *p.PerceivedDominantFacet
	}
	if p.SelfStory != nil {
		m.SelfStory = *p.SelfStory
	}
	if p.PerceivedCapabilities != nil {
		m.PerceivedCapabilities = slices.Clone(*p.PerceivedCapabilities)
	}
	if p.RoleUnderstanding != nil {
		m.RoleUnderstanding = *p.RoleUnderstanding
	}
	if p.CurrentGoals != nil {
		m.CurrentGoals = slices.Clone(*p.CurrentGoals)
	}
	if p.SelfAwareness != nil {
		m.SelfAwareness = *p.SelfAwareness
	}
}

// VirtualArenaPatch is a shallow-merge update to a VirtualArenaModel.
// KnownEntities entries are merged by key rather than replacing the map.
// DivergenceMetrics and EstimatedCoherence are absent: both are owned by the
// Mirroring phase, which rebuilds them wholesale every cycle.
type VirtualArenaPatch struct {
	PerceivedContext      *string                     `json:"perceived_context,omitempty"`
	AssumedNarrativePhase *string                     `json:"assumed_narrative_phase,omitempty"`
	KnownEntities         map[string]EntityImpression `json:"known_entities,omitempty"`
	PerceivedRules        *[]string                   `json:"perceived_rules,omitempty"`
	WorldTheory           *string                     `json:"world_theory,omitempty"`
	Uncertainties         *[]string                   `json:"uncertainties,omitempty"`
}

// Apply merges the patch into the model, field by field.
func (m *VirtualArenaModel) Apply(p VirtualArenaPatch) {
	if p.PerceivedContext != nil {
		m.SituationalAwareness.PerceivedContext = *p.PerceivedContext
	}
	if p.AssumedNarrativePhase != nil {
		m.SituationalAwareness.AssumedNarrativePhase = *p.AssumedNarrativePhase
	}
	if len(p.KnownEntities) > 0 {
		if m.KnownEntities == nil {
			m.KnownEntities = make(map[string]EntityImpression, len(p.KnownEntities))
		}
		maps.Copy(m.KnownEntities, p.KnownEntities)
	}
	if p.PerceivedRules != nil {
		m.PerceivedRules = slices.Clone(*p.PerceivedRules)
	}
	if p.WorldTheory != nil {
		m.WorldTheory = *p.WorldTheory
	}
	if p.Uncertainties != nil {
		m.Uncertainties = slices.Clone(*p.Uncertainties)
	}
}

// Clone returns a deep copy of the world-model, detached from the original.
// Used for snapshot export; never used on the tracked Vo itself.
func (m *VirtualArenaModel) Clone() *VirtualArenaModel {
	c := *m
	c.KnownEntities = maps.Clone(m.KnownEntities)
	c.PerceivedRules = slices.Clone(m.PerceivedRules)
	c.Uncertainties = slices.Clone(m.Uncertainties)
	c.DivergenceMetrics.KnownMisalignments = slices.Clone(m.DivergenceMetrics.KnownMisalignments)
	return &c
}

// CopyFrom overwrites the model's contents in place from src without changing
// the model's own address, preserving any aliases held elsewhere.
func (m *VirtualArenaModel) CopyFrom(src *VirtualArenaModel) {
	*m = *src.Clone()
}

// Clone returns a deep copy of the self-model. The nested world-model is
// cloned too: the copy does NOT alias the tracked Vo. Used for snapshot
// export only.
func (m *VirtualAgentModel) Clone() *VirtualAgentModel {
	c := *m
	c.PerceivedCapabilities = slices.Clone(m.PerceivedCapabilities)
	c.CurrentGoals = slices.Clone(m.CurrentGoals)
	c.SelfAwareness.ActiveQuestions = slices.Clone(m.SelfAwareness.ActiveQuestions)
	if m.WorldView != nil {
		c.WorldView = m.WorldView.Clone()
	}
	return &c
}

// CopyFrom overwrites the self-model's scalar and slice fields from src while
// leaving WorldView pointing at the already-tracked world-model. The nested
// contents of src.WorldView, if present, are copied into the existing target.
func (m *VirtualAgentModel) CopyFrom(src *VirtualAgentModel) {
	world := m.WorldView
	clone := src.Clone()
	clone.WorldView = nil
	*m = *clone
	m.WorldView = world
	if world != nil && src.WorldView != nil {
		world.CopyFrom(src.WorldView)
	}
}
