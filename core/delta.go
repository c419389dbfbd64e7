package core

import "time"

// Phase identifies one step of the fixed five-phase developmental cycle.
type Phase string

const (
	// PhasePerception reads the arena into the agent (Ao -> Ai).
	PhasePerception Phase = "perception"
	// PhaseModeling re-synthesizes the emergent identity (Ai -> S).
	PhaseModeling Phase = "modeling"
	// PhaseReflection merges the self-reflection into Vi (S -> Vi).
	PhaseReflection Phase = "reflection"
	// PhaseMirroring aligns Vo with the synthesis (Vi <-> Vo).
	PhaseMirroring Phase = "mirroring"
	// PhaseEnaction feeds the assumed phase back into the arena (Vo -> Ao).
	PhaseEnaction Phase = "enaction"
)

// Phases returns the fixed execution order of one developmental cycle.
func Phases() [5]Phase {
	return [5]Phase{PhasePerception, PhaseModeling, PhaseReflection, PhaseMirroring, PhaseEnaction}
}

// PhaseDelta is the typed state-change record produced by one phase. Concrete
// delta types implement the unexported marker, forming a closed set; consumers
// switch on the concrete type.
type PhaseDelta interface{ isPhaseDelta() }

// PerceptionDelta records what the perception phase observed. Perception is
// observational only: actual agent engagement is updated by the agent's own
// participatory actions, not by the coordinator.
type PerceptionDelta struct {
	ObservedPhase string  `json:"observed_phase"`
	Intensity     float64 `json:"intensity"`
}

func (PerceptionDelta) isPhaseDelta() {}

// ModelingDelta records the outcome of the re-synthesis.
type ModelingDelta struct {
	Coherence    float64  `json:"coherence"`
	ActiveThemes []string `json:"active_themes"`
	TensionCount int      `json:"tension_count"`
}

func (ModelingDelta) isPhaseDelta() {}

// ReflectionDelta records what was merged into the virtual agent model.
type ReflectionDelta struct {
	SelfNarrative string `json:"self_narrative"`
	PerceivedRole string `json:"perceived_role"`
	QuestionCount int    `json:"question_count"`
}

func (ReflectionDelta) isPhaseDelta() {}

// MirroringDelta records the rebuilt divergence metrics of the virtual
// world-model.
type MirroringDelta struct {
	EstimatedDrift float64  `json:"estimated_drift"`
	Misalignments  []string `json:"misalignments"`
}

func (MirroringDelta) isPhaseDelta() {}

// EnactionDelta records the self-fulfilling feedback written into the arena.
type EnactionDelta struct {
	ReinforcedPhase string  `json:"reinforced_phase"`
	Intensity       float64 `json:"intensity"`
}

func (EnactionDelta) isPhaseDelta() {}

// DevelopmentalCycleResult is the record produced by each phase of a cycle.
// CoherenceAfter is sampled freshly after the phase completes, never carried
// over from a previous phase.
type DevelopmentalCycleResult struct {
	CycleNumber    int        `json:"cycle_number"`
	Phase          Phase      `json:"phase"`
	StateChanges   PhaseDelta `json:"state_changes"`
	CoherenceAfter float64    `json:"coherence_after"`
	Timestamp      time.Time  `json:"timestamp"`
}
