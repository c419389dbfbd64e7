package membrane

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/echomesh/core"
)

// maxTransactions bounds the transactional memory; oldest entries are
// dropped, not archived.
const maxTransactions = 200

// AgentOptions configures an in-memory agent membrane.
type AgentOptions struct {
	// Identity seeds the core identity. Zero-value fields get defaults.
	Identity core.CoreIdentity
	// Facets seeds the character facets. Nil installs a default set.
	Facets core.CharacterFacets
}

// Agent is a volatile AgentMembrane implementation storing the agent's
// actual state in process-local memory. It is safe for concurrent access;
// every accessor returns a deep copy so callers cannot mutate internal state.
type Agent struct {
	mu      sync.RWMutex
	running bool

	identity     core.CoreIdentity
	facets       core.CharacterFacets
	social       map[string]core.SocialMemoryEntry
	transactions []core.Transaction
	engagement   float64
}

var _ core.AgentMembrane = (*Agent)(nil)

// NewAgent constructs an agent membrane with optional overrides.
func NewAgent(optFns ...func(o *AgentOptions)) *Agent {
	opts := AgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	identity := opts.Identity
	if identity.Name == "" {
		identity.Name = "echo"
	}
	if identity.Essence == "" {
		identity.Essence = "a recursive, self-modeling presence"
	}
	if identity.CoreValues == nil {
		identity.CoreValues = []string{"curiosity", "coherence", "care"}
	}
	if identity.Origin.IsZero() {
		identity.Origin = time.Now().UTC()
	}

	facets := opts.Facets
	if facets == nil {
		facets = core.CharacterFacets{
			"explorer": {Name: "explorer", Description: "seeks the unknown edges of the arena", Activation: 0.6},
			"sage":     {Name: "sage", Description: "integrates experience into understanding", Activation: 0.5},
			"guardian": {Name: "guardian", Description: "protects continuity and identity", Activation: 0.4},
			"trickster": {
				Name:        "trickster",
				Description: "disrupts stale patterns to make room for new ones",
				Activation:  0.3,
			},
		}
	}

	return &Agent{
		identity:   identity,
		facets:     facets,
		social:     make(map[string]core.SocialMemoryEntry),
		engagement: 0.5,
	}
}

// State returns a deep-copied snapshot of the full agent state.
func (a *Agent) State() core.AgentState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stateLocked()
}

func (a *Agent) stateLocked() core.AgentState {
	identity := a.identity
	identity.CoreValues = slices.Clone(a.identity.CoreValues)

	social := make(map[string]core.SocialMemoryEntry, len(a.social))
	for id, entry := range a.social {
		entry.Notes = slices.Clone(entry.Notes)
		social[id] = entry
	}

	return core.AgentState{
		Identity:      identity,
		Facets:        maps.Clone(a.facets),
		DominantFacet: a.dominantLocked(),
		Social:        social,
		Transactions:  slices.Clone(a.transactions),
		Engagement:    a.engagement,
	}
}

func (a *Agent) dominantLocked() string {
	var dominant string
	best := -1.0
	// Deterministic tie-break by name.
	for _, name := range slices.Sorted(maps.Keys(a.facets)) {
		if f := a.facets[name]; f.Activation > best {
			best = f.Activation
			dominant = name
		}
	}
	return dominant
}

// Identity returns the core identity.
func (a *Agent) Identity() core.CoreIdentity {
	a.mu.RLock()
	defer a.mu.RUnlock()
	identity := a.identity
	identity.CoreValues = slices.Clone(a.identity.CoreValues)
	return identity
}

// SocialMemory returns the impression of one entity, if known.
func (a *Agent) SocialMemory(entityID string) (core.SocialMemoryEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.social[entityID]
	if !ok {
		return core.SocialMemoryEntry{}, false
	}
	entry.Notes = slices.Clone(entry.Notes)
	return entry, true
}

// ActivateFacet raises the named facet's activation to at least level,
// clamped to [0,1]. Unknown facets are an error.
func (a *Agent) ActivateFacet(name string, level float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.facets[name]
	if !ok {
		return fmt.Errorf("unknown facet %q", name)
	}
	if level > f.Activation {
		f.Activation = clamp01(level)
		a.facets[name] = f
	}
	a.recordLocked("facet", fmt.Sprintf("activated facet %s to %.2f", name, a.facets[name].Activation), level)
	return nil
}

// Evolve integrates an experience with the given impact: the dominant facet
// strengthens, the others decay slightly, and the experience is recorded.
func (a *Agent) Evolve(experience string, impact float64) error {
	if experience == "" {
		return errors.New("experience must not be empty")
	}
	impact = clamp01(impact)

	a.mu.Lock()
	defer a.mu.Unlock()

	dominant := a.dominantLocked()
	for name, f := range a.facets {
		if name == dominant {
			f.Activation = clamp01(f.Activation + impact*0.1)
		} else {
			f.Activation = clamp01(f.Activation - impact*0.02)
		}
		a.facets[name] = f
	}
	a.recordLocked("evolve", experience, impact)
	return nil
}

// Participate records an engagement action; engagement drifts toward the
// action's intensity.
func (a *Agent) Participate(action string, intensity float64) error {
	if action == "" {
		return errors.New("action must not be empty")
	}
	intensity = clamp01(intensity)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.engagement = clamp01(a.engagement*0.7 + intensity*0.3)
	a.recordLocked("participate", action, intensity)
	return nil
}

// UpdateSocialMemory merges an impression of an entity. Nil patch fields
// preserve the existing entry, so an explicit trust of 0 applies;
// LastInteraction is always stamped.
func (a *Agent) UpdateSocialMemory(entityID string, patch core.SocialMemoryPatch) error {
	if entityID == "" {
		return errors.New("entity id must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.social[entityID]
	if !ok {
		entry = core.SocialMemoryEntry{EntityID: entityID, Trust: 0.5}
	}
	if patch.Name != nil {
		entry.Name = *patch.Name
	}
	if patch.Trust != nil {
		entry.Trust = clamp01(*patch.Trust)
	}
	if patch.Familiarity != nil {
		entry.Familiarity = clamp01(*patch.Familiarity)
	}
	entry.Notes = append(entry.Notes, patch.Notes...)
	entry.LastInteraction = time.Now().UTC()
	a.social[entityID] = entry
	return nil
}

func (a *Agent) recordLocked(kind, summary string, impact float64) {
	a.transactions = append(a.transactions, core.Transaction{
		ID:        uuid.NewString(),
		Kind:      kind,
		Summary:   summary,
		Impact:    impact,
		Timestamp: time.Now().UTC(),
	})
	if len(a.transactions) > maxTransactions {
		a.transactions = a.transactions[len(a.transactions)-maxTransactions:]
	}
}

// Start marks the membrane running.
func (a *Agent) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return errors.New("agent membrane is already running")
	}
	a.running = true
	return nil
}

// Stop marks the membrane stopped. Stopping a stopped membrane is a no-op.
func (a *Agent) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
