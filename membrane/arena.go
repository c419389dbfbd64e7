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

// ArenaOptions configures an in-memory arena membrane.
type ArenaOptions struct {
	// Phases seeds the narrative phase intensities. Nil installs the default
	// five-phase distribution.
	Phases map[string]float64
}

// Arena is a volatile ArenaMembrane implementation. Narrative phase
// intensities always sum to 1; the dominant phase is the current phase.
type Arena struct {
	mu      sync.RWMutex
	running bool

	phases map[string]float64
	frames map[string]core.SessionFrame
	lore   []core.LoreEntry
}

var _ core.ArenaMembrane = (*Arena)(nil)

// NewArena constructs an arena membrane with optional overrides.
func NewArena(optFns ...func(o *ArenaOptions)) *Arena {
	opts := ArenaOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	phases := opts.Phases
	if phases == nil {
		phases = map[string]float64{
			"emergence":      0.4,
			"exploration":    0.25,
			"consolidation":  0.15,
			"transformation": 0.1,
			"return":         0.1,
		}
	}
	normalize(phases)

	return &Arena{
		phases: phases,
		frames: make(map[string]core.SessionFrame),
	}
}

// State returns a deep-copied snapshot of the full arena state.
func (a *Arena) State() core.ArenaState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	lore := make([]core.LoreEntry, len(a.lore))
	for i, entry := range a.lore {
		entry.Tags = slices.Clone(entry.Tags)
		lore[i] = entry
	}

	return core.ArenaState{
		Phases:       maps.Clone(a.phases),
		CurrentPhase: a.dominantLocked(),
		Frames:       maps.Clone(a.frames),
		Lore:         lore,
	}
}

func (a *Arena) dominantLocked() string {
	var dominant string
	best := -1.0
	for _, name := range slices.Sorted(maps.Keys(a.phases)) {
		if v := a.phases[name]; v > best {
			best = v
			dominant = name
		}
	}
	return dominant
}

// CreateFrame opens a new root session frame. An empty phase inherits the
// current dominant phase.
func (a *Arena) CreateFrame(name, phase string) (core.SessionFrame, error) {
	if name == "" {
		return core.SessionFrame{}, errors.New("frame name must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if phase == "" {
		phase = a.dominantLocked()
	}
	frame := core.SessionFrame{
		ID:        uuid.NewString(),
		Name:      name,
		Phase:     phase,
		CreatedAt: time.Now().UTC(),
	}
	a.frames[frame.ID] = frame
	return frame, nil
}

// ForkFrame branches an existing frame, inheriting its phase.
func (a *Arena) ForkFrame(parentID, name string) (core.SessionFrame, error) {
	if name == "" {
		return core.SessionFrame{}, errors.New("frame name must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	parent, ok := a.frames[parentID]
	if !ok {
		return core.SessionFrame{}, fmt.Errorf("unknown parent frame %q", parentID)
	}
	frame := core.SessionFrame{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  parent.ID,
		Phase:     parent.Phase,
		CreatedAt: time.Now().UTC(),
	}
	a.frames[frame.ID] = frame
	return frame, nil
}

// TransitionPhase reinforces the named narrative phase by intensity and
// renormalizes the distribution. Previously unseen phases join the
// distribution; the arena's vocabulary of phases is open.
func (a *Arena) TransitionPhase(phase string, intensity float64) error {
	if phase == "" {
		return errors.New("phase must not be empty")
	}
	if intensity <= 0 {
		return fmt.Errorf("intensity must be positive, got %v", intensity)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.phases[phase] += intensity
	normalize(a.phases)
	return nil
}

// AddLore appends a lore entry, assigning ID and timestamp. Weight is
// clamped to [0,1]; nil tags become an empty slice.
func (a *Arena) AddLore(entry core.LoreEntry) (core.LoreEntry, error) {
	if entry.Category == "" {
		return core.LoreEntry{}, errors.New("lore category must not be empty")
	}
	if entry.Content == "" {
		return core.LoreEntry{}, errors.New("lore content must not be empty")
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	entry.Weight = clamp01(entry.Weight)
	if entry.Tags == nil {
		entry.Tags = []string{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lore = append(a.lore, entry)
	return entry, nil
}

// Start marks the membrane running.
func (a *Arena) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return errors.New("arena membrane is already running")
	}
	a.running = true
	return nil
}

// Stop marks the membrane stopped. Stopping a stopped membrane is a no-op.
func (a *Arena) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

func normalize(phases map[string]float64) {
	var sum float64
	for _, v := range phases {
		sum += v
	}
	if sum <= 0 {
		return
	}
	for k, v := range phases {
		phases[k] = v / sum
	}
}
