// Package lifecycle drives the five-phase developmental cycle over the three
// layer servers: perception, modeling, reflection, mirroring, enaction. One
// pass through all five phases is one cycle. The coordinator is the single
// writer of the virtual models during a cycle; external tool calls interleave
// between phases through the servers' own locking.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/layer"
	"github.com/hupe1980/echomesh/logging"
)

const (
	// DefaultInterval is the automatic cycling period when none is configured.
	DefaultInterval = 30 * time.Second
	// DefaultCoherenceThreshold is the level below which coherence:low fires.
	DefaultCoherenceThreshold = 0.3
	// EnactionIntensity is the fixed reinforcement the enaction phase feeds
	// back into the arena's phase distribution.
	EnactionIntensity = 0.05
)

// Options configures a Coordinator.
type Options struct {
	// Interval between automatic cycles; defaults to DefaultInterval.
	Interval time.Duration
	// CoherenceThreshold below which coherence:low is emitted after a phase.
	CoherenceThreshold float64
	// Emitter receives phase and cycle notifications; defaults to a fresh one.
	Emitter *core.Emitter
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Coordinator executes developmental cycles across the agent, arena and
// relation servers. Cycles never overlap: RunCycle holds a mutex for the
// whole pass, and the automatic ticker skips a tick when the previous cycle
// is still running.
type Coordinator struct {
	agent    *layer.AgentServer
	arena    *layer.ArenaServer
	relation *layer.RelationServer

	interval  time.Duration
	threshold float64
	emitter   *core.Emitter
	logger    logging.Logger

	cycleMu     sync.Mutex
	cycleNumber int

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	inCycle sync.Mutex
}

// NewCoordinator constructs a coordinator over the three layer servers.
func NewCoordinator(agent *layer.AgentServer, arena *layer.ArenaServer, relation *layer.RelationServer, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Interval:           DefaultInterval,
		CoherenceThreshold: DefaultCoherenceThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Emitter == nil {
		opts.Emitter = core.NewEmitter()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Coordinator{
		agent:     agent,
		arena:     arena,
		relation:  relation,
		interval:  opts.Interval,
		threshold: opts.CoherenceThreshold,
		emitter:   opts.Emitter,
		logger:    opts.Logger,
	}
}

// Emitter exposes the coordinator's emitter for observer registration.
func (c *Coordinator) Emitter() *core.Emitter { return c.emitter }

// CycleNumber returns the number of the most recently started cycle.
func (c *Coordinator) CycleNumber() int {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	return c.cycleNumber
}

// RunCycle executes one full developmental cycle: all five phases in fixed
// order. The cycle number is claimed up front, so an aborted cycle still
// consumes one. A phase error aborts the remaining phases; the results of the
// completed phases are returned alongside the wrapped error, and their side
// effects stand.
func (c *Coordinator) RunCycle(ctx context.Context) ([]core.DevelopmentalCycleResult, error) {
	c.inCycle.Lock()
	defer c.inCycle.Unlock()

	return c.runCycleLocked(ctx)
}

func (c *Coordinator) runCycleLocked(ctx context.Context) ([]core.DevelopmentalCycleResult, error) {
	c.cycleMu.Lock()
	c.cycleNumber++
	cycle := c.cycleNumber
	c.cycleMu.Unlock()

	start := time.Now()
	logger := c.logger
	if rich, ok := logger.(*logging.EchoMeshLogger); ok {
		logger = rich.WithCycle(cycle)
	}

	results := make([]core.DevelopmentalCycleResult, 0, len(core.Phases()))
	for _, phase := range core.Phases() {
		result, err := c.executePhase(ctx, cycle, phase)
		if err != nil {
			aborted := core.NewCycleAborted(phase, err)
			c.emitter.Emit(core.TopicCycleError, map[string]any{
				"cycle": cycle,
				"phase": phase,
				"error": err.Error(),
			})
			if pl, ok := logger.(logging.PhaseLogger); ok {
				pl.LogCycle(cycle, 0, time.Since(start), false, aborted)
			} else {
				logger.Error("cycle.aborted", "cycle", cycle, "phase", phase, "error", err.Error())
			}
			return results, aborted
		}
		results = append(results, result)
	}

	coherence := results[len(results)-1].CoherenceAfter
	c.emitter.Emit(core.TopicCycleComplete, map[string]any{
		"cycle":     cycle,
		"coherence": coherence,
		"results":   results,
	})
	if pl, ok := logger.(logging.PhaseLogger); ok {
		pl.LogCycle(cycle, coherence, time.Since(start), true, nil)
	} else {
		logger.Info("cycle.complete",
			"cycle", cycle,
			"coherence", coherence,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return results, nil
}

// ExecutePhase runs a single named phase outside a full cycle, using the
// current cycle number without claiming a new one.
func (c *Coordinator) ExecutePhase(ctx context.Context, phase core.Phase) (core.DevelopmentalCycleResult, error) {
	c.inCycle.Lock()
	defer c.inCycle.Unlock()

	c.cycleMu.Lock()
	cycle := c.cycleNumber
	c.cycleMu.Unlock()

	return c.executePhase(ctx, cycle, phase)
}

func (c *Coordinator) executePhase(ctx context.Context, cycle int, phase core.Phase) (core.DevelopmentalCycleResult, error) {
	if err := ctx.Err(); err != nil {
		return core.DevelopmentalCycleResult{}, err
	}

	start := time.Now()
	var (
		delta core.PhaseDelta
		err   error
	)
	switch phase {
	case core.PhasePerception:
		delta, err = c.perception()
	case core.PhaseModeling:
		delta, err = c.modeling()
	case core.PhaseReflection:
		delta, err = c.reflection()
	case core.PhaseMirroring:
		delta, err = c.mirroring()
	case core.PhaseEnaction:
		delta, err = c.enaction()
	default:
		err = core.NewInvalidArgument("lifecycle.executePhase", "phase", "unknown phase %q", phase)
	}
	if err != nil {
		if pl, ok := c.logger.(logging.PhaseLogger); ok {
			pl.LogPhaseExecution(string(phase), 0, time.Since(start), false, err)
		}
		return core.DevelopmentalCycleResult{}, err
	}

	// Coherence is sampled freshly after every phase, never carried over.
	coherence := c.relation.Coherence()
	if pl, ok := c.logger.(logging.PhaseLogger); ok {
		pl.LogPhaseExecution(string(phase), coherence, time.Since(start), true, nil)
	}
	result := core.DevelopmentalCycleResult{
		CycleNumber:    cycle,
		Phase:          phase,
		StateChanges:   delta,
		CoherenceAfter: coherence,
		Timestamp:      time.Now().UTC(),
	}

	c.emitter.Emit(core.TopicPhaseComplete, result)
	if coherence < c.threshold {
		c.emitter.Emit(core.TopicCoherenceLow, map[string]any{
			"cycle":     cycle,
			"phase":     phase,
			"coherence": coherence,
			"threshold": c.threshold,
		})
		c.logger.Warn("coherence.low", "cycle", cycle, "phase", phase, "coherence", coherence)
	}
	return result, nil
}

// perception reads the arena's dominant narrative phase. Observation only:
// agent engagement moves through the agent's own participatory actions, not
// here.
func (c *Coordinator) perception() (core.PhaseDelta, error) {
	st := c.arena.Membrane().State()
	return core.PerceptionDelta{
		ObservedPhase: st.CurrentPhase,
		Intensity:     st.Phases[st.CurrentPhase],
	}, nil
}

// modeling re-synthesizes the emergent identity from fresh snapshots. The
// only phase that refreshes the synthesis.
func (c *Coordinator) modeling() (core.PhaseDelta, error) {
	identity := c.relation.Synthesize()
	return core.ModelingDelta{
		Coherence:    identity.Coherence,
		ActiveThemes: identity.ActiveThemes,
		TensionCount: len(identity.CreativeTensions),
	}, nil
}

// reflection merges the relation's self-reflection into the virtual
// self-model and stamps the reflection time.
func (c *Coordinator) reflection() (core.PhaseDelta, error) {
	reflection := c.relation.Membrane().SelfReflection()

	questions := append([]string(nil), reflection.ActiveQuestions...)
	awareness := core.SelfAwareness{
		ActiveQuestions: questions,
		LastReflection:  time.Now().UTC(),
	}
	c.agent.WithVirtual(func(vi *core.VirtualAgentModel) {
		awareness.Level = vi.SelfAwareness.Level
	})

	patch := core.VirtualAgentPatch{
		SelfStory:         &reflection.SelfNarrative,
		RoleUnderstanding: &reflection.PerceivedRole,
		SelfAwareness:     &awareness,
	}
	c.agent.UpdateVirtualAgent(patch)

	return core.ReflectionDelta{
		SelfNarrative: reflection.SelfNarrative,
		PerceivedRole: reflection.PerceivedRole,
		QuestionCount: len(questions),
	}, nil
}

// mirroring assigns the virtual world-model's coherence estimate from the
// relation's current coherence and rebuilds the divergence metrics in full:
// drift is 1 - coherence, with one misalignment string per active tension.
// The inner model's coherence is set from the outer synthesis, never computed
// independently.
func (c *Coordinator) mirroring() (core.PhaseDelta, error) {
	identity := c.relation.Synthesize()

	misalignments := make([]string, 0, len(identity.CreativeTensions))
	for _, t := range identity.CreativeTensions {
		misalignments = append(misalignments, fmt.Sprintf("%s vs %s", t.Pole1, t.Pole2))
	}

	metrics := core.DivergenceMetrics{
		EstimatedDrift:     1 - identity.Coherence,
		KnownMisalignments: misalignments,
		LastSyncTime:       time.Now().UTC(),
	}
	c.agent.SetEstimatedCoherence(identity.Coherence)
	c.agent.MarkSynced(metrics)

	return core.MirroringDelta{
		EstimatedDrift: metrics.EstimatedDrift,
		Misalignments:  misalignments,
	}, nil
}

// enaction feeds the virtual world-model's assumed narrative phase back into
// the arena at a small fixed intensity. A deliberate self-fulfilling feedback
// loop: what the agent believes the world is doing, the world is nudged
// toward.
func (c *Coordinator) enaction() (core.PhaseDelta, error) {
	var assumed string
	c.agent.WithVirtual(func(vi *core.VirtualAgentModel) {
		assumed = vi.WorldView.SituationalAwareness.AssumedNarrativePhase
	})
	if assumed == "" {
		assumed = c.arena.Membrane().State().CurrentPhase
	}

	if err := c.arena.Membrane().TransitionPhase(assumed, EnactionIntensity); err != nil {
		return nil, err
	}
	return core.EnactionDelta{
		ReinforcedPhase: assumed,
		Intensity:       EnactionIntensity,
	}, nil
}

// Start launches interval-driven automatic cycling. Idempotent: a second
// Start while running is a no-op. Ticks are single-flight: if a cycle is
// still running when the next tick fires, that tick is skipped rather than
// interleaved.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.logger.Info("lifecycle.start", "interval", c.interval.String())

	go c.loop(runCtx)
	return nil
}

// Stop halts automatic cycling and waits for an in-flight cycle to finish.
// Idempotent: stopping a stopped coordinator is a no-op.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	c.runMu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.logger.Info("lifecycle.stop")
	return nil
}

func (c *Coordinator) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Single-flight: a tick that lands while a cycle is still
			// running (automatic or caller-driven) is dropped, not queued.
			if !c.inCycle.TryLock() {
				c.logger.Debug("lifecycle.tick.skipped")
				continue
			}
			if _, err := c.runCycleLocked(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("lifecycle.cycle.failed", "error", err.Error())
			}
			c.inCycle.Unlock()
		}
	}
}
