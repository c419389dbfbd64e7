package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/internal/testutil"
	"github.com/hupe1980/echomesh/layer"
	"github.com/hupe1980/echomesh/logging"
	"github.com/hupe1980/echomesh/membrane"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	agent       *layer.AgentServer
	arena       *layer.ArenaServer
	relation    *layer.RelationServer
	coordinator *Coordinator
	emitter     *core.Emitter
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()

	agentMembrane := testutil.NewAgentMembrane()
	arenaMembrane := testutil.NewArenaMembrane()
	emitter := core.NewEmitter()

	agent := layer.NewAgentServer(agentMembrane, func(o *layer.AgentOptions) { o.Emitter = emitter })
	arena := layer.NewArenaServer(arenaMembrane, func(o *layer.ArenaOptions) { o.Emitter = emitter })
	relation := layer.NewRelationServer(membrane.NewRelation(), agentMembrane, arenaMembrane, func(o *layer.RelationOptions) { o.Emitter = emitter })

	base := func(o *Options) { o.Emitter = emitter }
	coordinator := NewCoordinator(agent, arena, relation, append([]func(o *Options){base}, optFns...)...)

	return &fixture{agent: agent, arena: arena, relation: relation, coordinator: coordinator, emitter: emitter}
}

func TestRunCycleOrdering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	results, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, results, 5)

	want := core.Phases()
	for i, result := range results {
		assert.Equal(t, want[i], result.Phase)
		assert.Equal(t, 1, result.CycleNumber)
		assert.NotNil(t, result.StateChanges)
	}

	second, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second[0].CycleNumber)
	assert.Equal(t, 2, f.coordinator.CycleNumber())
}

func TestMirroringRebuildsDivergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	results, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)

	mirroring := results[3]
	require.Equal(t, core.PhaseMirroring, mirroring.Phase)
	delta := mirroring.StateChanges.(core.MirroringDelta)

	world := f.agent.VirtualWorld()
	assert.Equal(t, delta.EstimatedDrift, world.DivergenceMetrics.EstimatedDrift)
	assert.InDelta(t, 1-world.SituationalAwareness.EstimatedCoherence, world.DivergenceMetrics.EstimatedDrift, 1e-9,
		"drift is exactly one minus the assigned coherence")
	assert.False(t, world.DivergenceMetrics.LastSyncTime.IsZero())
	assert.Equal(t, delta.Misalignments, world.DivergenceMetrics.KnownMisalignments)
}

func TestReflectionMergesIntoSelfModel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before := f.agent.VirtualSelf().SelfAwareness.LastReflection

	results, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)

	reflection := results[2]
	require.Equal(t, core.PhaseReflection, reflection.Phase)
	delta := reflection.StateChanges.(core.ReflectionDelta)

	vi := f.agent.VirtualSelf()
	assert.Equal(t, delta.SelfNarrative, vi.SelfStory)
	assert.Equal(t, delta.PerceivedRole, vi.RoleUnderstanding)
	assert.True(t, vi.SelfAwareness.LastReflection.After(before))
}

func TestEnactionReinforcesAssumedPhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assumed := "consolidation"
	f.agent.UpdateVirtualArena(core.VirtualArenaPatch{AssumedNarrativePhase: &assumed})
	before := f.arena.Membrane().State().Phases["consolidation"]

	results, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)

	enaction := results[4]
	require.Equal(t, core.PhaseEnaction, enaction.Phase)
	delta := enaction.StateChanges.(core.EnactionDelta)
	assert.Equal(t, "consolidation", delta.ReinforcedPhase)
	assert.Equal(t, EnactionIntensity, delta.Intensity)

	after := f.arena.Membrane().State().Phases["consolidation"]
	assert.Greater(t, after, before, "the assumed phase gains intensity in the actual arena")
}

func TestCoherenceSampledFreshEveryPhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	results, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)

	for _, result := range results {
		assert.Greater(t, result.CoherenceAfter, 0.0, "phase %s", result.Phase)
	}
}

func TestCoherenceLowEmitsButNeverGates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.CoherenceThreshold = 0.99 })

	var rec testutil.EventRecorder
	rec.Subscribe(f.emitter, core.TopicCoherenceLow)

	results, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err, "low coherence warns, it does not abort")
	assert.Len(t, results, 5)
	assert.Equal(t, 5, rec.Count(core.TopicCoherenceLow), "one warning per phase under threshold")
}

// failingArena wraps a membrane so a chosen operation fails, forcing a phase
// error mid-cycle.
type failingArena struct {
	core.ArenaMembrane
	failTransition bool
}

func (f *failingArena) TransitionPhase(phase string, intensity float64) error {
	if f.failTransition {
		return errors.New("induced failure")
	}
	return f.ArenaMembrane.TransitionPhase(phase, intensity)
}

func TestCycleAbortSkipsRemainingPhases(t *testing.T) {
	ctx := context.Background()

	agentMembrane := testutil.NewAgentMembrane()
	arenaMembrane := &failingArena{ArenaMembrane: testutil.NewArenaMembrane(), failTransition: true}
	emitter := core.NewEmitter()

	agent := layer.NewAgentServer(agentMembrane, func(o *layer.AgentOptions) { o.Emitter = emitter })
	arena := layer.NewArenaServer(arenaMembrane, func(o *layer.ArenaOptions) { o.Emitter = emitter })
	relation := layer.NewRelationServer(membrane.NewRelation(), agentMembrane, arenaMembrane, func(o *layer.RelationOptions) { o.Emitter = emitter })
	coordinator := NewCoordinator(agent, arena, relation, func(o *Options) { o.Emitter = emitter })

	var rec testutil.EventRecorder
	rec.Subscribe(emitter, core.TopicCycleError, core.TopicCycleComplete)

	results, err := coordinator.RunCycle(ctx)
	require.Error(t, err)
	assert.True(t, core.IsCycleAborted(err))
	assert.Len(t, results, 4, "enaction failed; the four earlier phase results stand")
	assert.Equal(t, 1, rec.Count(core.TopicCycleError))
	assert.Zero(t, rec.Count(core.TopicCycleComplete))

	t.Run("coordinator stays usable and the next cycle gets a fresh number", func(t *testing.T) {
		arenaMembrane.failTransition = false
		results, err := coordinator.RunCycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, results[0].CycleNumber, "the aborted cycle still consumed number 1")
	})
}

func TestExecutePhaseSingle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.coordinator.ExecutePhase(ctx, core.PhaseModeling)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseModeling, result.Phase)
	assert.Zero(t, result.CycleNumber, "a standalone phase claims no cycle number")

	_, err = f.coordinator.ExecutePhase(ctx, core.Phase("daydreaming"))
	assert.True(t, core.IsInvalidArgument(err))
}

func TestPhaseCompleteEventsOrdered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var phases []core.Phase
	f.emitter.On(core.TopicPhaseComplete, func(payload any) {
		phases = append(phases, payload.(core.DevelopmentalCycleResult).Phase)
	})

	_, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)

	want := core.Phases()
	assert.Equal(t, want[:], phases)
}

func TestIntervalCyclingSingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.Interval = 10 * time.Millisecond })

	// Hold the cycle lock to simulate a slow in-flight cycle while several
	// ticks fire; ticks must skip, never queue up behind it.
	var cycles int
	var mu sync.Mutex
	f.emitter.On(core.TopicCycleComplete, func(any) {
		mu.Lock()
		cycles++
		mu.Unlock()
	})

	f.coordinator.inCycle.Lock()
	require.NoError(t, f.coordinator.Start(ctx))
	require.NoError(t, f.coordinator.Start(ctx), "start is idempotent")
	time.Sleep(60 * time.Millisecond)
	f.coordinator.inCycle.Unlock()

	mu.Lock()
	blocked := cycles
	mu.Unlock()
	assert.Zero(t, blocked, "ticks during a held cycle are skipped, not deferred")

	time.Sleep(35 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, f.coordinator.Stop(stopCtx))
	require.NoError(t, f.coordinator.Stop(stopCtx), "stop is idempotent")

	mu.Lock()
	ran := cycles
	mu.Unlock()
	assert.Greater(t, ran, 0, "cycling resumes once the lock frees")
}

// phaseLogRecorder upgrades the no-op logger with phase and cycle recording.
type phaseLogRecorder struct {
	logging.NoOpLogger
	phases []recordedPhaseLog
	cycles []recordedCycleLog
}

type recordedPhaseLog struct {
	phase   string
	success bool
}

type recordedCycleLog struct {
	cycle   int
	success bool
}

func (r *phaseLogRecorder) LogPhaseExecution(phase string, _ float64, _ time.Duration, success bool, _ error) {
	r.phases = append(r.phases, recordedPhaseLog{phase: phase, success: success})
}

func (r *phaseLogRecorder) LogCycle(cycle int, _ float64, _ time.Duration, success bool, _ error) {
	r.cycles = append(r.cycles, recordedCycleLog{cycle: cycle, success: success})
}

func TestRunCycleRoutesThroughPhaseLogger(t *testing.T) {
	ctx := context.Background()
	recorder := &phaseLogRecorder{}
	f := newFixture(t, func(o *Options) { o.Logger = recorder })

	_, err := f.coordinator.RunCycle(ctx)
	require.NoError(t, err)

	require.Len(t, recorder.phases, 5)
	for i, phase := range core.Phases() {
		assert.Equal(t, string(phase), recorder.phases[i].phase)
		assert.True(t, recorder.phases[i].success)
	}
	require.Len(t, recorder.cycles, 1)
	assert.Equal(t, recordedCycleLog{cycle: 1, success: true}, recorder.cycles[0])
}

func TestAbortedCycleRoutesThroughPhaseLogger(t *testing.T) {
	ctx := context.Background()

	agentMembrane := testutil.NewAgentMembrane()
	arenaMembrane := &failingArena{ArenaMembrane: testutil.NewArenaMembrane(), failTransition: true}
	emitter := core.NewEmitter()
	recorder := &phaseLogRecorder{}

	agent := layer.NewAgentServer(agentMembrane, func(o *layer.AgentOptions) { o.Emitter = emitter })
	arena := layer.NewArenaServer(arenaMembrane, func(o *layer.ArenaOptions) { o.Emitter = emitter })
	relation := layer.NewRelationServer(membrane.NewRelation(), agentMembrane, arenaMembrane, func(o *layer.RelationOptions) { o.Emitter = emitter })
	coordinator := NewCoordinator(agent, arena, relation, func(o *Options) {
		o.Emitter = emitter
		o.Logger = recorder
	})

	_, err := coordinator.RunCycle(ctx)
	require.Error(t, err)

	require.Len(t, recorder.phases, 5, "the failed enaction is recorded too")
	assert.False(t, recorder.phases[4].success)
	require.Len(t, recorder.cycles, 1)
	assert.False(t, recorder.cycles[0].success)
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.Stop(context.Background()))
}
