package layer

import (
	"context"
	"testing"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgentServer(t *testing.T, optFns ...func(o *AgentOptions)) *AgentServer {
	t.Helper()
	return NewAgentServer(testutil.NewAgentMembrane(), optFns...)
}

func TestAgentServerBootstrapsVirtualModels(t *testing.T) {
	s := newTestAgentServer(t)

	v, err := s.ReadResource("agent://self")
	require.NoError(t, err)
	vi := v.(*core.VirtualAgentModel)

	assert.Equal(t, "explorer", vi.SelfImage.PerceivedDominantFacet, "construction syncs from actual state")
	assert.NotNil(t, vi.WorldView)
	assert.Equal(t, 1.0, vi.WorldView.DivergenceMetrics.EstimatedDrift)
}

func TestAgentStateResources(t *testing.T) {
	ctx := context.Background()
	s := newTestAgentServer(t)

	v, err := s.ReadResource("agent://identity")
	require.NoError(t, err)
	assert.Equal(t, "test-echo", v.(core.CoreIdentity).Name)

	v, err = s.ReadResource("agent://state")
	require.NoError(t, err)
	assert.Equal(t, "explorer", v.(core.AgentState).DominantFacet)

	_, err = s.CallTool(ctx, "evolve", map[string]any{"experience": "crossed the ridge"})
	require.NoError(t, err)

	v, err = s.ReadResource("agent://memory")
	require.NoError(t, err)
	log := v.([]core.Transaction)
	require.NotEmpty(t, log)
	assert.Equal(t, "evolve", log[len(log)-1].Kind)
}

func TestSelfResourceExposesLiveModel(t *testing.T) {
	s := newTestAgentServer(t)

	first, err := s.ReadResource("agent://self")
	require.NoError(t, err)
	world, err := s.ReadResource("agent://worldview")
	require.NoError(t, err)

	vi := first.(*core.VirtualAgentModel)
	vo := world.(*core.VirtualArenaModel)
	assert.Same(t, vo, vi.WorldView, "the self resource nests the same world-model the worldview resource returns")

	story := "I crossed the first threshold."
	s.UpdateVirtualAgent(core.VirtualAgentPatch{SelfStory: &story})

	second, err := s.ReadResource("agent://self")
	require.NoError(t, err)
	assert.Same(t, first, second, "re-reads return the same live model")
	assert.Equal(t, story, second.(*core.VirtualAgentModel).SelfStory)
}

func TestWorldViewAliasingSurvivesUpdates(t *testing.T) {
	s := newTestAgentServer(t)

	v, _ := s.ReadResource("agent://self")
	vi := v.(*core.VirtualAgentModel)
	before := vi.WorldView

	theory := "the arena is a hall of mirrors"
	s.UpdateVirtualArena(core.VirtualArenaPatch{WorldTheory: &theory})

	assert.Same(t, before, vi.WorldView, "patching the world-model must never re-point it")
	assert.Equal(t, theory, vi.WorldView.WorldTheory)
}

func TestUpdateVirtualEmitsSynchronously(t *testing.T) {
	emitter := core.NewEmitter()
	s := newTestAgentServer(t, func(o *AgentOptions) { o.Emitter = emitter })

	var rec testutil.EventRecorder
	rec.Subscribe(emitter, core.TopicVirtualAgentUpdated, core.TopicVirtualArenaUpdated)

	story := "a new chapter"
	s.UpdateVirtualAgent(core.VirtualAgentPatch{SelfStory: &story})

	events := rec.Events()
	require.Len(t, events, 1, "the event is delivered before the update call returns")
	assert.Equal(t, core.TopicVirtualAgentUpdated, events[0].Topic)
	assert.Equal(t, story, events[0].Payload.(*core.VirtualAgentModel).SelfStory)

	ctxStr := "crowded"
	s.UpdateVirtualArena(core.VirtualArenaPatch{PerceivedContext: &ctxStr})
	assert.Equal(t, 1, rec.Count(core.TopicVirtualArenaUpdated))
}

func TestSyncVirtualFromActual(t *testing.T) {
	emitter := core.NewEmitter()
	s := newTestAgentServer(t, func(o *AgentOptions) { o.Emitter = emitter })

	var rec testutil.EventRecorder
	rec.Subscribe(emitter, core.TopicVirtualSynced)

	require.NoError(t, s.Membrane().ActivateFacet("sage", 0.95))
	snapshot := s.SyncVirtualFromActual()

	assert.Equal(t, "sage", snapshot.SelfImage.PerceivedDominantFacet)
	assert.Equal(t, 1, rec.Count(core.TopicVirtualSynced))
	assert.Contains(t, snapshot.PerceivedCapabilities, "sage")
	assert.Equal(t, "sage", snapshot.PerceivedCapabilities[0], "capabilities are ordered strongest first")
}

func TestAgentTools(t *testing.T) {
	ctx := context.Background()

	t.Run("activateFacet", func(t *testing.T) {
		s := newTestAgentServer(t)
		v, err := s.CallTool(ctx, "activateFacet", map[string]any{"facet": "guardian", "level": 0.9})
		require.NoError(t, err)
		out := v.(map[string]any)
		assert.Equal(t, "guardian", out["dominant"])
	})

	t.Run("missing required field mutates nothing", func(t *testing.T) {
		s := newTestAgentServer(t)
		before := s.Membrane().State()

		_, err := s.CallTool(ctx, "activateFacet", map[string]any{"facet": "guardian"})
		require.Error(t, err)
		assert.True(t, core.IsInvalidArgument(err))
		assert.Equal(t, before.Facets, s.Membrane().State().Facets)
	})

	t.Run("evolve applies default impact", func(t *testing.T) {
		s := newTestAgentServer(t)
		v, err := s.CallTool(ctx, "evolve", map[string]any{"experience": "met a stranger"})
		require.NoError(t, err)
		st := v.(core.AgentState)
		assert.InDelta(t, 0.75, st.Facets["explorer"].Activation, 1e-9)
	})

	t.Run("updateSocialMemory", func(t *testing.T) {
		s := newTestAgentServer(t)
		v, err := s.CallTool(ctx, "updateSocialMemory", map[string]any{
			"entityId": "e1", "name": "One", "trust": 0.8, "note": "kept their word",
		})
		require.NoError(t, err)
		entry := v.(core.SocialMemoryEntry)
		assert.Equal(t, 0.8, entry.Trust)
		assert.Equal(t, []string{"kept their word"}, entry.Notes)

		v, err = s.ReadResource("agent://social/e1")
		require.NoError(t, err)
		assert.Equal(t, "One", v.(core.SocialMemoryEntry).Name)

		_, err = s.ReadResource("agent://social/unknown")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("updateSocialMemory explicit zero trust", func(t *testing.T) {
		s := newTestAgentServer(t)
		_, err := s.CallTool(ctx, "updateSocialMemory", map[string]any{
			"entityId": "e1", "trust": 0.9,
		})
		require.NoError(t, err)

		// Passing trust as 0 is a deliberate update, not an omission.
		v, err := s.CallTool(ctx, "updateSocialMemory", map[string]any{
			"entityId": "e1", "trust": 0.0,
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v.(core.SocialMemoryEntry).Trust)

		// Omitting trust entirely leaves the stored value untouched.
		v, err = s.CallTool(ctx, "updateSocialMemory", map[string]any{
			"entityId": "e1", "note": "seen again",
		})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v.(core.SocialMemoryEntry).Trust)
	})

	t.Run("updateVirtualAgent patch", func(t *testing.T) {
		s := newTestAgentServer(t)
		v, err := s.CallTool(ctx, "updateVirtualAgent", map[string]any{
			"selfStory":      "a told story",
			"selfConfidence": 0.9,
			"currentGoals":   []any{"find the door"},
		})
		require.NoError(t, err)
		vi := v.(*core.VirtualAgentModel)
		assert.Equal(t, "a told story", vi.SelfStory)
		assert.Equal(t, 0.9, vi.SelfImage.Confidence)
		assert.Equal(t, []string{"find the door"}, vi.CurrentGoals)
	})

	t.Run("updateVirtualArena patch merges entities by key via direct call", func(t *testing.T) {
		s := newTestAgentServer(t)
		s.UpdateVirtualArena(core.VirtualArenaPatch{
			KnownEntities: map[string]core.EntityImpression{"e1": {Name: "One"}},
		})
		s.UpdateVirtualArena(core.VirtualArenaPatch{
			KnownEntities: map[string]core.EntityImpression{"e2": {Name: "Two"}},
		})
		assert.Len(t, s.VirtualWorld().KnownEntities, 2)
	})
}

func TestAgentPrompts(t *testing.T) {
	s := newTestAgentServer(t)

	out, err := s.GetPrompt("self_reflection", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "I see myself as")
	assert.Contains(t, out, "explorer")

	out, err = s.GetPrompt("first_person_status", map[string]string{"mood": "restless"})
	require.NoError(t, err)
	assert.Contains(t, out, "test-echo")
	assert.Contains(t, out, "restless")

	_, err = s.GetPrompt("unknown_prompt", nil)
	assert.True(t, core.IsNotFound(err))
}
