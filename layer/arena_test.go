package layer

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArenaServer(t *testing.T, optFns ...func(o *ArenaOptions)) *ArenaServer {
	t.Helper()
	return NewArenaServer(testutil.NewArenaMembrane(), optFns...)
}

func echoOrchestrator(_ context.Context, agentIDs []string, directive string) (map[string]string, error) {
	responses := make(map[string]string, len(agentIDs))
	for _, id := range agentIDs {
		responses[id] = "ack " + directive
	}
	return responses, nil
}

func TestArenaServerConfig(t *testing.T) {
	s := newTestArenaServer(t)
	cfg := s.Config()

	assert.Equal(t, core.LayerArena, cfg.Layer)
	assert.Equal(t, core.LayerArena, s.Layer())
	assert.NotEmpty(t, cfg.Version)
}

func TestArenaResources(t *testing.T) {
	s := newTestArenaServer(t)

	t.Run("state", func(t *testing.T) {
		v, err := s.ReadResource("arena://state")
		require.NoError(t, err)
		st := v.(core.ArenaState)
		assert.Equal(t, "exploration", st.CurrentPhase)
	})

	t.Run("frame by id", func(t *testing.T) {
		frame, err := s.Membrane().CreateFrame("opening", "")
		require.NoError(t, err)

		v, err := s.ReadResource("arena://frame/" + frame.ID)
		require.NoError(t, err)
		assert.Equal(t, frame.ID, v.(core.SessionFrame).ID)

		_, err = s.ReadResource("arena://frame/missing")
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("unknown uri", func(t *testing.T) {
		_, err := s.ReadResource("arena://bogus")
		assert.True(t, core.IsNotFound(err))
	})
}

func TestAgentRegistryLifecycle(t *testing.T) {
	s := newTestArenaServer(t)

	ref, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo"})
	require.NoError(t, err)
	assert.Equal(t, core.AgentStatusActive, ref.Status, "empty status defaults to active")
	assert.False(t, ref.LastActivity.IsZero())

	_, err = s.RegisterAgent(core.AgentReference{AgentID: "a2", Name: "Scout", Status: core.AgentStatusSpawning})
	require.NoError(t, err)

	t.Run("listing preserves registration order", func(t *testing.T) {
		agents := s.Agents()
		require.Len(t, agents, 2)
		assert.Equal(t, "a1", agents[0].AgentID)
		assert.Equal(t, "a2", agents[1].AgentID)
	})

	t.Run("re-registration replaces keeping order", func(t *testing.T) {
		_, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo II"})
		require.NoError(t, err)
		agents := s.Agents()
		require.Len(t, agents, 2)
		assert.Equal(t, "Echo II", agents[0].Name)
	})

	t.Run("status transitions", func(t *testing.T) {
		ref, err := s.SetAgentStatus("a2", core.AgentStatusActive)
		require.NoError(t, err)
		assert.Equal(t, core.AgentStatusActive, ref.Status)

		_, err = s.SetAgentStatus("a2", core.AgentStatusDormant)
		require.NoError(t, err)
		_, err = s.SetAgentStatus("a2", core.AgentStatusActive)
		require.NoError(t, err)

		_, err = s.SetAgentStatus("a2", core.AgentStatusSpawning)
		assert.True(t, core.IsInvalidArgument(err), "active -> spawning is illegal")

		_, err = s.SetAgentStatus("ghost", core.AgentStatusActive)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("deregistration deletes outright", func(t *testing.T) {
		require.NoError(t, s.DeregisterAgent("a1"))
		_, ok := s.Agent("a1")
		assert.False(t, ok)
		assert.True(t, core.IsNotFound(s.DeregisterAgent("a1")))
	})

	t.Run("invalid registration", func(t *testing.T) {
		_, err := s.RegisterAgent(core.AgentReference{Name: "nameless"})
		assert.True(t, core.IsInvalidArgument(err))
		_, err = s.RegisterAgent(core.AgentReference{AgentID: "x", Status: "zombie"})
		assert.True(t, core.IsInvalidArgument(err))
	})
}

func TestOrchestrate(t *testing.T) {
	ctx := context.Background()

	t.Run("filters to active registered agents", func(t *testing.T) {
		s := newTestArenaServer(t, func(o *ArenaOptions) { o.Orchestrator = echoOrchestrator })
		_, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo"})
		require.NoError(t, err)

		result, err := s.Orchestrate(ctx, []string{"a1", "missing"}, "sync", 0)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, []string{"a1"}, result.ParticipatingAgents)
		assert.Equal(t, "ack sync", result.Responses["a1"])
		assert.Contains(t, result.Outcome, "sync")
	})

	t.Run("no active agents", func(t *testing.T) {
		s := newTestArenaServer(t, func(o *ArenaOptions) { o.Orchestrator = echoOrchestrator })

		result, err := s.Orchestrate(ctx, []string{"ghost"}, "sync", 0)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Empty(t, result.Responses)
		assert.Contains(t, result.Outcome, "No active agents available")
	})

	t.Run("dormant agents do not participate", func(t *testing.T) {
		s := newTestArenaServer(t, func(o *ArenaOptions) { o.Orchestrator = echoOrchestrator })
		_, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo"})
		require.NoError(t, err)
		_, err = s.SetAgentStatus("a1", core.AgentStatusDormant)
		require.NoError(t, err)

		result, err := s.Orchestrate(ctx, []string{"a1"}, "sync", 0)
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("missing callback degrades", func(t *testing.T) {
		s := newTestArenaServer(t)
		_, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo"})
		require.NoError(t, err)

		result, err := s.Orchestrate(ctx, []string{"a1"}, "sync", 0)
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Contains(t, result.Outcome, "not configured")
	})

	t.Run("timeout leaves registry untouched", func(t *testing.T) {
		s := newTestArenaServer(t, func(o *ArenaOptions) {
			o.Orchestrator = func(ctx context.Context, _ []string, _ string) (map[string]string, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}
		})
		before, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo"})
		require.NoError(t, err)

		_, err = s.Orchestrate(ctx, []string{"a1"}, "sync", 20*time.Millisecond)
		require.Error(t, err)
		assert.True(t, core.IsTimeout(err))

		after, ok := s.Agent("a1")
		require.True(t, ok)
		assert.Equal(t, before.LastActivity, after.LastActivity)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		s := newTestArenaServer(t, func(o *ArenaOptions) {
			o.Orchestrator = func(ctx context.Context, _ []string, _ string) (map[string]string, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}
		})
		_, err := s.RegisterAgent(core.AgentReference{AgentID: "a1", Name: "Echo"})
		require.NoError(t, err)

		callerCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err = s.Orchestrate(callerCtx, []string{"a1"}, "sync", time.Minute)
		require.Error(t, err)
		assert.False(t, core.IsTimeout(err))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestArenaTools(t *testing.T) {
	ctx := context.Background()

	t.Run("addLore defaults", func(t *testing.T) {
		s := newTestArenaServer(t)
		v, err := s.CallTool(ctx, "addLore", map[string]any{"category": "wisdom", "content": "X"})
		require.NoError(t, err)
		entry := v.(core.LoreEntry)
		assert.Equal(t, 0.5, entry.Weight)
		assert.Equal(t, []string{}, entry.Tags)
	})

	t.Run("invalid args perform no mutation", func(t *testing.T) {
		s := newTestArenaServer(t)
		_, err := s.CallTool(ctx, "addLore", map[string]any{"category": "gossip", "content": "X"})
		require.Error(t, err)
		assert.True(t, core.IsInvalidArgument(err))
		assert.Empty(t, s.Membrane().State().Lore)
	})

	t.Run("createFrame and forkFrame", func(t *testing.T) {
		s := newTestArenaServer(t)
		v, err := s.CallTool(ctx, "createFrame", map[string]any{"name": "root"})
		require.NoError(t, err)
		root := v.(core.SessionFrame)

		v, err = s.CallTool(ctx, "forkFrame", map[string]any{"parentId": root.ID, "name": "branch"})
		require.NoError(t, err)
		assert.Equal(t, root.ID, v.(core.SessionFrame).ParentID)
	})

	t.Run("transitionPhase", func(t *testing.T) {
		s := newTestArenaServer(t)
		v, err := s.CallTool(ctx, "transitionPhase", map[string]any{"phase": "return", "intensity": 0.9})
		require.NoError(t, err)
		out := v.(map[string]any)
		assert.Equal(t, "return", out["currentPhase"])
	})

	t.Run("registerAgent via tool", func(t *testing.T) {
		s := newTestArenaServer(t)
		v, err := s.CallTool(ctx, "registerAgent", map[string]any{"agentId": "a1", "name": "Echo"})
		require.NoError(t, err)
		assert.Equal(t, core.AgentStatusActive, v.(core.AgentReference).Status)
	})

	t.Run("unknown tool", func(t *testing.T) {
		s := newTestArenaServer(t)
		_, err := s.CallTool(ctx, "summonDragon", nil)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestAppControlToolsDegrade(t *testing.T) {
	ctx := context.Background()

	t.Run("absent hooks yield descriptive results", func(t *testing.T) {
		s := newTestArenaServer(t)
		v, err := s.CallTool(ctx, "selectHome", map[string]any{"homeId": "h1"})
		require.NoError(t, err, "a missing hook is never an error")
		assert.Contains(t, v.(string), "not connected")

		v, err = s.CallTool(ctx, "listHomes", nil)
		require.NoError(t, err)
		assert.Contains(t, v.(string), "not connected")
	})

	t.Run("present hooks are invoked", func(t *testing.T) {
		s := newTestArenaServer(t, func(o *ArenaOptions) {
			o.AppControl = core.AppControl{
				SelectHome: func(homeID string) (string, error) { return "switched to " + homeID, nil },
				Homes:      func() ([]string, error) { return []string{"h1", "h2"}, nil },
			}
		})

		v, err := s.CallTool(ctx, "selectHome", map[string]any{"homeId": "h1"})
		require.NoError(t, err)
		assert.Equal(t, "switched to h1", v)

		v, err = s.CallTool(ctx, "listHomes", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"h1", "h2"}, v)
	})
}

func TestArenaPrompts(t *testing.T) {
	s := newTestArenaServer(t)

	out, err := s.GetPrompt("narrative_context", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "exploration")

	frame, err := s.Membrane().CreateFrame("opening", "")
	require.NoError(t, err)
	out, err = s.GetPrompt("narrative_context", map[string]string{"frame": frame.ID})
	require.NoError(t, err)
	assert.Contains(t, out, "opening")

	_, err = s.GetPrompt("narrative_context", map[string]string{"frame": "missing"})
	assert.True(t, core.IsNotFound(err))

	out, err = s.GetPrompt("lore_digest", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing recorded")
}

func TestArenaListingsOrdered(t *testing.T) {
	s := newTestArenaServer(t)

	resources := s.ListResources()
	require.NotEmpty(t, resources)
	assert.Equal(t, "arena://state", resources[0].URI)

	tools := s.ListTools()
	require.NotEmpty(t, tools)
	assert.Equal(t, "createFrame", tools[0].Name)
}
