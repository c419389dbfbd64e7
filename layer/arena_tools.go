package layer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/internal/util"
	"github.com/hupe1980/echomesh/protocol"
)

func (s *ArenaServer) registerFrameAndLoreTools() {
	s.tools.Register(protocol.Tool{
		Name:        "createFrame",
		Description: "Open a new root session frame in the arena",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":  map[string]any{"type": "string", "description": "Frame name"},
				"phase": map[string]any{"type": "string", "description": "Narrative phase; defaults to the current dominant phase", "default": ""},
			},
			"required": []string{"name"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			phase, _ := args["phase"].(string)
			return s.membrane.CreateFrame(name, phase)
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "forkFrame",
		Description: "Branch an existing session frame, inheriting its phase",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"parentId": map[string]any{"type": "string", "description": "Frame to branch from"},
				"name":     map[string]any{"type": "string", "description": "Name of the fork"},
			},
			"required": []string{"parentId", "name"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			parentID, _ := args["parentId"].(string)
			name, _ := args["name"].(string)
			return s.membrane.ForkFrame(parentID, name)
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "transitionPhase",
		Description: "Reinforce a narrative phase, renormalizing the distribution",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"phase":     map[string]any{"type": "string", "description": "Phase to reinforce"},
				"intensity": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0, "default": 0.1},
			},
			"required": []string{"phase"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			phase, _ := args["phase"].(string)
			intensity := numberArg(args, "intensity")
			if err := s.membrane.TransitionPhase(phase, intensity); err != nil {
				return nil, err
			}
			st := s.membrane.State()
			return map[string]any{"currentPhase": st.CurrentPhase, "phases": st.Phases}, nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "addLore",
		Description: "Record a piece of world knowledge",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type": "string",
					"enum": []string{"wisdom", "history", "prophecy", "character", "place", "custom"},
				},
				"content": map[string]any{"type": "string", "description": "The lore text"},
				"tags":    map[string]any{"type": "array", "default": []any{}},
				"weight":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0, "default": 0.5},
			},
			"required": []string{"category", "content"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			category, _ := args["category"].(string)
			content, _ := args["content"].(string)
			tags := util.StringSlice(args["tags"])
			if tags == nil {
				tags = []string{}
			}
			return s.membrane.AddLore(core.LoreEntry{
				Category: category,
				Content:  content,
				Tags:     tags,
				Weight:   numberArg(args, "weight"),
			})
		},
	})
}

func (s *ArenaServer) registerRegistryTools() {
	s.tools.Register(protocol.Tool{
		Name:        "registerAgent",
		Description: "Register an agent reference for orchestration",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agentId": map[string]any{"type": "string"},
				"name":    map[string]any{"type": "string"},
				"status": map[string]any{
					"type":    "string",
					"enum":    []string{"spawning", "active", "dormant"},
					"default": "active",
				},
				"mcpEndpoint": map[string]any{"type": "string", "default": ""},
			},
			"required": []string{"agentId", "name"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			agentID, _ := args["agentId"].(string)
			name, _ := args["name"].(string)
			status, _ := args["status"].(string)
			endpoint, _ := args["mcpEndpoint"].(string)
			return s.RegisterAgent(core.AgentReference{
				AgentID:     agentID,
				Name:        name,
				Status:      core.AgentStatus(status),
				MCPEndpoint: endpoint,
			})
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "deregisterAgent",
		Description: "Delete an agent reference from the registry",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agentId": map[string]any{"type": "string"},
			},
			"required": []string{"agentId"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			agentID, _ := args["agentId"].(string)
			if err := s.DeregisterAgent(agentID); err != nil {
				return nil, err
			}
			return map[string]any{"deregistered": agentID}, nil
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "setAgentStatus",
		Description: "Apply a legal status transition to a registered agent",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agentId": map[string]any{"type": "string"},
				"status": map[string]any{
					"type": "string",
					"enum": []string{"spawning", "active", "dormant"},
				},
			},
			"required": []string{"agentId", "status"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			agentID, _ := args["agentId"].(string)
			status, _ := args["status"].(string)
			return s.SetAgentStatus(agentID, core.AgentStatus(status))
		},
	})
}

func (s *ArenaServer) registerOrchestrateTool() {
	s.tools.Register(protocol.Tool{
		Name:        "orchestrate",
		Description: "Deliver a directive to the active subset of the requested agents",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agents":    map[string]any{"type": "array", "description": "Agent ids to address"},
				"directive": map[string]any{"type": "string"},
				"timeoutMs": map[string]any{"type": "integer", "minimum": 1, "default": 30000},
			},
			"required": []string{"agents", "directive"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			agents := util.StringSlice(args["agents"])
			directive, _ := args["directive"].(string)
			timeout := time.Duration(numberArg(args, "timeoutMs")) * time.Millisecond
			return s.Orchestrate(ctx, agents, directive, timeout)
		},
	})
}

// App-control tools wrap the optional hooks. A missing hook is never an
// error: the tool degrades to a descriptive no-op result string.
func (s *ArenaServer) registerAppControlTools() {
	s.tools.Register(protocol.Tool{
		Name:        "selectHome",
		Description: "Switch the hosting application to another home space",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"homeId": map[string]any{"type": "string"},
			},
			"required": []string{"homeId"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			homeID, _ := args["homeId"].(string)
			if s.appControl.SelectHome == nil {
				return appControlUnavailable("selectHome", homeID), nil
			}
			return s.appControl.SelectHome(homeID)
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "listHomes",
		Description: "List the home spaces known to the hosting application",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			if s.appControl.Homes == nil {
				return appControlUnavailable("listHomes", ""), nil
			}
			return s.appControl.Homes()
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "createHome",
		Description: "Create a home space in the hosting application",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []string{"name"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			name, _ := args["name"].(string)
			if s.appControl.CreateHome == nil {
				return appControlUnavailable("createHome", name), nil
			}
			return s.appControl.CreateHome(name)
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "openSettings",
		Description: "Open a settings section of the hosting application",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"section": map[string]any{"type": "string", "default": "general"},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			section, _ := args["section"].(string)
			if s.appControl.OpenSettings == nil {
				return appControlUnavailable("openSettings", section), nil
			}
			return s.appControl.OpenSettings(section)
		},
	})

	s.tools.Register(protocol.Tool{
		Name:        "navigate",
		Description: "Navigate the hosting application to a target view",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target": map[string]any{"type": "string"},
			},
			"required": []string{"target"},
		},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			target, _ := args["target"].(string)
			if s.appControl.Navigate == nil {
				return appControlUnavailable("navigate", target), nil
			}
			return s.appControl.Navigate(target)
		},
	})
}

func appControlUnavailable(action, arg string) string {
	if arg == "" {
		return fmt.Sprintf("app control is not connected; %s request noted without effect", action)
	}
	return fmt.Sprintf("app control is not connected; %s request for %q noted without effect", action, arg)
}

func (s *ArenaServer) registerPrompts() {
	s.prompts.Register(protocol.Prompt{
		Name:        "narrative_context",
		Description: "Describe the arena's current narrative situation",
		Arguments: []core.PromptArgument{
			{Name: "frame", Description: "Session frame id to focus on", Required: false},
		},
		Render: func(args map[string]string) (string, error) {
			st := s.membrane.State()
			var b strings.Builder
			fmt.Fprintf(&b, "The arena moves through its %s phase (intensity %.2f).", st.CurrentPhase, st.Phases[st.CurrentPhase])
			if frameID := args["frame"]; frameID != "" {
				frame, ok := st.Frames[frameID]
				if !ok {
					return "", core.NewNotFound("narrative_context", "unknown frame %q", frameID)
				}
				fmt.Fprintf(&b, " Focus rests on the frame %q, opened during %s.", frame.Name, frame.Phase)
			}
			fmt.Fprintf(&b, " %d frame(s) are open and %d lore entr(ies) ground the world.", len(st.Frames), len(st.Lore))
			return b.String(), nil
		},
	})

	s.prompts.Register(protocol.Prompt{
		Name:        "lore_digest",
		Description: "Summarize accumulated lore, optionally by category",
		Arguments: []core.PromptArgument{
			{Name: "category", Description: "Restrict the digest to one category", Required: false},
		},
		Render: func(args map[string]string) (string, error) {
			st := s.membrane.State()
			category := args["category"]
			var b strings.Builder
			b.WriteString("Lore digest:")
			count := 0
			for _, entry := range st.Lore {
				if category != "" && entry.Category != category {
					continue
				}
				fmt.Fprintf(&b, "\n- [%s, weight %.2f] %s", entry.Category, entry.Weight, entry.Content)
				count++
			}
			if count == 0 {
				b.WriteString(" nothing recorded yet.")
			}
			return b.String(), nil
		},
	})
}

// numberArg coerces a numeric argument that may arrive as float64 (JSON) or
// any Go integer type (direct callers). Validation has already established
// the value is numeric when present; absent values yield zero.
func numberArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
