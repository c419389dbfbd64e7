package layer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/echomesh/core"
	"github.com/hupe1980/echomesh/logging"
)

// DefaultOrchestrateTimeout bounds the orchestration callback when the
// caller supplies no timeout of their own.
const DefaultOrchestrateTimeout = 30 * time.Second

// OrchestrationResult is the structured outcome of the orchestrate tool.
// Success is false when no registered agent qualifies; that is a tool-level
// outcome, not an error.
type OrchestrationResult struct {
	Success             bool              `json:"success"`
	ParticipatingAgents []string          `json:"participating_agents"`
	Responses           map[string]string `json:"responses"`
	Outcome             string            `json:"outcome"`
}

// ArenaOptions configures an ArenaServer.
type ArenaOptions struct {
	// Name overrides the server's configured name.
	Name string
	// Orchestrator is the optional external multi-agent callback. Absent,
	// orchestrate degrades to a descriptive failure outcome.
	Orchestrator core.Orchestrator
	// AppControl carries the optional application-control hooks.
	AppControl core.AppControl
	// Emitter receives the server's notifications; defaults to a fresh one.
	Emitter *core.Emitter
	// Logger defaults to NoOp.
	Logger logging.Logger
}

// ArenaServer wraps the Arena membrane. Beyond the uniform protocol surface
// it owns the AgentReference registry (deliberately not delegated to the
// membrane) and the orchestration / app-control callbacks.
type ArenaServer struct {
	baseServer
	membrane     core.ArenaMembrane
	orchestrator core.Orchestrator
	appControl   core.AppControl

	regMu    sync.RWMutex
	registry map[string]core.AgentReference
	regOrder []string
}

var _ core.LayerServer = (*ArenaServer)(nil)

// NewArenaServer constructs the arena layer server over the given membrane.
func NewArenaServer(m core.ArenaMembrane, optFns ...func(o *ArenaOptions)) *ArenaServer {
	opts := ArenaOptions{Name: "arena"}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &ArenaServer{
		baseServer: newBaseServer(core.LayerConfig{
			Layer:       core.LayerArena,
			Name:        opts.Name,
			Description: "world state: narrative phases, session frames, lore, agent registry",
			Version:     "1.0.0",
		}, opts.Emitter, opts.Logger),
		membrane:     m,
		orchestrator: opts.Orchestrator,
		appControl:   opts.AppControl,
		registry:     make(map[string]core.AgentReference),
	}

	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// Membrane exposes the wrapped arena membrane.
func (s *ArenaServer) Membrane() core.ArenaMembrane { return s.membrane }

// Agents returns the registered agent references in registration order.
func (s *ArenaServer) Agents() []core.AgentReference {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	out := make([]core.AgentReference, 0, len(s.regOrder))
	for _, id := range s.regOrder {
		out = append(out, s.registry[id])
	}
	return out
}

// Agent returns one registered agent reference by ID.
func (s *ArenaServer) Agent(agentID string) (core.AgentReference, bool) {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	ref, ok := s.registry[agentID]
	return ref, ok
}

// RegisterAgent adds (or replaces) an agent reference. An empty status
// defaults to active; an invalid one is rejected.
func (s *ArenaServer) RegisterAgent(ref core.AgentReference) (core.AgentReference, error) {
	if ref.AgentID == "" {
		return core.AgentReference{}, core.NewInvalidArgument("registerAgent", "agentId", "agent id must not be empty")
	}
	if ref.Status == "" {
		ref.Status = core.AgentStatusActive
	}
	if !ref.Status.Valid() {
		return core.AgentReference{}, core.NewInvalidArgument("registerAgent", "status", "unknown status %q", ref.Status)
	}
	ref.LastActivity = time.Now().UTC()

	s.regMu.Lock()
	defer s.regMu.Unlock()
	if _, exists := s.registry[ref.AgentID]; !exists {
		s.regOrder = append(s.regOrder, ref.AgentID)
	}
	s.registry[ref.AgentID] = ref
	return ref, nil
}

// DeregisterAgent deletes an agent reference outright.
func (s *ArenaServer) DeregisterAgent(agentID string) error {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	if _, ok := s.registry[agentID]; !ok {
		return core.NewNotFound("deregisterAgent", "agent %q is not registered", agentID)
	}
	delete(s.registry, agentID)
	s.regOrder = slices.DeleteFunc(s.regOrder, func(id string) bool { return id == agentID })
	return nil
}

// SetAgentStatus applies a status transition, enforcing the legal set
// (spawning->active, active<->dormant).
func (s *ArenaServer) SetAgentStatus(agentID string, status core.AgentStatus) (core.AgentReference, error) {
	if !status.Valid() {
		return core.AgentReference{}, core.NewInvalidArgument("setAgentStatus", "status", "unknown status %q", status)
	}

	s.regMu.Lock()
	defer s.regMu.Unlock()
	ref, ok := s.registry[agentID]
	if !ok {
		return core.AgentReference{}, core.NewNotFound("setAgentStatus", "agent %q is not registered", agentID)
	}
	if !ref.Status.CanTransition(status) {
		return core.AgentReference{}, core.NewInvalidArgument("setAgentStatus", "status",
			"illegal transition %s -> %s", ref.Status, status)
	}
	ref.Status = status
	ref.LastActivity = time.Now().UTC()
	s.registry[agentID] = ref
	return ref, nil
}

// Orchestrate filters the requested agents to those registered active, then
// races the orchestration callback against the timeout. With no qualifying
// agents the callback is never invoked and the result reports failure. A
// timeout fails the call but leaves the registry untouched.
func (s *ArenaServer) Orchestrate(ctx context.Context, agentIDs []string, directive string, timeout time.Duration) (OrchestrationResult, error) {
	if timeout <= 0 {
		timeout = DefaultOrchestrateTimeout
	}

	s.regMu.RLock()
	participating := make([]string, 0, len(agentIDs))
	for _, id := range agentIDs {
		if ref, ok := s.registry[id]; ok && ref.Status == core.AgentStatusActive {
			participating = append(participating, id)
		}
	}
	s.regMu.RUnlock()

	if len(participating) == 0 {
		return OrchestrationResult{
			Success:             false,
			ParticipatingAgents: []string{},
			Responses:           map[string]string{},
			Outcome:             "No active agents available for orchestration",
		}, nil
	}

	if s.orchestrator == nil {
		return OrchestrationResult{
			Success:             false,
			ParticipatingAgents: participating,
			Responses:           map[string]string{},
			Outcome:             "Orchestration callback is not configured; directive noted but not delivered",
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callbackOutcome struct {
		responses map[string]string
		err       error
	}
	done := make(chan callbackOutcome, 1)
	go func() {
		responses, err := s.orchestrator(ctx, participating, directive)
		done <- callbackOutcome{responses: responses, err: err}
	}()

	select {
	case <-ctx.Done():
		// The caller's context going away is a cancellation, not a timeout;
		// only the deadline we set here reports as one.
		if errors.Is(ctx.Err(), context.Canceled) {
			return OrchestrationResult{}, fmt.Errorf("orchestrate: %w", ctx.Err())
		}
		return OrchestrationResult{}, core.NewTimeout("orchestrate",
			"orchestration callback exceeded %s deadline", timeout)
	case out := <-done:
		if out.err != nil {
			return OrchestrationResult{}, fmt.Errorf("orchestrate: %w", out.err)
		}

		s.regMu.Lock()
		now := time.Now().UTC()
		for _, id := range participating {
			if ref, ok := s.registry[id]; ok {
				ref.LastActivity = now
				s.registry[id] = ref
			}
		}
		s.regMu.Unlock()

		return OrchestrationResult{
			Success:             true,
			ParticipatingAgents: participating,
			Responses:           out.responses,
			Outcome:             synthesizeOutcome(participating, out.responses, directive),
		}, nil
	}
}

func synthesizeOutcome(participating []string, responses map[string]string, directive string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Orchestrated %d agent(s) on directive %q.", len(participating), directive)
	for _, id := range participating {
		if resp, ok := responses[id]; ok {
			fmt.Fprintf(&b, " %s: %s.", id, resp)
		} else {
			fmt.Fprintf(&b, " %s: no response.", id)
		}
	}
	return b.String()
}

func (s *ArenaServer) registerResources() {
	s.resources.Register("arena://state", "Arena State",
		"Full snapshot of the arena: phases, frames, lore",
		func(map[string]string) (any, error) { return s.membrane.State(), nil })

	s.resources.Register("arena://phases", "Narrative Phases",
		"Narrative phase intensity distribution and current phase",
		func(map[string]string) (any, error) {
			st := s.membrane.State()
			return map[string]any{"phases": st.Phases, "currentPhase": st.CurrentPhase}, nil
		})

	s.resources.Register("arena://frames", "Session Frames",
		"All session frames in the fork tree",
		func(map[string]string) (any, error) { return s.membrane.State().Frames, nil })

	s.resources.Register("arena://frame/{id}", "Session Frame",
		"One session frame by id",
		func(params map[string]string) (any, error) {
			frame, ok := s.membrane.State().Frames[params["id"]]
			if !ok {
				return nil, core.NewNotFound("arena://frame/"+params["id"], "unknown frame")
			}
			return frame, nil
		})

	s.resources.Register("arena://lore", "Lore",
		"Accumulated world knowledge entries",
		func(map[string]string) (any, error) { return s.membrane.State().Lore, nil })

	s.resources.Register("arena://agents", "Agent Registry",
		"Registered agent references in registration order",
		func(map[string]string) (any, error) { return s.Agents(), nil })
}

func (s *ArenaServer) registerTools() {
	s.registerFrameAndLoreTools()
	s.registerRegistryTools()
	s.registerOrchestrateTool()
	s.registerAppControlTools()
}
