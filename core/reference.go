package core

import "time"

// AgentStatus is the registration state of an orchestratable agent.
type AgentStatus string

const (
	// AgentStatusSpawning marks an agent that is being brought up and is not
	// yet eligible for orchestration.
	AgentStatusSpawning AgentStatus = "spawning"
	// AgentStatusActive marks an agent eligible for orchestration.
	AgentStatusActive AgentStatus = "active"
	// AgentStatusDormant marks a registered but inactive agent.
	AgentStatusDormant AgentStatus = "dormant"
)

// Valid reports whether s is a recognized status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusSpawning, AgentStatusActive, AgentStatusDormant:
		return true
	}
	return false
}

// CanTransition reports whether the transition s -> to is legal. The only
// legal moves are spawning->active and active<->dormant; deregistration is
// deletion, not a status.
func (s AgentStatus) CanTransition(to AgentStatus) bool {
	switch s {
	case AgentStatusSpawning:
		return to == AgentStatusActive
	case AgentStatusActive:
		return to == AgentStatusDormant
	case AgentStatusDormant:
		return to == AgentStatusActive
	}
	return false
}

// AgentReference is one entry of the Arena server's agent registry.
type AgentReference struct {
	AgentID      string      `json:"agent_id"`
	Name         string      `json:"name"`
	Status       AgentStatus `json:"status"`
	LastActivity time.Time   `json:"last_activity"`
	MCPEndpoint  string      `json:"mcp_endpoint,omitempty"`
}
