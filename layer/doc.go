// Package layer implements the three AAR layer servers. Each server wraps
// one membrane plus its protocol registries behind the uniform five-operation
// surface defined by core.LayerServer:
//
//   - ArenaServer additionally owns the agent-reference registry, the
//     optional orchestration callback and the application-control hooks.
//   - AgentServer additionally owns the virtual self-model (Vi) and the
//     world-model (Vo) nested inside it.
//   - RelationServer additionally owns the bounded window of recent
//     cognitive-flow events.
//
// Servers are independently stateful: registering a resource, tool or prompt
// on one layer never affects another.
package layer
