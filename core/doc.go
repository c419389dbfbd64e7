// Package core provides the foundational domain types, interfaces and
// contracts used by EchoMesh. It defines the core abstractions for:
//
//   - Membranes (external owners of Agent / Arena / Relation actual state)
//   - Virtual models (the agent's inner model of itself and of its world)
//   - Layer servers (the uniform five-operation protocol surface)
//   - Developmental cycle phases and their typed state-change deltas
//   - Synchronous observer notification (Emitter)
//   - The shared error taxonomy
//
// The package intentionally keeps implementation concerns (concrete
// membranes, registries, the lifecycle coordinator, composition) out of
// scope, exposing small interfaces to enable custom backends and extensions.
package core
