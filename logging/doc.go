// Package logging provides a minimal logging interface and adapters for EchoMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the layer servers and the lifecycle coordinator use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - EchoMeshLogger with contextual helpers and domain-specific methods
//     for tool calls, phase executions and full cycles
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
