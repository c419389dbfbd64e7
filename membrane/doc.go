// Package membrane provides in-memory implementations of the three AAR
// membranes defined in core. They are mutex-guarded, return deep-copied
// snapshots from every accessor and are best suited for single-process
// deployments, tests and demos. Durable backends can replace them by
// implementing the core membrane interfaces.
package membrane
