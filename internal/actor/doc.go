// ABOUTME: Package documentation for the agent actor runtime
// ABOUTME: One goroutine per task, commands at loop boundaries, checkpointed state

// Package actor runs one agent per task as a single goroutine owning all
// of that task's state. External commands (pause, resume, stop) arrive
// over a channel and are observed only between actions; status queries
// read a consistent snapshot without touching the loop.
//
// The Registry enforces at most one live actor per task, evicts idle
// paused actors to the store, and rehydrates them when a command or
// status query arrives later.
package actor
