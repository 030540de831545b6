// ABOUTME: Package documentation for the orchestrator front door
// ABOUTME: HTTP command surface, discovery metadata, and metrics

// Package orchestrator is the network-facing surface of the agent
// execution service. It authenticates lifecycle commands, routes them to
// the actor registry, serves the OAuth discovery document, and exposes
// health and Prometheus metrics endpoints.
package orchestrator
