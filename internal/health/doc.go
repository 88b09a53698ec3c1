// Package health holds the liveness and readiness probes served on both
// listeners.
//
// Readiness in this service means "a content snapshot is loaded and we are
// not draining"; main combines the store's check and a ShutdownGate with All.
package health
