package health

import (
	"context"
	"errors"
	"sync"
)

// Probe reports nil when healthy and a reason otherwise.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := errors.New(reason)
	return func(context.Context) error { return err }
}

// All passes when every non-nil probe passes and reports the first failure.
func All(probes ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range probes {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// ShutdownGate fails readiness once Set is called. The zero value is open.
type ShutdownGate struct {
	mu     sync.RWMutex
	closed bool
	reason string
}

// Set closes the gate. An empty reason reads as "draining".
func (g *ShutdownGate) Set(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	g.closed, g.reason = true, reason
	g.mu.Unlock()
}

// Clear reopens the gate.
func (g *ShutdownGate) Clear() {
	g.mu.Lock()
	g.closed, g.reason = false, ""
	g.mu.Unlock()
}

// Probe returns a readiness probe bound to the gate.
func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		g.mu.RLock()
		defer g.mu.RUnlock()
		if g.closed {
			return errors.New(g.reason)
		}
		return nil
	}
}
