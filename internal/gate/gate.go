// Package gate decides whether a console session may accept new input.
//
// A Gate is re-evaluated on every submission attempt, so implementations must
// be cheap and free of side effects.
package gate

import (
	"sync/atomic"
)

// Gate reports whether submission is currently permitted.
type Gate interface {
	CanExecute() bool
}

// Liveness is implemented by execution backends that can terminate.
type Liveness interface {
	IsRunning() bool
}

// Func adapts a plain predicate to a Gate.
type Func func() bool

// CanExecute implements Gate.
func (f Func) CanExecute() bool {
	if f == nil {
		return false
	}
	return f()
}

type alwaysEnabled struct{}

func (alwaysEnabled) CanExecute() bool { return true }

// AlwaysEnabled returns a Gate that never blocks submission.
func AlwaysEnabled() Gate {
	return alwaysEnabled{}
}

// LivenessGate is open while the attached backend reports itself running.
// Once the backend has been observed as stopped the gate stays closed.
type LivenessGate struct {
	backend    Liveness
	terminated atomic.Bool
}

// BackendLiveness returns a gate tracking b. A nil backend yields a gate that
// is permanently closed.
func BackendLiveness(b Liveness) *LivenessGate {
	g := &LivenessGate{backend: b}
	if b == nil {
		g.terminated.Store(true)
	}
	return g
}

// CanExecute implements Gate.
func (g *LivenessGate) CanExecute() bool {
	if g.terminated.Load() {
		return false
	}
	if !g.backend.IsRunning() {
		g.terminated.Store(true)
		return false
	}
	return true
}

// Terminated reports whether the backend has been observed as stopped.
func (g *LivenessGate) Terminated() bool {
	return g.terminated.Load()
}

type allGate []Gate

func (a allGate) CanExecute() bool {
	for _, g := range a {
		if g != nil && !g.CanExecute() {
			return false
		}
	}
	return true
}

// All returns a Gate that is open only when every non-nil gate is open.
// Evaluation short-circuits in argument order.
func All(gates ...Gate) Gate {
	cp := make(allGate, 0, len(gates))
	for _, g := range gates {
		if g != nil {
			cp = append(cp, g)
		}
	}
	return cp
}

var (
	_ Gate = Func(nil)
	_ Gate = (*LivenessGate)(nil)
	_ Gate = allGate(nil)
)
