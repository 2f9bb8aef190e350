package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ErrReentrantCall is returned when an engine entry point is invoked again
// before the outer invocation has returned.
var ErrReentrantCall = errors.New("reentrant call")

// ReentrancyGuard is a call-scoped lock held by an engine entry point for its
// duration. The zero value is ready to use.
type ReentrancyGuard struct {
	entered bool
}

// Enter acquires the guard or fails with ErrReentrantCall.
func (g *ReentrancyGuard) Enter() error {
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

// Exit releases the guard. It must be deferred right after a successful Enter.
func (g *ReentrancyGuard) Exit() { g.entered = false }

// Entered reports whether the guard is currently held.
func (g *ReentrancyGuard) Entered() bool { return g.entered }
