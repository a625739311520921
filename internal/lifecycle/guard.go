package lifecycle

import "sync"

// State is the lifecycle position of one sink instance.
type State int32

const (
	StateUninitialized State = iota
	StateStarted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Guard serializes a sink's state transitions so that Init, Consume and Close
// never observe an inconsistent handle. Consume runs under the read lock and
// only while Started; transitions (including handle assignment and release)
// run under the write lock, so a consume can never proceed on a handle
// mid-close.
type Guard struct {
	mu    sync.RWMutex
	state State
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Started reports whether the guard is in the Started state.
func (g *Guard) Started() bool {
	return g.State() == StateStarted
}

// WhileStarted runs fn under the read lock if the state is Started. The
// boolean reports whether fn ran; a non-started guard is a no-op, per the
// consume contract.
func (g *Guard) WhileStarted(fn func() error) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state != StateStarted {
		return false, nil
	}
	return true, fn()
}

// Transition runs fn under the write lock and moves to the state it returns.
// fn receives the current state and typically assigns or releases the backend
// handle while holding the lock.
func (g *Guard) Transition(fn func(cur State) State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = fn(g.state)
}
