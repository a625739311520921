package lifecycle

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Hooks is a named teardown registry. The owner of a sink registers its close
// function here on successful start; the host process runs the registry once
// during graceful termination, guaranteeing close runs even if the caller
// never invokes it explicitly.
type Hooks struct {
	mu    sync.Mutex
	names map[string]int
	funcs []namedHook
	done  bool
}

type namedHook struct {
	name string
	fn   func() error
}

// NewHooks creates an empty registry.
func NewHooks() *Hooks {
	return &Hooks{names: make(map[string]int)}
}

// Register adds or replaces the teardown for name. Re-registering after a
// re-initialization replaces the stale hook rather than stacking a second
// close of the same instance.
func (h *Hooks) Register(name string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i, ok := h.names[name]; ok {
		h.funcs[i].fn = fn
		return
	}
	h.names[name] = len(h.funcs)
	h.funcs = append(h.funcs, namedHook{name: name, fn: fn})
}

// Run executes all registered hooks in reverse registration order, exactly
// once. Hook failures are logged and do not stop the remaining hooks.
func (h *Hooks) Run(logger *logrus.Logger) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	funcs := make([]namedHook, len(h.funcs))
	copy(funcs, h.funcs)
	h.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i].fn(); err != nil {
			logger.WithError(err).WithField("hook", funcs[i].name).Error("Shutdown hook failed")
		}
	}
}
