// Package builtins wires every global and require()-able built-in into an
// isolate: console, timers, process, path, Buffer, crypto, URL,
// EventTarget, structuredClone, fetch, dgram, performance, and the
// Promise/queueMicrotask machinery the event loop's microtask checkpoint
// drains. Each concern lives in its own file and exposes a single
// installXxx(state) entry point (installXxx(state, reg) for groups that are
// also require()-able), following the teacher's one-module-
// per-file layout from internal/modules/*.go.
package builtins

import (
	"sync"

	"github.com/dop251/goja"
)

// Registry resolves bare/"node:"-prefixed require() specifiers to a
// builtin's export value. It implements modloader.BuiltinProvider without
// importing that package, the same inversion the teacher's
// internal/modules.Registry used for require() resolution.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]goja.Value
}

func newRegistry() *Registry {
	return &Registry{entries: make(map[string]goja.Value)}
}

func (r *Registry) register(name string, v goja.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = v
}

// Lookup returns the export registered under name, if any.
func (r *Registry) Lookup(name string) (goja.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	return v, ok
}
