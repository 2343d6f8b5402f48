// Package isolatestate holds the per-isolate state described in §3 of the
// spec: the single goja.Runtime, the module map, the source cache, the
// event loop, the object pools, the active UDP socket table, and the
// process argv — everything a builtin needs that isn't passed to it
// directly as a function argument.
//
// Grounded on the teacher's internal/runtime.Runtime (which bundled a VM,
// an event loop, and a module registry in one struct) generalized to the
// richer module-map/status-machine and socket-table requirements of §4.6
// and §4.8.
package isolatestate

import (
	"io"
	"sync"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/objpool"
)

// ModuleStatus is the module record's status machine (§3, §4.6):
// uninstantiated -> instantiated -> evaluated, or -> errored from any state.
type ModuleStatus int

const (
	Uninstantiated ModuleStatus = iota
	Instantiated
	Evaluated
	Errored
)

func (s ModuleStatus) String() string {
	switch s {
	case Uninstantiated:
		return "uninstantiated"
	case Instantiated:
		return "instantiated"
	case Evaluated:
		return "evaluated"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// ModuleKind identifies how a module's source was parsed (§4.6).
type ModuleKind int

const (
	KindSource ModuleKind = iota
	KindJSON
	KindWasm
)

// Module is a single entry in the isolate's module map, keyed by resolved
// specifier.
type Module struct {
	Specifier string
	Kind      ModuleKind
	Status    ModuleStatus
	Namespace *goja.Object // set when the record is registered, before evaluation
	Err       error        // populated once Status == Errored; re-raised verbatim on re-import
}

// State is the isolate's full mutable state, shared by the script
// executor, the module loader, and every builtin.
type State struct {
	VM   *goja.Runtime
	Loop *eventloop.Loop

	// BaseDir is the directory relative specifiers resolve against for the
	// entry script; each module's own directory takes over for specifiers
	// it imports.
	BaseDir string

	// Argv is the process.argv the runtime was invoked with: [interpreter
	// path, script path, ...script args].
	Argv []string

	HeaderPairs   *objpool.Pool[[]objpool.HeaderPair]
	PendingTimers *objpool.Pool[[]objpool.PendingTimerDescriptor]

	mu          sync.Mutex
	modules     map[string]*Module
	sourceCache map[string][]byte
	sockets     map[uint64]io.Closer
	nextSocket  uint64
}

// New constructs a fresh isolate state bound to vm and loop.
func New(vm *goja.Runtime, loop *eventloop.Loop, baseDir string, argv []string) *State {
	return &State{
		VM:            vm,
		Loop:          loop,
		BaseDir:       baseDir,
		Argv:          argv,
		HeaderPairs:   objpool.NewHeaderPairPool(64),
		PendingTimers: objpool.NewPendingTimerPool(64),
		modules:       make(map[string]*Module),
		sourceCache:   make(map[string][]byte),
		sockets:       make(map[uint64]io.Closer),
	}
}

// GetModule returns the module record registered under the resolved
// specifier, if any.
func (s *State) GetModule(specifier string) (*Module, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[specifier]
	return m, ok
}

// PutModule inserts or replaces the module record for specifier.
func (s *State) PutModule(m *Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[m.Specifier] = m
}

// CachedSource returns the raw bytes previously stored for specifier.
func (s *State) CachedSource(specifier string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.sourceCache[specifier]
	return b, ok
}

// CacheSource stores the raw bytes read for specifier, so re-importing the
// same specifier never touches disk twice.
func (s *State) CacheSource(specifier string, src []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceCache[specifier] = src
}

// AddSocket registers an active UDP socket and returns its id.
func (s *State) AddSocket(c io.Closer) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSocket++
	id := s.nextSocket
	s.sockets[id] = c
	return id
}

// RemoveSocket closes and forgets the socket named by id. Closing an
// already-removed or unknown id is a no-op.
func (s *State) RemoveSocket(id uint64) {
	s.mu.Lock()
	c, ok := s.sockets[id]
	if ok {
		delete(s.sockets, id)
	}
	s.mu.Unlock()
	if ok {
		_ = c.Close()
	}
}

// Sockets returns a snapshot of the active socket ids, for shutdown.
func (s *State) Sockets() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(s.sockets))
	for id := range s.sockets {
		ids = append(ids, id)
	}
	return ids
}
