// Package objpool implements a generic capacity-bounded free list used by
// hot-path builtins (header vectors, pending-timer descriptors) to avoid
// allocating a fresh slice on every call.
//
// No third-party free-list/sync.Pool-style library appears anywhere in the
// retrieved example corpus, so this is built directly on the standard
// library — see DESIGN.md for the grounding note.
package objpool

import "sync"

// Pool is a capacity-bounded free list of *T. Get returns a previously
// stored value or a freshly constructed one; Put returns a value to the
// pool unless it is already at capacity, in which case the value is
// dropped (left for the garbage collector).
type Pool[T any] struct {
	mu       sync.Mutex
	items    []*T
	max      int
	reset    func(*T)
	newValue func() *T
}

// New creates a pool bounded to max items. newValue constructs a fresh *T
// when the pool is empty; reset (optional, may be nil) clears a *T's
// contents before it is handed back out by Get.
func New[T any](max int, newValue func() *T, reset func(*T)) *Pool[T] {
	if max < 0 {
		max = 0
	}
	return &Pool[T]{
		max:      max,
		newValue: newValue,
		reset:    reset,
	}
}

// Get returns a pooled *T, constructing one via the pool's factory if the
// free list is empty.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	n := len(p.items)
	if n == 0 {
		p.mu.Unlock()
		return p.newValue()
	}
	v := p.items[n-1]
	p.items = p.items[:n-1]
	p.mu.Unlock()
	if p.reset != nil {
		p.reset(v)
	}
	return v
}

// Put returns v to the pool if it is below its configured capacity;
// otherwise v is dropped.
func (p *Pool[T]) Put(v *T) {
	if v == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) >= p.max {
		return
	}
	p.items = append(p.items, v)
}

// Len reports the number of items currently held by the free list.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// HeaderPair is a single (name, value) pair, pooled in vectors by the
// fetch/Headers builtin whenever request headers or a Headers object are
// built from JS input; response headers are not staged through the pool.
type HeaderPair struct {
	Name  string
	Value string
}

// NewHeaderPairPool returns a pool of reusable []HeaderPair-backing slices,
// capped at max retained vectors.
func NewHeaderPairPool(max int) *Pool[[]HeaderPair] {
	return New(max, func() *[]HeaderPair {
		s := make([]HeaderPair, 0, 8)
		return &s
	}, func(s *[]HeaderPair) {
		*s = (*s)[:0]
	})
}

// PendingTimerDescriptor mirrors the spec's Pending Timer entity — a timer
// insertion queued while a callback batch is executing.
type PendingTimerDescriptor struct {
	ID       uint64
	Kind     string // "timeout" | "interval"
	DelayMS  int64
	Args     []any
}

// NewPendingTimerPool returns a pool of reusable []PendingTimerDescriptor
// backing slices, capped at max retained vectors.
func NewPendingTimerPool(max int) *Pool[[]PendingTimerDescriptor] {
	return New(max, func() *[]PendingTimerDescriptor {
		s := make([]PendingTimerDescriptor, 0, 8)
		return &s
	}, func(s *[]PendingTimerDescriptor) {
		*s = (*s)[:0]
	})
}
