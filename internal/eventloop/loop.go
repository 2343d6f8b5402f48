// Package eventloop implements the runtime's cooperative, single-threaded
// event loop (§4.4): a timer table, a microtask queue, and an I/O poll step,
// driven either to exhaustion (Run, used for file/module execution) or for
// exactly one non-blocking pass (Tick, used by the REPL between prompts).
//
// The phase ordering inside one iteration is taken verbatim from
// original_source/core/src/event_loop.rs: drain pending timer additions,
// perform a microtask checkpoint, collect the timers ready to fire into a
// single batch, invoke them in fire-time/insertion order, reschedule
// intervals and drop one-shots, process pending clears, drain pending
// additions again, then poll I/O.
package eventloop

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// ID is a timer identifier. IDs are assigned from a monotonically
// increasing counter and are never reused, even after the timer they named
// has been cleared.
type ID uint64

type timer struct {
	id       ID
	callback goja.Callable
	args     []goja.Value
	fireAt   time.Time
	interval time.Duration // repeat period; zero for one-shot timeouts
	repeat   bool          // true for interval timers, including zero-delay ones
	ref      bool
}

type pendingAdd struct {
	id       ID
	callback goja.Callable
	args     []goja.Value
	delay    time.Duration
	interval bool
}

// IOPoller lets a builtin group (dgram's UDP sockets) participate in the
// loop's per-iteration poll step without eventloop importing that package.
type IOPoller interface {
	// PollOnce performs one non-blocking pass over whatever I/O the poller
	// owns, invoking any JS callbacks that have data ready.
	PollOnce(vm *goja.Runtime)
	// HasRefdWork reports whether any ref'd resource the poller owns should
	// keep a blocking Run alive.
	HasRefdWork() bool
}

// Loop is the event loop for a single isolate. It is not safe for use by
// more than one goroutine at a time except for the thread-safe scheduling
// entry points (AddTimer, ClearTimer, QueueMicrotask), which builtins may
// call from background goroutines performing blocking I/O.
type Loop struct {
	vm *goja.Runtime

	mu           sync.Mutex
	nextID       ID
	timers       map[ID]*timer
	pendingAdd   []pendingAdd
	pendingClear []ID
	microtasks   []func()
	pollers      []IOPoller
	pendingAsync int
}

// New creates a Loop bound to vm.
func New(vm *goja.Runtime) *Loop {
	return &Loop{
		vm:     vm,
		timers: make(map[ID]*timer),
	}
}

// RegisterPoller adds an IOPoller that participates in step 9 of every
// iteration (dgram sockets).
func (l *Loop) RegisterPoller(p IOPoller) {
	l.mu.Lock()
	l.pollers = append(l.pollers, p)
	l.mu.Unlock()
}

// AddTimer queues a new timer for insertion at the next pending-add drain
// and returns its id immediately, as setTimeout/setInterval require.
// Negative or non-finite delays clamp to zero.
func (l *Loop) AddTimer(callback goja.Callable, args []goja.Value, delayMS float64, interval bool) ID {
	if !(delayMS > 0) || isNonFinite(delayMS) {
		delayMS = 0
	}
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.pendingAdd = append(l.pendingAdd, pendingAdd{
		id:       id,
		callback: callback,
		args:     args,
		delay:    time.Duration(delayMS * float64(time.Millisecond)),
		interval: interval,
	})
	l.mu.Unlock()
	return id
}

func isNonFinite(f float64) bool {
	return f != f || f > 1e18 || f < -1e18
}

// ClearTimer cancels the timer named by id. An unknown, zero, or already-
// fired id is a no-op; ClearTimer never throws or panics.
func (l *Loop) ClearTimer(id ID) {
	if id == 0 {
		return
	}
	l.mu.Lock()
	delete(l.timers, id)
	for i, p := range l.pendingAdd {
		if p.id == id {
			l.pendingAdd = append(l.pendingAdd[:i], l.pendingAdd[i+1:]...)
			break
		}
	}
	l.pendingClear = append(l.pendingClear, id)
	l.mu.Unlock()
}

// UnrefTimer marks id as not keeping the loop alive. Unknown ids are a
// no-op.
func (l *Loop) UnrefTimer(id ID) {
	l.mu.Lock()
	if t, ok := l.timers[id]; ok {
		t.ref = false
	}
	l.mu.Unlock()
}

// RefTimer marks id as keeping the loop alive (the default).
func (l *Loop) RefTimer(id ID) {
	l.mu.Lock()
	if t, ok := l.timers[id]; ok {
		t.ref = true
	}
	l.mu.Unlock()
}

// QueueMicrotask enqueues fn to run during the next microtask checkpoint,
// ahead of any timer whose fire-at is already due.
func (l *Loop) QueueMicrotask(fn func()) {
	l.mu.Lock()
	l.microtasks = append(l.microtasks, fn)
	l.mu.Unlock()
}

// BeginAsyncWork marks one unit of off-loop work (a background goroutine
// performing blocking I/O for fs/fetch) as keeping a blocking Run alive.
// The caller must invoke the returned func exactly once, normally via
// defer, when the work completes and its result has been handed to
// QueueMicrotask.
func (l *Loop) BeginAsyncWork() func() {
	l.mu.Lock()
	l.pendingAsync++
	l.mu.Unlock()
	var done bool
	return func() {
		if done {
			return
		}
		done = true
		l.mu.Lock()
		l.pendingAsync--
		l.mu.Unlock()
	}
}

// HasPending reports whether the loop has any timer, pending addition, or
// queued microtask outstanding, regardless of ref state — used to decide whether draining
// the loop at all is worthwhile.
func (l *Loop) HasPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers) > 0 || len(l.pendingAdd) > 0 || len(l.microtasks) > 0
}

func (l *Loop) hasRefdWork() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingAsync > 0 || len(l.microtasks) > 0 {
		return true
	}
	for _, t := range l.timers {
		if t.ref {
			return true
		}
	}
	for _, p := range l.pollers {
		if p.HasRefdWork() {
			return true
		}
	}
	return false
}

// Run drives the loop to exhaustion: it iterates until no ref'd timer or
// socket, in-flight async work, or queued microtask remains, sleeping between iterations until the next timer is due
// (bounded so active sockets are still polled promptly).
func (l *Loop) Run() {
	for {
		l.iterate()
		if !l.hasRefdWork() {
			return
		}
		time.Sleep(l.sleepDuration())
	}
}

// Tick performs exactly one non-blocking iteration and returns — used by
// the REPL between user inputs so timers and microtasks can progress
// without blocking on input.
func (l *Loop) Tick() {
	l.iterate()
}

func (l *Loop) sleepDuration() time.Duration {
	l.mu.Lock()
	var earliest time.Time
	have := false
	for _, t := range l.timers {
		if !have || t.fireAt.Before(earliest) {
			earliest, have = t.fireAt, true
		}
	}
	bounded := l.pendingAsync > 0
	for _, p := range l.pollers {
		if p.HasRefdWork() {
			bounded = true
			break
		}
	}
	l.mu.Unlock()

	const ioPollInterval = 10 * time.Millisecond
	if !have {
		return ioPollInterval
	}
	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	if bounded && d > ioPollInterval {
		d = ioPollInterval
	}
	return d
}

// iterate runs one full pass of steps 1-9 from §4.4.
func (l *Loop) iterate() {
	l.drainPendingAdd()  // step 1
	l.drainMicrotasks()  // step 2
	batch := l.collectReady() // step 3
	for _, t := range batch {
		l.invoke(t) // step 4
	}
	l.rescheduleAndSweep(batch) // steps 5-6
	l.drainPendingClear()       // step 7
	l.drainPendingAdd()         // step 8
	l.pollIO()                  // step 9
}

func (l *Loop) drainPendingAdd() {
	l.mu.Lock()
	pending := l.pendingAdd
	l.pendingAdd = nil
	l.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	now := time.Now()
	l.mu.Lock()
	for _, p := range pending {
		t := &timer{
			id:       p.id,
			callback: p.callback,
			args:     p.args,
			fireAt:   now.Add(p.delay),
			ref:      true,
		}
		if p.interval {
			t.interval = p.delay
			t.repeat = true
		}
		l.timers[p.id] = t
	}
	l.mu.Unlock()
}

func (l *Loop) drainMicrotasks() {
	for {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		l.mu.Unlock()
		func() {
			defer recoverAndLog()
			fn()
		}()
	}
}

func (l *Loop) collectReady() []*timer {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	var ready []*timer
	for _, t := range l.timers {
		if !t.fireAt.After(now) {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].fireAt.Equal(ready[j].fireAt) {
			return ready[i].fireAt.Before(ready[j].fireAt)
		}
		return ready[i].id < ready[j].id
	})
	return ready
}

func (l *Loop) invoke(t *timer) {
	defer recoverAndLog()
	_, _ = t.callback(goja.Undefined(), t.args...)
}

func (l *Loop) rescheduleAndSweep(batch []*timer) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range batch {
		if t.repeat {
			t.fireAt = now.Add(t.interval)
			continue
		}
		delete(l.timers, t.id)
	}
}

func (l *Loop) drainPendingClear() {
	l.mu.Lock()
	ids := l.pendingClear
	l.pendingClear = nil
	l.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	l.mu.Lock()
	for _, id := range ids {
		delete(l.timers, id)
	}
	l.mu.Unlock()
}

func (l *Loop) pollIO() {
	l.mu.Lock()
	pollers := append([]IOPoller(nil), l.pollers...)
	l.mu.Unlock()
	for _, p := range pollers {
		func() {
			defer recoverAndLog()
			p.PollOnce(l.vm)
		}()
	}
}

func recoverAndLog() {
	if r := recover(); r != nil {
		if exc, ok := r.(*goja.Exception); ok {
			fmt.Fprintln(os.Stderr, FormatException(exc))
			return
		}
		fmt.Fprintf(os.Stderr, "Uncaught: %v\n", r)
	}
}

// FormatException renders a goja.Exception the way uncaught top-level
// errors are reported (§7): the thrown value's .stack when it has one,
// falling back to its plain message.
func FormatException(exc *goja.Exception) string {
	val := exc.Value()
	if obj, ok := val.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) {
			return stack.String()
		}
	}
	return exc.Error()
}
