package eventloop

import (
	"testing"
	"time"

	"github.com/dop251/goja"
)

func callableLogger(t *testing.T, vm *goja.Runtime, log *[]string, label string) goja.Callable {
	t.Helper()
	fn, ok := goja.AssertFunction(vm.ToValue(func(call goja.FunctionCall) goja.Value {
		*log = append(*log, label)
		return goja.Undefined()
	}))
	if !ok {
		t.Fatalf("expected a callable value")
	}
	return fn
}

func TestTimerOrderingByDelayNotInsertionOrder(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	var log []string

	l.AddTimer(callableLogger(t, vm, &log, "50ms"), nil, 50, false)
	l.AddTimer(callableLogger(t, vm, &log, "20ms"), nil, 20, false)
	l.AddTimer(callableLogger(t, vm, &log, "10ms"), nil, 10, false)

	l.Run()

	want := []string{"10ms", "20ms", "50ms"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, log)
		}
	}
}

func TestMicrotasksRunBeforeDueTimers(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	var log []string

	l.AddTimer(callableLogger(t, vm, &log, "t"), nil, 0, false)
	l.QueueMicrotask(func() { log = append(log, "m") })
	log = append(log, "s")

	l.Run()

	want := []string{"s", "m", "t"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, log)
		}
	}
}

func TestClearTimerBeforeItFiresPreventsInvocation(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	var log []string

	id := l.AddTimer(callableLogger(t, vm, &log, "fired"), nil, 1_000_000, false)
	l.ClearTimer(id)

	l.Run()

	if len(log) != 0 {
		t.Fatalf("expected cleared timer to never fire, got %v", log)
	}
}

func TestClearTimerUnknownIDIsNoop(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	l.ClearTimer(ID(9999))
	l.ClearTimer(0)
}

func TestIntervalRefiresUntilCleared(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	var id ID
	count := 0
	fn, _ := goja.AssertFunction(vm.ToValue(func(call goja.FunctionCall) goja.Value {
		count++
		if count >= 3 {
			l.ClearTimer(id)
		}
		return goja.Undefined()
	}))
	id = l.AddTimer(fn, nil, 1, true)

	l.Run()

	if count != 3 {
		t.Fatalf("expected interval to fire exactly 3 times, got %d", count)
	}
}

func TestTimerIDsAreMonotonicAndNeverReused(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	noop, _ := goja.AssertFunction(vm.ToValue(func(call goja.FunctionCall) goja.Value { return goja.Undefined() }))

	a := l.AddTimer(noop, nil, 0, false)
	l.ClearTimer(a)
	b := l.AddTimer(noop, nil, 0, false)

	if b <= a {
		t.Fatalf("expected id %d to be greater than previously issued id %d", b, a)
	}
}

func TestTickPerformsExactlyOneIteration(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	var log []string
	l.AddTimer(callableLogger(t, vm, &log, "a"), nil, 0, false)
	l.AddTimer(callableLogger(t, vm, &log, "b"), nil, 0, false)

	l.Tick()

	if len(log) != 2 {
		t.Fatalf("expected both zero-delay timers to fire in a single tick, got %v", log)
	}
}

type fakePoller struct {
	refd    bool
	polled  int
}

func (f *fakePoller) PollOnce(vm *goja.Runtime) { f.polled++ }
func (f *fakePoller) HasRefdWork() bool         { return f.refd }

func TestRunKeepsGoingWhileAPollerHasRefdWork(t *testing.T) {
	vm := goja.New()
	l := New(vm)
	p := &fakePoller{refd: true}
	l.RegisterPoller(p)

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	p.refd = false

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return once the poller stopped reporting refd work")
	}
	if p.polled == 0 {
		t.Fatalf("expected the poller to be polled at least once")
	}
}
