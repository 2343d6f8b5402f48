package builtins

import (
	"strconv"
	"sync"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// jsPromise is a Promise/A+ implementation whose handlers are always run
// from the event loop's microtask checkpoint rather than as timer-grade
// tasks.
//
// Grounded on internal/modules/promise.go's Promise/NewPromise/Then/Catch
// and SetupPromise (static resolve/reject/all/race/any/allSettled), with
// one deliberate redesign: the teacher scheduled .then() reactions via
// event.Loop.ScheduleTask, the same queue timers used — under §4.4's
// stricter ordering, a promise reaction must run during the microtask
// checkpoint, strictly before any timer fires, so here it is always
// queued with state.Loop.QueueMicrotask instead.
type jsPromise struct {
	state *isolatestate.State

	mu          sync.Mutex
	settled     bool
	fulfilled   bool
	value       goja.Value
	onFulfilled []goja.Callable
	onRejected  []goja.Callable
}

func newPendingPromise(state *isolatestate.State) *jsPromise {
	return &jsPromise{state: state}
}

func newSettledPromise(state *isolatestate.State, fulfilled bool, value goja.Value) *jsPromise {
	return &jsPromise{state: state, settled: true, fulfilled: fulfilled, value: value}
}

func (p *jsPromise) resolve(value goja.Value) {
	// Resolving with a thenable adopts its eventual state (§ Promise
	// Resolution Procedure), same check Then performs on handler return
	// values.
	if then, ok := thenableOf(p.state, value); ok {
		resolveFn := func(call goja.FunctionCall) goja.Value {
			p.settle(true, call.Argument(0))
			return goja.Undefined()
		}
		rejectFn := func(call goja.FunctionCall) goja.Value {
			p.settle(false, call.Argument(0))
			return goja.Undefined()
		}
		vm := p.state.VM
		_, _ = then(value, vm.ToValue(resolveFn), vm.ToValue(rejectFn))
		return
	}
	p.settle(true, value)
}

func (p *jsPromise) reject(reason goja.Value) {
	p.settle(false, reason)
}

func (p *jsPromise) settle(fulfilled bool, value goja.Value) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.settled = true
	p.fulfilled = fulfilled
	p.value = value
	fulfilledHandlers := p.onFulfilled
	rejectedHandlers := p.onRejected
	p.onFulfilled, p.onRejected = nil, nil
	p.mu.Unlock()

	handlers := fulfilledHandlers
	if !fulfilled {
		handlers = rejectedHandlers
	}
	for _, h := range handlers {
		handler, v := h, value
		p.state.Loop.QueueMicrotask(func() {
			_, _ = handler(goja.Undefined(), v)
		})
	}
}

// then attaches reactions and returns the chained promise, queuing
// already-settled reactions immediately rather than waiting for a future
// settle() call.
func (p *jsPromise) then(onFulfilled, onRejected goja.Callable) *jsPromise {
	next := newPendingPromise(p.state)

	fulfilledReaction := func(call goja.FunctionCall) goja.Value {
		if onFulfilled == nil {
			next.resolve(call.Argument(0))
			return goja.Undefined()
		}
		result, err := onFulfilled(goja.Undefined(), call.Argument(0))
		if err != nil {
			next.reject(errorValue(p.state, err))
			return goja.Undefined()
		}
		next.resolve(result)
		return goja.Undefined()
	}
	rejectedReaction := func(call goja.FunctionCall) goja.Value {
		if onRejected == nil {
			next.reject(call.Argument(0))
			return goja.Undefined()
		}
		result, err := onRejected(goja.Undefined(), call.Argument(0))
		if err != nil {
			next.reject(errorValue(p.state, err))
			return goja.Undefined()
		}
		next.resolve(result)
		return goja.Undefined()
	}
	fulfilledCallable, _ := goja.AssertFunction(p.state.VM.ToValue(fulfilledReaction))
	rejectedCallable, _ := goja.AssertFunction(p.state.VM.ToValue(rejectedReaction))

	p.mu.Lock()
	if !p.settled {
		p.onFulfilled = append(p.onFulfilled, fulfilledCallable)
		p.onRejected = append(p.onRejected, rejectedCallable)
		p.mu.Unlock()
		return next
	}
	fulfilled, value := p.fulfilled, p.value
	p.mu.Unlock()

	reaction := rejectedCallable
	if fulfilled {
		reaction = fulfilledCallable
	}
	p.state.Loop.QueueMicrotask(func() {
		_, _ = reaction(goja.Undefined(), value)
	})
	return next
}

func errorValue(state *isolatestate.State, err error) goja.Value {
	if exc, ok := err.(*goja.Exception); ok {
		return exc.Value()
	}
	return state.VM.ToValue(err.Error())
}

func thenableOf(state *isolatestate.State, v goja.Value) (goja.Callable, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	then := obj.Get("then")
	if then == nil || goja.IsUndefined(then) {
		return nil, false
	}
	fn, ok := goja.AssertFunction(then)
	return fn, ok
}

// promiseObject wraps p as the JS-visible object with then/catch/finally,
// the shape every internal Promise-returning builtin (fetch, subtle.digest)
// also returns directly without going through the global constructor.
func promiseObject(state *isolatestate.State, p *jsPromise) *goja.Object {
	vm := state.VM
	obj := vm.NewObject()
	_ = obj.Set("then", func(call goja.FunctionCall) goja.Value {
		onF, _ := goja.AssertFunction(call.Argument(0))
		onR, _ := goja.AssertFunction(call.Argument(1))
		return promiseObject(state, p.then(onF, onR))
	})
	_ = obj.Set("catch", func(call goja.FunctionCall) goja.Value {
		onR, _ := goja.AssertFunction(call.Argument(0))
		return promiseObject(state, p.then(nil, onR))
	})
	_ = obj.Set("finally", func(call goja.FunctionCall) goja.Value {
		onFinally, ok := goja.AssertFunction(call.Argument(0))
		pass := func(call goja.FunctionCall) goja.Value {
			if ok {
				_, _ = onFinally(goja.Undefined())
			}
			return call.Argument(0)
		}
		passRejection := func(call goja.FunctionCall) goja.Value {
			if ok {
				_, _ = onFinally(goja.Undefined())
			}
			panic(vm.ToValue(call.Argument(0)))
		}
		onF, _ := goja.AssertFunction(vm.ToValue(pass))
		onR, _ := goja.AssertFunction(vm.ToValue(passRejection))
		return promiseObject(state, p.then(onF, onR))
	})
	return obj
}

// NewResolvedPromise builds a Promise-shaped JS value already fulfilled
// with value — used by builtins (subtle.digest, fetch) that must return a
// Promise without routing through the global constructor.
func NewResolvedPromise(state *isolatestate.State, value goja.Value) goja.Value {
	return promiseObject(state, newSettledPromise(state, true, value))
}

// NewRejectedPromise builds a Promise-shaped JS value already rejected
// with reason.
func NewRejectedPromise(state *isolatestate.State, reason goja.Value) goja.Value {
	return promiseObject(state, newSettledPromise(state, false, reason))
}

func installPromise(state *isolatestate.State) {
	vm := state.VM

	ctor := func(call goja.ConstructorCall) *goja.Object {
		executor, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(vm.NewTypeError("Promise executor must be a function"))
		}
		p := newPendingPromise(state)
		resolveFn := func(call goja.FunctionCall) goja.Value {
			p.resolve(call.Argument(0))
			return goja.Undefined()
		}
		rejectFn := func(call goja.FunctionCall) goja.Value {
			p.reject(call.Argument(0))
			return goja.Undefined()
		}
		if _, err := executor(goja.Undefined(), vm.ToValue(resolveFn), vm.ToValue(rejectFn)); err != nil {
			p.reject(errorValue(state, err))
		}
		return promiseObject(state, p)
	}

	ctorObj := vm.ToValue(ctor).ToObject(vm)

	_ = ctorObj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		return NewResolvedPromise(state, call.Argument(0))
	})
	_ = ctorObj.Set("reject", func(call goja.FunctionCall) goja.Value {
		return NewRejectedPromise(state, call.Argument(0))
	})
	_ = ctorObj.Set("all", func(call goja.FunctionCall) goja.Value {
		return combinator(state, call.Argument(0), combineAll)
	})
	_ = ctorObj.Set("race", func(call goja.FunctionCall) goja.Value {
		return combinator(state, call.Argument(0), combineRace)
	})
	_ = ctorObj.Set("any", func(call goja.FunctionCall) goja.Value {
		return combinator(state, call.Argument(0), combineAny)
	})
	_ = ctorObj.Set("allSettled", func(call goja.FunctionCall) goja.Value {
		return combinator(state, call.Argument(0), combineAllSettled)
	})

	vm.Set("Promise", ctorObj)
}

type combineKind int

const (
	combineAll combineKind = iota
	combineRace
	combineAny
	combineAllSettled
)

// combinator implements Promise.all/race/any/allSettled over a common
// iteration + attach-handlers skeleton, replacing the teacher's four
// separately hand-rolled (and largely duplicated) implementations.
func combinator(state *isolatestate.State, iterable goja.Value, kind combineKind) goja.Value {
	vm := state.VM
	if iterable == nil || goja.IsUndefined(iterable) {
		panic(vm.NewTypeError("Promise combinator requires an iterable"))
	}
	obj := iterable.ToObject(vm)
	lengthVal := obj.Get("length")
	if lengthVal == nil || goja.IsUndefined(lengthVal) {
		panic(vm.NewTypeError("Promise combinator requires an array-like iterable"))
	}
	length := int(lengthVal.ToInteger())

	result := newPendingPromise(state)

	if length == 0 {
		switch kind {
		case combineAll, combineAllSettled:
			result.resolve(vm.ToValue([]goja.Value{}))
		case combineRace:
			// stays pending forever, per spec
		case combineAny:
			result.reject(aggregateError(state, nil))
		}
		return promiseObject(state, result)
	}

	values := make([]goja.Value, length)
	errs := make([]goja.Value, length)
	var mu sync.Mutex
	remaining := length
	settled := false

	for i := 0; i < length; i++ {
		index := i
		item := obj.Get(strconv.Itoa(i))
		thenFn, isThenable := thenableOf(state, item)

		onFulfilled := func(call goja.FunctionCall) goja.Value {
			mu.Lock()
			defer mu.Unlock()
			switch kind {
			case combineAll:
				values[index] = call.Argument(0)
				remaining--
				if remaining == 0 {
					result.resolve(vm.ToValue(values))
				}
			case combineAllSettled:
				o := vm.NewObject()
				_ = o.Set("status", "fulfilled")
				_ = o.Set("value", call.Argument(0))
				values[index] = o
				remaining--
				if remaining == 0 {
					result.resolve(vm.ToValue(values))
				}
			case combineRace, combineAny:
				if !settled {
					settled = true
					result.resolve(call.Argument(0))
				}
			}
			return goja.Undefined()
		}

		onRejected := func(call goja.FunctionCall) goja.Value {
			mu.Lock()
			defer mu.Unlock()
			switch kind {
			case combineAll:
				if !settled {
					settled = true
					result.reject(call.Argument(0))
				}
			case combineAllSettled:
				o := vm.NewObject()
				_ = o.Set("status", "rejected")
				_ = o.Set("reason", call.Argument(0))
				values[index] = o
				remaining--
				if remaining == 0 {
					result.resolve(vm.ToValue(values))
				}
			case combineRace:
				if !settled {
					settled = true
					result.reject(call.Argument(0))
				}
			case combineAny:
				errs[index] = call.Argument(0)
				remaining--
				if remaining == 0 && !settled {
					result.reject(aggregateError(state, errs))
				}
			}
			return goja.Undefined()
		}

		onF, _ := goja.AssertFunction(vm.ToValue(onFulfilled))
		onR, _ := goja.AssertFunction(vm.ToValue(onRejected))

		if !isThenable {
			_, _ = onF(goja.Undefined(), item)
			continue
		}
		_, _ = thenFn(item, vm.ToValue(onFulfilled), vm.ToValue(onRejected))
		_ = onR
	}

	return promiseObject(state, result)
}

func aggregateError(state *isolatestate.State, errs []goja.Value) goja.Value {
	vm := state.VM
	obj := vm.NewObject()
	_ = obj.Set("name", "AggregateError")
	_ = obj.Set("message", "All promises were rejected")
	_ = obj.Set("errors", vm.ToValue(errs))
	return obj
}
