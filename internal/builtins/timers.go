package builtins

import (
	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installTimers wires setTimeout/setInterval/clearTimeout/clearInterval
// and queueMicrotask onto the isolate's event loop.
//
// Grounded on internal/modules/timers.go's Export/setTimeout/setInterval
// shape, replacing its per-timer goroutine-plus-channel scheduling (which
// called back into the goja VM from a background goroutine, unsafe for a
// single-threaded VM under concurrent load) with eventloop.Loop's timer
// table, so every callback still only ever runs on the loop's own
// synchronous iteration.
func installTimers(state *isolatestate.State) {
	vm := state.VM
	loop := state.Loop

	schedule := func(name string, interval bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			binding.CheckArgCount(vm, name, call, 1)
			fn := binding.AsFunctionOrThrow(vm, call.Arguments[0], "callback")
			var delay float64
			if len(call.Arguments) > 1 {
				delay = call.Arguments[1].ToFloat()
			}
			var extra []goja.Value
			if len(call.Arguments) > 2 {
				extra = call.Arguments[2:]
			}
			id := loop.AddTimer(fn, extra, delay, interval)
			return vm.ToValue(uint64(id))
		}
	}

	clear := func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		loop.ClearTimer(eventloop.ID(call.Arguments[0].ToInteger()))
		return goja.Undefined()
	}

	vm.Set("setTimeout", schedule("setTimeout", false))
	vm.Set("setInterval", schedule("setInterval", true))
	vm.Set("clearTimeout", clear)
	vm.Set("clearInterval", clear)

	vm.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "queueMicrotask", call, 1)
		fn := binding.AsFunctionOrThrow(vm, call.Arguments[0], "callback")
		loop.QueueMicrotask(func() {
			_, _ = fn(goja.Undefined())
		})
		return goja.Undefined()
	})
}
