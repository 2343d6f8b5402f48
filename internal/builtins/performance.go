package builtins

import (
	"time"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installPerformance wires the global performance.now()/timeOrigin, grounded
// on original_source/core/src/builtins/performance_impl.rs: timeOrigin is
// captured once at isolate construction, now() reports milliseconds elapsed
// since then.
func installPerformance(state *isolatestate.State) {
	vm := state.VM
	origin := time.Now()

	obj := vm.NewObject()
	_ = obj.Set("timeOrigin", float64(origin.UnixNano())/1e6)
	_ = obj.Set("now", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(float64(time.Since(origin).Microseconds()) / 1000.0)
	})
	vm.Set("performance", obj)
}
