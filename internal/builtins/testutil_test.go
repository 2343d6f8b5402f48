package builtins

import (
	"testing"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
	"github.com/douglasjordan2/jstime/internal/modloader"
)

// newTestState wires a fresh isolate with every builtin installed and a
// require() bound to its temp-dir BaseDir, the same construction sequence
// cmd/jstime and tests/integration_test.go use.
func newTestState(t *testing.T) *isolatestate.State {
	t.Helper()
	vm := goja.New()
	loop := eventloop.New(vm)
	dir := t.TempDir()
	state := isolatestate.New(vm, loop, dir, []string{"jstime"})
	reg := Install(state)
	loader := modloader.New(state, reg)
	vm.Set("require", loader.BindRequire(dir))
	return state
}

func runScript(t *testing.T, state *isolatestate.State, script string) goja.Value {
	t.Helper()
	val, err := state.VM.RunString(script)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
	state.Loop.Run()
	return val
}
