package scriptexec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

func newState(t *testing.T) *isolatestate.State {
	t.Helper()
	vm := goja.New()
	loop := eventloop.New(vm)
	return isolatestate.New(vm, loop, t.TempDir(), []string{"jstime"})
}

func TestTranspileLowersArrowFunctionsAndEmptySourceIsValid(t *testing.T) {
	out, err := Transpile("const add = (a, b) => a + b;", "inline.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty transpiled output")
	}

	if _, err := Transpile("", "empty.js"); err != nil {
		t.Fatalf("expected empty source to transpile cleanly, got %v", err)
	}
}

func TestRunExecutesScriptAndDrainsEventLoop(t *testing.T) {
	state := newState(t)
	var observed goja.Value
	state.VM.Set("record", func(v goja.Value) { observed = v })
	state.VM.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, _ := goja.AssertFunction(call.Argument(0))
		state.Loop.AddTimer(fn, nil, call.Argument(1).ToFloat(), false)
		return goja.Undefined()
	})

	err := Run(state, `setTimeout(() => record("done"), 0);`, "test.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if observed == nil || observed.String() != "done" {
		t.Fatalf("expected the timer callback to run before Run returned, got %v", observed)
	}
}

func TestRunFileReadsFromDisk(t *testing.T) {
	state := newState(t)
	path := filepath.Join(t.TempDir(), "script.js")
	if err := os.WriteFile(path, []byte(`globalThis.ran = true;`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if err := RunFile(state, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ran := state.VM.Get("ran")
	if ran == nil || !ran.ToBoolean() {
		t.Fatalf("expected global ran=true after executing file")
	}
}

func TestRunReturnsFormattedErrorOnUncaughtThrow(t *testing.T) {
	state := newState(t)
	err := Run(state, `throw new TypeError("boom");`, "test.js")
	if err == nil {
		t.Fatalf("expected an error from an uncaught throw")
	}
}

func TestRunREPLExpressionReturnsValueAndTicksLoop(t *testing.T) {
	state := newState(t)
	val, err := RunREPLExpression(state, "1 + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val.ToInteger() != 2 {
		t.Fatalf("expected 2, got %v", val)
	}
}
