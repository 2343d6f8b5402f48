package tests

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/builtins"
	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
	"github.com/douglasjordan2/jstime/internal/modloader"
	"github.com/douglasjordan2/jstime/internal/scriptexec"
)

// newRuntime wires a full isolate the way cmd/jstime does: builtins, then
// a require() bound to baseDir, grounded on the teacher's integration test
// having always run full-stack (runtime.New() + rt.Execute), generalized
// to the new isolatestate/eventloop/builtins/modloader split.
func newRuntime(t *testing.T, baseDir string) *isolatestate.State {
	t.Helper()
	vm := goja.New()
	loop := eventloop.New(vm)
	state := isolatestate.New(vm, loop, baseDir, []string{"jstime", "integration_test.js"})
	reg := builtins.Install(state)
	loader := modloader.New(state, reg)
	vm.Set("require", loader.BindRequire(baseDir))
	return state
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// TestCompleteJavaScriptProgram exercises console, timers, the module
// system (require of path/crypto), and Promise microtask ordering in
// one script, the same "realistic multi-feature program" shape the
// teacher's integration test used.
func TestCompleteJavaScriptProgram(t *testing.T) {
	dir := t.TempDir()
	state := newRuntime(t, dir)

	script := `
		console.log('=== jstime integration test ===');
		console.time('total-execution');

		function fibonacci(n) {
			if (n <= 1) return n;
			return fibonacci(n - 1) + fibonacci(n - 2);
		}
		console.log('Fibonacci(10) =', fibonacci(10));

		var order = [];
		setTimeout(function() { order.push('timeout'); }, 0);
		Promise.resolve().then(function() { order.push('microtask'); });

		var path = require('path');
		var crypto = require('crypto');
		console.log('path.join:', path.join('a', 'b', 'c'));
		console.log('crypto.randomUUID is a function:', typeof crypto.randomUUID === 'function');

		console.timeEnd('total-execution');
		console.log('order will be checked after the loop drains');

		globalThis.__order = order;
	`

	output := captureStdout(t, func() {
		if err := scriptexec.Run(state, script, "integration_test.js"); err != nil {
			t.Fatalf("script execution failed: %v", err)
		}
	})

	if !bytes.Contains([]byte(output), []byte("Fibonacci(10) = 55")) {
		t.Errorf("expected fibonacci output, got: %s", output)
	}
	if !bytes.Contains([]byte(output), []byte("path.join: a/b/c")) && !bytes.Contains([]byte(output), []byte("a\\b\\c")) {
		t.Errorf("expected path.join output, got: %s", output)
	}

	orderVal := state.VM.Get("__order")
	order := orderVal.Export().([]any)
	if len(order) != 2 || order[0] != "microtask" || order[1] != "timeout" {
		t.Errorf("expected microtask to run before timeout, got: %v", order)
	}
}

// TestRequireResolvesRelativeFileAndFsWritesAndReads exercises the module
// loader's relative resolution together with the fs builtin's async
// read/write pair against a real temp file.
func TestRequireResolvesRelativeFileAndFsWritesAndReads(t *testing.T) {
	dir := t.TempDir()
	helperPath := filepath.Join(dir, "helper.js")
	if err := os.WriteFile(helperPath, []byte("module.exports = { greet: function(n) { return 'hello, ' + n; } };"), 0644); err != nil {
		t.Fatalf("failed to write helper file: %v", err)
	}

	state := newRuntime(t, dir)
	outPath := filepath.Join(dir, "out.txt")

	script := `
		var helper = require('./helper.js');
		globalThis.__greeting = helper.greet('world');

		var fs = require('fs');
		globalThis.__fsDone = false;
		fs.writeFile(` + "`" + outPath + "`" + `, 'written-by-test').then(function() {
			return fs.readFile(` + "`" + outPath + "`" + `);
		}).then(function(contents) {
			globalThis.__fsContents = contents;
			globalThis.__fsDone = true;
		});
	`

	if err := scriptexec.Run(state, script, "main.js"); err != nil {
		t.Fatalf("script execution failed: %v", err)
	}

	if got := state.VM.Get("__greeting").String(); got != "hello, world" {
		t.Errorf("expected relative require to resolve, got %q", got)
	}
	if !state.VM.Get("__fsDone").ToBoolean() {
		t.Fatalf("expected fs promise chain to have settled by the time Run() returned")
	}
	if got := state.VM.Get("__fsContents").String(); got != "written-by-test" {
		t.Errorf("expected round-tripped file contents, got %q", got)
	}
}
