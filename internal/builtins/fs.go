package builtins

import (
	"os"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installFS wires both a synchronous `fs` surface (readFileSync/readDirSync/
// existsSync) and an async callback/promise surface (readFile/writeFile/
// readdir/mkdir/rm/stat), grounded on internal/modules/file.go and files.go's
// read/write/readdir/exists/mkdir/rmdir/unlink/stat set - generalized from
// their event.Loop.ScheduleTask dispatch (which ran the blocking syscall on
// the single JS thread) to a background goroutine whose result is only
// ever handed back to the VM from inside an eventloop.Loop.QueueMicrotask
// callback, matching the thread-safety discipline fetch.go and
// process.go's signal handler already use.
func installFS(state *isolatestate.State, reg *Registry) {
	vm := state.VM
	obj := vm.NewObject()

	_ = obj.Set("readFileSync", readFileSync(vm))
	_ = obj.Set("readDirSync", readDirSync(vm))
	_ = obj.Set("existsSync", existsSync(vm))

	_ = obj.Set("readFile", asyncOp1(state, func(path string) (goja.Value, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return vm.ToValue(string(data)), nil
	}))
	_ = obj.Set("writeFile", asyncWrite(state))
	_ = obj.Set("readdir", asyncOp1(state, func(path string) (goja.Value, error) {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		return vm.ToValue(names), nil
	}))
	_ = obj.Set("mkdir", asyncOp1(state, func(path string) (goja.Value, error) {
		return goja.Undefined(), os.MkdirAll(path, 0755)
	}))
	_ = obj.Set("rm", asyncOp1(state, func(path string) (goja.Value, error) {
		return goja.Undefined(), os.RemoveAll(path)
	}))
	_ = obj.Set("stat", asyncOp1(state, func(path string) (goja.Value, error) {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		s := vm.NewObject()
		_ = s.Set("size", info.Size())
		_ = s.Set("isDirectory", info.IsDir())
		_ = s.Set("isFile", !info.IsDir())
		_ = s.Set("name", info.Name())
		return s, nil
	}))

	vm.Set("fs", obj)
	reg.register("fs", obj)
	reg.register("node:fs", obj)
}

func readFileSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "readFileSync", call, 1)
		path := binding.ToStringOrThrow(vm, call.Arguments[0], "path")
		data, err := os.ReadFile(path)
		if err != nil {
			binding.ThrowError(vm, "failed to read file: %v", err)
		}
		return vm.ToValue(string(data))
	}
}

func readDirSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "readDirSync", call, 1)
		path := binding.ToStringOrThrow(vm, call.Arguments[0], "path")
		entries, err := os.ReadDir(path)
		if err != nil {
			binding.ThrowError(vm, "failed to read directory: %v", err)
		}
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		return vm.ToValue(names)
	}
}

func existsSync(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "existsSync", call, 1)
		path := binding.ToStringOrThrow(vm, call.Arguments[0], "path")
		_, err := os.Stat(path)
		return vm.ToValue(err == nil)
	}
}

// asyncOp1 wraps a single-path blocking operation into the dual
// callback-or-promise calling convention internal/modules/files.go uses:
// call with (path, callback) to get Node-style (err, data) arguments, or
// call with just (path) to get a Promise back.
func asyncOp1(state *isolatestate.State, op func(path string) (goja.Value, error)) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "fs operation", call, 1)
		path := binding.ToStringOrThrow(vm, call.Arguments[0], "path")

		var callback goja.Callable
		var hasCallback bool
		if len(call.Arguments) > 1 {
			callback, hasCallback = goja.AssertFunction(call.Arguments[1])
		}

		done := state.Loop.BeginAsyncWork()
		if hasCallback {
			go func() {
				defer done()
				result, err := op(path)
				state.Loop.QueueMicrotask(func() {
					if err != nil {
						_, _ = callback(goja.Undefined(), vm.ToValue(err.Error()), goja.Undefined())
						return
					}
					_, _ = callback(goja.Undefined(), goja.Null(), result)
				})
			}()
			return goja.Undefined()
		}

		p := newPendingPromise(state)
		go func() {
			defer done()
			result, err := op(path)
			state.Loop.QueueMicrotask(func() {
				if err != nil {
					p.reject(vm.ToValue(err.Error()))
					return
				}
				p.resolve(result)
			})
		}()
		return promiseObject(state, p)
	}
}

func asyncWrite(state *isolatestate.State) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "writeFile", call, 2)
		path := binding.ToStringOrThrow(vm, call.Arguments[0], "path")
		var data []byte
		if b, ok := bytesOf(call.Arguments[1]); ok {
			data = b
		} else {
			data = []byte(call.Arguments[1].String())
		}

		var callback goja.Callable
		var hasCallback bool
		if len(call.Arguments) > 2 {
			callback, hasCallback = goja.AssertFunction(call.Arguments[2])
		}

		done := state.Loop.BeginAsyncWork()
		if hasCallback {
			go func() {
				defer done()
				err := os.WriteFile(path, data, 0644)
				state.Loop.QueueMicrotask(func() {
					if err != nil {
						_, _ = callback(goja.Undefined(), vm.ToValue(err.Error()))
						return
					}
					_, _ = callback(goja.Undefined(), goja.Null())
				})
			}()
			return goja.Undefined()
		}

		p := newPendingPromise(state)
		go func() {
			defer done()
			err := os.WriteFile(path, data, 0644)
			state.Loop.QueueMicrotask(func() {
				if err != nil {
					p.reject(vm.ToValue(err.Error()))
					return
				}
				p.resolve(goja.Undefined())
			})
		}()
		return promiseObject(state, p)
	}
}
