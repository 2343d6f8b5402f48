package builtins

import (
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installPath wires path.join/resolve/dirname/basename/extname/sep,
// carried over from internal/modules/path.go with no behavior changes:
// this builtin needed nothing from the spec beyond what the teacher
// already implemented.
func installPath(state *isolatestate.State, reg *Registry) {
	vm := state.VM
	obj := vm.NewObject()
	_ = obj.Set("join", pathJoin(vm))
	_ = obj.Set("resolve", pathResolve(vm))
	_ = obj.Set("dirname", pathDirname(vm))
	_ = obj.Set("basename", pathBasename(vm))
	_ = obj.Set("extname", pathExtname(vm))
	_ = obj.Set("sep", string(filepath.Separator))

	v := vm.ToValue(obj)
	vm.Set("path", v)
	reg.register("path", v)
}

func argsToStrings(call goja.FunctionCall) []string {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = arg.String()
	}
	return parts
}

func pathJoin(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(filepath.Join(argsToStrings(call)...))
	}
}

func pathResolve(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		joined := filepath.Join(argsToStrings(call)...)
		abs, err := filepath.Abs(joined)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(abs)
	}
}

func pathDirname(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return vm.ToValue("")
		}
		return vm.ToValue(filepath.Dir(call.Arguments[0].String()))
	}
}

func pathBasename(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return vm.ToValue("")
		}
		path := call.Arguments[0].String()
		base := filepath.Base(path)
		if len(call.Arguments) >= 2 {
			return vm.ToValue(strings.TrimSuffix(base, call.Arguments[1].String()))
		}
		return vm.ToValue(base)
	}
}

func pathExtname(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return vm.ToValue("")
		}
		return vm.ToValue(filepath.Ext(call.Arguments[0].String()))
	}
}
