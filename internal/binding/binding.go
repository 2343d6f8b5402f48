// Package binding implements the native-call contract every builtin in
// internal/builtins follows: arity checks, typed argument conversion, and
// typed exception throwing (§4.1 of the runtime's binding discipline).
//
// The native side never panics on inputs that could originate from JS —
// every helper here throws a JS exception (via a Go panic that Goja's
// VM.RunProgram/Callable machinery turns back into a catchable JS error)
// instead of returning a Go error.
package binding

import (
	"fmt"

	"github.com/dop251/goja"
)

// ThrowTypeError raises a JS TypeError with a single-line message.
func ThrowTypeError(vm *goja.Runtime, format string, args ...any) {
	panic(vm.NewTypeError(fmt.Sprintf(format, args...)))
}

// ThrowError raises a generic JS Error.
func ThrowError(vm *goja.Runtime, format string, args ...any) {
	panic(vm.ToValue(vm.NewGoError(fmt.Errorf(format, args...))))
}

// newRangeError builds a RangeError through the engine's own RangeError
// global, falling back to a plain object named "RangeError" when that
// constructor is unavailable or fails.
func newRangeError(vm *goja.Runtime, message string) goja.Value {
	ctor, ok := goja.AssertConstructor(vm.Get("RangeError"))
	if ok {
		obj, err := ctor(nil, vm.ToValue(message))
		if err == nil {
			return obj
		}
	}
	// Fallback: plain object shaped like an Error.
	obj := vm.NewObject()
	_ = obj.Set("name", "RangeError")
	_ = obj.Set("message", message)
	return obj
}

// ThrowRangeError raises a JS RangeError with a single-line message.
func ThrowRangeError(vm *goja.Runtime, format string, args ...any) {
	panic(newRangeError(vm, fmt.Sprintf(format, args...)))
}

// CheckArgCount throws a TypeError naming fnName when call has fewer than
// min arguments, per the arity-check step of the native-call contract.
func CheckArgCount(vm *goja.Runtime, fnName string, call goja.FunctionCall, min int) {
	if len(call.Arguments) < min {
		plural := "s"
		if min == 1 {
			plural = ""
		}
		ThrowTypeError(vm, "%s requires at least %d argument%s", fnName, min, plural)
	}
}

// ToStringOrThrow lossily converts arg to a Go string, naming paramName in
// the TypeError thrown when arg is undefined.
func ToStringOrThrow(vm *goja.Runtime, arg goja.Value, paramName string) string {
	if arg == nil || goja.IsUndefined(arg) {
		ThrowTypeError(vm, "%s must be a string", paramName)
	}
	return arg.String()
}

// AsFunctionOrThrow asserts arg is callable, naming paramName on failure.
func AsFunctionOrThrow(vm *goja.Runtime, arg goja.Value, paramName string) goja.Callable {
	fn, ok := goja.AssertFunction(arg)
	if !ok {
		ThrowTypeError(vm, "%s must be a function", paramName)
	}
	return fn
}

// AsObjectOrThrow asserts arg is a JS object, naming paramName on failure.
func AsObjectOrThrow(vm *goja.Runtime, arg goja.Value, paramName string) *goja.Object {
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		ThrowTypeError(vm, "%s must be an object", paramName)
	}
	obj := arg.ToObject(vm)
	if obj == nil {
		ThrowTypeError(vm, "%s must be an object", paramName)
	}
	return obj
}

// AsArrayOrThrow asserts arg behaves like an array (has a numeric .length),
// naming paramName on failure. It returns the backing object and its length.
func AsArrayOrThrow(vm *goja.Runtime, arg goja.Value, paramName string) (*goja.Object, int) {
	obj := AsObjectOrThrow(vm, arg, paramName)
	lengthVal := obj.Get("length")
	if lengthVal == nil || goja.IsUndefined(lengthVal) {
		ThrowTypeError(vm, "%s must be an array-like value", paramName)
	}
	return obj, int(lengthVal.ToInteger())
}
