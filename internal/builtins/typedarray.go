package builtins

import (
	"github.com/dop251/goja"
)

// newUint8Array wraps data in a native ArrayBuffer and constructs a
// Uint8Array view over it, the same AssertConstructor idiom internal/binding
// already uses to build a RangeError instance from Go.
func newUint8Array(vm *goja.Runtime, data []byte) *goja.Object {
	ab := vm.NewArrayBuffer(data)
	ctor, ok := goja.AssertConstructor(vm.Get("Uint8Array"))
	if !ok {
		// No Uint8Array global (shouldn't happen under Goja) - fall back to
		// exposing the raw bytes as a plain array of numbers.
		return vm.ToValue(data).ToObject(vm)
	}
	obj, err := ctor(nil, vm.ToValue(ab))
	if err != nil {
		return vm.ToValue(data).ToObject(vm)
	}
	return obj
}

// bytesOf extracts the backing bytes of a Uint8Array, any other typed
// array, or a raw ArrayBuffer. ok is false when v is none of those.
func bytesOf(v goja.Value) (data []byte, ok bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	exported := v.Export()
	switch b := exported.(type) {
	case []byte:
		return b, true
	case goja.ArrayBuffer:
		return b.Bytes(), true
	default:
		return nil, false
	}
}
