package builtins

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installBuffer wires a Node-compat Buffer global (alloc/from/concat/
// byteLength/compare/isEncoding), grounded on
// original_source/core/src/builtins/node/buffer_impl.rs. A jstime Buffer is
// a Uint8Array under the covers - the Rust original represents it the same
// way - so every Buffer is also a valid typed array argument to fetch/fs/
// crypto's bytesOf.
func installBuffer(state *isolatestate.State, reg *Registry) {
	vm := state.VM
	obj := vm.NewObject()

	_ = obj.Set("alloc", bufferAlloc(state))
	_ = obj.Set("allocUnsafe", bufferAlloc(state))
	_ = obj.Set("from", bufferFrom(state))
	_ = obj.Set("concat", bufferConcat(state))
	_ = obj.Set("byteLength", bufferByteLength(vm))
	_ = obj.Set("compare", bufferCompare(vm))
	_ = obj.Set("isEncoding", bufferIsEncoding(vm))

	vm.Set("Buffer", obj)
	reg.register("buffer", obj)
	reg.register("node:buffer", obj)
}

func bufferAlloc(state *isolatestate.State) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "Buffer.alloc", call, 1)
		size := int(call.Arguments[0].ToInteger())
		if size < 0 {
			binding.ThrowRangeError(vm, "invalid buffer size %d", size)
		}
		data := make([]byte, size)
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
			fillArg := call.Arguments[1]
			encoding := "utf8"
			if len(call.Arguments) > 2 {
				encoding = call.Arguments[2].String()
			}
			var fill []byte
			switch fillArg.Export().(type) {
			case int64, float64:
				fill = []byte{byte(fillArg.ToInteger())}
			default:
				if b, ok := bytesOf(fillArg); ok {
					fill = b
				} else {
					fill = decodeWithEncoding(fillArg.String(), encoding)
				}
			}
			if len(fill) > 0 {
				for i := range data {
					data[i] = fill[i%len(fill)]
				}
			}
		}
		return newUint8Array(vm, data)
	}
}

func bufferFrom(state *isolatestate.State) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "Buffer.from", call, 1)
		arg := call.Arguments[0]

		if b, ok := bytesOf(arg); ok {
			out := make([]byte, len(b))
			copy(out, b)
			return newUint8Array(vm, out)
		}

		if obj := arg.ToObject(vm); obj != nil {
			if lengthVal := obj.Get("length"); lengthVal != nil && !goja.IsUndefined(lengthVal) {
				if _, isString := arg.Export().(string); !isString {
					length := int(lengthVal.ToInteger())
					data := make([]byte, length)
					for i := 0; i < length; i++ {
						data[i] = byte(obj.Get(itoa(i)).ToInteger())
					}
					return newUint8Array(vm, data)
				}
			}
		}

		encoding := "utf8"
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
			encoding = call.Arguments[1].String()
		}
		return newUint8Array(vm, decodeWithEncoding(arg.String(), encoding))
	}
}

func bufferConcat(state *isolatestate.State) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "Buffer.concat", call, 1)
		listObj, length := binding.AsArrayOrThrow(vm, call.Arguments[0], "list")

		var totalLength int
		hasTotal := len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1])
		if hasTotal {
			totalLength = int(call.Arguments[1].ToInteger())
		}

		chunks := make([][]byte, 0, length)
		sum := 0
		for i := 0; i < length; i++ {
			item := listObj.Get(itoa(i))
			b, ok := bytesOf(item)
			if !ok {
				binding.ThrowTypeError(vm, "list argument must contain Buffer/Uint8Array instances")
			}
			chunks = append(chunks, b)
			sum += len(b)
		}
		if !hasTotal {
			totalLength = sum
		}

		out := make([]byte, totalLength)
		pos := 0
		for _, c := range chunks {
			if pos >= totalLength {
				break
			}
			n := copy(out[pos:], c)
			pos += n
		}
		return newUint8Array(vm, out)
	}
}

func bufferByteLength(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "Buffer.byteLength", call, 1)
		if b, ok := bytesOf(call.Arguments[0]); ok {
			return vm.ToValue(len(b))
		}
		encoding := "utf8"
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
			encoding = call.Arguments[1].String()
		}
		return vm.ToValue(len(decodeWithEncoding(call.Arguments[0].String(), encoding)))
	}
}

func bufferCompare(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "Buffer.compare", call, 2)
		a, aok := bytesOf(call.Arguments[0])
		b, bok := bytesOf(call.Arguments[1])
		if !aok || !bok {
			binding.ThrowTypeError(vm, "arguments must be Buffer/Uint8Array instances")
		}
		return vm.ToValue(compareBytes(a, b))
	}
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func bufferIsEncoding(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		switch strings.ToLower(call.Argument(0).String()) {
		case "utf8", "utf-8", "latin1", "binary", "ascii", "hex", "base64", "base64url":
			return vm.ToValue(true)
		default:
			return vm.ToValue(false)
		}
	}
}

// decodeWithEncoding turns a JS string into bytes the way the Rust
// original's buffer_impl.rs decodes a Buffer.from(string, encoding) call.
// Unrecognized encodings fall back to utf8, matching that implementation's
// permissive behavior.
func decodeWithEncoding(s, encoding string) []byte {
	switch strings.ToLower(encoding) {
	case "hex":
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil
		}
		return b
	case "base64":
		if b, err := base64.StdEncoding.DecodeString(s); err == nil {
			return b
		}
		b, _ := base64.RawStdEncoding.DecodeString(s)
		return b
	case "base64url":
		if b, err := base64.URLEncoding.DecodeString(s); err == nil {
			return b
		}
		b, _ := base64.RawURLEncoding.DecodeString(s)
		return b
	case "latin1", "binary":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r))
		}
		return out
	case "ascii":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r&0x7f))
		}
		return out
	default: // utf8/utf-8
		return []byte(s)
	}
}
