package builtins

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installTextEncoding wires TextEncoder/TextDecoder constructors, grounded
// on original_source/core/src/builtins/whatwg/text_encoding_impl.rs:
// encode/encodeInto/decode over UTF-8, with decode falling back to the
// Unicode replacement character on invalid bytes rather than throwing.
func installTextEncoding(state *isolatestate.State) {
	vm := state.VM

	encoderCtor := func(call goja.ConstructorCall) *goja.Object {
		obj := call.This
		_ = obj.Set("encoding", "utf-8")
		_ = obj.Set("encode", textEncoderEncode(vm))
		_ = obj.Set("encodeInto", textEncoderEncodeInto(vm))
		return nil
	}
	vm.Set("TextEncoder", vm.ToValue(encoderCtor))

	decoderCtor := func(call goja.ConstructorCall) *goja.Object {
		obj := call.This
		encoding := "utf-8"
		if len(call.Arguments) > 0 && !goja.IsUndefined(call.Arguments[0]) {
			encoding = call.Arguments[0].String()
		}
		_ = obj.Set("encoding", encoding)
		_ = obj.Set("decode", textDecoderDecode(vm))
		return nil
	}
	vm.Set("TextDecoder", vm.ToValue(decoderCtor))
}

func textEncoderEncode(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var s string
		if len(call.Arguments) > 0 {
			s = call.Arguments[0].String()
		}
		return newUint8Array(vm, []byte(s))
	}
}

func textEncoderEncodeInto(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "encodeInto", call, 2)
		s := call.Arguments[0].String()
		dest, ok := bytesOf(call.Arguments[1])
		if !ok {
			binding.ThrowTypeError(vm, "destination must be a Uint8Array")
		}

		bytesWritten := 0
		charsRead := 0
		for _, r := range s {
			n := utf8.RuneLen(r)
			if n < 0 {
				n = 3 // encoding/utf8 replacement-char width
			}
			if bytesWritten+n > len(dest) {
				break
			}
			utf8.EncodeRune(dest[bytesWritten:], r)
			bytesWritten += n
			charsRead += len(utf16.Encode([]rune{r}))
		}

		result := vm.NewObject()
		_ = result.Set("read", charsRead)
		_ = result.Set("written", bytesWritten)
		return result
	}
}

func textDecoderDecode(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || goja.IsUndefined(call.Arguments[0]) || goja.IsNull(call.Arguments[0]) {
			return vm.ToValue("")
		}
		data, ok := bytesOf(call.Arguments[0])
		if !ok {
			binding.ThrowTypeError(vm, "input must be an ArrayBuffer or ArrayBufferView")
		}
		if !utf8.Valid(data) {
			return vm.ToValue(string([]rune(string(data))))
		}
		return vm.ToValue(string(data))
	}
}
