package builtins

import (
	"encoding/base64"
	"strings"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installBase64 wires the global atob/btoa pair, grounded on
// original_source/core/src/builtins/whatwg/base64_impl.rs: atob strips
// whitespace before decoding and maps decoded bytes 1:1 to Latin-1 code
// points; btoa rejects input outside the Latin-1 range.
func installBase64(state *isolatestate.State) {
	vm := state.VM
	vm.Set("atob", atob(vm))
	vm.Set("btoa", btoa(vm))
}

func atob(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "atob", call, 1)
		input := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', '\n', '\r', '\f', '\v':
				return -1
			default:
				return r
			}
		}, call.Arguments[0].String())

		decoded, err := base64.StdEncoding.DecodeString(input)
		if err != nil {
			if decoded, err = base64.RawStdEncoding.DecodeString(input); err != nil {
				binding.ThrowError(vm, "invalid base64 string")
			}
		}
		runes := make([]rune, len(decoded))
		for i, by := range decoded {
			runes[i] = rune(by)
		}
		return vm.ToValue(string(runes))
	}
}

func btoa(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "btoa", call, 1)
		s := call.Arguments[0].String()
		bytes := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xFF {
				binding.ThrowError(vm, "the string to be encoded contains characters outside of the Latin1 range")
			}
			bytes = append(bytes, byte(r))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(bytes))
	}
}
