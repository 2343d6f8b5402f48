package builtins

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"hash"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

const maxRandomBytes = 65536

// installCrypto wires the global WHATWG `crypto` object (§4.8) — grounded on
// original_source/core/src/builtins/w3c/crypto_impl.rs's getRandomValues/
// randomUUID/subtle.digest contract — and registers a separate Node-style
// `crypto` module (createHash/createHmac/timingSafeEqual/random/randomUUID),
// carried over from internal/modules/crypto.go, under require("crypto").
// Goja has no OS CSPRNG binding of its own, so both surfaces read from
// crypto/rand directly rather than through a third-party RNG library; no
// pack example imports one either.
func installCrypto(state *isolatestate.State, reg *Registry) {
	vm := state.VM

	whatwg := vm.NewObject()
	_ = whatwg.Set("getRandomValues", getRandomValues(vm))
	_ = whatwg.Set("randomUUID", randomUUID(vm))
	subtleObj := vm.NewObject()
	_ = subtleObj.Set("digest", subtleDigest(state))
	_ = whatwg.Set("subtle", subtleObj)
	vm.Set("crypto", whatwg)

	node := vm.NewObject()
	_ = node.Set("createHash", createHash(vm))
	_ = node.Set("createHmac", createHmac(vm))
	_ = node.Set("timingSafeEqual", timingSafeEqual(vm))
	_ = node.Set("randomUUID", randomUUID(vm))
	_ = node.Set("random", randomBytesEncoded(vm))
	reg.register("crypto", node)
	reg.register("node:crypto", node)
}

// getRandomValues fills typedArray in place from the OS CSPRNG; requests
// over 65536 bytes throw RangeError, per spec.
func getRandomValues(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "crypto.getRandomValues", call, 1)
		data, ok := bytesOf(call.Arguments[0])
		if !ok {
			binding.ThrowTypeError(vm, "getRandomValues requires a typed array")
		}
		if len(data) > maxRandomBytes {
			binding.ThrowRangeError(vm, "getRandomValues request exceeds %d bytes", maxRandomBytes)
		}
		if _, err := rand.Read(data); err != nil {
			binding.ThrowError(vm, "failed to read random bytes: %v", err)
		}
		return call.Arguments[0]
	}
}

// randomUUID emits an RFC 4122 v4 UUID string.
func randomUUID(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(uuid.New().String())
	}
}

// subtleDigest supports SHA-256/384/512 and returns a promise resolving to
// an ArrayBuffer, never a synchronous value — matching the Web Crypto API
// shape even though the computation itself is synchronous here.
func subtleDigest(state *isolatestate.State) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "crypto.subtle.digest", call, 2)
		algorithm := algorithmName(call.Arguments[0])
		data, ok := bytesOf(call.Arguments[1])
		if !ok {
			binding.ThrowTypeError(vm, "digest data must be an ArrayBuffer or typed array")
		}

		var sum []byte
		switch algorithm {
		case "sha-256", "sha256":
			h := sha256.Sum256(data)
			sum = h[:]
		case "sha-384", "sha384":
			h := sha512.Sum384(data)
			sum = h[:]
		case "sha-512", "sha512":
			h := sha512.Sum512(data)
			sum = h[:]
		default:
			return NewRejectedPromise(state, vm.ToValue(vm.NewTypeError("unsupported digest algorithm: "+algorithm)))
		}
		ab := vm.NewArrayBuffer(sum)
		return NewResolvedPromise(state, vm.ToValue(ab))
	}
}

func algorithmName(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			return toLower(name.String())
		}
	}
	return toLower(v.String())
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func newHashFor(algorithm string) (hash.Hash, bool) {
	switch toLower(algorithm) {
	case "md5":
		return md5.New(), true
	case "sha1":
		return sha1.New(), true
	case "sha256":
		return sha256.New(), true
	case "sha512":
		return sha512.New(), true
	default:
		return nil, false
	}
}

// createHash implements the Node-style createHash(algorithm).update(data)
// .digest(encoding) chain.
func createHash(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "createHash", call, 1)
		algorithm := binding.ToStringOrThrow(vm, call.Arguments[0], "algorithm")
		h, ok := newHashFor(algorithm)
		if !ok {
			binding.ThrowError(vm, "unsupported hash algorithm: %s", algorithm)
		}
		return hasherObject(vm, h)
	}
}

// createHmac implements createHmac(algorithm, key).update(data).digest(enc).
func createHmac(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "createHmac", call, 2)
		algorithm := binding.ToStringOrThrow(vm, call.Arguments[0], "algorithm")
		key := binding.ToStringOrThrow(vm, call.Arguments[1], "key")
		var newHash func() hash.Hash
		switch toLower(algorithm) {
		case "md5":
			newHash = md5.New
		case "sha1":
			newHash = sha1.New
		case "sha256":
			newHash = sha256.New
		case "sha512":
			newHash = sha512.New
		default:
			binding.ThrowError(vm, "unsupported hmac algorithm: %s", algorithm)
		}
		return hasherObject(vm, hmac.New(newHash, []byte(key)))
	}
}

func hasherObject(vm *goja.Runtime, h hash.Hash) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "update", call, 1)
		if data, ok := bytesOf(call.Arguments[0]); ok {
			_, _ = h.Write(data)
		} else {
			_, _ = h.Write([]byte(call.Arguments[0].String()))
		}
		return obj
	})
	_ = obj.Set("digest", func(call goja.FunctionCall) goja.Value {
		sum := h.Sum(nil)
		encoding := "hex"
		if len(call.Arguments) > 0 {
			encoding = call.Arguments[0].String()
		}
		return vm.ToValue(encodeBytes(sum, encoding))
	})
	return obj
}

// timingSafeEqual compares two buffers in constant time.
func timingSafeEqual(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "timingSafeEqual", call, 2)
		a, okA := bytesOf(call.Arguments[0])
		b, okB := bytesOf(call.Arguments[1])
		if !okA || !okB {
			binding.ThrowTypeError(vm, "timingSafeEqual requires two buffers")
		}
		if len(a) != len(b) {
			binding.ThrowRangeError(vm, "input buffers must have the same byte length")
		}
		return vm.ToValue(subtle.ConstantTimeCompare(a, b) == 1)
	}
}

// randomBytesEncoded implements the Node-compat crypto.random(size, encoding?).
func randomBytesEncoded(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "random", call, 1)
		size := int(call.Arguments[0].ToInteger())
		if size < 0 || size > maxRandomBytes {
			binding.ThrowRangeError(vm, "size must be between 0 and %d", maxRandomBytes)
		}
		buf := make([]byte, size)
		if _, err := rand.Read(buf); err != nil {
			binding.ThrowError(vm, "failed to read random bytes: %v", err)
		}
		encoding := "hex"
		if len(call.Arguments) > 1 {
			encoding = call.Arguments[1].String()
		}
		if encoding == "raw" {
			return newUint8Array(vm, buf)
		}
		return vm.ToValue(encodeBytes(buf, encoding))
	}
}

func encodeBytes(data []byte, encoding string) string {
	switch toLower(encoding) {
	case "base64":
		return base64.StdEncoding.EncodeToString(data)
	case "base64url":
		return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(data)
	default:
		return hex.EncodeToString(data)
	}
}
