package builtins

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
	"github.com/douglasjordan2/jstime/internal/objpool"
)

// installFetch wires fetch()/Response/Headers (§4.8). The actual HTTP round
// trip always runs on a background goroutine (net/http's client blocks);
// the result is only ever turned into goja values and fed into the waiting
// promise from inside an eventloop.Loop.QueueMicrotask callback, the same
// thread-safety discipline internal/builtins/process.go's signal handler
// uses. Header name/value pairs are staged through state.HeaderPairs, the
// pool this runtime's isolate state carries specifically for this purpose.
func installFetch(state *isolatestate.State, reg *Registry) {
	vm := state.VM
	client := &http.Client{Timeout: 30 * time.Second}

	headersCtor := func(call goja.ConstructorCall) *goja.Object {
		return buildHeadersObject(vm, call.This, extractHeaderPairs(state, vm, call.Arguments))
	}
	vm.Set("Headers", vm.ToValue(headersCtor))

	vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			binding.ThrowTypeError(vm, "fetch requires a URL")
		}
		reqURL := call.Arguments[0].String()
		method := "GET"
		var body io.Reader
		var headerPairs []objpool.HeaderPair

		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) {
			opts := binding.AsObjectOrThrow(vm, call.Arguments[1], "options")
			if m := opts.Get("method"); m != nil && !goja.IsUndefined(m) {
				method = strings.ToUpper(m.String())
			}
			if b := opts.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
				if data, ok := bytesOf(b); ok {
					body = bytes.NewReader(data)
				} else {
					body = strings.NewReader(b.String())
				}
			}
			if h := opts.Get("headers"); h != nil && !goja.IsUndefined(h) {
				headerPairs = extractHeaderPairs(state, vm, []goja.Value{h})
			}
		}

		req, err := http.NewRequest(method, reqURL, body)
		if err != nil {
			return NewRejectedPromise(state, vm.ToValue(err.Error()))
		}
		for _, hp := range headerPairs {
			req.Header.Add(hp.Name, hp.Value)
		}

		result := newPendingPromise(state)
		done := state.Loop.BeginAsyncWork()
		go func() {
			defer done()
			resp, err := client.Do(req)
			state.Loop.QueueMicrotask(func() {
				if err != nil {
					result.reject(vm.ToValue(err.Error()))
					return
				}
				defer resp.Body.Close()
				data, readErr := io.ReadAll(resp.Body)
				if readErr != nil {
					result.reject(vm.ToValue(readErr.Error()))
					return
				}
				result.resolve(buildResponseObject(state, resp, data))
			})
		}()
		return promiseObject(state, result)
	})

	fetchNS := vm.NewObject()
	_ = fetchNS.Set("fetch", vm.Get("fetch"))
	reg.register("fetch", fetchNS)
}

func extractHeaderPairs(state *isolatestate.State, vm *goja.Runtime, args []goja.Value) []objpool.HeaderPair {
	slicePtr := state.HeaderPairs.Get()
	defer state.HeaderPairs.Put(slicePtr)
	if len(args) == 0 || args[0] == nil || goja.IsUndefined(args[0]) {
		return nil
	}
	obj := args[0].ToObject(vm)
	if obj == nil {
		return nil
	}
	// array-of-pairs form: [[name, value], ...]
	if lengthVal := obj.Get("length"); lengthVal != nil && !goja.IsUndefined(lengthVal) {
		length := int(lengthVal.ToInteger())
		for i := 0; i < length; i++ {
			entry := obj.Get(itoa(i))
			if entry == nil || goja.IsUndefined(entry) {
				continue
			}
			entryObj := entry.ToObject(vm)
			*slicePtr = append(*slicePtr, objpool.HeaderPair{
				Name:  entryObj.Get("0").String(),
				Value: entryObj.Get("1").String(),
			})
		}
	} else {
		// plain-object form: {name: value, ...}
		for _, key := range obj.Keys() {
			*slicePtr = append(*slicePtr, objpool.HeaderPair{Name: key, Value: obj.Get(key).String()})
		}
	}
	out := make([]objpool.HeaderPair, len(*slicePtr))
	copy(out, *slicePtr)
	return out
}

func buildHeadersObject(vm *goja.Runtime, obj *goja.Object, pairs []objpool.HeaderPair) *goja.Object {
	store := make(map[string]string, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, p := range pairs {
		key := strings.ToLower(p.Name)
		if _, exists := store[key]; !exists {
			order = append(order, key)
		}
		if existing, exists := store[key]; exists {
			store[key] = existing + ", " + p.Value
		} else {
			store[key] = p.Value
		}
	}
	_ = obj.Set("get", func(call goja.FunctionCall) goja.Value {
		if v, ok := store[strings.ToLower(call.Argument(0).String())]; ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	_ = obj.Set("has", func(call goja.FunctionCall) goja.Value {
		_, ok := store[strings.ToLower(call.Argument(0).String())]
		return vm.ToValue(ok)
	})
	_ = obj.Set("set", func(call goja.FunctionCall) goja.Value {
		key := strings.ToLower(call.Argument(0).String())
		if _, exists := store[key]; !exists {
			order = append(order, key)
		}
		store[key] = call.Argument(1).String()
		return goja.Undefined()
	})
	_ = obj.Set("append", func(call goja.FunctionCall) goja.Value {
		key := strings.ToLower(call.Argument(0).String())
		if existing, ok := store[key]; ok {
			store[key] = existing + ", " + call.Argument(1).String()
		} else {
			order = append(order, key)
			store[key] = call.Argument(1).String()
		}
		return goja.Undefined()
	})
	_ = obj.Set("delete", func(call goja.FunctionCall) goja.Value {
		key := strings.ToLower(call.Argument(0).String())
		delete(store, key)
		for i, k := range order {
			if k == key {
				order = append(order[:i], order[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	})
	_ = obj.Set("forEach", func(call goja.FunctionCall) goja.Value {
		fn := binding.AsFunctionOrThrow(vm, call.Argument(0), "callback")
		for _, key := range order {
			_, _ = fn(goja.Undefined(), vm.ToValue(store[key]), vm.ToValue(key), obj)
		}
		return goja.Undefined()
	})
	return obj
}

func buildResponseObject(state *isolatestate.State, resp *http.Response, body []byte) *goja.Object {
	vm := state.VM
	obj := vm.NewObject()
	_ = obj.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	_ = obj.Set("status", resp.StatusCode)
	_ = obj.Set("statusText", resp.Status)
	_ = obj.Set("url", resp.Request.URL.String())

	var pairs []objpool.HeaderPair
	for name, values := range resp.Header {
		for _, v := range values {
			pairs = append(pairs, objpool.HeaderPair{Name: name, Value: v})
		}
	}
	_ = obj.Set("headers", buildHeadersObject(vm, vm.NewObject(), pairs))

	// body is a ReadableStream wrapping the already-buffered response bytes
	// (fetch.go's round trip always reads the whole body before resolving;
	// there is no incremental producer to back a streamed pull). Its
	// `locked` flag is the single source of truth for "already consumed" —
	// text()/json()/arrayBuffer() and a manual body.getReader().read() all
	// lock the same stream, so only one of them can ever succeed.
	stream := newBufferedReadableStream(state, body)
	_ = obj.Set("body", stream)
	_ = obj.Set("bodyUsed", false)

	guardConsumed := func() {
		if stream.Get("locked").ToBoolean() {
			panic(vm.NewGoError(errBodyAlreadyRead))
		}
		_ = stream.Set("_locked", true)
		_ = obj.Set("bodyUsed", true)
	}
	_ = obj.Set("text", func(call goja.FunctionCall) goja.Value {
		guardConsumed()
		return NewResolvedPromise(state, vm.ToValue(string(body)))
	})
	_ = obj.Set("json", func(call goja.FunctionCall) goja.Value {
		guardConsumed()
		v, err := vm.RunString("(" + jsonQuote(string(body)) + ")")
		if err != nil {
			return NewRejectedPromise(state, vm.ToValue(err.Error()))
		}
		return NewResolvedPromise(state, v)
	})
	_ = obj.Set("arrayBuffer", func(call goja.FunctionCall) goja.Value {
		guardConsumed()
		return NewResolvedPromise(state, vm.ToValue(vm.NewArrayBuffer(body)))
	})
	return obj
}

func jsonQuote(s string) string {
	// json() re-parses via JSON.parse through a round trip string literal;
	// building the literal this way avoids a second goja<->Go JSON decode.
	return "JSON.parse(" + goStringLiteral(s) + ")"
}

func goStringLiteral(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

var errBodyAlreadyRead = bodyAlreadyReadError{}

type bodyAlreadyReadError struct{}

func (bodyAlreadyReadError) Error() string { return "body stream already read" }
