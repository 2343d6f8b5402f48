package builtins

import (
	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installStreams wires a minimal single-chunk ReadableStream (§4.8:
// "Response.body is a ReadableStream wrapping the response bytes"),
// grounded on the reader/locked/disturbed state machine of
// original_source/core/src/builtins/whatwg/streams_impl.rs, reduced to a
// single already-buffered chunk rather than a pull-from-source queue —
// fetch.go always reads the whole HTTP body before resolving (see its own
// doc comment), so there is never an incremental producer for a stream here
// to pull from, only one finished chunk to hand out once.
func installStreams(state *isolatestate.State) {
	if _, err := state.VM.RunString(streamsBootstrapJS); err != nil {
		panic(err)
	}
}

// newBufferedReadableStream builds a ReadableStream already holding data as
// its one chunk, for fetch.go's Response.body.
func newBufferedReadableStream(state *isolatestate.State, data []byte) *goja.Object {
	vm := state.VM
	factory, ok := goja.AssertFunction(vm.Get("__readableStreamFromBuffer"))
	if !ok {
		binding.ThrowError(vm, "ReadableStream is not available")
	}
	v, err := factory(goja.Undefined(), newUint8Array(vm, data))
	if err != nil {
		binding.ThrowError(vm, "failed to construct ReadableStream: %v", err)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		binding.ThrowError(vm, "ReadableStream constructor returned a non-object")
	}
	return obj
}

const streamsBootstrapJS = `(function() {
  function ReadableStream(chunk) {
    this._chunk = (chunk === undefined) ? null : chunk;
    this._locked = false;
    this._disturbed = false;
  }
  Object.defineProperty(ReadableStream.prototype, 'locked', {
    get: function() { return this._locked; }
  });
  ReadableStream.prototype.getReader = function() {
    if (this._locked) throw new TypeError('ReadableStream is already locked to a reader');
    this._locked = true;
    var stream = this;
    var exhausted = stream._chunk === null;
    return {
      read: function() {
        stream._disturbed = true;
        if (exhausted) return Promise.resolve({ value: undefined, done: true });
        var value = stream._chunk;
        stream._chunk = null;
        exhausted = true;
        return Promise.resolve({ value: value, done: false });
      },
      cancel: function(reason) {
        stream._chunk = null;
        exhausted = true;
        return Promise.resolve(undefined);
      },
      releaseLock: function() { stream._locked = false; }
    };
  };
  ReadableStream.prototype.cancel = function(reason) {
    this._chunk = null;
    this._disturbed = true;
    return Promise.resolve(undefined);
  };

  globalThis.ReadableStream = ReadableStream;
  globalThis.__readableStreamFromBuffer = function(chunk) { return new ReadableStream(chunk); };
})();
`
