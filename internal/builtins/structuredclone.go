package builtins

import (
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installStructuredClone wires the global structuredClone(), per §4.8: deep
// clone of primitives (including -0/NaN/Infinity), plain objects with cycle
// handling, arrays (including holes), Date, RegExp, Map, Set, ArrayBuffer,
// typed arrays, and boxed primitive wrappers; throws on functions/symbols.
// Pure JS, same rationale as installEvent - the algorithm is data traversal,
// nothing a native Go binding would do better.
func installStructuredClone(state *isolatestate.State) {
	if _, err := state.VM.RunString(structuredCloneBootstrapJS); err != nil {
		panic(err)
	}
}

const structuredCloneBootstrapJS = `(function() {
  function dataCloneError(msg) {
    var e = new Error(msg);
    e.name = 'DataCloneError';
    return e;
  }

  function isTypedArray(v) {
    return ArrayBuffer.isView(v) && !(v instanceof DataView);
  }

  function clone(value, seen) {
    if (value === null || typeof value !== 'object') {
      if (typeof value === 'function' || typeof value === 'symbol') {
        throw dataCloneError('could not be cloned');
      }
      return value;
    }
    if (seen.has(value)) return seen.get(value);

    if (value instanceof Date) {
      return new Date(value.getTime());
    }
    if (value instanceof RegExp) {
      return new RegExp(value.source, value.flags);
    }
    if (value instanceof ArrayBuffer) {
      var copy = value.slice(0);
      seen.set(value, copy);
      return copy;
    }
    if (isTypedArray(value)) {
      var ctor = value.constructor;
      var out = new ctor(value.length);
      seen.set(value, out);
      for (var i = 0; i < value.length; i++) out[i] = value[i];
      return out;
    }
    if (value instanceof Map) {
      var m = new Map();
      seen.set(value, m);
      value.forEach(function(v, k) { m.set(clone(k, seen), clone(v, seen)); });
      return m;
    }
    if (value instanceof Set) {
      var s = new Set();
      seen.set(value, s);
      value.forEach(function(v) { s.add(clone(v, seen)); });
      return s;
    }
    if (Array.isArray(value)) {
      var arr = new Array(value.length);
      seen.set(value, arr);
      for (var idx = 0; idx < value.length; idx++) {
        if (idx in value) arr[idx] = clone(value[idx], seen);
      }
      return arr;
    }
    if (value instanceof Boolean) { return new Boolean(value.valueOf()); }
    if (value instanceof Number) { return new Number(value.valueOf()); }
    if (value instanceof String) { return new String(value.valueOf()); }

    var result = {};
    seen.set(value, result);
    for (var key in value) {
      if (Object.prototype.hasOwnProperty.call(value, key)) {
        result[key] = clone(value[key], seen);
      }
    }
    return result;
  }

  globalThis.structuredClone = function(value) {
    return clone(value, new Map());
  };
})();
`
