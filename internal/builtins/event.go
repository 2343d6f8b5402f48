package builtins

import (
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// installEvent wires Event/EventTarget. Unlike url.go/crypto.go there is no
// native computation here at all (§4.8's EventTarget contract is pure data-
// structure bookkeeping - insertion-ordered per-type listener lists,
// snapshot-based dispatch, stopImmediatePropagation/preventDefault), so the
// whole thing is a JS bootstrap script with no bindings object, the same
// "JS-only builtin group" the spec's two-layer design allows for.
func installEvent(state *isolatestate.State) {
	if _, err := state.VM.RunString(eventBootstrapJS); err != nil {
		panic(err)
	}
}

const eventBootstrapJS = `(function() {
  function Event(type, init) {
    init = init || {};
    this.type = type;
    this.bubbles = !!init.bubbles;
    this.cancelable = !!init.cancelable;
    this.defaultPrevented = false;
    this.target = null;
    this.currentTarget = null;
    this._stopped = false;
    this._immediateStopped = false;
  }
  Event.prototype.preventDefault = function() {
    if (this.cancelable) this.defaultPrevented = true;
  };
  Event.prototype.stopPropagation = function() { this._stopped = true; };
  Event.prototype.stopImmediatePropagation = function() {
    this._stopped = true;
    this._immediateStopped = true;
  };

  function EventTarget() {
    Object.defineProperty(this, '_listeners', { value: {}, enumerable: false, writable: true, configurable: true });
  }
  EventTarget.prototype.addEventListener = function(type, listener, _options) {
    if (typeof listener !== 'function') return;
    if (!this._listeners[type]) this._listeners[type] = [];
    this._listeners[type].push(listener);
  };
  EventTarget.prototype.removeEventListener = function(type, listener) {
    var list = this._listeners[type];
    if (!list) return;
    for (var i = list.length - 1; i >= 0; i--) {
      if (list[i] === listener) list.splice(i, 1);
    }
  };
  EventTarget.prototype.dispatchEvent = function(event) {
    event.target = this;
    event.currentTarget = this;
    var list = (this._listeners[event.type] || []).slice();
    for (var i = 0; i < list.length; i++) {
      if (event._immediateStopped) break;
      list[i].call(this, event);
    }
    return !event.defaultPrevented;
  };

  globalThis.Event = Event;
  globalThis.EventTarget = EventTarget;
})();
`
