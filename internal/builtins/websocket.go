package builtins

import (
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/gorilla/websocket"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// wsConn is the Go side of one client WebSocket connection. The read loop
// lives on its own goroutine (gorilla/websocket connections block on
// ReadMessage); every event it produces is only ever turned into goja
// values and delivered to the stored JS callback from inside an
// eventloop.Loop.QueueMicrotask callback, the same discipline fetch.go and
// fs.go already use for their background work.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

type wsRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	sockets map[uint64]*wsConn
}

func newWSRegistry() *wsRegistry {
	return &wsRegistry{sockets: make(map[uint64]*wsConn)}
}

func (r *wsRegistry) add() (uint64, *wsConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	c := &wsConn{}
	r.sockets[id] = c
	return id, c
}

func (r *wsRegistry) get(id uint64) (*wsConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sockets[id]
	return c, ok
}

func (r *wsRegistry) remove(id uint64) {
	r.mu.Lock()
	delete(r.sockets, id)
	r.mu.Unlock()
}

// installWebSocket wires a minimal client-only WebSocket global (connect,
// send, close, onopen/onmessage/onclose/onerror), the WHATWG WebSocket
// contract rather than Node's `ws` library, for consistency with the
// browser-shaped globals (fetch, URL, crypto, TextEncoder) the rest of
// this package already exposes. Grounded on the server-side upgrade/read-
// loop/close-handshake pattern of the teacher's internal/modules/http.go
// websocket() method, adapted from a server accepting connections to a
// client dialing out, since this runtime has no HTTP server builtin to
// upgrade.
func installWebSocket(state *isolatestate.State) {
	vm := state.VM
	registry := newWSRegistry()

	bindings := vm.NewObject()
	_ = bindings.Set("wsDial", wsDial(state, registry))
	_ = bindings.Set("wsSend", wsSend(state, registry))
	_ = bindings.Set("wsClose", wsClose(state, registry))
	vm.Set("__wsBindings", bindings)

	if _, err := vm.RunString(websocketBootstrapJS); err != nil {
		panic(err)
	}
}

func wsDial(state *isolatestate.State, registry *wsRegistry) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "wsDial", call, 2)
		rawURL := binding.ToStringOrThrow(vm, call.Arguments[0], "url")
		callback := binding.AsFunctionOrThrow(vm, call.Arguments[1], "callback")

		id, entry := registry.add()
		done := state.Loop.BeginAsyncWork()
		go func() {
			conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
			if err != nil {
				errMsg := err.Error()
				state.Loop.QueueMicrotask(func() {
					defer done()
					registry.remove(id)
					_, _ = callback(goja.Undefined(), vm.ToValue("error"), vm.ToValue(errMsg))
				})
				return
			}

			entry.mu.Lock()
			entry.conn = conn
			entry.mu.Unlock()

			state.Loop.QueueMicrotask(func() {
				_, _ = callback(goja.Undefined(), vm.ToValue("open"), goja.Undefined())
			})

			defer done()
			for {
				msgType, data, err := conn.ReadMessage()
				if err != nil {
					errMsg := err.Error()
					state.Loop.QueueMicrotask(func() {
						registry.remove(id)
						_, _ = callback(goja.Undefined(), vm.ToValue("close"), vm.ToValue(errMsg))
					})
					return
				}

				state.Loop.QueueMicrotask(func() {
					var payload goja.Value
					if msgType == websocket.TextMessage {
						payload = vm.ToValue(string(data))
					} else {
						payload = newUint8Array(vm, data)
					}
					_, _ = callback(goja.Undefined(), vm.ToValue("message"), payload)
				})
			}
		}()
		return vm.ToValue(id)
	}
}

func wsSend(state *isolatestate.State, registry *wsRegistry) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "wsSend", call, 2)
		id := uint64(call.Arguments[0].ToInteger())
		entry, ok := registry.get(id)
		if !ok {
			binding.ThrowError(vm, "websocket connection is not open")
		}
		entry.mu.Lock()
		conn := entry.conn
		entry.mu.Unlock()
		if conn == nil {
			binding.ThrowError(vm, "websocket connection is not open")
		}

		var err error
		if b, ok := bytesOf(call.Arguments[1]); ok {
			err = conn.WriteMessage(websocket.BinaryMessage, b)
		} else {
			err = conn.WriteMessage(websocket.TextMessage, []byte(call.Arguments[1].String()))
		}
		if err != nil {
			binding.ThrowError(vm, "failed to send: %v", err)
		}
		return goja.Undefined()
	}
}

func wsClose(state *isolatestate.State, registry *wsRegistry) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "wsClose", call, 1)
		id := uint64(call.Arguments[0].ToInteger())
		entry, ok := registry.get(id)
		if !ok {
			return goja.Undefined()
		}
		entry.mu.Lock()
		conn := entry.conn
		entry.mu.Unlock()
		if conn == nil {
			return goja.Undefined()
		}
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		_ = conn.Close()
		return goja.Undefined()
	}
}

const websocketBootstrapJS = `(function() {
  var bindings = __wsBindings;

  function WebSocket(url) {
    this.url = url;
    this.readyState = WebSocket.CONNECTING;
    this.onopen = null;
    this.onmessage = null;
    this.onclose = null;
    this.onerror = null;
    var self = this;
    this._id = bindings.wsDial(url, function(kind, payload) {
      if (kind === 'open') {
        self.readyState = WebSocket.OPEN;
        if (typeof self.onopen === 'function') self.onopen({ type: 'open' });
      } else if (kind === 'message') {
        if (typeof self.onmessage === 'function') self.onmessage({ type: 'message', data: payload });
      } else if (kind === 'close') {
        self.readyState = WebSocket.CLOSED;
        if (typeof self.onclose === 'function') self.onclose({ type: 'close', reason: payload });
      } else if (kind === 'error') {
        self.readyState = WebSocket.CLOSED;
        if (typeof self.onerror === 'function') self.onerror({ type: 'error', message: payload });
      }
    });
  }
  WebSocket.CONNECTING = 0;
  WebSocket.OPEN = 1;
  WebSocket.CLOSING = 2;
  WebSocket.CLOSED = 3;
  WebSocket.prototype.send = function(data) {
    bindings.wsSend(this._id, data);
  };
  WebSocket.prototype.close = function() {
    this.readyState = WebSocket.CLOSING;
    bindings.wsClose(this._id);
  };

  globalThis.WebSocket = WebSocket;
})();
`
