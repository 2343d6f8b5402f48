package builtins

import (
	"net"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// udpSocket is the Go side of one dgram.Socket, grounded on the bind/send/
// recv/ref/unref surface of original_source/core/src/builtins/node/
// dgram_impl.rs. The Rust original sets the socket non-blocking and polls
// it from the event loop's I/O step; PollOnce below is that same poll step,
// generalized into the eventloop.IOPoller interface so the loop doesn't
// need to know about UDP specifically.
type udpSocket struct {
	mu        sync.Mutex
	conn      *net.UDPConn
	ref       bool
	closed    bool
	onMessage goja.Callable
}

func (s *udpSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *udpSocket) pollOnce(vm *goja.Runtime) {
	s.mu.Lock()
	if s.closed || s.onMessage == nil {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	callback := s.onMessage
	s.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	buf := make([]byte, 65536)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return
	}

	data := newUint8Array(vm, buf[:n])
	rinfo := vm.NewObject()
	_ = rinfo.Set("address", addr.IP.String())
	_ = rinfo.Set("port", addr.Port)
	family := "IPv4"
	if addr.IP.To4() == nil {
		family = "IPv6"
	}
	_ = rinfo.Set("family", family)
	_, _ = callback(goja.Undefined(), data, rinfo)
}

// dgramManager tracks every live socket so it can act as the loop's single
// registered IOPoller for UDP, and so ref/unref can make Run() wait (or
// not) on sockets with no other owner.
type dgramManager struct {
	mu      sync.Mutex
	sockets map[uint64]*udpSocket
}

func newDgramManager() *dgramManager {
	return &dgramManager{sockets: make(map[uint64]*udpSocket)}
}

func (m *dgramManager) add(id uint64, s *udpSocket) {
	m.mu.Lock()
	m.sockets[id] = s
	m.mu.Unlock()
}

func (m *dgramManager) remove(id uint64) {
	m.mu.Lock()
	delete(m.sockets, id)
	m.mu.Unlock()
}

func (m *dgramManager) PollOnce(vm *goja.Runtime) {
	m.mu.Lock()
	list := make([]*udpSocket, 0, len(m.sockets))
	for _, s := range m.sockets {
		list = append(list, s)
	}
	m.mu.Unlock()
	for _, s := range list {
		s.pollOnce(vm)
	}
}

func (m *dgramManager) HasRefdWork() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sockets {
		s.mu.Lock()
		refd := s.ref && !s.closed
		s.mu.Unlock()
		if refd {
			return true
		}
	}
	return false
}

// installDgram wires dgram.createSocket per §4.8 (datagram sockets): bind,
// send, address, setBroadcast, ref/unref, close, and a "message" event
// delivered from the loop's poll step. Native bindings handle every syscall
// (net.ListenUDP/WriteToUDP/ReadFromUDP); the Socket class and its event
// emitter are plain JS, same two-layer split url.go uses.
func installDgram(state *isolatestate.State, reg *Registry) {
	vm := state.VM
	manager := newDgramManager()
	state.Loop.RegisterPoller(manager)

	bindings := vm.NewObject()
	_ = bindings.Set("dgramBind", dgramBind(state, manager))
	_ = bindings.Set("dgramSend", dgramSendWith(state, manager))
	_ = bindings.Set("dgramClose", dgramClose(state, manager))
	_ = bindings.Set("dgramAddress", dgramAddressWith(state, manager))
	_ = bindings.Set("dgramSetBroadcast", dgramSetBroadcastWith(state, manager))
	_ = bindings.Set("dgramSetOnMessage", dgramSetOnMessageWith(state, manager))
	_ = bindings.Set("dgramRef", dgramRefWith(state, manager))
	_ = bindings.Set("dgramUnref", dgramUnrefWith(state, manager))
	vm.Set("__dgramBindings", bindings)

	if _, err := vm.RunString(dgramBootstrapJS); err != nil {
		panic(err)
	}

	dgramNS := vm.NewObject()
	_ = dgramNS.Set("createSocket", vm.Get("__dgramCreateSocket"))
	reg.register("dgram", dgramNS)
	reg.register("node:dgram", dgramNS)
}

// socketFromID resolves the *udpSocket backing a dgram socket id, throwing
// a jstime Error (never a Go panic) for an unknown or already-closed id.
func socketFromID(state *isolatestate.State, manager *dgramManager, id uint64) *udpSocket {
	manager.mu.Lock()
	s, ok := manager.sockets[id]
	manager.mu.Unlock()
	if !ok {
		binding.ThrowError(state.VM, "socket has been closed")
	}
	return s
}

func dgramBind(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "dgramBind", call, 3)
		socketType := binding.ToStringOrThrow(vm, call.Arguments[0], "type")
		if socketType != "udp4" && socketType != "udp6" {
			binding.ThrowError(vm, "invalid socket type: %s. Must be 'udp4' or 'udp6'", socketType)
		}
		port := 0
		if !goja.IsUndefined(call.Arguments[1]) && !goja.IsNull(call.Arguments[1]) {
			port = int(call.Arguments[1].ToInteger())
		}
		address := "0.0.0.0"
		if socketType == "udp6" {
			address = "::"
		}
		if len(call.Arguments) > 2 && !goja.IsUndefined(call.Arguments[2]) && !goja.IsNull(call.Arguments[2]) {
			address = call.Arguments[2].String()
		}

		network := "udp4"
		if socketType == "udp6" {
			network = "udp6"
		}
		udpAddr, err := net.ResolveUDPAddr(network, net.JoinHostPort(address, itoa(port)))
		if err != nil {
			binding.ThrowError(vm, "failed to resolve address: %v", err)
		}
		conn, err := net.ListenUDP(network, udpAddr)
		if err != nil {
			binding.ThrowError(vm, "failed to bind socket: %v", err)
		}

		socket := &udpSocket{conn: conn, ref: true}
		id := state.AddSocket(socket)
		manager.add(id, socket)
		return vm.ToValue(id)
	}
}

func dgramSendWith(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "dgramSend", call, 6)
		id := uint64(call.Arguments[0].ToInteger())
		socket := socketFromID(state, manager, id)

		var data []byte
		if b, ok := bytesOf(call.Arguments[1]); ok {
			data = b
		} else {
			data = []byte(call.Arguments[1].String())
		}

		offset := 0
		if !goja.IsUndefined(call.Arguments[2]) {
			offset = int(call.Arguments[2].ToInteger())
		}
		length := len(data)
		if !goja.IsUndefined(call.Arguments[3]) {
			length = int(call.Arguments[3].ToInteger())
		}
		if offset > len(data) || offset+length > len(data) || offset < 0 || length < 0 {
			binding.ThrowRangeError(vm, "offset and length exceed buffer bounds")
		}

		port := int(call.Arguments[4].ToInteger())
		address := binding.ToStringOrThrow(vm, call.Arguments[5], "address")

		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(address, itoa(port)))
		if err != nil {
			binding.ThrowError(vm, "failed to resolve address: %v", err)
		}

		socket.mu.Lock()
		closed := socket.closed
		conn := socket.conn
		socket.mu.Unlock()
		if closed {
			binding.ThrowError(vm, "socket has been closed")
		}

		n, err := conn.WriteToUDP(data[offset:offset+length], addr)
		if err != nil {
			binding.ThrowError(vm, "failed to send: %v", err)
		}
		return vm.ToValue(n)
	}
}

func dgramClose(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "dgramClose", call, 1)
		id := uint64(call.Arguments[0].ToInteger())
		manager.remove(id)
		state.RemoveSocket(id)
		return goja.Undefined()
	}
}

func dgramAddressWith(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "dgramAddress", call, 1)
		id := uint64(call.Arguments[0].ToInteger())
		socket := socketFromID(state, manager, id)
		socket.mu.Lock()
		conn := socket.conn
		socket.mu.Unlock()
		addr := conn.LocalAddr().(*net.UDPAddr)
		obj := vm.NewObject()
		_ = obj.Set("address", addr.IP.String())
		_ = obj.Set("port", addr.Port)
		family := "IPv4"
		if addr.IP.To4() == nil {
			family = "IPv6"
		}
		_ = obj.Set("family", family)
		return obj
	}
}

func dgramSetBroadcastWith(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "dgramSetBroadcast", call, 2)
		id := uint64(call.Arguments[0].ToInteger())
		_ = socketFromID(state, manager, id)
		// net.UDPConn exposes no direct SO_BROADCAST setter in the standard
		// library; broadcast sends work without it on most platforms for an
		// unconnected UDP socket, so this is accepted but a no-op.
		return goja.Undefined()
	}
}

func dgramSetOnMessageWith(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	vm := state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "dgramSetOnMessage", call, 2)
		id := uint64(call.Arguments[0].ToInteger())
		socket := socketFromID(state, manager, id)
		callback := binding.AsFunctionOrThrow(vm, call.Arguments[1], "callback")
		socket.mu.Lock()
		socket.onMessage = callback
		socket.mu.Unlock()
		return goja.Undefined()
	}
}

func dgramRefWith(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(state.VM, "dgramRef", call, 1)
		id := uint64(call.Arguments[0].ToInteger())
		if socket := socketFromID(state, manager, id); socket != nil {
			socket.mu.Lock()
			socket.ref = true
			socket.mu.Unlock()
		}
		return goja.Undefined()
	}
}

func dgramUnrefWith(state *isolatestate.State, manager *dgramManager) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(state.VM, "dgramUnref", call, 1)
		id := uint64(call.Arguments[0].ToInteger())
		if socket := socketFromID(state, manager, id); socket != nil {
			socket.mu.Lock()
			socket.ref = false
			socket.mu.Unlock()
		}
		return goja.Undefined()
	}
}

const dgramBootstrapJS = `(function() {
  var bindings = __dgramBindings;

  function Socket(type) {
    this._type = type;
    this._id = null;
    this._listeners = {};
  }
  Socket.prototype.on = function(event, listener) {
    if (!this._listeners[event]) this._listeners[event] = [];
    this._listeners[event].push(listener);
    return this;
  };
  Socket.prototype.once = function(event, listener) {
    var self = this;
    function wrapper() {
      self.removeListener(event, wrapper);
      listener.apply(self, arguments);
    }
    return this.on(event, wrapper);
  };
  Socket.prototype.removeListener = function(event, listener) {
    var list = this._listeners[event];
    if (!list) return this;
    for (var i = list.length - 1; i >= 0; i--) {
      if (list[i] === listener) list.splice(i, 1);
    }
    return this;
  };
  Socket.prototype.emit = function(event) {
    var list = this._listeners[event];
    if (!list) return;
    var args = Array.prototype.slice.call(arguments, 1);
    list.slice().forEach(function(listener) { listener.apply(null, args); });
  };
  Socket.prototype.bind = function(port, address, callback) {
    if (typeof port === 'function') { callback = port; port = 0; address = undefined; }
    if (typeof address === 'function') { callback = address; address = undefined; }
    this._id = bindings.dgramBind(this._type, port || 0, address);
    var self = this;
    bindings.dgramSetOnMessage(this._id, function(data, rinfo) {
      self.emit('message', data, rinfo);
    });
    if (typeof callback === 'function') this.once('listening', callback);
    this.emit('listening');
    return this;
  };
  Socket.prototype.send = function(buf, offset, length, port, address, callback) {
    if (typeof offset === 'number' && typeof length === 'number' && typeof port !== 'number') {
      callback = port; port = offset; address = length; offset = 0; length = buf.length;
    }
    var self = this;
    try {
      var bytes = bindings.dgramSend(this._id, buf, offset, length, port, address);
      if (typeof callback === 'function') callback(null, bytes);
    } catch (err) {
      if (typeof callback === 'function') callback(err);
      else self.emit('error', err);
    }
  };
  Socket.prototype.address = function() {
    return bindings.dgramAddress(this._id);
  };
  Socket.prototype.setBroadcast = function(flag) {
    bindings.dgramSetBroadcast(this._id, !!flag);
  };
  Socket.prototype.ref = function() {
    bindings.dgramRef(this._id);
    return this;
  };
  Socket.prototype.unref = function() {
    bindings.dgramUnref(this._id);
    return this;
  };
  Socket.prototype.close = function(callback) {
    bindings.dgramClose(this._id);
    if (typeof callback === 'function') this.once('close', callback);
    this.emit('close');
  };

  globalThis.__dgramCreateSocket = function(type) {
    if (typeof type === 'object' && type !== null) type = type.type;
    return new Socket(type || 'udp4');
  };
})();
`
