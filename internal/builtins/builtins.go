package builtins

import (
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// Install wires every builtin into state's isolate and returns the
// Registry the module loader consults for bare/"node:"-prefixed require()
// specifiers, generalizing the teacher's internal/modules.RegisterAll into
// this runtime's native-bindings-plus-JS-bootstrap architecture.
func Install(state *isolatestate.State) *Registry {
	reg := newRegistry()

	installConsole(state)
	installTimers(state)
	installProcess(state, reg)
	installPath(state, reg)
	installPromise(state)
	installCrypto(state, reg)
	installBase64(state)
	installTextEncoding(state)
	installPerformance(state)
	installURL(state)
	installEvent(state)
	installStructuredClone(state)
	installStreams(state)
	installFetch(state, reg)
	installFS(state, reg)
	installBuffer(state, reg)
	installDgram(state, reg)
	installWebSocket(state)

	return reg
}
