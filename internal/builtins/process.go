package builtins

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// process implements the global `process` object (§4.8), grounded on
// internal/modules/process.go: env/argv/cwd/chdir/pid/platform/arch/on are
// carried over near verbatim; exit additionally closes any UDP sockets
// still registered in isolate state before calling os.Exit.
type process struct {
	vm     *goja.Runtime
	state  *isolatestate.State
	mu     sync.Mutex
	onExit []func(int)
}

func installProcess(state *isolatestate.State, reg *Registry) {
	p := &process{vm: state.VM, state: state}
	v := p.build()
	state.VM.Set("process", v)
	reg.register("process", v)
}

func (p *process) build() goja.Value {
	vm := p.vm
	obj := vm.NewObject()
	_ = obj.Set("env", envMap())
	_ = obj.Set("argv", p.state.Argv)
	_ = obj.Set("exit", p.exit)
	_ = obj.Set("cwd", p.cwd)
	_ = obj.Set("chdir", p.chdir)
	_ = obj.Set("pid", os.Getpid())
	_ = obj.Set("platform", runtime.GOOS)
	_ = obj.Set("arch", runtime.GOARCH)
	_ = obj.Set("version", "v0.1.0")
	_ = obj.Set("on", p.on)
	return obj
}

func envMap() map[string]string {
	out := make(map[string]string)
	for _, e := range os.Environ() {
		if idx := strings.IndexByte(e, '='); idx >= 0 {
			out[e[:idx]] = e[idx+1:]
		}
	}
	return out
}

func (p *process) exit(call goja.FunctionCall) goja.Value {
	code := 0
	if len(call.Arguments) > 0 {
		code = int(call.Arguments[0].ToInteger())
	}
	p.mu.Lock()
	handlers := append([]func(int){}, p.onExit...)
	p.mu.Unlock()
	for _, h := range handlers {
		h(code)
	}
	for _, id := range p.state.Sockets() {
		p.state.RemoveSocket(id)
	}
	os.Exit(code)
	return goja.Undefined()
}

func (p *process) cwd(call goja.FunctionCall) goja.Value {
	dir, err := os.Getwd()
	if err != nil {
		binding.ThrowError(p.vm, "failed to get current directory: %v", err)
	}
	return p.vm.ToValue(dir)
}

func (p *process) chdir(call goja.FunctionCall) goja.Value {
	binding.CheckArgCount(p.vm, "process.chdir", call, 1)
	dir := binding.ToStringOrThrow(p.vm, call.Arguments[0], "directory")
	if err := os.Chdir(dir); err != nil {
		binding.ThrowError(p.vm, "failed to change directory: %v", err)
	}
	return goja.Undefined()
}

func (p *process) on(call goja.FunctionCall) goja.Value {
	binding.CheckArgCount(p.vm, "process.on", call, 2)
	event := binding.ToStringOrThrow(p.vm, call.Arguments[0], "event")
	callback := binding.AsFunctionOrThrow(p.vm, call.Arguments[1], "listener")

	switch event {
	case "exit":
		p.mu.Lock()
		p.onExit = append(p.onExit, func(code int) {
			_, _ = callback(goja.Undefined(), p.vm.ToValue(code))
		})
		p.mu.Unlock()
	case "SIGINT":
		p.setupSignalHandler(syscall.SIGINT, callback)
	case "SIGTERM":
		p.setupSignalHandler(syscall.SIGTERM, callback)
	case "SIGHUP":
		p.setupSignalHandler(syscall.SIGHUP, callback)
	default:
		binding.ThrowTypeError(p.vm, "unsupported event: %s", event)
	}
	return goja.Undefined()
}

func (p *process) setupSignalHandler(sig os.Signal, callback goja.Callable) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)
	loop := p.state.Loop
	go func() {
		for range ch {
			loop.QueueMicrotask(func() {
				if _, err := callback(goja.Undefined(), p.vm.ToValue(sig.String())); err != nil {
					fmt.Fprintf(os.Stderr, "process signal handler error: %v\n", err)
				}
			})
		}
	}()
}
