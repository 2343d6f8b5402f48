// Package modloader implements the module loader (§4.6): specifier
// resolution, module-kind detection, the module map's caching and status
// machine, CommonJS-style require(), and dynamic import().
//
// Goja has no native ES module support, so the loader takes the same path
// the teacher took for plain syntax transpilation (api.Transform via
// esbuild) and extends it: import/export syntax is rewritten to
// require()/module.exports with Format: api.FormatCommonJS, and each
// module body then runs inside a Node-style
// (module, exports, require, __filename, __dirname, __import_meta_url__)
// wrapper function — the same function-wrapper shape Node itself uses for
// CommonJS, adapted here to also carry the resolved import.meta.url.
//
// Grounded on original_source/core/src/lib.rs (module map status machine,
// import() exception formatting) and original_source/src/module.rs
// (compile -> instantiate -> evaluate pipeline, "file doesn't exist"
// handling), mapped onto the teacher's require()/Registry shape from
// internal/modules/registry.go and internal/runtime.Runtime.requireFunction.
package modloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/binding"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
	"github.com/douglasjordan2/jstime/internal/scriptexec"
	"github.com/douglasjordan2/jstime/internal/wasmvm"
)

// BuiltinProvider resolves bare/"node:" specifiers to an already-built
// export value — implemented by internal/builtins' registry.
type BuiltinProvider interface {
	Lookup(name string) (goja.Value, bool)
}

// Loader resolves, loads, and caches modules for one isolate.
type Loader struct {
	state    *isolatestate.State
	builtins BuiltinProvider
}

// New creates a Loader bound to state, consulting builtins for bare and
// "node:"-prefixed specifiers.
func New(state *isolatestate.State, builtins BuiltinProvider) *Loader {
	return &Loader{state: state, builtins: builtins}
}

// Require implements the synchronous require(specifier) contract, called
// from the requesting module's directory (or the isolate's BaseDir for the
// entry script).
func (l *Loader) Require(specifier, importerDir string) (goja.Value, error) {
	if v, ok := l.lookupBuiltin(specifier); ok {
		return v, nil
	}

	resolved, kind, err := l.resolve(specifier, importerDir)
	if err != nil {
		return nil, err
	}

	m, loadErr := l.load(resolved, kind)
	if loadErr != nil {
		return nil, loadErr
	}
	return m.Namespace, nil
}

// DynamicImport performs the same synchronous resolution/instantiation/
// evaluation work as Require and returns the namespace directly, without
// wrapping it in a Promise. A script's import(specifier) expression does
// not reach this method: the transpile step lowers it to a
// Promise-wrapped require() call.
func (l *Loader) DynamicImport(specifier, importerDir string) (goja.Value, error) {
	return l.Require(specifier, importerDir)
}

func (l *Loader) lookupBuiltin(specifier string) (goja.Value, bool) {
	if l.builtins == nil {
		return nil, false
	}
	name := strings.TrimPrefix(specifier, "node:")
	if name != specifier {
		// Explicit "node:" prefix must resolve to a builtin or fail; it
		// never falls through to file resolution.
		v, ok := l.builtins.Lookup(name)
		return v, ok
	}
	if isBareSpecifier(specifier) {
		return l.builtins.Lookup(specifier)
	}
	return nil, false
}

func isBareSpecifier(specifier string) bool {
	if specifier == "" {
		return false
	}
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") {
		return false
	}
	if strings.HasPrefix(specifier, "file://") || filepath.IsAbs(specifier) {
		return false
	}
	return true
}

// resolve turns a specifier into an absolute path and its module kind.
// Relative/absolute/file:// specifiers resolve against the filesystem;
// anything else that isn't a registered builtin is unresolvable — this
// runtime does not implement node_modules package resolution.
func (l *Loader) resolve(specifier, importerDir string) (string, isolatestate.ModuleKind, error) {
	path := specifier
	switch {
	case strings.HasPrefix(specifier, "file://"):
		path = strings.TrimPrefix(specifier, "file://")
	case filepath.IsAbs(specifier):
		// already absolute
	case strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../"):
		path = filepath.Join(importerDir, specifier)
	default:
		return "", 0, fmt.Errorf("Cannot find module '%s'", specifier)
	}
	return resolveFile(path)
}

// resolveFile locates the on-disk file for path and canonicalizes it
// through filepath.EvalSymlinks, so two specifiers that reach the same file
// via different symlinked paths resolve to one module-map entry instead of
// two independently-evaluated ones.
func resolveFile(path string) (string, isolatestate.ModuleKind, error) {
	if ext := filepath.Ext(path); ext != "" {
		if _, err := os.Stat(path); err != nil {
			return "", 0, fmt.Errorf("Cannot find module '%s'", path)
		}
		return canonicalize(path), kindForExt(ext), nil
	}
	for _, ext := range []string{".js", ".mjs", ".json"} {
		candidate := path + ext
		if _, err := os.Stat(candidate); err == nil {
			return canonicalize(candidate), kindForExt(ext), nil
		}
	}
	return "", 0, fmt.Errorf("Cannot find module '%s'", path)
}

func canonicalize(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return path
}

func kindForExt(ext string) isolatestate.ModuleKind {
	switch ext {
	case ".json":
		return isolatestate.KindJSON
	case ".wasm":
		return isolatestate.KindWasm
	default:
		return isolatestate.KindSource
	}
}

// load instantiates and evaluates the module named by resolved, or returns
// its cached namespace/error if already loaded. An errored module re-
// raises its original error on every subsequent import — it is never
// retried.
//
// The module record's Namespace is populated with a live (initially empty)
// object *before* the body runs, and that same object is what loadSource
// hands off as the initial `exports`/module.exports value — so a cycle
// (A requires B, B requires back into A while A is still on the stack) gets
// a real, later-populated object reference instead of a nil *goja.Object,
// matching the CommonJS diamond/cycle semantics spec.md's module map is
// built around: the in-progress entry is returned with whatever partial
// shape the evaluating module has mutated onto it via `exports.x = ...` so
// far.
func (l *Loader) load(resolved string, kind isolatestate.ModuleKind) (*isolatestate.Module, error) {
	if m, ok := l.state.GetModule(resolved); ok {
		if m.Status == isolatestate.Errored {
			return m, m.Err
		}
		return m, nil
	}

	placeholder := l.state.VM.NewObject()
	m := &isolatestate.Module{Specifier: resolved, Kind: kind, Status: isolatestate.Uninstantiated, Namespace: placeholder}
	l.state.PutModule(m)

	var ns *goja.Object
	var err error
	switch kind {
	case isolatestate.KindJSON:
		ns, err = l.loadJSON(resolved)
	case isolatestate.KindWasm:
		ns, err = l.loadWasm(resolved)
	default:
		ns, err = l.loadSource(resolved, placeholder)
	}

	if err != nil {
		m.Status = isolatestate.Errored
		m.Err = err
		l.state.PutModule(m)
		return m, err
	}

	if ns != placeholder {
		// loadJSON/loadWasm always build their own object, and loadSource
		// does too when the module replaces module.exports wholesale (e.g.
		// `module.exports = 42` wrapped in a {default: ...} object) — copy
		// the final shape onto the identity a cyclic require() already
		// captured, so later property reads see the finished module even
		// though the object reference handed out mid-cycle can't change.
		for _, key := range ns.Keys() {
			_ = placeholder.Set(key, ns.Get(key))
		}
	}

	m.Status = isolatestate.Evaluated
	m.Namespace = placeholder
	l.state.PutModule(m)
	return m, nil
}

func (l *Loader) readSource(resolved string) ([]byte, error) {
	if cached, ok := l.state.CachedSource(resolved); ok {
		return cached, nil
	}
	src, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("Cannot find module '%s'", resolved)
	}
	l.state.CacheSource(resolved, src)
	return src, nil
}

// loadJSON builds a synthetic module whose default export (and, for plain
// require() consumers, whose own enumerable keys) is JSON.parse(text).
func (l *Loader) loadJSON(resolved string) (*goja.Object, error) {
	src, err := l.readSource(resolved)
	if err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal(src, &parsed); err != nil {
		return nil, fmt.Errorf("%s: invalid JSON: %w", resolved, err)
	}

	vm := l.state.VM
	value := vm.ToValue(parsed)
	ns := vm.NewObject()
	_ = ns.Set("default", value)
	_ = ns.Set("__esModule", true)
	if obj, ok := value.(*goja.Object); ok {
		for _, key := range obj.Keys() {
			_ = ns.Set(key, obj.Get(key))
		}
	}
	return ns, nil
}

// loadWasm instantiates a WebAssembly module and exposes its exports
// object both as the module's default export and spread across its own
// keys, mirroring the JSON synthetic-module shape above.
func (l *Loader) loadWasm(resolved string) (*goja.Object, error) {
	src, err := l.readSource(resolved)
	if err != nil {
		return nil, err
	}
	mod, err := wasmvm.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid WebAssembly module: %w", resolved, err)
	}
	instance, err := mod.Instantiate()
	if err != nil {
		return nil, fmt.Errorf("%s: WebAssembly instantiation failed: %w", resolved, err)
	}

	vm := l.state.VM
	exportsObj := vm.NewObject()
	for name, fn := range instance.Exports {
		boundFn := fn
		_ = exportsObj.Set(name, func(call goja.FunctionCall) goja.Value {
			args := make([]int32, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = int32(a.ToInteger())
			}
			results, err := boundFn(args)
			if err != nil {
				binding.ThrowError(vm, "WebAssembly trap: %v", err)
			}
			if len(results) == 0 {
				return goja.Undefined()
			}
			return vm.ToValue(results[0])
		})
	}
	ns := vm.NewObject()
	_ = ns.Set("default", exportsObj)
	_ = ns.Set("__esModule", true)
	for _, key := range exportsObj.Keys() {
		_ = ns.Set(key, exportsObj.Get(key))
	}
	return ns, nil
}

// loadSource compiles and runs resolved's CommonJS wrapper, seeding
// module.exports with namespace (the module map's placeholder object for
// resolved) rather than a fresh object, so that a re-entrant require() of
// resolved from deeper in the call stack — a cycle — sees the same object
// identity this function will ultimately return, picking up whatever
// properties have been assigned onto it by the time the cycle reaches back.
func (l *Loader) loadSource(resolved string, namespace *goja.Object) (*goja.Object, error) {
	src, err := l.readSource(resolved)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(resolved)
	fileURL := "file://" + resolved

	rewritten := strings.ReplaceAll(string(src), "import.meta.url", "__import_meta_url__")
	transpiled, err := scriptexec.Transpile(rewritten, resolved)
	if err != nil {
		return nil, fmt.Errorf("transpilation error in %s: %w", resolved, err)
	}

	wrapped := "(function(module, exports, require, __filename, __dirname, __import_meta_url__) {\n" +
		transpiled + "\n})"

	vm := l.state.VM
	fnVal, err := vm.RunScript(resolved, wrapped)
	if err != nil {
		return nil, err
	}
	callable, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("%s did not compile to a callable module wrapper", resolved)
	}

	moduleObj := vm.NewObject()
	exportsObj := namespace
	_ = moduleObj.Set("exports", exportsObj)

	requireFn := l.makeRequire(dir)

	_, err = callable(goja.Undefined(),
		moduleObj,
		moduleObj.Get("exports"),
		vm.ToValue(requireFn),
		vm.ToValue(resolved),
		vm.ToValue(dir),
		vm.ToValue(fileURL),
	)
	if err != nil {
		return nil, err
	}

	finalExports := moduleObj.Get("exports")
	if obj, ok := finalExports.(*goja.Object); ok {
		return obj, nil
	}
	// A module that replaced module.exports with a primitive (e.g.
	// `module.exports = 42`) still needs an object-shaped namespace for
	// import interop; wrap it under "default".
	wrapper := vm.NewObject()
	_ = wrapper.Set("default", finalExports)
	return wrapper, nil
}

// BindRequire returns a require(specifier) function resolved against
// importerDir, for the host (cmd/jstime, the REPL) to install as the
// global `require` the entry script/REPL expressions see — the same
// function shape each loaded module's wrapper receives as its `require`
// parameter.
func (l *Loader) BindRequire(importerDir string) func(call goja.FunctionCall) goja.Value {
	return l.makeRequire(importerDir)
}

func (l *Loader) makeRequire(importerDir string) func(call goja.FunctionCall) goja.Value {
	vm := l.state.VM
	return func(call goja.FunctionCall) goja.Value {
		binding.CheckArgCount(vm, "require", call, 1)
		specifier := binding.ToStringOrThrow(vm, call.Arguments[0], "specifier")
		v, err := l.Require(specifier, importerDir)
		if err != nil {
			binding.ThrowError(vm, "%s", err.Error())
		}
		return v
	}
}
