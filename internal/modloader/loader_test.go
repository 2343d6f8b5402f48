package modloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

type stubBuiltins struct {
	values map[string]goja.Value
}

func (s *stubBuiltins) Lookup(name string) (goja.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

func newLoader(t *testing.T, dir string) (*Loader, *isolatestate.State) {
	t.Helper()
	vm := goja.New()
	loop := eventloop.New(vm)
	state := isolatestate.New(vm, loop, dir, []string{"jstime"})
	l := New(state, &stubBuiltins{values: map[string]goja.Value{
		"builtin-thing": vm.ToValue("builtin-export"),
	}})
	vm.Set("require", func(call goja.FunctionCall) goja.Value {
		v, err := l.Require(call.Arguments[0].String(), dir)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return v
	})
	return l, state
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

func TestRequireCachesModuleIdentityAcrossImports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "counter.js", `
let calls = 0;
module.exports = { next() { calls += 1; return calls; } };
`)
	l, state := newLoader(t, dir)

	first, err := l.Require("./counter.js", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := l.Require("./counter.js", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatalf("expected the same module object to be returned from the cache")
	}
	if _, ok := state.GetModule(filepath.Join(dir, "counter.js")); !ok {
		t.Fatalf("expected the module to be registered in the module map")
	}
}

func TestRequireJSONReturnsParsedValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data.json", `{"name": "jstime", "version": 2}`)
	l, _ := newLoader(t, dir)

	ns, err := l.Require("./data.json", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, ok := ns.(*goja.Object)
	if !ok {
		t.Fatalf("expected an object namespace, got %T", ns)
	}
	if got := obj.Get("name").String(); got != "jstime" {
		t.Fatalf("expected name=jstime, got %v", got)
	}
	if got := obj.Get("version").ToInteger(); got != 2 {
		t.Fatalf("expected version=2, got %v", got)
	}
}

func TestRequireMissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	l, _ := newLoader(t, dir)
	if _, err := l.Require("./nope.js", dir); err == nil {
		t.Fatalf("expected an error for a missing module")
	}
}

func TestRequireErroredModuleReraisesSameErrorWithoutRetrying(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.js", `throw new Error("boom");`)
	l, _ := newLoader(t, dir)

	_, err1 := l.Require("./broken.js", dir)
	if err1 == nil {
		t.Fatalf("expected the first import to fail")
	}
	_, err2 := l.Require("./broken.js", dir)
	if err2 == nil || err2.Error() != err1.Error() {
		t.Fatalf("expected the cached error to be re-raised verbatim, got %v then %v", err1, err2)
	}
}

func TestRequireResolvesRelativeSpecifierAgainstImporterDirectory(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, sub, "leaf.js", `module.exports = "leaf";`)
	writeFile(t, root, "entry.js", `module.exports = require("./sub/leaf.js");`)

	l, _ := newLoader(t, root)
	ns, err := l.Require("./entry.js", root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj := ns.(*goja.Object)
	if obj.Get("default").String() != "leaf" {
		t.Fatalf("expected default export \"leaf\", got %v", obj.Get("default"))
	}
}

func TestRequireBuiltinBareSpecifier(t *testing.T) {
	dir := t.TempDir()
	l, _ := newLoader(t, dir)
	v, err := l.Require("builtin-thing", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String() != "builtin-export" {
		t.Fatalf("expected builtin export value, got %v", v)
	}
}

func TestRequireUnknownBareSpecifierFails(t *testing.T) {
	dir := t.TempDir()
	l, _ := newLoader(t, dir)
	if _, err := l.Require("left-pad", dir); err == nil {
		t.Fatalf("expected an error for an unresolvable bare specifier")
	}
}
