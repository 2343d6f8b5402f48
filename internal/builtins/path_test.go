package builtins

import (
	"path/filepath"
	"testing"
)

func TestPathJoinResolveDirnameBasenameExtname(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__join = path.join("a", "b", "c.txt");
		globalThis.__dirname = path.dirname("/a/b/c.txt");
		globalThis.__basename = path.basename("/a/b/c.txt");
		globalThis.__basenameNoExt = path.basename("/a/b/c.txt", ".txt");
		globalThis.__extname = path.extname("/a/b/c.txt");
		globalThis.__sep = path.sep;
	`
	runScript(t, state, script)

	if got, want := state.VM.Get("__join").String(), filepath.Join("a", "b", "c.txt"); got != want {
		t.Fatalf("path.join: got %q want %q", got, want)
	}
	if got := state.VM.Get("__dirname").String(); got != filepath.Dir("/a/b/c.txt") {
		t.Fatalf("path.dirname: got %q", got)
	}
	if got := state.VM.Get("__basename").String(); got != "c.txt" {
		t.Fatalf("path.basename: got %q", got)
	}
	if got := state.VM.Get("__basenameNoExt").String(); got != "c" {
		t.Fatalf("path.basename with ext trimmed: got %q", got)
	}
	if got := state.VM.Get("__extname").String(); got != ".txt" {
		t.Fatalf("path.extname: got %q", got)
	}
	if got := state.VM.Get("__sep").String(); got != string(filepath.Separator) {
		t.Fatalf("path.sep: got %q", got)
	}
}

func TestPathIsRequirableByBareSpecifier(t *testing.T) {
	state := newTestState(t)
	script := `
		var p = require("path");
		globalThis.__same = (p === path);
		globalThis.__nodePath = require("node:path").join("x", "y");
	`
	runScript(t, state, script)

	if !state.VM.Get("__same").ToBoolean() {
		t.Fatalf("expected require('path') to return the same object as the global path")
	}
	if got, want := state.VM.Get("__nodePath").String(), filepath.Join("x", "y"); got != want {
		t.Fatalf("require('node:path'): got %q want %q", got, want)
	}
}
