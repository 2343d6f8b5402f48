// Package main provides the jstime runtime CLI executable.
//
// jstime is a custom JavaScript runtime built in Go, executing modern
// JavaScript (ES6+) via automatic transpilation to ES2017/CommonJS. It
// supports two modes of operation:
//
//  1. REPL mode (no script argument): interactive JavaScript shell
//  2. Script mode: execute a file, or stdin when the filename is "-"
//
// Usage:
//
//	jstime [--version] [--v8-options "<flags>"] [script.js [args...]]
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/builtins"
	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
	"github.com/douglasjordan2/jstime/internal/modloader"
	"github.com/douglasjordan2/jstime/internal/repl"
	"github.com/douglasjordan2/jstime/internal/scriptexec"
)

const version = "jstime 0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("jstime", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	showVersion := fs.Bool("version", false, "print version and exit")
	v8Options := fs.String("v8-options", "", "accepted for compatibility; Goja has no V8 flag surface")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if *showVersion {
		fmt.Println(version)
		return 0
	}
	if *v8Options != "" {
		// REDESIGN: the teacher's engine could forward V8 flags directly;
		// Goja has no equivalent flag surface, so this is a logged no-op
		// rather than a rejection, keeping scripts that pass it working.
		fmt.Fprintf(os.Stderr, "jstime: --v8-options is accepted but ignored (no V8 engine to forward to)\n")
	}

	remaining := fs.Args()

	vm := goja.New()
	loop := eventloop.New(vm)

	if len(remaining) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		argv := append([]string{"jstime"}, remaining...)
		state := isolatestate.New(vm, loop, cwd, argv)
		wireGlobals(state, cwd)

		r := repl.New(state, os.Stdin, os.Stdout)
		if err := r.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "REPL Error: %v\n", err)
			return 1
		}
		return 0
	}

	scriptPath := remaining[0]
	argv := append([]string{"jstime", scriptPath}, remaining[1:]...)

	if scriptPath == "-" {
		source, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		state := isolatestate.New(vm, loop, cwd, argv)
		wireGlobals(state, cwd)
		if err := scriptexec.Run(state, string(source), "<stdin>"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if _, err := os.Stat(scriptPath); err != nil {
		fmt.Fprintln(os.Stderr, "Error: file doesn't exist")
		return 1
	}

	baseDir, err := absDir(scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	state := isolatestate.New(vm, loop, baseDir, argv)
	wireGlobals(state, baseDir)

	if err := scriptexec.RunFile(state, scriptPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// wireGlobals installs every builtin and the global require(), bound to
// baseDir, so top-level scripts and REPL expressions resolve relative
// specifiers the same way a loaded module's own require parameter would.
func wireGlobals(state *isolatestate.State, baseDir string) {
	reg := builtins.Install(state)
	loader := modloader.New(state, reg)
	state.VM.Set("require", loader.BindRequire(baseDir))
}

func absDir(scriptPath string) (string, error) {
	abs, err := filepath.Abs(scriptPath)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}
