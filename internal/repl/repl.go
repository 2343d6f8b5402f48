// Package repl provides an interactive Read-Eval-Print Loop for the
// jstime runtime.
//
// The REPL allows users to interactively execute JavaScript code, with
// features including:
//   - Multi-line input support with automatic bracket/brace detection
//   - Command history (up/down arrows), persisted to $HOME/.jstime_repl_history
//   - Special commands (.help, .exit, .clear)
//   - State preservation between evaluations
//   - Proper error display with Goja exception handling
//
// Grounded on the teacher's internal/repl/repl.go (multi-line bracket
// detection, liner-backed prompt, special commands) generalized from a
// *runtime.Runtime to this runtime's isolatestate/eventloop/scriptexec
// split, with history persistence added per the REPL contract (§6/§7).
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/peterh/liner"

	"github.com/douglasjordan2/jstime/internal/eventloop"
	"github.com/douglasjordan2/jstime/internal/isolatestate"
	"github.com/douglasjordan2/jstime/internal/scriptexec"
)

const historyFileName = ".jstime_repl_history"

// REPL represents an interactive JavaScript shell bound to one isolate.
type REPL struct {
	state   *isolatestate.State
	line    *liner.State
	writer  io.Writer
	histPath string

	lastCtrlC time.Time
}

// New creates a REPL bound to state. The caller is responsible for having
// already wired builtins and the global require onto state.VM. reader is
// accepted for API compatibility with callers that construct an explicit
// input stream; liner reads from the terminal directly.
func New(state *isolatestate.State, reader io.Reader, writer io.Writer) *REPL {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFileName)
	}

	r := &REPL{state: state, line: line, writer: writer, histPath: histPath}
	r.loadHistory()
	return r
}

func (r *REPL) loadHistory() {
	if r.histPath == "" {
		return
	}
	f, err := os.Open(r.histPath)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = r.line.ReadHistory(f)
}

func (r *REPL) saveHistory() {
	if r.histPath == "" {
		return
	}
	f, err := os.Create(r.histPath)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = r.line.WriteHistory(f)
}

// isIncompleteInput detects if the user's input is incomplete (unmatched
// brackets), enabling multi-line input for unclosed braces/brackets/parens.
func (r *REPL) isIncompleteInput(input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	openBraces := strings.Count(input, "{") - strings.Count(input, "}")
	openBrackets := strings.Count(input, "[") - strings.Count(input, "]")
	openParens := strings.Count(input, "(") - strings.Count(input, ")")
	return openBraces > 0 || openBrackets > 0 || openParens > 0
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.writer, "jstime REPL")
	fmt.Fprintln(r.writer, "type some JS, use `.help`, or quit with `.exit`")
	fmt.Fprintln(r.writer, "")
}

// handleCommand processes REPL special commands (those starting with '.').
// Returns true if the REPL should exit.
func (r *REPL) handleCommand(cmd string) bool {
	switch cmd {
	case ".exit", ".quit":
		fmt.Fprintln(r.writer, "see ya")
		return true
	case ".help":
		r.printHelp()
		return false
	case ".clear":
		fmt.Fprint(r.writer, "\033[H\033[2J")
		return false
	default:
		fmt.Fprintf(r.writer, "Unknown command: %s (type .help for available commands)\n", cmd)
		return false
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.writer, "Available commands:")
	fmt.Fprintln(r.writer, "  .help   - Show this help message")
	fmt.Fprintln(r.writer, "  .exit   - Exit the REPL (or Ctrl+D)")
	fmt.Fprintln(r.writer, "  .quit   - Same as .exit")
	fmt.Fprintln(r.writer, "  .clear  - Clear the screen")
	fmt.Fprintln(r.writer, "")
}

// Run starts the REPL loop and processes user input until exit. A first
// Ctrl-C prints a hint; a second one within a second exits cleanly and
// saves history, per §7's Ctrl-C behavior.
func (r *REPL) Run() error {
	defer r.line.Close()
	defer r.saveHistory()

	r.printWelcome()

	var multilineBuffer strings.Builder
	inMultiline := false

	for {
		prompt := "> "
		if inMultiline {
			prompt = "... "
		}

		line, err := r.line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				now := time.Now()
				if !r.lastCtrlC.IsZero() && now.Sub(r.lastCtrlC) < time.Second {
					fmt.Fprintln(r.writer, "\nsee ya")
					return nil
				}
				r.lastCtrlC = now
				fmt.Fprintln(r.writer, "\n(To exit, press Ctrl+C again within 1s, or type .exit)")
				multilineBuffer.Reset()
				inMultiline = false
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(r.writer, "\nsee ya")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)

		if !inMultiline && strings.HasPrefix(line, ".") {
			if r.handleCommand(line) {
				return nil
			}
			continue
		}

		if inMultiline {
			multilineBuffer.WriteString(line)
			multilineBuffer.WriteString("\n")
		} else {
			multilineBuffer.WriteString(line)
		}

		currentInput := multilineBuffer.String()

		if r.isIncompleteInput(currentInput) {
			inMultiline = true
			continue
		}

		if !inMultiline && line != "" {
			r.line.AppendHistory(line)
		}

		r.eval(currentInput)

		multilineBuffer.Reset()
		inMultiline = false
	}
}

func (r *REPL) eval(code string) {
	result, err := scriptexec.RunREPLExpression(r.state, code)
	if err != nil {
		if exc, ok := err.(*goja.Exception); ok {
			fmt.Fprintf(r.writer, "Uncaught: %s\n", eventloop.FormatException(exc))
		} else {
			fmt.Fprintf(r.writer, "Uncaught: %v\n", err)
		}
		return
	}
	if result != nil && !goja.IsUndefined(result) {
		fmt.Fprintf(r.writer, "%s\n", result.String())
	}
}
