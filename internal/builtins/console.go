package builtins

import (
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/douglasjordan2/jstime/internal/isolatestate"
)

// console keeps the console.time()/console.timeEnd() label table.
// Grounded on internal/modules/console.go from the teacher; log/error/warn
// formatting and the table renderer are carried over close to verbatim,
// generalized to take an isolatestate.State instead of holding the vm
// directly.
type console struct {
	mu     sync.Mutex
	timers map[string]time.Time
}

func installConsole(state *isolatestate.State) {
	c := &console{timers: make(map[string]time.Time)}
	vm := state.VM
	obj := vm.NewObject()
	_ = obj.Set("log", c.log)
	_ = obj.Set("info", c.log)
	_ = obj.Set("error", c.errorLog)
	_ = obj.Set("warn", c.warnLog)
	_ = obj.Set("time", c.time)
	_ = obj.Set("timeEnd", c.timeEnd)
	_ = obj.Set("table", c.table)
	vm.Set("console", obj)
}

func exportedArgs(call goja.FunctionCall) []any {
	args := make([]any, len(call.Arguments))
	for i, arg := range call.Arguments {
		args[i] = arg.Export()
	}
	return args
}

func (c *console) log(call goja.FunctionCall) goja.Value {
	fmt.Println(exportedArgs(call)...)
	return goja.Undefined()
}

func (c *console) errorLog(call goja.FunctionCall) goja.Value {
	fmt.Print("ERROR: ")
	fmt.Println(exportedArgs(call)...)
	return goja.Undefined()
}

func (c *console) warnLog(call goja.FunctionCall) goja.Value {
	fmt.Print("WARN: ")
	fmt.Println(exportedArgs(call)...)
	return goja.Undefined()
}

func (c *console) time(call goja.FunctionCall) goja.Value {
	label := "default"
	if len(call.Arguments) > 0 {
		label = call.Arguments[0].String()
	}
	c.mu.Lock()
	c.timers[label] = time.Now()
	c.mu.Unlock()
	return goja.Undefined()
}

func (c *console) timeEnd(call goja.FunctionCall) goja.Value {
	label := "default"
	if len(call.Arguments) > 0 {
		label = call.Arguments[0].String()
	}
	c.mu.Lock()
	start, ok := c.timers[label]
	if ok {
		delete(c.timers, label)
	}
	c.mu.Unlock()

	if !ok {
		fmt.Printf("Warning: No such label '%s' for console.timeEnd()\n", label)
		return goja.Undefined()
	}
	fmt.Printf("%s: %.3fms\n", label, float64(time.Since(start).Microseconds())/1000.0)
	return goja.Undefined()
}

func (c *console) table(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		return goja.Undefined()
	}
	switch v := call.Arguments[0].Export().(type) {
	case []any:
		printArrayTable(v)
	case map[string]any:
		printObjectTable(v)
	default:
		fmt.Println(v)
	}
	return goja.Undefined()
}

func printArrayTable(data []any) {
	if len(data) == 0 {
		return
	}
	width := 36
	for _, item := range data {
		if n := len(fmt.Sprintf("%v", item)); n > width {
			width = n
		}
	}
	if width > 60 {
		width = 60
	}
	fmt.Println("+---------+" + repeatDash(width+2) + "+")
	fmt.Printf("| (index) | %-*s |\n", width, "Values")
	fmt.Println("+---------+" + repeatDash(width+2) + "+")
	for i, item := range data {
		s := fmt.Sprintf("%v", item)
		if len(s) > width {
			s = s[:width-3] + "..."
		}
		fmt.Printf("| %-7d | %-*s |\n", i, width, s)
	}
	fmt.Println("+---------+" + repeatDash(width+2) + "+")
}

func printObjectTable(data map[string]any) {
	if len(data) == 0 {
		return
	}
	keyWidth, valWidth := 10, 24
	for k, v := range data {
		if len(k) > keyWidth {
			keyWidth = len(k)
		}
		if n := len(fmt.Sprintf("%v", v)); n > valWidth {
			valWidth = n
		}
	}
	if keyWidth > 30 {
		keyWidth = 30
	}
	if valWidth > 50 {
		valWidth = 50
	}
	fmt.Println("+" + repeatDash(keyWidth+2) + "+" + repeatDash(valWidth+2) + "+")
	fmt.Printf("| %-*s | %-*s |\n", keyWidth, "(index)", valWidth, "Values")
	fmt.Println("+" + repeatDash(keyWidth+2) + "+" + repeatDash(valWidth+2) + "+")
	for k, v := range data {
		ks, vs := k, fmt.Sprintf("%v", v)
		if len(ks) > keyWidth {
			ks = ks[:keyWidth-3] + "..."
		}
		if len(vs) > valWidth {
			vs = vs[:valWidth-3] + "..."
		}
		fmt.Printf("| %-*s | %-*s |\n", keyWidth, ks, valWidth, vs)
	}
	fmt.Println("+" + repeatDash(keyWidth+2) + "+" + repeatDash(valWidth+2) + "+")
}

func repeatDash(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}
