package builtins

import "testing"

func TestSetTimeoutRunsAndPassesExtraArguments(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__got = null;
		setTimeout(function(a, b) { globalThis.__got = a + b; }, 0, "x", "y");
	`
	runScript(t, state, script)
	if got := state.VM.Get("__got").String(); got != "xy" {
		t.Fatalf("expected extra args to reach the callback, got %q", got)
	}
}

func TestClearTimeoutPreventsTheCallback(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__ran = false;
		var id = setTimeout(function() { globalThis.__ran = true; }, 0);
		clearTimeout(id);
	`
	runScript(t, state, script)
	if state.VM.Get("__ran").ToBoolean() {
		t.Fatalf("expected a cleared timeout to never run")
	}
}

func TestSetIntervalStopsAfterClearInterval(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__count = 0;
		var id = setInterval(function() {
			globalThis.__count++;
			if (globalThis.__count >= 3) clearInterval(id);
		}, 0);
	`
	runScript(t, state, script)
	if got := state.VM.Get("__count").ToInteger(); got != 3 {
		t.Fatalf("expected the interval to stop itself after 3 ticks, got %d", got)
	}
}

func TestQueueMicrotaskRunsBeforeTimersAndInFIFOOrder(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__order = [];
		setTimeout(function() { globalThis.__order.push("timeout"); }, 0);
		queueMicrotask(function() { globalThis.__order.push("micro1"); });
		queueMicrotask(function() { globalThis.__order.push("micro2"); });
	`
	runScript(t, state, script)
	order := state.VM.Get("__order").Export().([]any)
	if len(order) != 3 || order[0] != "micro1" || order[1] != "micro2" || order[2] != "timeout" {
		t.Fatalf("expected [micro1, micro2, timeout], got %v", order)
	}
}
