package builtins

import "testing"

func TestEventTargetDispatchUsesAListenerSnapshot(t *testing.T) {
	state := newTestState(t)
	script := `
		var target = new EventTarget();
		var calls = [];
		function first(e) {
			calls.push("first");
			target.addEventListener("tick", function late(e) { calls.push("late"); });
			target.removeEventListener("tick", second);
		}
		function second(e) { calls.push("second"); }
		target.addEventListener("tick", first);
		target.addEventListener("tick", second);

		target.dispatchEvent(new Event("tick"));
		globalThis.__firstRound = calls.slice();

		calls = [];
		target.dispatchEvent(new Event("tick"));
		globalThis.__secondRound = calls.slice();
	`
	runScript(t, state, script)

	first := state.VM.Get("__firstRound").Export().([]any)
	if len(first) != 2 || first[0] != "first" || first[1] != "second" {
		t.Fatalf("expected [first, second] on the first dispatch (listener added mid-dispatch must not run, removed listener already snapshotted must still run), got %v", first)
	}

	second := state.VM.Get("__secondRound").Export().([]any)
	if len(second) != 2 || second[0] != "first" || second[1] != "late" {
		t.Fatalf("expected [first, late] on the second dispatch (second was removed, late was added during the first round), got %v", second)
	}
}

func TestEventTargetListenersAreNotEnumerable(t *testing.T) {
	state := newTestState(t)
	script := `
		var target = new EventTarget();
		target.addEventListener("x", function() {});
		globalThis.__keys = Object.keys(target);
		var seen = false;
		for (var k in target) { if (k === "_listeners") seen = true; }
		globalThis.__leakedInForIn = seen;
	`
	runScript(t, state, script)

	keys := state.VM.Get("__keys").Export().([]any)
	for _, k := range keys {
		if k == "_listeners" {
			t.Fatalf("expected _listeners not to appear in Object.keys, got %v", keys)
		}
	}
	if state.VM.Get("__leakedInForIn").ToBoolean() {
		t.Fatalf("expected _listeners not to leak through for...in")
	}
}

func TestEventStopImmediatePropagationHaltsRemainingListeners(t *testing.T) {
	state := newTestState(t)
	script := `
		var target = new EventTarget();
		var calls = [];
		target.addEventListener("x", function(e) { calls.push("a"); e.stopImmediatePropagation(); });
		target.addEventListener("x", function(e) { calls.push("b"); });
		target.dispatchEvent(new Event("x"));
		globalThis.__calls = calls;
	`
	runScript(t, state, script)

	calls := state.VM.Get("__calls").Export().([]any)
	if len(calls) != 1 || calls[0] != "a" {
		t.Fatalf("expected only the first listener to run after stopImmediatePropagation, got %v", calls)
	}
}

func TestEventPreventDefaultOnlyAppliesWhenCancelable(t *testing.T) {
	state := newTestState(t)
	script := `
		var target = new EventTarget();
		var nonCancelable = new Event("x");
		nonCancelable.preventDefault();
		globalThis.__nonCancelableDefaultPrevented = nonCancelable.defaultPrevented;

		var cancelable = new Event("y", { cancelable: true });
		target.addEventListener("y", function(e) { e.preventDefault(); });
		var result = target.dispatchEvent(cancelable);
		globalThis.__cancelableDefaultPrevented = cancelable.defaultPrevented;
		globalThis.__dispatchReturnValue = result;
	`
	runScript(t, state, script)

	if state.VM.Get("__nonCancelableDefaultPrevented").ToBoolean() {
		t.Fatalf("expected preventDefault to be a no-op on a non-cancelable event")
	}
	if !state.VM.Get("__cancelableDefaultPrevented").ToBoolean() {
		t.Fatalf("expected preventDefault to take effect on a cancelable event")
	}
	if state.VM.Get("__dispatchReturnValue").ToBoolean() {
		t.Fatalf("expected dispatchEvent to return false when defaultPrevented")
	}
}
