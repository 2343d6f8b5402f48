package builtins

import "testing"

func TestPromiseAllResolvesInOrderAndRejectsOnFirstFailure(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__result = null;
		Promise.all([Promise.resolve(1), Promise.resolve(2), 3]).then(function(vals) {
			globalThis.__result = vals;
		});

		globalThis.__rejected = null;
		Promise.all([Promise.resolve(1), Promise.reject("nope")]).then(null, function(err) {
			globalThis.__rejected = err;
		});
	`
	runScript(t, state, script)

	result := state.VM.Get("__result").Export().([]any)
	if len(result) != 3 {
		t.Fatalf("expected 3 resolved values, got %v", result)
	}
	for i, want := range []int64{1, 2, 3} {
		if v, ok := result[i].(int64); !ok || v != want {
			t.Fatalf("expected result[%d]=%d, got %v", i, want, result[i])
		}
	}
	if got := state.VM.Get("__rejected").String(); got != "nope" {
		t.Fatalf("expected Promise.all to reject with the first rejection reason, got %q", got)
	}
}

func TestPromiseRaceSettlesWithTheFirstToSettle(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__winner = null;
		var slow = new Promise(function(resolve) { setTimeout(function() { resolve("slow"); }, 10); });
		var fast = Promise.resolve("fast");
		Promise.race([slow, fast]).then(function(v) { globalThis.__winner = v; });
	`
	runScript(t, state, script)
	if got := state.VM.Get("__winner").String(); got != "fast" {
		t.Fatalf("expected race to settle with the already-resolved promise, got %q", got)
	}
}

func TestPromiseAllSettledReportsEachOutcome(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__statuses = null;
		Promise.allSettled([Promise.resolve(1), Promise.reject("boom")]).then(function(results) {
			globalThis.__statuses = results.map(function(r) { return r.status; });
		});
	`
	runScript(t, state, script)
	statuses := state.VM.Get("__statuses").Export().([]any)
	if len(statuses) != 2 || statuses[0] != "fulfilled" || statuses[1] != "rejected" {
		t.Fatalf("expected [fulfilled, rejected], got %v", statuses)
	}
}

func TestPromiseFinallyRunsOnBothPathsAndPreservesTheOutcome(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__finallyCount = 0;
		globalThis.__resolvedValue = null;
		globalThis.__rejectedReason = null;
		Promise.resolve("ok").finally(function() { globalThis.__finallyCount++; }).then(function(v) {
			globalThis.__resolvedValue = v;
		});
		Promise.reject("bad").finally(function() { globalThis.__finallyCount++; }).catch(function(e) {
			globalThis.__rejectedReason = e;
		});
	`
	runScript(t, state, script)
	if got := state.VM.Get("__finallyCount").ToInteger(); got != 2 {
		t.Fatalf("expected finally to run on both the resolved and rejected chains, got %d", got)
	}
	if got := state.VM.Get("__resolvedValue").String(); got != "ok" {
		t.Fatalf("expected finally to pass through the resolved value, got %q", got)
	}
	if got := state.VM.Get("__rejectedReason").String(); got != "bad" {
		t.Fatalf("expected finally to pass through the rejection reason, got %q", got)
	}
}
