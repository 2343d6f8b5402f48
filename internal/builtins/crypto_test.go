package builtins

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestCryptoGetRandomValuesFillsInPlaceAndRejectsOversizedRequests(t *testing.T) {
	state := newTestState(t)
	script := `
		var arr = new Uint8Array(16);
		var returned = crypto.getRandomValues(arr);
		globalThis.__sameRef = (returned === arr);
		var allZero = true;
		for (var i = 0; i < arr.length; i++) { if (arr[i] !== 0) allZero = false; }
		globalThis.__allZero = allZero;

		globalThis.__threw = false;
		try {
			crypto.getRandomValues(new Uint8Array(70000));
		} catch (e) {
			globalThis.__threw = (e instanceof RangeError);
		}
	`
	runScript(t, state, script)

	if !state.VM.Get("__sameRef").ToBoolean() {
		t.Fatalf("expected getRandomValues to return the same typed array it was given")
	}
	if state.VM.Get("__allZero").ToBoolean() {
		t.Fatalf("expected getRandomValues to actually fill the buffer (astronomically unlikely all-zero result)")
	}
	if !state.VM.Get("__threw").ToBoolean() {
		t.Fatalf("expected a request over 65536 bytes to throw a RangeError")
	}
}

func TestCryptoRandomUUIDLooksLikeAUUID(t *testing.T) {
	state := newTestState(t)
	script := `globalThis.__uuid = crypto.randomUUID();`
	runScript(t, state, script)

	id := state.VM.Get("__uuid").String()
	if len(id) != 36 || id[8] != '-' || id[13] != '-' || id[18] != '-' || id[23] != '-' {
		t.Fatalf("expected a canonical UUID string, got %q", id)
	}
}

func TestSubtleDigestResolvesToTheCorrectSHA256Sum(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__done = false;
		var enc = new TextEncoder().encode("hello");
		crypto.subtle.digest("SHA-256", enc).then(function(buf) {
			globalThis.__bytes = Array.from(new Uint8Array(buf));
			globalThis.__done = true;
		});
	`
	runScript(t, state, script)

	if !state.VM.Get("__done").ToBoolean() {
		t.Fatalf("expected the digest promise to resolve")
	}
	want := sha256.Sum256([]byte("hello"))
	got := state.VM.Get("__bytes").Export().([]any)
	if len(got) != len(want) {
		t.Fatalf("expected %d digest bytes, got %d", len(want), len(got))
	}
	for i, b := range want {
		if n, ok := got[i].(int64); !ok || byte(n) != b {
			t.Fatalf("digest mismatch at byte %d: want %d got %v", i, b, got[i])
		}
	}
}

func TestRequireCryptoCreateHashMatchesGoSHA256(t *testing.T) {
	state := newTestState(t)
	script := `
		var crypto = require("crypto");
		globalThis.__digest = crypto.createHash("sha256").update("hello").digest("hex");
	`
	runScript(t, state, script)

	want := hex.EncodeToString(func() []byte { h := sha256.Sum256([]byte("hello")); return h[:] }())
	if got := state.VM.Get("__digest").String(); got != want {
		t.Fatalf("expected sha256 hex digest %q, got %q", want, got)
	}
}

func TestTimingSafeEqualComparesEqualLengthBuffersAndRejectsMismatchedLengths(t *testing.T) {
	state := newTestState(t)
	script := `
		var crypto = require("crypto");
		globalThis.__eq = crypto.timingSafeEqual(Buffer.from("abc"), Buffer.from("abc"));
		globalThis.__neq = crypto.timingSafeEqual(Buffer.from("abc"), Buffer.from("abd"));
		globalThis.__threw = false;
		try {
			crypto.timingSafeEqual(Buffer.from("ab"), Buffer.from("abc"));
		} catch (e) {
			globalThis.__threw = (e instanceof RangeError);
		}
	`
	runScript(t, state, script)

	if !state.VM.Get("__eq").ToBoolean() {
		t.Fatalf("expected equal buffers to compare equal")
	}
	if state.VM.Get("__neq").ToBoolean() {
		t.Fatalf("expected differing buffers to compare unequal")
	}
	if !state.VM.Get("__threw").ToBoolean() {
		t.Fatalf("expected mismatched lengths to throw a RangeError")
	}
}
