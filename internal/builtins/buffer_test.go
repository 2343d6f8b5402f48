package builtins

import "testing"

func TestBufferFromStringAndAllocAndConcat(t *testing.T) {
	state := newTestState(t)
	script := `
		var a = Buffer.from("AB");
		globalThis.__aLen = a.length;
		globalThis.__a0 = a[0];
		globalThis.__a1 = a[1];

		var z = Buffer.alloc(4, 7);
		globalThis.__zLen = z.length;
		globalThis.__zVals = [z[0], z[1], z[2], z[3]];

		var c = Buffer.concat([Buffer.from("AB"), Buffer.from("CD")]);
		globalThis.__cLen = c.length;
		globalThis.__cVals = [c[0], c[1], c[2], c[3]];
	`
	runScript(t, state, script)

	if got := state.VM.Get("__aLen").ToInteger(); got != 2 {
		t.Fatalf("expected Buffer.from(\"AB\").length == 2, got %d", got)
	}
	if got := state.VM.Get("__a0").ToInteger(); got != 'A' {
		t.Fatalf("expected first byte to be 'A' (%d), got %d", 'A', got)
	}
	if got := state.VM.Get("__a1").ToInteger(); got != 'B' {
		t.Fatalf("expected second byte to be 'B' (%d), got %d", 'B', got)
	}

	if got := state.VM.Get("__zLen").ToInteger(); got != 4 {
		t.Fatalf("expected Buffer.alloc(4, 7).length == 4, got %d", got)
	}
	zVals := state.VM.Get("__zVals").Export().([]any)
	for i, v := range zVals {
		if n, ok := v.(int64); !ok || n != 7 {
			t.Fatalf("expected every alloc byte to be filled with 7, got %v at index %d", v, i)
		}
	}

	if got := state.VM.Get("__cLen").ToInteger(); got != 4 {
		t.Fatalf("expected concatenated length 4, got %d", got)
	}
	cVals := state.VM.Get("__cVals").Export().([]any)
	want := []int64{'A', 'B', 'C', 'D'}
	for i, w := range want {
		if n, ok := cVals[i].(int64); !ok || n != w {
			t.Fatalf("expected concatenated byte %d to be %d, got %v", i, w, cVals[i])
		}
	}
}

func TestBufferByteLengthCompareAndIsEncoding(t *testing.T) {
	state := newTestState(t)
	script := `
		globalThis.__len = Buffer.byteLength("hello");
		globalThis.__cmpEq = Buffer.compare(Buffer.from("abc"), Buffer.from("abc"));
		globalThis.__cmpLt = Buffer.compare(Buffer.from("aaa"), Buffer.from("aab"));
		globalThis.__cmpGt = Buffer.compare(Buffer.from("aab"), Buffer.from("aaa"));
		globalThis.__isHex = Buffer.isEncoding("hex");
		globalThis.__isBogus = Buffer.isEncoding("not-a-real-encoding");
	`
	runScript(t, state, script)

	if got := state.VM.Get("__len").ToInteger(); got != 5 {
		t.Fatalf("expected byteLength 5, got %d", got)
	}
	if got := state.VM.Get("__cmpEq").ToInteger(); got != 0 {
		t.Fatalf("expected compare of equal buffers to be 0, got %d", got)
	}
	if got := state.VM.Get("__cmpLt").ToInteger(); got != -1 {
		t.Fatalf("expected compare(aaa, aab) to be -1, got %d", got)
	}
	if got := state.VM.Get("__cmpGt").ToInteger(); got != 1 {
		t.Fatalf("expected compare(aab, aaa) to be 1, got %d", got)
	}
	if !state.VM.Get("__isHex").ToBoolean() {
		t.Fatalf("expected isEncoding(\"hex\") to be true")
	}
	if state.VM.Get("__isBogus").ToBoolean() {
		t.Fatalf("expected isEncoding of a bogus name to be false")
	}
}

func TestBufferFromHexAndBase64Decoding(t *testing.T) {
	state := newTestState(t)
	script := `
		var fromHex = Buffer.from("4142", "hex");
		globalThis.__hexLen = fromHex.length;
		globalThis.__hex0 = fromHex[0];
		globalThis.__hex1 = fromHex[1];

		var fromB64 = Buffer.from("QUI=", "base64");
		globalThis.__b64Len = fromB64.length;
		globalThis.__b640 = fromB64[0];
		globalThis.__b641 = fromB64[1];
	`
	runScript(t, state, script)

	if got := state.VM.Get("__hexLen").ToInteger(); got != 2 {
		t.Fatalf("expected 2 decoded hex bytes, got %d", got)
	}
	if got := state.VM.Get("__hex0").ToInteger(); got != 'A' {
		t.Fatalf("expected decoded hex byte 0 to be 'A', got %d", got)
	}
	if got := state.VM.Get("__hex1").ToInteger(); got != 'B' {
		t.Fatalf("expected decoded hex byte 1 to be 'B', got %d", got)
	}
	if got := state.VM.Get("__b64Len").ToInteger(); got != 2 {
		t.Fatalf("expected 2 decoded base64 bytes, got %d", got)
	}
	if got := state.VM.Get("__b640").ToInteger(); got != 'A' {
		t.Fatalf("expected decoded base64 byte 0 to be 'A', got %d", got)
	}
	if got := state.VM.Get("__b641").ToInteger(); got != 'B' {
		t.Fatalf("expected decoded base64 byte 1 to be 'B', got %d", got)
	}
}
