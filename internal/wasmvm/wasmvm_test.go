package wasmvm

import "testing"

func addModuleBytes() []byte {
	return []byte{
		0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic, version 1

		// type section: (i32, i32) -> i32
		0x01, 0x07, 0x01, 0x60, 0x02, 0x7F, 0x7F, 0x01, 0x7F,

		// function section: one function, using type 0
		0x03, 0x02, 0x01, 0x00,

		// export section: "add" -> func 0
		0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,

		// code section: local.get 0; local.get 1; i32.add; end
		0x0A, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6A, 0x0B,
	}
}

func TestDecodeAndInstantiateAddModule(t *testing.T) {
	mod, err := Decode(addModuleBytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	inst, err := mod.Instantiate()
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	add, ok := inst.Exports["add"]
	if !ok {
		t.Fatalf("expected an \"add\" export")
	}
	results, err := add([]int32{2, 3})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(results) != 1 || results[0] != 5 {
		t.Fatalf("expected [5], got %v", results)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	if _, err := Decode([]byte("not a wasm module")); err == nil {
		t.Fatalf("expected an error for a bad magic number")
	}
}

func TestSignedLEB128RoundTripsNegativeConstants(t *testing.T) {
	// i32.const -1; end  -- the negative-const path must sign-extend.
	code := []byte{0x41, 0x7F, 0x0B}
	results, err := execute(code, nil, 1)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(results) != 1 || results[0] != -1 {
		t.Fatalf("expected [-1], got %v", results)
	}
}
