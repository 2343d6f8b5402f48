// Package wasmvm implements a minimal WebAssembly interpreter, just
// sufficient to decode a binary module's type/function/code/export
// sections and execute integer arithmetic over locals and constants
// (§8 scenario 6: an exported add(i32, i32) -> i32 function).
//
// No WebAssembly runtime library (wazero, wasmer-go, etc.) appears
// anywhere in the retrieved example corpus, so unlike every other
// component in this module, this one is deliberately built on nothing but
// the standard library — see DESIGN.md for the grounding note. It is
// intentionally narrow: only the instructions a handful of arithmetic
// exported functions need (local.get, i32.const, i32.add, i32.sub,
// i32.mul, end) are implemented; anything else decodes successfully but
// fails at call time with "unsupported opcode".
package wasmvm

import (
	"encoding/binary"
	"fmt"
)

// ValType is a WebAssembly value type byte.
type ValType byte

const (
	I32 ValType = 0x7F
	I64 ValType = 0x7E
	F32 ValType = 0x7D
	F64 ValType = 0x7C
)

// FuncType is a function signature from the type section.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

type funcBody struct {
	typeIdx   uint32
	numParams int
	numLocals int
	code      []byte
}

type exportDesc struct {
	kind  byte // 0 = func
	index uint32
}

// Module is a decoded WebAssembly module, not yet instantiated.
type Module struct {
	types   []FuncType
	funcs   []funcBody // indexed by function index (this interpreter has no imported functions, so function index == code-section index)
	exports map[string]exportDesc
}

// HostFunc is a callable exported function, already bound to a module
// instance's locals/constant pool.
type HostFunc func(args []int32) ([]int32, error)

// Instance is an instantiated module: its exported functions, ready to
// call from Go.
type Instance struct {
	Exports map[string]HostFunc
}

const (
	secType     = 1
	secFunction = 3
	secExport   = 7
	secCode     = 10

	exportKindFunc = 0
)

// Decode parses a WebAssembly binary module.
func Decode(data []byte) (*Module, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("truncated module header")
	}
	if string(data[:4]) != "\x00asm" {
		return nil, fmt.Errorf("bad magic number")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != 1 {
		return nil, fmt.Errorf("unsupported version %d", version)
	}

	r := &reader{buf: data[8:]}
	m := &Module{exports: make(map[string]exportDesc)}
	var funcTypeIdx []uint32

	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		body, err := r.readBytes(int(size))
		if err != nil {
			return nil, err
		}
		sr := &reader{buf: body}

		switch id {
		case secType:
			if err := decodeTypeSection(sr, m); err != nil {
				return nil, err
			}
		case secFunction:
			idx, err := decodeFunctionSection(sr)
			if err != nil {
				return nil, err
			}
			funcTypeIdx = idx
		case secExport:
			if err := decodeExportSection(sr, m); err != nil {
				return nil, err
			}
		case secCode:
			funcs, err := decodeCodeSection(sr, funcTypeIdx)
			if err != nil {
				return nil, err
			}
			m.funcs = funcs
		}
		// Every other section (import, table, memory, global, start,
		// element, data, custom) is skipped: this interpreter supports
		// neither imports nor linear memory.
	}
	return m, nil
}

func decodeTypeSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tag, err := r.readByte()
		if err != nil {
			return err
		}
		if tag != 0x60 {
			return fmt.Errorf("unsupported type form 0x%02x", tag)
		}
		params, err := r.readValTypeVec()
		if err != nil {
			return err
		}
		results, err := r.readValTypeVec()
		if err != nil {
			return err
		}
		m.types = append(m.types, FuncType{Params: params, Results: results})
	}
	return nil
}

func decodeFunctionSection(r *reader) ([]uint32, error) {
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	idx := make([]uint32, count)
	for i := range idx {
		v, err := r.readU32()
		if err != nil {
			return nil, err
		}
		idx[i] = v
	}
	return idx, nil
}

func decodeExportSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.readName()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		index, err := r.readU32()
		if err != nil {
			return err
		}
		m.exports[name] = exportDesc{kind: kind, index: index}
	}
	return nil
}

func decodeCodeSection(r *reader, funcTypeIdx []uint32) ([]funcBody, error) {
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if int(count) != len(funcTypeIdx) {
		return nil, fmt.Errorf("code section has %d bodies, function section declared %d", count, len(funcTypeIdx))
	}
	funcs := make([]funcBody, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		body, err := r.readBytes(int(size))
		if err != nil {
			return nil, err
		}
		br := &reader{buf: body}
		localGroups, err := br.readU32()
		if err != nil {
			return nil, err
		}
		numLocals := 0
		for g := uint32(0); g < localGroups; g++ {
			n, err := br.readU32()
			if err != nil {
				return nil, err
			}
			if _, err := br.readByte(); err != nil { // valtype, not needed beyond the count
				return nil, err
			}
			numLocals += int(n)
		}
		funcs[i] = funcBody{
			typeIdx:   funcTypeIdx[i],
			numLocals: numLocals,
			code:      br.buf[br.pos:],
		}
	}
	return funcs, nil
}

// Instantiate builds callable host functions for every function export.
func (m *Module) Instantiate() (*Instance, error) {
	inst := &Instance{Exports: make(map[string]HostFunc)}
	for name, desc := range m.exports {
		if desc.kind != exportKindFunc {
			continue
		}
		if int(desc.index) >= len(m.funcs) {
			return nil, fmt.Errorf("export %q references out-of-range function %d", name, desc.index)
		}
		fn := m.funcs[desc.index]
		if int(fn.typeIdx) >= len(m.types) {
			return nil, fmt.Errorf("function %d references out-of-range type %d", desc.index, fn.typeIdx)
		}
		sig := m.types[fn.typeIdx]
		fn.numParams = len(sig.Params)
		resultArity := len(sig.Results)
		inst.Exports[name] = makeHostFunc(fn, resultArity)
	}
	return inst, nil
}

func makeHostFunc(fn funcBody, resultArity int) HostFunc {
	return func(args []int32) ([]int32, error) {
		locals := make([]int32, fn.numParams+fn.numLocals)
		copy(locals, args)
		return execute(fn.code, locals, resultArity)
	}
}

const (
	opLocalGet = 0x20
	opI32Const = 0x41
	opI32Add   = 0x6A
	opI32Sub   = 0x6B
	opI32Mul   = 0x6C
	opEnd      = 0x0B
)

func execute(code []byte, locals []int32, resultArity int) ([]int32, error) {
	var stack []int32
	r := &reader{buf: code}

	pop := func() (int32, error) {
		n := len(stack)
		if n == 0 {
			return 0, fmt.Errorf("stack underflow")
		}
		v := stack[n-1]
		stack = stack[:n-1]
		return v, nil
	}

	for r.remaining() > 0 {
		op, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case opEnd:
			if resultArity > len(stack) {
				return nil, fmt.Errorf("function fell through with too few results on the stack")
			}
			return stack[len(stack)-resultArity:], nil
		case opLocalGet:
			idx, err := r.readU32()
			if err != nil {
				return nil, err
			}
			if int(idx) >= len(locals) {
				return nil, fmt.Errorf("local.get index %d out of range", idx)
			}
			stack = append(stack, locals[idx])
		case opI32Const:
			v, err := r.readI32()
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		case opI32Add:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			stack = append(stack, a+b)
		case opI32Sub:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			stack = append(stack, a-b)
		case opI32Mul:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			stack = append(stack, a*b)
		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x", op)
		}
	}
	return nil, fmt.Errorf("function body missing end instruction")
}
