package iljit

import (
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codebuffer"
	"github.com/ProtonOS/tier0/il"
	"golang.org/x/arch/x86/x86asm"
)

// decodeAll confirms x86asm can walk the whole emitted buffer as valid
// instructions, independent of this package's own emitter logic — the
// same cross-check emit/amd64's tests run per-instruction.
func decodeAll(t *testing.T, code []byte) {
	t.Helper()
	rest := code
	for len(rest) > 0 {
		inst, err := x86asm.Decode(rest, 64)
		if err != nil {
			t.Fatalf("x86asm could not decode %x: %v", rest, err)
		}
		rest = rest[inst.Len:]
	}
}

func op(b *[]byte, o il.Opcode) { *b = append(*b, byte(o)) }

func opIndex(b *[]byte, o il.Opcode, idx uint16) {
	op(b, o)
	*b = binary.LittleEndian.AppendUint16(*b, idx)
}

func opI4(b *[]byte, v int32) {
	op(b, il.LdcI4)
	*b = binary.LittleEndian.AppendUint32(*b, uint32(v))
}

func opBranch(b *[]byte, o il.Opcode, target int32) {
	op(b, o)
	*b = binary.LittleEndian.AppendUint32(*b, uint32(target))
}

func opToken(b *[]byte, o il.Opcode, tok il.Token) {
	op(b, o)
	*b = append(*b, byte(tok.Table))
	*b = binary.LittleEndian.AppendUint32(*b, tok.RID)
}

// stubResolver errors on any call the test doesn't expect, so a
// compiler bug that reaches the resolver unexpectedly fails loudly
// instead of silently returning a zero value.
type stubResolver struct {
	resolveCall func(abi.MethodID) (*byte, Signature, error)
	allocate    func() (*byte, error)
}

func (s *stubResolver) ResolveCall(callee abi.MethodID) (*byte, Signature, error) {
	if s.resolveCall != nil {
		return s.resolveCall(callee)
	}
	return nil, Signature{}, errors.New("ResolveCall not expected")
}

func (s *stubResolver) ResolveConstructor(callee abi.MethodID) (*byte, uintptr, Signature, error) {
	return nil, 0, Signature{}, errors.New("ResolveConstructor not expected")
}

func (s *stubResolver) AllocateObject() (*byte, error) {
	if s.allocate != nil {
		return s.allocate()
	}
	return nil, errors.New("AllocateObject not expected")
}

func newCodeBuffer() *codebuffer.Buffer {
	return codebuffer.New(make([]byte, 4096))
}

func TestCompileAddTwoArgsReturnsInt32(t *testing.T) {
	var body []byte
	opIndex(&body, il.Ldarg, 0)
	opIndex(&body, il.Ldarg, 1)
	op(&body, il.Add)
	op(&body, il.Ret)

	sig := Signature{
		Params:     []Param{{Kind: abi.ArgInt32}, {Kind: abi.ArgInt32}},
		ReturnKind: abi.RetInt32,
	}
	buf := newCodeBuffer()
	result, err := Compile(abi.MethodID{Token: 1}, sig, body, buf, &stubResolver{}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if result.CodeSize == 0 {
		t.Fatal("CodeSize = 0")
	}
	if len(result.Safepoints) != 0 {
		t.Fatalf("unexpected safepoints for a call-free method: %v", result.Safepoints)
	}
	decodeAll(t, buf.Bytes()[:result.CodeSize])
}

func TestCompileVoidMethodNoReturnValue(t *testing.T) {
	var body []byte
	op(&body, il.Nop)
	op(&body, il.Ret)

	sig := Signature{ReturnKind: abi.RetVoid}
	buf := newCodeBuffer()
	result, err := Compile(abi.MethodID{Token: 2}, sig, body, buf, &stubResolver{}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	decodeAll(t, buf.Bytes()[:result.CodeSize])
}

func TestCompileForwardBranchResolves(t *testing.T) {
	// if (arg0) goto L1; ldc.i4 0; ret;  L1: ldc.i4 1; ret
	var body []byte
	opIndex(&body, il.Ldarg, 0)
	brOffset := len(body)
	opBranch(&body, il.Brtrue, 0) // patched below
	opI4(&body, 0)
	op(&body, il.Ret)
	l1 := len(body)
	opI4(&body, 1)
	op(&body, il.Ret)
	binary.LittleEndian.PutUint32(body[brOffset+1:], uint32(l1))

	sig := Signature{
		Params:     []Param{{Kind: abi.ArgInt32}},
		ReturnKind: abi.RetInt32,
	}
	buf := newCodeBuffer()
	result, err := Compile(abi.MethodID{Token: 3}, sig, body, buf, &stubResolver{}, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	decodeAll(t, buf.Bytes()[:result.CodeSize])
}

func TestCompileUnresolvedBranchTargetIsInputFault(t *testing.T) {
	var body []byte
	opIndex(&body, il.Ldarg, 0)
	opBranch(&body, il.Brtrue, 9999)
	opI4(&body, 0)
	op(&body, il.Ret)

	sig := Signature{Params: []Param{{Kind: abi.ArgInt32}}, ReturnKind: abi.RetInt32}
	buf := newCodeBuffer()
	_, err := Compile(abi.MethodID{Token: 4}, sig, body, buf, &stubResolver{}, Options{})
	if !errors.Is(err, ErrInputFault) {
		t.Fatalf("err = %v, want ErrInputFault", err)
	}
}

func TestCompileUnsupportedOpcodeIsInputFault(t *testing.T) {
	body := []byte{0xFF} // no opcode in il.Opcode's enum reaches this value
	buf := newCodeBuffer()
	_, err := Compile(abi.MethodID{Token: 5}, Signature{ReturnKind: abi.RetVoid}, body, buf, &stubResolver{}, Options{})
	if !errors.Is(err, ErrInputFault) {
		t.Fatalf("err = %v, want ErrInputFault", err)
	}
}

func TestCompileCallPatchesAbsoluteAddressAndRecordsSafepoint(t *testing.T) {
	target := make([]byte, 16)
	calleeSig := Signature{ReturnKind: abi.RetInt32}

	calleeTok := il.Token{Table: il.TableMethodDef, RID: 7}
	var body []byte
	opToken(&body, il.Call, calleeTok)
	op(&body, il.Pop)
	op(&body, il.Ret)

	resolver := &stubResolver{
		resolveCall: func(callee abi.MethodID) (*byte, Signature, error) {
			if callee.Token != calleeTok.Raw() {
				t.Fatalf("unexpected callee token %08x, want %08x", callee.Token, calleeTok.Raw())
			}
			return &target[0], calleeSig, nil
		},
	}

	sig := Signature{ReturnKind: abi.RetVoid}
	buf := newCodeBuffer()
	result, err := Compile(abi.MethodID{Token: 6}, sig, body, buf, resolver, Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(result.Safepoints) != 1 {
		t.Fatalf("Safepoints = %v, want exactly one", result.Safepoints)
	}
	decodeAll(t, buf.Bytes()[:result.CodeSize])

	code := buf.Bytes()[:result.CodeSize]
	calls := 0
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			t.Fatalf("x86asm could not decode at %d: %v", off, err)
		}
		if rel, ok := inst.Args[0].(x86asm.Rel); ok && inst.Op == x86asm.CALL {
			calls++
			got := uintptr(unsafe.Pointer(&code[0])) + uintptr(off+inst.Len) + uintptr(int64(rel))
			if got != uintptr(unsafe.Pointer(&target[0])) {
				t.Fatalf("CALL at %d targets %#x, want %p", off, got, &target[0])
			}
		}
		off += inst.Len
	}
	if calls != 1 {
		t.Fatalf("found %d CALL rel32 instructions, want 1", calls)
	}
}

func TestCompileConservativeInteriorPointersPropagatesToGCInfo(t *testing.T) {
	var body []byte
	op(&body, il.Ret)

	sig := Signature{
		ReturnKind: abi.RetVoid,
		Locals:     []Local{{Kind: abi.ArgIntPtr, IsGCRef: true}},
	}
	bufA := newCodeBuffer()
	resA, err := Compile(abi.MethodID{Token: 8}, sig, body, bufA, &stubResolver{}, Options{ConservativeInteriorPointers: false})
	if err != nil {
		t.Fatalf("Compile (non-conservative): %v", err)
	}
	bufB := newCodeBuffer()
	resB, err := Compile(abi.MethodID{Token: 9}, sig, body, bufB, &stubResolver{}, Options{ConservativeInteriorPointers: true})
	if err != nil {
		t.Fatalf("Compile (conservative): %v", err)
	}
	if bytesEqual(resA.GCInfo, resB.GCInfo) {
		t.Fatal("expected GCInfo to differ when the interior-pointer flag differs")
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
