package amd64

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codebuffer"
	"golang.org/x/arch/x86/x86asm"
)

func newEmitter(t *testing.T) (*Emitter, *codebuffer.Buffer) {
	t.Helper()
	buf := codebuffer.New(make([]byte, 256))
	return New(buf), buf
}

// decodeOne confirms x86asm agrees the bytes form a single valid
// instruction, independent of this package's own encoding logic.
func decodeOne(t *testing.T, code []byte) {
	t.Helper()
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		t.Fatalf("x86asm could not decode %x: %v", code, err)
	}
	if inst.Len != len(code) {
		t.Fatalf("x86asm decoded %d of %d bytes in %x", inst.Len, len(code), code)
	}
}

// spotCheck runs one literal-byte assertion from spec.md §8's emitter
// bit-exactness table.
func spotCheck(t *testing.T, name string, got []byte, want ...byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Fatalf("%s: got % X, want % X", name, got, want)
	}
	decodeOne(t, got)
}

func TestSpotChecks(t *testing.T) {
	t.Run("MovRR_RAX_RCX", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.MovRR(abi.R0, abi.R1)
		spotCheck(t, "MOV RAX, RCX", buf.Bytes(), 0x48, 0x89, 0xC8)
	})

	t.Run("MovRI32_signExtended", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.MovRI32(abi.R0, 0x12345678)
		spotCheck(t, "MOV RAX, 0x12345678", buf.Bytes(), 0x48, 0xC7, 0xC0, 0x78, 0x56, 0x34, 0x12)
	})

	t.Run("AddImm_imm8", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.AddImm(abi.R0, 1)
		spotCheck(t, "ADD RAX, 1", buf.Bytes(), 0x48, 0x83, 0xC0, 0x01)
	})

	t.Run("Mul_IMUL", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.Mul(abi.R0, abi.R1)
		spotCheck(t, "IMUL RAX, RCX", buf.Bytes(), 0x48, 0x0F, 0xAF, 0xC1)
	})

	t.Run("ZeroReg_noREX", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.ZeroReg(abi.R0)
		spotCheck(t, "XOR EAX, EAX", buf.Bytes(), 0x31, 0xC0)
	})

	t.Run("Ret", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.Ret()
		spotCheck(t, "RET", buf.Bytes(), 0xC3)
	})

	t.Run("Leave", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.Leave()
		spotCheck(t, "LEAVE", buf.Bytes(), 0xC9)
	})

	t.Run("CallReg_RCX", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.CallReg(abi.R1)
		spotCheck(t, "CALL RCX", buf.Bytes(), 0xFF, 0xD1)
	})

	t.Run("PrologueEntry", func(t *testing.T) {
		e, buf := newEmitter(t)
		e.PushReg(abi.FP)
		e.MovRR(abi.FP, abi.SP)
		spotCheck(t, "push rbp; mov rbp, rsp", buf.Bytes(), 0x55, 0x48, 0x89, 0xE5)
	})
}

func TestExtendedRegistersSetREXBits(t *testing.T) {
	// R11 (abi.R6) and R15 (abi.R11) both require REX.B/R; this guards
	// against a regression that drops the extension bit silently.
	e, buf := newEmitter(t)
	e.Add(abi.R6, abi.R11) // ADD R11, R15
	got := buf.Bytes()
	if len(got) != 3 {
		t.Fatalf("expected 3 bytes, got % X", got)
	}
	if got[0]&0x4D != 0x4D { // REX.W|R.B all set: 0x48|0x04|0x01
		t.Fatalf("REX byte %#x missing W/R/B bits", got[0])
	}
	decodeOne(t, got)
}

func TestMemoryOperandsHandleSpecialBases(t *testing.T) {
	// RBP/R13 always needs a displacement even when the caller passes 0.
	e, buf := newEmitter(t)
	e.Load64(abi.R0, abi.FP, 0)
	got := buf.Bytes()
	decodeOne(t, got)
	if got[len(got)-1] != 0x00 {
		t.Fatalf("expected an explicit zero disp8 byte for [rbp+0], got % X", got)
	}

	// RSP/R12 always needs a SIB byte.
	e2, buf2 := newEmitter(t)
	e2.Load64(abi.R0, abi.SP, 8)
	decodeOne(t, buf2.Bytes())
	if len(buf2.Bytes()) < 2 || buf2.Bytes()[len(buf2.Bytes())-2] != 0x24 {
		t.Fatalf("expected a SIB byte 0x24 for [rsp+8], got % X", buf2.Bytes())
	}
}

func TestPrologueEpilogueRoundTrip(t *testing.T) {
	e, buf := newEmitter(t)
	info := e.EmitPrologue(128)
	if info.FrameSize%16 != 0 {
		t.Fatalf("frame size %d not 16-byte aligned", info.FrameSize)
	}
	e.EmitEpilogue(info.FrameSize)
	if buf.Overflowed() {
		t.Fatal("unexpected overflow")
	}
	rest := buf.Bytes()
	for len(rest) > 0 {
		inst, err := x86asm.Decode(rest, 64)
		if err != nil {
			t.Fatalf("failed to decode prologue/epilogue stream: %v", err)
		}
		rest = rest[inst.Len:]
	}
}

func TestJumpFixupMath(t *testing.T) {
	e, buf := newEmitter(t)
	off := e.JumpRel32()
	// Pad, then patch to the current position (forward branch).
	e.Ret()
	e.PatchJump(off)
	target := buf.Position()
	gotRel := int32(binary.LittleEndian.Uint32(buf.Bytes()[off:]))
	wantRel := int32(target - (off + 4))
	if gotRel != wantRel {
		t.Fatalf("rel32 math mismatch: %d vs %d", gotRel, wantRel)
	}
	decodeOne(t, buf.Bytes()[:5])
}
