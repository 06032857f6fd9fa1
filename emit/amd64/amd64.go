// Package amd64 is the x86-64 realization of the emit.Target interface
// (spec.md §4.3). It is grounded on the teacher's mnemonic-level
// encoder (tinyrange-rtg/std/compiler/x64.go, backend_x64.go) but
// generalized from that compiler's hard-wired physical registers to the
// spec's virtual-register set, its fuller instruction surface (SSE
// scalar float, 32-bit-vs-64-bit arithmetic variants, disp8/disp32/SIB
// addressing for every base register rather than just RBP/RSP), and its
// Microsoft x64 prologue/epilogue/argument-homing contract.
package amd64

import (
	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codebuffer"
	"github.com/ProtonOS/tier0/emit"
)

// Physical x86-64 general-purpose register encodings.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15
)

// Target describes the Microsoft x64 calling convention this package
// realizes (spec.md §6).
var Target = emit.Target{
	Name:              "amd64",
	IntArgRegisters:   4,
	FloatArgRegisters: 4,
	ShadowSpaceBytes:  32,
	StackAlignBytes:   16,
}

// vregPhysical is the static VReg -> physical-register mapping of
// spec.md §3: R0=RAX, R1=RCX, R2=RDX, R3=R8, R4=R9, R5=R10, R6=R11,
// R7=RBX, R8=R12, R9=R13, R10=R14, R11=R15, SP=RSP, FP=RBP.
var vregPhysical = [...]int{
	abi.R0:  RAX,
	abi.R1:  RCX,
	abi.R2:  RDX,
	abi.R3:  R8,
	abi.R4:  R9,
	abi.R5:  R10,
	abi.R6:  R11,
	abi.R7:  RBX,
	abi.R8:  R12,
	abi.R9:  R13,
	abi.R10: R14,
	abi.R11: R15,
	abi.SP:  RSP,
	abi.FP:  RBP,
}

// Map returns the physical register a virtual register is bound to.
func Map(v abi.VReg) int { return vregPhysical[v] }

// MapF returns the physical XMM register an FReg is bound to. Float
// virtual registers map onto XMM registers of the same index.
func MapF(f abi.FReg) int { return int(f) }

// CalleeSaved lists the integer registers this target's prologue spills
// (spec.md §3 frame layout: "five callee-saved registers at fixed
// offsets"). RBP is saved separately via push/leave, not in this list.
var CalleeSaved = [5]int{RBX, R12, R13, R14, R15}

// condCC maps an architecture-neutral Condition to the x86 condition
// code nibble used by Jcc (0x0F 0x80+cc), SETcc (0x0F 0x90+cc), and
// CMOVcc (0x0F 0x40+cc).
func condCC(c abi.Condition) byte {
	switch c {
	case abi.Equal:
		return 0x4
	case abi.NotEqual:
		return 0x5
	case abi.LessThan:
		return 0xC
	case abi.LessOrEqual:
		return 0xE
	case abi.GreaterThan:
		return 0xF
	case abi.GreaterOrEqual:
		return 0xD
	case abi.Below:
		return 0x2
	case abi.BelowOrEqual:
		return 0x6
	case abi.Above:
		return 0x7
	case abi.AboveOrEqual:
		return 0x3
	default:
		panic("amd64: unknown condition")
	}
}

// Emitter drives instruction emission into a single code buffer. It
// carries no state beyond the buffer reference, so distinct Emitters
// over disjoint buffers may run concurrently (spec.md §4.3) even though
// this core's driver never does (spec.md §5).
type Emitter struct {
	Buf *codebuffer.Buffer
}

// New wraps buf for x86-64 instruction emission.
func New(buf *codebuffer.Buffer) *Emitter {
	return &Emitter{Buf: buf}
}

// rex computes the REX prefix byte by OR-ing W (64-bit operand), R (reg
// field extension), X (SIB index extension), and B (r/m or base
// extension), per spec.md §4.3's encoding discipline. It returns 0 (no
// prefix emitted) unless W is requested or at least one of R/X/B is set.
func rex(w, r, x, b bool) byte {
	if !w && !r && !x && !b {
		return 0
	}
	out := byte(0x40)
	if w {
		out |= 0x08
	}
	if r {
		out |= 0x04
	}
	if x {
		out |= 0x02
	}
	if b {
		out |= 0x01
	}
	return out
}

func ext(reg int) bool { return reg >= 8 }
func low3(reg int) byte { return byte(reg & 7) }

// emitREXIfSet writes rexByte iff it is non-zero.
func (e *Emitter) emitREXIfSet(rexByte byte) {
	if rexByte != 0 {
		e.Buf.EmitU8(rexByte)
	}
}

// modrmReg builds a register-direct (mod=11) ModR/M byte.
func modrmReg(regField, rm int) byte {
	return 0xC0 | (low3(regField) << 3) | low3(rm)
}

// emitMem writes the ModR/M (+SIB, +displacement) bytes addressing
// [base+disp] with regField in the reg field. It implements spec.md
// §4.3's addressing rules: RBP/R13 always carries a displacement (mod=00
// with rm=101 means RIP-relative, not [rbp]); RSP/R12 always emits a SIB
// byte (rm=100 is the SIB escape). The REX prefix must be emitted by the
// caller, who alone knows whether the access is 8/16/32/64-bit (W bit).
func emitMem(buf *codebuffer.Buffer, regField, base int, disp int32) {
	baseLow := low3(base)
	needsSIB := baseLow == 0x4 // RSP or R12
	needsDisp := baseLow == 0x5 // RBP or R13: mod=00 is reserved for RIP-relative

	var mod byte
	switch {
	case disp == 0 && !needsDisp:
		mod = 0x00
	case disp >= -128 && disp <= 127:
		mod = 0x01
	default:
		mod = 0x02
	}

	rm := baseLow
	if needsSIB {
		rm = 0x4
	}
	buf.EmitU8(mod<<6 | (low3(regField) << 3) | rm)
	if needsSIB {
		// scale=00, index=100 (none), base=baseLow
		buf.EmitU8(0x00<<6 | 0x4<<3 | baseLow)
	}
	switch mod {
	case 0x01:
		buf.EmitU8(byte(int8(disp)))
	case 0x02:
		buf.EmitU32(uint32(disp))
	}
}
