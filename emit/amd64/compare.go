package amd64

import "github.com/ProtonOS/tier0/abi"

// Compare emits CMP a, b (64-bit), setting flags for a subsequent
// JumpConditional, Cmovz, or SetCond.
func (e *Emitter) Compare(a, b abi.VReg) { e.aluRR(0x39, true, a, b) }

// Compare32 emits CMP a, b as a 32-bit comparison.
func (e *Emitter) Compare32(a, b abi.VReg) { e.aluRR(0x39, false, a, b) }

// CompareImm emits CMP a, imm32 (64-bit).
func (e *Emitter) CompareImm(a abi.VReg, imm int32) { e.aluImm(0x7, true, a, imm) }

// Test emits TEST a, a (64-bit), the idiom used to check a register
// against zero without destroying it.
func (e *Emitter) Test(a abi.VReg) {
	x, y := Map(a), Map(a)
	e.emitREXIfSet(rex(true, ext(y), false, ext(x)))
	e.Buf.EmitU8(0x85)
	e.Buf.EmitU8(modrmReg(y, x))
}

// Cmovz emits CMOVcc dst, src for the given condition (0x0F 0x40+cc /r),
// a branch-free conditional move used for IL's compare-and-set sequences
// without materializing a jump (spec.md §4.3).
func (e *Emitter) Cmovz(cond abi.Condition, dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x40 | condCC(cond))
	e.Buf.EmitU8(modrmReg(d, s))
}

// SetCond emits SETcc dst (byte set, 0x0F 0x90+cc /r), zero-extending
// the boolean result by first clearing dst's upper bits via ZeroReg is
// the caller's responsibility (SETcc only writes the low byte).
func (e *Emitter) SetCond(cond abi.Condition, dst abi.VReg) {
	d := Map(dst)
	rexByte := rex(false, false, false, ext(d))
	rexByte = rexForByteOperand(rexByte, d)
	e.emitREXIfSet(rexByte)
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x90 | condCC(cond))
	e.Buf.EmitU8(0xC0 | low3(d))
}
