package amd64

import "github.com/ProtonOS/tier0/abi"

// And emits AND dst, src (64-bit).
func (e *Emitter) And(dst, src abi.VReg) { e.aluRR(0x21, true, dst, src) }

// AndImm emits AND dst, imm32 (64-bit).
func (e *Emitter) AndImm(dst abi.VReg, imm int32) { e.aluImm(0x4, true, dst, imm) }

// Or emits OR dst, src (64-bit).
func (e *Emitter) Or(dst, src abi.VReg) { e.aluRR(0x09, true, dst, src) }

// OrImm emits OR dst, imm32 (64-bit).
func (e *Emitter) OrImm(dst abi.VReg, imm int32) { e.aluImm(0x1, true, dst, imm) }

// Xor emits XOR dst, src (64-bit).
func (e *Emitter) Xor(dst, src abi.VReg) { e.aluRR(0x31, true, dst, src) }

// XorImm emits XOR dst, imm32 (64-bit).
func (e *Emitter) XorImm(dst abi.VReg, imm int32) { e.aluImm(0x6, true, dst, imm) }

// Not emits NOT dst (one's complement, group-3 opcode 0xF7 /2).
func (e *Emitter) Not(dst abi.VReg) {
	d := Map(dst)
	e.emitREXIfSet(rex(true, false, false, ext(d)))
	e.Buf.EmitU8(0xF7)
	e.Buf.EmitU8(0xD0 | low3(d))
}

// shiftImm emits the group-2 shift-by-imm8 opcode (0xC1 /digit ib).
func (e *Emitter) shiftImm(ext3 byte, w bool, dst abi.VReg, count uint8) {
	d := Map(dst)
	e.emitREXIfSet(rex(w, false, false, ext(d)))
	e.Buf.EmitU8(0xC1)
	e.Buf.EmitU8(0xC0 | ext3<<3 | low3(d))
	e.Buf.EmitU8(count)
}

// shiftCL emits the group-2 shift-by-CL opcode (0xD3 /digit), the
// variable-shift form spec.md §4.3 requires when the count is not a
// compile-time constant; the count must already be in CL.
func (e *Emitter) shiftCL(ext3 byte, w bool, dst abi.VReg) {
	d := Map(dst)
	e.emitREXIfSet(rex(w, false, false, ext(d)))
	e.Buf.EmitU8(0xD3)
	e.Buf.EmitU8(0xC0 | ext3<<3 | low3(d))
}

// ShiftLeftImm emits SHL dst, count.
func (e *Emitter) ShiftLeftImm(dst abi.VReg, count uint8) { e.shiftImm(0x4, true, dst, count) }

// ShiftLeftCL emits SHL dst, cl. Caller must have loaded the count into
// the CL (RCX low byte) virtual register, abi.R1, beforehand.
func (e *Emitter) ShiftLeftCL(dst abi.VReg) { e.shiftCL(0x4, true, dst) }

// ShiftRightSignedImm emits SAR dst, count (arithmetic, sign-preserving).
func (e *Emitter) ShiftRightSignedImm(dst abi.VReg, count uint8) { e.shiftImm(0x7, true, dst, count) }

// ShiftRightSignedCL emits SAR dst, cl.
func (e *Emitter) ShiftRightSignedCL(dst abi.VReg) { e.shiftCL(0x7, true, dst) }

// ShiftRightUnsignedImm emits SHR dst, count (logical).
func (e *Emitter) ShiftRightUnsignedImm(dst abi.VReg, count uint8) { e.shiftImm(0x5, true, dst, count) }

// ShiftRightUnsignedCL emits SHR dst, cl.
func (e *Emitter) ShiftRightUnsignedCL(dst abi.VReg) { e.shiftCL(0x5, true, dst) }

// ShiftLeftImm32, ShiftRightSignedImm32, ShiftRightUnsignedImm32 are the
// 32-bit forms used for int32 IL shift opcodes (spec.md §4.4); the
// result's upper 32 bits are zeroed by the processor as usual.
func (e *Emitter) ShiftLeftImm32(dst abi.VReg, count uint8)          { e.shiftImm(0x4, false, dst, count) }
func (e *Emitter) ShiftRightSignedImm32(dst abi.VReg, count uint8)   { e.shiftImm(0x7, false, dst, count) }
func (e *Emitter) ShiftRightUnsignedImm32(dst abi.VReg, count uint8) { e.shiftImm(0x5, false, dst, count) }
func (e *Emitter) ShiftLeftCL32(dst abi.VReg)                        { e.shiftCL(0x4, false, dst) }
func (e *Emitter) ShiftRightSignedCL32(dst abi.VReg)                 { e.shiftCL(0x7, false, dst) }
func (e *Emitter) ShiftRightUnsignedCL32(dst abi.VReg)               { e.shiftCL(0x5, false, dst) }
