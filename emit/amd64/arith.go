package amd64

import "github.com/ProtonOS/tier0/abi"

// aluRR emits the r/m64,r64 (or r/m32,r32 when w is false) form of a
// two-register ALU opcode: dst is encoded as r/m, src as reg.
func (e *Emitter) aluRR(opcode byte, w bool, dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(w, ext(s), false, ext(d)))
	e.Buf.EmitU8(opcode)
	e.Buf.EmitU8(modrmReg(s, d))
}

// aluImm emits the /digit,imm group-1 opcode (0x83 sign-extended imm8 or
// 0x81 imm32) against dst, selecting the shortest encoding that fits.
func (e *Emitter) aluImm(ext3 byte, w bool, dst abi.VReg, imm int32) {
	d := Map(dst)
	e.emitREXIfSet(rex(w, false, false, ext(d)))
	if imm >= -128 && imm <= 127 {
		e.Buf.EmitU8(0x83)
		e.Buf.EmitU8(0xC0 | ext3<<3 | low3(d))
		e.Buf.EmitU8(byte(int8(imm)))
		return
	}
	e.Buf.EmitU8(0x81)
	e.Buf.EmitU8(0xC0 | ext3<<3 | low3(d))
	e.Buf.EmitU32(uint32(imm))
}

// Add emits ADD dst, src (64-bit).
func (e *Emitter) Add(dst, src abi.VReg) { e.aluRR(0x01, true, dst, src) }

// Add32 emits ADD dst, src as a 32-bit add (zero-extending the result,
// matching the int32 IL arithmetic opcodes of spec.md §4.4).
func (e *Emitter) Add32(dst, src abi.VReg) { e.aluRR(0x01, false, dst, src) }

// AddImm emits ADD dst, imm32 (64-bit).
func (e *Emitter) AddImm(dst abi.VReg, imm int32) { e.aluImm(0x0, true, dst, imm) }

// Sub emits SUB dst, src (64-bit).
func (e *Emitter) Sub(dst, src abi.VReg) { e.aluRR(0x29, true, dst, src) }

// Sub32 emits SUB dst, src as a 32-bit subtract.
func (e *Emitter) Sub32(dst, src abi.VReg) { e.aluRR(0x29, false, dst, src) }

// SubImm emits SUB dst, imm32 (64-bit).
func (e *Emitter) SubImm(dst abi.VReg, imm int32) { e.aluImm(0x5, true, dst, imm) }

// Neg emits NEG dst (two's-complement negation, group-3 opcode 0xF7 /3).
func (e *Emitter) Neg(dst abi.VReg) {
	d := Map(dst)
	e.emitREXIfSet(rex(true, false, false, ext(d)))
	e.Buf.EmitU8(0xF7)
	e.Buf.EmitU8(0xD8 | low3(d))
}

// Mul emits IMUL dst, src (two-operand signed multiply, 0x0F 0xAF /r;
// dst is both source operands 1 and destination per spec.md §4.3).
func (e *Emitter) Mul(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xAF)
	e.Buf.EmitU8(modrmReg(d, s))
}

// Mul32 emits IMUL dst, src as a 32-bit signed multiply.
func (e *Emitter) Mul32(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xAF)
	e.Buf.EmitU8(modrmReg(d, s))
}

// DivSigned emits the IDIV sequence for signed 64-bit division: dst and
// the implicit RDX:RAX pair are used per the x86 DIV/IDIV contract, so
// the IL compiler must have dividend in RAX and sign-extend into RDX
// (CQO) before calling this (spec.md §4.4's div lowering). divisor must
// not be RAX or RDX.
func (e *Emitter) DivSigned(divisor abi.VReg) {
	r := Map(divisor)
	e.emitREXIfSet(rex(true, false, false, ext(r)))
	e.Buf.EmitU8(0xF7)
	e.Buf.EmitU8(0xF8 | low3(r))
}

// DivUnsigned emits the DIV sequence for unsigned 64-bit division; RDX
// must be zeroed (not sign-extended) by the caller beforehand.
func (e *Emitter) DivUnsigned(divisor abi.VReg) {
	r := Map(divisor)
	e.emitREXIfSet(rex(true, false, false, ext(r)))
	e.Buf.EmitU8(0xF7)
	e.Buf.EmitU8(0xF0 | low3(r))
}

// Cqo emits CQO: sign-extend RAX into RDX:RAX, the mandatory setup step
// before DivSigned.
func (e *Emitter) Cqo() {
	e.Buf.EmitU8(rex(true, false, false, false))
	e.Buf.EmitU8(0x99)
}

// Cdq emits CDQ: sign-extend EAX into EDX:EAX, the 32-bit analogue of Cqo.
func (e *Emitter) Cdq() {
	e.Buf.EmitU8(0x99)
}
