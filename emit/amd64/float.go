package amd64

import (
	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/emit"
)

// sseRR emits a SSE scalar instruction of the form
// [mandatoryPrefix] 0F opcode /r against two XMM registers, with reg=dst,
// rm=src (the Intel convention for SSE's dst-first encoding).
func (e *Emitter) sseRR(mandatoryPrefix byte, opcode byte, dst, src abi.FReg) {
	d, s := MapF(dst), MapF(src)
	if mandatoryPrefix != 0 {
		e.Buf.EmitU8(mandatoryPrefix)
	}
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(opcode)
	e.Buf.EmitU8(modrmReg(d, s))
}

// LoadFloat32 emits MOVSS dst, [base+disp].
func (e *Emitter) LoadFloat32(dst abi.FReg, base abi.VReg, disp int32) {
	d, b := MapF(dst), Map(base)
	e.Buf.EmitU8(0xF3)
	e.emitREXIfSet(rex(false, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x10)
	emitMem(e.Buf, d, b, disp)
}

// LoadFloat64 emits MOVSD dst, [base+disp].
func (e *Emitter) LoadFloat64(dst abi.FReg, base abi.VReg, disp int32) {
	d, b := MapF(dst), Map(base)
	e.Buf.EmitU8(0xF2)
	e.emitREXIfSet(rex(false, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x10)
	emitMem(e.Buf, d, b, disp)
}

// StoreFloat32 emits MOVSS [base+disp], src.
func (e *Emitter) StoreFloat32(base abi.VReg, src abi.FReg, disp int32) {
	s, b := MapF(src), Map(base)
	e.Buf.EmitU8(0xF3)
	e.emitREXIfSet(rex(false, ext(s), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x11)
	emitMem(e.Buf, s, b, disp)
}

// StoreFloat64 emits MOVSD [base+disp], src.
func (e *Emitter) StoreFloat64(base abi.VReg, src abi.FReg, disp int32) {
	s, b := MapF(src), Map(base)
	e.Buf.EmitU8(0xF2)
	e.emitREXIfSet(rex(false, ext(s), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x11)
	emitMem(e.Buf, s, b, disp)
}

// MovFF copies one XMM register to another (MOVAPS, since this core
// always moves a whole register regardless of the scalar width in use).
func (e *Emitter) MovFF(dst, src abi.FReg) {
	if dst == src {
		return
	}
	e.sseRR(0, 0x28, dst, src)
}

// XorFF zeroes dst via XORPS dst, dst, the standard idiom for clearing a
// float register without a memory-borne constant.
func (e *Emitter) XorFF(dst abi.FReg) { e.sseRR(0, 0x57, dst, dst) }

// AddFloat32/AddFloat64 emit ADDSS/ADDSD dst, src.
func (e *Emitter) AddFloat32(dst, src abi.FReg) { e.sseRR(0xF3, 0x58, dst, src) }
func (e *Emitter) AddFloat64(dst, src abi.FReg) { e.sseRR(0xF2, 0x58, dst, src) }

// SubFloat32/SubFloat64 emit SUBSS/SUBSD dst, src.
func (e *Emitter) SubFloat32(dst, src abi.FReg) { e.sseRR(0xF3, 0x5C, dst, src) }
func (e *Emitter) SubFloat64(dst, src abi.FReg) { e.sseRR(0xF2, 0x5C, dst, src) }

// MulFloat32/MulFloat64 emit MULSS/MULSD dst, src.
func (e *Emitter) MulFloat32(dst, src abi.FReg) { e.sseRR(0xF3, 0x59, dst, src) }
func (e *Emitter) MulFloat64(dst, src abi.FReg) { e.sseRR(0xF2, 0x59, dst, src) }

// DivFloat32/DivFloat64 emit DIVSS/DIVSD dst, src.
func (e *Emitter) DivFloat32(dst, src abi.FReg) { e.sseRR(0xF3, 0x5E, dst, src) }
func (e *Emitter) DivFloat64(dst, src abi.FReg) { e.sseRR(0xF2, 0x5E, dst, src) }

// UcomissFloat32/UcomisdFloat64 emit UCOMISS/UCOMISD a, b, setting
// ZF/PF/CF for a subsequent JumpConditional per the unordered-compare
// condition table spec.md §4.3 documents for float branches.
func (e *Emitter) UcomissFloat32(a, b abi.FReg) { e.sseRR(0, 0x2E, a, b) }
func (e *Emitter) UcomisdFloat64(a, b abi.FReg) {
	d, s := MapF(a), MapF(b)
	e.Buf.EmitU8(0x66)
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2E)
	e.Buf.EmitU8(modrmReg(d, s))
}

// ConvertInt64ToFloat32/64 emit CVTSI2SS/CVTSI2SD dst, src (64-bit
// integer source, REX.W required).
func (e *Emitter) ConvertInt64ToFloat32(dst abi.FReg, src abi.VReg) {
	d, s := MapF(dst), Map(src)
	e.Buf.EmitU8(0xF3)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2A)
	e.Buf.EmitU8(modrmReg(d, s))
}
func (e *Emitter) ConvertInt64ToFloat64(dst abi.FReg, src abi.VReg) {
	d, s := MapF(dst), Map(src)
	e.Buf.EmitU8(0xF2)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2A)
	e.Buf.EmitU8(modrmReg(d, s))
}

// ConvertInt32ToFloat32/64 are the 32-bit-source forms (no REX.W).
func (e *Emitter) ConvertInt32ToFloat32(dst abi.FReg, src abi.VReg) {
	d, s := MapF(dst), Map(src)
	e.Buf.EmitU8(0xF3)
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2A)
	e.Buf.EmitU8(modrmReg(d, s))
}
func (e *Emitter) ConvertInt32ToFloat64(dst abi.FReg, src abi.VReg) {
	d, s := MapF(dst), Map(src)
	e.Buf.EmitU8(0xF2)
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2A)
	e.Buf.EmitU8(modrmReg(d, s))
}

// ConvertFloat32ToInt64/ConvertFloat64ToInt64 emit CVTTSS2SI/CVTTSD2SI
// dst, src (truncating toward zero, per IL's conv.i8 semantics).
func (e *Emitter) ConvertFloat32ToInt64(dst abi.VReg, src abi.FReg) {
	d, s := Map(dst), MapF(src)
	e.Buf.EmitU8(0xF3)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2C)
	e.Buf.EmitU8(modrmReg(d, s))
}
func (e *Emitter) ConvertFloat64ToInt64(dst abi.VReg, src abi.FReg) {
	d, s := Map(dst), MapF(src)
	e.Buf.EmitU8(0xF2)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x2C)
	e.Buf.EmitU8(modrmReg(d, s))
}

// ConvertFloat32ToFloat64 emits CVTSS2SD dst, src.
func (e *Emitter) ConvertFloat32ToFloat64(dst, src abi.FReg) { e.sseRR(0xF3, 0x5A, dst, src) }

// ConvertFloat64ToFloat32 emits CVTSD2SS dst, src.
func (e *Emitter) ConvertFloat64ToFloat32(dst, src abi.FReg) { e.sseRR(0xF2, 0x5A, dst, src) }

// roundModeImm maps RoundMode to the ROUNDSS/ROUNDSD immediate control
// byte; bit 2 (0x04) is left clear so the instruction honors the mode
// rather than MXCSR.
func roundModeImm(mode emit.RoundMode) byte {
	return byte(mode & 0x3)
}

// RoundFloat32/RoundFloat64 emit ROUNDSS/ROUNDSD dst, src, imm.
func (e *Emitter) RoundFloat32(dst, src abi.FReg, mode emit.RoundMode) {
	d, s := MapF(dst), MapF(src)
	e.Buf.EmitU8(0x66)
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x3A)
	e.Buf.EmitU8(0x0A)
	e.Buf.EmitU8(modrmReg(d, s))
	e.Buf.EmitU8(roundModeImm(mode))
}
func (e *Emitter) RoundFloat64(dst, src abi.FReg, mode emit.RoundMode) {
	d, s := MapF(dst), MapF(src)
	e.Buf.EmitU8(0x66)
	e.emitREXIfSet(rex(false, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x3A)
	e.Buf.EmitU8(0x0B)
	e.Buf.EmitU8(modrmReg(d, s))
	e.Buf.EmitU8(roundModeImm(mode))
}
