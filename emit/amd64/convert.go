package amd64

import "github.com/ProtonOS/tier0/abi"

// ZeroExtend32 clears the upper 32 bits of dst by re-issuing a 32-bit
// MOV dst, dst, the standard x86-64 idiom (spec.md §4.4's conv.u4
// lowering after an operation left garbage in the upper half).
func (e *Emitter) ZeroExtend32(dst abi.VReg) { e.MovRR32(dst, dst) }

// MovsxdRR emits MOVSXD dst, src (sign-extend the low 32 bits of src
// into the full 64-bit dst).
func (e *Emitter) MovsxdRR(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x63)
	e.Buf.EmitU8(modrmReg(d, s))
}

// MovzxByteRR emits MOVZX dst, src(8).
func (e *Emitter) MovzxByteRR(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	rexByte := rexForByteOperand(rex(true, ext(d), false, ext(s)), s)
	e.emitREXIfSet(rexByte)
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xB6)
	e.Buf.EmitU8(modrmReg(d, s))
}

// MovsxByteRR emits MOVSX dst, src(8).
func (e *Emitter) MovsxByteRR(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	rexByte := rexForByteOperand(rex(true, ext(d), false, ext(s)), s)
	e.emitREXIfSet(rexByte)
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xBE)
	e.Buf.EmitU8(modrmReg(d, s))
}

// MovzxWordRR emits MOVZX dst, src(16).
func (e *Emitter) MovzxWordRR(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xB7)
	e.Buf.EmitU8(modrmReg(d, s))
}

// MovsxWordRR emits MOVSX dst, src(16).
func (e *Emitter) MovsxWordRR(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(true, ext(d), false, ext(s)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xBF)
	e.Buf.EmitU8(modrmReg(d, s))
}
