package amd64

import "github.com/ProtonOS/tier0/abi"

// rexForByteOperand forces a (possibly empty) REX prefix whenever reg is
// RSP/RBP/RSI/RDI (4-7): without any REX byte present, those encodings
// select the legacy high-byte registers AH/CH/DH/BH instead of the
// low-byte SPL/BPL/SIL/DIL this package always means.
func rexForByteOperand(base byte, byteReg int) byte {
	if base == 0 && byteReg >= 4 && byteReg <= 7 {
		return 0x40
	}
	return base
}

// Load64 emits MOV dst, [base+disp].
func (e *Emitter) Load64(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x8B)
	emitMem(e.Buf, d, b, disp)
}

// Load32Zero emits MOV dst(32), [base+disp], zero-extending into the
// full 64-bit destination.
func (e *Emitter) Load32Zero(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(false, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x8B)
	emitMem(e.Buf, d, b, disp)
}

// Load32Signed emits MOVSXD dst, [base+disp] (sign-extend a 32-bit load
// into a 64-bit register).
func (e *Emitter) Load32Signed(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x63)
	emitMem(e.Buf, d, b, disp)
}

// Load16Zero emits MOVZX dst, word ptr [base+disp].
func (e *Emitter) Load16Zero(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xB7)
	emitMem(e.Buf, d, b, disp)
}

// Load16Signed emits MOVSX dst, word ptr [base+disp].
func (e *Emitter) Load16Signed(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xBF)
	emitMem(e.Buf, d, b, disp)
}

// Load8Zero emits MOVZX dst, byte ptr [base+disp].
func (e *Emitter) Load8Zero(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xB6)
	emitMem(e.Buf, d, b, disp)
}

// Load8Signed emits MOVSX dst, byte ptr [base+disp].
func (e *Emitter) Load8Signed(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0xBE)
	emitMem(e.Buf, d, b, disp)
}

// Store64 emits MOV [base+disp], src.
func (e *Emitter) Store64(base, src abi.VReg, disp int32) {
	b, s := Map(base), Map(src)
	e.emitREXIfSet(rex(true, ext(s), false, ext(b)))
	e.Buf.EmitU8(0x89)
	emitMem(e.Buf, s, b, disp)
}

// Store32 emits MOV dword ptr [base+disp], src(32).
func (e *Emitter) Store32(base, src abi.VReg, disp int32) {
	b, s := Map(base), Map(src)
	e.emitREXIfSet(rex(false, ext(s), false, ext(b)))
	e.Buf.EmitU8(0x89)
	emitMem(e.Buf, s, b, disp)
}

// Store16 emits MOV word ptr [base+disp], src(16) (0x66 operand-size
// override).
func (e *Emitter) Store16(base, src abi.VReg, disp int32) {
	b, s := Map(base), Map(src)
	e.Buf.EmitU8(0x66)
	e.emitREXIfSet(rex(false, ext(s), false, ext(b)))
	e.Buf.EmitU8(0x89)
	emitMem(e.Buf, s, b, disp)
}

// Store8 emits MOV byte ptr [base+disp], src(8).
func (e *Emitter) Store8(base, src abi.VReg, disp int32) {
	b, s := Map(base), Map(src)
	e.emitREXIfSet(rexForByteOperand(rex(false, ext(s), false, ext(b)), s))
	e.Buf.EmitU8(0x88)
	emitMem(e.Buf, s, b, disp)
}

// LoadAddress emits LEA dst, [base+disp].
func (e *Emitter) LoadAddress(dst, base abi.VReg, disp int32) {
	d, b := Map(dst), Map(base)
	e.emitREXIfSet(rex(true, ext(d), false, ext(b)))
	e.Buf.EmitU8(0x8D)
	emitMem(e.Buf, d, b, disp)
}
