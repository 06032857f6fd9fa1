package amd64

import "github.com/ProtonOS/tier0/abi"

// MovRR emits MOV dst, src (64-bit register-to-register).
func (e *Emitter) MovRR(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	if d == s {
		return
	}
	e.emitREXIfSet(rex(true, ext(s), false, ext(d)))
	e.Buf.EmitU8(0x89)
	e.Buf.EmitU8(modrmReg(s, d))
}

// MovRR32 emits MOV dst, src as a 32-bit move; the upper 32 bits of dst
// are zeroed, matching the x86-64 rule that 32-bit writes clear the top
// half of the destination register.
func (e *Emitter) MovRR32(dst, src abi.VReg) {
	d, s := Map(dst), Map(src)
	e.emitREXIfSet(rex(false, ext(s), false, ext(d)))
	e.Buf.EmitU8(0x89)
	e.Buf.EmitU8(modrmReg(s, d))
}

// ZeroReg clears dst with XOR dst, dst (32-bit form, which also zeroes
// the upper 32 bits) rather than MOV dst, 0, matching the smaller
// encoding the teacher's backend prefers for zeroing (x64.go).
func (e *Emitter) ZeroReg(dst abi.VReg) {
	d := Map(dst)
	e.emitREXIfSet(rex(false, ext(d), false, ext(d)))
	e.Buf.EmitU8(0x31)
	e.Buf.EmitU8(modrmReg(d, d))
}

// MovRI32 emits MOV dst, imm32 using the sign-extending group-11 form
// (REX.W + 0xC7 /0 id), matching the documented spot check
// `48 C7 C0 78 56 34 12` for `MOV RAX, 0x12345678`.
func (e *Emitter) MovRI32(dst abi.VReg, imm int32) {
	d := Map(dst)
	e.emitREXIfSet(rex(true, false, false, ext(d)))
	e.Buf.EmitU8(0xC7)
	e.Buf.EmitU8(0xC0 | low3(d))
	e.Buf.EmitU32(uint32(imm))
}

// MovRI64 emits MOV dst, imm64 (10-byte form: REX.W + B8+r + imm64).
func (e *Emitter) MovRI64(dst abi.VReg, imm uint64) {
	d := Map(dst)
	e.emitREXIfSet(rex(true, false, false, ext(d)))
	e.Buf.EmitU8(0xB8 | low3(d))
	e.Buf.EmitU64(imm)
}

// PushReg emits PUSH dst (64-bit, always full width regardless of REX.W).
func (e *Emitter) PushReg(dst abi.VReg) {
	d := Map(dst)
	e.emitREXIfSet(rex(false, false, false, ext(d)))
	e.Buf.EmitU8(0x50 | low3(d))
}

// PopReg emits POP dst.
func (e *Emitter) PopReg(dst abi.VReg) {
	d := Map(dst)
	e.emitREXIfSet(rex(false, false, false, ext(d)))
	e.Buf.EmitU8(0x58 | low3(d))
}
