package amd64

import "github.com/ProtonOS/tier0/abi"

// Ret emits RET.
func (e *Emitter) Ret() { e.Buf.EmitU8(0xC3) }

// Leave emits LEAVE (mov rsp, rbp; pop rbp), the teacher's preferred
// epilogue idiom (x64.go) over separate mov+pop.
func (e *Emitter) Leave() { e.Buf.EmitU8(0xC9) }

// CallReg emits CALL target (near, indirect through a register; group-5
// opcode 0xFF /2).
func (e *Emitter) CallReg(target abi.VReg) {
	t := Map(target)
	e.emitREXIfSet(rex(false, false, false, ext(t)))
	e.Buf.EmitU8(0xFF)
	e.Buf.EmitU8(0xD0 | low3(t))
}

// CallRel32 emits CALL rel32 with a zeroed placeholder displacement and
// returns the buffer offset of that 4-byte field for a later PatchJump
// call once the target address is known (spec.md §4.1's fixup protocol).
func (e *Emitter) CallRel32() int {
	e.Buf.EmitU8(0xE8)
	return e.Buf.ReserveU32()
}

// JumpRel32 emits JMP rel32 (near, unconditional) and returns the fixup
// offset, mirroring CallRel32.
func (e *Emitter) JumpRel32() int {
	e.Buf.EmitU8(0xE9)
	return e.Buf.ReserveU32()
}

// JumpReg emits JMP target (near, indirect through a register; group-5
// opcode 0xFF /4).
func (e *Emitter) JumpReg(target abi.VReg) {
	t := Map(target)
	e.emitREXIfSet(rex(false, false, false, ext(t)))
	e.Buf.EmitU8(0xFF)
	e.Buf.EmitU8(0xE0 | low3(t))
}

// JumpConditional emits Jcc rel32 (near) and returns the fixup offset.
func (e *Emitter) JumpConditional(cond abi.Condition) int {
	e.Buf.EmitU8(0x0F)
	e.Buf.EmitU8(0x80 | condCC(cond))
	return e.Buf.ReserveU32()
}

// PatchJump resolves a fixup returned by CallRel32/JumpRel32/
// JumpConditional against the buffer's current write position, i.e. the
// instruction that follows is the branch target.
func (e *Emitter) PatchJump(fixupOffset int) {
	e.Buf.PatchRel32(fixupOffset)
}

// PatchJumpTo resolves a fixup against an explicit target offset,
// needed when the target has already been emitted (a backward branch).
func (e *Emitter) PatchJumpTo(fixupOffset, target int) {
	e.Buf.PatchRel32To(fixupOffset, target)
}
