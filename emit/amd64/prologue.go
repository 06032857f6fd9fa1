package amd64

import (
	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/emit"
)

// calleeSaveBytes is the fixed space the prologue reserves for RBX,
// R12-R15 at [FP-8]..[FP-40] (spec.md §3 frame layout).
const calleeSaveBytes = 40

// shadowOutBytes is the outgoing shadow space this frame reserves below
// its locals for any call it makes, per the Microsoft x64 convention.
const shadowOutBytes = 32

// intArgRegs and floatArgRegs are the first four Microsoft x64
// integer/float argument registers, expressed as the virtual registers
// that happen to map onto them (R1=RCX, R2=RDX, R3=R8, R4=R9).
var intArgRegs = [4]abi.VReg{abi.R1, abi.R2, abi.R3, abi.R4}
var floatArgRegs = [4]abi.FReg{abi.F0, abi.F1, abi.F2, abi.F3}

func alignUp16(n int) int { return (n + 15) &^ 15 }

// EmitPrologue pushes FP, establishes the new frame, reserves
// localBytes + the callee-save area + the outgoing shadow space
// (rounded to 16-byte alignment), and spills RBX/R12-R15 to their fixed
// offsets (spec.md §3, §4.3).
func (e *Emitter) EmitPrologue(localBytes int) emit.FrameInfo {
	e.PushReg(abi.FP)
	e.MovRR(abi.FP, abi.SP)

	frameSize := alignUp16(calleeSaveBytes + localBytes + shadowOutBytes)
	if frameSize > 0 {
		e.SubImm(abi.SP, int32(frameSize))
	}

	for i, reg := range CalleeSaved {
		e.storePhysical(abi.FP, reg, int32(-8*(i+1)))
	}

	return emit.FrameInfo{FrameSize: frameSize}
}

// EmitEpilogue restores RBX/R12-R15 from their fixed offsets, then
// emits LEAVE and RET (spec.md §4.3).
func (e *Emitter) EmitEpilogue(frameSize int) {
	for i, reg := range CalleeSaved {
		e.loadPhysical(reg, abi.FP, int32(-8*(i+1)))
	}
	e.Leave()
	e.Ret()
}

// HomeArguments stores the first min(argCount,4) argument registers
// into the caller's shadow space at [FP+16+8*i] (spec.md §3, §4.3).
// floatKinds[i], when non-nil, selects 0=integer, 4=float32, 8=float64
// homing for argument i; a nil slice homes every argument as integer.
func (e *Emitter) HomeArguments(argCount int, floatKinds []int) {
	n := argCount
	if n > 4 {
		n = 4
	}
	for i := 0; i < n; i++ {
		off := int32(16 + 8*i)
		kind := 0
		if floatKinds != nil && i < len(floatKinds) {
			kind = floatKinds[i]
		}
		switch kind {
		case 4:
			e.StoreFloat32(abi.FP, floatArgRegs[i], off)
		case 8:
			e.StoreFloat64(abi.FP, floatArgRegs[i], off)
		default:
			e.Store64(abi.FP, intArgRegs[i], off)
		}
	}
}

// storePhysical/loadPhysical address a raw physical register number
// (used for the callee-save spill/reload, which operates outside the
// virtual-register set Map() covers).
func (e *Emitter) storePhysical(base abi.VReg, physicalSrc int, disp int32) {
	b := Map(base)
	e.emitREXIfSet(rex(true, ext(physicalSrc), false, ext(b)))
	e.Buf.EmitU8(0x89)
	emitMem(e.Buf, physicalSrc, b, disp)
}

func (e *Emitter) loadPhysical(physicalDst int, base abi.VReg, disp int32) {
	b := Map(base)
	e.emitREXIfSet(rex(true, ext(physicalDst), false, ext(b)))
	e.Buf.EmitU8(0x8B)
	emitMem(e.Buf, physicalDst, b, disp)
}
