package iljit

import (
	"unsafe"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/il"
)

// intArgRegs/floatArgRegs mirror emit/amd64's Microsoft x64 homing
// registers (spec.md §6): the first four integer and float arguments.
var intArgRegs = [4]abi.VReg{abi.R1, abi.R2, abi.R3, abi.R4}
var floatArgRegs = [4]abi.FReg{abi.F0, abi.F1, abi.F2, abi.F3}

// calleeID resolves a bytecode token to a method identifier within the
// caller's own ambient assembly (spec.md §4.7 step 2's "ambient
// assembly" context; this compiler inherits it from the method being
// compiled rather than tracking assembly-crossing MemberRefs, which is
// a metadata-resolution concern out of this core's scope per spec.md
// §1).
func (c *compiler) calleeID(tok il.Token) abi.MethodID {
	return abi.MethodID{AssemblyID: c.methodID.AssemblyID, Token: tok.Raw()}
}

// setupCallArgs places args per the Microsoft x64 convention: the first
// four in RCX/RDX/R8/R9 or XMM0-3, the rest on the outgoing stack
// (spec.md §4.4 "Calls": "arguments beyond four go on the stack in
// reverse order").
//
// Three of the integer homing registers (R2-R4) are also in the vstack's
// own scratch cycle (spec.md §4.4), so a later argument can still be
// sitting in the very register an earlier argument is about to be
// copied into. Staging the register-bound integer args through a
// PushReg/PopReg pair routes them through the real machine stack
// instead of register-to-register moves, so each value is captured
// before any homing write can clobber it.
func (c *compiler) setupCallArgs(args []stackSlot) {
	regCount := len(args)
	if regCount > 4 {
		regCount = 4
	}
	for i := 0; i < regCount; i++ {
		a := args[i]
		if a.IsFloat {
			continue // XMM0-3 and the float scratch cycle never overlap
		}
		c.em.PushReg(a.Reg)
	}
	for i := regCount - 1; i >= 0; i-- {
		a := args[i]
		if a.IsFloat {
			c.em.MovFF(floatArgRegs[i], a.FReg)
			continue
		}
		c.em.PopReg(intArgRegs[i])
	}

	for i := 4; i < len(args); i++ {
		a := args[i]
		// Stack args land just above the callee's own shadow space at
		// [SP + 32 + 8*(i-4)] (spec.md §6: "32-byte shadow space
		// reserved by caller").
		off := int32(32 + 8*(i-4))
		if a.IsFloat {
			c.em.StoreFloat64(abi.SP, a.FReg, off)
		} else {
			c.em.Store64(abi.SP, a.Reg, off)
		}
	}
}

func (c *compiler) popArgs(n int) []stackSlot {
	out := make([]stackSlot, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = c.vs.Pop()
	}
	return out
}

// emitCall implements spec.md §4.4 "Calls" and "Virtual calls". For a
// direct call, resolver.ResolveCall already walked the three cases of
// spec.md §4.5 (compiled / recursive / unseen) and returns a concrete
// address to patch against. For callvirt, the object's method table is
// loaded from [this+0] and the vtable slot read from it; the call
// target is only known at runtime, so CallReg (not CallRel32) is used.
//
// The code heap never relocates a region once handed out (spec.md §9:
// "this core assumes a non-relocating code heap"), so the buffer this
// method is being emitted into already sits at its final address; a
// direct call's relative displacement can be computed immediately
// against target's absolute address rather than deferred.
func (c *compiler) emitCall(tok il.Token, isVirtual bool) error {
	id := c.calleeID(tok)
	target, sig, err := c.resolver.ResolveCall(id)
	if err != nil {
		return err
	}

	argCount := sig.ParamCount()
	if sig.HasThis {
		argCount++
	}

	if isVirtual && sig.HasThis {
		c.emitVirtualCall(argCount, sig)
		return nil
	}

	args := c.popArgs(argCount)
	c.setupCallArgs(args)
	fx := c.em.CallRel32()
	c.em.Buf.PatchAbsoluteCall(fx, target)
	c.pushCallResult(sig)
	return nil
}

// emitVirtualCall performs the two-indirection dispatch of spec.md §4.4
// "Virtual calls": object -> MethodTable -> vtable[slot] -> CallReg.
//
// The dispatch chain is computed into the fixed callee-saved temporaries
// (R9-R11, physically R13-R15) rather than the vstack's round-robin
// scratch cycle: setupCallArgs is about to overwrite R1-R4 with this and
// the remaining arguments, so any scratch register the cycle hands out
// here could alias an argument slot that hasn't been consumed yet. The
// callee-saved temporaries are immune to that because the prologue
// already preserved their caller-visible values on the stack.
func (c *compiler) emitVirtualCall(argCount int, sig Signature) {
	args := c.popArgs(argCount)
	thisSlot := args[0]

	const mtReg, vtableReg, targetReg = abi.R9, abi.R10, abi.R11
	c.em.Load64(mtReg, thisSlot.Reg, abi.ObjectMethodTableOffset)
	c.em.Load64(vtableReg, mtReg, abi.MethodTableVtablePointerOffset)
	c.em.Load64(targetReg, vtableReg, abi.VtableSlotAddress(sig.VtableSlot))

	c.setupCallArgs(args)
	c.em.CallReg(targetReg)
	c.pushCallResult(sig)
}

func (c *compiler) pushCallResult(sig Signature) {
	switch sig.ReturnKind {
	case abi.RetVoid:
	case abi.RetFloat32, abi.RetFloat64:
		dst := c.vs.PushFloat()
		c.em.MovFF(dst, abi.F0)
	default:
		dst := c.vs.PushInt(64)
		c.em.MovRR(dst, abi.R0)
	}
}

// emitNewobj implements spec.md §4.4 "Construction": allocate via the
// runtime helper, then invoke the constructor with the new object as
// this. The constructor's own arguments are already live on the
// operand stack in their own scratch registers when this runs, so the
// allocation call (and the object pointer it returns) is staged through
// a callee-saved temporary, the same way emitVirtualCall avoids
// clobbering not-yet-consumed argument slots with round-robin scratch.
func (c *compiler) emitNewobj(tok il.Token) error {
	id := c.calleeID(tok)
	ctor, declaringMT, sig, err := c.resolver.ResolveConstructor(id)
	if err != nil {
		return err
	}
	allocHelper, err := c.resolver.AllocateObject()
	if err != nil {
		return err
	}

	const objReg = abi.R9

	c.em.MovRI64(abi.R1, uint64(declaringMT))
	c.em.MovRI64(objReg, uint64(uintptr(unsafe.Pointer(allocHelper))))
	c.em.CallReg(objReg)
	c.em.MovRR(objReg, abi.R0)

	ctorArgs := c.popArgs(sig.ParamCount())
	args := append([]stackSlot{{Reg: objReg}}, ctorArgs...)
	c.setupCallArgs(args)

	fx := c.em.CallRel32()
	c.em.Buf.PatchAbsoluteCall(fx, ctor)

	dst := c.vs.PushInt(64)
	c.em.MovRR(dst, objReg)
	return nil
}

func (c *compiler) emitReturn() {
	if c.vs.Depth() > 0 {
		top := c.vs.Pop()
		switch c.sig.ReturnKind {
		case abi.RetVoid:
		case abi.RetFloat32, abi.RetFloat64:
			c.em.MovFF(abi.F0, top.FReg)
		case abi.RetStruct:
			if off, ok := c.frame.HiddenReturnLocalOffset(); ok {
				bufPtr := c.vs.freshInt()
				c.em.Load64(bufPtr, abi.FP, off)
				copyStruct(c.em, bufPtr, top.Reg, c.sig.ReturnStructSize)
				c.em.MovRR(abi.R0, bufPtr)
			} else {
				// <= 8 bytes: by-value in RAX (spec.md §6), not through the
				// hidden buffer.
				c.em.Load64(abi.R0, top.Reg, 0)
			}
		default:
			c.em.MovRR(abi.R0, top.Reg)
		}
	}
	c.em.EmitEpilogue(c.frameSize)
}
