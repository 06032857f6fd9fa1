package iljit

import (
	"fmt"

	"github.com/ProtonOS/tier0/abi"
	amd64 "github.com/ProtonOS/tier0/emit/amd64"
	"github.com/ProtonOS/tier0/il"
)

// ldFieldSized and stFieldSized implement the "ldfld chooses the sized
// load based on the field's element type" rule of spec.md §4.4. elemSize
// selects among the sized integer loads; 0 is treated as a pointer-sized
// (8-byte) field, matching the common case of reference/IntPtr fields.
func (c *compiler) ldFieldSized(base abi.VReg, disp int32, elemSize int) {
	dst := c.vs.PushInt(widthFor(elemSize))
	switch elemSize {
	case 1:
		c.em.Load8Signed(dst, base, disp)
	case 2:
		c.em.Load16Signed(dst, base, disp)
	case 4:
		c.em.Load32Signed(dst, base, disp)
	default:
		c.em.Load64(dst, base, disp)
	}
}

func (c *compiler) stFieldSized(base abi.VReg, disp int32, val stackSlot, elemSize int) {
	switch elemSize {
	case 1:
		c.em.Store8(base, val.Reg, disp)
	case 2:
		c.em.Store16(base, val.Reg, disp)
	case 4:
		c.em.Store32(base, val.Reg, disp)
	default:
		c.em.Store64(base, val.Reg, disp)
	}
}

// copyStruct copies size bytes from src to dst in 8-byte chunks via a
// scratch register, used for the struct-return hidden-buffer convention
// (spec.md §3, §4.4): the callee writes its return value through the
// caller-supplied buffer pointer rather than returning it by value.
// size is rounded up to the nearest 8 bytes; the struct layout already
// reserves that much room (spec.md §3's 64-byte local slots).
func copyStruct(em *amd64.Emitter, dst, src abi.VReg, size int) {
	tmp := abi.R11
	for off := 0; off < size; off += 8 {
		em.Load64(tmp, src, int32(off))
		em.Store64(dst, tmp, int32(off))
	}
}

func widthFor(elemSize int) int {
	if elemSize > 0 && elemSize <= 4 {
		return 32
	}
	return 64
}

// ldInd/stInd dispatch ldind.*/stind.* to the correctly sized
// load/store; alignment and volatility prefixes are accepted upstream
// (by the decoder simply not distinguishing them) and ignored, per
// spec.md §4.4: "all accesses are aligned-or-undefined".
func (c *compiler) ldInd(op il.Opcode, addr abi.VReg) {
	switch op {
	case il.LdindI1:
		dst := c.vs.PushInt(32)
		c.em.Load8Signed(dst, addr, 0)
	case il.LdindU1:
		dst := c.vs.PushInt(32)
		c.em.Load8Zero(dst, addr, 0)
	case il.LdindI2:
		dst := c.vs.PushInt(32)
		c.em.Load16Signed(dst, addr, 0)
	case il.LdindU2:
		dst := c.vs.PushInt(32)
		c.em.Load16Zero(dst, addr, 0)
	case il.LdindI4:
		dst := c.vs.PushInt(32)
		c.em.Load32Signed(dst, addr, 0)
	case il.LdindI8, il.LdindRef:
		dst := c.vs.PushInt(64)
		c.em.Load64(dst, addr, 0)
	case il.LdindR4:
		dst := c.vs.PushFloat()
		c.em.LoadFloat32(dst, addr, 0)
	case il.LdindR8:
		dst := c.vs.PushFloat()
		c.em.LoadFloat64(dst, addr, 0)
	}
}

func (c *compiler) stInd(op il.Opcode, addr abi.VReg, val stackSlot) {
	switch op {
	case il.StindI1:
		c.em.Store8(addr, val.Reg, 0)
	case il.StindI2:
		c.em.Store16(addr, val.Reg, 0)
	case il.StindI4:
		c.em.Store32(addr, val.Reg, 0)
	case il.StindI8, il.StindRef:
		c.em.Store64(addr, val.Reg, 0)
	case il.StindR4:
		c.em.StoreFloat32(addr, val.FReg, 0)
	case il.StindR8:
		c.em.StoreFloat64(addr, val.FReg, 0)
	}
}

// binOp implements add/sub/mul/and/or/xor: pop two, write the result
// into the left operand's temp (the deeper of the two, popped second),
// push it back (spec.md §4.4: "each binary op pops two and
// writes the first temp"). Width picks the 32- or 64-bit emitter
// variant so overflow/comparison flags match ECMA semantics.
func (c *compiler) binOp(op il.Opcode) error {
	b := c.vs.Pop()
	a := c.vs.Pop()
	if a.IsFloat || b.IsFloat {
		return c.floatBinOp(op, a, b)
	}
	w := a.Width
	if w == 0 {
		w = 64
	}
	is64 := w != 32
	switch op {
	case il.Add:
		if is64 {
			c.em.Add(a.Reg, b.Reg)
		} else {
			c.em.Add32(a.Reg, b.Reg)
		}
	case il.Sub:
		if is64 {
			c.em.Sub(a.Reg, b.Reg)
		} else {
			c.em.Sub32(a.Reg, b.Reg)
		}
	case il.Mul:
		if is64 {
			c.em.Mul(a.Reg, b.Reg)
		} else {
			c.em.Mul32(a.Reg, b.Reg)
		}
	case il.And:
		c.em.And(a.Reg, b.Reg)
	case il.Or:
		c.em.Or(a.Reg, b.Reg)
	case il.Xor:
		c.em.Xor(a.Reg, b.Reg)
	default:
		return fmt.Errorf("%w: unsupported binary opcode %s", ErrInputFault, op)
	}
	a.Width = w
	c.vs.slots = append(c.vs.slots, a)
	return nil
}

func (c *compiler) floatBinOp(op il.Opcode, a, b stackSlot) error {
	isDouble := a.Width != 32
	switch op {
	case il.Add:
		if isDouble {
			c.em.AddFloat64(a.FReg, b.FReg)
		} else {
			c.em.AddFloat32(a.FReg, b.FReg)
		}
	case il.Sub:
		if isDouble {
			c.em.SubFloat64(a.FReg, b.FReg)
		} else {
			c.em.SubFloat32(a.FReg, b.FReg)
		}
	case il.Mul:
		if isDouble {
			c.em.MulFloat64(a.FReg, b.FReg)
		} else {
			c.em.MulFloat32(a.FReg, b.FReg)
		}
	default:
		return fmt.Errorf("%w: unsupported float binary opcode %s", ErrInputFault, op)
	}
	c.vs.slots = append(c.vs.slots, a)
	return nil
}

// divOp implements div/div.un/rem/rem.un: dividend in the popped
// first-temp register, CQO/zero-RDX before IDIV/DIV per spec.md §4.4.
// The emitter's DivSigned/DivUnsigned operate on the implicit RAX:RDX
// pair, so the dividend is moved into R0 (RAX) and the remainder or
// quotient is read back from R0/abi register holding RDX's alias.
func (c *compiler) divOp(op il.Opcode) error {
	b := c.vs.Pop()
	a := c.vs.Pop()
	// The scratch cycle can hand b out as R0 or R2 (RAX/RDX), which the
	// divide itself overwrites; stage the divisor in a fixed temporary.
	c.em.MovRR(abi.R11, b.Reg)
	c.em.MovRR(abi.R0, a.Reg)
	switch op {
	case il.DivS, il.RemS:
		c.em.Cqo()
		c.em.DivSigned(abi.R11)
	case il.DivU, il.RemU:
		c.em.ZeroReg(abi.R2) // RDX, the implicit remainder register
		c.em.DivUnsigned(abi.R11)
	default:
		return fmt.Errorf("%w: unsupported div opcode %s", ErrInputFault, op)
	}
	dst := c.vs.PushInt(64)
	if op == il.DivS || op == il.DivU {
		c.em.MovRR(dst, abi.R0) // quotient in RAX
	} else {
		c.em.MovRR(dst, abi.R2) // remainder in RDX
	}
	return nil
}

func (c *compiler) shiftOp(op il.Opcode) error {
	count := c.vs.Pop()
	val := c.vs.Pop()
	// Variable shifts need the count in RCX (spec.md §4.3); move it
	// there unless it already is.
	c.em.MovRR(abi.R1, count.Reg)
	switch op {
	case il.Shl:
		c.em.ShiftLeftCL(val.Reg)
	case il.ShrS:
		c.em.ShiftRightSignedCL(val.Reg)
	case il.ShrU:
		c.em.ShiftRightUnsignedCL(val.Reg)
	default:
		return fmt.Errorf("%w: unsupported shift opcode %s", ErrInputFault, op)
	}
	c.vs.slots = append(c.vs.slots, val)
	return nil
}

// compareOp implements ceq/cgt/clt: CMP then a zero/SETcc sequence
// (spec.md §4.4: "xor dst,dst; cmp a,b; setcc dst_low").
func (c *compiler) compareOp(op il.Opcode) {
	b := c.vs.Pop()
	a := c.vs.Pop()
	// CMP first while a/b are still live, then allocate dst (which may
	// alias a or b's now-dead register — harmless, since nothing below
	// reads them again) and SETcc its low byte. Zeroing the upper bits
	// happens via a MOVZX of dst's own low byte rather than XOR dst,dst,
	// since XOR would clobber the CMP flags SETcc still needs to read.
	c.em.Compare(a.Reg, b.Reg)
	dst := c.vs.PushInt(32)
	c.em.SetCond(compareCond(op), dst)
	c.em.MovzxByteRR(dst, dst)
}

func compareCond(op il.Opcode) abi.Condition {
	switch op {
	case il.Cgt:
		return abi.GreaterThan
	case il.Clt:
		return abi.LessThan
	default:
		return abi.Equal
	}
}
