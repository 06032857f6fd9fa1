// Package unwind encodes the Microsoft x64 UNWIND_INFO structure
// (SPEC_FULL.md §12) that pairs with a function's RUNTIME_FUNCTION entry
// so an exception unwinder can walk this JIT's frames. This core only
// produces the byte layout; registering it with the host's exception
// tables is the external collaborator named by tier0.UnwindRegistrar.
package unwind

import "fmt"

// Op is an UNWIND_CODE opcode, using the PE/COFF-defined numbering.
type Op byte

const (
	OpPushNonvol    Op = 0
	OpAllocLarge    Op = 1
	OpAllocSmall    Op = 2
	OpSetFPReg      Op = 3
	OpPushMachFrame Op = 10
)

// Code is one UNWIND_CODE slot: a prologue offset, an opcode, and its
// 4-bit operand. AllocLarge additionally consumes one or two trailing
// node slots holding the allocation size, handled by Encode.
type Code struct {
	PrologOffset byte
	Op           Op
	OpInfo       byte
	AllocSize    uint32 // only meaningful for OpAllocLarge
}

// Info is the logical content of an UNWIND_INFO record before byte
// encoding: which register (if any) the frame pointer was rebased onto,
// the size of the prologue, and the ordered list of unwind codes
// (spec.md records these in prologue execution order; UNWIND_INFO
// stores them in reverse, which Encode handles).
type Info struct {
	FrameRegister byte // 0 = none; otherwise the x86-64 register number (RBP = 5)
	FrameOffset   byte // scaled by 16, per the PE/COFF spec
	PrologSize    byte
	Codes         []Code
}

const (
	versionFlagByte = 0x01 // version=1, flags=0 (UNW_FLAG_NHANDLER)
)

// Encode produces the UNWIND_INFO byte blob for info. UNWIND_CODE
// entries are written in reverse prologue order (the last instruction
// executed in the prologue appears first), matching the documented
// PDATA/XDATA layout.
func Encode(info Info) ([]byte, error) {
	if info.FrameRegister > 0xF || info.FrameOffset > 0xF {
		return nil, fmt.Errorf("unwind: frame register/offset nibble out of range")
	}

	var nodes []byte // each UNWIND_CODE node is 2 bytes
	for i := len(info.Codes) - 1; i >= 0; i-- {
		c := info.Codes[i]
		switch c.Op {
		case OpAllocLarge:
			if c.AllocSize%8 != 0 {
				return nil, fmt.Errorf("unwind: alloc size %d not 8-byte aligned", c.AllocSize)
			}
			if c.AllocSize <= 0x7FFF8 {
				nodes = append(nodes, c.PrologOffset, byte(OpAllocLarge)|0<<4)
				scaled := uint16(c.AllocSize / 8)
				nodes = append(nodes, byte(scaled), byte(scaled>>8))
			} else {
				nodes = append(nodes, c.PrologOffset, byte(OpAllocLarge)|1<<4)
				nodes = append(nodes,
					byte(c.AllocSize), byte(c.AllocSize>>8),
					byte(c.AllocSize>>16), byte(c.AllocSize>>24))
			}
		default:
			nodes = append(nodes, c.PrologOffset, byte(c.Op)|(c.OpInfo<<4))
		}
	}

	countOfCodes := len(nodes) / 2
	out := make([]byte, 0, 4+len(nodes))
	out = append(out, versionFlagByte, info.PrologSize, byte(countOfCodes), info.FrameRegister|(info.FrameOffset<<4))
	out = append(out, nodes...)
	// UNWIND_INFO's UnwindCode array is padded to an even element count.
	if countOfCodes%2 == 1 {
		out = append(out, 0, 0)
	}
	return out, nil
}

// AllocSmallOpInfo encodes an 8-128 byte stack allocation into the
// 4-bit OpInfo field of an UWOP_ALLOC_SMALL code: OpInfo = size/8 - 1.
func AllocSmallOpInfo(size uint32) (byte, bool) {
	if size < 8 || size > 128 || size%8 != 0 {
		return 0, false
	}
	return byte(size/8 - 1), true
}

// PushNonvolCode builds the UNWIND_CODE for pushing a non-volatile
// register, e.g. RBP (register number 5), at the given prologue offset.
func PushNonvolCode(prologOffset byte, register byte) Code {
	return Code{PrologOffset: prologOffset, Op: OpPushNonvol, OpInfo: register}
}

// SetFPRegCode builds the UNWIND_CODE marking "the frame register is now
// the frame pointer" (mov rbp, rsp), at the given prologue offset.
func SetFPRegCode(prologOffset byte) Code {
	return Code{PrologOffset: prologOffset, Op: OpSetFPReg}
}

// AllocCode builds the UNWIND_CODE for a stack allocation (sub rsp, n),
// choosing the small or large encoding automatically.
func AllocCode(prologOffset byte, size uint32) Code {
	if opInfo, ok := AllocSmallOpInfo(size); ok {
		return Code{PrologOffset: prologOffset, Op: OpAllocSmall, OpInfo: opInfo}
	}
	return Code{PrologOffset: prologOffset, Op: OpAllocLarge, AllocSize: size}
}
