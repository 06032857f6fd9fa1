// Package iljit translates a decoded bytecode instruction stream into
// x86-64 machine code via the emit/amd64 package, in one linear pass
// with a branch-fixup list (spec.md §4.4).
package iljit

import "github.com/ProtonOS/tier0/abi"

// stackSlot is one entry on the compiler's shadow operand stack. A
// primitive value lives entirely in Reg; a value-type wider than a
// register carries its address in Reg plus a byte Size, per spec.md
// §4.4 ("the stack carries an address plus a size tag").
type stackSlot struct {
	Reg     abi.VReg
	FReg    abi.FReg
	IsFloat bool
	IsValue bool // true: Reg holds an address, Size is meaningful
	Size    int

	// Width is 32 or 64: which emitter variant (§4.3's Add32/Sub32/...
	// vs Add/Sub/...) this slot's producer used, so a consumer picks
	// the matching arithmetic/compare form (spec.md §4.4: "32-bit IL
	// arithmetic uses the 32-bit emitter variants... so overflow and
	// comparison flags match ECMA semantics").
	Width int
}

// vstack is the IL compiler's shadow stack of virtual registers. It
// cycles through abi.ScratchCycle for fresh temporaries and never
// touches the callee-saved stable temporaries (spec.md §4.4).
type vstack struct {
	slots []stackSlot
	next  int // index into abi.ScratchCycle for the next integer temp
	fnext int // index into the float scratch cycle
}

// floatScratchCycle mirrors abi.ScratchCycle for float registers; this
// core reserves F0-F3 for argument homing (spec.md §3) and cycles F7-F4
// as float temporaries; no higher XMM register is used.
var floatScratchCycle = [...]abi.FReg{abi.F7, abi.F6, abi.F5, abi.F4}

func newVStack() *vstack { return &vstack{} }

func (s *vstack) freshInt() abi.VReg {
	r := abi.ScratchCycle[s.next%len(abi.ScratchCycle)]
	s.next++
	return r
}

func (s *vstack) freshFloat() abi.FReg {
	r := floatScratchCycle[s.fnext%len(floatScratchCycle)]
	s.fnext++
	return r
}

// PushInt allocates a fresh integer temp, marks it the stack top, and
// returns it for the caller to emit a write into. width is 32 or 64.
func (s *vstack) PushInt(width int) abi.VReg {
	r := s.freshInt()
	s.slots = append(s.slots, stackSlot{Reg: r, Width: width})
	return r
}

// PushFloat allocates a fresh float temp.
func (s *vstack) PushFloat() abi.FReg {
	r := s.freshFloat()
	s.slots = append(s.slots, stackSlot{FReg: r, IsFloat: true})
	return r
}

// PushValue pushes a value-type slot: addr holds its address, size its
// byte length.
func (s *vstack) PushValue(addr abi.VReg, size int) {
	s.slots = append(s.slots, stackSlot{Reg: addr, IsValue: true, Size: size})
}

// Pop removes and returns the stack-top slot.
func (s *vstack) Pop() stackSlot {
	n := len(s.slots)
	top := s.slots[n-1]
	s.slots = s.slots[:n-1]
	return top
}

// Peek returns the stack-top slot without removing it.
func (s *vstack) Peek() stackSlot {
	return s.slots[len(s.slots)-1]
}

// Depth reports the number of live slots.
func (s *vstack) Depth() int { return len(s.slots) }

// Snapshot captures the stack shape (not register contents) so a
// backward-branch target's expected depth can be sanity-checked.
func (s *vstack) Snapshot() int { return len(s.slots) }
