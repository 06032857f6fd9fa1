package iljit

import "github.com/ProtonOS/tier0/abi"

// Local describes one declared local variable slot: its classification
// for picking sized loads/stores, and (for value types) its byte size
// so the compiler can reserve room and copy rather than move.
type Local struct {
	Kind abi.ArgKind
	Size int // meaningful when Kind == abi.ArgStruct

	// IsGCRef marks a local that holds a managed object reference, so
	// the GCInfo encoder tracks its frame offset as a stack root
	// (spec.md §4.6). Raw IntPtr locals (unmanaged pointers) leave this
	// false.
	IsGCRef bool
}

// Param describes one declared parameter the same way a Local does.
type Param struct {
	Kind abi.ArgKind
	Size int

	IsGCRef bool
}

// Signature is everything the compiler needs about a method's shape,
// assembled by the Tier-0 driver's signature parser (spec.md §4.7 step
// 5) before Compile is invoked.
type Signature struct {
	HasThis          bool
	Params           []Param
	Locals           []Local
	ReturnKind       abi.ReturnKind
	ReturnStructSize int

	// VtableSlot is the statically-known vtable slot a callvirt site
	// targets, resolved by the (out-of-scope) metadata/override
	// resolution the driver performs before handing this signature to
	// the compiler (spec.md §4.4 "Virtual calls").
	VtableSlot int
}

// ParamCount excludes the implicit this, matching spec.md §4.7 step 6's
// "using param_count (not including this)".
func (s Signature) ParamCount() int { return len(s.Params) }

// NeedsHiddenReturnBuffer reports whether this signature's return value
// uses the hidden-buffer convention (spec.md §3, §4.4 step 3).
func (s Signature) NeedsHiddenReturnBuffer() bool {
	return s.ReturnKind == abi.RetStruct && abi.StructHiddenBuffer(s.ReturnStructSize)
}

// ArgKindAt returns the classification of argument i as HomeArguments
// and the frame layout need it: index 0 is this when HasThis holds,
// otherwise it is Params[0].
func (s Signature) ArgKindAt(i int) abi.ArgKind {
	if s.HasThis {
		if i == 0 {
			return abi.ArgIntPtr
		}
		return s.Params[i-1].Kind
	}
	return s.Params[i].Kind
}

// FloatHomeKinds builds the per-argument float-home selector slice
// HomeArguments consumes (spec.md §4.3).
func (s Signature) FloatHomeKinds() []int {
	n := s.ParamCount()
	if s.HasThis {
		n++
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = s.ArgKindAt(i).FloatHomeKind()
	}
	return out
}
