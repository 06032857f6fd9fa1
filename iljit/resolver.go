package iljit

import "github.com/ProtonOS/tier0/abi"

// CallResolver is the seam the IL compiler uses to turn a call/callvirt/
// newobj token into a concrete native address, without importing the
// Tier-0 driver (which imports iljit, not the reverse). For a direct
// call this wraps the three cases of spec.md §4.4 "Calls": already
// compiled, currently-being-compiled (recursive), or not yet seen
// (recurse through the driver) — the driver's implementation of this
// interface is what actually walks those branches; the compiler only
// ever sees "here is the address to patch a CallRel32 against."
type CallResolver interface {
	// ResolveCall returns the native entry point for callee, compiling
	// it first via the driver if necessary. It also returns the
	// callee's signature shape so the compiler can lay out the call
	// site (argument count, return classification).
	ResolveCall(callee abi.MethodID) (target *byte, sig Signature, err error)

	// ResolveConstructor returns a constructor's native entry point and
	// the declaring type's method table, for newobj (spec.md §4.4
	// "Construction").
	ResolveConstructor(callee abi.MethodID) (target *byte, declaringMT uintptr, sig Signature, err error)

	// AllocateObject is the raw native address of the runtime's object
	// allocator, taking a MethodTable pointer and returning a new
	// zeroed object (spec.md §4.4 "newobj... calls the runtime
	// allocator"). This core treats it as an opaque helper call, per
	// spec.md §9 "Deep inheritance / virtual dispatch".
	AllocateObject() (helper *byte, err error)
}

// Safepoints accumulates the native-code offsets BuildGCInfo consumes,
// one per call/callvirt/newobj (spec.md §4.4 "Safepoints").
type Safepoints struct {
	offsets []uint32
}

// Record appends offset to the safepoint list.
func (s *Safepoints) Record(offset uint32) { s.offsets = append(s.offsets, offset) }

// Offsets returns the accumulated safepoint offsets.
func (s *Safepoints) Offsets() []uint32 { return s.offsets }
