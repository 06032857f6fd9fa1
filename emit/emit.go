// Package emit defines the architecture-neutral code-emitter interface
// (spec.md §4.3). Each target package (emit/amd64 is the only one this
// core realizes) provides these operations as static functions over a
// *codebuffer.Buffer plus a Map(VReg) -> physical-register function and a
// small set of numeric constants. There is no shared per-instance state
// beyond the buffer reference, so targets are safe to drive concurrently
// as long as their buffers are disjoint (spec.md §4.3).
package emit

import "github.com/ProtonOS/tier0/abi"

// Target groups the static facts a Tier-0 driver needs about an
// architecture realization: how many integer/float args pass in
// registers, how much shadow space the ABI reserves, and the stack
// alignment CALL requires. emit/amd64 is the only Target this core
// ships; the interface still names the shape so a second target (e.g.
// arm64) could be added without touching the driver or IL compiler
// (spec.md §4.3, Non-goals: "alternative target ISAs... the interface
// admits them").
type Target struct {
	Name              string
	IntArgRegisters   int
	FloatArgRegisters int
	ShadowSpaceBytes  int
	StackAlignBytes   int
}

// RoundMode selects SSE rounding mode for Round{ss,sd} (spec.md §4.3).
type RoundMode int

const (
	RoundNearest RoundMode = iota
	RoundDown
	RoundUp
	RoundTruncate
)

// FrameInfo is what EmitPrologue hands back: the final, 16-byte-aligned
// frame size the epilogue and every local/argument offset computation
// must agree with (spec.md §3 "Frame layout").
type FrameInfo struct {
	FrameSize int
}

// Re-export abi's register/condition vocabulary so callers of this
// package don't need to import abi directly for the common case.
type (
	VReg      = abi.VReg
	FReg      = abi.FReg
	Condition = abi.Condition
)
