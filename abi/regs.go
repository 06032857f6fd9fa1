package abi

// VReg is an architecture-neutral virtual integer or float register
// (spec.md §3 "Virtual register set"). Each target provides a static
// mapping from VReg to its physical encoding.
type VReg int

const (
	R0 VReg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	SP
	FP
)

// FReg is a virtual scalar float register, F0-F15.
type FReg int

const (
	F0 FReg = iota
	F1
	F2
	F3
	F4
	F5
	F6
	F7
	F8
	F9
	F10
	F11
	F12
	F13
	F14
	F15
)

// Condition is an architecture-neutral branch/compare condition
// (spec.md §4.3).
type Condition int

const (
	Equal Condition = iota
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	Below
	BelowOrEqual
	Above
	AboveOrEqual
)

// ScratchCycle is the fixed order the IL compiler's operand stack cycles
// through for temporaries: R6, R5, R4, R3, R2, R0 (spec.md §4.4). RBX and
// R12-R15 (R7, R8..R11) are deliberately excluded — they hold the fixed
// callee-saved temporaries and must never be clobbered by the stack
// model's round-robin allocation.
var ScratchCycle = [...]VReg{R6, R5, R4, R3, R2, R0}
