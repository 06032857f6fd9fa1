package il

// Instruction is one decoded bytecode instruction plus its operand,
// tagged by the family the opcode belongs to. Offset is the byte offset
// of this instruction within the method body, used as the branch-target
// namespace the compiler's fixup list resolves against (spec.md §4.4).
type Instruction struct {
	Opcode Opcode
	Offset int

	// Index operands: ldloc/stloc/ldarg/starg/ldloca/ldarga slot index.
	Index int

	// Immediate operands.
	Int   int64
	Float float64

	// Token operands: field/method/type references (ldflda/ldfld/stfld,
	// call/callvirt/newobj).
	Tok Token

	// Branch target: absolute byte offset into the same method body.
	Target int

	// ElemSize is the field's byte width carried by ldflda/ldfld/stfld.
	// ldfld/stfld use it to pick the sized load/store (1, 2 or 4; any
	// other value means an 8-byte access); ldflda ignores it.
	ElemSize int
}
