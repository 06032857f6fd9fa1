package iljit

// calleeSaveBytes mirrors emit/amd64's fixed callee-save spill area
// (spec.md §3); the IL compiler needs it to compute local offsets
// independent of the emitter package.
const calleeSaveBytes = 40

// localSlotBytes is the per-local slot width: 64 bytes accommodates
// value types up to 64 bytes with upward field growth (spec.md §3).
const localSlotBytes = 64

// Frame tracks one method's local/argument layout for the duration of
// compilation.
type Frame struct {
	LocalCount int
	ArgCount   int
	HasThis    bool

	// hiddenReturnLocal, when >= 0, is the local slot index reserved for
	// the hidden struct-return buffer pointer (spec.md §4.4 step 3).
	hiddenReturnLocal int
}

// NewFrame builds a Frame for a method with localCount declared locals
// and argCount parameters (not including an implicit this). If
// needsHiddenReturn is set, one extra local slot is reserved to hold the
// caller-supplied return-buffer pointer.
func NewFrame(localCount, argCount int, hasThis, needsHiddenReturn bool) *Frame {
	f := &Frame{LocalCount: localCount, ArgCount: argCount, HasThis: hasThis, hiddenReturnLocal: -1}
	if needsHiddenReturn {
		f.hiddenReturnLocal = f.LocalCount
		f.LocalCount++
	}
	return f
}

// LocalBytes is the total byte size EmitPrologue must reserve for
// locals: localCount * 64 (spec.md §4.4 step 1).
func (f *Frame) LocalBytes() int { return f.LocalCount * localSlotBytes }

// EffectiveArgCount is argCount + 1 if the method has an implicit this,
// matching spec.md §4.4 step 2's HomeArguments call.
func (f *Frame) EffectiveArgCount() int {
	if f.HasThis {
		return f.ArgCount + 1
	}
	return f.ArgCount
}

// LocalOffset returns the frame-pointer-relative byte offset of local i
// (spec.md §3: FP - (calleeSaveBytes + 64*(i+1))).
func LocalOffset(i int) int32 {
	return int32(-(calleeSaveBytes + localSlotBytes*(i+1)))
}

// ArgOffset returns the frame-pointer-relative byte offset argument i is
// homed to (spec.md §3: FP + 16 + 8*i).
func ArgOffset(i int) int32 {
	return int32(16 + 8*i)
}

// HiddenReturnLocalOffset returns the local-slot offset reserved for the
// hidden return-buffer pointer, or false if this method has none.
func (f *Frame) HiddenReturnLocalOffset() (int32, bool) {
	if f.hiddenReturnLocal < 0 {
		return 0, false
	}
	return LocalOffset(f.hiddenReturnLocal), true
}
