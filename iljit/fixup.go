package iljit

// fixup is one pending branch-patch entry (spec.md §4.4 "Forward
// branches emit JumpRel32/JumpConditional... append (patch_offset,
// il_target) to a fixup list"). ilTarget is the IL-body byte offset the
// branch names; it is resolved against ilOffsetToNative once the whole
// method has been walked.
type fixup struct {
	patchOffset int
	ilTarget    int
}

// fixupList accumulates forward-branch patches and resolves them in one
// pass after the method body has been fully emitted.
type fixupList struct {
	pending []fixup
}

func (f *fixupList) add(patchOffset, ilTarget int) {
	f.pending = append(f.pending, fixup{patchOffset: patchOffset, ilTarget: ilTarget})
}
