package tier0

import (
	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/iljit"
)

// MethodDescriptor is the MethodDef row shape the driver's step 3
// "Metadata fetch" needs (spec.md §4.7 step 3): an RVA of 0 branches on
// the PInvoke/Abstract flags rather than naming a method body.
type MethodDescriptor struct {
	RVA uint32

	IsPInvoke  bool
	ImportName string // valid when IsPInvoke

	IsAbstract bool

	IsConstructor        bool
	DeclaringMethodTable uintptr

	// DeclaringTypeToken is the TypeDef token of the (possibly generic)
	// type M is declared on, used to enumerate the type's other known
	// instantiations for vtable propagation (spec.md §4.7 step 10).
	DeclaringTypeToken uint32

	// IsVirtual and NewSlot steer step 10's slot-computation rule
	// (spec.md §4.7 step 10: "NewSlot... or ReuseSlot").
	IsVirtual bool
	NewSlot   bool

	SignatureBlobIndex uint32
}

// MetadataProvider is the external collaborator spec.md §1 describes as
// "metadata table parsing... stated interfaces only": this core never
// implements ECMA-335 metadata table layout itself.
type MetadataProvider interface {
	// ResolveMethod fetches the MethodDef row for (assemblyID, token)
	// (spec.md §4.7 step 3).
	ResolveMethod(assemblyID, token uint32) (MethodDescriptor, error)

	// FetchBody returns the raw method-header-plus-IL bytes at rva
	// (spec.md §4.7 step 4).
	FetchBody(assemblyID uint32, rva uint32) ([]byte, error)

	// ParseSignature resolves param_count, has_this, return
	// classification, and local variable types for a method, following
	// the generic-instantiation size rules of spec.md §4.7 step 5.
	// typeArgHash selects the instantiation; 0 is the generic
	// definition.
	ParseSignature(assemblyID, token uint32, typeArgHash uint64) (iljit.Signature, error)

	// VtableSlotFor computes the slot a virtual method occupies
	// (spec.md §4.7 step 10): a pre-registered override slot if one was
	// discovered ahead of compilation, otherwise a freshly counted
	// NewSlot or a well-known-name ReuseSlot match.
	VtableSlotFor(assemblyID, token uint32, mt uintptr, newSlot bool) (int, error)

	// KnownInstantiations returns the MethodTable pointer of every known
	// instantiation of typeToken seen so far, including the
	// non-generic/declaring instantiation itself. The driver uses this
	// to propagate a newly compiled virtual method's native address into
	// every instantiation's vtable, not just the one that triggered
	// compilation (spec.md §4.7 step 10, §8 scenario 3: "The A MT vtable
	// slot for M contains B.M()'s native address in every known
	// B-instantiation").
	KnownInstantiations(assemblyID, typeToken uint32) ([]uintptr, error)
}

// KernelExports is the external collaborator of spec.md §6: "case
// sensitive ASCII, null if absent."
type KernelExports interface {
	Lookup(name []byte) (addr *byte, ok bool)
}

// GCPublisher hands a compiled method's GCInfo blob to the runtime's GC
// (spec.md §4.7 step 9).
type GCPublisher interface {
	PublishGCInfo(id abi.MethodID, codePtr *byte, codeSize int, gcInfo []byte) error
}

// UnwindRegistrar hands a compiled method's unwind record to the
// runtime's unwinder (spec.md §4.7 step 9, §6 "Unwind info").
type UnwindRegistrar interface {
	RegisterUnwind(id abi.MethodID, codePtr *byte, codeSize int, unwindInfo []byte) error
}

// AOTRegistry is the ahead-of-time method store CompileMethod consults
// first (spec.md §4.7 step 1: "If the method is already published in an
// ahead-of-time registry, return its address directly").
type AOTRegistry interface {
	Lookup(id abi.MethodID) (codePtr *byte, codeSize int, ok bool)
}
