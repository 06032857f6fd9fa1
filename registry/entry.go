// Package registry implements the compiled-method registry: a chunked
// associative store of (assembly, token, type-arg-hash) -> entry plus
// the reservation protocol that makes recursive and mutually-recursive
// compilation safe under the single-threaded cooperative driver
// (spec.md §4.5).
package registry

import "github.com/ProtonOS/tier0/abi"

// Entry is one CompiledMethodInfo slot (spec.md §3). A slot is "used"
// iff its Token is non-zero.
type Entry struct {
	abi.MethodID

	NativeCode *byte
	CodeSize   int

	ArgCount         int
	ReturnKind       abi.ReturnKind
	ReturnStructSize int
	ArgKinds         uint32

	HasThis         bool
	IsCompiled      bool
	IsBeingCompiled bool
	IsVirtual       bool
	IsInterface     bool

	VtableSlot           int
	DeclaringMethodTable uintptr
	InterfaceMethodTable uintptr
	InterfaceMethodIndex int

	// prealloc is the 4 KiB slab reserved for a recursive callee's
	// pending code (spec.md §4.5). Complete copies the final bytes here
	// if they were emitted into a different scratch buffer.
	prealloc []byte
}

// used reports whether this slot holds a live entry.
func (e *Entry) used() bool { return e.Token != 0 }
