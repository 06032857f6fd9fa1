package registry

import (
	"errors"
	"fmt"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codeheap"
	"github.com/ProtonOS/tier0/internal/log"
	"go.uber.org/zap"
)

// ErrUnknownMethod is returned by operations that require an existing
// slot (Complete, Cancel) when the triple was never reserved.
var ErrUnknownMethod = errors.New("registry: no entry for method")

type vtableKey struct {
	mt   uintptr
	slot int
}

// Registry is the process-wide compiled-method store. Construct one at
// runtime startup; it is never locked because the driver that calls it
// runs single-threaded and cooperatively (spec.md §5, §9 "Global mutable
// state").
type Registry struct {
	heap *codeheap.Heap

	blocks  []*block
	byID    map[abi.MethodID]uint64 // packed (blockIndex, slotIndex)
	bySlot  map[vtableKey]*Entry
	regions map[*Entry]*codeheap.Region
}

func locKey(blockIdx, slotIdx int) uint64 {
	return uint64(blockIdx)<<32 | uint64(uint32(slotIdx))
}

func unpackLoc(k uint64) (blockIdx, slotIdx int) {
	return int(k >> 32), int(uint32(k))
}

// New constructs an empty Registry backed by heap for slab
// pre-allocation and final code-region reclamation.
func New(heap *codeheap.Heap) *Registry {
	return &Registry{
		heap:    heap,
		byID:    make(map[abi.MethodID]uint64),
		bySlot:  make(map[vtableKey]*Entry),
		regions: make(map[*Entry]*codeheap.Region),
	}
}

func (r *Registry) lookupExact(id abi.MethodID) (*Entry, bool) {
	k, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	blockIdx, slotIdx := unpackLoc(k)
	return &r.blocks[blockIdx].entries[slotIdx], true
}

func (r *Registry) allocateSlot(id abi.MethodID) *Entry {
	for bi, b := range r.blocks {
		if !b.full() {
			idx, e := b.allocate()
			r.byID[id] = locKey(bi, idx)
			return e
		}
	}
	b := newBlock()
	r.blocks = append(r.blocks, b)
	idx, e := b.allocate()
	r.byID[id] = locKey(len(r.blocks)-1, idx)
	return e
}

// Reserve implements the four-way reservation protocol of spec.md §4.5.
// A nil, nil return means "recursive call in progress": the caller
// should fetch the pre-allocated address via GetRecursiveCallTarget and
// emit a relative call against it.
func (r *Registry) Reserve(id abi.MethodID, argCount int, retKind abi.ReturnKind, retStructSize int, hasThis bool) (*Entry, error) {
	if e, ok := r.lookupExact(id); ok {
		switch {
		case e.IsBeingCompiled:
			if len(e.prealloc) == 0 {
				region, err := r.heap.AllocateSlab()
				if err != nil {
					return nil, fmt.Errorf("registry: reserve recursive slab: %w", err)
				}
				e.prealloc = region.Bytes()
				e.NativeCode = region.FunctionPointer()
				r.regions[e] = region
			}
			log.L().Debug("registry: recursive reservation", zap.Uint32("token", id.Token))
			return nil, nil
		case e.IsCompiled:
			return e, nil
		default:
			e.ArgCount = argCount
			e.ReturnKind = retKind
			e.ReturnStructSize = retStructSize
			e.HasThis = hasThis
			e.IsBeingCompiled = true
			return e, nil
		}
	}

	e := r.allocateSlot(id)
	*e = Entry{
		MethodID:         id,
		ArgCount:         argCount,
		ReturnKind:       retKind,
		ReturnStructSize: retStructSize,
		HasThis:          hasThis,
		VtableSlot:       -1,
		IsBeingCompiled:  true,
	}
	log.L().Debug("registry: reserved new slot", zap.Uint32("token", id.Token), zap.Uint32("assembly", id.AssemblyID))
	return e, nil
}

// GetRecursiveCallTarget returns the pre-allocated buffer address for a
// method currently being compiled, i.e. only while IsBeingCompiled holds
// (spec.md §4.5).
func (r *Registry) GetRecursiveCallTarget(id abi.MethodID) (*byte, bool) {
	e, ok := r.lookupExact(id)
	if !ok || !e.IsBeingCompiled || e.NativeCode == nil {
		return nil, false
	}
	return e.NativeCode, true
}

// Complete installs the compiled native code for id. If a pre-allocated
// slab exists and code was emitted into a different buffer, the bytes
// are copied into the slab so that any already-patched recursive call
// sites (which target the slab's address) remain valid.
func (r *Registry) Complete(id abi.MethodID, region *codeheap.Region, codeSize int) error {
	e, ok := r.lookupExact(id)
	if !ok {
		return fmt.Errorf("%w: %+v", ErrUnknownMethod, id)
	}
	code := region.Bytes()
	if len(e.prealloc) > 0 && &code[0] != &e.prealloc[0] {
		copy(e.prealloc, code[:codeSize])
		e.NativeCode = &e.prealloc[0]
	} else {
		e.NativeCode = region.FunctionPointer()
		r.regions[e] = region
	}
	e.CodeSize = codeSize
	e.IsCompiled = true
	e.IsBeingCompiled = false
	log.L().Info("registry: compiled", zap.Uint32("token", id.Token), zap.Int("codeSize", codeSize))
	return nil
}

// Cancel clears IsBeingCompiled. The slot remains visible for a later
// retry but is non-callable (spec.md §4.5).
func (r *Registry) Cancel(id abi.MethodID) error {
	e, ok := r.lookupExact(id)
	if !ok {
		return fmt.Errorf("%w: %+v", ErrUnknownMethod, id)
	}
	e.IsBeingCompiled = false
	return nil
}

// Lookup resolves id, falling back to the generic definition's stub per
// the rule in spec.md §3: a miss on a non-zero hash retries with hash=0,
// but only returns a virtual, not-yet-compiled entry (the definition
// still needing per-instantiation compilation).
func (r *Registry) Lookup(id abi.MethodID) (*Entry, bool) {
	if e, ok := r.lookupExact(id); ok {
		return e, true
	}
	if id.TypeArgHash == 0 {
		return nil, false
	}
	def := abi.MethodID{AssemblyID: id.AssemblyID, Token: id.Token, TypeArgHash: 0}
	if e, ok := r.lookupExact(def); ok && e.IsVirtual && !e.IsCompiled {
		return e, true
	}
	return nil, false
}

// LookupByVtableSlot performs the linear scan spec.md §4.5 documents,
// used by the dispatch layer to find a compiled override.
func (r *Registry) LookupByVtableSlot(mt uintptr, slot int) (*Entry, bool) {
	for _, b := range r.blocks {
		for i := range b.entries {
			e := &b.entries[i]
			if e.used() && e.DeclaringMethodTable == mt && e.VtableSlot == slot {
				return e, true
			}
		}
	}
	return nil, false
}

// LookupLowestSlotByToken linearly scans for the entry matching
// (token, assembly, mt) with the lowest vtable slot, used when several
// interface slots share one implementing token.
func (r *Registry) LookupLowestSlotByToken(token, assembly uint32, mt uintptr) (*Entry, bool) {
	var best *Entry
	for _, b := range r.blocks {
		for i := range b.entries {
			e := &b.entries[i]
			if !e.used() || e.Token != token || e.AssemblyID != assembly || e.DeclaringMethodTable != mt {
				continue
			}
			if best == nil || e.VtableSlot < best.VtableSlot {
				best = e
			}
		}
	}
	return best, best != nil
}

// RegisterPInvoke installs a native address with IsCompiled = true so
// subsequent calls bind directly, bypassing the IL compiler entirely
// (spec.md §4.5, §4.7 step 3).
func (r *Registry) RegisterPInvoke(id abi.MethodID, nativeAddr *byte, argCount int, retKind abi.ReturnKind, hasThis bool) (*Entry, error) {
	if e, ok := r.lookupExact(id); ok {
		e.NativeCode = nativeAddr
		e.IsCompiled = true
		e.IsBeingCompiled = false
		return e, nil
	}
	e := r.allocateSlot(id)
	*e = Entry{
		MethodID:   id,
		ArgCount:   argCount,
		ReturnKind: retKind,
		HasThis:    hasThis,
		VtableSlot: -1,
		NativeCode: nativeAddr,
		IsCompiled: true,
	}
	log.L().Info("registry: registered PInvoke", zap.Uint32("token", id.Token))
	return e, nil
}

// RegisterVirtual marks an existing or freshly reserved entry as virtual
// at the given vtable slot and indexes it for LookupByVtableSlot.
func (r *Registry) RegisterVirtual(id abi.MethodID, mt uintptr, slot int, argCount int, retKind abi.ReturnKind, hasThis bool) (*Entry, error) {
	e, ok := r.lookupExact(id)
	if !ok {
		e = r.allocateSlot(id)
		*e = Entry{MethodID: id, ArgCount: argCount, ReturnKind: retKind, HasThis: hasThis, VtableSlot: -1}
	}
	e.IsVirtual = true
	e.DeclaringMethodTable = mt
	e.VtableSlot = slot
	r.bySlot[vtableKey{mt, slot}] = e
	return e, nil
}

// RegisterUncompiledOverride creates a not-yet-compiled entry keyed by
// (mt, slot) so LookupByVtableSlot finds it once lazy compilation fires
// (spec.md §4.5).
func (r *Registry) RegisterUncompiledOverride(token, assembly uint32, mt uintptr, slot int) (*Entry, error) {
	id := abi.MethodID{AssemblyID: assembly, Token: token}
	e := r.allocateSlot(id)
	*e = Entry{
		MethodID:             id,
		VtableSlot:           slot,
		DeclaringMethodTable: mt,
		IsVirtual:            true,
	}
	r.bySlot[vtableKey{mt, slot}] = e
	return e, nil
}

// RemoveByAssembly zeroes every slot owned by assemblyID and releases
// the code-heap regions backing their native code, returning the number
// of slots removed (spec.md §4.5).
func (r *Registry) RemoveByAssembly(assemblyID uint32) int {
	var removedRegions []*codeheap.Region
	count := 0
	for bi, b := range r.blocks {
		for i := range b.entries {
			e := &b.entries[i]
			if !e.used() || e.AssemblyID != assemblyID {
				continue
			}
			if region, ok := r.regions[e]; ok {
				removedRegions = append(removedRegions, region)
				delete(r.regions, e)
			}
			delete(r.byID, e.MethodID)
			if e.VtableSlot >= 0 {
				delete(r.bySlot, vtableKey{e.DeclaringMethodTable, e.VtableSlot})
			}
			b.free(i)
			count++
			_ = bi
		}
	}
	if len(removedRegions) > 0 {
		r.heap.RemoveByAssembly(removedRegions)
	}
	log.L().Info("registry: removed assembly", zap.Uint32("assembly", assemblyID), zap.Int("count", count))
	return count
}
