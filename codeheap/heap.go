// Package codeheap implements the page-granular, W^X executable-memory
// allocator that code buffers draw from (spec.md §4.2). The heap never
// relocates or compacts a region once handed out (spec.md §9, "Open
// questions": this core assumes a non-relocating code heap), and it is
// process-wide, global, initialize-once state (spec.md §5, §9).
package codeheap

import (
	"errors"
	"fmt"

	"github.com/ProtonOS/tier0/internal/log"
	"go.uber.org/zap"
)

// PageSize is the allocation granularity. spec.md §4.2: "Allocation unit
// is a minimum of 4 KiB."
const PageSize = 4096

// SlabSize is the size a recursive method's pre-allocated code buffer
// reserves (spec.md §4.2, §4.5): a single page.
const SlabSize = PageSize

// Protector is the platform seam that actually flips page permissions.
// On a hosted test build this is backed by mmap/mprotect
// (protect_unix.go); on a freestanding kernel build, ProtonOS's own
// physical/virtual memory manager implements it.
//
// The two-phase contract mirrors W^X: Reserve hands back writable,
// non-executable memory; MakeExecutable flips it read+execute (and is
// responsible for the instruction-cache/TLB flush the JIT itself does
// not perform — spec.md §4.2, "the cache/TLB flush is the heap's
// responsibility").
type Protector interface {
	Reserve(size int) ([]byte, error)
	MakeExecutable(region []byte) error
	Release(region []byte) error
}

var (
	// ErrAllocationFailed is a ResourceExhaustion fault (spec.md §7).
	ErrAllocationFailed = errors.New("codeheap: allocation failed")
)

// Region is one allocation handed out by a Heap. It starts writable and
// becomes read-execute once Finalize is called.
type Region struct {
	mem        []byte
	executable bool
}

// Bytes exposes the region's backing memory. Writing to it after
// Finalize has been called is undefined (the page may no longer be
// writable under a real W^X protector).
func (r *Region) Bytes() []byte { return r.mem }

// FunctionPointer returns the native address of this region, valid once
// Finalize has made it executable.
func (r *Region) FunctionPointer() *byte {
	if len(r.mem) == 0 {
		return nil
	}
	return &r.mem[0]
}

// Executable reports whether Finalize has run.
func (r *Region) Executable() bool { return r.executable }

// Heap is the process-wide executable-memory allocator. Construct one at
// runtime startup and never re-initialize it (spec.md §9).
type Heap struct {
	protector Protector
	allocated []*Region // retained so RemoveByAssembly-driven reclamation can be conservative (spec.md §5)
}

// New constructs a Heap backed by the given Protector.
func New(protector Protector) *Heap {
	if protector == nil {
		protector = defaultProtector()
	}
	return &Heap{protector: protector}
}

// Allocate reserves at least size bytes, rounded up to the page
// granularity, and returns a writable (non-executable) Region.
func (h *Heap) Allocate(size int) (*Region, error) {
	if size <= 0 {
		size = 1
	}
	rounded := ((size + PageSize - 1) / PageSize) * PageSize
	mem, err := h.protector.Reserve(rounded)
	if err != nil {
		log.L().Error("codeheap: allocation failed", zap.Int("size", rounded), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	region := &Region{mem: mem}
	h.allocated = append(h.allocated, region)
	return region, nil
}

// AllocateSlab reserves a single pre-allocation slab (spec.md §4.2,
// §4.5): "recursive methods may be pre-allocated a 4 KiB slab so that a
// call site emitted mid-compilation may target the final address."
func (h *Heap) AllocateSlab() (*Region, error) {
	return h.Allocate(SlabSize)
}

// Finalize flips region to read-execute and flushes the instruction
// cache/TLB for it. The JIT must not write to region after this call.
func (h *Heap) Finalize(region *Region) error {
	if region.executable {
		return nil
	}
	if err := h.protector.MakeExecutable(region.mem); err != nil {
		return fmt.Errorf("codeheap: finalize failed: %w", err)
	}
	region.executable = true
	return nil
}

// RemoveByAssembly hands every region in regions back to the Protector's
// Release immediately (spec.md §5). A Release error is ignored, so an
// unload never fails on it; nothing here waits for callers that may
// still hold function pointers into a released region.
func (h *Heap) RemoveByAssembly(regions []*Region) {
	for _, r := range regions {
		_ = h.protector.Release(r.mem) // best-effort; failures are not fatal to unload
	}
}
