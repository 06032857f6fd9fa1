package registry

import (
	"testing"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codeheap"
	"github.com/google/go-cmp/cmp"
)

type fakeProtector struct{}

func (fakeProtector) Reserve(size int) ([]byte, error) { return make([]byte, size), nil }
func (fakeProtector) MakeExecutable([]byte) error       { return nil }
func (fakeProtector) Release([]byte) error              { return nil }

func newTestRegistry() *Registry {
	return New(codeheap.New(fakeProtector{}))
}

func TestReserveFreshSlot(t *testing.T) {
	r := newTestRegistry()
	id := abi.MethodID{AssemblyID: 1, Token: 100}
	e, err := r.Reserve(id, 2, abi.RetInt32, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if e.VtableSlot != -1 {
		t.Fatalf("VtableSlot = %d, want -1", e.VtableSlot)
	}
	if !e.IsBeingCompiled || e.IsCompiled {
		t.Fatalf("unexpected state: %+v", e)
	}
}

func TestReserveAlreadyCompiledReturnsEntry(t *testing.T) {
	r := newTestRegistry()
	id := abi.MethodID{AssemblyID: 1, Token: 100}
	region, _ := r.heap.Allocate(16)
	if _, err := r.Reserve(id, 0, abi.RetVoid, 0, false); err != nil {
		t.Fatal(err)
	}
	if err := r.Complete(id, region, 16); err != nil {
		t.Fatal(err)
	}
	e, err := r.Reserve(id, 0, abi.RetVoid, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if !e.IsCompiled {
		t.Fatal("expected IsCompiled = true")
	}
}

func TestReserveRecursiveReturnsNilAndPreallocates(t *testing.T) {
	r := newTestRegistry()
	id := abi.MethodID{AssemblyID: 1, Token: 200}
	if _, err := r.Reserve(id, 1, abi.RetInt32, 0, false); err != nil {
		t.Fatal(err)
	}
	e, err := r.Reserve(id, 1, abi.RetInt32, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Fatalf("expected nil entry for recursive reservation, got %+v", e)
	}
	target, ok := r.GetRecursiveCallTarget(id)
	if !ok || target == nil {
		t.Fatal("expected a pre-allocated recursive call target")
	}
}

func TestCompleteCopiesIntoPreallocatedSlab(t *testing.T) {
	r := newTestRegistry()
	id := abi.MethodID{AssemblyID: 1, Token: 300}
	r.Reserve(id, 0, abi.RetVoid, 0, false)
	r.Reserve(id, 0, abi.RetVoid, 0, false) // triggers prealloc

	scratch, _ := r.heap.Allocate(8)
	copy(scratch.Bytes(), []byte{0xC3, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90})
	if err := r.Complete(id, scratch, 1); err != nil {
		t.Fatal(err)
	}
	e, _ := r.lookupExact(id)
	if !e.IsCompiled {
		t.Fatal("expected IsCompiled = true")
	}
	if *e.NativeCode != 0xC3 {
		t.Fatalf("prealloc slab was not updated with the compiled byte")
	}
}

func TestCancelClearsBeingCompiled(t *testing.T) {
	r := newTestRegistry()
	id := abi.MethodID{AssemblyID: 1, Token: 400}
	r.Reserve(id, 0, abi.RetVoid, 0, false)
	if err := r.Cancel(id); err != nil {
		t.Fatal(err)
	}
	e, _ := r.lookupExact(id)
	if e.IsBeingCompiled {
		t.Fatal("expected IsBeingCompiled = false after Cancel")
	}
}

func TestLookupFallsBackToUncompiledGenericDefinition(t *testing.T) {
	r := newTestRegistry()
	def := abi.MethodID{AssemblyID: 1, Token: 500, TypeArgHash: 0}
	e, _ := r.Reserve(def, 1, abi.RetInt32, 0, false)
	e.IsVirtual = true

	inst := abi.MethodID{AssemblyID: 1, Token: 500, TypeArgHash: 0xABCD}
	found, ok := r.Lookup(inst)
	if !ok {
		t.Fatal("expected fallback lookup to succeed")
	}
	if diff := cmp.Diff(def, found.MethodID); diff != "" {
		t.Fatalf("fallback entry mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupFallbackRejectsCompiledDefinition(t *testing.T) {
	r := newTestRegistry()
	def := abi.MethodID{AssemblyID: 1, Token: 600}
	r.Reserve(def, 0, abi.RetVoid, 0, false)
	region, _ := r.heap.Allocate(8)
	r.Complete(def, region, 1)

	inst := abi.MethodID{AssemblyID: 1, Token: 600, TypeArgHash: 0x1}
	if _, ok := r.Lookup(inst); ok {
		t.Fatal("fallback must not return a compiled, non-virtual definition")
	}
}

func TestLookupByVtableSlot(t *testing.T) {
	r := newTestRegistry()
	id := abi.MethodID{AssemblyID: 1, Token: 700}
	mt := uintptr(0xDEADBEEF)
	if _, err := r.RegisterVirtual(id, mt, 3, 0, abi.RetVoid, true); err != nil {
		t.Fatal(err)
	}
	e, ok := r.LookupByVtableSlot(mt, 3)
	if !ok {
		t.Fatal("expected to find entry by vtable slot")
	}
	if e.Token != 700 {
		t.Fatalf("Token = %d, want 700", e.Token)
	}
}

func TestRemoveByAssemblyZeroesSlotsAndReleasesRegions(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < 3; i++ {
		id := abi.MethodID{AssemblyID: 9, Token: uint32(800 + i)}
		r.Reserve(id, 0, abi.RetVoid, 0, false)
		region, _ := r.heap.Allocate(8)
		r.Complete(id, region, 1)
	}
	other := abi.MethodID{AssemblyID: 10, Token: 900}
	r.Reserve(other, 0, abi.RetVoid, 0, false)

	n := r.RemoveByAssembly(9)
	if n != 3 {
		t.Fatalf("removed %d, want 3", n)
	}
	if _, ok := r.lookupExact(other); !ok {
		t.Fatal("unrelated assembly's entry must survive removal")
	}
	if len(r.regions) != 0 {
		t.Fatalf("%d code-heap regions still held after removal, want 0", len(r.regions))
	}
	stats := r.Stats()
	if stats.UsedSlots != 1 {
		t.Fatalf("used slots = %d, want 1", stats.UsedSlots)
	}
}

func TestBlockChainGrowsAcrossCapacity(t *testing.T) {
	r := newTestRegistry()
	for i := 0; i < BlockSize+5; i++ {
		id := abi.MethodID{AssemblyID: 1, Token: uint32(1000 + i)}
		if _, err := r.Reserve(id, 0, abi.RetVoid, 0, false); err != nil {
			t.Fatal(err)
		}
	}
	if len(r.blocks) != 2 {
		t.Fatalf("expected block chain to grow to 2 blocks, got %d", len(r.blocks))
	}
}

