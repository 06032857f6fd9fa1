package codeheap

import "testing"

type fakeProtector struct {
	executed  map[*byte]bool
	released  [][]byte
	failAlloc bool
}

func (f *fakeProtector) Reserve(size int) ([]byte, error) {
	if f.failAlloc {
		return nil, errTestFail
	}
	return make([]byte, size), nil
}

func (f *fakeProtector) MakeExecutable(region []byte) error {
	if f.executed == nil {
		f.executed = map[*byte]bool{}
	}
	if len(region) > 0 {
		f.executed[&region[0]] = true
	}
	return nil
}

func (f *fakeProtector) Release(region []byte) error {
	f.released = append(f.released, region)
	return nil
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errTestFail = testErr("fake reserve failure")

func TestAllocateRoundsUpToPageSize(t *testing.T) {
	h := New(&fakeProtector{})
	r, err := h.Allocate(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Bytes()) != PageSize {
		t.Fatalf("len = %d, want %d", len(r.Bytes()), PageSize)
	}
}

func TestAllocateSlabIsOnePage(t *testing.T) {
	h := New(&fakeProtector{})
	r, err := h.AllocateSlab()
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Bytes()) != SlabSize {
		t.Fatalf("slab size = %d, want %d", len(r.Bytes()), SlabSize)
	}
}

func TestFinalizeMarksExecutableOnce(t *testing.T) {
	fp := &fakeProtector{}
	h := New(fp)
	r, _ := h.Allocate(10)
	if r.Executable() {
		t.Fatal("region must not start executable")
	}
	if err := h.Finalize(r); err != nil {
		t.Fatal(err)
	}
	if !r.Executable() {
		t.Fatal("Finalize must mark the region executable")
	}
	// Idempotent: finalizing twice must not error or double-call the protector.
	if err := h.Finalize(r); err != nil {
		t.Fatal(err)
	}
}

func TestAllocateFailurePropagatesAsResourceExhaustion(t *testing.T) {
	h := New(&fakeProtector{failAlloc: true})
	_, err := h.Allocate(100)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRemoveByAssemblyReleasesRegions(t *testing.T) {
	fp := &fakeProtector{}
	h := New(fp)
	r1, _ := h.Allocate(10)
	r2, _ := h.Allocate(10)
	h.RemoveByAssembly([]*Region{r1, r2})
	if len(fp.released) != 2 {
		t.Fatalf("released %d regions, want 2", len(fp.released))
	}
}
