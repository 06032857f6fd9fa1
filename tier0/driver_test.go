package tier0

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codeheap"
	"github.com/ProtonOS/tier0/il"
	"github.com/ProtonOS/tier0/iljit"
	"github.com/ProtonOS/tier0/registry"
)

type fakeProtector struct{}

func (fakeProtector) Reserve(size int) ([]byte, error) { return make([]byte, size), nil }
func (fakeProtector) MakeExecutable([]byte) error       { return nil }
func (fakeProtector) Release([]byte) error              { return nil }

func newTestDriverDeps() (*codeheap.Heap, *registry.Registry) {
	heap := codeheap.New(fakeProtector{})
	return heap, registry.New(heap)
}

// fakeMetadata backs MetadataProvider with a plain map keyed by token,
// matching the shape a real metadata loader would resolve against
// (spec.md §1: "stated interfaces only").
type fakeMetadata struct {
	descs          map[uint32]MethodDescriptor
	bodies         map[uint32][]byte
	sigs           map[uint32]iljit.Signature
	vtableSlot     int
	instantiations map[uint32][]uintptr
}

func (f *fakeMetadata) ResolveMethod(assemblyID, token uint32) (MethodDescriptor, error) {
	d, ok := f.descs[token]
	if !ok {
		return MethodDescriptor{}, errors.New("no such method")
	}
	return d, nil
}

func (f *fakeMetadata) FetchBody(assemblyID uint32, rva uint32) ([]byte, error) {
	b, ok := f.bodies[rva]
	if !ok {
		return nil, errors.New("no such body")
	}
	return b, nil
}

func (f *fakeMetadata) ParseSignature(assemblyID, token uint32, typeArgHash uint64) (iljit.Signature, error) {
	s, ok := f.sigs[token]
	if !ok {
		return iljit.Signature{}, errors.New("no such signature")
	}
	return s, nil
}

func (f *fakeMetadata) VtableSlotFor(assemblyID, token uint32, mt uintptr, newSlot bool) (int, error) {
	return f.vtableSlot, nil
}

func (f *fakeMetadata) KnownInstantiations(assemblyID, typeToken uint32) ([]uintptr, error) {
	return f.instantiations[typeToken], nil
}

type fakeKernel struct {
	exports map[string]*byte
}

func (f *fakeKernel) Lookup(name []byte) (*byte, bool) {
	addr, ok := f.exports[string(name)]
	return addr, ok
}

type fakeGC struct {
	published []abi.MethodID
}

func (f *fakeGC) PublishGCInfo(id abi.MethodID, codePtr *byte, codeSize int, gcInfo []byte) error {
	f.published = append(f.published, id)
	return nil
}

type fakeUnwind struct {
	registered []abi.MethodID
}

func (f *fakeUnwind) RegisterUnwind(id abi.MethodID, codePtr *byte, codeSize int, unwindInfo []byte) error {
	f.registered = append(f.registered, id)
	return nil
}

type fakeAOT struct {
	entries map[abi.MethodID]struct {
		ptr  *byte
		size int
	}
}

func (f *fakeAOT) Lookup(id abi.MethodID) (*byte, int, bool) {
	e, ok := f.entries[id]
	return e.ptr, e.size, ok
}

func retMethodBody() []byte {
	// One fat header (flags=0x03, reserved, maxStack=8, codeSize=1,
	// localVarSigToken=0) followed by a single `ret` opcode.
	header := make([]byte, 12)
	header[0] = 0x03
	binary.LittleEndian.PutUint16(header[2:4], 8)
	binary.LittleEndian.PutUint32(header[4:8], 1)
	return append(header, byte(il.Ret))
}

func TestCompileMethodAOTShortCircuit(t *testing.T) {
	heap, reg := newTestDriverDeps()
	id := abi.MethodID{AssemblyID: 1, Token: 42}
	want := make([]byte, 1)
	aot := &fakeAOT{entries: map[abi.MethodID]struct {
		ptr  *byte
		size int
	}{id: {&want[0], 7}}}

	d := NewDriver(heap, reg, &fakeMetadata{}, &fakeKernel{}, nil, nil, aot)
	ptr, size, err := d.CompileMethod(id.AssemblyID, id.Token)
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	if ptr != &want[0] || size != 7 {
		t.Fatalf("got (%p, %d), want (%p, 7)", ptr, size, &want[0])
	}
}

func TestCompileMethodPInvokeResolvesKernelExport(t *testing.T) {
	heap, reg := newTestDriverDeps()
	exportAddr := make([]byte, 1)
	meta := &fakeMetadata{
		descs: map[uint32]MethodDescriptor{
			42: {RVA: 0, IsPInvoke: true, ImportName: "Kernel_Write"},
		},
		sigs: map[uint32]iljit.Signature{
			42: {ReturnKind: abi.RetVoid},
		},
	}
	kernel := &fakeKernel{exports: map[string]*byte{"Kernel_Write": &exportAddr[0]}}

	d := NewDriver(heap, reg, meta, kernel, nil, nil, nil)
	ptr, _, err := d.CompileMethod(1, 42)
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	if ptr != &exportAddr[0] {
		t.Fatalf("ptr = %p, want %p", ptr, &exportAddr[0])
	}
}

func TestCompileMethodPInvokeMissingExportIsMetadataFault(t *testing.T) {
	heap, reg := newTestDriverDeps()
	meta := &fakeMetadata{
		descs: map[uint32]MethodDescriptor{
			42: {RVA: 0, IsPInvoke: true, ImportName: "Missing"},
		},
		sigs: map[uint32]iljit.Signature{42: {ReturnKind: abi.RetVoid}},
	}
	d := NewDriver(heap, reg, meta, &fakeKernel{}, nil, nil, nil)
	_, _, err := d.CompileMethod(1, 42)
	if !errors.Is(err, ErrMetadataFault) {
		t.Fatalf("err = %v, want ErrMetadataFault", err)
	}
}

func TestCompileMethodAbstractPublishesVtableSlotOnly(t *testing.T) {
	heap, reg := newTestDriverDeps()
	meta := &fakeMetadata{
		descs: map[uint32]MethodDescriptor{
			42: {RVA: 0, IsAbstract: true, DeclaringMethodTable: 0x1000},
		},
		sigs:       map[uint32]iljit.Signature{42: {HasThis: true, ReturnKind: abi.RetVoid}},
		vtableSlot: 3,
	}
	d := NewDriver(heap, reg, meta, &fakeKernel{}, nil, nil, nil)
	ptr, size, err := d.CompileMethod(1, 42)
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	if ptr != nil || size != 0 {
		t.Fatalf("abstract method should publish no code, got (%p, %d)", ptr, size)
	}
	e, ok := reg.LookupByVtableSlot(0x1000, 3)
	if !ok || e.Token != 42 {
		t.Fatalf("expected vtable slot 3 to hold token 42, got %+v, ok=%v", e, ok)
	}
}

func TestCompileMethodVirtualPropagatesToEveryKnownInstantiation(t *testing.T) {
	heap, reg := newTestDriverDeps()
	meta := &fakeMetadata{
		descs: map[uint32]MethodDescriptor{
			42: {RVA: 100, IsVirtual: true, DeclaringMethodTable: 0x1000, DeclaringTypeToken: 77, NewSlot: true},
		},
		bodies:     map[uint32][]byte{100: retMethodBody()},
		sigs:       map[uint32]iljit.Signature{42: {HasThis: true, ReturnKind: abi.RetVoid}},
		vtableSlot: 3,
		instantiations: map[uint32][]uintptr{
			77: {0x1000, 0x2000, 0x3000},
		},
	}
	d := NewDriver(heap, reg, meta, &fakeKernel{}, nil, nil, nil)
	ptr, _, err := d.CompileMethod(1, 42)
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}

	for _, mt := range []uintptr{0x1000, 0x2000, 0x3000} {
		e, ok := reg.LookupByVtableSlot(mt, 3)
		if !ok {
			t.Fatalf("instantiation %#x: vtable slot 3 not populated", mt)
		}
		if e.NativeCode != ptr {
			t.Fatalf("instantiation %#x: NativeCode = %p, want %p", mt, e.NativeCode, ptr)
		}
	}
}

func TestCompileMethodFullPathRegistersGCInfoAndUnwind(t *testing.T) {
	heap, reg := newTestDriverDeps()
	meta := &fakeMetadata{
		descs:  map[uint32]MethodDescriptor{42: {RVA: 100}},
		bodies: map[uint32][]byte{100: retMethodBody()},
		sigs:   map[uint32]iljit.Signature{42: {ReturnKind: abi.RetVoid}},
	}
	gc := &fakeGC{}
	unwind := &fakeUnwind{}
	d := NewDriver(heap, reg, meta, &fakeKernel{}, gc, unwind, nil)

	ptr, size, err := d.CompileMethod(1, 42)
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	if ptr == nil || size == 0 {
		t.Fatalf("got (%p, %d), want compiled code", ptr, size)
	}
	wantID := abi.MethodID{AssemblyID: 1, Token: 42}
	if len(gc.published) != 1 || gc.published[0] != wantID {
		t.Fatalf("gc.published = %v, want [%v]", gc.published, wantID)
	}
	if len(unwind.registered) != 1 || unwind.registered[0] != wantID {
		t.Fatalf("unwind.registered = %v, want [%v]", unwind.registered, wantID)
	}

	// Recompiling the same method returns the already-compiled entry
	// without touching the collaborators again (spec.md §4.5 "compiled"
	// case).
	ptr2, size2, err := d.CompileMethod(1, 42)
	if err != nil {
		t.Fatalf("second CompileMethod: %v", err)
	}
	if ptr2 != ptr || size2 != size {
		t.Fatalf("recompilation returned a different entry: (%p,%d) vs (%p,%d)", ptr2, size2, ptr, size)
	}
	if len(gc.published) != 1 {
		t.Fatalf("gc.published grew on a cache hit: %v", gc.published)
	}
}

func TestCompileMethodMissingRVANonPInvokeNonAbstractIsMetadataFault(t *testing.T) {
	heap, reg := newTestDriverDeps()
	meta := &fakeMetadata{descs: map[uint32]MethodDescriptor{42: {RVA: 0}}}
	d := NewDriver(heap, reg, meta, &fakeKernel{}, nil, nil, nil)
	_, _, err := d.CompileMethod(1, 42)
	if !errors.Is(err, ErrMetadataFault) {
		t.Fatalf("err = %v, want ErrMetadataFault", err)
	}
	var compileErr *CompileError
	if !errors.As(err, &compileErr) {
		t.Fatalf("err = %v, want *CompileError in chain", err)
	}
	if compileErr.Token != 42 {
		t.Fatalf("CompileError.Token = %d, want 42", compileErr.Token)
	}
}

func TestCompileMethodResolvesCalleeThroughDriverRecursion(t *testing.T) {
	heap, reg := newTestDriverDeps()

	var calleeBody []byte
	calleeBody = append(calleeBody, retMethodBody()...)

	callerTok := il.Token{Table: il.TableMethodDef, RID: 99}
	var callerIL []byte
	callerIL = append(callerIL, byte(il.Call))
	callerIL = append(callerIL, byte(callerTok.Table))
	callerIL = binary.LittleEndian.AppendUint32(callerIL, callerTok.RID)
	callerIL = append(callerIL, byte(il.Ret))

	callerHeader := make([]byte, 12)
	callerHeader[0] = 0x03
	binary.LittleEndian.PutUint16(callerHeader[2:4], 8)
	binary.LittleEndian.PutUint32(callerHeader[4:8], uint32(len(callerIL)))
	callerBody := append(callerHeader, callerIL...)

	calleeToken := callerTok.Raw()
	meta := &fakeMetadata{
		descs: map[uint32]MethodDescriptor{
			1:           {RVA: 100},
			calleeToken: {RVA: 200},
		},
		bodies: map[uint32][]byte{
			100: callerBody,
			200: retMethodBody(),
		},
		sigs: map[uint32]iljit.Signature{
			1:           {ReturnKind: abi.RetVoid},
			calleeToken: {ReturnKind: abi.RetVoid},
		},
	}
	d := NewDriver(heap, reg, meta, &fakeKernel{}, nil, nil, nil)
	ptr, size, err := d.CompileMethod(1, 1)
	if err != nil {
		t.Fatalf("CompileMethod: %v", err)
	}
	if ptr == nil || size == 0 {
		t.Fatalf("got (%p, %d), want compiled code", ptr, size)
	}
	if _, ok := reg.Lookup(abi.MethodID{AssemblyID: 1, Token: calleeToken}); !ok {
		t.Fatal("callee was never registered by the recursive resolve")
	}
}
