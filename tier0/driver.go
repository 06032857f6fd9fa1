// Package tier0 implements the driver that orchestrates the other six
// components into the single entry point spec.md §4.7 describes:
// CompileMethod(assembly_id, method_token) -> (code_ptr, code_size).
package tier0

import (
	"errors"
	"fmt"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/codebuffer"
	"github.com/ProtonOS/tier0/codeheap"
	"github.com/ProtonOS/tier0/il"
	"github.com/ProtonOS/tier0/iljit"
	"github.com/ProtonOS/tier0/internal/log"
	"github.com/ProtonOS/tier0/registry"
	"go.uber.org/zap"
)

// Driver holds the process-wide collaborators the Tier-0 core needs and
// the single ambient-assembly/type-arg-hash thread-local context
// spec.md §5 describes. It is not safe for concurrent use: the driver
// is single-threaded and cooperative by design (spec.md §5).
type Driver struct {
	cfg      Config
	heap     *codeheap.Heap
	registry *registry.Registry

	meta    MetadataProvider
	kernel  KernelExports
	gc      GCPublisher
	unwind  UnwindRegistrar
	aot     AOTRegistry

	// ambientAssembly/ambientTypeArgHash are the thread-local context
	// spec.md §4.7 step 2 pushes and restores around every CompileMethod
	// entry. Nested recursive compilation saves and restores them around
	// each level (spec.md §5).
	ambientAssembly   uint32
	ambientTypeArgHash uint64
}

// NewDriver wires the collaborators together. heap and reg are owned by
// the caller for the process lifetime (spec.md §5, §9: "process-wide,
// global, initialize-once state").
func NewDriver(heap *codeheap.Heap, reg *registry.Registry, meta MetadataProvider, kernel KernelExports, gc GCPublisher, unwind UnwindRegistrar, aot AOTRegistry, opts ...Option) *Driver {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Driver{
		cfg:      cfg,
		heap:     heap,
		registry: reg,
		meta:     meta,
		kernel:   kernel,
		gc:       gc,
		unwind:   unwind,
		aot:      aot,
	}
}

// CompileMethod implements spec.md §4.7 for the generic method
// definition (type_arg_hash = 0).
func (d *Driver) CompileMethod(assemblyID, token uint32) (codePtr *byte, codeSize int, err error) {
	return d.compileMethod(assemblyID, token, 0)
}

// CompileGenericInstantiation compiles one instantiation of a generic
// method, identified by the hash of its type arguments (spec.md §3,
// §4.5's fallback-lookup rule).
func (d *Driver) CompileGenericInstantiation(assemblyID, token uint32, typeArgHash uint64) (codePtr *byte, codeSize int, err error) {
	return d.compileMethod(assemblyID, token, typeArgHash)
}

func (d *Driver) compileMethod(assemblyID, token uint32, typeArgHash uint64) (*byte, int, error) {
	id := abi.MethodID{AssemblyID: assemblyID, Token: token, TypeArgHash: typeArgHash}

	// Step 1: AOT short-circuit.
	if d.aot != nil {
		if codePtr, codeSize, ok := d.aot.Lookup(id); ok {
			return codePtr, codeSize, nil
		}
	}

	// Step 2: context save & switch, restored on every exit path.
	prevAssembly, prevHash := d.ambientAssembly, d.ambientTypeArgHash
	d.ambientAssembly, d.ambientTypeArgHash = assemblyID, typeArgHash
	defer func() { d.ambientAssembly, d.ambientTypeArgHash = prevAssembly, prevHash }()

	codePtr, codeSize, err := d.compileMethodLocked(id)
	if err != nil {
		return nil, 0, wrapCompileError(id, err)
	}
	return codePtr, codeSize, nil
}

func (d *Driver) compileMethodLocked(id abi.MethodID) (*byte, int, error) {
	// Step 3: metadata fetch.
	desc, err := d.meta.ResolveMethod(id.AssemblyID, id.Token)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: resolve method: %v", ErrMetadataFault, err)
	}

	if desc.RVA == 0 {
		return d.compileRVAlessMethod(id, desc)
	}

	// Step 4: body parse.
	raw, err := d.meta.FetchBody(id.AssemblyID, desc.RVA)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: fetch body: %v", ErrMetadataFault, err)
	}
	header, err := il.ParseHeader(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInputFault, err)
	}
	if header.HasMoreSections {
		return nil, 0, fmt.Errorf("method %+v: %w", id, iljit.ErrUnsupportedEH)
	}
	body := header.Body(raw)

	// Step 5: signature parse.
	sig, err := d.meta.ParseSignature(id.AssemblyID, id.Token, id.TypeArgHash)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: parse signature: %v", ErrMetadataFault, err)
	}

	// Step 6: reserve.
	entry, err := d.registry.Reserve(id, sig.ParamCount(), sig.ReturnKind, sig.ReturnStructSize, sig.HasThis)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
	}
	if entry == nil {
		// RecursionSignal (spec.md §7): not an error, a control signal.
		target, ok := d.registry.GetRecursiveCallTarget(id)
		if !ok {
			return nil, 0, fmt.Errorf("%w: recursive target missing for %+v", ErrRuntimeFault, id)
		}
		log.L().Debug("tier0: recursive call in progress", zap.Uint32("token", id.Token))
		return target, 0, nil
	}
	if entry.IsCompiled {
		return entry.NativeCode, entry.CodeSize, nil
	}

	// Step 7: compile.
	region, err := d.heap.Allocate(d.cfg.InitialCodeBufferSize)
	if err != nil {
		d.registry.Cancel(id)
		return nil, 0, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
	}
	buf := codebuffer.New(region.Bytes())
	resolver := &callResolver{driver: d}
	result, err := iljit.Compile(id, sig, body, buf, resolver, d.cfg.compilerOptions())
	if err != nil {
		d.registry.Cancel(id)
		switch {
		case errors.Is(err, iljit.ErrInputFault):
			err = fmt.Errorf("%w: %w", ErrInputFault, err)
		case errors.Is(err, iljit.ErrResourceExhaustion):
			err = fmt.Errorf("%w: %w", ErrResourceExhaustion, err)
		}
		return nil, 0, err
	}

	// Step 8: complete.
	if err := d.registry.Complete(id, region, result.CodeSize); err != nil {
		d.registry.Cancel(id)
		return nil, 0, fmt.Errorf("%w: %v", ErrRuntimeFault, err)
	}
	if err := d.heap.Finalize(region); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
	}

	// Step 9: register unwind/GCInfo.
	if d.gc != nil {
		if err := d.gc.PublishGCInfo(id, entry.NativeCode, result.CodeSize, result.GCInfo); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrRuntimeFault, err)
		}
	}
	if d.unwind != nil {
		if err := d.unwind.RegisterUnwind(id, entry.NativeCode, result.CodeSize, result.UnwindInfo); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrRuntimeFault, err)
		}
	}

	// Step 10: vtable population.
	if desc.IsVirtual {
		if err := d.populateVtable(id, desc, entry); err != nil {
			return nil, 0, err
		}
	}

	// Step 11: constructor hookup.
	if desc.IsConstructor {
		entry.DeclaringMethodTable = desc.DeclaringMethodTable
	}

	return entry.NativeCode, entry.CodeSize, nil
}

// compileRVAlessMethod implements spec.md §4.7 step 3's RVA == 0
// branches: a PInvoke import or an abstract method's vtable-only
// publication.
func (d *Driver) compileRVAlessMethod(id abi.MethodID, desc MethodDescriptor) (*byte, int, error) {
	switch {
	case desc.IsPInvoke:
		addr, ok := d.kernel.Lookup([]byte(desc.ImportName))
		if !ok {
			return nil, 0, fmt.Errorf("%w: PInvoke import %q not found", ErrMetadataFault, desc.ImportName)
		}
		sig, err := d.meta.ParseSignature(id.AssemblyID, id.Token, id.TypeArgHash)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMetadataFault, err)
		}
		entry, err := d.registry.RegisterPInvoke(id, addr, sig.ParamCount(), sig.ReturnKind, sig.HasThis)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
		}
		log.L().Debug("tier0: resolved PInvoke", zap.Uint32("token", id.Token), zap.String("import", desc.ImportName))
		return entry.NativeCode, entry.CodeSize, nil

	case desc.IsAbstract:
		slot, err := d.meta.VtableSlotFor(id.AssemblyID, id.Token, desc.DeclaringMethodTable, desc.NewSlot)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMetadataFault, err)
		}
		sig, err := d.meta.ParseSignature(id.AssemblyID, id.Token, id.TypeArgHash)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrMetadataFault, err)
		}
		if _, err := d.registry.RegisterVirtual(id, desc.DeclaringMethodTable, slot, sig.ParamCount(), sig.ReturnKind, sig.HasThis); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
		}
		log.L().Debug("tier0: published abstract vtable slot", zap.Uint32("token", id.Token), zap.Int("slot", slot))
		return nil, 0, nil

	default:
		return nil, 0, fmt.Errorf("%w: method %+v has no RVA and is neither PInvoke nor abstract", ErrMetadataFault, id)
	}
}

// populateVtable writes the newly compiled native entry into the
// declaring type's vtable slot and propagates it into every other known
// instantiation of that type (spec.md §4.7 step 10, §8 scenario 3). The
// slot index is structural — identical across every instantiation of
// the same generic type — so only the MethodTable pointer varies per
// instantiation.
//
// A registry Entry is keyed by one MethodID and holds one
// (DeclaringMethodTable, VtableSlot) pair (registry.RegisterVirtual
// overwrites both in place), so a second instantiation can't share the
// declaring entry's row — it needs its own. Each additional
// instantiation gets an alias entry keyed by a synthetic MethodID
// (same token, TypeArgHash derived from the instantiation's MT) that
// installs the already-compiled native address directly, the same way
// RegisterPInvoke installs a native address with no compilation step.
func (d *Driver) populateVtable(id abi.MethodID, desc MethodDescriptor, entry *registry.Entry) error {
	slot, err := d.resolveVtableSlot(id, desc)
	if err != nil {
		return err
	}
	if _, err := d.registry.RegisterVirtual(id, desc.DeclaringMethodTable, slot, entry.ArgCount, entry.ReturnKind, entry.HasThis); err != nil {
		return fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
	}

	others, err := d.meta.KnownInstantiations(id.AssemblyID, desc.DeclaringTypeToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataFault, err)
	}
	for _, mt := range others {
		if mt == desc.DeclaringMethodTable {
			continue
		}
		aliasID := abi.MethodID{AssemblyID: id.AssemblyID, Token: id.Token, TypeArgHash: uint64(mt)}
		if _, err := d.registry.RegisterPInvoke(aliasID, entry.NativeCode, entry.ArgCount, entry.ReturnKind, entry.HasThis); err != nil {
			return fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
		}
		if _, err := d.registry.RegisterVirtual(aliasID, mt, slot, entry.ArgCount, entry.ReturnKind, entry.HasThis); err != nil {
			return fmt.Errorf("%w: %v", ErrResourceExhaustion, err)
		}
	}
	return nil
}

// resolveVtableSlot reuses an override slot already discovered ahead of
// compilation, falling back to the metadata provider's NewSlot/ReuseSlot
// computation (spec.md §4.7 step 10).
func (d *Driver) resolveVtableSlot(id abi.MethodID, desc MethodDescriptor) (int, error) {
	if existing, ok := d.registry.LookupLowestSlotByToken(id.Token, id.AssemblyID, desc.DeclaringMethodTable); ok && existing.VtableSlot >= 0 {
		return existing.VtableSlot, nil
	}
	slot, err := d.meta.VtableSlotFor(id.AssemblyID, id.Token, desc.DeclaringMethodTable, desc.NewSlot)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMetadataFault, err)
	}
	return slot, nil
}
