package tier0

import (
	"fmt"

	"github.com/ProtonOS/tier0/abi"
	"github.com/ProtonOS/tier0/iljit"
	"github.com/ProtonOS/tier0/registry"
)

// runtimeAllocatorExport is the kernel export name the object-allocation
// helper newobj calls against (spec.md §4.4 "Construction"). Its exact
// spelling is this core's own convention; the kernel export registry
// resolves it the same way it resolves any PInvoke import name.
const runtimeAllocatorExport = "ProtonOS_AllocateObject"

// callResolver implements iljit.CallResolver by walking the three cases
// of spec.md §4.5 against the registry, recursing through the driver's
// CompileMethod for a callee not yet seen. One instance is scoped to a
// single top-level compilation (spec.md §5: "compiler scratch...
// released unconditionally on exit").
type callResolver struct {
	driver *Driver
}

func signatureFromEntry(e *registry.Entry) iljit.Signature {
	return iljit.Signature{
		HasThis:          e.HasThis,
		Params:           make([]iljit.Param, e.ArgCount),
		ReturnKind:       e.ReturnKind,
		ReturnStructSize: e.ReturnStructSize,
		VtableSlot:       e.VtableSlot,
	}
}

func (r *callResolver) ResolveCall(callee abi.MethodID) (*byte, iljit.Signature, error) {
	if e, ok := r.driver.registry.Lookup(callee); ok {
		switch {
		case e.IsCompiled:
			return e.NativeCode, signatureFromEntry(e), nil
		case e.IsBeingCompiled:
			target, ok := r.driver.registry.GetRecursiveCallTarget(callee)
			if !ok {
				return nil, iljit.Signature{}, fmt.Errorf("%w: recursive target missing for %+v", ErrRuntimeFault, callee)
			}
			return target, signatureFromEntry(e), nil
		}
	}

	// Not yet seen: recurse through the driver, which reserves, compiles,
	// and registers it (spec.md §4.5 "mutual recursion / callee seen
	// before caller").
	codePtr, _, err := r.driver.compileMethod(callee.AssemblyID, callee.Token, callee.TypeArgHash)
	if err != nil {
		return nil, iljit.Signature{}, err
	}
	e, ok := r.driver.registry.Lookup(callee)
	if !ok {
		return nil, iljit.Signature{}, fmt.Errorf("%w: %+v compiled but not registered", ErrRuntimeFault, callee)
	}
	return codePtr, signatureFromEntry(e), nil
}

func (r *callResolver) ResolveConstructor(callee abi.MethodID) (*byte, uintptr, iljit.Signature, error) {
	target, sig, err := r.ResolveCall(callee)
	if err != nil {
		return nil, 0, iljit.Signature{}, err
	}
	e, ok := r.driver.registry.Lookup(callee)
	if !ok {
		return nil, 0, iljit.Signature{}, fmt.Errorf("%w: constructor %+v not registered after compile", ErrRuntimeFault, callee)
	}
	return target, e.DeclaringMethodTable, sig, nil
}

func (r *callResolver) AllocateObject() (*byte, error) {
	addr, ok := r.driver.kernel.Lookup([]byte(runtimeAllocatorExport))
	if !ok {
		return nil, fmt.Errorf("%w: %s not exported by kernel", ErrMetadataFault, runtimeAllocatorExport)
	}
	return addr, nil
}
