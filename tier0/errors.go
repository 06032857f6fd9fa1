package tier0

import (
	"errors"
	"fmt"

	"github.com/ProtonOS/tier0/abi"
)

// Error classes follow spec.md §7's taxonomy. RecursionSignal is
// deliberately absent here: a Reserve-returned recursive call is a
// control-flow outcome the driver handles internally, never an error
// CompileMethod's caller observes (spec.md §7: "not a real error").
var (
	// ErrInputFault covers malformed IL a collaborator or the compiler
	// detected: truncated header, corrupt EH section, unknown element
	// type.
	ErrInputFault = errors.New("tier0: input fault")

	// ErrMetadataFault covers an unresolvable token or a missing RVA on
	// a method that is neither PInvoke nor abstract.
	ErrMetadataFault = errors.New("tier0: metadata fault")

	// ErrResourceExhaustion covers code-heap, code-buffer, or registry
	// allocation failure.
	ErrResourceExhaustion = errors.New("tier0: resource exhaustion")

	// ErrRuntimeFault covers an internal consistency violation this
	// core's own contracts should have prevented (spec.md §7: "a
	// programmer bug, not a runtime error") — e.g. a recursive call
	// target vanishing between Reserve and GetRecursiveCallTarget.
	ErrRuntimeFault = errors.New("tier0: runtime fault")
)

// CompileError wraps a propagated fault with the (assembly, token) pair
// that was being compiled when it occurred, so a caller retrying later
// can log with the same context (SPEC_FULL.md §10.2).
type CompileError struct {
	AssemblyID uint32
	Token      uint32
	Err        error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("tier0: compile %08x:%08x: %v", e.AssemblyID, e.Token, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func wrapCompileError(id abi.MethodID, err error) error {
	if err == nil {
		return nil
	}
	return &CompileError{AssemblyID: id.AssemblyID, Token: id.Token, Err: err}
}
