package iljit

import "errors"

// Error classes surfaced to the Tier-0 driver, matching spec.md §7's
// taxonomy for the portion of it the compiler itself can raise.
var (
	// ErrInputFault covers malformed IL: truncated operands, stack
	// underflow, an unresolvable branch target.
	ErrInputFault = errors.New("iljit: input fault")

	// ErrResourceExhaustion is raised when the code buffer overflows
	// mid-compilation (spec.md §4.1, §7).
	ErrResourceExhaustion = errors.New("iljit: code buffer overflow")

	// ErrUnsupportedEH marks a method with EH clauses, which this core's
	// non-EH path deliberately does not compile (spec.md §4.7 step 7,
	// §9 "Exception control flow").
	ErrUnsupportedEH = errors.New("iljit: method requires funclet-based EH, unsupported by this core")
)
