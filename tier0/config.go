package tier0

import "github.com/ProtonOS/tier0/iljit"

// Config carries the handful of compile-time tunables this core needs
// (SPEC_FULL.md §10.3). spec.md §6 rules out a CLI, environment
// variables, and persisted state entirely, so these are never read from
// anything but the functional options a caller passes to NewDriver.
type Config struct {
	// InitialCodeBufferSize is how large a code-heap region CompileMethod
	// reserves before emission starts. A method whose body overflows it
	// fails with ResourceExhaustion rather than growing the buffer
	// (spec.md §4.1: "a failed compilation can be cancelled cleanly").
	InitialCodeBufferSize int

	// ConservativeInteriorPointers is threaded into every compilation's
	// iljit.Options (spec.md §4.6).
	ConservativeInteriorPointers bool
}

// DefaultConfig returns the tunables this core ships with: a one-page
// code buffer (matching codeheap.PageSize) and non-conservative GCInfo.
func DefaultConfig() Config {
	return Config{
		InitialCodeBufferSize:        4096,
		ConservativeInteriorPointers: false,
	}
}

// Option mutates a Config in place, the functional-options idiom this
// core uses instead of a flag or env parser (SPEC_FULL.md §10.3).
type Option func(*Config)

// WithInitialCodeBufferSize overrides the per-method code buffer
// reservation size.
func WithInitialCodeBufferSize(n int) Option {
	return func(c *Config) { c.InitialCodeBufferSize = n }
}

// WithConservativeInteriorPointers toggles interior-pointer
// conservatism in emitted GCInfo.
func WithConservativeInteriorPointers(v bool) Option {
	return func(c *Config) { c.ConservativeInteriorPointers = v }
}

func (c Config) compilerOptions() iljit.Options {
	return iljit.Options{ConservativeInteriorPointers: c.ConservativeInteriorPointers}
}
