// Package log provides the process-wide structured logger for the Tier-0
// JIT. The kernel has no hosted console beyond the debug port (spec.md §6);
// this wraps a zap.Logger so call sites never have to nil-check it.
package log

import "go.uber.org/zap"

var logger = zap.NewNop()

// Init installs the process-wide logger. Call once at runtime startup,
// mirroring the registry/code-heap "initialize once, never lazily
// null-check" discipline (spec.md §9).
func Init(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// L returns the current process-wide logger.
func L() *zap.Logger {
	return logger
}
