//go:build unix

package codeheap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// unixProtector backs the W^X heap with mmap/mprotect, for running and
// testing this core hosted under a POSIX kernel rather than bare metal.
// It is the analogue of the teacher's per-OS backend split
// (tinyrange-rtg/std/compiler/backend_linux_x64.go vs
// backend_windows_x64.go): one small file selected by build tag per
// platform, sharing the arch-neutral Heap above it.
type unixProtector struct{}

func defaultProtector() Protector { return unixProtector{} }

func (unixProtector) Reserve(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, nil
}

func (unixProtector) MakeExecutable(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect(PROT_READ|PROT_EXEC): %w", err)
	}
	return nil
}

func (unixProtector) Release(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	if err := unix.Munmap(region); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
