//go:build !unix

package codeheap

import "fmt"

// freestandingProtector is the seam a bare-metal ProtonOS build fills
// with its own physical/virtual memory manager: there is no hosted
// kernel underneath this JIT (spec.md §1) to hand out mmap'd pages, so
// the real Reserve/MakeExecutable/Release must come from this kernel's
// own page-table code. This stub exists so the module still builds on a
// non-unix GOOS during development; it is not meant to be the Protector
// a production ProtonOS kernel links in.
type freestandingProtector struct{}

func defaultProtector() Protector { return freestandingProtector{} }

func (freestandingProtector) Reserve(size int) ([]byte, error) {
	return nil, fmt.Errorf("codeheap: no Protector wired for this platform; pass one to codeheap.New")
}

func (freestandingProtector) MakeExecutable(region []byte) error {
	return fmt.Errorf("codeheap: no Protector wired for this platform; pass one to codeheap.New")
}

func (freestandingProtector) Release(region []byte) error {
	return nil
}
