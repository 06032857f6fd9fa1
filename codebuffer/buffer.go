// Package codebuffer implements the append-only byte writer that the
// code emitter targets (spec.md §4.1). A Buffer wraps a fixed executable
// region handed out by codeheap and tracks a sticky overflow flag instead
// of panicking on overrun, so a failed compilation can be cancelled
// cleanly (spec.md §7, ResourceExhaustion).
package codebuffer

import (
	"encoding/binary"
	"unsafe"
)

// Buffer is a bump-allocating writer over a fixed-capacity byte region.
// Writes past capacity set Overflowed and are dropped; callers must
// check Overflowed before trusting the final byte count.
type Buffer struct {
	base     []byte // the backing region; len(base) == capacity
	pos      int
	overflow bool
}

// New wraps region as a code buffer. region is owned by the caller
// (typically a codeheap.Heap reservation) for the buffer's lifetime.
func New(region []byte) *Buffer {
	return &Buffer{base: region}
}

// Position returns the current write offset.
func (b *Buffer) Position() int { return b.pos }

// Capacity returns the buffer's total byte capacity.
func (b *Buffer) Capacity() int { return len(b.base) }

// Remaining returns the number of bytes still writable.
func (b *Buffer) Remaining() int { return len(b.base) - b.pos }

// Overflowed reports whether any write has exceeded capacity. Once true
// it never clears; all further emissions are no-ops.
func (b *Buffer) Overflowed() bool { return b.overflow }

// Bytes returns the written prefix of the buffer (b.base[:b.pos]). It is
// only meaningful once the caller has checked Overflowed() == false.
func (b *Buffer) Bytes() []byte { return b.base[:b.pos] }

// FunctionPointer returns the base address of the buffer's backing
// region, i.e. the native entry point once compilation completes.
func (b *Buffer) FunctionPointer() *byte {
	if len(b.base) == 0 {
		return nil
	}
	return &b.base[0]
}

func (b *Buffer) ensure(n int) bool {
	if b.overflow {
		return false
	}
	if b.pos+n > len(b.base) {
		b.overflow = true
		return false
	}
	return true
}

// EmitU8 appends a single byte.
func (b *Buffer) EmitU8(v uint8) {
	if !b.ensure(1) {
		return
	}
	b.base[b.pos] = v
	b.pos++
}

// EmitU16 appends a little-endian 16-bit value.
func (b *Buffer) EmitU16(v uint16) {
	if !b.ensure(2) {
		return
	}
	binary.LittleEndian.PutUint16(b.base[b.pos:], v)
	b.pos += 2
}

// EmitU32 appends a little-endian 32-bit value.
func (b *Buffer) EmitU32(v uint32) {
	if !b.ensure(4) {
		return
	}
	binary.LittleEndian.PutUint32(b.base[b.pos:], v)
	b.pos += 4
}

// EmitU64 appends a little-endian 64-bit value.
func (b *Buffer) EmitU64(v uint64) {
	if !b.ensure(8) {
		return
	}
	binary.LittleEndian.PutUint64(b.base[b.pos:], v)
	b.pos += 8
}

// EmitI32 appends a little-endian signed 32-bit value.
func (b *Buffer) EmitI32(v int32) {
	b.EmitU32(uint32(v))
}

// EmitBytes appends raw bytes verbatim, e.g. a pre-assembled opcode
// sequence.
func (b *Buffer) EmitBytes(bs ...byte) {
	if !b.ensure(len(bs)) {
		return
	}
	copy(b.base[b.pos:], bs)
	b.pos += len(bs)
}

// ReserveU32 reserves 4 bytes for a later patch and returns their
// offset. Used for call/jump rel32 fields and other forward references.
func (b *Buffer) ReserveU32() int {
	off := b.pos
	b.EmitU32(0)
	return off
}

// PatchU32 overwrites the 4-byte field at offset with value. offset must
// have come from ReserveU32 (or otherwise be known to lie within the
// written prefix); patching past the high-water mark is a programmer
// error and is silently ignored to keep this path panic-free during
// compilation.
func (b *Buffer) PatchU32(offset int, value uint32) {
	if offset < 0 || offset+4 > b.pos {
		return
	}
	binary.LittleEndian.PutUint32(b.base[offset:], value)
}

// PatchRel32 computes and writes a call/jump-relative displacement:
// cur - (offset + 4), where cur is the buffer's current position
// (spec.md §4.1).
func (b *Buffer) PatchRel32(offset int) {
	b.PatchRel32To(offset, b.pos)
}

// PatchRel32To writes the relative displacement from the end of the
// 4-byte field at offset to target, a byte offset into the buffer:
// target - (offset + 4).
func (b *Buffer) PatchRel32To(offset, target int) {
	rel := int32(target - (offset + 4))
	b.PatchU32(offset, uint32(rel))
}

// PatchAbsoluteCall resolves a CallRel32/JumpRel32 fixup against a
// target outside this buffer (another method's already-compiled code,
// or a runtime helper), computing the rel32 displacement from the
// fixup field's own address rather than from buffer-relative offsets.
//
// This only works because the code heap never relocates a region once
// handed out (spec.md §9): by the time this buffer is being written
// into, its backing memory already sits at its final executable
// address, so the displacement can be computed and patched immediately
// instead of deferred until link time.
func (b *Buffer) PatchAbsoluteCall(offset int, target *byte) {
	if offset < 0 || offset+4 > len(b.base) {
		return
	}
	fieldAddr := uintptr(unsafe.Pointer(&b.base[offset]))
	targetAddr := uintptr(unsafe.Pointer(target))
	rel := int32(int64(targetAddr) - int64(fieldAddr+4))
	binary.LittleEndian.PutUint32(b.base[offset:], uint32(rel))
}
