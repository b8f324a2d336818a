// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"unsafe"
)

// FixedBufferAllocator bump-allocates out of a caller-supplied buffer and
// never grows: once the buffer is exhausted every Allocate fails with
// ErrOutOfMemory until Reset. The caller retains ownership of the backing
// storage and must keep it alive for as long as issued blocks are in use.
//
// Deallocate follows stack discipline: freeing the most recently allocated
// block rewinds the cursor to that block's start; freeing anything else is
// accepted and silently does nothing.
//
// Not safe for concurrent use.
type FixedBufferAllocator struct {
	buf    []byte
	cursor uintptr
	peak   uintptr
}

// NewFixedBufferAllocator creates an allocator over buf.
func NewFixedBufferAllocator(buf []byte) *FixedBufferAllocator {
	return &FixedBufferAllocator{buf: buf}
}

func (a *FixedBufferAllocator) base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(a.buf)))
}

// Allocate satisfies the Allocator interface.
func (a *FixedBufferAllocator) Allocate(size, align uintptr) (Block, error) {
	checkRequest(size, align)

	base := a.base()
	aligned := alignUp(base+a.cursor, align) - base
	if aligned+size > uintptr(len(a.buf)) {
		return Block{}, ErrOutOfMemory
	}
	ptr := unsafe.Pointer(&a.buf[aligned])
	a.cursor = aligned + size
	if a.cursor > a.peak {
		a.peak = a.cursor
	}

	clear(a.buf[aligned : aligned+size])

	return Block{ptr: ptr, size: size, align: align}, nil
}

// isLast reports whether b is the most recent outstanding allocation, i.e.
// whether its end coincides with the cursor.
func (a *FixedBufferAllocator) isLast(b Block) bool {
	return b.addr()-a.base()+b.size == a.cursor
}

// Deallocate satisfies the Allocator interface. Only the most recent
// allocation is reclaimed; the cursor rewinds to its start, which also gives
// back the padding inserted for its alignment.
func (a *FixedBufferAllocator) Deallocate(b Block) {
	if b.IsZero() {
		return
	}
	if a.isLast(b) {
		a.cursor = b.addr() - a.base()
	}
}

// Resize satisfies the Allocator interface. The most recent allocation can
// grow or shrink in place by moving the cursor; older allocations can only
// shrink (nothing is reclaimed, the block just narrows).
func (a *FixedBufferAllocator) Resize(b *Block, newSize uintptr) bool {
	if b.IsZero() || newSize == 0 {
		return false
	}
	if !a.isLast(*b) {
		if newSize <= b.size {
			b.size = newSize
			return true
		}
		return false
	}
	start := b.addr() - a.base()
	if start+newSize > uintptr(len(a.buf)) {
		return false
	}
	if newSize > b.size {
		clear(a.buf[start+b.size : start+newSize])
	}
	a.cursor = start + newSize
	if a.cursor > a.peak {
		a.peak = a.cursor
	}
	b.size = newSize
	return true
}

// Reset rewinds the cursor to zero, invalidating every block issued so far.
// Enforcing that invalidation is the caller's responsibility.
func (a *FixedBufferAllocator) Reset() {
	a.cursor = 0
}

// Len returns the number of buffer bytes currently in use, padding included.
func (a *FixedBufferAllocator) Len() int { return int(a.cursor) }

// Cap returns the size of the backing buffer.
func (a *FixedBufferAllocator) Cap() int { return len(a.buf) }

// Peak returns the high-water mark of Len. It survives Reset.
func (a *FixedBufferAllocator) Peak() int { return int(a.peak) }
