// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"unsafe"
)

// DefaultChunkSize is the chunk size an ArenaAllocator requests from its
// parent when no option overrides it.
const DefaultChunkSize = 4096

// ArenaAllocator is a chunked bump allocator. Chunks are obtained from a
// parent Allocator on demand; individual Deallocate calls are no-ops and all
// memory is returned to the parent at once by Deinit (or trimmed by Reset).
// That intentional relaxation of the one-free-per-allocate rule is the whole
// point of the type.
//
// Not safe for concurrent use. Callers sharing an arena across goroutines
// must serialize access themselves, e.g. via NewConcurrentAllocator.
type ArenaAllocator struct {
	parent    Allocator
	chunks    []arenaChunk
	chunkSize uintptr
	peak      uintptr
	released  bool
}

// arenaChunk is a parent-owned block plus the bump cursor into it.
type arenaChunk struct {
	block  Block
	offset uintptr
}

// alloc carves a zeroed sub-block out of the chunk, or reports false if the
// remaining space cannot fit size bytes at the requested alignment.
func (c *arenaChunk) alloc(size, align uintptr) (Block, bool) {
	base := c.block.addr()
	aligned := alignUp(base+c.offset, align) - base
	if aligned+size > c.block.size {
		return Block{}, false
	}
	ptr := unsafe.Add(c.block.ptr, aligned)
	c.offset = aligned + size

	clear(unsafe.Slice((*byte)(ptr), size))

	return Block{ptr: ptr, size: size, align: align}, true
}

// ArenaOption configures an ArenaAllocator.
type ArenaOption func(*ArenaAllocator)

// WithChunkSize sets the minimum size of chunks requested from the parent.
func WithChunkSize(size int) ArenaOption {
	return func(a *ArenaAllocator) {
		if size > 0 {
			a.chunkSize = uintptr(size)
		}
	}
}

// NewArenaAllocator creates an arena that obtains its chunks from parent.
// No chunk is requested until the first allocation.
func NewArenaAllocator(parent Allocator, opts ...ArenaOption) *ArenaAllocator {
	a := &ArenaAllocator{
		parent:    parent,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate satisfies the Allocator interface. It first tries the existing
// chunks, then requests a fresh chunk from the parent sized to at least
// max(request, chunk size). Parent exhaustion bubbles up as ErrOutOfMemory.
func (a *ArenaAllocator) Allocate(size, align uintptr) (Block, error) {
	checkRequest(size, align)
	if a.released {
		return Block{}, ErrUseAfterDeinit
	}

	for i := range a.chunks {
		if b, ok := a.chunks[i].alloc(size, align); ok {
			a.notePeak()
			return b, nil
		}
	}

	// Request align-1 extra so the chunk fits the allocation at whatever
	// base address the parent hands back.
	chunkSize := size + align - 1
	if chunkSize < a.chunkSize {
		chunkSize = a.chunkSize
	}
	cb, err := a.parent.Allocate(chunkSize, align)
	if err != nil {
		return Block{}, err
	}
	a.chunks = append(a.chunks, arenaChunk{block: cb})

	b, ok := a.chunks[len(a.chunks)-1].alloc(size, align)
	if !ok {
		panic("alloc: fresh arena chunk cannot fit its own request")
	}
	a.notePeak()
	return b, nil
}

// Deallocate satisfies the Allocator interface. Arenas never free individual
// blocks; this is a documented no-op.
func (a *ArenaAllocator) Deallocate(Block) {}

// Resize satisfies the Allocator interface. Shrinking succeeds in place
// unconditionally. Growing succeeds only for the most recent allocation in
// its chunk, by bumping that chunk's cursor.
func (a *ArenaAllocator) Resize(b *Block, newSize uintptr) bool {
	if a.released || b.IsZero() || newSize == 0 {
		return false
	}
	if newSize <= b.size {
		b.size = newSize
		return true
	}
	for i := range a.chunks {
		c := &a.chunks[i]
		base := c.block.addr()
		if b.addr() < base || b.addr() >= base+c.block.size {
			continue
		}
		end := b.addr() - base + b.size
		if end != c.offset {
			return false // not the most recent allocation
		}
		newEnd := b.addr() - base + newSize
		if newEnd > c.block.size {
			return false
		}
		clear(unsafe.Slice((*byte)(unsafe.Add(b.ptr, b.size)), newSize-b.size))
		c.offset = newEnd
		b.size = newSize
		a.notePeak()
		return true
	}
	return false
}

// Reset returns every chunk except the first to the parent and rewinds the
// cursor, invalidating all previously issued blocks while keeping one chunk
// warm for reuse across cycles. On a fresh arena it is a no-op.
func (a *ArenaAllocator) Reset() error {
	if a.released {
		return ErrUseAfterDeinit
	}
	if len(a.chunks) == 0 {
		return nil
	}
	for _, c := range a.chunks[1:] {
		a.parent.Deallocate(c.block)
	}
	a.chunks = a.chunks[:1]
	a.chunks[0].offset = 0
	return nil
}

// Deinit returns every chunk to the parent and poisons the arena: any later
// Allocate or Reset reports ErrUseAfterDeinit. Deinit itself is idempotent.
func (a *ArenaAllocator) Deinit() {
	if a.released {
		return
	}
	for _, c := range a.chunks {
		a.parent.Deallocate(c.block)
	}
	a.chunks = nil
	a.released = true
}

func (a *ArenaAllocator) notePeak() {
	if n := a.len(); n > a.peak {
		a.peak = n
	}
}

func (a *ArenaAllocator) len() uintptr {
	var total uintptr
	for i := range a.chunks {
		total += a.chunks[i].offset
	}
	return total
}

// Len returns the number of bytes currently allocated, alignment padding
// included.
func (a *ArenaAllocator) Len() int { return int(a.len()) }

// Cap returns the total capacity of all chunks currently held.
func (a *ArenaAllocator) Cap() int {
	var total uintptr
	for i := range a.chunks {
		total += a.chunks[i].block.size
	}
	return int(total)
}

// Peak returns the high-water mark of Len across the arena's lifetime. It is
// not rewound by Reset, which makes it the input for sizing a replacement
// arena (see Pool).
func (a *ArenaAllocator) Peak() int { return int(a.peak) }

// NumChunks returns the number of chunks currently held from the parent.
func (a *ArenaAllocator) NumChunks() int { return len(a.chunks) }
