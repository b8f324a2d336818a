// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"sync"
	"unsafe"
)

// SystemAllocator allocates from the Go heap. Every outstanding block is
// pinned in an internal map so the runtime keeps it alive until Deallocate;
// deallocating simply unpins, handing the memory back to the runtime.
//
// SystemAllocator is safe for concurrent use; it is the intended parent for
// arenas shared across request handlers. Double free is not guarded: the
// second Deallocate of a block is indistinguishable from freeing a foreign
// block and silently does nothing. Wrap with LeakDetector to catch it.
type SystemAllocator struct {
	mu      sync.Mutex
	pinned  map[uintptr]pin
	maxSize uintptr // 0 means unlimited
}

// pin keeps a block's backing array reachable and remembers where the
// aligned block starts inside it.
type pin struct {
	backing []byte
	shift   uintptr
}

// SystemAllocatorOption configures a SystemAllocator.
type SystemAllocatorOption func(*SystemAllocator)

// WithMaxAllocSize caps single requests at size bytes. Larger requests fail
// fast with ErrOutOfMemory instead of thrashing the runtime.
func WithMaxAllocSize(size int) SystemAllocatorOption {
	return func(a *SystemAllocator) {
		a.maxSize = uintptr(size)
	}
}

// NewSystemAllocator creates a SystemAllocator.
func NewSystemAllocator(opts ...SystemAllocatorOption) *SystemAllocator {
	a := &SystemAllocator{
		pinned: make(map[uintptr]pin),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate satisfies the Allocator interface. Alignment is reached by
// over-allocating align-1 bytes and rounding the base address up.
func (a *SystemAllocator) Allocate(size, align uintptr) (Block, error) {
	checkRequest(size, align)
	if a.maxSize != 0 && size > a.maxSize {
		return Block{}, ErrOutOfMemory
	}

	backing := make([]byte, size+align-1)
	base := unsafe.Pointer(unsafe.SliceData(backing))
	shift := alignUp(uintptr(base), align) - uintptr(base)
	ptr := unsafe.Add(base, shift)

	a.mu.Lock()
	a.pinned[uintptr(ptr)] = pin{backing: backing, shift: shift}
	a.mu.Unlock()

	return Block{ptr: ptr, size: size, align: align}, nil
}

// Deallocate satisfies the Allocator interface. Unpinning makes the block's
// memory collectable; the address must not be used afterwards.
func (a *SystemAllocator) Deallocate(b Block) {
	if b.IsZero() {
		return
	}
	a.mu.Lock()
	delete(a.pinned, b.addr())
	a.mu.Unlock()
}

// Resize satisfies the Allocator interface. Shrinking always succeeds in
// place; growing succeeds only within the slack left by alignment padding.
func (a *SystemAllocator) Resize(b *Block, newSize uintptr) bool {
	if b.IsZero() || newSize == 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pinned[b.addr()]
	if !ok {
		return false
	}
	if newSize <= b.size || p.shift+newSize <= uintptr(len(p.backing)) {
		b.size = newSize
		return true
	}
	return false
}

// Outstanding returns the number of blocks currently allocated and not yet
// deallocated. Intended for tests and teardown assertions.
func (a *SystemAllocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pinned)
}
