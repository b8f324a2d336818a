// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"sync"
)

type concurrentAllocator struct {
	mtx sync.Mutex
	a   Allocator
}

// NewConcurrentAllocator returns an allocator that serializes every call to
// the wrapped allocator, making it safe to share across goroutines. This is
// the documented way to use an ArenaAllocator or FixedBufferAllocator from
// more than one goroutine; the unwrapped types keep their hot paths lock-free.
func NewConcurrentAllocator(a Allocator) Allocator {
	return &concurrentAllocator{a: a}
}

// Allocate satisfies the Allocator interface.
func (c *concurrentAllocator) Allocate(size, align uintptr) (Block, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.a == nil {
		return Block{}, ErrOutOfMemory
	}
	return c.a.Allocate(size, align)
}

// Deallocate satisfies the Allocator interface.
func (c *concurrentAllocator) Deallocate(b Block) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.a == nil {
		return
	}
	c.a.Deallocate(b)
}

// Resize satisfies the Allocator interface.
func (c *concurrentAllocator) Resize(b *Block, newSize uintptr) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.a == nil {
		return false
	}
	return c.a.Resize(b, newSize)
}
