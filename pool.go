// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"runtime"
	"sync"
	"weak"
)

// Pool is a thread-safe pool of arena allocators sharing one parent, for the
// one-arena-per-request pattern: Acquire at the start of a unit of work,
// allocate freely, Release at the end for O(1) cleanup.
//
// Pooled arenas are held through weak pointers, so the GC can reclaim idle
// items under memory pressure; a cleanup registered per item returns the
// reclaimed arena's chunks to the parent. The pool size therefore adapts to
// memory pressure instead of being tuned by hand.
type Pool struct {
	parent Allocator

	mu    sync.Mutex
	pool  []weak.Pointer[PoolItem]
	sizes map[uint64]*poolItemSize
}

// poolItemSize tracks required memory across recent arenas for one key.
type poolItemSize struct {
	count      int
	totalBytes int
}

// PoolItem wraps a pooled arena together with the key it was acquired under.
type PoolItem struct {
	Arena *ArenaAllocator
	Key   uint64
}

// defaultPoolChunkSize backs arenas for keys with no recorded history.
const defaultPoolChunkSize = 64 * 1024

// NewPool creates a Pool whose arenas obtain chunks from parent.
func NewPool(parent Allocator) *Pool {
	return &Pool{
		parent: parent,
		sizes:  make(map[uint64]*poolItemSize),
	}
}

// Acquire gets an arena from the pool or creates a new one if none are
// available. The key identifies the use case, so the pool can size fresh
// arenas from that use case's observed peak demand.
func (p *Pool) Acquire(key uint64) *PoolItem {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pool) > 0 {
		lastIdx := len(p.pool) - 1
		wp := p.pool[lastIdx]
		p.pool = p.pool[:lastIdx]

		if v := wp.Value(); v != nil {
			v.Key = key
			return v
		}
		// weak pointer was reclaimed, try the next one
	}

	item := &PoolItem{
		Arena: NewArenaAllocator(p.parent, WithChunkSize(p.arenaChunkSize(key))),
		Key:   key,
	}
	// Once the GC reclaims an idle pooled item, hand its chunks back to the
	// parent. The cleanup keeps the arena itself alive until it runs.
	runtime.AddCleanup(item, func(a *ArenaAllocator) { a.Deinit() }, item.Arena)
	return item
}

// Release resets the item's arena and returns it to the pool. The arena's
// peak usage is recorded to size future arenas for the same key.
func (p *Pool) Release(item *PoolItem) {
	peak := item.Arena.Peak()
	if item.Arena.Reset() != nil {
		return // deinitialized arenas do not go back in the pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.release(item, peak)
}

// ReleaseMany returns a batch of items under a single lock acquisition.
func (p *Pool) ReleaseMany(items []*PoolItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, item := range items {
		peak := item.Arena.Peak()
		if item.Arena.Reset() != nil {
			continue
		}
		p.release(item, peak)
	}
}

func (p *Pool) release(item *PoolItem, peak int) {
	if size, ok := p.sizes[item.Key]; ok {
		// Keep a rolling window of the last 50 releases per key.
		if size.count == 50 {
			size.count = 1
			size.totalBytes = size.totalBytes / 50
		}
		size.count++
		size.totalBytes += peak
	} else {
		p.sizes[item.Key] = &poolItemSize{
			count:      1,
			totalBytes: peak,
		}
	}

	item.Key = 0
	p.pool = append(p.pool, weak.Make(item))
}

// arenaChunkSize returns the chunk size to use for a fresh arena under key:
// the average observed peak, or a default with no history.
func (p *Pool) arenaChunkSize(key uint64) int {
	if size, ok := p.sizes[key]; ok && size.count > 0 && size.totalBytes > 0 {
		return size.totalBytes / size.count
	}
	return defaultPoolChunkSize
}
