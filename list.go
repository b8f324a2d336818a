// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"unsafe"
)

// List is a dynamic array whose storage comes from an injected Allocator.
// It is the kind of container this package exists to serve: it never touches
// a global allocator and never knows which strategy backs it.
//
// Growth first asks the allocator to resize the backing block in place; only
// when that fails does it allocate a new block, copy, and free the old one.
// Under a bump allocator the in-place path keeps repeated appends to the
// newest list allocation from abandoning memory.
type List[T any] struct {
	alloc Allocator
	block Block
	items []T
}

// NewList creates an empty list drawing storage from a.
func NewList[T any](a Allocator) *List[T] {
	return &List[T]{alloc: a}
}

// Append adds v to the end of the list, growing the backing block as needed.
// The only possible error is ErrOutOfMemory (or ErrUseAfterDeinit from a
// torn-down arena).
func (l *List[T]) Append(v T) error {
	if len(l.items) == cap(l.items) {
		if err := l.grow(); err != nil {
			return err
		}
	}
	l.items = append(l.items, v)
	return nil
}

func (l *List[T]) grow() error {
	var zero T
	elemSize := unsafe.Sizeof(zero)

	newCap := cap(l.items)
	if newCap == 0 {
		newCap = 8
	} else if newCap < growThreshold {
		newCap *= 2
	} else {
		newCap += newCap / 4
	}

	// Zero-sized element types need no allocator memory, only capacity.
	if elemSize == 0 {
		grown := make([]T, len(l.items), newCap)
		copy(grown, l.items)
		l.items = grown
		return nil
	}

	if !l.block.IsZero() && l.alloc.Resize(&l.block, elemSize*uintptr(newCap)) {
		l.items = unsafe.Slice((*T)(l.block.ptr), newCap)[:len(l.items)]
		return nil
	}

	b, err := l.alloc.Allocate(elemSize*uintptr(newCap), unsafe.Alignof(zero))
	if err != nil {
		return err
	}
	fresh := unsafe.Slice((*T)(b.ptr), newCap)[:len(l.items)]
	copy(fresh, l.items)
	if !l.block.IsZero() {
		l.alloc.Deallocate(l.block)
	}
	l.block = b
	l.items = fresh
	return nil
}

// At returns the element at index i. Bounds are checked by the runtime.
func (l *List[T]) At(i int) T { return l.items[i] }

// Set replaces the element at index i.
func (l *List[T]) Set(i int, v T) { l.items[i] = v }

// Len returns the number of elements in the list.
func (l *List[T]) Len() int { return len(l.items) }

// Items returns the live elements. The slice is valid only until the next
// Append or Deinit.
func (l *List[T]) Items() []T { return l.items }

// Deinit returns the backing block to the allocator. The list is empty and
// reusable afterwards.
func (l *List[T]) Deinit() {
	if !l.block.IsZero() {
		l.alloc.Deallocate(l.block)
		l.block = Block{}
	}
	l.items = nil
}
