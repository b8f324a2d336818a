// SPDX-License-Identifier: Apache-2.0

// Package alloc provides an explicit allocator abstraction: a small family of
// allocation strategies (system, arena, fixed-buffer) behind a single
// Allocator interface, plus a leak-detecting decorator.
//
// There is no package-level default allocator. Every consumer takes an
// Allocator as an explicit parameter, so the strategy behind a piece of code
// is always visible at its construction site.
package alloc

import (
	"errors"
	"unsafe"
)

// ErrOutOfMemory is returned by Allocate when a request cannot be satisfied.
// It is the only recoverable allocation failure.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// ErrUseAfterDeinit is returned when an operation is attempted on an arena
// that has already been torn down with Deinit.
var ErrUseAfterDeinit = errors.New("alloc: use after deinit")

// Block is a handle to a contiguous region of allocated memory.
//
// A Block is valid from the moment Allocate returns it until it is passed to
// Deallocate, or until a bulk Reset/Deinit on its owning allocator. Using the
// memory after that point is undefined behavior and is not guarded against.
type Block struct {
	ptr   unsafe.Pointer
	size  uintptr
	align uintptr
}

// Bytes returns the block's memory as a byte slice of length Size.
func (b Block) Bytes() []byte {
	if b.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.ptr), b.size)
}

// Size returns the block's length in bytes.
func (b Block) Size() uintptr { return b.size }

// Align returns the alignment the block was allocated with.
func (b Block) Align() uintptr { return b.align }

// IsZero reports whether b is the zero Block (no memory attached).
func (b Block) IsZero() bool { return b.ptr == nil }

// addr returns the block's base address. Identity of a live block.
func (b Block) addr() uintptr { return uintptr(b.ptr) }

// Allocator is the capability every memory consumer in this package depends
// on. Implementations differ only in strategy, never in contract.
type Allocator interface {
	// Allocate returns a zeroed Block of at least size bytes whose address
	// is a multiple of align. size must be greater than zero and align must
	// be a power of two; violating either is a programmer error and panics.
	// The only error returned is ErrOutOfMemory (plus ErrUseAfterDeinit for
	// torn-down arenas).
	Allocate(size, align uintptr) (Block, error)

	// Deallocate returns a block to the allocator. Calling it twice on the
	// same Block is a double free: concrete allocators do not guard against
	// it. Arena and fixed-buffer allocators may legitimately treat this as
	// a no-op; that relaxation is part of their documented type contract.
	Deallocate(b Block)

	// Resize attempts to grow or shrink b in place without moving it. On
	// success it updates b's size and returns true. On false the block is
	// untouched and the caller must allocate+copy+deallocate instead.
	Resize(b *Block, newSize uintptr) bool
}

// checkRequest panics on requests the Allocator contract rules out.
func checkRequest(size, align uintptr) {
	if size == 0 {
		panic("alloc: zero-size allocation")
	}
	if align == 0 || align&(align-1) != 0 {
		panic("alloc: alignment must be a power of two")
	}
}

// alignUp rounds off up to the next multiple of align (a power of two).
func alignUp(off, align uintptr) uintptr {
	return (off + align - 1) &^ (align - 1)
}

// Create allocates a zeroed T from a. For zero-sized types no allocator
// memory is consumed.
func Create[T any](a Allocator) (*T, error) {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		return new(T), nil
	}
	b, err := a.Allocate(size, unsafe.Alignof(zero))
	if err != nil {
		return nil, err
	}
	return (*T)(b.ptr), nil
}

// Destroy returns a pointer obtained from Create to its allocator.
func Destroy[T any](a Allocator, p *T) {
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 || p == nil {
		return
	}
	a.Deallocate(Block{ptr: unsafe.Pointer(p), size: size, align: unsafe.Alignof(zero)})
}

// MakeSlice allocates a zeroed []T of the given length and capacity from a.
// The slice must be released with FreeSlice (or a bulk reset of its
// allocator); its capacity must not be extended by append.
func MakeSlice[T any](a Allocator, length, capacity int) ([]T, error) {
	if capacity <= 0 {
		return nil, nil
	}
	var zero T
	if unsafe.Sizeof(zero) == 0 {
		return make([]T, length, capacity), nil
	}
	b, err := a.Allocate(unsafe.Sizeof(zero)*uintptr(capacity), unsafe.Alignof(zero))
	if err != nil {
		return nil, err
	}
	s := unsafe.Slice((*T)(b.ptr), capacity)
	return s[:length], nil
}

// FreeSlice returns a slice obtained from MakeSlice to its allocator. The
// block is reconstructed from the slice's base pointer and capacity, so the
// full original slice (not a re-slice with a shifted base) must be passed.
func FreeSlice[T any](a Allocator, s []T) {
	if cap(s) == 0 {
		return
	}
	var zero T
	if unsafe.Sizeof(zero) == 0 {
		return
	}
	a.Deallocate(Block{
		ptr:   unsafe.Pointer(unsafe.SliceData(s[:cap(s)])),
		size:  unsafe.Sizeof(zero) * uintptr(cap(s)),
		align: unsafe.Alignof(zero),
	})
}
