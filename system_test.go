// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSystemAllocatorBasic(t *testing.T) {
	a := NewSystemAllocator()

	b, err := a.Allocate(128, 16)
	require.NoError(t, err)
	require.Equal(t, uintptr(128), b.Size())
	require.Equal(t, 1, a.Outstanding())

	a.Deallocate(b)
	require.Equal(t, 0, a.Outstanding())
}

func TestSystemAllocatorMaxAllocSize(t *testing.T) {
	a := NewSystemAllocator(WithMaxAllocSize(1024))

	b, err := a.Allocate(1024, 8)
	require.NoError(t, err)
	a.Deallocate(b)

	_, err = a.Allocate(1025, 8)
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestSystemAllocatorDoubleFreeUnguarded(t *testing.T) {
	// The raw system allocator does not detect double free; the second call
	// is simply absorbed. Detection is LeakDetector's job.
	a := NewSystemAllocator()
	b, err := a.Allocate(64, 8)
	require.NoError(t, err)

	a.Deallocate(b)
	require.NotPanics(t, func() { a.Deallocate(b) })
	require.Equal(t, 0, a.Outstanding())
}

func TestSystemAllocatorResize(t *testing.T) {
	a := NewSystemAllocator()
	b, err := a.Allocate(100, 8)
	require.NoError(t, err)

	// Shrink always works in place.
	require.True(t, a.Resize(&b, 40))
	require.Equal(t, uintptr(40), b.Size())

	// Growing back within the original footprint works too.
	require.True(t, a.Resize(&b, 100))
	require.Equal(t, uintptr(100), b.Size())

	// Growing well past the backing store cannot happen in place.
	require.False(t, a.Resize(&b, 100000))
	require.Equal(t, uintptr(100), b.Size())

	a.Deallocate(b)
}

func TestSystemAllocatorResizeUnknownBlock(t *testing.T) {
	a := NewSystemAllocator()
	b, err := a.Allocate(64, 8)
	require.NoError(t, err)
	a.Deallocate(b)

	require.False(t, a.Resize(&b, 32))
}

func TestSystemAllocatorConcurrent(t *testing.T) {
	a := NewSystemAllocator()

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 500; i++ {
				b, err := a.Allocate(64, 8)
				if err != nil {
					return err
				}
				b.Bytes()[0] = 1
				a.Deallocate(b)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 0, a.Outstanding())
}

func TestConcurrentAllocatorSerializesArena(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator())
	defer arena.Deinit()
	shared := NewConcurrentAllocator(arena)

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				b, err := shared.Allocate(32, 8)
				if err != nil {
					return err
				}
				mem := b.Bytes()
				for j := range mem {
					mem[j] = 0xAB
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.GreaterOrEqual(t, arena.Len(), 8*200*32)
}

func TestConcurrentAllocatorNilInner(t *testing.T) {
	shared := NewConcurrentAllocator(nil)
	_, err := shared.Allocate(16, 8)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.False(t, shared.Resize(&Block{}, 8))
	require.NotPanics(t, func() { shared.Deallocate(Block{}) })
}
