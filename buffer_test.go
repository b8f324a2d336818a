// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferBasicOperations(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator(), WithChunkSize(1024))
	defer arena.Deinit()
	buf := NewBuffer(arena)

	// Initial state
	require.Equal(t, 0, buf.Len())
	require.Equal(t, 0, buf.Cap())
	require.Equal(t, "", buf.String())
	require.Equal(t, []byte{}, buf.Bytes())

	// Write
	n, err := buf.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 5, buf.Len())
	require.Equal(t, "hello", buf.String())
	require.Equal(t, []byte("hello"), buf.Bytes())

	// WriteByte
	err = buf.WriteByte(' ')
	require.NoError(t, err)
	require.Equal(t, 6, buf.Len())
	require.Equal(t, "hello ", buf.String())

	// WriteString
	n, err = buf.WriteString("world")
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 11, buf.Len())
	require.Equal(t, "hello world", buf.String())
}

func TestBufferReadOperations(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator(), WithChunkSize(1024))
	defer arena.Deinit()
	buf := NewBuffer(arena)

	_, err := buf.Write([]byte("hello world"))
	require.NoError(t, err)

	p := make([]byte, 5)
	n, err := buf.Read(p)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), p)
	require.Equal(t, 6, buf.Len())
	require.Equal(t, " world", buf.String())

	c, err := buf.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(' '), c)
	require.Equal(t, 5, buf.Len())
	require.Equal(t, "world", buf.String())

	p = make([]byte, 10)
	n, err = buf.Read(p)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("world"), p[:n])
	require.Equal(t, 0, buf.Len())

	n, err = buf.Read(p)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 0, n)
}

func TestBufferNext(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator(), WithChunkSize(1024))
	defer arena.Deinit()
	buf := NewBuffer(arena)

	_, err := buf.Write([]byte("hello world"))
	require.NoError(t, err)

	require.Equal(t, []byte("hello"), buf.Next(5))
	require.Equal(t, 6, buf.Len())

	// Asking for more than remains returns what is there.
	require.Equal(t, []byte(" world"), buf.Next(100))
	require.Equal(t, 0, buf.Len())

	require.Equal(t, []byte{}, buf.Next(5))
	require.Equal(t, []byte{}, buf.Next(0))
	require.Equal(t, []byte{}, buf.Next(-1))
}

func TestBufferTruncateAndReset(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator(), WithChunkSize(1024))
	defer arena.Deinit()
	buf := NewBuffer(arena)

	_, err := buf.Write([]byte("hello world"))
	require.NoError(t, err)

	buf.Truncate(5)
	require.Equal(t, "hello", buf.String())

	require.Panics(t, func() { buf.Truncate(-1) })
	require.Panics(t, func() { buf.Truncate(100) })

	buf.Reset()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, "", buf.String())

	// The backing store survives Reset for reuse.
	_, err = buf.Write([]byte("again"))
	require.NoError(t, err)
	require.Equal(t, "again", buf.String())
}

func TestBufferWriteTo(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator(), WithChunkSize(1024))
	defer arena.Deinit()
	buf := NewBuffer(arena)

	_, err := buf.Write([]byte("hello world"))
	require.NoError(t, err)

	var sink bytes.Buffer
	n, err := buf.WriteTo(&sink)
	require.NoError(t, err)
	require.Equal(t, int64(11), n)
	require.Equal(t, "hello world", sink.String())
	require.Equal(t, 0, buf.Len())

	// Draining an empty buffer writes nothing.
	n, err = buf.WriteTo(&sink)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBufferReadFrom(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator())
	defer arena.Deinit()
	buf := NewBuffer(arena)

	payload := strings.Repeat("abcdefgh", 2048) // larger than the read buffer
	n, err := buf.ReadFrom(strings.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, buf.String())
}

func TestBufferGrowthAcrossChunks(t *testing.T) {
	arena := NewArenaAllocator(NewSystemAllocator(), WithChunkSize(64))
	defer arena.Deinit()
	buf := NewBuffer(arena)

	var expected bytes.Buffer
	for i := 0; i < 100; i++ {
		chunk := []byte{byte(i), byte(i + 1), byte(i + 2)}
		_, err := buf.Write(chunk)
		require.NoError(t, err)
		expected.Write(chunk)
	}
	require.Equal(t, expected.Bytes(), buf.Bytes())
}

func TestBufferOutOfMemorySurfaces(t *testing.T) {
	buf := NewBuffer(NewFixedBufferAllocator(make([]byte, 32)))

	// Repeated growth doublings exhaust a tiny fixed buffer quickly.
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		_, err = buf.Write([]byte("0123456789"))
	}
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func TestBufferReleaseReturnsMemory(t *testing.T) {
	det := NewLeakDetector(NewSystemAllocator())
	buf := NewBuffer(det)

	_, err := buf.Write([]byte("hello world"))
	require.NoError(t, err)
	_, err = buf.ReadFrom(strings.NewReader("more data"))
	require.NoError(t, err)

	buf.Release()
	require.Empty(t, det.Report())

	// Reusable after Release.
	_, err = buf.Write([]byte("fresh"))
	require.NoError(t, err)
	require.Equal(t, "fresh", buf.String())
}
