// SPDX-License-Identifier: Apache-2.0

package alloc

import (
	"io"
)

// Buffer is a bytes.Buffer-like struct whose storage comes from an injected
// Allocator. It implements io.Writer, io.ReaderFrom and io.WriterTo and
// provides similar methods to bytes.Buffer. Allocation failures surface as
// ErrOutOfMemory from the write-side methods instead of panicking.
type Buffer struct {
	alloc   Allocator
	buf     []byte
	off     int    // read offset
	readBuf []byte // intermediate buffer for ReadFrom
}

// NewBuffer creates a Buffer drawing its storage from a.
func NewBuffer(a Allocator) *Buffer {
	return &Buffer{alloc: a}
}

// Write implements io.Writer. It appends len(p) bytes from p to the buffer.
func (b *Buffer) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	buf, err := SliceAppend(b.alloc, b.buf[:b.off], p...)
	if err != nil {
		return 0, err
	}
	b.buf = buf
	b.off = len(b.buf)

	return len(p), nil
}

// WriteByte writes a single byte to the buffer.
func (b *Buffer) WriteByte(c byte) error {
	buf, err := SliceAppend(b.alloc, b.buf[:b.off], c)
	if err != nil {
		return err
	}
	b.buf = buf
	b.off = len(b.buf)
	return nil
}

// WriteString writes a string to the buffer.
func (b *Buffer) WriteString(s string) (n int, err error) {
	if len(s) == 0 {
		return 0, nil
	}
	return b.Write([]byte(s))
}

// WriteTo implements io.WriterTo.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	if b.off == 0 {
		return 0, nil
	}

	m, err := w.Write(b.buf[:b.off])
	if m > 0 {
		n += int64(m)
		// Remove written bytes by shifting remaining data
		copy(b.buf, b.buf[m:b.off])
		b.off -= m
	}

	return n, err
}

// Read reads up to len(p) bytes from the buffer into p.
func (b *Buffer) Read(p []byte) (n int, err error) {
	if b.off == 0 {
		return 0, io.EOF
	}

	n = copy(p, b.buf[:b.off])
	if n < len(p) {
		err = io.EOF
	}

	// Remove read bytes by shifting remaining data
	copy(b.buf, b.buf[n:b.off])
	b.off -= n

	return n, err
}

// ReadByte reads and returns the next byte from the buffer.
func (b *Buffer) ReadByte() (byte, error) {
	if b.off == 0 {
		return 0, io.EOF
	}

	c := b.buf[0]
	copy(b.buf, b.buf[1:b.off])
	b.off--

	return c, nil
}

// Bytes returns a slice of length b.Len() holding the unread portion of the
// buffer. The slice is valid for use only until the next buffer modification.
func (b *Buffer) Bytes() []byte {
	if b.off == 0 {
		return []byte{}
	}
	return b.buf[:b.off]
}

// String returns the contents of the unread portion of the buffer.
func (b *Buffer) String() string {
	return string(b.buf[:b.off])
}

// Len returns the number of bytes of the unread portion of the buffer.
func (b *Buffer) Len() int {
	return b.off
}

// Cap returns the capacity of the buffer's underlying byte slice.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Reset resets the buffer to be empty, keeping the backing store.
func (b *Buffer) Reset() {
	b.off = 0
	if b.buf != nil {
		b.buf = b.buf[:0]
	}
}

// Release returns the buffer's backing store to its allocator. The Buffer is
// reusable afterwards and will allocate fresh storage on the next write.
func (b *Buffer) Release() {
	if b.buf != nil {
		FreeSlice(b.alloc, b.buf)
		b.buf = nil
	}
	if b.readBuf != nil {
		FreeSlice(b.alloc, b.readBuf)
		b.readBuf = nil
	}
	b.off = 0
}

// Truncate discards all but the first n unread bytes from the buffer.
// It panics if n is negative or greater than the length of the buffer.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > b.off {
		panic("alloc: buffer truncation out of range")
	}
	b.off = n
}

// Next returns a copy of the next n bytes from the buffer, advancing it as
// if the bytes had been returned by Read.
func (b *Buffer) Next(n int) []byte {
	if n <= 0 {
		return []byte{}
	}

	if n > b.off {
		n = b.off
	}

	if n == 0 {
		return []byte{}
	}

	result := make([]byte, n)
	copy(result, b.buf[:n])
	copy(b.buf, b.buf[n:b.off])
	b.off -= n

	return result
}

// ReadFrom implements io.ReaderFrom. It reads from r until EOF or error,
// appending to the buffer. The intermediate read buffer comes from the
// allocator too.
func (b *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	if b.readBuf == nil {
		const readBufferSize = 4 * 1024
		b.readBuf, err = MakeSlice[byte](b.alloc, readBufferSize, readBufferSize)
		if err != nil {
			return 0, err
		}
	}

	for {
		nr, er := r.Read(b.readBuf)
		if nr > 0 {
			_, ew := b.Write(b.readBuf[:nr])
			if ew != nil {
				return n, ew
			}
			n += int64(nr)
		}
		if er != nil {
			if er == io.EOF {
				break
			}
			return n, er
		}
	}
	return n, nil
}
