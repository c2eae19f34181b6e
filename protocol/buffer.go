package protocol

import (
	"io"
)

// MinRead is the least amount of free space Fill makes room for before reading.
const MinRead = 512

// Buffer accumulates bytes received from a stream. Bytes are appended at the
// back and consumed from the front by a Decoder.
//
// Decoded messages alias the buffer, so consumed bytes are never written to
// again: when the buffer runs out of room the unread tail is copied into a
// fresh array and the old one is left to the messages still pointing at it.
type Buffer struct {
	buf []byte
	off int
}

// NewBuffer returns an empty Buffer with room for size bytes.
func NewBuffer(size int) *Buffer {
	if size < MinRead {
		size = MinRead
	}

	return &Buffer{buf: make([]byte, 0, size)}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.buf) - b.off
}

// Bytes returns the unread bytes. The slice is only valid until the next
// call that modifies the buffer.
func (b *Buffer) Bytes() []byte {
	return b.buf[b.off:]
}

// Advance marks the next n unread bytes as consumed.
func (b *Buffer) Advance(n int) {
	if n < 0 || n > b.Len() {
		panic("protocol: Buffer.Advance out of range")
	}

	b.off += n
}

// Write appends p to the buffer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.grow(len(p))
	b.buf = append(b.buf, p...)

	return len(p), nil
}

// Fill performs a single Read from r into the free space at the back of the
// buffer and returns what that Read returned.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	b.grow(MinRead)

	n, err := r.Read(b.buf[len(b.buf):cap(b.buf)])
	if n > 0 {
		b.buf = b.buf[:len(b.buf)+n]
	}

	return n, err
}

// grow guarantees room for n more bytes at the back of the buffer.
func (b *Buffer) grow(n int) {
	if cap(b.buf)-len(b.buf) >= n {
		return
	}

	unread := b.Len()

	size := cap(b.buf)
	if size < 2*unread+n {
		size = 2*unread + n
	}

	next := make([]byte, unread, size)
	copy(next, b.buf[b.off:])

	b.buf, b.off = next, 0
}

var _ io.Writer = (*Buffer)(nil)
