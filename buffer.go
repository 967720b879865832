//go:build linux

package reactor

import "golang.org/x/sys/unix"

// minBufferGrow is the smallest amount a Buffer grows by when appending
// would otherwise require a reallocation.
const minBufferGrow = 4096

// Buffer is a growable byte buffer with a read cursor and a write cursor,
// the shape a Connection's input/output buffers need: bytes are appended at
// the tail and consumed from the head, with unread bytes compacted to the
// front on demand rather than ever wrapping around.
//
// Zero value is not ready; use NewBuffer.
type Buffer struct {
	buf        []byte
	readerIdx  int
	writerIdx  int
}

// NewBuffer creates an empty buffer with the given initial capacity.
func NewBuffer(initialCap int) *Buffer {
	if initialCap < 64 {
		initialCap = 64
	}
	return &Buffer{buf: make([]byte, initialCap)}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.writerIdx - b.readerIdx }

// WritableBytes returns the number of bytes that can be appended before a
// grow is required.
func (b *Buffer) WritableBytes() int { return len(b.buf) - b.writerIdx }

// IsEmpty reports whether there are no readable bytes.
func (b *Buffer) IsEmpty() bool { return b.ReadableBytes() == 0 }

// Peek returns the unread bytes without consuming them. The returned slice
// aliases the buffer and is invalidated by the next mutating call.
func (b *Buffer) Peek() []byte { return b.buf[b.readerIdx:b.writerIdx] }

// Retrieve consumes up to n readable bytes, returning how many were
// actually consumed.
func (b *Buffer) Retrieve(n int) int {
	if n > b.ReadableBytes() {
		n = b.ReadableBytes()
	}
	b.readerIdx += n
	if b.readerIdx == b.writerIdx {
		b.readerIdx = 0
		b.writerIdx = 0
	}
	return n
}

// RetrieveAll discards every readable byte.
func (b *Buffer) RetrieveAll() { b.Retrieve(b.ReadableBytes()) }

// Append appends data to the tail of the buffer, growing as needed.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	b.writerIdx += copy(b.buf[b.writerIdx:], data)
}

// ensureWritable grows or compacts the buffer so at least n more bytes can
// be appended.
func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	readable := b.ReadableBytes()
	if b.readerIdx+b.WritableBytes() >= n+readable {
		// Compacting (sliding unread bytes to the front) frees enough room.
		copy(b.buf, b.buf[b.readerIdx:b.writerIdx])
		b.readerIdx = 0
		b.writerIdx = readable
		return
	}
	grow := n
	if grow < minBufferGrow {
		grow = minBufferGrow
	}
	next := make([]byte, readable+grow)
	copy(next, b.buf[b.readerIdx:b.writerIdx])
	b.buf = next
	b.readerIdx = 0
	b.writerIdx = readable
}

// ReadFromFD performs a single bounded read(2) from fd into one contiguous
// region at the tail of the buffer, growing it first if necessary; no
// scatter-gather (readv) is used. It returns the number
// of bytes read and the error (if any) exactly as returned by the syscall,
// so callers can distinguish EAGAIN/EOF from other failures.
func (b *Buffer) ReadFromFD(fd int, maxRead int) (int, error) {
	b.ensureWritable(maxRead)
	n, err := unix.Read(fd, b.buf[b.writerIdx:b.writerIdx+maxRead])
	if n > 0 {
		b.writerIdx += n
	}
	return n, err
}

// WriteToFD performs a single bounded write from the head of the buffer to
// fd, consuming whatever was actually written.
func (b *Buffer) WriteToFD(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if n > 0 {
		b.Retrieve(n)
	}
	return n, err
}
