package c11httpd

import "strconv"

// Buf is a growable byte buffer with stable front/back pointers, used for
// both recv and send accumulation on a Conn. It never shrinks its backing
// array so it can be reused across requests without re-allocating.
//
// Grounded on c11httpd/buf.h & buf.cpp: reserve/append/erase_front (which
// memmoves the tail down to offset 0) / erase_back (cursor-only) / clear.
type Buf struct {
	data []byte
	size int
}

// NewBuf returns an empty buffer with no pre-allocated capacity.
func NewBuf() *Buf {
	return &Buf{}
}

// Capacity returns the current backing-array capacity.
func (b *Buf) Capacity() int {
	return cap(b.data)
}

// Size returns the number of live bytes.
func (b *Buf) Size() int {
	return b.size
}

// SetSize sets the live-byte count directly. The caller must have already
// written bytes into the region returned by ReserveBack; this mirrors
// buf_t::size(size_t) in the original, used e.g. after an AIO read
// completes directly into reserved space.
func (b *Buf) SetSize(n int) {
	if n < 0 || n > cap(b.data) {
		panic("c11httpd: Buf.SetSize out of range")
	}
	b.size = n
	b.data = b.data[:cap(b.data)]
}

// AddSize extends the live-byte count by n, equivalent to add_size().
func (b *Buf) AddSize(n int) {
	b.SetSize(b.size + n)
}

// FreeSize returns the number of bytes available after Size() before the
// buffer must grow.
func (b *Buf) FreeSize() int {
	return cap(b.data) - b.size
}

// Front returns the live region [0, Size()).
func (b *Buf) Front() []byte {
	return b.data[:b.size]
}

// Bytes is an alias of Front, for callers that prefer the stdlib naming.
func (b *Buf) Bytes() []byte {
	return b.Front()
}

// ReserveBack guarantees at least n free bytes after Size() and returns a
// slice over that free region. Growth doubles capacity, rounded up to fit
// the requested reserve (matching buf_t::pending()'s doubling rule). The
// returned slice is invalidated by any subsequent call that grows the
// buffer; callers that cache it across other Buf operations must refresh.
func (b *Buf) ReserveBack(n int) []byte {
	if cap(b.data)-b.size < n {
		newCap := cap(b.data) * 2
		if newCap-b.size < n {
			newCap = b.size + n
		}
		newData := make([]byte, b.size, newCap)
		copy(newData, b.data[:b.size])
		b.data = newData
	}
	return b.data[b.size:cap(b.data)]
}

// Back returns the write cursor (first byte past Size()), with no
// growth guarantee; callers must ReserveBack first.
func (b *Buf) Back() []byte {
	return b.data[b.size:cap(b.data)]
}

// AppendBytes grows if needed and appends raw bytes.
func (b *Buf) AppendBytes(p []byte) {
	dst := b.ReserveBack(len(p))
	n := copy(dst, p)
	b.AddSize(n)
}

// AppendString grows if needed and appends a string's bytes.
func (b *Buf) AppendString(s string) {
	dst := b.ReserveBack(len(s))
	n := copy(dst, s)
	b.AddSize(n)
}

// AppendByte appends a single byte.
func (b *Buf) AppendByte(c byte) {
	dst := b.ReserveBack(1)
	dst[0] = c
	b.AddSize(1)
}

// AppendInt formats n as decimal ASCII using a 32-byte stack scratch
// buffer, matching append_integer's contract.
func (b *Buf) AppendInt(n int) {
	var scratch [32]byte
	out := strconv.AppendInt(scratch[:0], int64(n), 10)
	b.AppendBytes(out)
}

// EraseFront removes the first n bytes, memmove-ing the tail down to
// offset 0 so the live region begins at offset 0 again.
func (b *Buf) EraseFront(n int) {
	if n == 0 {
		return
	}
	if n > b.size {
		panic("c11httpd: Buf.EraseFront out of range")
	}
	copy(b.data[:cap(b.data)], b.data[n:b.size])
	b.size -= n
}

// EraseBack removes the last n bytes; this is a cursor-only operation.
func (b *Buf) EraseBack(n int) {
	if n > b.size {
		panic("c11httpd: Buf.EraseBack out of range")
	}
	b.size -= n
}

// Clear resets Size() to zero without releasing the backing array.
func (b *Buf) Clear() {
	b.size = 0
}

// At returns the byte at index.
func (b *Buf) At(index int) byte {
	return b.data[:b.size][index]
}
