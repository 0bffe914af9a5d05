/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package buffer implements a growable byte buffer with a prependable
// region, modeled after a reactor-style network buffer: reads drain from
// the front, writes append at the back, and a small header region in
// front of the readable bytes lets a caller prepend a frame length
// without an extra copy.
package buffer

import (
	"errors"
	"io"
)

const (
	// CheapPrepend is the size of the header region reserved in front
	// of every buffer for length-prefix framing.
	CheapPrepend = 8
	// InitialSize is the default capacity of a new Buffer's storage.
	InitialSize = 1024
)

// Buffer is a variable-sized byte buffer with read and write regions.
// The zero value is not usable; use New.
//
// Layout: | prependable | readable | writable |
type Buffer struct {
	buf  []byte
	rIdx int
	wIdx int
}

// New returns an empty Buffer with the default initial capacity.
func New() *Buffer {
	return NewSize(InitialSize)
}

// NewSize returns an empty Buffer whose storage can hold size readable
// bytes without reallocating, plus the cheap-prepend header.
func NewSize(size int) *Buffer {
	return &Buffer{
		buf:  make([]byte, CheapPrepend+size),
		rIdx: CheapPrepend,
		wIdx: CheapPrepend,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int {
	return b.wIdx - b.rIdx
}

// WritableBytes returns the number of bytes that can be appended
// without growing the underlying storage.
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.wIdx
}

// PrependableBytes returns the number of bytes available in front of
// the readable region for Prepend.
func (b *Buffer) PrependableBytes() int {
	return b.rIdx
}

// Peek returns the readable region without consuming it. The returned
// slice is only valid until the next mutating call on the Buffer.
func (b *Buffer) Peek() []byte {
	return b.buf[b.rIdx:b.wIdx]
}

// Retrieve consumes len bytes from the front of the readable region.
// It panics if len exceeds ReadableBytes, matching the precondition the
// caller is expected to check beforehand.
func (b *Buffer) Retrieve(len int) {
	if len > b.ReadableBytes() {
		panic("buffer: retrieve past writer index")
	}
	if len < b.ReadableBytes() {
		b.rIdx += len
	} else {
		b.RetrieveAll()
	}
}

// RetrieveUntil consumes bytes up to, but not including, the given
// index into the readable region.
func (b *Buffer) RetrieveUntil(end int) {
	b.Retrieve(end - b.rIdx)
}

// RetrieveAll consumes the entire readable region and resets both
// indices to the start of the buffer.
func (b *Buffer) RetrieveAll() {
	b.rIdx = CheapPrepend
	b.wIdx = CheapPrepend
}

// RetrieveAllString consumes the entire readable region and returns it
// as a string.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// RetrieveString consumes len bytes from the front of the readable
// region and returns them as a string.
func (b *Buffer) RetrieveString(len int) string {
	s := string(b.buf[b.rIdx : b.rIdx+len])
	b.Retrieve(len)
	return s
}

// Append appends data to the writable region, growing the buffer if
// necessary.
func (b *Buffer) Append(data []byte) {
	b.EnsureWritable(len(data))
	b.wIdx += copy(b.buf[b.wIdx:], data)
}

// AppendString appends a string to the writable region.
func (b *Buffer) AppendString(s string) {
	b.Append([]byte(s))
}

// EnsureWritable grows the buffer, if needed, so that at least len
// bytes can be appended without a further reallocation.
func (b *Buffer) EnsureWritable(len int) {
	if b.WritableBytes() < len {
		b.makeSpace(len)
	}
}

// BeginWrite returns the writable region without advancing the writer
// index. The caller must follow up with HasWritten once the bytes have
// actually been placed, e.g. after a ReadFrom-style scatter read.
func (b *Buffer) BeginWrite() []byte {
	return b.buf[b.wIdx:]
}

// HasWritten advances the writer index by len, after the caller has
// placed len bytes starting at BeginWrite.
func (b *Buffer) HasWritten(len int) {
	if len > b.WritableBytes() {
		panic("buffer: has-written past capacity")
	}
	b.wIdx += len
}

// Unwrite rolls the writer index back by len, undoing a partial or
// unwanted append without copying the remaining readable bytes.
func (b *Buffer) Unwrite(len int) {
	if len > b.ReadableBytes() {
		panic("buffer: unwrite past reader index")
	}
	b.wIdx -= len
}

// Prepend writes data into the cheap-prepend header, immediately in
// front of the current readable region. It panics if data does not fit
// in PrependableBytes.
func (b *Buffer) Prepend(data []byte) {
	if len(data) > b.PrependableBytes() {
		panic("buffer: prepend past prependable region")
	}
	b.rIdx -= len(data)
	copy(b.buf[b.rIdx:], data)
}

// Shrink compacts the buffer down to its current readable content plus
// a reserve, discarding any slack the prependable/writable regions had
// accumulated from growth. Useful for long-lived connection buffers
// that spiked once and should not keep the oversized allocation.
func (b *Buffer) Shrink(reserve int) {
	other := NewSize(b.ReadableBytes() + reserve)
	other.Append(b.Peek())
	*b = *other
}

// Capacity returns the size of the underlying storage, prepend header
// included.
func (b *Buffer) Capacity() int {
	return len(b.buf)
}

var crlf = []byte("\r\n")

// FindCRLF returns the index, relative to the buffer, of the first
// "\r\n" in the readable region, or -1 if none is present.
func (b *Buffer) FindCRLF() int {
	return b.FindCRLFFrom(b.rIdx)
}

// FindCRLFFrom is FindCRLF starting the search at the given absolute
// index instead of the start of the readable region.
func (b *Buffer) FindCRLFFrom(start int) int {
	if start < b.rIdx || start > b.wIdx {
		panic("buffer: search start out of readable range")
	}
	idx := indexOf(b.buf[start:b.wIdx], crlf)
	if idx < 0 {
		return -1
	}
	return start + idx
}

// FindEOL returns the index of the first '\n' in the readable region,
// or -1 if none is present.
func (b *Buffer) FindEOL() int {
	return b.FindEOLFrom(b.rIdx)
}

// FindEOLFrom is FindEOL starting the search at the given absolute
// index.
func (b *Buffer) FindEOLFrom(start int) int {
	if start < b.rIdx || start > b.wIdx {
		panic("buffer: search start out of readable range")
	}
	for i := start; i < b.wIdx; i++ {
		if b.buf[i] == '\n' {
			return i
		}
	}
	return -1
}

func indexOf(haystack, needle []byte) int {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// ErrShortRead reports a short read that should be retried after a
// further poll event. ReadFd itself does not return it.
var ErrShortRead = errors.New("buffer: short read, retry on next readable event")

// Reader is implemented by the file descriptor wrapper ReadFd scatters
// into the buffer; tcp.TcpConnection's fd satisfies it.
type Reader interface {
	Read(p []byte) (int, error)
}

// ReadFd reads into the writable region and, when that read fills the
// region completely, reads once more into a 64KiB extra buffer, so a
// single readable event can drain a burst larger than Buffer's own
// writable space. Bytes landing in the extra buffer are appended
// after the read.
func (b *Buffer) ReadFd(fd Reader) (int64, error) {
	const extraSize = 65536

	writable := b.WritableBytes()
	extra := make([]byte, extraSize)

	iov0 := b.buf[b.wIdx:]
	n, err := fd.Read(iov0)
	if err != nil {
		return 0, err
	}
	if n < writable {
		b.HasWritten(n)
		return int64(n), nil
	}

	// first read filled the writable region completely; try to drain
	// the remainder into the extra buffer.
	b.HasWritten(writable)
	m, err2 := fd.Read(extra)
	if m > 0 {
		b.Append(extra[:m])
	}
	total := int64(writable) + int64(m)
	if err2 != nil && err2 != io.EOF {
		return total, err2
	}
	return total, err
}

func (b *Buffer) makeSpace(len int) {
	if b.WritableBytes()+b.PrependableBytes() < len+CheapPrepend {
		n := b.wIdx + len
		grown := make([]byte, n)
		copy(grown, b.buf)
		b.buf = grown
		return
	}
	readable := b.ReadableBytes()
	copy(b.buf[CheapPrepend:], b.buf[b.rIdx:b.wIdx])
	b.rIdx = CheapPrepend
	b.wIdx = b.rIdx + readable
}
