// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"bufio"
	"errors"
	"io"
	"net/http/httputil"
)

// ErrMarkInvalid is returned by [Body.Reset] when no mark is set or more
// bytes than the mark's read limit were read since it was set.
var ErrMarkInvalid = errors.New("wire: body mark invalid")

type framing int

const (
	framingUnbounded framing = iota
	framingLength
	framingChunked
)

// Body reads a request body off the socket. When the request declared a
// Content-Length no read, skip or mark ever crosses it.
type Body struct {
	buf     *bufio.Reader
	src     io.Reader
	framing framing

	remaining int64
	read      int64
	touched   bool
	eof       bool

	before func() error

	marking   bool
	markLimit int
	marked    []byte
	replay    []byte
}

func newBody(r *bufio.Reader, f framing, length int64) *Body {
	b := &Body{
		buf:       r,
		src:       r,
		framing:   f,
		remaining: length,
	}
	if f == framingChunked {
		b.src = httputil.NewChunkedReader(r)
	}
	return b
}

// Read implements the [io.Reader] interface.
func (b *Body) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(b.replay) > 0 {
		n := copy(p, b.replay)
		b.replay = b.replay[n:]
		return n, nil
	}
	if b.exhausted() {
		return 0, io.EOF
	}

	if b.before != nil {
		f := b.before
		b.before = nil
		if err := f(); err != nil {
			return 0, err
		}
	}

	if b.framing == framingLength && int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}

	n, err := b.src.Read(p)
	b.touched = true
	b.read += int64(n)
	if b.framing == framingLength {
		b.remaining -= int64(n)
	}
	b.record(p[:n])

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		b.eof = true
		if b.framing == framingLength && b.remaining > 0 {
			return n, ConnError{Op: "read", Err: io.ErrUnexpectedEOF}
		}
		return n, io.EOF
	default:
		return n, ConnError{Op: "read", Err: err}
	}
}

func (b *Body) exhausted() bool {
	if b.framing == framingLength {
		return b.remaining <= 0
	}
	return b.eof
}

// Len returns the declared Content-Length, or -1 if there was none.
func (b *Body) Len() int64 {
	if b.framing != framingLength {
		return -1
	}
	return b.read + b.remaining
}

// BytesRead returns how many body bytes were taken off the socket.
func (b *Body) BytesRead() int64 {
	return b.read
}

// Available returns the number of bytes which can be read without blocking.
func (b *Body) Available() int {
	n := len(b.replay)
	if b.exhausted() || b.framing == framingChunked {
		return n
	}
	buffered := int64(b.buf.Buffered())
	if b.framing == framingLength && buffered > b.remaining {
		buffered = b.remaining
	}
	return n + int(buffered)
}

// Skip discards up to n bytes and reports how many were discarded.
func (b *Body) Skip(n int64) (int64, error) {
	skipped, err := io.CopyN(io.Discard, b, n)
	if errors.Is(err, io.EOF) {
		return skipped, nil
	}
	return skipped, err
}

// Mark remembers the current position. A later [Body.Reset] returns to it
// as long as no more than readLimit bytes were read in between.
func (b *Body) Mark(readLimit int) {
	b.marking = true
	b.markLimit = readLimit
	b.marked = append([]byte(nil), b.replay...)
	b.replay = b.marked
}

// Reset rewinds to the last [Body.Mark].
func (b *Body) Reset() error {
	if !b.marking {
		return ErrMarkInvalid
	}
	b.replay = b.marked
	return nil
}

func (b *Body) record(p []byte) {
	if !b.marking || len(p) == 0 {
		return
	}
	if len(b.marked)+len(p) > b.markLimit {
		b.marking = false
		b.marked = nil
		return
	}
	b.marked = append(b.marked, p...)
}

// Consumed reports whether the socket holds no unread bytes of this body,
// so the next bytes on it belong to the next request. A body without
// framing only qualifies when it was never read.
func (b *Body) Consumed() bool {
	switch b.framing {
	case framingLength:
		return b.remaining == 0
	case framingChunked:
		return b.eof
	default:
		return !b.touched
	}
}
