// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"bufio"
	"net"
)

// DefaultReadBufferSize is the size of the reader allocated by [NewSocket].
const DefaultReadBufferSize = 4096

// Socket is an accepted connection together with the buffered reader which
// outlives any single transaction on it. Bytes a client pipelines behind
// one request stay in Reader for the next [ReadRequest].
type Socket interface {
	net.Conn

	Reader() *bufio.Reader
}

type socket struct {
	net.Conn

	r *bufio.Reader
}

// NewSocket wraps c with a fresh buffered reader.
func NewSocket(c net.Conn) Socket {
	return &socket{
		Conn: c,
		r:    bufio.NewReaderSize(c, DefaultReadBufferSize),
	}
}

func (s *socket) Reader() *bufio.Reader {
	return s.r
}

// Recycler takes ownership of a socket whose transaction completed cleanly
// and which may carry another request.
type Recycler interface {
	Recycle(Socket)
}

// RecyclerFunc is a func variant of the [Recycler] interface.
type RecyclerFunc func(Socket)

// Recycle implements the [Recycler] interface.
func (f RecyclerFunc) Recycle(s Socket) {
	f(s)
}
