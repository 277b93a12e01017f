// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acceptor

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/anvil/wire"
)

// Socket is an accepted connection tracked by a [Tracker]. Every read is
// bounded by the current read timeout and Close releases the tracker slot
// exactly once.
type Socket struct {
	net.Conn

	r       *bufio.Reader
	tracker *Tracker
	timeout atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func newSocket(c net.Conn, t *Tracker, readTimeout time.Duration) *Socket {
	s := &Socket{
		Conn:    c,
		tracker: t,
	}
	s.r = bufio.NewReaderSize(readerFunc(s.read), wire.DefaultReadBufferSize)
	s.timeout.Store(int64(readTimeout))
	t.opened()
	return s
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(b []byte) (int, error) {
	return f(b)
}

func (s *Socket) read(b []byte) (int, error) {
	if d := time.Duration(s.timeout.Load()); d > 0 {
		err := s.Conn.SetReadDeadline(time.Now().Add(d))
		if err != nil {
			return 0, err
		}
	}
	return s.Conn.Read(b)
}

// Read reads through the buffered reader so no pipelined byte is skipped.
func (s *Socket) Read(b []byte) (int, error) {
	return s.r.Read(b)
}

// Reader implements the [wire.Socket] interface.
func (s *Socket) Reader() *bufio.Reader {
	return s.r
}

// SetReadTimeout changes the timeout applied to subsequent reads. Zero
// disables it.
func (s *Socket) SetReadTimeout(d time.Duration) {
	s.timeout.Store(int64(d))
}

// ReadTimeout returns the timeout applied to reads.
func (s *Socket) ReadTimeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

// Close closes the connection and releases its tracker slot.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
		s.tracker.closed()
	})
	return s.closeErr
}

// Tuning holds the TCP options applied to accepted connections.
type Tuning struct {
	NoDelay    bool
	SendBuffer int
	RecvBuffer int
}

// Apply sets the options on c when c exposes them. Zero buffer sizes keep
// the platform default.
func (t Tuning) Apply(c net.Conn) error {
	if nd, ok := c.(interface{ SetNoDelay(bool) error }); ok {
		if err := nd.SetNoDelay(t.NoDelay); err != nil {
			return err
		}
	}
	if t.SendBuffer > 0 {
		if wb, ok := c.(interface{ SetWriteBuffer(int) error }); ok {
			if err := wb.SetWriteBuffer(t.SendBuffer); err != nil {
				return err
			}
		}
	}
	if t.RecvBuffer > 0 {
		if rb, ok := c.(interface{ SetReadBuffer(int) error }); ok {
			if err := rb.SetReadBuffer(t.RecvBuffer); err != nil {
				return err
			}
		}
	}
	return nil
}

// TunedListener applies t to every connection ln accepts. Listener
// wrappers which hide the concrete connection type, such as an admission
// limit, should wrap the result rather than be wrapped by it.
func TunedListener(ln net.Listener, t Tuning) net.Listener {
	return tunedListener{Listener: ln, tuning: t}
}

type tunedListener struct {
	net.Listener

	tuning Tuning
}

func (l tunedListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	if err := l.tuning.Apply(c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// SetDeadline forwards to the wrapped listener when it supports deadlines.
func (l tunedListener) SetDeadline(t time.Time) error {
	d, ok := l.Listener.(interface{ SetDeadline(time.Time) error })
	if !ok {
		return errors.ErrUnsupported
	}
	return d.SetDeadline(t)
}
