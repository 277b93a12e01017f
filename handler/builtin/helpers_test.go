// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package builtin

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/wire"
)

type memSocket struct {
	r   *bufio.Reader
	out bytes.Buffer
}

func (s *memSocket) Reader() *bufio.Reader            { return s.r }
func (s *memSocket) Read(p []byte) (int, error)       { return s.r.Read(p) }
func (s *memSocket) Write(p []byte) (int, error)      { return s.out.Write(p) }
func (s *memSocket) Close() error                     { return nil }
func (s *memSocket) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (s *memSocket) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (s *memSocket) SetDeadline(time.Time) error      { return nil }
func (s *memSocket) SetReadDeadline(time.Time) error  { return nil }
func (s *memSocket) SetWriteDeadline(time.Time) error { return nil }

// serve runs h for the raw request as if it was routed with the given
// extra path and returns everything written to the socket.
func serve(t *testing.T, h handler.Handler, raw string, extra string) (*wire.Conn, string) {
	t.Helper()

	return serveChain(t, nil, h, raw, extra)
}

func serveChain(t *testing.T, filters []handler.Filter, h handler.Handler, raw string, extra string) (*wire.Conn, string) {
	t.Helper()

	s := &memSocket{r: bufio.NewReader(strings.NewReader(raw))}
	c, err := wire.ReadRequest(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error reading request: %v", err)
	}

	pool := handler.NewPool("test", func() handler.Handler { return h }, handler.Config{})
	req := handler.NewRequest(c, handler.Paths{Extra: extra}, nil)
	err = handler.NewChain(filters, pool, nil).Run(context.Background(), req, c)
	if err != nil {
		t.Fatalf("unexpected error serving request: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error closing response: %v", err)
	}
	return c, s.out.String()
}
