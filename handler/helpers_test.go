// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

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

func newConn(t *testing.T, raw string) (*wire.Conn, *memSocket) {
	t.Helper()

	s := &memSocket{r: bufio.NewReader(strings.NewReader(raw))}
	c, err := wire.ReadRequest(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error reading request: %v", err)
	}
	return c, s
}

type testHandler struct {
	serve     func(context.Context, Request, Response) error
	initErr   error
	inits     int
	destroyed int
	cfg       Config
}

func (h *testHandler) Init(cfg Config) error {
	h.inits++
	h.cfg = cfg
	return h.initErr
}

func (h *testHandler) Serve(ctx context.Context, req Request, resp Response) error {
	if h.serve == nil {
		return nil
	}
	return h.serve(ctx, req, resp)
}

func (h *testHandler) Destroy() {
	h.destroyed++
}

type singleThreadedHandler struct {
	testHandler
}

func (*singleThreadedHandler) SingleThreaded() {}
