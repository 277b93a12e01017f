// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package router

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

func get(path string) string {
	return "GET " + path + " HTTP/1.1\r\nHost: test\r\n\r\n"
}

// service routes one raw request through r and returns the closed
// connection along with everything written to the socket.
func service(t *testing.T, r *Router, raw string) (*wire.Conn, string) {
	t.Helper()

	s := &memSocket{r: bufio.NewReader(strings.NewReader(raw))}
	c, err := wire.ReadRequest(context.Background(), s)
	if err != nil {
		t.Fatalf("unexpected error reading request: %v", err)
	}
	if err := r.Service(context.Background(), c); err != nil {
		t.Fatalf("unexpected error servicing request: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error closing response: %v", err)
	}
	return c, s.out.String()
}

func text(code int, body string) handler.HandlerFunc {
	return func(ctx context.Context, req handler.Request, resp handler.Response) error {
		if err := resp.SetStatus(code, ""); err != nil {
			return err
		}
		if err := resp.SetContentLength(int64(len(body))); err != nil {
			return err
		}
		_, err := resp.WriteString(body)
		return err
	}
}

type recordingFilter struct {
	name  string
	order *[]string
}

func (f recordingFilter) Init(handler.Config) error { return nil }

func (f recordingFilter) DoFilter(ctx context.Context, req handler.Request, resp handler.Response, c *handler.Chain) error {
	*f.order = append(*f.order, f.name)
	return c.Proceed(ctx, req, resp)
}

func (f recordingFilter) Destroy() {}

type countingHandler struct {
	handler.HandlerFunc
	destroyed *int
}

func (h countingHandler) Destroy() { *h.destroyed++ }
