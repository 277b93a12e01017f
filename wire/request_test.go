// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadRequest(t *testing.T) {
	t.Run("will parse the request line and headers", func(t *testing.T) {
		t.Run("if the request is well formed", func(t *testing.T) {
			s := newBufferSocket("GET /foo/a%20b?x=1&y=2 HTTP/1.1\r\nHost: test\r\nAccept: a\r\naccept: b\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "GET", c.Method()) {
				return
			}
			if !assert.Equal(t, "/foo/a%20b?x=1&y=2", c.URI()) {
				return
			}
			if !assert.Equal(t, "/foo/a b", c.Path()) {
				return
			}
			if !assert.Equal(t, "/foo/a%20b", c.RawPath()) {
				return
			}
			if !assert.Equal(t, "x=1&y=2", c.Query()) {
				return
			}
			if !assert.Equal(t, HTTP11, c.Proto()) {
				return
			}
			if !assert.Equal(t, "test", c.Header("host")) {
				return
			}
			if !assert.Equal(t, []string{"a", "b"}, c.Headers().Values("ACCEPT")) {
				return
			}
			if !assert.Equal(t, BodyAvailable, c.State()) {
				return
			}
		})

		t.Run("if a header value is folded onto a continuation line", func(t *testing.T) {
			s := newBufferSocket("GET / HTTP/1.1\r\nX-Long: a\r\n  b\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "a b", c.Header("X-Long")) {
				return
			}
		})

		t.Run("if blank lines precede the request line", func(t *testing.T) {
			s := newBufferSocket("\r\n\r\nGET / HTTP/1.0\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, HTTP10, c.Proto()) {
				return
			}
		})
	})

	t.Run("will preserve the version on re-serialization", func(t *testing.T) {
		for _, line := range []string{
			"GET / HTTP/1.0",
			"POST /submit?a=b HTTP/1.1",
			"OPTIONS * HTTP/1.1",
			"DELETE /x HTTP/1.2",
		} {
			s := newBufferSocket(line + "\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, line, c.RequestLine()) {
				return
			}
			version := line[strings.LastIndexByte(line, ' ')+1:]
			if !assert.Equal(t, version, c.Proto()) {
				return
			}
		}
	})

	t.Run("will default the version to HTTP/0.9", func(t *testing.T) {
		t.Run("if the request line has no version", func(t *testing.T) {
			s := newBufferSocket("GET /index.html\r\nNot: a header\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, HTTP09, c.Proto()) {
				return
			}
			if !assert.Equal(t, 0, c.Headers().Len()) {
				return
			}
			if !assert.Equal(t, HTTP10, c.ResponseProto()) {
				return
			}
		})
	})

	t.Run("will synthesize a host header", func(t *testing.T) {
		t.Run("if the target is in absolute form", func(t *testing.T) {
			s := newBufferSocket("GET http://example.com:8080/a/b?q HTTP/1.1\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "example.com:8080", c.Header("Host")) {
				return
			}
			if !assert.Equal(t, "/a/b", c.Path()) {
				return
			}
			if !assert.Equal(t, "q", c.Query()) {
				return
			}
		})

		t.Run("if the target starts with a network path", func(t *testing.T) {
			s := newBufferSocket("GET //example.com HTTP/1.1\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, "example.com", c.Header("Host")) {
				return
			}
			if !assert.Equal(t, "/", c.Path()) {
				return
			}
		})
	})

	t.Run("will not synthesize a host header", func(t *testing.T) {
		t.Run("if the client sent one", func(t *testing.T) {
			s := newBufferSocket("GET http://proxy.example/a HTTP/1.1\r\nHost: origin\r\n\r\n")

			c, err := ReadRequest(context.Background(), s)
			if !assert.Nil(t, err) {
				return
			}
			if !assert.Equal(t, []string{"origin"}, c.Headers().Values("Host")) {
				return
			}
		})
	})

	t.Run("will return io.EOF", func(t *testing.T) {
		t.Run("if the client closed before sending anything", func(t *testing.T) {
			s := newBufferSocket("")

			_, err := ReadRequest(context.Background(), s)
			if !assert.Equal(t, io.EOF, err) {
				return
			}
		})
	})

	t.Run("will return a ConnError", func(t *testing.T) {
		t.Run("if the client closed in the middle of the header", func(t *testing.T) {
			s := newBufferSocket("GET / HTTP/1.1\r\nHost: x")

			_, err := ReadRequest(context.Background(), s)
			if !assert.True(t, IsConnError(err)) {
				return
			}
			if !assert.ErrorIs(t, err, io.ErrUnexpectedEOF) {
				return
			}
		})
	})

	t.Run("will return a ProtocolError", func(t *testing.T) {
		testCases := []struct {
			Name  string
			Input string
			Opts  []Option
		}{
			{Name: "if the request line has no separator", Input: "GET\r\n\r\n"},
			{Name: "if the method is not a token", Input: "G(T / HTTP/1.1\r\n\r\n"},
			{Name: "if the version is not HTTP", Input: "GET / FTP/1.0\r\n\r\n"},
			{Name: "if the path cannot be decoded", Input: "GET /%zz HTTP/1.1\r\n\r\n"},
			{Name: "if a header line has no colon", Input: "GET / HTTP/1.1\r\nbroken\r\n\r\n"},
			{Name: "if a header name is invalid", Input: "GET / HTTP/1.1\r\nBad Name: x\r\n\r\n"},
			{Name: "if the content-length is not a number", Input: "POST / HTTP/1.1\r\nContent-Length: ten\r\n\r\n"},
			{Name: "if content-length headers conflict", Input: "POST / HTTP/1.1\r\nContent-Length: 1\r\nContent-Length: 2\r\n\r\n"},
			{Name: "if the transfer-encoding is unsupported", Input: "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n"},
			{
				Name:  "if the request line exceeds the maximum length",
				Input: "GET /" + strings.Repeat("a", 64) + " HTTP/1.1\r\n\r\n",
				Opts:  []Option{MaxLineLength(32)},
			},
			{
				Name:  "if there are too many headers",
				Input: "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n",
				Opts:  []Option{MaxHeaders(2)},
			},
		}

		for _, testCase := range testCases {
			t.Run(testCase.Name, func(t *testing.T) {
				s := newBufferSocket(testCase.Input)

				_, err := ReadRequest(context.Background(), s, testCase.Opts...)

				var perr ProtocolError
				if !assert.ErrorAs(t, err, &perr) {
					return
				}
				if !assert.Equal(t, 0, s.out.Len()) {
					return
				}
			})
		}
	})
}

func TestReadLine(t *testing.T) {
	t.Run("will accept a line of exactly the maximum length", func(t *testing.T) {
		s := newBufferSocket(strings.Repeat("x", 40) + "\r\n")

		line, err := readLine(s.Reader(), 40)
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Len(t, line, 40) {
			return
		}
	})

	t.Run("will reject a line one byte over the maximum length", func(t *testing.T) {
		s := newBufferSocket(strings.Repeat("x", 41) + "\n")

		_, err := readLine(s.Reader(), 40)

		var perr ProtocolError
		if !assert.ErrorAs(t, err, &perr) {
			return
		}
	})
}
