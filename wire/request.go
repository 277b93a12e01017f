// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"bufio"
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

const (
	HTTP09 = "HTTP/0.9"
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// maxLeadingBlankLines bounds the empty lines tolerated before a request line.
const maxLeadingBlankLines = 4

type requestLine struct {
	method string
	uri    string
	proto  string

	rawPath   string
	path      string
	query     string
	authority string
}

// String re-serializes the request line.
func (l requestLine) String() string {
	if l.proto == HTTP09 {
		return l.method + " " + l.uri
	}
	return l.method + " " + l.uri + " " + l.proto
}

func readLine(r *bufio.Reader, max int) (string, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		if len(line)+len(frag) > max+2 {
			return "", protocolError("line exceeds maximum length", nil)
		}
		line = append(line, frag...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return "", io.EOF
			}
			return "", ConnError{Op: "read", Err: io.ErrUnexpectedEOF}
		}
		return "", ConnError{Op: "read", Err: err}
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > max {
		return "", protocolError("line exceeds maximum length", nil)
	}
	return string(line), nil
}

func parseRequestLine(line string) (requestLine, error) {
	var rl requestLine

	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return rl, protocolError("missing separator after method", nil)
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return rl, protocolError("invalid method "+method, nil)
	}
	rl.method = method

	uri, proto, ok := strings.Cut(rest, " ")
	if !ok {
		proto = HTTP09
	}
	proto = strings.TrimSpace(proto)
	if uri == "" {
		return rl, protocolError("empty request target", nil)
	}
	if !strings.HasPrefix(proto, "HTTP/") {
		return rl, protocolError("invalid protocol version "+proto, nil)
	}
	rl.uri = uri
	rl.proto = proto

	target := uri
	if rawPath, q, ok := strings.Cut(target, "?"); ok {
		target = rawPath
		rl.query = q
	}

	target, rl.authority = stripAuthority(target)
	if target == "" {
		target = "/"
	}
	rl.rawPath = target

	path, err := url.PathUnescape(target)
	if err != nil {
		return rl, protocolError("undecodable path", err)
	}
	rl.path = path
	return rl, nil
}

// stripAuthority removes a scheme://host or //host prefix from an
// absolute-form request target.
func stripAuthority(target string) (path, authority string) {
	rest, ok := strings.CutPrefix(target, "//")
	if !ok {
		i := strings.Index(target, "://")
		if i <= 0 || strings.IndexByte(target[:i], '/') >= 0 {
			return target, ""
		}
		rest = target[i+3:]
	}

	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", rest
	}
	return rest[i:], rest[:i]
}

func readHeader(r *bufio.Reader, h *Header, maxLine, maxHeaders int) error {
	for {
		line, err := readLine(r, maxLine)
		if errors.Is(err, io.EOF) {
			return ConnError{Op: "read", Err: io.ErrUnexpectedEOF}
		}
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}

		if line[0] == ' ' || line[0] == '\t' {
			if h.Len() == 0 {
				return protocolError("continuation line before first header", nil)
			}
			last := &h.fields[h.Len()-1]
			last.Value = last.Value + " " + strings.TrimSpace(line)
			continue
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return protocolError("malformed header line", nil)
		}
		if !httpguts.ValidHeaderFieldName(name) {
			return protocolError("invalid header name "+name, nil)
		}
		value = strings.TrimSpace(value)
		if !httpguts.ValidHeaderFieldValue(value) {
			return protocolError("invalid value for header "+name, nil)
		}
		if h.Len() >= maxHeaders {
			return protocolError("too many headers", nil)
		}
		h.Add(name, value)
	}
}

func readRequestHead(r *bufio.Reader, maxLine, maxHeaders int) (requestLine, *Header, error) {
	var line string
	var err error
	for range maxLeadingBlankLines + 1 {
		line, err = readLine(r, maxLine)
		if err != nil {
			return requestLine{}, nil, err
		}
		if line != "" {
			break
		}
	}
	if line == "" {
		return requestLine{}, nil, protocolError("missing request line", nil)
	}

	rl, err := parseRequestLine(line)
	if err != nil {
		return rl, nil, err
	}

	h := new(Header)
	if rl.proto != HTTP09 {
		err = readHeader(r, h, maxLine, maxHeaders)
		if err != nil {
			return rl, nil, err
		}
	}
	if rl.authority != "" && !h.Has("Host") {
		h.Add("Host", rl.authority)
	}
	return rl, h, nil
}

// responseProto returns the version written on the status line.
func responseProto(requestProto string) string {
	if requestProto == HTTP11 {
		return HTTP11
	}
	return HTTP10
}
