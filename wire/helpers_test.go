// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

type bufferSocket struct {
	r   *bufio.Reader
	out bytes.Buffer

	mu     sync.Mutex
	closed int
}

func newBufferSocket(in string) *bufferSocket {
	return &bufferSocket{
		r: bufio.NewReaderSize(strings.NewReader(in), 16),
	}
}

func (s *bufferSocket) Reader() *bufio.Reader { return s.r }

func (s *bufferSocket) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *bufferSocket) Write(p []byte) (int, error) { return s.out.Write(p) }

func (s *bufferSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *bufferSocket) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *bufferSocket) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
}

func (s *bufferSocket) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 51234}
}

func (s *bufferSocket) SetDeadline(time.Time) error      { return nil }
func (s *bufferSocket) SetReadDeadline(time.Time) error  { return nil }
func (s *bufferSocket) SetWriteDeadline(time.Time) error { return nil }

type recorderSink struct {
	mu          sync.Mutex
	impressions []Impression
}

func (r *recorderSink) Record(_ context.Context, imp Impression) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.impressions = append(r.impressions, imp)
}

func (r *recorderSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.impressions)
}

// responseHead splits a raw response into its status line, header lines
// and body.
func responseHead(raw string) (status string, header []string, body string) {
	head, body, _ := strings.Cut(raw, "\r\n\r\n")
	lines := strings.Split(head, "\r\n")
	return lines[0], lines[1:], body
}

func hasHeaderLine(lines []string, want string) bool {
	for _, l := range lines {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}
