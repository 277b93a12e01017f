// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package wire implements the HTTP/1.x protocol state machine of a single
// transaction: request parsing, body framing, response commit and the
// keep-alive decision which lets a socket be recycled.
package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/z5labs/anvil/internal/try"
	"github.com/z5labs/anvil/pkg/slogfield"

	"golang.org/x/net/http/httpguts"
)

// State of a [Conn].
type State int

const (
	AwaitingRequestLine State = iota
	HeadersRead
	BodyAvailable
	ResponseUncommitted
	ResponseCommitted
	Closed
)

var stateNames = [...]string{
	"AwaitingRequestLine",
	"HeadersRead",
	"BodyAvailable",
	"ResponseUncommitted",
	"ResponseCommitted",
	"Closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

const writeBufferSize = 4096

// ErrInvalidStatus is returned for status codes outside 100-999.
var ErrInvalidStatus = errors.New("wire: invalid status code")

// Conn is one HTTP transaction read off a [Socket]. It is both the request
// and its response. A Conn is not safe for concurrent use except for
// [Conn.Close] and [Conn.Cancel].
type Conn struct {
	ctx  context.Context
	sock Socket
	w    *bufio.Writer
	log  *slog.Logger
	opts options

	line    requestLine
	header  *Header
	body    *Body
	cookies []*Cookie
	parsed  bool
	attrs   map[string]any
	state   State

	status        int
	reason        string
	respHeader    Header
	contentLength int64
	setCookies    []*Cookie
	committed     bool
	keepAlive     bool
	broken        bool
	continued     bool
	written       int64
	sessionID     string

	closed     atomic.Bool
	impression atomic.Pointer[Impression]
}

// ReadRequest parses the next request off s. It returns [io.EOF] if the
// client closed the socket cleanly before sending anything, a
// [ProtocolError] for malformed input and a [ConnError] for socket failures.
// In every error case the caller still owns s.
func ReadRequest(ctx context.Context, s Socket, opts ...Option) (*Conn, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	start := o.now()
	line, header, err := readRequestHead(s.Reader(), o.maxLineLength, o.maxHeaders)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		ctx:           ctx,
		sock:          s,
		w:             bufio.NewWriterSize(s, writeBufferSize),
		log:           slog.New(o.logHandler),
		opts:          o,
		line:          line,
		header:        header,
		state:         HeadersRead,
		contentLength: -1,
	}

	c.body, err = c.frameBody()
	if err != nil {
		return nil, err
	}
	if line.proto == HTTP11 && strings.EqualFold(header.Get("Expect"), "100-continue") {
		c.body.before = c.sendContinue
	}
	c.state = BodyAvailable
	c.impression.Store(&Impression{Start: start})
	return c, nil
}

func (c *Conn) frameBody() (*Body, error) {
	r := c.sock.Reader()
	if c.header.Has("Transfer-Encoding") {
		if !c.header.HasToken("Transfer-Encoding", "chunked") {
			return nil, protocolError("unsupported transfer-encoding", nil)
		}
		return newBody(r, framingChunked, 0), nil
	}

	values := c.header.Values("Content-Length")
	if len(values) == 0 {
		return newBody(r, framingUnbounded, 0), nil
	}
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != strings.TrimSpace(values[0]) {
			return nil, protocolError("conflicting content-length", nil)
		}
	}
	n, _, err := c.header.Int("Content-Length")
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, protocolError("negative content-length", nil)
	}
	return newBody(r, framingLength, n), nil
}

func (c *Conn) sendContinue() error {
	if c.committed || c.continued {
		return nil
	}
	c.continued = true
	c.w.WriteString(HTTP11 + " 100 Continue\r\n\r\n")
	if err := c.w.Flush(); err != nil {
		c.broken = true
		return ConnError{Op: "write", Err: err}
	}
	return nil
}

// Context returns the context the request was read with.
func (c *Conn) Context() context.Context {
	return c.ctx
}

// State returns the current protocol state.
func (c *Conn) State() State {
	return c.state
}

// Method returns the request method.
func (c *Conn) Method() string {
	return c.line.method
}

// URI returns the request target exactly as sent.
func (c *Conn) URI() string {
	return c.line.uri
}

// Path returns the decoded path, without authority or query.
func (c *Conn) Path() string {
	return c.line.path
}

// RawPath returns the path before percent decoding.
func (c *Conn) RawPath() string {
	return c.line.rawPath
}

// Query returns the raw query string, without the leading '?'.
func (c *Conn) Query() string {
	return c.line.query
}

// Proto returns the request protocol version. A request line without a
// version reports HTTP/0.9.
func (c *Conn) Proto() string {
	return c.line.proto
}

// ResponseProto returns the version written on the status line.
func (c *Conn) ResponseProto() string {
	return responseProto(c.line.proto)
}

// RequestLine re-serializes the request line.
func (c *Conn) RequestLine() string {
	return c.line.String()
}

// Scheme returns the scheme the socket was accepted for.
func (c *Conn) Scheme() string {
	return c.opts.scheme
}

// Header returns the first value of the named request header.
func (c *Conn) Header(name string) string {
	return c.header.Get(name)
}

// Headers returns the request header.
func (c *Conn) Headers() *Header {
	return c.header
}

// Body returns the request body.
func (c *Conn) Body() *Body {
	return c.body
}

// Cookies returns the request cookies.
func (c *Conn) Cookies() []*Cookie {
	if !c.parsed {
		c.cookies = parseCookies(c.header.Values("Cookie"))
		c.parsed = true
	}
	return c.cookies
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// LocalAddr returns the address the socket was accepted on.
func (c *Conn) LocalAddr() net.Addr {
	return c.sock.LocalAddr()
}

// Attribute returns a request scoped value.
func (c *Conn) Attribute(key string) any {
	return c.attrs[key]
}

// SetAttribute stores a request scoped value. A nil value removes key.
func (c *Conn) SetAttribute(key string, v any) {
	if v == nil {
		delete(c.attrs, key)
		return
	}
	if c.attrs == nil {
		c.attrs = make(map[string]any)
	}
	c.attrs[key] = v
}

// RemoveAttribute deletes a request scoped value.
func (c *Conn) RemoveAttribute(key string) {
	delete(c.attrs, key)
}

// AttributeNames returns the sorted attribute keys.
func (c *Conn) AttributeNames() []string {
	names := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// SetSessionID records the session bound to this transaction for its impression.
func (c *Conn) SetSessionID(id string) {
	c.sessionID = id
}

func (c *Conn) mutable() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.committed {
		return ErrCommitted
	}
	if c.state < ResponseUncommitted {
		c.state = ResponseUncommitted
	}
	return nil
}

// SetStatus sets the response status. An empty reason uses the standard
// reason phrase.
func (c *Conn) SetStatus(code int, reason string) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if code < 100 || code > 999 {
		return ErrInvalidStatus
	}
	c.status = code
	c.reason = reason
	return nil
}

// Status returns the response status, zero until one is set.
func (c *Conn) Status() int {
	return c.status
}

// SetHeader replaces a response header.
func (c *Conn) SetHeader(name, value string) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if strings.EqualFold(name, "Content-Length") {
		return c.setContentLength(value)
	}
	c.respHeader.Set(name, value)
	return nil
}

// AddHeader appends a response header. Content-Length always replaces.
func (c *Conn) AddHeader(name, value string) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if strings.EqualFold(name, "Content-Length") {
		return c.setContentLength(value)
	}
	c.respHeader.Add(name, value)
	return nil
}

// DelHeader removes a response header.
func (c *Conn) DelHeader(name string) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if strings.EqualFold(name, "Content-Length") {
		c.contentLength = -1
	}
	c.respHeader.Del(name)
	return nil
}

// SetContentLength declares the response body length. A negative n makes
// the body close-delimited.
func (c *Conn) SetContentLength(n int64) error {
	if err := c.mutable(); err != nil {
		return err
	}
	if n < 0 {
		c.contentLength = -1
		c.respHeader.Del("Content-Length")
		return nil
	}
	return c.setContentLength(strconv.FormatInt(n, 10))
}

func (c *Conn) setContentLength(v string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("wire: invalid content-length %q", v)
	}
	c.contentLength = n
	c.respHeader.Set("Content-Length", strconv.FormatInt(n, 10))
	return nil
}

// ResponseHeader returns the first value of the named response header.
func (c *Conn) ResponseHeader(name string) string {
	return c.respHeader.Get(name)
}

// ResponseHeaders returns a copy of the response header fields.
func (c *Conn) ResponseHeaders() []Field {
	return c.respHeader.Fields()
}

// AddCookie adds a Set-Cookie header, or in single cookie mode replaces any
// cookie of the same name buffered so far.
func (c *Conn) AddCookie(ck *Cookie) error {
	if ck == nil || !validCookieName(ck.Name) {
		return ErrInvalidCookie
	}
	if err := c.mutable(); err != nil {
		return err
	}
	if !c.opts.singleCookie {
		c.respHeader.Add("Set-Cookie", ck.format(c.opts.now()))
		return nil
	}
	i := slices.IndexFunc(c.setCookies, func(prev *Cookie) bool {
		return prev.Name == ck.Name
	})
	if i < 0 {
		c.setCookies = append(c.setCookies, ck)
		return nil
	}
	c.setCookies[i] = ck
	return nil
}

func validCookieName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "$") && httpguts.ValidHeaderFieldName(name)
}

// Committed reports whether the status line and headers were written.
func (c *Conn) Committed() bool {
	return c.committed
}

// KeepAlive reports the keep-alive decision made at commit.
func (c *Conn) KeepAlive() bool {
	return c.keepAlive
}

// BytesWritten returns the number of body bytes written.
func (c *Conn) BytesWritten() int64 {
	return c.written
}

func (c *Conn) head() bool {
	return c.line.method == "HEAD"
}

func (c *Conn) commit() error {
	if c.committed {
		return nil
	}
	if c.status == 0 {
		return ErrNoStatus
	}
	c.finalizeHeaders()

	proto := c.ResponseProto()
	if c.status == 200 && c.reason == "" {
		c.w.WriteString(proto)
		c.w.WriteString(" 200 OK\r\n")
	} else {
		reason := c.reason
		if reason == "" {
			reason = http.StatusText(c.status)
		}
		c.w.WriteString(proto)
		c.w.WriteByte(' ')
		c.w.WriteString(strconv.Itoa(c.status))
		c.w.WriteByte(' ')
		c.w.WriteString(reason)
		c.w.WriteString("\r\n")
	}
	for _, f := range c.respHeader.writeTo(c.w) {
		c.log.DebugContext(c.ctx, "dropped invalid response header", slogfield.String("name", f.Name))
	}
	c.w.WriteString("\r\n")

	c.committed = true
	c.state = ResponseCommitted
	return nil
}

func (c *Conn) finalizeHeaders() {
	now := c.opts.now()
	for _, ck := range c.setCookies {
		c.respHeader.Add("Set-Cookie", ck.format(now))
	}
	if c.opts.serverName != "" && !c.respHeader.Has("Server") {
		c.respHeader.Set("Server", c.opts.serverName)
	}
	if !c.respHeader.Has("Date") {
		c.respHeader.Set("Date", now.UTC().Format(TimeFormat))
	}

	if c.contentLength >= 0 || c.head() {
		c.keepAlive = c.negotiateKeepAlive()
		if !c.keepAlive {
			c.respHeader.Set("Connection", "Close")
		}
		return
	}

	c.keepAlive = false
	if !c.respHeader.Has("Connection") {
		c.respHeader.Set("Connection", "Close")
	}
}

func (c *Conn) negotiateKeepAlive() bool {
	if c.line.proto == HTTP09 {
		return false
	}
	if c.respHeader.Has("Connection") {
		return c.respHeader.HasToken("Connection", "keep-alive")
	}
	return c.ResponseProto() == HTTP11 && !c.header.HasToken("Connection", "close")
}

// Write writes body bytes, committing the response first if needed. Bytes
// past a declared Content-Length are refused with [ErrBodyTooLong]. HEAD
// responses discard every body byte.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if err := c.commit(); err != nil {
		return 0, err
	}
	if c.head() {
		return len(p), nil
	}

	tooLong := false
	if c.contentLength >= 0 {
		left := c.contentLength - c.written
		if int64(len(p)) > left {
			p = p[:left]
			tooLong = true
		}
	}

	n, err := c.w.Write(p)
	c.written += int64(n)
	if err != nil {
		c.broken = true
		return n, ConnError{Op: "write", Err: err}
	}
	if tooLong {
		return n, ErrBodyTooLong
	}
	return n, nil
}

// WriteString is like [Conn.Write] but for a string.
func (c *Conn) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Flush commits the response and pushes every buffered byte to the socket.
func (c *Conn) Flush() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.commit(); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		c.broken = true
		return ConnError{Op: "write", Err: err}
	}
	return nil
}

const errorPage = "<html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>%s</p></body></html>\n"

// SendError replaces any uncommitted body framing with an HTML error page.
func (c *Conn) SendError(code int, msg string) error {
	if err := c.SetStatus(code, ""); err != nil {
		return err
	}
	text := http.StatusText(code)
	if msg == "" {
		msg = text
	}
	page := fmt.Sprintf(errorPage, code, text, code, text, html.EscapeString(msg))

	c.respHeader.Set("Content-Type", "text/html; charset=utf-8")
	if err := c.setContentLength(strconv.Itoa(len(page))); err != nil {
		return err
	}
	if _, err := io.WriteString(c, page); err != nil {
		return err
	}
	return c.Flush()
}

// SendRedirect answers with 302 Found pointing at location.
func (c *Conn) SendRedirect(location string) error {
	if err := c.SetStatus(http.StatusFound, ""); err != nil {
		return err
	}
	page := fmt.Sprintf("<html><body>Moved to <a href=\"%s\">%s</a></body></html>\n",
		html.EscapeString(location),
		html.EscapeString(location),
	)

	c.respHeader.Set("Location", location)
	c.respHeader.Set("Content-Type", "text/html; charset=utf-8")
	if err := c.setContentLength(strconv.Itoa(len(page))); err != nil {
		return err
	}
	if _, err := io.WriteString(c, page); err != nil {
		return err
	}
	return c.Flush()
}

// Close closes the response output. When a recycler is registered, the
// request body was fully consumed and the response negotiated keep-alive,
// the socket is handed to the recycler. Otherwise it is closed. The
// impression is emitted once no matter how often Close or [Conn.Cancel]
// are called.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := c.finish()
	c.state = Closed
	recycle := err == nil &&
		c.opts.recycler != nil &&
		c.keepAlive &&
		!c.broken &&
		c.body.Consumed()
	if !recycle {
		c.keepAlive = false
	}

	c.emit()
	if recycle {
		c.opts.recycler.Recycle(c.sock)
		return nil
	}
	try.Close(&err, c.sock)
	return err
}

func (c *Conn) finish() error {
	if err := c.commit(); err != nil {
		return err
	}
	if c.contentLength >= 0 && !c.head() && c.written < c.contentLength {
		c.keepAlive = false
	}
	if err := c.w.Flush(); err != nil {
		c.broken = true
		return ConnError{Op: "write", Err: err}
	}
	return nil
}

// Cancel drops the socket without writing anything else.
func (c *Conn) Cancel() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.keepAlive = false
	c.state = Closed
	c.emit()

	var err error
	try.Close(&err, c.sock)
	return err
}

func (c *Conn) emit() {
	imp := c.impression.Swap(nil)
	if imp == nil {
		return
	}

	imp.Method = c.line.method
	imp.URI = c.line.uri
	imp.Proto = c.line.proto
	imp.Status = c.status
	imp.BytesRead = c.body.BytesRead()
	imp.BytesWritten = c.written
	imp.Duration = c.opts.now().Sub(imp.Start)
	if addr := c.sock.RemoteAddr(); addr != nil {
		imp.RemoteAddr = addr.String()
	}
	imp.UserAgent = c.header.Get("User-Agent")
	imp.Referer = c.header.Get("Referer")
	imp.SessionID = c.sessionID
	imp.KeepAlive = c.keepAlive
	c.opts.sink.Record(c.ctx, *imp)
}
