// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package handler defines the handler and filter capabilities, the pools
// handler instances are served from and the filter chain which runs them.
package handler

import (
	"context"
	"net"
	"path"
	"path/filepath"
	"strings"

	"github.com/z5labs/anvil/session"
	"github.com/z5labs/anvil/wire"
)

// Request is the request side of a routed transaction.
type Request interface {
	Method() string
	URI() string
	Path() string
	Query() string
	Proto() string
	Scheme() string
	Header(name string) string
	Headers() *wire.Header
	Body() *wire.Body
	Cookies() []*wire.Cookie
	RemoteAddr() net.Addr
	LocalAddr() net.Addr

	Attribute(key string) any
	SetAttribute(key string, v any)
	RemoveAttribute(key string)

	// ContextPath, HandlerPath and ExtraPath split Path around the
	// pattern which selected the handler.
	ContextPath() string
	HandlerPath() string
	ExtraPath() string

	Session(create bool) (*session.Session, error)
	RequestedSessionID() string
	RequestedSessionIDValid() bool
	RequestedSessionIDFromCookie() bool
}

// Response is the response side of a routed transaction. [*wire.Conn]
// implements it.
type Response interface {
	SetStatus(code int, reason string) error
	Status() int
	SetHeader(name, value string) error
	AddHeader(name, value string) error
	DelHeader(name string) error
	ResponseHeader(name string) string
	SetContentLength(n int64) error
	AddCookie(*wire.Cookie) error
	Write([]byte) (int, error)
	WriteString(string) (int, error)
	Flush() error
	Committed() bool
	SendError(code int, msg string) error
	SendRedirect(location string) error
}

// Handler is the terminal stage of a chain.
type Handler interface {
	Init(Config) error
	Serve(context.Context, Request, Response) error
	Destroy()
}

// SingleThreaded marks a [Handler] whose instances must never serve two
// requests at once. Its pool hands every in-flight request its own instance.
type SingleThreaded interface {
	SingleThreaded()
}

// QueueSelector is implemented by a [Handler] which wants some requests
// run on a dedicated named queue. An empty name runs the request inline.
type QueueSelector interface {
	SelectQueue(Request) string
}

// Filter wraps the rest of a chain.
type Filter interface {
	Init(Config) error
	DoFilter(context.Context, Request, Response, *Chain) error
	Destroy()
}

// HandlerFunc adapts a function to a stateless [Handler].
type HandlerFunc func(context.Context, Request, Response) error

// Init implements the [Handler] interface.
func (f HandlerFunc) Init(Config) error { return nil }

// Serve implements the [Handler] interface.
func (f HandlerFunc) Serve(ctx context.Context, req Request, resp Response) error {
	return f(ctx, req, resp)
}

// Destroy implements the [Handler] interface.
func (f HandlerFunc) Destroy() {}

// FilterFunc adapts a function to a stateless [Filter].
type FilterFunc func(context.Context, Request, Response, *Chain) error

// Init implements the [Filter] interface.
func (f FilterFunc) Init(Config) error { return nil }

// DoFilter implements the [Filter] interface.
func (f FilterFunc) DoFilter(ctx context.Context, req Request, resp Response, c *Chain) error {
	return f(ctx, req, resp, c)
}

// Destroy implements the [Filter] interface.
func (f FilterFunc) Destroy() {}

// Config is handed to [Handler.Init] and [Filter.Init].
type Config struct {
	Name   string
	Params map[string]string

	// Root is the filesystem directory request paths resolve against.
	Root string
}

// Param returns an init parameter.
func (c Config) Param(name string) string {
	return c.Params[name]
}

// ParamOr returns an init parameter or def when it is unset.
func (c Config) ParamOr(name, def string) string {
	v, ok := c.Params[name]
	if !ok {
		return def
	}
	return v
}

// RealPath maps a request path onto the filesystem under Root. Paths can
// not escape Root. ok is false when no Root is configured.
func (c Config) RealPath(p string) (string, bool) {
	if c.Root == "" {
		return "", false
	}
	clean := path.Clean("/" + p)
	rel := filepath.FromSlash(strings.TrimPrefix(clean, "/"))
	return filepath.Join(c.Root, rel), true
}
