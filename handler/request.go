// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"github.com/z5labs/anvil/session"
	"github.com/z5labs/anvil/wire"
)

// Paths is the split of a request path around the matched pattern.
type Paths struct {
	Context string
	Handler string
	Extra   string
}

type request struct {
	*wire.Conn
	session.Support

	paths Paths
}

// NewRequest views c as a routed [Request]. A nil support binds no session.
func NewRequest(c *wire.Conn, paths Paths, support session.Support) Request {
	if support == nil {
		support = session.None{}.CreateSupport(c)
	}
	return &request{
		Conn:    c,
		Support: support,
		paths:   paths,
	}
}

func (r *request) ContextPath() string { return r.paths.Context }

func (r *request) HandlerPath() string { return r.paths.Handler }

func (r *request) ExtraPath() string { return r.paths.Extra }

type forwarded struct {
	Request

	uri   string
	path  string
	query string
	paths Paths
}

// Forward decorates req so it reports another URI and split, leaving every
// other property and the attributes shared with req.
func Forward(req Request, uri, path, query string, paths Paths) Request {
	return &forwarded{
		Request: req,
		uri:     uri,
		path:    path,
		query:   query,
		paths:   paths,
	}
}

func (f *forwarded) URI() string { return f.uri }

func (f *forwarded) Path() string { return f.path }

func (f *forwarded) Query() string { return f.query }

func (f *forwarded) ContextPath() string { return f.paths.Context }

func (f *forwarded) HandlerPath() string { return f.paths.Handler }

func (f *forwarded) ExtraPath() string { return f.paths.Extra }

type included struct {
	Response
}

// Include decorates resp so the included handler can write body bytes but
// can not change the status, headers or cookies.
func Include(resp Response) Response {
	return included{Response: resp}
}

func (included) SetStatus(int, string) error { return nil }

func (included) SetHeader(string, string) error { return nil }

func (included) AddHeader(string, string) error { return nil }

func (included) DelHeader(string) error { return nil }

func (included) SetContentLength(int64) error { return nil }

func (included) AddCookie(*wire.Cookie) error { return nil }

func (included) SendError(int, string) error { return nil }

func (included) SendRedirect(string) error { return nil }
