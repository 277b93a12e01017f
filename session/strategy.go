// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package session binds server side state to clients.
//
// The router asks a [Strategy] for a [Support] once per request, before
// dispatch; handlers then resolve or create the session through it.
package session

import "github.com/z5labs/anvil/wire"

// Exchange is the part of a transaction a [Strategy] reads the requested
// session id from and writes the session cookie to. [*wire.Conn]
// implements it.
type Exchange interface {
	URI() string
	Query() string
	Cookies() []*wire.Cookie
	AddCookie(*wire.Cookie) error
	SendRedirect(location string) error
	SetSessionID(string)
}

// Strategy creates per request session support.
type Strategy interface {
	CreateSupport(Exchange) Support
}

// Support resolves the session of one request.
type Support interface {
	// Session returns the session bound to the request. Without create it
	// returns nil when there is none. A strategy which redirects on
	// creation returns the new session together with [wire.ErrAbort].
	Session(create bool) (*Session, error)

	RequestedSessionID() string
	RequestedSessionIDValid() bool
	RequestedSessionIDFromCookie() bool
}

// None is a [Strategy] which never binds a session.
type None struct{}

// CreateSupport implements the [Strategy] interface.
func (None) CreateSupport(Exchange) Support {
	return noSupport{}
}

type noSupport struct{}

func (noSupport) Session(bool) (*Session, error) { return nil, nil }

func (noSupport) RequestedSessionID() string { return "" }

func (noSupport) RequestedSessionIDValid() bool { return false }

func (noSupport) RequestedSessionIDFromCookie() bool { return false }
