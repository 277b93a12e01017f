// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"log/slog"
	"time"

	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/otelslog"
)

const (
	DefaultMaxLineLength = 8192
	DefaultMaxHeaders    = 100
)

type options struct {
	maxLineLength int
	maxHeaders    int
	recycler      Recycler
	sink          ImpressionSink
	singleCookie  bool
	serverName    string
	scheme        string
	now           func() time.Time
	logHandler    slog.Handler
}

func defaultOptions() options {
	return options{
		maxLineLength: DefaultMaxLineLength,
		maxHeaders:    DefaultMaxHeaders,
		sink:          noop.Recorder[Impression]{},
		scheme:        "http",
		now:           time.Now,
		logHandler:    noop.LogHandler{},
	}
}

// Option configures how a [Conn] is read and answered.
type Option func(*options)

// MaxLineLength bounds the request line and every header line.
func MaxLineLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineLength = n
		}
	}
}

// MaxHeaders bounds the number of request header fields.
func MaxHeaders(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHeaders = n
		}
	}
}

// WithRecycler hands cleanly finished keep-alive sockets to r instead of
// closing them.
func WithRecycler(r Recycler) Option {
	return func(o *options) {
		o.recycler = r
	}
}

// WithImpressionSink reports every finished transaction to s. A nil s
// keeps the current sink.
func WithImpressionSink(s ImpressionSink) Option {
	return func(o *options) {
		if s != nil {
			o.sink = s
		}
	}
}

// SingleCookieMode buffers response cookies by name, last write wins, and
// emits them when the response is committed.
func SingleCookieMode(enabled bool) Option {
	return func(o *options) {
		o.singleCookie = enabled
	}
}

// ServerName is sent as the Server header unless the handler sets one.
func ServerName(name string) Option {
	return func(o *options) {
		o.serverName = name
	}
}

// Scheme reported by [Conn.Scheme].
func Scheme(s string) Option {
	return func(o *options) {
		o.scheme = s
	}
}

// Clock overrides the time source used for Date headers and impressions.
func Clock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// LogHandler
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = otelslog.NewHandler(h)
	}
}
