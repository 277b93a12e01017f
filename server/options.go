// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"log/slog"
	"net"

	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/wire"
)

type options struct {
	logHandler slog.Handler
	registry   *handler.Registry
	listeners  []net.Listener
	sinks      []wire.ImpressionSink
}

// Option configures an [Engine].
type Option func(*options)

// LogHandler
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Registry supplies the handler and filter kinds routes may name. The
// builtin kinds are always registered on top of it.
func Registry(r *handler.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// Listener serves on an already bound listener in addition to the
// configured addresses.
func Listener(ln net.Listener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, ln)
	}
}

// ImpressionSink adds a sink next to the configured one.
func ImpressionSink(s wire.ImpressionSink) Option {
	return func(o *options) {
		o.sinks = append(o.sinks, s)
	}
}

func defaultOptions() options {
	return options{
		logHandler: noop.LogHandler{},
	}
}
