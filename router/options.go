// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package router

import (
	"log/slog"

	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/session"
)

// Queues provides the dedicated named queues handlers can run on.
// [*queue.Registry] implements it.
type Queues interface {
	Get(name string) *queue.Queue
}

type options struct {
	logHandler slog.Handler
	sessions   session.Strategy
	queues     Queues
	root       string
}

// Option configures a [Router].
type Option func(*options)

// LogHandler
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = otelslog.NewHandler(h)
	}
}

// Sessions sets the session strategy every routed request is bound with.
// The default binds no sessions.
func Sessions(s session.Strategy) Option {
	return func(o *options) {
		o.sessions = s
	}
}

// WithQueues enables dedicated handler queues.
func WithQueues(q Queues) Option {
	return func(o *options) {
		o.queues = q
	}
}

// Root is the default filesystem root of configured handlers.
func Root(dir string) Option {
	return func(o *options) {
		o.root = dir
	}
}

func defaultOptions() options {
	return options{
		logHandler: noop.LogHandler{},
		sessions:   session.None{},
	}
}
