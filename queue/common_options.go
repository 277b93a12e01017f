// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"log/slog"

	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/otelslog"
)

type options struct {
	depth      int
	threads    int
	logHandler slog.Handler
	listeners  []ErrorListener
}

func defaultOptions() options {
	return options{
		depth:      DefaultDepth,
		threads:    DefaultThreads,
		logHandler: noop.LogHandler{},
	}
}

// Option configures a [Queue].
type Option func(*options)

// Depth caps the number of tasks waiting for a worker. It is independent of
// the thread count. Values below one are ignored.
func Depth(n int) Option {
	return func(o *options) {
		if n < 1 {
			return
		}
		o.depth = n
	}
}

// Threads caps the number of workers. Workers are started lazily as tasks
// arrive and live until shutdown. Negative values are ignored.
func Threads(n int) Option {
	return func(o *options) {
		if n < 0 {
			return
		}
		o.threads = n
	}
}

// LogHandler
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = otelslog.NewHandler(h)
	}
}

// Listener registers an [ErrorListener] at construction time.
func Listener(l ErrorListener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}
