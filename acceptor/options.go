// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acceptor

import (
	"log/slog"
	"time"

	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/wire"
)

const (
	DefaultReadTimeout       = 30 * time.Second
	DefaultPersistentTimeout = 15 * time.Second
)

type options struct {
	logHandler        slog.Handler
	tuning            Tuning
	readTimeout       time.Duration
	persistentTimeout time.Duration
	persistent        Enqueuer
	tracker           *Tracker
	wireOpts          []wire.Option
}

func defaultOptions() options {
	return options{
		logHandler:        noop.LogHandler{},
		tuning:            Tuning{NoDelay: true},
		readTimeout:       DefaultReadTimeout,
		persistentTimeout: DefaultPersistentTimeout,
	}
}

// Option configures an [Acceptor].
type Option func(*options)

// LogHandler
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = otelslog.NewHandler(h)
	}
}

// Tune sets the TCP options applied to every accepted socket.
func Tune(t Tuning) Option {
	return func(o *options) {
		o.tuning = t
	}
}

// ReadTimeout bounds each read on a newly accepted socket and on the body
// of every request.
func ReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

// PersistentTimeout bounds how long a recycled socket may sit idle waiting
// for its next request line.
func PersistentTimeout(d time.Duration) Option {
	return func(o *options) {
		o.persistentTimeout = d
	}
}

// PersistentQueue enables keep-alive. Sockets eligible for another
// transaction are resubmitted to q. Without it every socket is closed
// after one transaction.
func PersistentQueue(q Enqueuer) Option {
	return func(o *options) {
		o.persistent = q
	}
}

// TrackWith counts accepted sockets in t.
func TrackWith(t *Tracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WireOptions are passed to [wire.ReadRequest] for every transaction.
func WireOptions(opts ...wire.Option) Option {
	return func(o *options) {
		o.wireOpts = append(o.wireOpts, opts...)
	}
}
