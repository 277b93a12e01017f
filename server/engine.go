// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server wires the transaction queues, acceptors, router, session
// strategy and impression sinks into a runnable HTTP engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/z5labs/anvil/acceptor"
	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/handler/builtin"
	"github.com/z5labs/anvil/impression"
	"github.com/z5labs/anvil/lifecycle"
	"github.com/z5labs/anvil/pkg/health"
	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/router"
	"github.com/z5labs/anvil/session"
	"github.com/z5labs/anvil/wire"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// ErrNoListener is returned by [New] when neither an address nor a
// listener was configured.
var ErrNoListener = errors.New("server: no listener configured")

// ListenError reports an address which could not be bound.
type ListenError struct {
	Addr  string
	Cause error
}

// Error implements the [error] interface.
func (e ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %s", e.Addr, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ListenError) Unwrap() error {
	return e.Cause
}

// Engine is a configured HTTP server.
type Engine struct {
	log             *slog.Logger
	shutdownTimeout time.Duration

	queues    *queue.Registry
	tracker   *acceptor.Tracker
	router    *router.Router
	sessions  *session.Transient
	acceptors []*acceptor.Acceptor

	ready health.Binary
	life  lifecycle.Context
}

// New builds an engine from cfg. Listeners are bound immediately so
// [Engine.Addrs] is valid before [Engine.Run]. Route entries which fail to
// configure are logged and skipped.
func New(cfg Config, opts ...Option) (_ *Engine, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		log:             slog.New(otelslog.NewHandler(o.logHandler)),
		shutdownTimeout: cfg.ShutdownTimeout,
		tracker:         acceptor.NewTracker(),
	}
	if e.shutdownTimeout <= 0 {
		e.shutdownTimeout = DefaultShutdownTimeout
	}
	defer func() {
		if err == nil {
			return
		}
		err = errors.Join(err, e.life.PostRun().Run(context.Background()))
	}()

	e.queues = e.newQueues(cfg.Queues, o.logHandler)

	var strategy session.Strategy = session.None{}
	if cfg.Session.Enabled {
		sopts := append(cfg.Session.options(), session.LogHandler(o.logHandler))
		e.sessions, err = session.NewTransient(sopts...)
		if err != nil {
			return nil, err
		}
		strategy = e.sessions
	}

	registry := o.registry
	if registry == nil {
		registry = handler.NewRegistry()
	}
	builtin.Register(registry, &e.ready)

	e.router = router.New(
		registry,
		router.LogHandler(o.logHandler),
		router.Sessions(strategy),
		router.WithQueues(e.queues),
		router.Root(cfg.Root),
	)
	e.life.OnPostRun(lifecycle.HookFunc(func(context.Context) error {
		e.router.Close()
		return nil
	}))
	if err := e.router.Configure(cfg.Routes); err != nil {
		e.log.Warn("routes configured with errors", slogfield.Error(err))
	}

	sink, err := e.newSink(cfg.Impressions, o.logHandler, o.sinks)
	if err != nil {
		return nil, err
	}

	// hooks run in reverse, so queues drain before sinks sync and the
	// router closes
	e.life.OnPostRun(lifecycle.HookFunc(e.drainQueues))

	listeners, err := e.listen(cfg.Listen, cfg.Socket, o.listeners)
	if err != nil {
		return nil, err
	}

	wireOpts := append(
		cfg.Protocol.wireOptions(),
		wire.WithImpressionSink(sink),
		wire.LogHandler(o.logHandler),
	)
	for _, ln := range listeners {
		a := acceptor.New(
			e.queues.Get(NewQueue),
			e.router,
			acceptor.LogHandler(o.logHandler),
			acceptor.Tune(cfg.Socket.tuning()),
			acceptor.ReadTimeout(cfg.Socket.readTimeout()),
			acceptor.PersistentTimeout(cfg.Socket.persistentTimeout()),
			acceptor.PersistentQueue(e.queues.Get(PersistentQueue)),
			acceptor.TrackWith(e.tracker),
			acceptor.WireOptions(wireOpts...),
		)
		a.SetListener(ln)
		e.acceptors = append(e.acceptors, a)
	}
	return e, nil
}

func (e *Engine) newQueues(cfg QueuesConfig, h slog.Handler) *queue.Registry {
	queues := queue.NewRegistry(queue.LogHandler(h))
	queues.Configure(NewQueue, cfg.New.options(DefaultNewQueueDepth, queue.DefaultThreads)...)
	queues.Configure(PersistentQueue, cfg.Persistent.options(DefaultPersistentQueueDepth, queue.DefaultThreads)...)
	for name, qc := range cfg.Handlers {
		queues.Configure(name, qc.options(queue.DefaultDepth, queue.DefaultThreads)...)
	}
	queues.Get(NewQueue)
	queues.Get(PersistentQueue)
	return queues
}

func (e *Engine) newSink(cfg ImpressionsConfig, h slog.Handler, extra []wire.ImpressionSink) (wire.ImpressionSink, error) {
	var sinks []wire.ImpressionSink
	switch cfg.Sink {
	case "", SinkLog:
		sinks = append(sinks, impression.NewLogSink(h, impression.Mask(cfg.Mask...)))
	case SinkZap:
		path := cfg.Path
		if path == "" {
			path = "stdout"
		}
		zs, err := impression.NewZapFile(path)
		if err != nil {
			return nil, err
		}
		e.life.OnPostRun(lifecycle.HookFunc(func(context.Context) error {
			// stdout can not be synced on every platform
			zs.Sync()
			return nil
		}))
		sinks = append(sinks, zs)
	case SinkNone:
	default:
		return nil, fmt.Errorf("server: unknown impression sink: %q", cfg.Sink)
	}
	if cfg.Metrics {
		ms, err := impression.NewMetricSink()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ms)
	}
	sinks = append(sinks, extra...)
	return impression.Multi(sinks...), nil
}

// listen binds every address. The admission limit wraps the tuned
// listener since it hides the concrete connection type.
func (e *Engine) listen(addrs []string, cfg SocketConfig, bound []net.Listener) ([]net.Listener, error) {
	raw := make([]net.Listener, 0, len(addrs)+len(bound))
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range raw {
				l.Close()
			}
			return nil, ListenError{Addr: addr, Cause: err}
		}
		raw = append(raw, ln)
	}
	raw = append(raw, bound...)
	if len(raw) == 0 {
		return nil, ErrNoListener
	}

	listeners := make([]net.Listener, 0, len(raw))
	for _, ln := range raw {
		ln = acceptor.TunedListener(ln, cfg.tuning())
		if cfg.MaxOpen > 0 {
			ln = netutil.LimitListener(ln, cfg.MaxOpen)
		}
		listeners = append(listeners, ln)
	}
	return listeners, nil
}

// Addrs returns the bound listener addresses.
func (e *Engine) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(e.acceptors))
	for _, a := range e.acceptors {
		if addr := a.Addr(); addr != nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// Router returns the engine router, e.g. to reconfigure routes.
func (e *Engine) Router() *router.Router {
	return e.router
}

// Tracker returns the open socket tracker.
func (e *Engine) Tracker() *acceptor.Tracker {
	return e.tracker
}

// Ready reports whether the engine is accepting connections.
func (e *Engine) Ready() health.Metric {
	return &e.ready
}

// Run serves until ctx is done and then drains. In-flight transactions
// get up to the shutdown timeout to finish.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer func() {
		hookCtx, cancel := context.WithTimeout(context.Background(), e.shutdownTimeout)
		defer cancel()
		err = errors.Join(err, e.life.PostRun().Run(hookCtx))
	}()

	e.ready.Set(true)
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range e.acceptors {
		g.Go(func() error {
			return a.Run(gctx)
		})
	}
	g.Go(func() error {
		return e.tracker.Run(gctx)
	})
	if e.sessions != nil {
		g.Go(func() error {
			return e.sessions.Run(gctx)
		})
	}

	e.log.InfoContext(ctx, "serving", slogfield.Strings("addrs", addrStrings(e.Addrs())))

	err = g.Wait()
	e.ready.Set(false)
	e.log.InfoContext(ctx, "shutting down", slogfield.Int64("open_sockets", e.tracker.Open()))
	return err
}

// drainQueues lets every accepted transaction finish and waits for the
// sockets they hold to close.
func (e *Engine) drainQueues(ctx context.Context) error {
	err := e.queues.Shutdown(ctx)
	if err != nil {
		return err
	}
	return e.tracker.WaitZero(ctx)
}

func addrStrings(addrs []net.Addr) []string {
	s := make([]string, len(addrs))
	for i, addr := range addrs {
		s[i] = addr.String()
	}
	return s
}
