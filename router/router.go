// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package router maps request paths onto filter chains and handler pools.
//
// Routing state is an immutable snapshot. [Router.Configure] builds a
// complete new snapshot before publishing it, so in-flight requests never
// observe a partially applied configuration.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/handler/builtin"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/session"
	"github.com/z5labs/anvil/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/anvil/router"

// NotFoundName is the name of the pool behind the implicit "*" mapping.
const NotFoundName = "anvil.notfound"

// Router resolves requests to chains and runs them.
type Router struct {
	log      *slog.Logger
	tracer   trace.Tracer
	registry *handler.Registry
	sessions session.Strategy
	queues   Queues
	root     string
	notFound *handler.Pool

	// mu serializes Configure and Close.
	mu      sync.Mutex
	pools   map[string]*handler.Pool
	filters map[string]handler.Filter

	table atomic.Pointer[table]
}

// New returns a [Router] which answers every request with 404 until it
// is configured.
func New(registry *handler.Registry, opts ...Option) *Router {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := slog.New(o.logHandler)
	r := &Router{
		log:      log,
		tracer:   otel.Tracer(instrumentationName),
		registry: registry,
		sessions: o.sessions,
		queues:   o.queues,
		root:     o.root,
		notFound: handler.NewPool(NotFoundName, builtin.NewNotFound, handler.Config{}, handler.PoolLogHandler(o.logHandler)),
		pools:    make(map[string]*handler.Pool),
		filters:  make(map[string]handler.Filter),
	}

	t := newTable()
	t.addRoute(Pattern{raw: "*", shape: Any}, r.notFound)
	r.table.Store(t)
	return r
}

// Configure applies cfg. Handlers, filters and mappings which can not be
// configured are logged and skipped while the rest is applied. The skipped
// entries are returned as joined [handler.ConfigurationError]s.
func (r *Router) Configure(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	fail := func(kind, name string, cause error) {
		err := handler.ConfigurationError{Kind: kind, Name: name, Cause: cause}
		r.log.Error("skipping invalid configuration", slogfield.Error(err))
		errs = append(errs, err)
	}

	pools := make(map[string]*handler.Pool, len(cfg.Handlers))
	for _, hc := range cfg.Handlers {
		pool, err := r.configurePool(hc)
		if err != nil {
			fail("handler", hc.Name, err)
			continue
		}
		pools[hc.Name] = pool
	}

	filters := make(map[string]handler.Filter, len(cfg.Filters))
	ranks := make(map[string]int, len(cfg.Filters))
	for i, fc := range cfg.Filters {
		f, err := r.newFilter(fc)
		if err != nil {
			fail("filter", fc.Name, err)
			continue
		}
		filters[fc.Name] = f
		ranks[fc.Name] = i
	}

	t := newTable()
	var implicit []route
	for _, m := range cfg.Mappings {
		p, err := ParsePattern(m.Pattern)
		if err != nil {
			fail("mapping", m.Pattern, err)
			continue
		}
		pool, ok := pools[m.Handler]
		if !ok {
			fail("mapping", m.Pattern, fmt.Errorf("unknown handler: %q", m.Handler))
			continue
		}
		t.addRoute(p, pool)

		if p.shape == Prefix && len(p.prefix) > 1 && strings.HasSuffix(p.prefix, "/") {
			lit := strings.TrimSuffix(p.prefix, "/")
			implicit = append(implicit, route{pattern: Pattern{raw: lit, shape: Literal, prefix: lit}, pool: pool})
		}
	}
	for _, ir := range implicit {
		t.addImplicit(ir.pattern.prefix, ir.pool)
	}
	if !t.hasCatchAll() {
		t.addRoute(Pattern{raw: "*", shape: Any}, r.notFound)
	}

	for _, fm := range cfg.FilterMappings {
		p, err := ParsePattern(fm.Pattern)
		if err != nil {
			fail("filter mapping", fm.Pattern, err)
			continue
		}
		for _, name := range fm.Filters {
			f, ok := filters[name]
			if !ok {
				fail("filter mapping", fm.Pattern, fmt.Errorf("unknown filter: %q", name))
				continue
			}
			t.addFilter(p, name, f, ranks[name])
		}
	}
	t.seal()
	r.table.Store(t)

	for name, pool := range r.pools {
		if pools[name] != pool {
			pool.Close()
		}
	}
	for name, f := range r.filters {
		if filters[name] != f {
			destroyFilter(r.log, name, f)
		}
	}
	r.pools = pools
	r.filters = filters

	r.log.Info(
		"applied routing configuration",
		slogfield.Int("handlers", len(pools)),
		slogfield.Int("filters", len(filters)),
		slogfield.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

// configurePool reuses the pool of an existing handler with the same name
// and queue, so in-flight instances retire instead of leaking.
func (r *Router) configurePool(hc HandlerConfig) (*handler.Pool, error) {
	if hc.Name == "" {
		return nil, errors.New("missing name")
	}
	factory, err := r.registry.HandlerFactory(hc.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", handler.ErrUnknownKind, hc.Kind)
	}

	cfg := handler.Config{
		Name:   hc.Name,
		Params: hc.Params,
		Root:   hc.Root,
	}
	if cfg.Root == "" {
		cfg.Root = r.root
	}

	pool, ok := r.pools[hc.Name]
	if ok && pool.QueueName() == hc.Queue {
		pool.Reconfigure(factory, cfg)
	} else {
		pool = handler.NewPool(
			hc.Name,
			factory,
			cfg,
			handler.PoolLogHandler(r.log.Handler()),
			handler.Queue(hc.Queue),
		)
	}
	if !hc.Preload {
		return pool, nil
	}
	if err := pool.Preload(); err != nil {
		if !ok || pool != r.pools[hc.Name] {
			pool.Close()
		}
		return nil, err
	}
	return pool, nil
}

func (r *Router) newFilter(fc FilterConfig) (f handler.Filter, err error) {
	if fc.Name == "" {
		return nil, errors.New("missing name")
	}
	f, err = r.registry.NewFilter(fc.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", handler.ErrUnknownKind, fc.Kind)
	}
	err = f.Init(handler.Config{
		Name:   fc.Name,
		Params: fc.Params,
		Root:   r.root,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func destroyFilter(log *slog.Logger, name string, f handler.Filter) {
	defer func() {
		if v := recover(); v != nil {
			log.Error("filter destroy panicked", slogfield.String("filter", name), slogfield.Any("panic", v))
		}
	}()
	f.Destroy()
}

// Resolve returns the route for a decoded request path. Every path
// resolves since the table always holds a "*" mapping.
func (r *Router) Resolve(path string) Route {
	rt, ok := r.table.Load().resolve(path)
	if !ok {
		return Route{
			Pattern: Pattern{raw: "*", shape: Any},
			Pool:    r.notFound,
			Paths:   handler.Paths{Extra: path},
		}
	}
	return rt
}

// Pool returns the pool of a configured handler.
func (r *Router) Pool(name string) (*handler.Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[name]
	return p, ok
}

// Service routes one transaction. It implements the acceptor's Dispatcher.
func (r *Router) Service(ctx context.Context, c *wire.Conn) error {
	rt := r.Resolve(c.Path())

	spanCtx, span := r.tracer.Start(ctx, "Router.Service", trace.WithAttributes(
		attribute.String("http.method", c.Method()),
		attribute.String("http.path", c.Path()),
		attribute.String("anvil.pattern", rt.Pattern.String()),
		attribute.String("anvil.handler", rt.Pool.Name()),
	))
	defer span.End()

	support := r.sessions.CreateSupport(c)
	req := handler.NewRequest(c, rt.Paths, support)

	err := r.dispatch(spanCtx, rt, req, c)
	span.SetAttributes(attribute.Int("http.status_code", c.Status()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// dispatch runs the chain inline, or on the handler's dedicated queue while
// the calling worker waits so requests on one connection stay ordered.
func (r *Router) dispatch(ctx context.Context, rt Route, req handler.Request, resp handler.Response) error {
	chain := handler.NewChain(rt.Filters, rt.Pool, r.log)

	name := rt.Pool.SelectQueue(req)
	if name == "" || r.queues == nil {
		return chain.Run(ctx, req, resp)
	}

	var err error
	done := make(chan struct{})
	accepted := r.queues.Get(name).Enqueue(queue.TaskFunc(func(context.Context) error {
		defer close(done)
		err = chain.Run(ctx, req, resp)
		return nil
	}))
	if !accepted {
		r.log.WarnContext(
			ctx,
			"dedicated queue rejected request",
			slogfield.Queue(name),
			slogfield.Request(req.Method(), req.URI()),
		)
		return unavailable(resp)
	}
	<-done
	return err
}

func unavailable(resp handler.Response) error {
	err := resp.SendError(http.StatusServiceUnavailable, "")
	if wire.IsConnError(err) {
		return err
	}
	return nil
}

// Forward runs the chain resolved for uri in place of the current handler.
// The request keeps its attributes and session but reports the new URI.
func (r *Router) Forward(ctx context.Context, req handler.Request, resp handler.Response, uri string) error {
	if resp.Committed() {
		return wire.ErrCommitted
	}
	fwd, rt, err := r.redirect(req, uri)
	if err != nil {
		return err
	}
	return handler.NewChain(rt.Filters, rt.Pool, r.log).Proceed(ctx, fwd, resp)
}

// Include runs the chain resolved for uri and appends its body to resp.
// Status, header and cookie changes of the included chain are ignored.
func (r *Router) Include(ctx context.Context, req handler.Request, resp handler.Response, uri string) error {
	fwd, rt, err := r.redirect(req, uri)
	if err != nil {
		return err
	}
	return handler.NewChain(rt.Filters, rt.Pool, r.log).Proceed(ctx, fwd, handler.Include(resp))
}

func (r *Router) redirect(req handler.Request, uri string) (handler.Request, Route, error) {
	rawPath, query, _ := strings.Cut(uri, "?")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, Route{}, err
	}
	if !strings.HasPrefix(path, "/") {
		return nil, Route{}, fmt.Errorf("router: not an absolute path: %q", uri)
	}
	rt := r.Resolve(path)
	return handler.Forward(req, uri, path, query, rt.Paths), rt, nil
}

// Close destroys every pool and filter.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, pool := range r.pools {
		pool.Close()
	}
	for name, f := range r.filters {
		destroyFilter(r.log, name, f)
	}
	r.notFound.Close()
	clear(r.pools)
	clear(r.filters)
}
