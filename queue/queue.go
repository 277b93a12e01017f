// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package queue provides the bounded transaction queues which connections are
// scheduled onto.
//
// A [Queue] owns a fixed-capacity backlog and a capped set of long-lived
// workers. Submission never blocks: [Queue.Enqueue] either accepts the task,
// in which case it will run, or rejects it without side effects.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/z5labs/anvil/internal/ioerr"
	"github.com/z5labs/anvil/internal/try"
	"github.com/z5labs/anvil/pkg/slogfield"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDepth   = 64
	DefaultThreads = 16
)

const instrumentationName = "github.com/z5labs/anvil/queue"

// Task is one unit of work, typically "service one HTTP transaction".
type Task interface {
	Service(context.Context) error
}

// TaskFunc is a func variant of the [Task] interface.
type TaskFunc func(context.Context) error

// Service implements the [Task] interface.
func (f TaskFunc) Service(ctx context.Context) error {
	return f(ctx)
}

// ErrorListener is notified of every error, including recovered panics,
// which escapes [Task.Service].
type ErrorListener interface {
	UncaughtError(ctx context.Context, queue string, err error)
}

// ErrorListenerFunc is a func variant of the [ErrorListener] interface.
type ErrorListenerFunc func(context.Context, string, error)

// UncaughtError implements the [ErrorListener] interface.
func (f ErrorListenerFunc) UncaughtError(ctx context.Context, queue string, err error) {
	f(ctx, queue, err)
}

// Queue is a named, bounded work queue serviced by a capped worker pool.
type Queue struct {
	name       string
	log        *slog.Logger
	tracer     trace.Tracer
	maxThreads int

	// mu guards closed and the send side of tasks so Enqueue never
	// races the channel close in Shutdown.
	mu     sync.RWMutex
	closed bool
	tasks  chan Task

	spawnMu sync.Mutex
	threads atomic.Int64
	idle    atomic.Int64
	workers errgroup.Group

	listenersMu sync.RWMutex
	listeners   []ErrorListener

	ctx    context.Context
	cancel context.CancelFunc

	rejected metric.Int64Counter
	serviced metric.Int64Counter
	failed   metric.Int64Counter
}

// New returns a started, empty [Queue].
func New(name string, opts ...Option) *Queue {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:       name,
		log:        slog.New(o.logHandler).With(slogfield.Queue(name)),
		tracer:     otel.Tracer(instrumentationName),
		maxThreads: o.threads,
		tasks:      make(chan Task, o.depth),
		ctx:        ctx,
		cancel:     cancel,
	}
	q.listeners = append(q.listeners, logListener{log: q.log})
	q.listeners = append(q.listeners, o.listeners...)
	q.initMetrics()
	return q
}

func (q *Queue) initMetrics() {
	meter := otel.Meter(instrumentationName)
	q.rejected, _ = meter.Int64Counter(
		"anvil.queue.rejected",
		metric.WithDescription("Tasks refused because the queue was full or shut down."),
	)
	q.serviced, _ = meter.Int64Counter(
		"anvil.queue.serviced",
		metric.WithDescription("Tasks which ran to completion."),
	)
	q.failed, _ = meter.Int64Counter(
		"anvil.queue.failed",
		metric.WithDescription("Tasks which returned an error or panicked."),
	)
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Size returns the number of tasks waiting for a worker.
func (q *Queue) Size() int {
	return len(q.tasks)
}

// Depth returns the maximum number of waiting tasks.
func (q *Queue) Depth() int {
	return cap(q.tasks)
}

// Threads returns the number of live workers.
func (q *Queue) Threads() int {
	return int(q.threads.Load())
}

// MaxThreads returns the worker cap.
func (q *Queue) MaxThreads() int {
	return q.maxThreads
}

// AddListener registers l for uncaught task errors.
func (q *Queue) AddListener(l ErrorListener) {
	q.listenersMu.Lock()
	defer q.listenersMu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Enqueue schedules t. It returns false, leaving t untouched, when the
// backlog is at capacity or the queue has been shut down; the caller
// then owns t and must cancel it.
func (q *Queue) Enqueue(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	attrs := metric.WithAttributes(attribute.String("queue", q.name))
	if q.closed {
		q.rejected.Add(q.ctx, 1, attrs)
		return false
	}

	select {
	case q.tasks <- t:
	default:
		q.rejected.Add(q.ctx, 1, attrs)
		return false
	}

	q.maybeSpawn()
	return true
}

func (q *Queue) maybeSpawn() {
	if int64(len(q.tasks)) <= q.idle.Load() {
		return
	}

	q.spawnMu.Lock()
	defer q.spawnMu.Unlock()
	if q.threads.Load() >= int64(q.maxThreads) {
		return
	}
	q.spawn()
}

// spawn must be called with spawnMu held.
func (q *Queue) spawn() {
	q.threads.Add(1)
	q.idle.Add(1)
	q.workers.Go(q.work)
}

func (q *Queue) work() error {
	defer q.threads.Add(-1)
	defer q.idle.Add(-1)

	for t := range q.tasks {
		q.idle.Add(-1)
		q.service(t)
		q.idle.Add(1)
	}
	return nil
}

func (q *Queue) service(t Task) {
	spanCtx, span := q.tracer.Start(
		q.ctx,
		"Queue.service",
		trace.WithAttributes(attribute.String("queue", q.name)),
	)
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("queue", q.name))
	err := run(spanCtx, t)
	if err == nil {
		q.serviced.Add(spanCtx, 1, attrs)
		return
	}

	q.failed.Add(spanCtx, 1, attrs)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	q.report(spanCtx, err)
}

func run(ctx context.Context, t Task) (err error) {
	defer try.Recover(&err)
	return t.Service(ctx)
}

func (q *Queue) report(ctx context.Context, err error) {
	q.listenersMu.RLock()
	listeners := q.listeners
	q.listenersMu.RUnlock()

	for _, l := range listeners {
		notify(ctx, l, q.name, err)
	}
}

// notify isolates the worker from a misbehaving listener.
func notify(ctx context.Context, l ErrorListener, name string, err error) {
	defer func() {
		_ = recover()
	}()
	l.UncaughtError(ctx, name, err)
}

type logListener struct {
	log *slog.Logger
}

func (l logListener) UncaughtError(ctx context.Context, _ string, err error) {
	if ioerr.IsIO(err) {
		l.log.InfoContext(ctx, "transaction ended with i/o error", slogfield.Error(err))
		return
	}
	var perr try.PanicError
	if errors.As(err, &perr) {
		l.log.ErrorContext(ctx, "transaction panicked", slogfield.Error(err), slogfield.String("stack", string(perr.Stack)))
		return
	}
	l.log.ErrorContext(ctx, "uncaught error servicing transaction", slogfield.Error(err))
}

// Shutdown stops accepting tasks and waits for every accepted task to run.
// If ctx is done first the context handed to still running tasks is
// cancelled and ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)

	q.spawnMu.Lock()
	if q.threads.Load() == 0 && len(q.tasks) > 0 {
		q.spawn()
	}
	q.spawnMu.Unlock()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.workers.Wait()
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}
