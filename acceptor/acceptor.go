// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package acceptor accepts sockets and schedules their HTTP transactions
// onto transaction queues.
package acceptor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/z5labs/anvil/internal/ioerr"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/wire"
)

const instrumentationName = "github.com/z5labs/anvil/acceptor"

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Enqueuer is the submission side of a transaction queue.
type Enqueuer interface {
	Enqueue(queue.Task) bool
}

// Dispatcher services one parsed transaction. It must close or cancel
// the connection before returning.
type Dispatcher interface {
	Service(context.Context, *wire.Conn) error
}

// DispatcherFunc is a func variant of the [Dispatcher] interface.
type DispatcherFunc func(context.Context, *wire.Conn) error

// Service implements the [Dispatcher] interface.
func (f DispatcherFunc) Service(ctx context.Context, c *wire.Conn) error {
	return f(ctx, c)
}

// ErrRunning is returned by [Acceptor.Run] when it is already running.
var ErrRunning = errors.New("acceptor: already running")

// Acceptor owns a listening socket and submits every accepted connection to
// the new connection queue. A rejected submission closes the socket.
type Acceptor struct {
	log         *slog.Logger
	newQueue    Enqueuer
	dispatcher  Dispatcher
	tuning      Tuning
	tracker     *Tracker
	recycler    *Recycler
	wireOpts    []wire.Option
	readTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	running bool
	current *loop
}

// New returns an [Acceptor] which schedules transactions onto newQueue and
// dispatches them to d.
func New(newQueue Enqueuer, d Dispatcher, opts ...Option) *Acceptor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	a := &Acceptor{
		log:         slog.New(o.logHandler),
		newQueue:    newQueue,
		dispatcher:  d,
		tuning:      o.tuning,
		tracker:     o.tracker,
		readTimeout: o.readTimeout,
	}

	wireOpts := append([]wire.Option{wire.LogHandler(o.logHandler)}, o.wireOpts...)
	if o.persistent != nil {
		a.recycler = &Recycler{
			log:     a.log,
			queue:   o.persistent,
			timeout: o.persistentTimeout,
			task:    a.transaction,
		}
		wireOpts = append(wireOpts, wire.WithRecycler(a.recycler))
	}
	a.wireOpts = wireOpts
	return a
}

// Addr returns the address of the current listener, or nil.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	return a.current.ln.Addr()
}

// SetListener replaces the listening socket. The accept loop of the previous
// listener is stopped and the previous listener is returned, still open, so
// connections already queued on it can drain before the caller closes it.
func (a *Acceptor) SetListener(ln net.Listener) net.Listener {
	a.mu.Lock()
	old := a.current
	a.current = newLoop(ln)
	if a.running {
		go a.serve(a.ctx, a.current)
	}
	a.mu.Unlock()

	if old == nil {
		return nil
	}
	old.halt()
	return old.ln
}

// Run accepts connections until ctx is done and then closes the listener.
func (a *Acceptor) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrRunning
	}
	a.running = true
	a.ctx = ctx
	if a.current != nil {
		go a.serve(ctx, a.current)
	}
	a.mu.Unlock()

	<-ctx.Done()
	return a.Shutdown()
}

// Shutdown stops the accept loop and closes the current listener.
func (a *Acceptor) Shutdown() error {
	a.mu.Lock()
	cur := a.current
	a.current = nil
	a.running = false
	a.mu.Unlock()

	if cur == nil {
		return nil
	}
	cur.halt()
	err := cur.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

type loop struct {
	ln      net.Listener
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started bool
	mu      sync.Mutex
}

func newLoop(ln net.Listener) *loop {
	return &loop{
		ln:   ln,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (l *loop) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stop:
		return false
	default:
	}
	l.started = true
	return true
}

func (l *loop) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

// halt interrupts a blocked Accept through a past deadline when the
// listener supports one and waits for the loop to exit.
func (l *loop) halt() {
	l.once.Do(func() {
		l.mu.Lock()
		close(l.stop)
		started := l.started
		l.mu.Unlock()
		if !started {
			return
		}

		// without a deadline the loop exits on its next Accept, which
		// drops that socket unserved
		d, ok := l.ln.(interface{ SetDeadline(time.Time) error })
		if !ok {
			return
		}
		if err := d.SetDeadline(time.Unix(1, 0)); err != nil {
			return
		}
		<-l.done
		d.SetDeadline(time.Time{})
	})
}

func (a *Acceptor) serve(ctx context.Context, l *loop) {
	if !l.begin() {
		return
	}
	defer close(l.done)

	var delay time.Duration
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if l.stopped() {
				return
			}

			delay = nextDelay(delay)
			a.logAcceptError(ctx, err, delay)
			select {
			case <-l.stop:
				return
			case <-time.After(delay):
			}
			continue
		}

		if l.stopped() {
			c.Close()
			return
		}

		delay = 0
		a.submit(ctx, c)
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	d *= 2
	if d > maxAcceptDelay {
		return maxAcceptDelay
	}
	return d
}

func (a *Acceptor) logAcceptError(ctx context.Context, err error, delay time.Duration) {
	defer func() {
		_ = recover()
	}()

	if ioerr.IsTransient(err) {
		a.log.DebugContext(ctx, "transient accept error", slogfield.Error(err), slogfield.Duration("retry_in", delay))
		return
	}
	a.log.ErrorContext(ctx, "failed to accept connection", slogfield.Error(err), slogfield.Duration("retry_in", delay))
}

func (a *Acceptor) submit(ctx context.Context, c net.Conn) {
	if err := a.tuning.Apply(c); err != nil {
		a.log.DebugContext(ctx, "failed to apply socket options", slogfield.RemoteAddr(c.RemoteAddr()), slogfield.Error(err))
	}

	s := newSocket(c, a.tracker, a.readTimeout)
	if a.newQueue.Enqueue(a.transaction(s)) {
		return
	}

	a.log.DebugContext(ctx, "new connection queue full, closing socket", slogfield.RemoteAddr(c.RemoteAddr()))
	s.Close()
}
