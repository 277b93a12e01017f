// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/z5labs/anvil/internal/try"
	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/pkg/slogfield"
)

// ErrPoolClosed is returned by [Pool.Acquire] after [Pool.Close].
var ErrPoolClosed = errors.New("handler: pool closed")

// Instance is a [Handler] checked out of a [Pool].
type Instance struct {
	Handler

	pool  *Pool
	gen   uint64
	users atomic.Int64

	retired   atomic.Bool
	destroyed atomic.Bool
}

// PoolOption configures a [Pool].
type PoolOption func(*Pool)

// PoolLogHandler
func PoolLogHandler(h slog.Handler) PoolOption {
	return func(p *Pool) {
		p.log = slog.New(otelslog.NewHandler(h))
	}
}

// Queue names the dedicated queue requests for this pool run on.
func Queue(name string) PoolOption {
	return func(p *Pool) {
		p.queue = name
	}
}

// Pool hands out instances of one configured handler. A handler marked
// [SingleThreaded] gets a stack of exclusively owned instances, every
// other handler a single shared one. Instances are created on first
// acquire.
type Pool struct {
	name  string
	queue string
	log   *slog.Logger

	mu       sync.Mutex
	factory  Factory
	cfg      Config
	gen      uint64
	mode     poolMode
	shared   *Instance
	stack    []*Instance
	selector QueueSelector
	closed   bool

	created atomic.Int64
	inUse   atomic.Int64
}

type poolMode int

const (
	modeUnknown poolMode = iota
	modeSingle
	modeStack
)

// NewPool returns an empty [Pool].
func NewPool(name string, factory Factory, cfg Config, opts ...PoolOption) *Pool {
	if cfg.Name == "" {
		cfg.Name = name
	}
	p := &Pool{
		name:    name,
		log:     slog.New(noop.LogHandler{}),
		factory: factory,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the registered handler name.
func (p *Pool) Name() string {
	return p.name
}

// QueueName returns the dedicated queue for this pool, if any.
func (p *Pool) QueueName() string {
	return p.queue
}

// Config returns the current handler configuration.
func (p *Pool) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SingleInstance reports whether the pool shares one instance. It is only
// known once the first instance was created.
func (p *Pool) SingleInstance() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode == modeSingle
}

// Created returns how many instances were ever constructed.
func (p *Pool) Created() int64 {
	return p.created.Load()
}

// InUse returns how many acquisitions are outstanding.
func (p *Pool) InUse() int64 {
	return p.inUse.Load()
}

// Idle returns how many stacked instances are waiting to be reused.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stack)
}

// SelectQueue names the queue req should run on. A handler implementing
// [QueueSelector] decides once its first instance exists, otherwise the
// pool's configured queue is used. SelectQueue may run concurrently with
// requests on the same instance.
func (p *Pool) SelectQueue(req Request) string {
	p.mu.Lock()
	sel := p.selector
	p.mu.Unlock()
	if sel != nil {
		if name := sel.SelectQueue(req); name != "" {
			return name
		}
	}
	return p.queue
}

// Acquire returns an instance to serve one request with. Every successful
// Acquire must be followed by exactly one [Pool.Release].
func (p *Pool) Acquire() (*Instance, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	switch p.mode {
	case modeSingle:
		inst := p.shared
		inst.users.Add(1)
		p.mu.Unlock()
		p.inUse.Add(1)
		return inst, nil
	case modeStack:
		if n := len(p.stack); n > 0 {
			inst := p.stack[n-1]
			p.stack[n-1] = nil
			p.stack = p.stack[:n-1]
			inst.users.Add(1)
			p.mu.Unlock()
			p.inUse.Add(1)
			return inst, nil
		}
		factory, cfg, gen := p.factory, p.cfg, p.gen
		p.mu.Unlock()
		return p.construct(factory, cfg, gen)
	default:
		// the first instance decides the mode, so it is built under the lock
		defer p.mu.Unlock()
		inst, err := p.newInstance(p.factory, p.cfg, p.gen)
		if err != nil {
			return nil, err
		}
		p.mode = modeStack
		p.selector, _ = inst.Handler.(QueueSelector)
		if _, ok := inst.Handler.(SingleThreaded); !ok {
			p.mode = modeSingle
			p.shared = inst
		}
		inst.users.Add(1)
		p.inUse.Add(1)
		return inst, nil
	}
}

func (p *Pool) construct(factory Factory, cfg Config, gen uint64) (*Instance, error) {
	inst, err := p.newInstance(factory, cfg, gen)
	if err != nil {
		return nil, err
	}
	inst.users.Add(1)
	p.inUse.Add(1)
	return inst, nil
}

func (p *Pool) newInstance(factory Factory, cfg Config, gen uint64) (inst *Instance, err error) {
	defer try.Recover(&err)

	h := factory()
	if err := h.Init(cfg); err != nil {
		return nil, err
	}
	p.created.Add(1)
	return &Instance{Handler: h, pool: p, gen: gen}, nil
}

// Release returns an instance acquired from this pool. Instances from an
// older configuration, or released after [Pool.Close], are destroyed.
func (p *Pool) Release(inst *Instance) {
	if inst == nil {
		return
	}
	if inst.pool != p {
		p.log.Error("released instance belongs to another pool", slogfield.String("pool", p.name))
		return
	}
	if inst.users.Add(-1) < 0 {
		inst.users.Add(1)
		p.log.Error("instance released more often than acquired", slogfield.String("pool", p.name))
		return
	}
	p.inUse.Add(-1)

	p.mu.Lock()
	stale := p.closed || inst.gen != p.gen || inst.retired.Load()
	if stale {
		p.mu.Unlock()
		if inst.users.Load() == 0 {
			p.destroy(inst)
		}
		return
	}
	if p.mode == modeStack {
		p.stack = append(p.stack, inst)
	}
	p.mu.Unlock()
}

// Preload acquires and releases once so the first instance is created and
// initialized before any request arrives.
func (p *Pool) Preload() error {
	inst, err := p.Acquire()
	if err != nil {
		return err
	}
	p.Release(inst)
	return nil
}

// Reconfigure switches the pool to a new factory and configuration. Idle
// instances are destroyed now and in-flight ones when they are released.
func (p *Pool) Reconfigure(factory Factory, cfg Config) {
	if cfg.Name == "" {
		cfg.Name = p.name
	}

	p.mu.Lock()
	p.factory = factory
	p.cfg = cfg
	p.gen++
	idle := p.retireLocked()
	p.mu.Unlock()

	for _, inst := range idle {
		p.destroy(inst)
	}
}

// Close destroys every idle instance. Instances still in use are destroyed
// when released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.retireLocked()
	p.mu.Unlock()

	for _, inst := range idle {
		p.destroy(inst)
	}
}

// retireLocked detaches every pooled instance and returns those no request
// is using.
func (p *Pool) retireLocked() []*Instance {
	var idle []*Instance
	if p.shared != nil {
		p.shared.retired.Store(true)
		if p.shared.users.Load() == 0 {
			idle = append(idle, p.shared)
		}
		p.shared = nil
	}
	idle = append(idle, p.stack...)
	p.stack = nil
	p.selector = nil
	p.mode = modeUnknown
	return idle
}

func (p *Pool) destroy(inst *Instance) {
	if !inst.destroyed.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("handler destroy panicked", slogfield.String("pool", p.name), slogfield.Any("panic", r))
		}
	}()
	inst.Destroy()
}
