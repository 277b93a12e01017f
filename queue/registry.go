// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package queue

import (
	"context"
	"errors"
	"sync"
)

// Registry owns a set of named queues. Queues are created lazily on first
// lookup using the options registered for that name, falling back to the
// registry defaults.
type Registry struct {
	defaults []Option

	mu      sync.Mutex
	options map[string][]Option
	queues  map[string]*Queue
	order   []string
}

// NewRegistry returns an empty [Registry]. The given options apply to every
// queue it creates, before any per-name options.
func NewRegistry(defaults ...Option) *Registry {
	return &Registry{
		defaults: defaults,
		options:  make(map[string][]Option),
		queues:   make(map[string]*Queue),
	}
}

// Configure records options for the named queue. It has no effect on a queue
// which has already been created.
func (r *Registry) Configure(name string, opts ...Option) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.options[name] = append(r.options[name], opts...)
}

// Get returns the named queue, creating it if needed.
func (r *Registry) Get(name string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if ok {
		return q
	}

	opts := make([]Option, 0, len(r.defaults)+len(r.options[name]))
	opts = append(opts, r.defaults...)
	opts = append(opts, r.options[name]...)
	q = New(name, opts...)
	r.queues[name] = q
	r.order = append(r.order, name)
	return q
}

// Lookup returns the named queue only if it was already created.
func (r *Registry) Lookup(name string) (*Queue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[name]
	return q, ok
}

// Names returns the created queue names in creation order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Shutdown shuts every created queue down, concurrently, and joins their errors.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	queues := make([]*Queue, 0, len(r.order))
	for _, name := range r.order {
		queues = append(queues, r.queues[name])
	}
	r.mu.Unlock()

	errs := make([]error, len(queues))
	var wg sync.WaitGroup
	for i, q := range queues {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = q.Shutdown(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
