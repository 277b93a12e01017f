// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acceptor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Tracker counts open sockets. Counting happens under a dedicated lock on
// the accept and close paths while listeners are notified from [Tracker.Run],
// so slow listeners never stall a worker. A nil *Tracker counts nothing.
type Tracker struct {
	mu        sync.Mutex
	open      int64
	idle      chan struct{}
	changed   chan struct{}
	listeners []func(int64)
}

// NewTracker returns a [Tracker] with zero open sockets and registers an
// observable gauge reporting the count.
func NewTracker() *Tracker {
	idle := make(chan struct{})
	close(idle)
	t := &Tracker{
		idle:    idle,
		changed: make(chan struct{}, 1),
	}

	meter := otel.Meter(instrumentationName)
	_, _ = meter.Int64ObservableGauge(
		"anvil.sockets.open",
		metric.WithDescription("Accepted sockets not yet closed."),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(t.Open())
			return nil
		}),
	)
	return t
}

// Open returns the number of open sockets.
func (t *Tracker) Open() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// OnChange registers f to be called with the new count after changes.
// Notifications are coalesced so f may not see every intermediate value.
func (t *Tracker) OnChange(f func(int64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, f)
}

func (t *Tracker) opened() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.open == 0 {
		t.idle = make(chan struct{})
	}
	t.open++
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) closed() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.open--
	if t.open == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) notify() {
	select {
	case t.changed <- struct{}{}:
	default:
	}
}

// Run delivers change notifications until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.changed:
		}

		t.mu.Lock()
		n := t.open
		listeners := t.listeners
		t.mu.Unlock()

		for _, f := range listeners {
			f(n)
		}
	}
}

// WaitZero blocks until no socket is open or ctx is done.
func (t *Tracker) WaitZero(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for {
		t.mu.Lock()
		if t.open == 0 {
			t.mu.Unlock()
			return nil
		}
		idle := t.idle
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}
