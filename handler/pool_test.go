// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool_Acquire(t *testing.T) {
	t.Run("will share one instance for a handler which is not single threaded", func(t *testing.T) {
		var built []*testHandler
		p := NewPool("shared", func() Handler {
			h := &testHandler{}
			built = append(built, h)
			return h
		}, Config{})

		a, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		b, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Same(t, a, b) {
			return
		}
		if !assert.True(t, p.SingleInstance()) {
			return
		}
		if !assert.Equal(t, int64(2), p.InUse()) {
			return
		}
		p.Release(a)
		p.Release(b)

		if !assert.Len(t, built, 1) {
			return
		}
		if !assert.Equal(t, 1, built[0].inits) {
			return
		}
		if !assert.Equal(t, "shared", built[0].cfg.Name) {
			return
		}
		if !assert.Equal(t, int64(0), p.InUse()) {
			return
		}
	})

	t.Run("will hand out distinct instances to a single threaded handler", func(t *testing.T) {
		p := NewPool("stacked", func() Handler {
			return &singleThreadedHandler{}
		}, Config{})

		a, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		b, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		if !assert.NotSame(t, a, b) {
			return
		}
		if !assert.False(t, p.SingleInstance()) {
			return
		}

		p.Release(a)
		if !assert.Equal(t, 1, p.Idle()) {
			return
		}

		c, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Same(t, a, c) {
			return
		}
		if !assert.Equal(t, int64(2), p.Created()) {
			return
		}
	})

	t.Run("will never hand one single threaded instance to two holders at once", func(t *testing.T) {
		p := NewPool("exclusive", func() Handler {
			return &singleThreadedHandler{}
		}, Config{})

		const goroutines = 16
		const cycles = 200

		var (
			mu       sync.Mutex
			holders  = make(map[*Instance]int)
			overlaps atomic.Int64
			wg       sync.WaitGroup
		)
		for range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range cycles {
					inst, err := p.Acquire()
					if err != nil {
						overlaps.Add(1)
						return
					}

					mu.Lock()
					holders[inst]++
					if holders[inst] > 1 {
						overlaps.Add(1)
					}
					mu.Unlock()

					mu.Lock()
					holders[inst]--
					mu.Unlock()

					p.Release(inst)
				}
			}()
		}
		wg.Wait()

		if !assert.Equal(t, int64(0), overlaps.Load()) {
			return
		}
		if !assert.Equal(t, int64(0), p.InUse()) {
			return
		}
		if !assert.LessOrEqual(t, p.Created(), int64(goroutines)) {
			return
		}
	})

	t.Run("if init fails", func(t *testing.T) {
		t.Run("will return the error and leave the mode undecided", func(t *testing.T) {
			initErr := errors.New("failed to init")
			p := NewPool("broken", func() Handler {
				return &testHandler{initErr: initErr}
			}, Config{})

			_, err := p.Acquire()
			if !assert.ErrorIs(t, err, initErr) {
				return
			}
			if !assert.Equal(t, int64(0), p.Created()) {
				return
			}
			if !assert.Equal(t, int64(0), p.InUse()) {
				return
			}
		})
	})

	t.Run("if the factory panics", func(t *testing.T) {
		t.Run("will return the panic as an error", func(t *testing.T) {
			p := NewPool("panicky", func() Handler {
				panic("boom")
			}, Config{})

			_, err := p.Acquire()
			if !assert.Error(t, err) {
				return
			}
		})
	})

	t.Run("if the pool is closed", func(t *testing.T) {
		t.Run("will return ErrPoolClosed", func(t *testing.T) {
			p := NewPool("closed", func() Handler {
				return &testHandler{}
			}, Config{})
			p.Close()

			_, err := p.Acquire()
			if !assert.ErrorIs(t, err, ErrPoolClosed) {
				return
			}
		})
	})
}

func TestPool_Preload(t *testing.T) {
	t.Run("will create and initialize the first instance", func(t *testing.T) {
		h := &testHandler{}
		p := NewPool("preloaded", func() Handler { return h }, Config{})

		err := p.Preload()
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, 1, h.inits) {
			return
		}
		if !assert.Equal(t, int64(1), p.Created()) {
			return
		}
		if !assert.Equal(t, 0, h.destroyed) {
			return
		}
	})
}

func TestPool_Reconfigure(t *testing.T) {
	t.Run("will destroy idle instances immediately", func(t *testing.T) {
		old := &testHandler{}
		p := NewPool("reload", func() Handler { return old }, Config{})
		if !assert.Nil(t, p.Preload()) {
			return
		}

		next := &testHandler{}
		p.Reconfigure(func() Handler { return next }, Config{Params: map[string]string{"k": "v"}})
		if !assert.Equal(t, 1, old.destroyed) {
			return
		}

		inst, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		defer p.Release(inst)
		if !assert.Same(t, next, inst.Handler) {
			return
		}
		if !assert.Equal(t, "v", next.cfg.Param("k")) {
			return
		}
		if !assert.Equal(t, "reload", next.cfg.Name) {
			return
		}
	})

	t.Run("will destroy in flight instances once they are released", func(t *testing.T) {
		old := &singleThreadedHandler{}
		p := NewPool("reload", func() Handler { return old }, Config{})

		inst, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}

		p.Reconfigure(func() Handler { return &singleThreadedHandler{} }, Config{})
		if !assert.Equal(t, 0, old.destroyed) {
			return
		}

		p.Release(inst)
		if !assert.Equal(t, 1, old.destroyed) {
			return
		}
		if !assert.Equal(t, 0, p.Idle()) {
			return
		}
	})
}

func TestPool_Close(t *testing.T) {
	t.Run("will destroy every instance exactly once", func(t *testing.T) {
		var built []*singleThreadedHandler
		p := NewPool("closing", func() Handler {
			h := &singleThreadedHandler{}
			built = append(built, h)
			return h
		}, Config{})

		a, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		b, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		p.Release(a)

		p.Close()
		p.Close()
		p.Release(b)

		if !assert.Len(t, built, 2) {
			return
		}
		for _, h := range built {
			if !assert.Equal(t, 1, h.destroyed) {
				return
			}
		}
	})

	t.Run("will ignore an extra release", func(t *testing.T) {
		h := &testHandler{}
		p := NewPool("extra", func() Handler { return h }, Config{})

		inst, err := p.Acquire()
		if !assert.Nil(t, err) {
			return
		}
		p.Release(inst)
		p.Release(inst)

		if !assert.Equal(t, int64(0), p.InUse()) {
			return
		}
	})
}

type selectingHandler struct {
	testHandler
}

func (*selectingHandler) SelectQueue(req Request) string {
	if req.Method() == "POST" {
		return "writes"
	}
	return ""
}

func TestPool_SelectQueue(t *testing.T) {
	t.Run("will use the configured queue until an instance exists", func(t *testing.T) {
		p := NewPool("selecting", func() Handler { return &selectingHandler{} }, Config{}, Queue("default"))

		c, _ := newConn(t, "POST /x HTTP/1.1\r\nHost: h\r\nContent-Length: 0\r\n\r\n")
		req := NewRequest(c, Paths{}, nil)
		if !assert.Equal(t, "default", p.SelectQueue(req)) {
			return
		}

		if !assert.Nil(t, p.Preload()) {
			return
		}
		if !assert.Equal(t, "writes", p.SelectQueue(req)) {
			return
		}

		get, _ := newConn(t, getRequest)
		if !assert.Equal(t, "default", p.SelectQueue(NewRequest(get, Paths{}, nil))) {
			return
		}
	})
}
