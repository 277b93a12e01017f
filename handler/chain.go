// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/z5labs/anvil/internal/ioerr"
	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/wire"
)

// ChainState tracks how far a [Chain] got.
type ChainState int

const (
	Idle ChainState = iota
	Filtering
	Dispatched
	Completed
	Failed
)

func (s ChainState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Filtering:
		return "Filtering"
	case Dispatched:
		return "Dispatched"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "ChainState(" + strconv.Itoa(int(s)) + ")"
	}
}

// Chain runs an ordered list of filters followed by a pooled handler. A
// Chain is used for exactly one request.
type Chain struct {
	log     *slog.Logger
	filters []Filter
	pool    *Pool

	index int
	state ChainState
}

// NewChain returns a chain which ends in an instance from pool.
func NewChain(filters []Filter, pool *Pool, log *slog.Logger) *Chain {
	if log == nil {
		log = slog.New(noop.LogHandler{})
	}
	return &Chain{
		log:     log,
		filters: filters,
		pool:    pool,
	}
}

// State returns the chain state.
func (c *Chain) State() ChainState {
	return c.state
}

// Proceed passes control to the next filter or, when every filter has run,
// to the handler. The handler instance is always released.
func (c *Chain) Proceed(ctx context.Context, req Request, resp Response) error {
	if c.index < len(c.filters) {
		f := c.filters[c.index]
		c.index++
		c.state = Filtering
		return f.DoFilter(ctx, req, resp, c)
	}

	c.state = Dispatched
	inst, err := c.pool.Acquire()
	if err != nil {
		return err
	}
	defer c.pool.Release(inst)

	return inst.Serve(ctx, req, resp)
}

// Run executes the whole chain and maps any failure onto the response.
// Only failures of the transaction's own socket are returned; the caller
// must then cancel the connection. A panic is answered with 500 when
// possible and then propagated.
func (c *Chain) Run(ctx context.Context, req Request, resp Response) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.state = Failed
		c.log.ErrorContext(ctx, "panic while servicing request", slogfield.Request(req.Method(), req.URI()), slogfield.Any("panic", r))
		c.sendError(ctx, req, resp, http.StatusInternalServerError, "")
		panic(r)
	}()

	err = c.Proceed(ctx, req, resp)
	return c.complete(ctx, req, resp, err)
}

func (c *Chain) complete(ctx context.Context, req Request, resp Response, err error) error {
	if err == nil || errors.Is(err, ErrAbort) {
		c.state = Completed
		if err == nil && resp.Status() == 0 && !resp.Committed() {
			c.log.ErrorContext(ctx, "no status code set", slogfield.Request(req.Method(), req.URI()))
			c.sendError(ctx, req, resp, http.StatusInternalServerError, "")
		}
		return nil
	}

	c.state = Failed
	if wire.IsConnError(err) {
		return err
	}

	var uerr UnavailableError
	switch {
	case errors.As(err, &uerr):
		c.unavailable(ctx, req, resp, uerr)
	case ioerr.IsIO(err):
		c.log.ErrorContext(ctx, "unexpected i/o error", slogfield.Request(req.Method(), req.URI()), slogfield.Error(err))
		c.sendError(ctx, req, resp, http.StatusInternalServerError, "")
	default:
		c.log.ErrorContext(
			ctx,
			"failed to service request",
			slogfield.Request(req.Method(), req.URI()),
			slogfield.Error(rootCause(err)),
		)
		c.sendError(ctx, req, resp, http.StatusInternalServerError, "")
	}
	return nil
}

func (c *Chain) unavailable(ctx context.Context, req Request, resp Response, uerr UnavailableError) {
	level := slog.LevelWarn
	if uerr.Permanent {
		level = slog.LevelError
	}
	c.log.Log(ctx, level, "handler unavailable", slogfield.Request(req.Method(), req.URI()), slogfield.Error(uerr))

	msg := "The service is temporarily unavailable."
	if uerr.Permanent {
		msg = "The service is unavailable."
	}
	if !resp.Committed() && uerr.RetryAfter > 0 {
		secs := int64(math.Ceil(uerr.RetryAfter.Seconds()))
		resp.SetHeader("Retry-After", strconv.FormatInt(secs, 10))
		msg = fmt.Sprintf("%s Retry in %d seconds.", msg, secs)
	}
	c.sendError(ctx, req, resp, http.StatusServiceUnavailable, msg)
}

// sendError writes an error page unless the response is already committed,
// in which case the failure is only logged.
func (c *Chain) sendError(ctx context.Context, req Request, resp Response, code int, msg string) {
	if resp.Committed() {
		c.log.WarnContext(
			ctx,
			"response already committed, can not send error",
			slogfield.Request(req.Method(), req.URI()),
			slogfield.Status(code),
		)
		return
	}
	err := resp.SendError(code, msg)
	if err != nil {
		c.log.DebugContext(ctx, "failed to send error response", slogfield.Status(code), slogfield.Error(err))
	}
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
