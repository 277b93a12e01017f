// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelslog provides a OpenTelemetry aware slog.Handler implementation
// which also tags records with the peer of the connection being serviced.
package otelslog

import (
	"context"
	"log/slog"
	"net"

	"github.com/z5labs/anvil/pkg/slogfield"

	"go.opentelemetry.io/otel/trace"
)

// Handler is an slog.Handler which correlates log records emitted while
// servicing a transaction with the span tracing that transaction.
type Handler struct {
	slog slog.Handler
}

type peerKey struct{}

// WithPeer returns a copy of ctx whose log records carry addr as the
// remote address of the connection being serviced.
func WithPeer(ctx context.Context, addr net.Addr) context.Context {
	return context.WithValue(ctx, peerKey{}, addr)
}

// NewHandler wraps h. Wrapping a *Handler again returns it unchanged.
func NewHandler(h slog.Handler) *Handler {
	if oh, ok := h.(*Handler); ok {
		return oh
	}
	return &Handler{slog: h}
}

// New provides a simple wrapper for slog.New(NewHandler(h)).
func New(h slog.Handler) *slog.Logger {
	return slog.New(NewHandler(h))
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	peer, hasPeer := ctx.Value(peerKey{}).(net.Addr)
	spanCtx := trace.SpanContextFromContext(ctx)
	if !hasPeer && !spanCtx.IsValid() {
		return h.slog.Handle(ctx, record)
	}

	r := record.Clone()
	if hasPeer {
		r.AddAttrs(slogfield.RemoteAddr(peer))
	}
	if spanCtx.IsValid() {
		r.AddAttrs(
			slog.Group(
				"otel",
				slogfield.String("trace_id", spanCtx.TraceID().String()),
				slogfield.String("span_id", spanCtx.SpanID().String()),
				slogfield.Bool("sampled", spanCtx.IsSampled()),
			),
		)
	}
	return h.slog.Handle(ctx, r)
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{slog: h.slog.WithAttrs(attrs)}
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{slog: h.slog.WithGroup(name)}
}
