// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package maskslog redacts sensitive attributes before records reach
// the wrapped [slog.Handler].
package maskslog

import (
	"context"
	"log/slog"
)

// Masker rewrites the value of a sensitive attribute.
type Masker func(slog.Value) slog.Value

// Redact replaces any value with "****".
func Redact(slog.Value) slog.Value {
	return slog.StringValue("****")
}

// Prefix keeps the first n bytes of a string value and redacts the rest.
// Non string values are fully redacted.
func Prefix(n int) Masker {
	return func(v slog.Value) slog.Value {
		if v.Kind() != slog.KindString {
			return Redact(v)
		}
		s := v.String()
		if len(s) <= n {
			return slog.StringValue(s)
		}
		return slog.StringValue(s[:n] + "****")
	}
}

// Option configures a [Handler].
type Option func(*Handler)

// Key masks every attribute named key, including attributes nested in
// groups.
func Key(key string, m Masker) Option {
	return func(h *Handler) {
		h.maskers[key] = m
	}
}

// Handler is a [slog.Handler] which masks attributes by key.
type Handler struct {
	next    slog.Handler
	maskers map[string]Masker
}

// NewHandler returns a new [Handler] wrapping h.
func NewHandler(h slog.Handler, opts ...Option) *Handler {
	mh := &Handler{
		next:    h,
		maskers: make(map[string]Masker),
	}
	for _, opt := range opts {
		opt(mh)
	}
	return mh
}

// Enabled implements the [slog.Handler] interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

// Handle implements the [slog.Handler] interface.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if len(h.maskers) == 0 {
		return h.next.Handle(ctx, r)
	}

	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.mask(a))
		return true
	})
	return h.next.Handle(ctx, nr)
}

// WithAttrs implements the [slog.Handler] interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(a)
	}
	return &Handler{
		next:    h.next.WithAttrs(masked),
		maskers: h.maskers,
	}
}

// WithGroup implements the [slog.Handler] interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		next:    h.next.WithGroup(name),
		maskers: h.maskers,
	}
}

func (h *Handler) mask(a slog.Attr) slog.Attr {
	if m, ok := h.maskers[a.Key]; ok {
		return slog.Attr{Key: a.Key, Value: m(a.Value.Resolve())}
	}
	if a.Value.Kind() != slog.KindGroup {
		return a
	}

	group := a.Value.Group()
	masked := make([]slog.Attr, len(group))
	for i, ga := range group {
		masked[i] = h.mask(ga)
	}
	return slog.Attr{Key: a.Key, Value: slog.GroupValue(masked...)}
}
