// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package noop holds the silent defaults components fall back to when the
// embedding program configures no logger or impression sink.
package noop

import (
	"context"
	"log/slog"
)

// LogHandler discards every record. It reports itself as disabled so callers
// skip building attributes entirely.
type LogHandler struct{}

func (LogHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (LogHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h LogHandler) WithAttrs(_ []slog.Attr) slog.Handler        { return h }
func (h LogHandler) WithGroup(name string) slog.Handler          { return h }

// Recorder drops every value handed to it. A Recorder[wire.Impression]
// is the sink a connection reports to when no impression sink is set.
type Recorder[T any] struct{}

// Record discards v.
func (Recorder[T]) Record(_ context.Context, _ T) {}
