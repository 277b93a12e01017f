// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package impression

import (
	"context"
	"log/slog"

	"github.com/z5labs/anvil/pkg/maskslog"
	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/wire"
)

// LogSink writes impressions as structured log records.
type LogSink struct {
	log   *slog.Logger
	level slog.Level
	mask  []maskslog.Option
}

// LogOption configures a [LogSink].
type LogOption func(*LogSink)

// Level sets the level impressions are logged at. The default is Info.
func Level(l slog.Level) LogOption {
	return func(s *LogSink) {
		s.level = l
	}
}

// Mask redacts the named impression fields, e.g. "session_id".
func Mask(fields ...string) LogOption {
	return func(s *LogSink) {
		for _, f := range fields {
			s.mask = append(s.mask, maskslog.Key(f, maskslog.Redact))
		}
	}
}

// NewLogSink returns a [LogSink] writing to h.
func NewLogSink(h slog.Handler, opts ...LogOption) *LogSink {
	s := &LogSink{
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.mask) > 0 {
		h = maskslog.NewHandler(h, s.mask...)
	}
	s.log = slog.New(otelslog.NewHandler(h))
	return s
}

// Record implements the [wire.ImpressionSink] interface.
func (s *LogSink) Record(ctx context.Context, imp wire.Impression) {
	if !s.log.Enabled(ctx, s.level) {
		return
	}
	s.log.LogAttrs(
		ctx,
		s.level,
		"impression",
		slogfield.Request(imp.Method, imp.URI),
		slogfield.String("proto", imp.Proto),
		slogfield.Status(imp.Status),
		slogfield.Int64("bytes_read", imp.BytesRead),
		slogfield.Int64("bytes_written", imp.BytesWritten),
		slogfield.Duration("duration", imp.Duration),
		slogfield.String("remote_addr", imp.RemoteAddr),
		slogfield.String("user_agent", imp.UserAgent),
		slogfield.String("referer", imp.Referer),
		slogfield.String("session_id", imp.SessionID),
		slogfield.Bool("keep_alive", imp.KeepAlive),
	)
}
