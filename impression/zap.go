// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package impression

import (
	"context"

	"github.com/z5labs/anvil/wire"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes impressions as JSON lines through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink returns a [ZapSink] writing through logger. A nil logger
// discards every impression.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

// NewZapFile returns a [ZapSink] appending JSON lines to the given paths.
// "stdout" and "stderr" are accepted as paths.
func NewZapFile(paths ...string) (*ZapSink, error) {
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:          "json",
		DisableCaller:     true,
		DisableStacktrace: true,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			MessageKey:     "msg",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
		},
		OutputPaths:      paths,
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapSink{logger: logger}, nil
}

// Record implements the [wire.ImpressionSink] interface.
func (s *ZapSink) Record(_ context.Context, imp wire.Impression) {
	s.logger.Info(
		"impression",
		zap.Time("start", imp.Start),
		zap.String("method", imp.Method),
		zap.String("uri", imp.URI),
		zap.String("proto", imp.Proto),
		zap.Int("status", imp.Status),
		zap.Int64("bytes_read", imp.BytesRead),
		zap.Int64("bytes_written", imp.BytesWritten),
		zap.Duration("duration", imp.Duration),
		zap.String("remote_addr", imp.RemoteAddr),
		zap.String("user_agent", imp.UserAgent),
		zap.String("referer", imp.Referer),
		zap.String("session_id", imp.SessionID),
		zap.Bool("keep_alive", imp.KeepAlive),
	)
}

// Sync flushes buffered impressions.
func (s *ZapSink) Sync() error {
	return s.logger.Sync()
}
