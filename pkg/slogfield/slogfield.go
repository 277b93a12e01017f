// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield provides the attribute constructors used across the engine
// so that log keys stay consistent between components.
package slogfield

import (
	"log/slog"
	"net"
	"time"
)

// Any returns an slog.Attr for the supplied value.
func Any(key string, value any) slog.Attr {
	return slog.Any(key, value)
}

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Strings returns an slog.Attr for a slice of strings.
func Strings(key string, values []string) slog.Attr {
	return slog.Any(key, values)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Int64 returns an slog.Attr for a int64.
func Int64(key string, n int64) slog.Attr {
	return slog.Int64(key, n)
}

// Uint64 returns an slog.Attr for a uint64.
func Uint64(key string, n uint64) slog.Attr {
	return slog.Uint64(key, n)
}

// Queue names the transaction queue a record relates to.
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// RemoteAddr returns an slog.Attr for the peer of a connection.
// A nil address is logged as an empty string.
func RemoteAddr(addr net.Addr) slog.Attr {
	if addr == nil {
		return slog.String("remote_addr", "")
	}
	return slog.String("remote_addr", addr.String())
}

// Request groups the method and URI of an HTTP transaction.
func Request(method, uri string) slog.Attr {
	return slog.Group(
		"request",
		slog.String("method", method),
		slog.String("uri", uri),
	)
}

// Status returns an slog.Attr for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int("status", code)
}
