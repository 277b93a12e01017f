// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"context"
	"time"
)

// Impression is the access record of one transaction.
type Impression struct {
	Method       string
	URI          string
	Proto        string
	Status       int
	BytesRead    int64
	BytesWritten int64
	Start        time.Time
	Duration     time.Duration
	RemoteAddr   string
	UserAgent    string
	Referer      string
	SessionID    string
	KeepAlive    bool
}

// ImpressionSink receives exactly one [Impression] per transaction.
type ImpressionSink interface {
	Record(context.Context, Impression)
}

// ImpressionSinkFunc is a func variant of the [ImpressionSink] interface.
type ImpressionSinkFunc func(context.Context, Impression)

// Record implements the [ImpressionSink] interface.
func (f ImpressionSinkFunc) Record(ctx context.Context, imp Impression) {
	f(ctx, imp)
}
