// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package impression provides the sinks access records are written to.
package impression

import (
	"context"

	"github.com/z5labs/anvil/wire"
)

// Multi returns a sink which records every impression to each of sinks
// in order.
func Multi(sinks ...wire.ImpressionSink) wire.ImpressionSink {
	flat := make(multi, 0, len(sinks))
	for _, s := range sinks {
		switch s := s.(type) {
		case nil:
		case multi:
			flat = append(flat, s...)
		default:
			flat = append(flat, s)
		}
	}
	return flat
}

type multi []wire.ImpressionSink

// Record implements the [wire.ImpressionSink] interface.
func (m multi) Record(ctx context.Context, imp wire.Impression) {
	for _, s := range m {
		s.Record(ctx, imp)
	}
}
