// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	t.Run("will resolve registered kinds", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterHandler("echo", func() Handler { return &testHandler{} })
		r.RegisterHandler("alpha", func() Handler { return &testHandler{} })
		r.RegisterFilter("noop", func() Filter {
			return FilterFunc(func(ctx context.Context, req Request, resp Response, c *Chain) error {
				return c.Proceed(ctx, req, resp)
			})
		})

		f, err := r.HandlerFactory("echo")
		if !assert.Nil(t, err) {
			return
		}
		if !assert.NotNil(t, f()) {
			return
		}

		filter, err := r.NewFilter("noop")
		if !assert.Nil(t, err) {
			return
		}
		if !assert.NotNil(t, filter) {
			return
		}

		if !assert.Equal(t, []string{"alpha", "echo"}, r.HandlerKinds()) {
			return
		}
		if !assert.Equal(t, []string{"noop"}, r.FilterKinds()) {
			return
		}
	})

	t.Run("if the kind is unknown", func(t *testing.T) {
		t.Run("will return a ConfigurationError", func(t *testing.T) {
			r := NewRegistry()

			_, err := r.HandlerFactory("missing")

			var cerr ConfigurationError
			if !assert.ErrorAs(t, err, &cerr) {
				return
			}
			if !assert.Equal(t, "handler", cerr.Kind) {
				return
			}
			if !assert.Equal(t, "missing", cerr.Name) {
				return
			}
			if !assert.True(t, errors.Is(err, ErrUnknownKind)) {
				return
			}

			_, err = r.NewFilter("missing")
			if !assert.ErrorIs(t, err, ErrUnknownKind) {
				return
			}
		})
	})
}
