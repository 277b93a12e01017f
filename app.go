// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package anvil

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/anvil/internal/try"
	"github.com/z5labs/anvil/lifecycle"
)

// AppFunc is a func variant of the [App] interface.
type AppFunc func(context.Context) error

// Run implements the [App] interface.
func (f AppFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PanicError wraps a value recovered by [Recover] and [RecoverBuilder].
type PanicError = try.PanicError

// Recover wraps app with panic recovery. A recovered value is returned
// as a [PanicError].
func Recover(app App) App {
	return AppFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return app.Run(ctx)
	})
}

// RecoverBuilder wraps builder with panic recovery.
func RecoverBuilder[T any](builder AppBuilder[T]) AppBuilder[T] {
	return AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ App, err error) {
		defer try.Recover(&err)

		return builder.Build(ctx, cfg)
	})
}

// WithSignalNotifications cancels the context passed to app.Run once
// one of signals is received.
func WithSignalNotifications(app App, signals ...os.Signal) App {
	return AppFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// WithLifecycleHooks exposes life to app through its context and runs
// the registered post run hooks once app.Run returns, even if it panics.
func WithLifecycleHooks(app App, life *lifecycle.Context) App {
	return AppFunc(func(ctx context.Context) (err error) {
		defer func() {
			// hooks run before a panic keeps unwinding
			r := recover()
			err = errors.Join(err, life.PostRun().Run(context.WithoutCancel(ctx)))
			if r != nil {
				panic(r)
			}
		}()

		return app.Run(lifecycle.NewContext(ctx, life))
	})
}
