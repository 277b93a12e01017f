// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/z5labs/anvil/wire"
)

// ErrAbort ends a chain successfully without writing anything else.
// Redirect on session creation returns it.
var ErrAbort = wire.ErrAbort

// ErrUnknownKind is the cause of a [ConfigurationError] for a kind no
// factory was registered under.
var ErrUnknownKind = errors.New("unknown kind")

// UnavailableError is returned by a handler which can not currently serve.
// It is answered with 503 and, when RetryAfter is set, a Retry-After header.
type UnavailableError struct {
	RetryAfter time.Duration
	Permanent  bool
	Cause      error
}

// Error implements the [builtin.error] interface.
func (e UnavailableError) Error() string {
	msg := "handler unavailable"
	if e.Permanent {
		msg = "handler permanently unavailable"
	}
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e UnavailableError) Unwrap() error {
	return e.Cause
}

// ConfigurationError reports a handler, filter or mapping which could not
// be configured. Configuration skips it and carries on with the rest.
type ConfigurationError struct {
	Kind  string
	Name  string
	Cause error
}

// Error implements the [builtin.error] interface.
func (e ConfigurationError) Error() string {
	return fmt.Sprintf("failed to configure %s %q: %s", e.Kind, e.Name, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigurationError) Unwrap() error {
	return e.Cause
}
