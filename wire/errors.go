// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNoStatus is returned when a response is committed before a status
	// code has been set. It always indicates a handler bug.
	ErrNoStatus = errors.New("wire: no status supplied")

	// ErrCommitted is returned by response mutators once the status line
	// and headers have been written.
	ErrCommitted = errors.New("wire: response already committed")

	// ErrBodyTooLong is returned when more bytes are written than the
	// declared Content-Length.
	ErrBodyTooLong = errors.New("wire: response body exceeds content-length")

	// ErrClosed is returned when writing to a response whose output has
	// already been closed.
	ErrClosed = errors.New("wire: response output closed")

	// ErrAbort signals that the response has already been produced, for
	// example by a redirect, and the rest of the transaction must stop
	// without writing anything else. It is a successful outcome.
	ErrAbort = errors.New("wire: transaction aborted")
)

// ProtocolError is returned for requests which violate HTTP framing.
// The connection is dropped without a response.
type ProtocolError struct {
	Reason string
	Cause  error
}

// Error implements the [builtin.error] interface.
func (e ProtocolError) Error() string {
	if e.Cause == nil {
		return "wire: protocol error: " + e.Reason
	}
	return fmt.Sprintf("wire: protocol error: %s: %s", e.Reason, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ProtocolError) Unwrap() error {
	return e.Cause
}

// ConnError marks an I/O failure on the transaction's own socket.
type ConnError struct {
	Op  string
	Err error
}

// Error implements the [builtin.error] interface.
func (e ConnError) Error() string {
	return fmt.Sprintf("wire: %s: %s", e.Op, e.Err)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConnError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a deadline.
func (e ConnError) Timeout() bool {
	var nerr net.Error
	return errors.As(e.Err, &nerr) && nerr.Timeout()
}

// IsConnError reports whether err originated on a connection's own socket.
func IsConnError(err error) bool {
	var cerr ConnError
	return errors.As(err, &cerr)
}

func protocolError(reason string, cause error) error {
	return ProtocolError{Reason: reason, Cause: cause}
}
