// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package ioerr classifies socket errors.
package ioerr

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// IsIO reports whether err originated from an I/O operation.
func IsIO(err error) bool {
	if err == nil {
		return false
	}
	if IsTransient(err) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe)
}

// IsTransient reports whether err is the kind of failure expected under
// normal client behaviour: the peer went away or stopped talking.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
