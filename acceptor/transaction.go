// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acceptor

import (
	"context"
	"errors"
	"io"

	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/wire"
)

// transaction parses and services one HTTP request on a socket.
type transaction struct {
	a    *Acceptor
	sock *Socket
}

func (a *Acceptor) transaction(s *Socket) queue.Task {
	return &transaction{a: a, sock: s}
}

func (t *transaction) Service(ctx context.Context) error {
	ctx = otelslog.WithPeer(ctx, t.sock.RemoteAddr())

	conn, err := wire.ReadRequest(ctx, t.sock, t.a.wireOpts...)
	if err != nil {
		return t.abandon(ctx, err)
	}
	defer conn.Cancel()

	// a recycled socket waited under the persistent timeout
	t.sock.SetReadTimeout(t.a.readTimeout)

	err = t.a.dispatcher.Service(ctx, conn)
	if wire.IsConnError(err) {
		// the client is gone or stalled so nothing more is written
		conn.Cancel()
		return nil
	}
	if cerr := conn.Close(); cerr != nil && err == nil && !wire.IsConnError(cerr) {
		err = cerr
	}
	return err
}

// abandon closes the socket without writing a byte.
func (t *transaction) abandon(ctx context.Context, err error) error {
	t.sock.Close()

	var perr wire.ProtocolError
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &perr):
		t.a.log.DebugContext(
			ctx,
			"dropping connection after protocol error",
			slogfield.Error(err),
		)
		return nil
	case wire.IsConnError(err):
		return nil
	default:
		return err
	}
}
