// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acceptor

import (
	"log/slog"
	"time"

	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/wire"
)

// Recycler resubmits keep-alive sockets to the persistent connection queue
// under the persistent read timeout. A rejected submission closes the socket.
type Recycler struct {
	log     *slog.Logger
	queue   Enqueuer
	timeout time.Duration
	task    func(*Socket) queue.Task
}

// Recycle implements the [wire.Recycler] interface.
func (r *Recycler) Recycle(ws wire.Socket) {
	s, ok := ws.(*Socket)
	if !ok {
		ws.Close()
		return
	}

	s.SetReadTimeout(r.timeout)
	if r.queue.Enqueue(r.task(s)) {
		return
	}

	r.log.Debug("persistent connection queue full, closing socket", slogfield.RemoteAddr(s.RemoteAddr()))
	s.Close()
}
