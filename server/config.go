// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"time"

	"github.com/z5labs/anvil/acceptor"
	"github.com/z5labs/anvil/queue"
	"github.com/z5labs/anvil/router"
	"github.com/z5labs/anvil/session"
	"github.com/z5labs/anvil/wire"
)

// Names of the queues every engine creates.
const (
	NewQueue        = "new"
	PersistentQueue = "persistent"
)

const DefaultShutdownTimeout = 30 * time.Second

// Default queue depths. Every fresh connection passes through the new
// queue, while the persistent queue only holds keep-alive connections
// waiting for their next request.
const (
	DefaultNewQueueDepth        = 256
	DefaultPersistentQueueDepth = 32
)

// Config is the complete engine configuration.
type Config struct {
	// Listen holds the addresses to accept connections on, e.g. ":8080".
	Listen []string `config:"listen"`

	// Root is the default filesystem root of configured handlers.
	Root string `config:"root"`

	Socket      SocketConfig      `config:"socket"`
	Queues      QueuesConfig      `config:"queues"`
	Protocol    ProtocolConfig    `config:"protocol"`
	Session     SessionConfig     `config:"session"`
	Routes      router.Config     `config:"routes"`
	Impressions ImpressionsConfig `config:"impressions"`

	ShutdownTimeout time.Duration `config:"shutdown_timeout"`
}

// SocketConfig tunes accepted sockets.
type SocketConfig struct {
	NoDelay           *bool         `config:"no_delay"`
	ReadTimeout       time.Duration `config:"read_timeout"`
	PersistentTimeout time.Duration `config:"persistent_timeout"`
	SendBuffer        int           `config:"send_buffer"`
	RecvBuffer        int           `config:"recv_buffer"`

	// MaxOpen caps the sockets accepted per listener. Zero is unlimited.
	MaxOpen int `config:"max_open"`
}

// QueueConfig sizes one queue.
type QueueConfig struct {
	Depth   int  `config:"depth"`
	Threads *int `config:"threads"`
}

// QueuesConfig sizes the new and persistent connection queues and any
// dedicated handler queues by name.
type QueuesConfig struct {
	New        QueueConfig            `config:"new"`
	Persistent QueueConfig            `config:"persistent"`
	Handlers   map[string]QueueConfig `config:"handlers"`
}

// ProtocolConfig limits request parsing and shapes responses.
type ProtocolConfig struct {
	MaxLineLength    int    `config:"max_line_length"`
	MaxHeaders       int    `config:"max_headers"`
	SingleCookieMode bool   `config:"single_cookie_mode"`
	ServerName       string `config:"server_name"`
}

// SessionConfig enables the transient session strategy.
type SessionConfig struct {
	Enabled          bool          `config:"enabled"`
	CookieName       string        `config:"cookie_name"`
	CookieVersion    int           `config:"cookie_version"`
	Capacity         int           `config:"capacity"`
	MaxInactive      time.Duration `config:"max_inactive"`
	SweepInterval    time.Duration `config:"sweep_interval"`
	RedirectOnCreate bool          `config:"redirect_on_create"`
}

// Impression sink kinds.
const (
	SinkNone = "none"
	SinkLog  = "log"
	SinkZap  = "zap"
)

// ImpressionsConfig selects where access records go.
type ImpressionsConfig struct {
	// Sink is one of "none", "log" or "zap". The default is "log".
	Sink string `config:"sink"`

	// Path is the file the zap sink appends to. The default is stdout.
	Path string `config:"path"`

	// Metrics additionally records transaction metrics.
	Metrics bool `config:"metrics"`

	// Mask lists impression fields the log sink redacts, e.g. "session_id".
	Mask []string `config:"mask"`
}

func (q QueueConfig) options(depth, threads int) []queue.Option {
	if q.Depth > 0 {
		depth = q.Depth
	}
	if q.Threads != nil {
		threads = *q.Threads
	}
	return []queue.Option{queue.Depth(depth), queue.Threads(threads)}
}

func (s SocketConfig) tuning() acceptor.Tuning {
	return acceptor.Tuning{
		NoDelay:    s.NoDelay == nil || *s.NoDelay,
		SendBuffer: s.SendBuffer,
		RecvBuffer: s.RecvBuffer,
	}
}

func (s SocketConfig) readTimeout() time.Duration {
	if s.ReadTimeout > 0 {
		return s.ReadTimeout
	}
	return acceptor.DefaultReadTimeout
}

func (s SocketConfig) persistentTimeout() time.Duration {
	if s.PersistentTimeout > 0 {
		return s.PersistentTimeout
	}
	return acceptor.DefaultPersistentTimeout
}

func (p ProtocolConfig) wireOptions() []wire.Option {
	opts := []wire.Option{
		wire.SingleCookieMode(p.SingleCookieMode),
	}
	if p.MaxLineLength > 0 {
		opts = append(opts, wire.MaxLineLength(p.MaxLineLength))
	}
	if p.MaxHeaders > 0 {
		opts = append(opts, wire.MaxHeaders(p.MaxHeaders))
	}
	if p.ServerName != "" {
		opts = append(opts, wire.ServerName(p.ServerName))
	}
	return opts
}

func (s SessionConfig) options() []session.Option {
	var opts []session.Option
	if s.CookieName != "" {
		opts = append(opts, session.CookieName(s.CookieName))
	}
	if s.CookieVersion != 0 {
		opts = append(opts, session.CookieVersion(s.CookieVersion))
	}
	if s.Capacity > 0 {
		opts = append(opts, session.Capacity(s.Capacity))
	}
	if s.MaxInactive > 0 {
		opts = append(opts, session.MaxInactive(s.MaxInactive))
	}
	if s.SweepInterval > 0 {
		opts = append(opts, session.SweepInterval(s.SweepInterval))
	}
	if s.RedirectOnCreate {
		opts = append(opts, session.RedirectOnCreate(true))
	}
	return opts
}
