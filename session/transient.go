// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/url"
	"time"

	"github.com/z5labs/anvil/pkg/noop"
	"github.com/z5labs/anvil/pkg/otelslog"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/wire"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultCookieName    = "ANVILSESSIONID"
	DefaultCapacity      = 1024
	DefaultMaxInactive   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

type options struct {
	cookieName       string
	cookieVersion    int
	capacity         int
	maxInactive      time.Duration
	sweepInterval    time.Duration
	redirectOnCreate bool
	now              func() time.Time
	logHandler       slog.Handler
	events           *Events
}

// Option configures a [Transient] strategy.
type Option func(*options)

// CookieName names the cookie and query parameter carrying the session id.
func CookieName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.cookieName = name
		}
	}
}

// CookieVersion selects version 0 or version 1 session cookies.
func CookieVersion(v int) Option {
	return func(o *options) {
		o.cookieVersion = v
	}
}

// Capacity bounds the number of live sessions. When full, the least
// recently used session is evicted and invalidated.
func Capacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// MaxInactive sets the default idle limit of new sessions.
func MaxInactive(d time.Duration) Option {
	return func(o *options) {
		o.maxInactive = d
	}
}

// SweepInterval sets how often [Transient.Run] looks for idle sessions.
func SweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// RedirectOnCreate answers the request which created a session with a
// redirect to the same URI, so proxies routing on the cookie see it before
// the application does.
func RedirectOnCreate(enabled bool) Option {
	return func(o *options) {
		o.redirectOnCreate = enabled
	}
}

// Clock overrides the time source.
func Clock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEvents publishes session events to e.
func WithEvents(e *Events) Option {
	return func(o *options) {
		o.events = e
	}
}

// LogHandler
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = otelslog.NewHandler(h)
	}
}

// Transient keeps sessions in memory in a bounded recency cache.
type Transient struct {
	log    *slog.Logger
	cache  *lru.Cache[string, *Session]
	events *Events

	cookieName       string
	cookieVersion    int
	maxInactive      time.Duration
	sweepInterval    time.Duration
	redirectOnCreate bool
	now              func() time.Time
}

// NewTransient returns an empty [Transient] strategy.
func NewTransient(opts ...Option) (*Transient, error) {
	o := options{
		cookieName:    DefaultCookieName,
		capacity:      DefaultCapacity,
		maxInactive:   DefaultMaxInactive,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logHandler:    noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.events == nil {
		o.events = new(Events)
	}

	t := &Transient{
		log:              slog.New(o.logHandler),
		events:           o.events,
		cookieName:       o.cookieName,
		cookieVersion:    o.cookieVersion,
		maxInactive:      o.maxInactive,
		sweepInterval:    o.sweepInterval,
		redirectOnCreate: o.redirectOnCreate,
		now:              o.now,
	}

	cache, err := lru.NewWithEvict(o.capacity, func(_ string, s *Session) {
		s.invalidate()
	})
	if err != nil {
		return nil, err
	}
	t.cache = cache
	return t, nil
}

// Events returns the subscriber lists sessions publish to.
func (t *Transient) Events() *Events {
	return t.events
}

// Len returns the number of live sessions.
func (t *Transient) Len() int {
	return t.cache.Len()
}

// Lookup returns a live session by id without touching its access time.
func (t *Transient) Lookup(id string) (*Session, bool) {
	s, ok := t.cache.Peek(id)
	if !ok || !s.Valid() || s.expired(t.now()) {
		return nil, false
	}
	return s, true
}

// Run invalidates idle sessions every sweep interval until ctx is done.
func (t *Transient) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := t.Sweep()
			if n > 0 {
				t.log.DebugContext(ctx, "invalidated idle sessions", slogfield.Int("count", n))
			}
		}
	}
}

// Sweep invalidates every idle session and returns how many there were.
func (t *Transient) Sweep() int {
	now := t.now()
	n := 0
	for _, id := range t.cache.Keys() {
		s, ok := t.cache.Peek(id)
		if !ok || !s.expired(now) {
			continue
		}
		if t.cache.Remove(id) {
			n++
		}
	}
	return n
}

func (t *Transient) create() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	now := t.now()
	s := &Session{
		id:          id,
		created:     now,
		events:      t.events,
		remove:      func(id string) { t.cache.Remove(id) },
		lastAccess:  now,
		maxInactive: t.maxInactive,
		attrs:       make(map[string]any),
		fresh:       true,
		valid:       true,
	}
	t.cache.Add(id, s)
	t.events.sessionCreated(s)
	return s, nil
}

func newID() (string, error) {
	var b [18]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// CreateSupport implements the [Strategy] interface.
func (t *Transient) CreateSupport(x Exchange) Support {
	s := &transientSupport{
		t: t,
		x: x,
	}
	for _, c := range x.Cookies() {
		if c.Name == t.cookieName && c.Value != "" {
			s.requestedID = c.Value
			s.fromCookie = true
			return s
		}
	}
	if q, err := url.ParseQuery(x.Query()); err == nil {
		s.requestedID = q.Get(t.cookieName)
	}
	return s
}

type transientSupport struct {
	t *Transient
	x Exchange

	requestedID string
	fromCookie  bool
	resolved    bool
	session     *Session
}

func (s *transientSupport) Session(create bool) (*Session, error) {
	if s.session != nil && s.session.Valid() {
		return s.session, nil
	}
	s.session = nil

	if !s.resolved {
		s.resolved = true
		if sess := s.requested(); sess != nil {
			sess.access(s.t.now())
			s.session = sess
			s.x.SetSessionID(sess.ID())
			return sess, nil
		}
	}
	if !create {
		return nil, nil
	}

	sess, err := s.t.create()
	if err != nil {
		return nil, err
	}
	s.session = sess
	s.x.SetSessionID(sess.ID())

	err = s.x.AddCookie(&wire.Cookie{
		Name:     s.t.cookieName,
		Value:    sess.ID(),
		Version:  s.t.cookieVersion,
		Path:     "/",
		HTTPOnly: true,
	})
	if err != nil {
		return sess, err
	}
	if !s.t.redirectOnCreate {
		return sess, nil
	}
	if err := s.x.SendRedirect(s.x.URI()); err != nil {
		return sess, err
	}
	return sess, wire.ErrAbort
}

func (s *transientSupport) requested() *Session {
	if s.requestedID == "" {
		return nil
	}
	sess, ok := s.t.cache.Get(s.requestedID)
	if !ok || !sess.Valid() {
		return nil
	}
	if sess.expired(s.t.now()) {
		s.t.cache.Remove(s.requestedID)
		return nil
	}
	return sess
}

func (s *transientSupport) RequestedSessionID() string {
	return s.requestedID
}

func (s *transientSupport) RequestedSessionIDValid() bool {
	if s.requestedID == "" {
		return false
	}
	_, ok := s.t.Lookup(s.requestedID)
	return ok
}

func (s *transientSupport) RequestedSessionIDFromCookie() bool {
	return s.fromCookie
}
