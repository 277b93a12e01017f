// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import (
	"slices"
	"sync"
	"time"
)

// Session is server side state bound to a client by its id. Every method
// is safe for concurrent use; each session has its own lock.
type Session struct {
	id      string
	created time.Time
	events  *Events
	remove  func(string)

	mu          sync.Mutex
	lastAccess  time.Time
	maxInactive time.Duration
	attrs       map[string]any
	fresh       bool
	valid       bool
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// CreationTime returns when the session was created.
func (s *Session) CreationTime() time.Time {
	return s.created
}

// LastAccessed returns when a request last resolved this session.
func (s *Session) LastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// MaxInactive returns the idle time after which the session is invalidated.
// Zero means never.
func (s *Session) MaxInactive() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInactive
}

// SetMaxInactive overrides the idle limit for this session.
func (s *Session) SetMaxInactive(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxInactive = d
}

// IsNew reports whether the client has not yet returned the session id.
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fresh
}

// Valid reports whether the session has not been invalidated.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Attribute returns a session value.
func (s *Session) Attribute(name string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[name]
}

// AttributeNames returns the sorted attribute names.
func (s *Session) AttributeNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.attrs))
	for name := range s.attrs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// SetAttribute stores a session value. A nil value removes name.
func (s *Session) SetAttribute(name string, v any) {
	if v == nil {
		s.RemoveAttribute(name)
		return
	}

	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	old := s.attrs[name]
	s.attrs[name] = v
	s.mu.Unlock()

	s.events.attributeSet(AttributeEvent{Session: s, Name: name, Value: v, Old: old})
}

// RemoveAttribute deletes a session value.
func (s *Session) RemoveAttribute(name string) {
	s.mu.Lock()
	old, ok := s.attrs[name]
	delete(s.attrs, name)
	s.mu.Unlock()

	if ok {
		s.events.attributeRemoved(AttributeEvent{Session: s, Name: name, Old: old})
	}
}

// Invalidate discards the session and all its attributes.
func (s *Session) Invalidate() {
	if s.remove != nil {
		s.remove(s.id)
	}
	s.invalidate()
}

func (s *Session) invalidate() {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.valid = false
	attrs := s.attrs
	s.attrs = make(map[string]any)
	s.mu.Unlock()

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		s.events.attributeRemoved(AttributeEvent{Session: s, Name: name, Old: attrs[name]})
	}
	s.events.invalidated(s)
}

func (s *Session) access(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = now
	s.fresh = false
}

func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInactive > 0 && now.Sub(s.lastAccess) > s.maxInactive
}
