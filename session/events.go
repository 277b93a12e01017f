// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package session

import "sync"

// AttributeEvent describes a session attribute change.
type AttributeEvent struct {
	Session *Session
	Name    string
	Value   any
	Old     any
}

// Events holds typed subscriber lists for session lifecycle and attribute
// changes. The zero value has no subscribers and a nil *Events is valid.
type Events struct {
	mu          sync.RWMutex
	created     []func(*Session)
	invalidates []func(*Session)
	attrSet     []func(AttributeEvent)
	attrRemoved []func(AttributeEvent)
}

// OnCreated subscribes f to newly created sessions.
func (e *Events) OnCreated(f func(*Session)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, f)
}

// OnInvalidated subscribes f to invalidated, expired and evicted sessions.
func (e *Events) OnInvalidated(f func(*Session)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidates = append(e.invalidates, f)
}

// OnAttributeSet subscribes f to attribute additions and replacements.
func (e *Events) OnAttributeSet(f func(AttributeEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrSet = append(e.attrSet, f)
}

// OnAttributeRemoved subscribes f to attribute removals.
func (e *Events) OnAttributeRemoved(f func(AttributeEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrRemoved = append(e.attrRemoved, f)
}

func (e *Events) sessionCreated(s *Session) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.created
	e.mu.RUnlock()
	for _, f := range subs {
		f(s)
	}
}

func (e *Events) invalidated(s *Session) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.invalidates
	e.mu.RUnlock()
	for _, f := range subs {
		f(s)
	}
}

func (e *Events) attributeSet(ev AttributeEvent) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.attrSet
	e.mu.RUnlock()
	for _, f := range subs {
		f(ev)
	}
}

func (e *Events) attributeRemoved(ev AttributeEvent) {
	if e == nil {
		return
	}
	e.mu.RLock()
	subs := e.attrRemoved
	e.mu.RUnlock()
	for _, f := range subs {
		f(ev)
	}
}
