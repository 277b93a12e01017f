// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"slices"
	"sync"
)

// Factory constructs a fresh, uninitialized [Handler].
type Factory func() Handler

// FilterFactory constructs a fresh, uninitialized [Filter].
type FilterFactory func() Filter

// Registry resolves the kinds named in configuration to factories.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Factory
	filters  map[string]FilterFactory
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Factory),
		filters:  make(map[string]FilterFactory),
	}
}

// RegisterHandler registers f under kind, replacing any previous factory.
func (r *Registry) RegisterHandler(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = f
}

// RegisterFilter registers f under kind, replacing any previous factory.
func (r *Registry) RegisterFilter(kind string, f FilterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[kind] = f
}

// HandlerFactory returns the factory registered under kind.
func (r *Registry) HandlerFactory(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.handlers[kind]
	if !ok {
		return nil, ConfigurationError{Kind: "handler", Name: kind, Cause: ErrUnknownKind}
	}
	return f, nil
}

// NewFilter constructs a filter of the given kind.
func (r *Registry) NewFilter(kind string) (Filter, error) {
	r.mu.RLock()
	f, ok := r.filters[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, ConfigurationError{Kind: "filter", Name: kind, Cause: ErrUnknownKind}
	}
	return f(), nil
}

// HandlerKinds returns the sorted registered handler kinds.
func (r *Registry) HandlerKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// FilterKinds returns the sorted registered filter kinds.
func (r *Registry) FilterKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.filters))
	for k := range r.filters {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
