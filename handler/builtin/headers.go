// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package builtin

import (
	"context"
	"slices"

	"github.com/z5labs/anvil/handler"
)

// Headers is a filter which sets every init parameter as a response header
// before the rest of the chain runs.
type Headers struct {
	names  []string
	values map[string]string
}

// NewHeaders returns an uninitialized [Headers] filter.
func NewHeaders() handler.Filter {
	return &Headers{}
}

// Init implements the [handler.Filter] interface.
func (h *Headers) Init(cfg handler.Config) error {
	h.values = make(map[string]string, len(cfg.Params))
	for name, value := range cfg.Params {
		h.names = append(h.names, name)
		h.values[name] = value
	}
	slices.Sort(h.names)
	return nil
}

// DoFilter implements the [handler.Filter] interface.
func (h *Headers) DoFilter(ctx context.Context, req handler.Request, resp handler.Response, chain *handler.Chain) error {
	for _, name := range h.names {
		if err := resp.SetHeader(name, h.values[name]); err != nil {
			return err
		}
	}
	return chain.Proceed(ctx, req, resp)
}

// Destroy implements the [handler.Filter] interface.
func (h *Headers) Destroy() {}
