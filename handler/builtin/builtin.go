// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package builtin provides the handlers and filters every engine registers.
package builtin

import (
	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/pkg/health"
)

// Kinds the builtins are registered under.
const (
	StaticKind   = "static"
	HealthKind   = "health"
	NotFoundKind = "notfound"
	HeadersKind  = "headers"
)

// Register adds every builtin to r. The health handler reports readiness.
func Register(r *handler.Registry, readiness health.Metric) {
	r.RegisterHandler(StaticKind, NewStatic)
	r.RegisterHandler(HealthKind, Health(readiness))
	r.RegisterHandler(NotFoundKind, NewNotFound)
	r.RegisterFilter(HeadersKind, NewHeaders)
}
