// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package router

import (
	"slices"

	"github.com/z5labs/anvil/handler"
)

// Route is a resolved path: the pool serving it, the filters wrapping it
// in execution order and the path split around the matched pattern.
type Route struct {
	Pattern Pattern
	Pool    *handler.Pool
	Filters []handler.Filter
	Paths   handler.Paths
}

type route struct {
	pattern Pattern
	pool    *handler.Pool
}

type filterRoute struct {
	pattern Pattern
	name    string
	filter  handler.Filter

	// rank is the position of the filter in the configured filter list.
	rank int
}

// table is an immutable routing snapshot. Requests only ever see a fully
// built table.
type table struct {
	exact   map[string]route
	wild    []route
	filters []filterRoute
}

func newTable() *table {
	return &table{
		exact: make(map[string]route),
	}
}

// addRoute registers a mapping. A later literal mapping replaces an earlier
// one for the same path.
func (t *table) addRoute(p Pattern, pool *handler.Pool) {
	if p.shape == Literal {
		t.exact[p.prefix] = route{pattern: p, pool: pool}
		return
	}
	t.wild = append(t.wild, route{pattern: p, pool: pool})
}

// addImplicit maps the literal path to pool unless a mapping already exists.
func (t *table) addImplicit(path string, pool *handler.Pool) {
	if _, ok := t.exact[path]; ok {
		return
	}
	t.exact[path] = route{pattern: Pattern{raw: path, shape: Literal, prefix: path}, pool: pool}
}

func (t *table) addFilter(p Pattern, name string, f handler.Filter, rank int) {
	t.filters = append(t.filters, filterRoute{pattern: p, name: name, filter: f, rank: rank})
}

func (t *table) hasCatchAll() bool {
	return slices.ContainsFunc(t.wild, func(r route) bool {
		return r.pattern.shape == Any
	})
}

// seal orders wildcard routes by precedence. The stable sort keeps
// registration order between equally specific patterns.
func (t *table) seal() {
	slices.SortStableFunc(t.wild, func(a, b route) int {
		switch {
		case a.pattern.outranks(b.pattern):
			return -1
		case b.pattern.outranks(a.pattern):
			return 1
		default:
			return 0
		}
	})
}

func (t *table) resolve(path string) (Route, bool) {
	r, ok := t.exact[path]
	if !ok {
		idx := slices.IndexFunc(t.wild, func(r route) bool {
			return r.pattern.Match(path)
		})
		if idx < 0 {
			return Route{}, false
		}
		r = t.wild[idx]
	}

	return Route{
		Pattern: r.pattern,
		Pool:    r.pool,
		Filters: t.resolveFilters(path),
		Paths:   r.pattern.Split(path),
	}, true
}

// resolveFilters collects every filter whose pattern matches path, each
// once, ordered by filter registration.
func (t *table) resolveFilters(path string) []handler.Filter {
	var matched []filterRoute
	for _, fr := range t.filters {
		if !fr.pattern.Match(path) {
			continue
		}
		if slices.ContainsFunc(matched, func(m filterRoute) bool { return m.name == fr.name }) {
			continue
		}
		matched = append(matched, fr)
	}
	slices.SortStableFunc(matched, func(a, b filterRoute) int {
		return a.rank - b.rank
	})

	filters := make([]handler.Filter, len(matched))
	for i, fr := range matched {
		filters[i] = fr.filter
	}
	return filters
}
