// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package router

import (
	"errors"
	"strings"

	"github.com/z5labs/anvil/handler"
)

// Shape classifies a pattern by where its literal parts sit around the
// wildcard: Any is "*", Suffix "*j", Infix "*j*", Prefix "i*",
// PrefixSuffix "i*j" and PrefixInfix "i*j*", with i the literal prefix
// and j the literal suffix.
type Shape int

const (
	Literal Shape = iota
	Any
	Suffix
	Infix
	Prefix
	PrefixSuffix
	PrefixInfix
)

// ErrInvalidPattern is the cause of a [handler.ConfigurationError] for a
// pattern with more than one wildcard run.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern is a parsed path pattern.
type Pattern struct {
	raw    string
	shape  Shape
	prefix string
	suffix string
}

// ParsePattern parses raw. Supported shapes are literal, "*", "*j", "*j*",
// "i*", "i*j" and "i*j*".
func ParsePattern(raw string) (Pattern, error) {
	p := Pattern{raw: raw}
	if raw == "" {
		return p, ErrInvalidPattern
	}
	if raw == "*" {
		p.shape = Any
		return p, nil
	}

	rest := raw
	trailing := strings.HasSuffix(rest, "*")
	if trailing {
		rest = rest[:len(rest)-1]
	}

	if after, ok := strings.CutPrefix(rest, "*"); ok {
		if after == "" || strings.Contains(after, "*") {
			return p, ErrInvalidPattern
		}
		p.suffix = after
		p.shape = Suffix
		if trailing {
			p.shape = Infix
		}
		return p, nil
	}

	i, j, found := strings.Cut(rest, "*")
	switch {
	case strings.Contains(j, "*"):
		return p, ErrInvalidPattern
	case found && j == "":
		// "i**"
		return p, ErrInvalidPattern
	case found:
		p.prefix, p.suffix = i, j
		p.shape = PrefixSuffix
		if trailing {
			p.shape = PrefixInfix
		}
	case trailing:
		p.prefix = rest
		p.shape = Prefix
	default:
		p.prefix = rest
		p.shape = Literal
	}
	return p, nil
}

func (p Pattern) String() string {
	return p.raw
}

// Shape returns the pattern shape.
func (p Pattern) Shape() Shape {
	return p.shape
}

// literals is the number of literal characters, which decides between two
// wildcard patterns matching the same path.
func (p Pattern) literals() int {
	return len(p.prefix) + len(p.suffix)
}

// Match reports whether path matches the pattern.
func (p Pattern) Match(path string) bool {
	switch p.shape {
	case Literal:
		return path == p.prefix
	case Any:
		return true
	case Suffix:
		return strings.HasSuffix(path, p.suffix)
	case Infix:
		return strings.Contains(path, p.suffix)
	case Prefix:
		return strings.HasPrefix(path, p.prefix)
	case PrefixSuffix:
		rest, ok := strings.CutPrefix(path, p.prefix)
		return ok && strings.HasSuffix(rest, p.suffix)
	case PrefixInfix:
		rest, ok := strings.CutPrefix(path, p.prefix)
		return ok && strings.Contains(rest, p.suffix)
	default:
		return false
	}
}

// Split divides a path matched by the pattern into its context, handler
// and extra paths. Split points which fall just after a '/' are moved
// back one character so the following segment starts with '/'.
// Concatenating the three parts always yields path.
func (p Pattern) Split(path string) handler.Paths {
	switch p.shape {
	case Any:
		return handler.Paths{Extra: path}
	case Suffix, Literal:
		return handler.Paths{Handler: path}
	case Infix:
		end := strings.LastIndex(path, p.suffix) + len(p.suffix)
		end = backup(path, end)
		return handler.Paths{Handler: path[:end], Extra: path[end:]}
	case Prefix:
		end := backup(path, len(p.prefix))
		return handler.Paths{Handler: path[:end], Extra: path[end:]}
	case PrefixSuffix:
		start := backup(path, len(p.prefix))
		return handler.Paths{Context: path[:start], Handler: path[start:]}
	case PrefixInfix:
		start := backup(path, len(p.prefix))
		end := len(p.prefix) + strings.LastIndex(path[len(p.prefix):], p.suffix) + len(p.suffix)
		end = backup(path, end)
		if end < start {
			end = start
		}
		return handler.Paths{Context: path[:start], Handler: path[start:end], Extra: path[end:]}
	default:
		return handler.Paths{Handler: path}
	}
}

func backup(path string, i int) int {
	if i > 0 && i <= len(path) && path[i-1] == '/' {
		return i - 1
	}
	return i
}

// outranks reports whether p is more specific than q. Ties are broken by
// the caller with registration order.
func (p Pattern) outranks(q Pattern) bool {
	pe, qe := p.shape == Literal, q.shape == Literal
	if pe != qe {
		return pe
	}
	if p.literals() != q.literals() {
		return p.literals() > q.literals()
	}
	return len(p.prefix) > len(q.prefix)
}
