// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"
)

// cookieExpiresFormat is the Netscape layout used by version 0 cookies.
const cookieExpiresFormat = "Mon, 02-Jan-2006 15:04:05 GMT"

// ErrInvalidCookie is returned when adding a cookie whose name is not a token.
var ErrInvalidCookie = errors.New("wire: invalid cookie name")

// Cookie is a response or request cookie. Version 0 cookies are emitted in
// the Netscape format with an expires attribute, version 1 cookies in the
// RFC 2109 format with Version and Max-Age.
type Cookie struct {
	Name    string
	Value   string
	Version int
	Comment string
	Domain  string
	Path    string

	// MaxAge is in seconds. Zero leaves the lifetime unset and a negative
	// value expires the cookie immediately.
	MaxAge int

	Secure   bool
	HTTPOnly bool
}

func (c *Cookie) format(now time.Time) string {
	if c.Version > 0 {
		return c.formatV1()
	}
	return c.formatV0(now)
}

func (c *Cookie) formatV0(now time.Time) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	switch {
	case c.MaxAge > 0:
		b.WriteString("; expires=")
		b.WriteString(now.Add(time.Duration(c.MaxAge) * time.Second).UTC().Format(cookieExpiresFormat))
	case c.MaxAge < 0:
		b.WriteString("; expires=")
		b.WriteString(time.Unix(0, 0).UTC().Format(cookieExpiresFormat))
	}
	if c.Path != "" {
		b.WriteString("; path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; domain=")
		b.WriteString(c.Domain)
	}
	if c.Secure {
		b.WriteString("; secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

func (c *Cookie) formatV1() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(quote(c.Value))
	b.WriteString("; Version=")
	b.WriteString(strconv.Itoa(c.Version))

	if c.Comment != "" {
		b.WriteString("; Comment=")
		b.WriteString(quote(c.Comment))
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	switch {
	case c.MaxAge > 0:
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		b.WriteString("; Max-Age=0")
	}
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(quote(c.Path))
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// parseCookies reads every Cookie request header. RFC 2109 attributes
// such as $Version and $Path apply to the preceding cookie.
func parseCookies(values []string) []*Cookie {
	var cookies []*Cookie
	version := 0
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' }) {
			name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
			name = strings.TrimSpace(name)
			value = unquote(strings.TrimSpace(value))
			if name == "" {
				continue
			}

			if attr, ok := strings.CutPrefix(name, "$"); ok {
				switch strings.ToLower(attr) {
				case "version":
					version, _ = strconv.Atoi(value)
				case "path":
					if n := len(cookies); n > 0 {
						cookies[n-1].Path = value
					}
				case "domain":
					if n := len(cookies); n > 0 {
						cookies[n-1].Domain = value
					}
				}
				continue
			}
			if !httpguts.ValidHeaderFieldName(name) {
				continue
			}
			cookies = append(cookies, &Cookie{
				Name:    name,
				Value:   value,
				Version: version,
			})
		}
	}
	return cookies
}
