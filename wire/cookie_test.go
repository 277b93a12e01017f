// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCookie_format(t *testing.T) {
	testCases := []struct {
		Name   string
		Cookie Cookie
		Expect string
	}{
		{
			Name:   "version 0 with a lifetime",
			Cookie: Cookie{Name: "id", Value: "abc", Path: "/", Domain: "example.com", MaxAge: 60, Secure: true, HTTPOnly: true},
			Expect: "id=abc; expires=Fri, 01-Mar-2024 12:01:00 GMT; path=/; domain=example.com; secure; HttpOnly",
		},
		{
			Name:   "version 0 expired",
			Cookie: Cookie{Name: "id", Value: "", MaxAge: -1},
			Expect: "id=; expires=Thu, 01-Jan-1970 00:00:00 GMT",
		},
		{
			Name:   "version 1 with a lifetime",
			Cookie: Cookie{Name: "id", Value: "a\"b", Version: 1, Comment: "c", Domain: "example.com", MaxAge: 60, Path: "/app"},
			Expect: `id="a\"b"; Version=1; Comment="c"; Domain=example.com; Max-Age=60; Path="/app"`,
		},
		{
			Name:   "version 1 expired",
			Cookie: Cookie{Name: "id", Value: "x", Version: 1, MaxAge: -1, Secure: true},
			Expect: `id="x"; Version=1; Max-Age=0; Secure`,
		},
	}

	for _, testCase := range testCases {
		t.Run("will format "+testCase.Name, func(t *testing.T) {
			got := testCase.Cookie.format(fixedNow)
			if !assert.Equal(t, testCase.Expect, got) {
				return
			}
		})
	}
}
