// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package handler

import (
	"path/filepath"
	"testing"

	"github.com/z5labs/anvil/wire"

	"github.com/stretchr/testify/assert"
)

func TestNewRequest(t *testing.T) {
	t.Run("will expose the path split", func(t *testing.T) {
		c, _ := newConn(t, "GET /app/files/a/b.txt?x=1 HTTP/1.1\r\nHost: h\r\n\r\n")

		req := NewRequest(c, Paths{Context: "/app", Handler: "/files", Extra: "/a/b.txt"}, nil)
		if !assert.Equal(t, "/app", req.ContextPath()) {
			return
		}
		if !assert.Equal(t, "/files", req.HandlerPath()) {
			return
		}
		if !assert.Equal(t, "/a/b.txt", req.ExtraPath()) {
			return
		}
		if !assert.Equal(t, "x=1", req.Query()) {
			return
		}
	})

	t.Run("will bind no session without session support", func(t *testing.T) {
		c, _ := newConn(t, getRequest)

		req := NewRequest(c, Paths{}, nil)
		sess, err := req.Session(true)
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Nil(t, sess) {
			return
		}
		if !assert.Empty(t, req.RequestedSessionID()) {
			return
		}
	})
}

func TestForward(t *testing.T) {
	t.Run("will override the uri and split but share attributes", func(t *testing.T) {
		c, _ := newConn(t, getRequest)

		req := NewRequest(c, Paths{Handler: "/app/page"}, nil)
		req.SetAttribute("user", "alice")

		fwd := Forward(req, "/other?y=2", "/other", "y=2", Paths{Handler: "/other"})
		if !assert.Equal(t, "/other?y=2", fwd.URI()) {
			return
		}
		if !assert.Equal(t, "/other", fwd.Path()) {
			return
		}
		if !assert.Equal(t, "y=2", fwd.Query()) {
			return
		}
		if !assert.Equal(t, "/other", fwd.HandlerPath()) {
			return
		}
		if !assert.Equal(t, "alice", fwd.Attribute("user")) {
			return
		}
		if !assert.Equal(t, "GET", fwd.Method()) {
			return
		}

		fwd.SetAttribute("seen", true)
		if !assert.Equal(t, true, req.Attribute("seen")) {
			return
		}
		if !assert.Equal(t, "/app/page", req.Path()) {
			return
		}
	})
}

func TestInclude(t *testing.T) {
	t.Run("will write the body but ignore status and header changes", func(t *testing.T) {
		c, s := newConn(t, getRequest)
		if !assert.Nil(t, c.SetStatus(200, "")) {
			return
		}
		if !assert.Nil(t, c.SetContentLength(5)) {
			return
		}

		inc := Include(c)
		if !assert.Nil(t, inc.SetStatus(404, "")) {
			return
		}
		if !assert.Nil(t, inc.SetHeader("X-Included", "yes")) {
			return
		}
		if !assert.Nil(t, inc.AddCookie(&wire.Cookie{Name: "a", Value: "b"})) {
			return
		}
		if !assert.Nil(t, inc.SendError(500, "")) {
			return
		}
		_, err := inc.WriteString("hello")
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Nil(t, c.Close()) {
			return
		}

		if !assert.Equal(t, 200, c.Status()) {
			return
		}
		if !assert.Empty(t, c.ResponseHeader("X-Included")) {
			return
		}
		if !assert.Contains(t, s.out.String(), "\r\n\r\nhello") {
			return
		}
	})
}

func TestConfig_RealPath(t *testing.T) {
	t.Run("will resolve under the root", func(t *testing.T) {
		cfg := Config{Root: "/srv/www"}

		p, ok := cfg.RealPath("/css/site.css")
		if !assert.True(t, ok) {
			return
		}
		if !assert.Equal(t, filepath.Join("/srv/www", "css", "site.css"), p) {
			return
		}
	})

	t.Run("will not escape the root", func(t *testing.T) {
		cfg := Config{Root: "/srv/www"}

		p, ok := cfg.RealPath("/../../etc/passwd")
		if !assert.True(t, ok) {
			return
		}
		if !assert.Equal(t, filepath.Join("/srv/www", "etc", "passwd"), p) {
			return
		}
	})

	t.Run("if no root is configured", func(t *testing.T) {
		t.Run("will report no mapping", func(t *testing.T) {
			_, ok := Config{}.RealPath("/a")
			if !assert.False(t, ok) {
				return
			}
		})
	})
}

func TestConfig_ParamOr(t *testing.T) {
	t.Run("will fall back only when the parameter is unset", func(t *testing.T) {
		cfg := Config{Params: map[string]string{"empty": ""}}

		if !assert.Equal(t, "", cfg.ParamOr("empty", "def")) {
			return
		}
		if !assert.Equal(t, "def", cfg.ParamOr("missing", "def")) {
			return
		}
	})
}
