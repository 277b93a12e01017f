// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/wire"
)

// DefaultIndex is served for directory requests.
const DefaultIndex = "index.html"

// Static serves files below its configured root. The root is taken from
// [handler.Config.Root] or the "root" parameter and must be a directory.
// The "index" parameter overrides [DefaultIndex].
type Static struct {
	cfg   handler.Config
	index string
}

// NewStatic returns an uninitialized [Static] handler.
func NewStatic() handler.Handler {
	return &Static{}
}

// Init implements the [handler.Handler] interface.
func (s *Static) Init(cfg handler.Config) error {
	if cfg.Root == "" {
		cfg.Root = cfg.Param("root")
	}
	if cfg.Root == "" {
		return errors.New("static: no root configured")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("static: root is not a directory: %s", root)
	}

	cfg.Root = root
	s.cfg = cfg
	s.index = cfg.ParamOr("index", DefaultIndex)
	return nil
}

// Serve implements the [handler.Handler] interface.
func (s *Static) Serve(ctx context.Context, req handler.Request, resp handler.Response) error {
	switch req.Method() {
	case http.MethodGet, http.MethodHead:
	default:
		if err := resp.SetHeader("Allow", "GET, HEAD"); err != nil {
			return err
		}
		return resp.SendError(http.StatusMethodNotAllowed, "")
	}

	name, _ := s.cfg.RealPath(req.ExtraPath())
	f, info, err := s.open(name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return resp.SendError(http.StatusNotFound, "")
	}
	if err != nil {
		return err
	}
	defer f.Close()

	modified := info.ModTime().UTC().Truncate(time.Second)
	since, ok, err := req.Headers().Date("If-Modified-Since")
	if err == nil && ok && !modified.After(since) {
		return resp.SetStatus(http.StatusNotModified, "")
	}

	if err := resp.SetStatus(http.StatusOK, ""); err != nil {
		return err
	}
	if ctype := mime.TypeByExtension(filepath.Ext(info.Name())); ctype != "" {
		if err := resp.SetHeader("Content-Type", ctype); err != nil {
			return err
		}
	}
	if err := resp.SetHeader("Last-Modified", modified.Format(wire.TimeFormat)); err != nil {
		return err
	}
	if err := resp.SetHeader("Content-Length", strconv.FormatInt(info.Size(), 10)); err != nil {
		return err
	}
	if req.Method() == http.MethodHead {
		return nil
	}
	_, err = io.Copy(resp, f)
	return err
}

func (s *Static) open(name string) (*os.File, fs.FileInfo, error) {
	for range 2 {
		f, err := os.Open(name)
		if err != nil {
			return nil, nil, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		if !info.IsDir() {
			return f, info, nil
		}
		f.Close()
		name = filepath.Join(name, s.index)
	}
	return nil, nil, fs.ErrNotExist
}

// Destroy implements the [handler.Handler] interface.
func (s *Static) Destroy() {}
