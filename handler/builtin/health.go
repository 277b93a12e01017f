// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package builtin

import (
	"context"
	"net/http"

	"github.com/z5labs/anvil/handler"
	"github.com/z5labs/anvil/pkg/health"
)

// Health returns a factory for handlers which answer 200 while m is healthy
// and 503 otherwise.
func Health(m health.Metric) handler.Factory {
	return func() handler.Handler {
		return &healthHandler{metric: m}
	}
}

type healthHandler struct {
	metric health.Metric
}

// Init implements the [handler.Handler] interface.
func (h *healthHandler) Init(handler.Config) error {
	return nil
}

// Serve implements the [handler.Handler] interface.
func (h *healthHandler) Serve(ctx context.Context, req handler.Request, resp handler.Response) error {
	code := http.StatusOK
	body := "ok\n"
	if h.metric != nil && !h.metric.Healthy(ctx) {
		code = http.StatusServiceUnavailable
		body = "unavailable\n"
	}

	if err := resp.SetStatus(code, ""); err != nil {
		return err
	}
	if err := resp.SetHeader("Content-Type", "text/plain; charset=utf-8"); err != nil {
		return err
	}
	if err := resp.SetHeader("Cache-Control", "no-store"); err != nil {
		return err
	}
	if err := resp.SetContentLength(int64(len(body))); err != nil {
		return err
	}
	_, err := resp.WriteString(body)
	return err
}

// Destroy implements the [handler.Handler] interface.
func (h *healthHandler) Destroy() {}
