// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package builtin

import (
	"context"
	"net/http"

	"github.com/z5labs/anvil/handler"
)

// NewNotFound returns a handler which answers every request with 404.
func NewNotFound() handler.Handler {
	return handler.HandlerFunc(func(ctx context.Context, req handler.Request, resp handler.Response) error {
		return resp.SendError(http.StatusNotFound, "")
	})
}
