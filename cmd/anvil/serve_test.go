// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/anvil"

	"github.com/stretchr/testify/assert"
)

func execute(ctx context.Context, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	stdout = new(bytes.Buffer)
	stderr = new(bytes.Buffer)

	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)
	return
}

func writeConfig(t *testing.T, s string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anvil.yaml")
	err := os.WriteFile(path, []byte(s), 0o600)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestServe(t *testing.T) {
	t.Run("will return a ConfigReadError", func(t *testing.T) {
		t.Run("if the config file does not exist", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.yaml")

			_, stderr, err := execute(context.Background(), "serve", "--config", path)

			var rerr anvil.ConfigReadError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			if !assert.Contains(t, stderr.String(), "anvil exited") {
				return
			}
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the log level is unknown", func(t *testing.T) {
			_, _, err := execute(context.Background(), "serve", "--log-level", "loud")
			if !assert.Error(t, err) {
				return
			}
		})

		t.Run("if no listen address is configured", func(t *testing.T) {
			path := writeConfig(t, "impressions:\n  sink: none\n")

			_, _, err := execute(context.Background(), "serve", "-c", path)

			var berr anvil.AppBuildError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
		})
	})

	t.Run("will serve until the context is done", func(t *testing.T) {
		path := writeConfig(t, `
listen:
  - 127.0.0.1:0
impressions:
  sink: none
`)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		_, stderr, err := execute(ctx, "serve", "--config", path, "--log-level", "debug", "--trace")
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Contains(t, stderr.String(), "serving") {
			return
		}
	})

	t.Run("will read flags from the environment", func(t *testing.T) {
		t.Setenv("ANVIL_LOG_LEVEL", "loud")

		_, _, err := execute(context.Background(), "serve")
		if !assert.Error(t, err) {
			return
		}
	})
}
