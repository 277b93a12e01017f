// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package anvil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/z5labs/anvil/config"
	"github.com/z5labs/anvil/server"

	"github.com/stretchr/testify/assert"
)

type sourceFunc func(config.Store) error

func (f sourceFunc) Apply(store config.Store) error {
	return f(store)
}

type appConfig struct {
	Name string `config:"name"`
}

func TestRun(t *testing.T) {
	t.Run("will return a ConfigReadError", func(t *testing.T) {
		t.Run("if a source fails to apply", func(t *testing.T) {
			srcErr := errors.New("failed to apply")
			builder := AppBuilderFunc[appConfig](func(ctx context.Context, cfg appConfig) (App, error) {
				return nil, nil
			})

			err := Run(context.Background(), builder, sourceFunc(func(config.Store) error {
				return srcErr
			}))

			var rerr ConfigReadError
			if !assert.ErrorAs(t, err, &rerr) {
				return
			}
			if !assert.ErrorIs(t, rerr, srcErr) {
				return
			}
			if !assert.NotEmpty(t, rerr.Error()) {
				return
			}
		})
	})

	t.Run("will return a ConfigUnmarshalError", func(t *testing.T) {
		t.Run("if the config does not decode into the type", func(t *testing.T) {
			builder := AppBuilderFunc[server.Config](func(ctx context.Context, cfg server.Config) (App, error) {
				return nil, nil
			})

			err := Run(context.Background(), builder, config.FromYaml(strings.NewReader("shutdown_timeout: soon\n")))

			var uerr ConfigUnmarshalError
			if !assert.ErrorAs(t, err, &uerr) {
				return
			}
			if !assert.NotEmpty(t, uerr.Error()) {
				return
			}
		})
	})

	t.Run("will return an AppBuildError", func(t *testing.T) {
		t.Run("if the builder fails", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			builder := AppBuilderFunc[appConfig](func(ctx context.Context, cfg appConfig) (App, error) {
				return nil, buildErr
			})

			err := Run(context.Background(), builder)

			var berr AppBuildError
			if !assert.ErrorAs(t, err, &berr) {
				return
			}
			if !assert.ErrorIs(t, berr, buildErr) {
				return
			}
		})

		t.Run("if the builder panics", func(t *testing.T) {
			builder := RecoverBuilder[appConfig](AppBuilderFunc[appConfig](func(ctx context.Context, cfg appConfig) (App, error) {
				panic("boom")
			}))

			err := Run(context.Background(), builder)

			var perr PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			if !assert.Equal(t, "boom", perr.Value) {
				return
			}
		})
	})

	t.Run("will return an AppRunError", func(t *testing.T) {
		t.Run("if the app fails", func(t *testing.T) {
			runErr := errors.New("failed to run")
			builder := AppBuilderFunc[appConfig](func(ctx context.Context, cfg appConfig) (App, error) {
				return AppFunc(func(ctx context.Context) error {
					return runErr
				}), nil
			})

			err := Run(context.Background(), builder)

			var aerr AppRunError
			if !assert.ErrorAs(t, err, &aerr) {
				return
			}
			if !assert.ErrorIs(t, aerr, runErr) {
				return
			}
		})
	})

	t.Run("will pass the decoded config to the builder", func(t *testing.T) {
		var got appConfig
		builder := AppBuilderFunc[appConfig](func(ctx context.Context, cfg appConfig) (App, error) {
			got = cfg
			return AppFunc(func(ctx context.Context) error { return nil }), nil
		})

		err := Run(
			context.Background(),
			builder,
			config.FromYaml(strings.NewReader("name: first\n")),
			config.FromYaml(strings.NewReader("name: second\n")),
		)
		if !assert.Nil(t, err) {
			return
		}
		if !assert.Equal(t, "second", got.Name) {
			return
		}
	})
}

func TestServe(t *testing.T) {
	t.Run("will run an engine built from yaml until the context is done", func(t *testing.T) {
		src := `
listen:
  - 127.0.0.1:0
socket:
  persistent_timeout: 1s
impressions:
  sink: none
routes:
  handlers:
    - name: health
      kind: health
  mappings:
    - pattern: /healthz
      handler: health
`
		addrs := make(chan string, 1)
		builder := AppBuilderFunc[server.Config](func(ctx context.Context, cfg server.Config) (App, error) {
			app, err := Serve().Build(ctx, cfg)
			if err != nil {
				return nil, err
			}
			addrs <- app.(*server.Engine).Addrs()[0].String()
			return app, nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errs := make(chan error, 1)
		go func() {
			errs <- Run(ctx, builder, config.FromYaml(strings.NewReader(src)))
		}()

		var addr string
		select {
		case addr = <-addrs:
		case err := <-errs:
			t.Fatal(err)
		}

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + addr + "/healthz")
		if !assert.Nil(t, err) {
			return
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		client.CloseIdleConnections()

		if !assert.Equal(t, http.StatusOK, resp.StatusCode) {
			return
		}
		if !assert.Equal(t, "ok\n", string(b)) {
			return
		}

		cancel()
		err = <-errs
		if !assert.Nil(t, err) {
			return
		}
	})
}
