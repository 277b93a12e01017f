// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/z5labs/anvil"
	"github.com/z5labs/anvil/config"
	"github.com/z5labs/anvil/lifecycle"
	"github.com/z5labs/anvil/pkg/otelconfig"
	"github.com/z5labs/anvil/pkg/slogfield"
	"github.com/z5labs/anvil/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

// EnvPrefix prefixes both the flag and config environment variables,
// e.g. ANVIL_LOG_LEVEL and ANVIL_SOCKET__READ_TIMEOUT.
const EnvPrefix = "ANVIL"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "anvil",
		Short:         "An embeddable HTTP/1.1 server engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP until interrupted",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "path to the YAML config file")
	flags.String("log-level", "info", "minimum log level: debug, info, warn or error")
	flags.Bool("trace", false, "export transaction spans to stdout")
	return cmd
}

func serve(ctx context.Context, v *viper.Viper, stdout, stderr io.Writer) error {
	var level slog.Level
	err := level.UnmarshalText([]byte(v.GetString("log-level")))
	if err != nil {
		return err
	}
	logHandler := slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})
	log := slog.New(logHandler)

	life := &lifecycle.Context{}
	if v.GetBool("trace") {
		tp, err := otelconfig.Local(otelconfig.Writer(stdout)).Init(ctx)
		if err != nil {
			return err
		}
		otel.SetTracerProvider(tp)
		life.OnPostRun(lifecycle.HookFunc(tp.Shutdown))
	}

	srcs, err := sources(v.GetString("config"))
	if err != nil {
		return err
	}

	builder := anvil.RecoverBuilder(anvil.AppBuilderFunc[server.Config](func(ctx context.Context, cfg server.Config) (anvil.App, error) {
		e, err := anvil.Serve(server.LogHandler(logHandler)).Build(ctx, cfg)
		if err != nil {
			return nil, err
		}
		app := anvil.WithSignalNotifications(e, os.Interrupt, syscall.SIGTERM)
		return anvil.Recover(anvil.WithLifecycleHooks(app, life)), nil
	}))

	err = anvil.Run(ctx, builder, srcs...)
	if err != nil {
		log.ErrorContext(ctx, "anvil exited", slogfield.Error(err))
	}
	return err
}

// sources reads the config file, if any, and then the environment so
// variables override the file.
func sources(path string) ([]config.Source, error) {
	srcs := make([]config.Source, 0, 2)
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		r := config.NewFileReader(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
		srcs = append(srcs, config.FromYaml(r))
	}
	srcs = append(srcs, config.FromEnv(EnvPrefix+"_"))
	return srcs, nil
}
