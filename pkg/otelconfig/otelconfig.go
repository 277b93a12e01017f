// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelconfig builds the trace providers the anvil command can
// install.
package otelconfig

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "anvil"

// Initializer creates a trace provider. The caller owns its shutdown.
type Initializer interface {
	Init(context.Context) (*sdktrace.TracerProvider, error)
}

// LocalConfig writes spans as JSON to Out.
type LocalConfig struct {
	ServiceName string
	Out         io.Writer
	PrettyPrint bool
}

// LocalOption
type LocalOption func(*LocalConfig)

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) LocalOption {
	return func(cfg *LocalConfig) {
		cfg.ServiceName = name
	}
}

// Writer sets where spans are written. The default is [os.Stdout].
func Writer(w io.Writer) LocalOption {
	return func(cfg *LocalConfig) {
		cfg.Out = w
	}
}

// PrettyPrint indents exported spans.
func PrettyPrint(pretty bool) LocalOption {
	return func(cfg *LocalConfig) {
		cfg.PrettyPrint = pretty
	}
}

// Local returns an [Initializer] which exports spans with stdouttrace.
func Local(opts ...LocalOption) Initializer {
	cfg := LocalConfig{
		ServiceName: DefaultServiceName,
		Out:         os.Stdout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Init implements the [Initializer] interface.
func (cfg LocalConfig) Init(ctx context.Context) (*sdktrace.TracerProvider, error) {
	exportOpts := []stdouttrace.Option{
		stdouttrace.WithWriter(cfg.Out),
	}
	if cfg.PrettyPrint {
		exportOpts = append(exportOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exportOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return tp, nil
}
