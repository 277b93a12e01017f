// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package impression

import (
	"context"

	"github.com/z5labs/anvil/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/z5labs/anvil/impression"

// MetricSink counts transactions and records their latency.
type MetricSink struct {
	transactions metric.Int64Counter
	duration     metric.Float64Histogram
	written      metric.Int64Counter
}

// NewMetricSink returns a [MetricSink] using the global meter provider.
func NewMetricSink() (*MetricSink, error) {
	meter := otel.Meter(instrumentationName)

	transactions, err := meter.Int64Counter(
		"anvil.http.transactions",
		metric.WithDescription("Completed transactions by method and status."),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"anvil.http.duration",
		metric.WithDescription("Transaction latency from request line to close."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	written, err := meter.Int64Counter(
		"anvil.http.bytes_written",
		metric.WithDescription("Response body bytes written."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricSink{
		transactions: transactions,
		duration:     duration,
		written:      written,
	}, nil
}

// Record implements the [wire.ImpressionSink] interface.
func (s *MetricSink) Record(ctx context.Context, imp wire.Impression) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", imp.Method),
		attribute.Int("http.status_code", imp.Status),
	)
	s.transactions.Add(ctx, 1, attrs)
	s.duration.Record(ctx, imp.Duration.Seconds(), attrs)
	s.written.Add(ctx, imp.BytesWritten, attrs)
}
