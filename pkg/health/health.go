// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides the readiness signals the engine exposes through
// its builtin health handler.
package health

import (
	"context"
	"sync/atomic"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a func variant of the [Metric] interface.
type MetricFunc func(context.Context) bool

// Healthy implements the [Metric] interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary represents a health.Metric that is either healthy or not.
// The zero value is unhealthy; the engine marks it healthy once its
// acceptors are running and unhealthy again when draining begins.
type Binary struct {
	healthy atomic.Bool
}

// Set stores the current state.
func (m *Binary) Set(healthy bool) {
	m.healthy.Store(healthy)
}

// Healthy implements the Metric interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return m.healthy.Load()
}

// AndMetric represents multiple Metrics all and'd together.
type AndMetric struct {
	metrics []Metric
}

// And returns a Metric where all the underlying Metrics healthy
// states are joined together via the logical and (&&) operator.
func And(metrics ...Metric) AndMetric {
	return AndMetric{
		metrics: metrics,
	}
}

// Healthy implements the Metric interface.
func (m AndMetric) Healthy(ctx context.Context) bool {
	for _, metric := range m.metrics {
		if !metric.Healthy(ctx) {
			return false
		}
	}
	return true
}

// NotMetric represents the not'd value of the unerlying Metric.
type NotMetric struct {
	metric Metric
}

// Not returns a Metric where the underlying Metric healthy state
// is negated with the logical not (!) operator.
func Not(metric Metric) NotMetric {
	return NotMetric{
		metric: metric,
	}
}

// Healthy implements the Metric interface.
func (m NotMetric) Healthy(ctx context.Context) bool {
	return !m.metric.Healthy(ctx)
}
