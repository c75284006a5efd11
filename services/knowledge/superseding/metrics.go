// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package superseding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for coordinator metrics.
var meter = otel.Meter("aleutian.knowledge.superseding")

// Metric instruments for coordinator operations.
var (
	intentTotal     metric.Int64Counter
	executeTotal    metric.Int64Counter
	rollbackTotal   metric.Int64Counter
	executeDuration metric.Float64Histogram
	archivedBytes   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded. Metrics are never
// required for correctness; with no meter provider installed the
// instruments are no-ops anyway.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether coordinator metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all instruments once.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		intentTotal, err = meter.Int64Counter(
			"superseding_intent_total",
			metric.WithDescription("Total number of declared superseding intents"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		executeTotal, err = meter.Int64Counter(
			"superseding_execute_total",
			metric.WithDescription("Total number of superseding executions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rollbackTotal, err = meter.Int64Counter(
			"superseding_rollback_total",
			metric.WithDescription("Total number of superseding rollbacks"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		executeDuration, err = meter.Float64Histogram(
			"superseding_execute_duration_seconds",
			metric.WithDescription("Duration of superseding executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		archivedBytes, err = meter.Int64Histogram(
			"superseding_archived_bytes",
			metric.WithDescription("Bytes archived per superseding execution"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordIntent(ctx context.Context, success bool) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	intentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success)))
}

func recordExecute(ctx context.Context, duration time.Duration, bytes int64, success bool) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	executeTotal.Add(ctx, 1, attrs)
	executeDuration.Record(ctx, duration.Seconds(), attrs)
	if success {
		archivedBytes.Record(ctx, bytes)
	}
}

func recordRollback(ctx context.Context, success bool) {
	if !metricsEnabled.Load() || initMetrics() != nil {
		return
	}
	rollbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success)))
}
