// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("metricsync.pipeline")
	meter  = otel.Meter("metricsync.pipeline")
)

var (
	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	rowsWritten    metric.Int64Counter
	orphanedRows   metric.Int64Counter
	malformedRows  metric.Int64Counter
	unmatchedTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"metricsync_runs_total",
			metric.WithDescription("Pipeline runs by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runDuration, err = meter.Float64Histogram(
			"metricsync_run_duration_seconds",
			metric.WithDescription("Wall-clock duration of a pipeline run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rowsWritten, err = meter.Int64Counter(
			"metricsync_rows_written_total",
			metric.WithDescription("Data rows written to the monitoring CSV"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		orphanedRows, err = meter.Int64Counter(
			"metricsync_orphaned_config_rows_total",
			metric.WithDescription("Configured rows whose metric is no longer published"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		malformedRows, err = meter.Int64Counter(
			"metricsync_malformed_catalog_rows_total",
			metric.WithDescription("Catalog rows skipped for having too few cells"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unmatchedTotal, err = meter.Int64Counter(
			"metricsync_unmatched_metrics_total",
			metric.WithDescription("Catalog metrics written without prior settings"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRun records the outcome of one run.
func recordRun(ctx context.Context, mode, outcome string, elapsed time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	runsTotal.Add(ctx, 1, attrs)
	runDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// recordSummary records the row counters of a finished run.
func recordSummary(ctx context.Context, s *Summary) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", s.Mode))
	if s.Written {
		rowsWritten.Add(ctx, int64(s.Rows), attrs)
	}
	orphanedRows.Add(ctx, int64(len(s.Orphaned)), attrs)
	malformedRows.Add(ctx, int64(len(s.Malformed)), attrs)
	unmatchedTotal.Add(ctx, int64(s.Unmatched), attrs)
}
